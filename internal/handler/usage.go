package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ai4kingdom/chat-server-go/internal/config"
	"github.com/ai4kingdom/chat-server-go/internal/metrics"
	"github.com/ai4kingdom/chat-server-go/internal/quota"
)

// MonthlyUsageResponse: 월간 사용량 응답 본문입니다.
// 무제한 등급의 한도와 잔여량은 null 로 내려갑니다.
type MonthlyUsageResponse struct {
	SubscriptionType string `json:"subscriptionType"`
	MonthlyLimit     *int64 `json:"monthlyLimit"`
	MonthlyCount     int64  `json:"monthlyCount"`
	Remaining        *int64 `json:"remaining"`
	NextResetDate    string `json:"nextResetDate"`
	YearMonth        string `json:"yearMonth"`
}

// UsageHandler: 사용량 API 핸들러입니다.
type UsageHandler struct {
	cfg     *config.Config
	gate    *quota.Gate
	metrics *metrics.Store
	logger  *slog.Logger
}

// NewUsageHandler: 사용량 핸들러를 생성합니다.
func NewUsageHandler(cfg *config.Config, gate *quota.Gate, metricsStore *metrics.Store, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		cfg:     cfg,
		gate:    gate,
		metrics: metricsStore,
		logger:  logger,
	}
}

// RegisterRoutes: 사용량 라우트를 등록합니다.
func (h *UsageHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/usage", h.handleWeekly)
	router.GET("/usage/monthly", h.handleMonthly)
}

func (h *UsageHandler) handleWeekly(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "UserId is required"})
		return
	}

	dec := h.gate.CheckWeekly(c.Request.Context(), userID)
	switch dec.Reason {
	case quota.ReasonInactive:
		h.metrics.RecordDenial("weekly", string(dec.Reason))
		c.JSON(http.StatusForbidden, gin.H{
			"error":        "Inactive subscription",
			"subscription": dec.Subscription,
			"weeklyLimit":  limitValue(h.freeWeeklyLimit()),
			"weeklyCount":  0,
		})
		return
	case quota.ReasonInsufficientRole:
		h.metrics.RecordDenial("weekly", string(dec.Reason))
		c.JSON(http.StatusForbidden, gin.H{
			"error":        "Insufficient permissions",
			"subscription": dec.Subscription,
			"weeklyLimit":  limitValue(h.freeWeeklyLimit()),
			"weeklyCount":  0,
		})
		return
	case quota.ReasonCheckFailed:
		h.logger.Error("weekly_usage_failed", "user_id", userID, "detail", dec.Detail)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to fetch usage count",
			"details": dec.Detail,
			"debug": gin.H{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"weeklyCount":   dec.Consumed,
		"weeklyLimit":   limitValue(dec.Limit),
		"subscription":  dec.Subscription,
		"remaining":     remainingValue(dec),
		"nextResetDate": dec.NextResetDate,
		"debug": gin.H{
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"startOfWeek": dec.WindowStart.Format(time.RFC3339),
		},
	})
}

// handleMonthly 는 월간 사용량을 조회한다.
// 한도를 다 쓴 사용자도 200으로 내려간다. 차단 판정은 채팅 경로의 몫이다.
func (h *UsageHandler) handleMonthly(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "UserId is required"})
		return
	}

	year, month := parseYearMonth(c)
	dec := h.gate.CheckMonthly(c.Request.Context(), userID, year, month)
	switch dec.Reason {
	case quota.ReasonInactive:
		h.metrics.RecordDenial("monthly", string(dec.Reason))
		c.JSON(http.StatusForbidden, gin.H{
			"error":        "User subscription inactive or missing",
			"subscription": dec.Subscription,
		})
		return
	case quota.ReasonCheckFailed:
		h.logger.Error("monthly_usage_failed", "user_id", userID, "detail", dec.Detail)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取使用统计失败",
			"details": dec.Detail,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"usage": MonthlyUsageResponse{
			SubscriptionType: dec.SubscriptionType,
			MonthlyLimit:     limitValue(dec.Limit),
			MonthlyCount:     dec.Consumed,
			Remaining:        remainingValue(dec),
			NextResetDate:    dec.NextResetDate,
			YearMonth:        dec.YearMonth,
		},
	})
}

func (h *UsageHandler) freeWeeklyLimit() quota.Limit {
	return h.gate.Limits().Weekly.ForType(quota.TierFree)
}

// parseYearMonth 는 year/month 쿼리를 읽는다. 누락되거나 숫자가 아니면 0을 반환해
// 게이트가 현재 달을 쓰게 한다.
func parseYearMonth(c *gin.Context) (int, time.Month) {
	year := 0
	month := time.Month(0)
	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			year = parsed
		}
	}
	if raw := strings.TrimSpace(c.Query("month")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 1 && parsed <= 12 {
			month = time.Month(parsed)
		}
	}
	if year == 0 || month == 0 {
		now := time.Now().UTC()
		if year == 0 {
			year = now.Year()
		}
		if month == 0 {
			month = now.Month()
		}
	}
	return year, month
}

func limitValue(limit quota.Limit) *int64 {
	if limit.Unlimited {
		return nil
	}
	value := limit.Tokens
	return &value
}

func remainingValue(dec quota.Decision) *int64 {
	if dec.Limit.Unlimited {
		return nil
	}
	value := dec.Remaining
	return &value
}
