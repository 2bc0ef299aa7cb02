package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ai4kingdom/chat-server-go/internal/assistant"
	"github.com/ai4kingdom/chat-server-go/internal/chat"
	"github.com/ai4kingdom/chat-server-go/internal/config"
	"github.com/ai4kingdom/chat-server-go/internal/handler/shared"
)

// ChatRequest 는 채팅 요청 본문이다.
type ChatRequest struct {
	Message  string     `json:"message"`
	ThreadID string     `json:"threadId"`
	UserID   string     `json:"userId"`
	Config   ChatConfig `json:"config"`
}

// ChatConfig 는 프론트엔드가 넘기는 어시스턴트 설정이다.
type ChatConfig struct {
	AssistantID   string `json:"assistantId"`
	Type          string `json:"type"`
	VectorStoreID string `json:"vectorStoreId"`
}

// ChatHandler 는 채팅 API 핸들러다.
type ChatHandler struct {
	cfg    *config.Config
	svc    *chat.Service
	logger *slog.Logger
}

// NewChatHandler 는 채팅 핸들러를 생성한다.
func NewChatHandler(cfg *config.Config, svc *chat.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
	}
}

// RegisterRoutes 는 채팅 라우트를 등록한다.
func (h *ChatHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/chat", h.handleChat)
}

func (h *ChatHandler) handleChat(c *gin.Context) {
	var raw map[string]any
	if !shared.BindJSON(c, &raw) {
		return
	}

	// userId 가 숫자로 오는 클라이언트가 있어 약타입 디코딩을 거친다.
	var req ChatRequest
	if err := shared.Decode(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "UserId is required"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	result, err := h.svc.Chat(c.Request.Context(), chat.Request{
		UserID:        req.UserID,
		Message:       req.Message,
		ThreadID:      req.ThreadID,
		AssistantID:   req.Config.AssistantID,
		VectorStoreID: req.Config.VectorStoreID,
		Type:          req.Config.Type,
	})
	if err != nil {
		h.writeChatError(c, req, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"reply":    result.Reply,
		"threadId": result.ThreadID,
		"debug": gin.H{
			"runStatus":          assistant.RunStatusCompleted,
			"tokensUsedThisTurn": result.TokensUsed,
		},
	})
}

func (h *ChatHandler) writeChatError(c *gin.Context, req ChatRequest, err error) {
	var quotaErr *chat.QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "Monthly usage limit reached",
			"message": fmt.Sprintf("你本月的 Token 已经用完，预计在 %s 重置。", quotaErr.Decision.NextResetDate),
		})
		return
	}

	var subErr *chat.SubscriptionError
	if errors.As(err, &subErr) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":        "User subscription inactive or missing",
			"subscription": subErr.Decision.Subscription,
		})
		return
	}

	var checkErr *chat.QuotaCheckError
	if errors.As(err, &checkErr) {
		h.logger.Error("chat_quota_check_failed", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to check monthly usage",
			"details": checkErr.Decision.Detail,
		})
		return
	}

	if errors.Is(err, chat.ErrInvalidAssistant) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "助手ID无效",
			"details": gin.H{
				"assistantId": req.Config.AssistantID,
			},
		})
		return
	}

	if errors.Is(err, assistant.ErrRunTimeout) {
		h.logger.Error("chat_run_timeout", "user_id", req.UserID, "thread_id", req.ThreadID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "请求处理超时，请稍后重试"})
		return
	}

	h.logger.Error("chat_failed", "user_id", req.UserID, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
