package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ai4kingdom/chat-server-go/internal/config"
	"github.com/ai4kingdom/chat-server-go/internal/metrics"
	"github.com/ai4kingdom/chat-server-go/internal/quota"
	"github.com/ai4kingdom/chat-server-go/internal/subscription"
)

type stubResolver struct {
	sub *subscription.Subscription
	err error
}

func (s *stubResolver) Resolve(_ context.Context, _ string) (*subscription.Subscription, error) {
	return s.sub, s.err
}

type stubWeekly struct {
	total int64
	err   error
}

func (s *stubWeekly) SumRange(_ context.Context, _ string, _, _ time.Time) (int64, error) {
	return s.total, s.err
}

type stubMonthly struct {
	total int64
	err   error
}

func (s *stubMonthly) SumMonth(_ context.Context, _, _ string) (int64, error) {
	return s.total, s.err
}

func newUsageRouter(resolver quota.SubscriptionResolver, weekly quota.WeeklyAggregator, monthly quota.MonthlyAggregator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := quota.NewGate(quota.DefaultLimits(), resolver, weekly, monthly, logger)
	router := gin.New()
	NewUsageHandler(&config.Config{}, gate, metrics.NewStore(), logger).RegisterRoutes(router)
	return router
}

func getJSON(t *testing.T, router *gin.Engine, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return rec.Code, body
}

func proSub() *subscription.Subscription {
	return &subscription.Subscription{
		Status: subscription.StatusActive,
		Type:   "pro",
		Roles:  []string{subscription.RoleProMember},
	}
}

func TestWeeklyUsageRequiresUserID(t *testing.T) {
	router := newUsageRouter(&stubResolver{}, &stubWeekly{}, &stubMonthly{})

	code, body := getJSON(t, router, "/usage")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if body["error"] != "UserId is required" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestWeeklyUsageInactiveSubscription(t *testing.T) {
	router := newUsageRouter(&stubResolver{sub: nil}, &stubWeekly{}, &stubMonthly{})

	code, body := getJSON(t, router, "/usage?userId=u1")
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if body["error"] != "Inactive subscription" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
	if body["weeklyLimit"] != float64(10) || body["weeklyCount"] != float64(0) {
		t.Fatalf("expected free limit and zero count, got %v", body)
	}
}

func TestWeeklyUsageInsufficientRole(t *testing.T) {
	sub := &subscription.Subscription{Status: subscription.StatusActive, Type: "pro"}
	router := newUsageRouter(&stubResolver{sub: sub}, &stubWeekly{}, &stubMonthly{})

	code, body := getJSON(t, router, "/usage?userId=u1")
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if body["error"] != "Insufficient permissions" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
}

func TestWeeklyUsageSuccess(t *testing.T) {
	router := newUsageRouter(&stubResolver{sub: proSub()}, &stubWeekly{total: 40}, &stubMonthly{})

	code, body := getJSON(t, router, "/usage?userId=u1")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["weeklyCount"] != float64(40) || body["weeklyLimit"] != float64(100) {
		t.Fatalf("unexpected counts: %v", body)
	}
	if body["remaining"] != float64(60) {
		t.Fatalf("unexpected remaining: %v", body["remaining"])
	}
	debug, ok := body["debug"].(map[string]any)
	if !ok || debug["startOfWeek"] == "" {
		t.Fatalf("missing debug block: %v", body)
	}
}

func TestWeeklyUsageAggregatorFailure(t *testing.T) {
	router := newUsageRouter(
		&stubResolver{sub: proSub()},
		&stubWeekly{err: errors.New("valkey down")},
		&stubMonthly{},
	)

	code, body := getJSON(t, router, "/usage?userId=u1")
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if body["error"] != "Failed to fetch usage count" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
}

func TestMonthlyUsageInactiveSubscription(t *testing.T) {
	sub := &subscription.Subscription{Status: "cancelled", Type: "pro"}
	router := newUsageRouter(&stubResolver{sub: sub}, &stubWeekly{}, &stubMonthly{})

	code, body := getJSON(t, router, "/usage/monthly?userId=u1")
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if body["error"] != "User subscription inactive or missing" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
}

func TestMonthlyUsageExhaustedStillReports(t *testing.T) {
	sub := &subscription.Subscription{Status: subscription.StatusActive, Type: "free"}
	router := newUsageRouter(&stubResolver{sub: sub}, &stubWeekly{}, &stubMonthly{total: 100_500})

	code, body := getJSON(t, router, "/usage/monthly?userId=u1&year=2025&month=3")
	if code != http.StatusOK {
		t.Fatalf("expected 200 even when exhausted, got %d", code)
	}
	usage, ok := body["usage"].(map[string]any)
	if !ok {
		t.Fatalf("missing usage block: %v", body)
	}
	if usage["monthlyCount"] != float64(100_500) {
		t.Fatalf("unexpected count: %v", usage["monthlyCount"])
	}
	if usage["remaining"] != float64(-500) {
		t.Fatalf("remaining must stay negative, got %v", usage["remaining"])
	}
	if usage["yearMonth"] != "2025-03" || usage["nextResetDate"] != "2025-04-01" {
		t.Fatalf("unexpected window fields: %v", usage)
	}
}

func TestMonthlyUsageUnlimitedTier(t *testing.T) {
	sub := &subscription.Subscription{Status: subscription.StatusActive, Type: "ultimate"}
	router := newUsageRouter(&stubResolver{sub: sub}, &stubWeekly{}, &stubMonthly{total: 9_999_999})

	code, body := getJSON(t, router, "/usage/monthly?userId=u1")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	usage := body["usage"].(map[string]any)
	if usage["monthlyLimit"] != nil || usage["remaining"] != nil {
		t.Fatalf("unlimited tier must report null limit and remaining: %v", usage)
	}
}

func TestMonthlyUsageAggregatorFailure(t *testing.T) {
	sub := &subscription.Subscription{Status: subscription.StatusActive, Type: "pro"}
	router := newUsageRouter(
		&stubResolver{sub: sub},
		&stubWeekly{},
		&stubMonthly{err: errors.New("db down")},
	)

	code, body := getJSON(t, router, "/usage/monthly?userId=u1")
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if body["error"] != "获取使用统计失败" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
}
