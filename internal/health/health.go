package health

import (
	"context"
	"time"

	"github.com/ai4kingdom/chat-server-go/internal/config"
)

var startTime = time.Now()

// Pinger 는 외부 의존성 연결 확인을 추상화한다.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies 는 딥 체크 대상 의존성 모음이다.
type Dependencies struct {
	LedgerStore Pinger
	UsageDB     Pinger
}

// Component 는 상태 구성 요소다.
type Component struct {
	Status string         `json:"status"`
	Detail map[string]any `json:"detail"`
}

// Response 는 상태 응답 본문이다.
type Response struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components"`
}

// Collect 는 헬스 상태를 수집한다.
func Collect(ctx context.Context, cfg *config.Config, deps Dependencies, deepChecks bool) Response {
	if ctx == nil {
		ctx = context.Background()
	}

	components := make(map[string]Component)
	components["app"] = buildAppStatus()
	components["assistant"] = buildAssistantStatus(cfg)
	components["ledger_store"] = buildPingStatus(ctx, deps.LedgerStore, deepChecks)
	components["usage_db"] = buildPingStatus(ctx, deps.UsageDB, deepChecks)

	overall := "ok"
	for _, component := range components {
		if component.Status != "ok" {
			overall = "degraded"
			break
		}
	}

	return Response{
		Status:     overall,
		Components: components,
	}
}

func buildAppStatus() Component {
	return Component{
		Status: "ok",
		Detail: map[string]any{
			"uptime_seconds": int(time.Since(startTime).Seconds()),
		},
	}
}

func buildAssistantStatus(cfg *config.Config) Component {
	apiKeyPresent := false
	baseURL := ""
	timeoutSeconds := 0
	maxAttempts := 0

	if cfg != nil {
		apiKeyPresent = cfg.Assistant.APIKey != ""
		baseURL = cfg.Assistant.BaseURL
		timeoutSeconds = cfg.Assistant.TimeoutSeconds
		maxAttempts = cfg.Assistant.Poll.MaxAttempts
	}

	status := "ok"
	if !apiKeyPresent {
		status = "degraded"
	}

	return Component{
		Status: status,
		Detail: map[string]any{
			"api_key_present":   apiKeyPresent,
			"base_url":          baseURL,
			"timeout_seconds":   timeoutSeconds,
			"poll_max_attempts": maxAttempts,
		},
	}
}

// buildPingStatus 는 의존성 연결 상태를 확인한다.
// Liveness 경로에서는 외부 의존성 장애가 다운 판정으로 이어지지 않도록 shallow 로 유지한다.
func buildPingStatus(ctx context.Context, dep Pinger, deepChecks bool) Component {
	if dep == nil {
		return Component{
			Status: "ok",
			Detail: map[string]any{"enabled": false},
		}
	}
	if !deepChecks {
		return Component{
			Status: "ok",
			Detail: map[string]any{"checked": false},
		}
	}

	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := dep.Ping(checkCtx); err != nil {
		return Component{
			Status: "degraded",
			Detail: map[string]any{
				"checked": true,
				"error":   err.Error(),
			},
		}
	}
	return Component{
		Status: "ok",
		Detail: map[string]any{"checked": true},
	}
}
