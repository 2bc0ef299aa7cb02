package assistant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrRunTimeout 는 폴링 횟수를 모두 소진하고도 런이 끝나지 않았을 때 반환된다.
	ErrRunTimeout = errors.New("assistant run did not complete in time")
	// ErrRunFailed 는 런이 완료 이외의 종료 상태로 끝났을 때 반환된다.
	ErrRunFailed = errors.New("assistant run failed")
)

// PollRun 는 런이 종료 상태에 도달할 때까지 상태를 조회한다.
// 재시도 간격은 base * growth^attempt 로 늘어나며 상한에서 멈춘다.
func (c *Client) PollRun(ctx context.Context, threadID, runID string) (*Run, error) {
	poll := c.cfg.Assistant.Poll
	for attempt := 0; attempt < poll.MaxAttempts; attempt++ {
		run, err := c.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return nil, err
		}
		if run.Terminal() {
			if run.Status != RunStatusCompleted {
				c.logFailedRunSteps(ctx, threadID, runID)
				return run, fmt.Errorf("%w: status=%s%s", ErrRunFailed, run.Status, runErrorDetail(run))
			}
			return run, nil
		}

		delay := pollDelay(poll.BaseDelay(), poll.GrowthFactor, poll.MaxDelay(), attempt)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, ErrRunTimeout
}

// ExtractReply 는 메시지 목록에서 최신 어시스턴트 응답의 text 조각을 이어 붙인다.
func ExtractReply(list *MessageList) string {
	if list == nil {
		return ""
	}
	for _, msg := range list.Data {
		if msg.Role != "assistant" {
			continue
		}
		parts := make([]string, 0, len(msg.Content))
		for _, part := range msg.Content {
			if part.Type != "text" || part.Text == nil {
				continue
			}
			parts = append(parts, part.Text.Value)
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func pollDelay(base time.Duration, growth float64, max time.Duration, attempt int) time.Duration {
	if growth < 1 {
		growth = 1
	}
	scaled := float64(base) * math.Pow(growth, float64(attempt))
	delay := time.Duration(scaled)
	if delay > max {
		delay = max
	}
	if delay < 0 {
		delay = max
	}
	return delay
}

// logFailedRunSteps 는 실패한 런의 단계 상태를 로그로 남긴다. 조회 실패는 무시한다.
func (c *Client) logFailedRunSteps(ctx context.Context, threadID, runID string) {
	if c.logger == nil {
		return
	}
	steps, err := c.ListRunSteps(ctx, threadID, runID)
	if err != nil {
		return
	}
	for _, step := range steps.Data {
		if step.Status != "failed" {
			continue
		}
		fields := []any{"run_id", runID, "step_id", step.ID, "step_type", step.Type}
		if step.LastError != nil {
			fields = append(fields, "code", step.LastError.Code, "message", step.LastError.Message)
		}
		c.logger.Warn("assistant_run_step_failed", fields...)
	}
}

func runErrorDetail(run *Run) string {
	if run == nil || run.LastError == nil {
		return ""
	}
	return fmt.Sprintf(" code=%s message=%s", run.LastError.Code, run.LastError.Message)
}
