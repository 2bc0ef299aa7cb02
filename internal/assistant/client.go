package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ai4kingdom/chat-server-go/internal/config"
)

var (
	// ErrMissingAPIKey 는 어시스턴트 API 키가 없을 때 반환된다.
	ErrMissingAPIKey = errors.New("missing assistant api key")
	// ErrAssistantNotFound 는 어시스턴트 ID 가 존재하지 않을 때 반환된다.
	ErrAssistantNotFound = errors.New("assistant not found")
)

// APIError 는 어시스턴트 API 의 오류 응답이다.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("assistant api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// Client 는 어시스턴트 API 호출을 담당한다.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient 는 어시스턴트 클라이언트를 생성한다.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Assistant.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Assistant.TimeoutSeconds) * time.Second,
		},
		logger: logger,
		sleep:  sleepContext,
	}, nil
}

// ValidateAssistant 는 어시스턴트 ID 존재 여부를 확인한다.
func (c *Client) ValidateAssistant(ctx context.Context, assistantID string) error {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodGet, "/assistants/"+assistantID, nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return ErrAssistantNotFound
	}
	return err
}

// RetrieveThread 는 기존 스레드를 조회한다.
func (c *Client) RetrieveThread(ctx context.Context, threadID string) (*Thread, error) {
	var thread Thread
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID, nil, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// CreateThread 는 메타데이터를 담은 새 스레드를 생성한다.
func (c *Client) CreateThread(ctx context.Context, metadata map[string]string) (*Thread, error) {
	body := map[string]any{}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	var thread Thread
	if err := c.do(ctx, http.MethodPost, "/threads", body, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// CreateMessage 는 스레드에 사용자 메시지를 추가한다.
func (c *Client) CreateMessage(ctx context.Context, threadID, content string) (*Message, error) {
	body := map[string]any{
		"role":    "user",
		"content": content,
	}
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CreateRun 는 스레드에서 어시스턴트 런을 시작한다.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	body := map[string]any{
		"assistant_id":          assistantID,
		"max_completion_tokens": c.cfg.Assistant.MaxCompletionTokens,
	}
	var run Run
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RetrieveRun 는 런의 현재 상태를 조회한다.
func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListMessages 는 스레드의 메시지 목록을 최신순으로 조회한다.
func (c *Client) ListMessages(ctx context.Context, threadID string) (*MessageList, error) {
	var list MessageList
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ListRunSteps 는 런의 실행 단계 목록을 조회한다.
func (c *Client) ListRunSteps(ctx context.Context, threadID, runID string) (*RunStepList, error) {
	var list RunStepList
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID+"/steps", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	url := strings.TrimRight(c.cfg.Assistant.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Assistant.APIKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("assistant request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope apiErrorEnvelope
		_ = json.Unmarshal(data, &envelope)
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
