package subscription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/ai4kingdom/chat-server-go/internal/config"
)

// Resolver 는 외부 멤버십 서비스에서 구독 정보를 조회한다.
type Resolver struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewResolver 는 구독 리졸버를 생성한다.
func NewResolver(cfg *config.Config, logger *slog.Logger) (*Resolver, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	timeout := time.Duration(cfg.Membership.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Resolver{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type resolveRequest struct {
	UserID string `json:"userId"`
}

type resolveResponse struct {
	Subscription *Subscription `json:"subscription"`
}

// Resolve 는 구독 정보를 조회한다.
// 전송 오류나 비정상 응답은 호출자에게 전파하지 않고 nil 구독으로 귀결된다.
// 재시도와 캐싱은 하지 않는다. 매 쿼터 검사마다 새로 조회한다.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Subscription, error) {
	payload, err := json.Marshal(resolveRequest{UserID: userID})
	if err != nil {
		r.logWarn("subscription_encode_failed", userID, err)
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Membership.URL, bytes.NewReader(payload))
	if err != nil {
		r.logWarn("subscription_request_failed", userID, err)
		return nil, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logWarn("subscription_fetch_failed", userID, err)
		return nil, nil
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logWarn("subscription_fetch_failed", userID, fmt.Errorf("unexpected status %d", resp.StatusCode))
		return nil, nil
	}

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.logWarn("subscription_decode_failed", userID, err)
		return nil, nil
	}

	return body.Subscription, nil
}

func (r *Resolver) logWarn(event string, userID string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(event, "user_id", userID, "err", err)
}
