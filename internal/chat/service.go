package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ai4kingdom/chat-server-go/internal/assistant"
	"github.com/ai4kingdom/chat-server-go/internal/config"
	"github.com/ai4kingdom/chat-server-go/internal/ledger"
	"github.com/ai4kingdom/chat-server-go/internal/metrics"
	"github.com/ai4kingdom/chat-server-go/internal/quota"
)

// AssistantAPI 는 어시스턴트 호출을 추상화한다.
type AssistantAPI interface {
	ValidateAssistant(ctx context.Context, assistantID string) error
	RetrieveThread(ctx context.Context, threadID string) (*assistant.Thread, error)
	CreateThread(ctx context.Context, metadata map[string]string) (*assistant.Thread, error)
	CreateMessage(ctx context.Context, threadID, content string) (*assistant.Message, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (*assistant.Run, error)
	PollRun(ctx context.Context, threadID, runID string) (*assistant.Run, error)
	ListMessages(ctx context.Context, threadID string) (*assistant.MessageList, error)
}

// QuotaGate 는 사전 쿼터 판정을 추상화한다.
type QuotaGate interface {
	CheckMonthly(ctx context.Context, userID string, year int, month time.Month) quota.Decision
}

// Request 는 채팅 1턴 요청이다.
type Request struct {
	UserID        string
	Message       string
	AssistantID   string
	VectorStoreID string
	ThreadID      string
	Type          string
}

// Result 는 채팅 1턴의 결과다.
type Result struct {
	Reply      string
	ThreadID   string
	TokensUsed int64
}

// Service 는 쿼터 판정, 어시스턴트 실행, 사용량 기록을 묶는 오케스트레이터다.
type Service struct {
	cfg      *config.Config
	gate     QuotaGate
	client   AssistantAPI
	store    ledger.Storage
	recorder *ledger.Recorder
	metrics  *metrics.Store
	logger   *slog.Logger
	locks    *quota.KeyedMutex
	now      func() time.Time
}

// NewService 는 채팅 서비스를 생성한다.
func NewService(
	cfg *config.Config,
	gate QuotaGate,
	client AssistantAPI,
	store ledger.Storage,
	recorder *ledger.Recorder,
	metricsStore *metrics.Store,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		gate:     gate,
		client:   client,
		store:    store,
		recorder: recorder,
		metrics:  metricsStore,
		logger:   logger,
		locks:    quota.NewKeyedMutex(),
		now:      time.Now,
	}
}

// Chat 은 채팅 1턴을 수행한다.
// 쿼터 판정 후 어시스턴트 런을 돌리고, 사용량 기록은 응답을 막지 않는
// 베스트 에포트로 남긴다. 엄격 모드에서는 같은 사용자 요청을 직렬화해
// 한도 경계에서의 동시 초과를 막는다.
func (s *Service) Chat(ctx context.Context, req Request) (Result, error) {
	if s.cfg.Quota.StrictMode {
		unlock := s.locks.Lock(req.UserID)
		defer unlock()
	}

	decision := s.gate.CheckMonthly(ctx, req.UserID, 0, 0)
	if !decision.Allowed {
		return Result{}, s.denialError(decision)
	}

	if err := s.client.ValidateAssistant(ctx, req.AssistantID); err != nil {
		if errors.Is(err, assistant.ErrAssistantNotFound) {
			return Result{}, ErrInvalidAssistant
		}
		return Result{}, fmt.Errorf("validate assistant: %w", err)
	}

	threadID, err := s.resolveThread(ctx, req)
	if err != nil {
		return Result{}, err
	}

	if _, err := s.client.CreateMessage(ctx, threadID, req.Message); err != nil {
		return Result{}, fmt.Errorf("create message: %w", err)
	}

	start := s.now()
	run, err := s.client.CreateRun(ctx, threadID, req.AssistantID)
	if err != nil {
		s.metrics.RecordError(s.now().Sub(start))
		return Result{}, fmt.Errorf("create run: %w", err)
	}

	run, err = s.client.PollRun(ctx, threadID, run.ID)
	if err != nil {
		s.metrics.RecordError(s.now().Sub(start))
		return Result{}, fmt.Errorf("poll run: %w", err)
	}

	list, err := s.client.ListMessages(ctx, threadID)
	if err != nil {
		s.metrics.RecordError(s.now().Sub(start))
		return Result{}, fmt.Errorf("list messages: %w", err)
	}

	tokensUsed := run.TotalTokens()
	s.metrics.RecordSuccess(s.now().Sub(start), tokensUsed)
	s.recordUsage(ctx, req, threadID, tokensUsed)

	return Result{
		Reply:      assistant.ExtractReply(list),
		ThreadID:   threadID,
		TokensUsed: tokensUsed,
	}, nil
}

func (s *Service) denialError(decision quota.Decision) error {
	switch decision.Reason {
	case quota.ReasonLimitExhausted:
		s.metrics.RecordDenial("monthly", string(decision.Reason))
		return &QuotaExceededError{Decision: decision}
	case quota.ReasonInactive, quota.ReasonInsufficientRole:
		s.metrics.RecordDenial("monthly", string(decision.Reason))
		return &SubscriptionError{Decision: decision}
	case quota.ReasonCheckFailed:
		// 판정 실패는 허용이 아니라 거부다. 집계를 읽지 못한 채 턴을 돌리면
		// 한도를 넘은 사용자도 통과한다.
		s.metrics.RecordDenial("monthly", string(decision.Reason))
		return &QuotaCheckError{Decision: decision}
	default:
		return &SubscriptionError{Decision: decision}
	}
}

// resolveThread 는 사용할 스레드를 결정한다.
// 요청 스레드가 유효하면 그대로 쓰고, 없으면 원장의 최근 스레드를 찾고,
// 그래도 없으면 메타데이터를 담아 새로 만든다.
func (s *Service) resolveThread(ctx context.Context, req Request) (string, error) {
	if req.ThreadID != "" {
		thread, err := s.client.RetrieveThread(ctx, req.ThreadID)
		if err == nil {
			return thread.ID, nil
		}
		s.logger.Warn("thread_retrieve_failed",
			"user_id", req.UserID,
			"thread_id", req.ThreadID,
			"error", err,
		)
	}

	if previous, err := s.store.ActiveThread(ctx, req.UserID); err == nil && previous != "" {
		if thread, err := s.client.RetrieveThread(ctx, previous); err == nil {
			return thread.ID, nil
		}
	}

	metadata := map[string]string{
		"userId": req.UserID,
	}
	if req.Type != "" {
		metadata["type"] = req.Type
	}
	if req.AssistantID != "" {
		metadata["assistantId"] = req.AssistantID
	}
	if req.VectorStoreID != "" {
		metadata["vectorStoreId"] = req.VectorStoreID
	}

	thread, err := s.client.CreateThread(ctx, metadata)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}

	ref := ledger.NewThreadRecord(req.UserID, thread.ID, req.AssistantID, s.now().UTC())
	if err := s.store.Append(ctx, ref); err != nil {
		s.logger.Warn("thread_record_save_failed",
			"user_id", req.UserID,
			"thread_id", thread.ID,
			"error", err,
		)
	}
	return thread.ID, nil
}

// recordUsage 는 원장 기록과 월간 누적을 병렬 베스트 에포트로 남긴다.
// 어느 쪽이 실패해도 응답은 이미 확보된 상태다.
func (s *Service) recordUsage(ctx context.Context, req Request, threadID string, tokensUsed int64) {
	at := s.now().UTC()
	rec := ledger.NewMessageRecord(req.UserID, threadID, req.Message, tokensUsed, at)
	yearMonth := quota.YearMonthKey(at.Year(), at.Month())
	detached := context.WithoutCancel(ctx)

	var group errgroup.Group
	group.Go(func() error {
		if err := s.store.Append(detached, rec); err != nil {
			s.logger.Warn("ledger_save_failed",
				"user_id", req.UserID,
				"thread_id", threadID,
				"error", err,
			)
		}
		return nil
	})
	group.Go(func() error {
		s.recorder.Record(detached, req.UserID, yearMonth, tokensUsed)
		return nil
	})
	_ = group.Wait()
}
