package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ai4kingdom/chat-server-go/internal/assistant"
	"github.com/ai4kingdom/chat-server-go/internal/config"
	"github.com/ai4kingdom/chat-server-go/internal/ledger"
	"github.com/ai4kingdom/chat-server-go/internal/metrics"
	"github.com/ai4kingdom/chat-server-go/internal/quota"
)

type fakeGate struct {
	decision quota.Decision
}

func (f *fakeGate) CheckMonthly(_ context.Context, _ string, _ int, _ time.Month) quota.Decision {
	return f.decision
}

type fakeAssistant struct {
	mu             sync.Mutex
	validateErr    error
	retrieveErr    error
	threadsCreated int
	runsCreated    int
	reply          string
	tokens         int64
}

func (f *fakeAssistant) ValidateAssistant(_ context.Context, _ string) error {
	return f.validateErr
}

func (f *fakeAssistant) RetrieveThread(_ context.Context, threadID string) (*assistant.Thread, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return &assistant.Thread{ID: threadID}, nil
}

func (f *fakeAssistant) CreateThread(_ context.Context, metadata map[string]string) (*assistant.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadsCreated++
	return &assistant.Thread{ID: "thread_new", Metadata: metadata}, nil
}

func (f *fakeAssistant) CreateMessage(_ context.Context, threadID, content string) (*assistant.Message, error) {
	return &assistant.Message{ID: "msg_1", Role: "user"}, nil
}

func (f *fakeAssistant) CreateRun(_ context.Context, threadID, assistantID string) (*assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runsCreated++
	return &assistant.Run{ID: "run_1", ThreadID: threadID, Status: assistant.RunStatusQueued}, nil
}

func (f *fakeAssistant) PollRun(_ context.Context, threadID, runID string) (*assistant.Run, error) {
	return &assistant.Run{
		ID:       runID,
		ThreadID: threadID,
		Status:   assistant.RunStatusCompleted,
		Usage:    &assistant.RunUsage{TotalTokens: f.tokens},
	}, nil
}

func (f *fakeAssistant) ListMessages(_ context.Context, _ string) (*assistant.MessageList, error) {
	return &assistant.MessageList{Data: []assistant.Message{
		{
			Role:    "assistant",
			Content: []assistant.ContentPart{{Type: "text", Text: &assistant.ContentText{Value: f.reply}}},
		},
	}}, nil
}

type fakeStorage struct {
	mu           sync.Mutex
	records      []ledger.Record
	activeThread string
	appendErr    error
}

func (f *fakeStorage) IsEnabled() bool { return true }

func (f *fakeStorage) Append(_ context.Context, rec ledger.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStorage) SumRange(_ context.Context, _ string, _, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStorage) ActiveThread(_ context.Context, _ string) (string, error) {
	return f.activeThread, nil
}

func (f *fakeStorage) Ping(_ context.Context) error { return nil }
func (f *fakeStorage) Close()                       {}

type fakeMonthly struct {
	mu     sync.Mutex
	tokens map[string]int64
}

func (f *fakeMonthly) RecordUsage(_ context.Context, userID, yearMonth string, tokensUsed, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokens == nil {
		f.tokens = make(map[string]int64)
	}
	f.tokens[userID+"/"+yearMonth] += tokensUsed
	return nil
}

func (f *fakeMonthly) SumMonth(_ context.Context, userID, yearMonth string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[userID+"/"+yearMonth], nil
}

func (f *fakeMonthly) Ping(_ context.Context) error { return nil }
func (f *fakeMonthly) Close()                       {}

func newTestService(gate QuotaGate, api AssistantAPI, storage ledger.Storage, monthly ledger.MonthlyStore) *Service {
	cfg := &config.Config{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := ledger.NewRecorder(cfg, monthly, logger)
	svc := NewService(cfg, gate, api, storage, recorder, metrics.NewStore(), logger)
	svc.now = func() time.Time {
		return time.Date(2025, 3, 19, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func allowedDecision() quota.Decision {
	return quota.Decision{Allowed: true, Reason: quota.ReasonAllowed, YearMonth: "2025-03"}
}

func TestChatSuccessRecordsUsageBothSides(t *testing.T) {
	api := &fakeAssistant{reply: "hello there", tokens: 30}
	storage := &fakeStorage{}
	monthly := &fakeMonthly{}
	svc := newTestService(&fakeGate{decision: allowedDecision()}, api, storage, monthly)

	result, err := svc.Chat(context.Background(), Request{
		UserID:      "u1",
		Message:     "hi",
		AssistantID: "asst_1",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.Reply != "hello there" || result.TokensUsed != 30 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ThreadID != "thread_new" {
		t.Fatalf("unexpected thread: %s", result.ThreadID)
	}

	storage.mu.Lock()
	defer storage.mu.Unlock()
	var messages, threads int
	for _, rec := range storage.records {
		switch rec.Kind {
		case ledger.KindMessage:
			messages++
			if rec.Tokens() != 30 {
				t.Fatalf("unexpected recorded tokens: %d", rec.Tokens())
			}
		case ledger.KindThread:
			threads++
		}
	}
	if messages != 1 || threads != 1 {
		t.Fatalf("unexpected ledger records: %d messages, %d threads", messages, threads)
	}

	total, _ := monthly.SumMonth(context.Background(), "u1", "2025-03")
	if total != 30 {
		t.Fatalf("expected monthly total 30, got %d", total)
	}
}

func TestChatDeniedOnExhaustedQuota(t *testing.T) {
	gate := &fakeGate{decision: quota.Decision{
		Allowed:       false,
		Reason:        quota.ReasonLimitExhausted,
		NextResetDate: "2025-04-01",
	}}
	api := &fakeAssistant{}
	svc := newTestService(gate, api, &fakeStorage{}, &fakeMonthly{})

	_, err := svc.Chat(context.Background(), Request{UserID: "u1", Message: "hi"})
	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if quotaErr.Decision.NextResetDate != "2025-04-01" {
		t.Fatalf("unexpected decision: %+v", quotaErr.Decision)
	}
	if api.runsCreated != 0 {
		t.Fatalf("assistant must not run on deny")
	}
}

func TestChatDeniedOnInactiveSubscription(t *testing.T) {
	gate := &fakeGate{decision: quota.Decision{Allowed: false, Reason: quota.ReasonInactive}}
	svc := newTestService(gate, &fakeAssistant{}, &fakeStorage{}, &fakeMonthly{})

	_, err := svc.Chat(context.Background(), Request{UserID: "u1", Message: "hi"})
	var subErr *SubscriptionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubscriptionError, got %v", err)
	}
}

func TestChatDeniedWhenQuotaCheckFails(t *testing.T) {
	gate := &fakeGate{decision: quota.Decision{
		Allowed: false,
		Reason:  quota.ReasonCheckFailed,
		Detail:  "db down",
	}}
	api := &fakeAssistant{reply: "ok", tokens: 1}
	svc := newTestService(gate, api, &fakeStorage{}, &fakeMonthly{})

	// 집계를 읽지 못하면 기본 설정에서도 턴이 거부되어야 한다.
	_, err := svc.Chat(context.Background(), Request{UserID: "u1", Message: "hi"})
	var checkErr *QuotaCheckError
	if !errors.As(err, &checkErr) {
		t.Fatalf("expected QuotaCheckError, got %v", err)
	}
	if checkErr.Decision.Detail != "db down" {
		t.Fatalf("unexpected detail: %q", checkErr.Decision.Detail)
	}
	if api.runsCreated != 0 {
		t.Fatalf("assistant must not run when the check fails")
	}
}

func TestChatStrictModeStillDeniesOnCheckFailure(t *testing.T) {
	gate := &fakeGate{decision: quota.Decision{
		Allowed: false,
		Reason:  quota.ReasonCheckFailed,
		Detail:  "db down",
	}}
	svc := newTestService(gate, &fakeAssistant{}, &fakeStorage{}, &fakeMonthly{})
	svc.cfg = &config.Config{Quota: config.QuotaConfig{StrictMode: true}}

	_, err := svc.Chat(context.Background(), Request{UserID: "u1", Message: "hi"})
	var checkErr *QuotaCheckError
	if !errors.As(err, &checkErr) {
		t.Fatalf("expected QuotaCheckError, got %v", err)
	}
}

func TestChatInvalidAssistant(t *testing.T) {
	api := &fakeAssistant{validateErr: assistant.ErrAssistantNotFound}
	svc := newTestService(&fakeGate{decision: allowedDecision()}, api, &fakeStorage{}, &fakeMonthly{})

	_, err := svc.Chat(context.Background(), Request{UserID: "u1", Message: "hi", AssistantID: "bad"})
	if !errors.Is(err, ErrInvalidAssistant) {
		t.Fatalf("expected ErrInvalidAssistant, got %v", err)
	}
}

func TestChatReusesRequestedThread(t *testing.T) {
	api := &fakeAssistant{reply: "ok"}
	svc := newTestService(&fakeGate{decision: allowedDecision()}, api, &fakeStorage{}, &fakeMonthly{})

	result, err := svc.Chat(context.Background(), Request{
		UserID:   "u1",
		Message:  "hi",
		ThreadID: "thread_existing",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.ThreadID != "thread_existing" {
		t.Fatalf("expected existing thread, got %s", result.ThreadID)
	}
	if api.threadsCreated != 0 {
		t.Fatalf("must not create a new thread")
	}
}

func TestChatFallsBackToLedgerThread(t *testing.T) {
	api := &fakeAssistant{reply: "ok"}
	storage := &fakeStorage{activeThread: "thread_prev"}
	svc := newTestService(&fakeGate{decision: allowedDecision()}, api, storage, &fakeMonthly{})

	result, err := svc.Chat(context.Background(), Request{UserID: "u1", Message: "hi"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.ThreadID != "thread_prev" {
		t.Fatalf("expected ledger thread, got %s", result.ThreadID)
	}
	if api.threadsCreated != 0 {
		t.Fatalf("must not create a new thread")
	}
}

func TestChatSwallowsLedgerAppendFailure(t *testing.T) {
	api := &fakeAssistant{reply: "ok", tokens: 5}
	storage := &fakeStorage{appendErr: errors.New("valkey down")}
	svc := newTestService(&fakeGate{decision: allowedDecision()}, api, storage, &fakeMonthly{})

	result, err := svc.Chat(context.Background(), Request{UserID: "u1", Message: "hi"})
	if err != nil {
		t.Fatalf("bookkeeping failure must not fail the chat: %v", err)
	}
	if result.Reply != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
}
