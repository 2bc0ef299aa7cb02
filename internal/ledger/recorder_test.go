package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ai4kingdom/chat-server-go/internal/config"
)

type fakeMonthlyStore struct {
	mu     sync.Mutex
	calls  int
	tokens map[string]int64
	err    error
}

func newFakeMonthlyStore() *fakeMonthlyStore {
	return &fakeMonthlyStore{tokens: make(map[string]int64)}
}

func (f *fakeMonthlyStore) RecordUsage(_ context.Context, userID, yearMonth string, tokensUsed, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.tokens[userID+"/"+yearMonth] += tokensUsed
	return nil
}

func (f *fakeMonthlyStore) SumMonth(_ context.Context, userID, yearMonth string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[userID+"/"+yearMonth], nil
}

func (f *fakeMonthlyStore) Ping(_ context.Context) error { return nil }
func (f *fakeMonthlyStore) Close()                       {}

func TestRecorderDirectMode(t *testing.T) {
	store := newFakeMonthlyStore()
	recorder := NewRecorder(&config.Config{}, store, nil)
	defer recorder.Close()

	recorder.Record(context.Background(), "u1", "2025-03", 100)
	recorder.Record(context.Background(), "u1", "2025-03", 50)

	total, _ := store.SumMonth(context.Background(), "u1", "2025-03")
	if total != 150 {
		t.Fatalf("expected 150, got %d", total)
	}
}

func TestRecorderIgnoresInvalidInput(t *testing.T) {
	store := newFakeMonthlyStore()
	recorder := NewRecorder(&config.Config{}, store, nil)
	defer recorder.Close()

	recorder.Record(context.Background(), "", "2025-03", 100)
	recorder.Record(context.Background(), "u1", "", 100)
	recorder.Record(context.Background(), "u1", "2025-03", -100)

	total, _ := store.SumMonth(context.Background(), "u1", "2025-03")
	if total != 0 {
		t.Fatalf("expected clamped total 0, got %d", total)
	}
}

func TestRecorderSwallowsStoreFailure(t *testing.T) {
	store := newFakeMonthlyStore()
	store.err = errors.New("db down")
	recorder := NewRecorder(&config.Config{}, store, nil)
	defer recorder.Close()

	// Must not panic or propagate.
	recorder.Record(context.Background(), "u1", "2025-03", 100)
}

func TestRecorderBatchMode(t *testing.T) {
	store := newFakeMonthlyStore()
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			UsageBatchEnabled:              true,
			UsageBatchFlushIntervalSeconds: 1,
			UsageBatchMaxPendingRequests:   2,
		},
	}
	recorder := NewRecorder(cfg, store, nil)

	recorder.Record(context.Background(), "u1", "2025-03", 10)
	recorder.Record(context.Background(), "u1", "2025-03", 20)
	recorder.Close()

	total, _ := store.SumMonth(context.Background(), "u1", "2025-03")
	if total != 30 {
		t.Fatalf("expected accumulated 30, got %d", total)
	}
}

func TestBatcherBackoff(t *testing.T) {
	b := &batcher{flushInterval: time.Second, maxBackoff: 4 * time.Second}

	b.consecutiveFlushFailures = 1
	if backoff := b.computeBackoff(); backoff != time.Second {
		t.Fatalf("unexpected backoff: %v", backoff)
	}

	b.consecutiveFlushFailures = 3
	if backoff := b.computeBackoff(); backoff != 4*time.Second {
		t.Fatalf("unexpected backoff: %v", backoff)
	}

	b.consecutiveFlushFailures = 5
	if backoff := b.computeBackoff(); backoff != 4*time.Second {
		t.Fatalf("unexpected backoff cap: %v", backoff)
	}
}

func TestBatcherShouldLogFailure(t *testing.T) {
	b := &batcher{errorLogMaxInterval: time.Hour}
	b.consecutiveFlushFailures = 1
	if !b.shouldLogFailure() {
		t.Fatalf("expected log on first failure")
	}

	b.consecutiveFlushFailures = 3
	b.lastErrorLoggedAt = time.Now()
	if b.shouldLogFailure() {
		t.Fatalf("did not expect log for non power-of-two")
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	if !isPowerOfTwo(1) || !isPowerOfTwo(2) || !isPowerOfTwo(4) {
		t.Fatalf("expected power of two")
	}
	if isPowerOfTwo(3) || isPowerOfTwo(0) {
		t.Fatalf("unexpected power of two")
	}
}
