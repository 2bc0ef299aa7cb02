package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/ai4kingdom/chat-server-go/internal/config"
)

func newTestStore(t *testing.T, pageSize int) *Store {
	mini := miniredis.RunT(t)
	cfg := &config.Config{
		Ledger: config.LedgerConfig{
			URL:          "redis://" + mini.Addr(),
			Enabled:      true,
			DisableCache: true,
			PageSize:     pageSize,
		},
	}
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		mini.Close()
	})
	return store
}

func TestAppendThenSumRange(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	at := time.Date(2025, 3, 18, 10, 0, 0, 0, time.UTC)
	if err := store.Append(ctx, NewMessageRecord("u1", "t1", "hello", 500, at)); err != nil {
		t.Fatalf("append: %v", err)
	}

	from := time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)
	total, err := store.SumRange(ctx, "u1", from, time.Time{})
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if total != 500 {
		t.Fatalf("expected 500, got %d", total)
	}

	// Re-reading does not change the result.
	total, err = store.SumRange(ctx, "u1", from, time.Time{})
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if total != 500 {
		t.Fatalf("expected 500 on re-read, got %d", total)
	}
}

func TestSumRangeEmptyReturnsZero(t *testing.T) {
	store := newTestStore(t, 100)

	total, err := store.SumRange(context.Background(), "nobody", time.Now().Add(-time.Hour), time.Time{})
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected 0, got %d", total)
	}
}

func TestSumRangeSkipsThreadRecords(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	at := time.Date(2025, 3, 18, 10, 0, 0, 0, time.UTC)

	if err := store.Append(ctx, NewThreadRecord("u1", "t1", "asst_1", at)); err != nil {
		t.Fatalf("append thread: %v", err)
	}
	if err := store.Append(ctx, NewMessageRecord("u1", "t1", "hi", 100, at.Add(time.Minute))); err != nil {
		t.Fatalf("append message: %v", err)
	}

	total, err := store.SumRange(ctx, "u1", at.Add(-time.Hour), time.Time{})
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if total != 100 {
		t.Fatalf("expected 100, got %d", total)
	}
}

func TestSumRangeWindowBounds(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	from := time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 23, 0, 0, 0, 0, time.UTC)

	// One record before the window, one inside, one at the exclusive upper bound.
	if err := store.Append(ctx, NewMessageRecord("u1", "t1", "a", 1, from.Add(-time.Second))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, NewMessageRecord("u1", "t1", "b", 10, from.Add(time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, NewMessageRecord("u1", "t1", "c", 100, to)); err != nil {
		t.Fatalf("append: %v", err)
	}

	total, err := store.SumRange(ctx, "u1", from, to)
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if total != 10 {
		t.Fatalf("expected 10, got %d", total)
	}
}

func TestSumRangeFollowsPages(t *testing.T) {
	store := newTestStore(t, 7)
	ctx := context.Background()
	base := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		rec := NewMessageRecord("u1", "t1", "m", 2, base.Add(time.Duration(i)*time.Second))
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	total, err := store.SumRange(ctx, "u1", base.Add(-time.Minute), time.Time{})
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if total != 100 {
		t.Fatalf("expected 100 across pages, got %d", total)
	}
}

func TestActiveThreadReturnsLatest(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	base := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)

	if err := store.Append(ctx, NewThreadRecord("u1", "thread_old", "asst_1", base)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, NewMessageRecord("u1", "thread_old", "hi", 5, base.Add(time.Minute))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, NewThreadRecord("u1", "thread_new", "asst_1", base.Add(2*time.Minute))); err != nil {
		t.Fatalf("append: %v", err)
	}

	threadID, err := store.ActiveThread(ctx, "u1")
	if err != nil {
		t.Fatalf("active thread: %v", err)
	}
	if threadID != "thread_new" {
		t.Fatalf("expected thread_new, got %q", threadID)
	}
}

func TestActiveThreadEmpty(t *testing.T) {
	store := newTestStore(t, 100)

	threadID, err := store.ActiveThread(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("active thread: %v", err)
	}
	if threadID != "" {
		t.Fatalf("expected empty thread id, got %q", threadID)
	}
}

func TestNewStoreFallsBackToMemory(t *testing.T) {
	cfg := &config.Config{
		Ledger: config.LedgerConfig{Enabled: false, Required: false, PageSize: 10},
	}
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("expected memory store, got error: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	at := time.Date(2025, 3, 18, 10, 0, 0, 0, time.UTC)
	if err := store.Append(ctx, NewMessageRecord("u1", "t1", "hi", 30, at)); err != nil {
		t.Fatalf("append: %v", err)
	}

	total, err := store.SumRange(ctx, "u1", at.Add(-time.Hour), time.Time{})
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	if total != 30 {
		t.Fatalf("expected 30, got %d", total)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestNewStoreRequiredButDisabled(t *testing.T) {
	cfg := &config.Config{
		Ledger: config.LedgerConfig{Enabled: false, Required: true},
	}
	if _, err := NewStore(cfg); err == nil {
		t.Fatalf("expected error")
	}
}
