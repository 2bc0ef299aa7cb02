package ledger

import (
	"context"
	"log/slog"

	"github.com/ai4kingdom/chat-server-go/internal/config"
)

// MonthlyStore 는 월간 집계 저장소 인터페이스다.
// 테스트에서 mock 구현을 주입할 수 있도록 한다.
type MonthlyStore interface {
	// RecordUsage 사용자·월 단위 누적 저장
	RecordUsage(ctx context.Context, userID string, yearMonth string, tokensUsed int64, requestCount int64) error

	// SumMonth 월 키 합계 조회
	SumMonth(ctx context.Context, userID string, yearMonth string) (int64, error)

	// Ping 연결 확인
	Ping(ctx context.Context) error

	// Close 리소스 정리
	Close()
}

// Repository가 MonthlyStore 인터페이스를 구현하는지 컴파일 타임 확인
var _ MonthlyStore = (*Repository)(nil)

// Recorder 는 대화 1턴의 월간 사용량을 저장하거나 배치로 적재한다.
// 기록 실패는 응답을 막지 않는다. 로그만 남긴다.
type Recorder struct {
	store   MonthlyStore
	batcher *batcher
	logger  *slog.Logger
}

// NewRecorder 는 설정에 따라 배치 사용 여부를 결정해 Recorder를 생성한다.
func NewRecorder(cfg *config.Config, store MonthlyStore, logger *slog.Logger) *Recorder {
	recorder := &Recorder{
		store:  store,
		logger: logger,
	}

	if cfg != nil && cfg.Database.UsageBatchEnabled {
		recorder.batcher = newBatcher(cfg, store, logger)
		recorder.batcher.start()
		if logger != nil {
			logger.Info(
				"usage_db_batch_enabled",
				"flush_interval_seconds", cfg.Database.UsageBatchFlushIntervalSeconds,
				"flush_timeout_seconds", cfg.Database.UsageBatchFlushTimeoutSeconds,
				"max_pending_requests", cfg.Database.UsageBatchMaxPendingRequests,
				"max_backoff_seconds", cfg.Database.UsageBatchMaxBackoffSeconds,
				"error_log_max_interval_seconds", cfg.Database.UsageBatchErrorLogMaxIntervalSeconds,
			)
		}
	}

	return recorder
}

// Record 는 1턴의 토큰 사용량을 월 키에 기록한다.
func (r *Recorder) Record(ctx context.Context, userID string, yearMonth string, tokensUsed int64) {
	if r == nil || r.store == nil {
		return
	}
	if userID == "" || yearMonth == "" {
		return
	}
	if tokensUsed < 0 {
		tokensUsed = 0
	}

	if r.batcher != nil {
		r.batcher.add(userID, yearMonth, tokensUsed, 1)
		return
	}

	if err := r.store.RecordUsage(ctx, userID, yearMonth, tokensUsed, 1); err != nil {
		if r.logger != nil {
			r.logger.Warn("usage_db_save_failed", "user_id", userID, "year_month", yearMonth, "err", err)
		}
	}
}

// Close 는 배치 플러셔를 중지한다.
func (r *Recorder) Close() {
	if r == nil || r.batcher == nil {
		return
	}
	r.batcher.stop()
}
