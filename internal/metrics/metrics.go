package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store 는 채팅 호출·쿼터 판정 통계를 저장한다.
// 내부 카운터는 스냅샷 응답용이고, 같은 값이 prometheus 레지스트리에도 기록된다.
type Store struct {
	totalTurns      int64
	totalErrors     int64
	totalDenials    int64
	totalTokens     int64
	totalDurationMs int64

	registry         *prometheus.Registry
	chatTurns        *prometheus.CounterVec
	quotaDenials     *prometheus.CounterVec
	tokensConsumed   prometheus.Counter
	assistantLatency prometheus.Histogram
}

// NewStore 는 통계 저장소를 생성한다.
func NewStore() *Store {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Store{
		registry: registry,
		chatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Completed chat turns by outcome.",
		}, []string{"outcome"}),
		quotaDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_denials_total",
			Help: "Denied quota checks by window and reason.",
		}, []string{"window", "reason"}),
		tokensConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_tokens_consumed_total",
			Help: "Total tokens reported by assistant runs.",
		}),
		assistantLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_run_duration_seconds",
			Help:    "End to end assistant run latency including polling.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

// Registry 는 /metrics 노출용 레지스트리를 반환한다.
func (s *Store) Registry() *prometheus.Registry {
	return s.registry
}

// RecordSuccess 는 성공한 채팅 턴을 기록한다.
func (s *Store) RecordSuccess(duration time.Duration, tokensUsed int64) {
	atomic.AddInt64(&s.totalTurns, 1)
	atomic.AddInt64(&s.totalTokens, tokensUsed)
	atomic.AddInt64(&s.totalDurationMs, duration.Milliseconds())

	s.chatTurns.WithLabelValues("success").Inc()
	s.tokensConsumed.Add(float64(tokensUsed))
	s.assistantLatency.Observe(duration.Seconds())
}

// RecordError 는 실패한 채팅 턴을 기록한다.
func (s *Store) RecordError(duration time.Duration) {
	atomic.AddInt64(&s.totalTurns, 1)
	atomic.AddInt64(&s.totalErrors, 1)
	atomic.AddInt64(&s.totalDurationMs, duration.Milliseconds())

	s.chatTurns.WithLabelValues("error").Inc()
	s.assistantLatency.Observe(duration.Seconds())
}

// RecordDenial 는 쿼터 거부를 기록한다.
func (s *Store) RecordDenial(window, reason string) {
	atomic.AddInt64(&s.totalDenials, 1)
	s.quotaDenials.WithLabelValues(window, reason).Inc()
}

// Snapshot 는 통계 스냅샷을 반환한다.
func (s *Store) Snapshot() map[string]float64 {
	totalTurns := atomic.LoadInt64(&s.totalTurns)
	totalErrors := atomic.LoadInt64(&s.totalErrors)
	totalDenials := atomic.LoadInt64(&s.totalDenials)
	totalTokens := atomic.LoadInt64(&s.totalTokens)
	durationMs := atomic.LoadInt64(&s.totalDurationMs)

	avgDuration := 0.0
	if totalTurns > 0 {
		avgDuration = float64(durationMs) / float64(totalTurns)
	}

	return map[string]float64{
		"total_turns":       float64(totalTurns),
		"total_errors":      float64(totalErrors),
		"total_denials":     float64(totalDenials),
		"total_tokens":      float64(totalTokens),
		"total_duration_ms": float64(durationMs),
		"avg_duration_ms":   avgDuration,
	}
}
