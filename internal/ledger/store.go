package ledger

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/ai4kingdom/chat-server-go/internal/config"
)

// ErrStoreDisabled 는 저장소 비활성 오류다.
var ErrStoreDisabled = errors.New("ledger store disabled")

type storeBackend int

const (
	storeBackendMemory storeBackend = iota
	storeBackendValkey
)

// Store 는 Valkey 기반 사용량 원장이다.
// 사용자별 sorted set 하나에 기록·스레드 참조가 함께 들어가며
// 점수는 기록 시각(unix milli)이다.
type Store struct {
	client   valkey.Client
	cfg      *config.Config
	enabled  bool
	backend  storeBackend
	pageSize int64

	mu      sync.RWMutex
	records map[string][]Record
}

// NewStore 는 원장 저장소를 생성한다.
func NewStore(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	pageSize := int64(cfg.Ledger.PageSize)
	if pageSize <= 0 {
		pageSize = 100
	}

	if !cfg.Ledger.Enabled {
		if cfg.Ledger.Required {
			return nil, errors.New("ledger store required but disabled")
		}
		return newMemoryStore(cfg, pageSize), nil
	}

	conn, err := parseStoreURL(cfg.Ledger.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ledger store url: %w", err)
	}

	var tlsConfig *tls.Config
	if conn.useTLS {
		host, _, splitErr := net.SplitHostPort(conn.addr)
		if splitErr != nil {
			return nil, fmt.Errorf("parse ledger store addr: %w", splitErr)
		}
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		TLSConfig:    tlsConfig,
		Username:     conn.username,
		Password:     conn.password,
		InitAddress:  []string{conn.addr},
		SelectDB:     conn.selectDB,
		DisableCache: cfg.Ledger.DisableCache,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}

	return &Store{
		client:   client,
		cfg:      cfg,
		enabled:  true,
		backend:  storeBackendValkey,
		pageSize: pageSize,
	}, nil
}

func newMemoryStore(cfg *config.Config, pageSize int64) *Store {
	return &Store{
		cfg:      cfg,
		enabled:  true,
		backend:  storeBackendMemory,
		pageSize: pageSize,
		records:  make(map[string][]Record),
	}
}

// IsEnabled 는 저장소 활성화 여부를 반환한다.
func (s *Store) IsEnabled() bool {
	return s.enabled
}

// Close 는 Valkey 연결을 종료한다.
func (s *Store) Close() {
	if s == nil {
		return
	}
	if s.backend == storeBackendValkey && s.client != nil {
		s.client.Close()
	}
}

// recordKey 사용자별 원장 키
func (s *Store) recordKey(userID string) string {
	return fmt.Sprintf("ledger:%s:records", userID)
}

// Append 는 원장 항목 1건을 추가한다.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if !s.enabled {
		return ErrStoreDisabled
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if s.backend == storeBackendMemory {
		return s.appendMemory(rec)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}

	score := float64(rec.Timestamp.UnixMilli())
	cmd := s.client.B().Zadd().Key(s.recordKey(rec.UserID)).ScoreMember().ScoreMember(score, string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	return nil
}

// SumRange 는 [from, to) 범위의 message 기록 토큰을 합산한다.
// 결과가 한 페이지를 넘으면 커서를 따라가며 전부 읽는다.
func (s *Store) SumRange(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	if !s.enabled {
		return 0, ErrStoreDisabled
	}
	if s.backend == storeBackendMemory {
		return s.sumRangeMemory(userID, from, to), nil
	}

	minScore := strconv.FormatInt(from.UnixMilli(), 10)
	maxScore := "+inf"
	if !to.IsZero() {
		maxScore = "(" + strconv.FormatInt(to.UnixMilli(), 10)
	}

	key := s.recordKey(userID)
	var total int64
	var offset int64
	for {
		cmd := s.client.B().Zrangebyscore().Key(key).Min(minScore).Max(maxScore).Limit(offset, s.pageSize).Build()
		items, err := s.client.Do(ctx, cmd).AsStrSlice()
		if err != nil {
			return 0, fmt.Errorf("scan ledger range: %w", err)
		}

		for _, item := range items {
			var rec Record
			if err := json.Unmarshal([]byte(item), &rec); err != nil {
				continue // skip invalid entries
			}
			total += rec.Tokens()
		}

		if int64(len(items)) < s.pageSize {
			return total, nil
		}
		offset += int64(len(items))
	}
}

// ActiveThread 는 가장 최근 스레드 참조의 스레드 ID를 반환한다.
func (s *Store) ActiveThread(ctx context.Context, userID string) (string, error) {
	if !s.enabled {
		return "", ErrStoreDisabled
	}
	if s.backend == storeBackendMemory {
		return s.activeThreadMemory(userID), nil
	}

	key := s.recordKey(userID)
	var offset int64
	for {
		cmd := s.client.B().Zrevrangebyscore().Key(key).Max("+inf").Min("-inf").Limit(offset, s.pageSize).Build()
		items, err := s.client.Do(ctx, cmd).AsStrSlice()
		if err != nil {
			return "", fmt.Errorf("scan ledger threads: %w", err)
		}

		for _, item := range items {
			var rec Record
			if err := json.Unmarshal([]byte(item), &rec); err != nil {
				continue
			}
			if rec.Kind == KindThread && rec.ThreadID != "" {
				return rec.ThreadID, nil
			}
		}

		if int64(len(items)) < s.pageSize {
			return "", nil
		}
		offset += int64(len(items))
	}
}

// Ping 는 Valkey 연결을 확인한다.
func (s *Store) Ping(ctx context.Context) error {
	if !s.enabled {
		return ErrStoreDisabled
	}
	if s.backend == storeBackendMemory {
		return nil
	}

	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping valkey: %w", err)
	}
	return nil
}

func (s *Store) appendMemory(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := append(s.records[rec.UserID], rec)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	s.records[rec.UserID] = records
	return nil
}

func (s *Store) sumRangeMemory(userID string, from, to time.Time) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, rec := range s.records[userID] {
		if rec.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !rec.Timestamp.Before(to) {
			continue
		}
		total += rec.Tokens()
	}
	return total
}

func (s *Store) activeThreadMemory(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records[userID]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Kind == KindThread && records[i].ThreadID != "" {
			return records[i].ThreadID
		}
	}
	return ""
}
