package ledger

import (
	"context"
	"time"
)

// Storage 는 사용량 원장 인터페이스다.
// 테스트에서 mock 구현을 주입할 수 있도록 한다.
type Storage interface {
	// IsEnabled 저장소 활성화 여부
	IsEnabled() bool

	// Append 원장 항목 1건 추가 (원자적)
	Append(ctx context.Context, rec Record) error

	// SumRange 반개구간 [from, to) 사용량 합산. to 가 zero 값이면 상한 없음.
	SumRange(ctx context.Context, userID string, from, to time.Time) (int64, error)

	// ActiveThread 최근 스레드 참조 조회. 없으면 ("", nil)
	ActiveThread(ctx context.Context, userID string) (string, error)

	// Ping 연결 확인
	Ping(ctx context.Context) error

	// Close 리소스 정리
	Close()
}

// Store가 Storage 인터페이스를 구현하는지 컴파일 타임 확인
var _ Storage = (*Store)(nil)
