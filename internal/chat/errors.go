package chat

import (
	"errors"
	"fmt"

	"github.com/ai4kingdom/chat-server-go/internal/quota"
)

// ErrInvalidAssistant 는 요청한 어시스턴트 ID 가 존재하지 않을 때 반환된다.
var ErrInvalidAssistant = errors.New("invalid assistant id")

// QuotaExceededError 는 월간 한도 소진으로 요청이 거부됐을 때 반환된다.
type QuotaExceededError struct {
	Decision quota.Decision
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded: consumed=%d limit=%d", e.Decision.Consumed, e.Decision.Limit.Tokens)
}

// SubscriptionError 는 구독 상태나 역할 문제로 요청이 거부됐을 때 반환된다.
type SubscriptionError struct {
	Decision quota.Decision
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription rejected: reason=%s", e.Decision.Reason)
}

// QuotaCheckError 는 엄격 모드에서 쿼터 확인 자체가 실패했을 때 반환된다.
type QuotaCheckError struct {
	Decision quota.Decision
}

func (e *QuotaCheckError) Error() string {
	return fmt.Sprintf("quota check failed: %s", e.Decision.Detail)
}
