package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Kind 는 원장 항목의 종류다. 하나의 물리 원장을 공유한다.
type Kind string

const (
	// KindMessage 는 토큰 소비를 수반하는 대화 기록이다.
	KindMessage Kind = "message"
	// KindThread 는 스레드 참조 기록이다. 사용량 합산에서 제외된다.
	KindThread Kind = "thread"
)

// TokenCount 는 토큰 수다.
// 원장에는 외부에서 유입된 비정상 값이 있을 수 있어
// 숫자가 아니거나 누락된 값은 0으로 강제한다.
type TokenCount int64

// UnmarshalJSON 는 숫자, 숫자 문자열 외의 값을 0으로 처리한다.
func (t *TokenCount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		*t = 0
		return nil
	}

	if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*t = TokenCount(parsed)
		return nil
	}

	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(asString), 10, 64); err == nil {
			*t = TokenCount(parsed)
			return nil
		}
	}

	*t = 0
	return nil
}

// Record 는 원장 항목 하나다. 생성 후 수정·삭제되지 않는다.
type Record struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ThreadID    string     `json:"thread_id,omitempty"`
	AssistantID string     `json:"assistant_id,omitempty"`
	Kind        Kind       `json:"kind"`
	Message     string     `json:"message,omitempty"`
	TokensUsed  TokenCount `json:"tokens_used"`
	Timestamp   time.Time  `json:"timestamp"`
}

// NewMessageRecord 는 대화 1턴의 사용량 기록을 생성한다.
func NewMessageRecord(userID, threadID, message string, tokensUsed int64, at time.Time) Record {
	if tokensUsed < 0 {
		tokensUsed = 0
	}
	return Record{
		ID:         newRecordID(),
		UserID:     userID,
		ThreadID:   threadID,
		Kind:       KindMessage,
		Message:    message,
		TokensUsed: TokenCount(tokensUsed),
		Timestamp:  at,
	}
}

// NewThreadRecord 는 스레드 참조 기록을 생성한다.
func NewThreadRecord(userID, threadID, assistantID string, at time.Time) Record {
	return Record{
		ID:          newRecordID(),
		UserID:      userID,
		ThreadID:    threadID,
		AssistantID: assistantID,
		Kind:        KindThread,
		Timestamp:   at,
	}
}

// Tokens 는 합산 대상 토큰 수를 반환한다. 스레드 참조는 0이다.
func (r Record) Tokens() int64 {
	if r.Kind != KindMessage {
		return 0
	}
	if r.TokensUsed < 0 {
		return 0
	}
	return int64(r.TokensUsed)
}

func newRecordID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(bytes)
}
