package assistant

// Thread 는 어시스턴트 대화 스레드다.
type Thread struct {
	ID       string            `json:"id"`
	Object   string            `json:"object"`
	Metadata map[string]string `json:"metadata"`
}

// Message 는 스레드 내 메시지다.
type Message struct {
	ID      string        `json:"id"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart 는 메시지 본문 조각이다. 현재는 text 타입만 사용한다.
type ContentPart struct {
	Type string       `json:"type"`
	Text *ContentText `json:"text,omitempty"`
}

// ContentText 는 text 조각의 값이다.
type ContentText struct {
	Value string `json:"value"`
}

// MessageList 는 메시지 목록 응답이다. 기본 정렬은 최신순이다.
type MessageList struct {
	Data []Message `json:"data"`
}

// 런 상태 값.
const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
	RunStatusCancelled  = "cancelled"
	RunStatusExpired    = "expired"
	RunStatusIncomplete = "incomplete"
)

// Run 는 어시스턴트 실행 단위다.
type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    string    `json:"status"`
	Usage     *RunUsage `json:"usage,omitempty"`
	LastError *RunError `json:"last_error,omitempty"`
}

// RunUsage 는 런이 소비한 토큰 수다.
type RunUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// RunError 는 실패한 런의 오류 정보다.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunStep 는 런 내부 실행 단계다. 실패 원인 추적에 쓴다.
type RunStep struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// RunStepList 는 런 단계 목록 응답이다.
type RunStepList struct {
	Data []RunStep `json:"data"`
}

// TotalTokens 는 런 사용량을 반환한다. 사용량 정보가 없으면 0 이다.
func (r *Run) TotalTokens() int64 {
	if r == nil || r.Usage == nil {
		return 0
	}
	return r.Usage.TotalTokens
}

// Terminal 는 런이 종료 상태인지 반환한다.
func (r *Run) Terminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete:
		return true
	default:
		return false
	}
}
