package subscription

import "strings"

// StatusActive 는 채팅 경로 사용이 허용되는 유일한 구독 상태다.
const StatusActive = "active"

// 멤버십 역할. 주간 사용량 경로는 이 중 하나를 요구한다.
const (
	RoleFreeMember     = "free_member"
	RoleProMember      = "pro_member"
	RoleUltimateMember = "ultimate_member"
)

var memberRoles = map[string]struct{}{
	RoleFreeMember:     {},
	RoleProMember:      {},
	RoleUltimateMember: {},
}

// Subscription 는 외부 멤버십 서비스가 내려주는 구독 정보다.
// 이 시스템이 소유하지 않으며 매 조회마다 새로 가져온다.
type Subscription struct {
	Status string   `json:"status"`
	Type   string   `json:"type"`
	Roles  []string `json:"roles"`
}

// IsActive 는 구독 활성 여부를 반환한다.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == StatusActive
}

// NormalizedType 는 소문자 구독 유형을 반환한다. 비어 있으면 빈 문자열이다.
func (s *Subscription) NormalizedType() string {
	if s == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s.Type))
}

// HasMemberRole 는 멤버 역할 보유 여부를 반환한다.
func (s *Subscription) HasMemberRole() bool {
	if s == nil {
		return false
	}
	for _, role := range s.Roles {
		if _, ok := memberRoles[role]; ok {
			return true
		}
	}
	return false
}
