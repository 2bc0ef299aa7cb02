package quota

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// 구독 등급.
const (
	TierFree     = "free"
	TierPro      = "pro"
	TierUltimate = "ultimate"
)

// Limit 는 윈도 하나에 적용되는 한도다. Unlimited 면 Tokens 는 무시된다.
type Limit struct {
	Tokens    int64
	Unlimited bool
}

// TokenLimit 는 유한 한도를 생성한다.
func TokenLimit(tokens int64) Limit {
	return Limit{Tokens: tokens}
}

// UnlimitedLimit 는 무제한 한도를 생성한다.
func UnlimitedLimit() Limit {
	return Limit{Unlimited: true}
}

// Table 는 등급별 한도 테이블이다.
type Table map[string]Limit

// ForType 는 구독 유형의 한도를 반환한다. 미지·누락 유형은 free 로 본다.
func (t Table) ForType(subscriptionType string) Limit {
	key := strings.ToLower(strings.TrimSpace(subscriptionType))
	if limit, ok := t[key]; ok {
		return limit
	}
	return t[TierFree]
}

// Limits 는 월간·주간 한도 테이블 쌍이다.
// 두 테이블의 단위는 다르다. 월간은 토큰 수, 주간은 원본 시스템이
// 쓰던 훨씬 작은 단위 수(10/100)로, 의도가 확인될 때까지 통합하지 않는다.
type Limits struct {
	Monthly Table
	Weekly  Table
}

// DefaultLimits 는 내장 기본 한도를 반환한다.
func DefaultLimits() Limits {
	return Limits{
		Monthly: Table{
			TierFree:     TokenLimit(100_000),
			TierPro:      TokenLimit(1_000_000),
			TierUltimate: UnlimitedLimit(),
		},
		Weekly: Table{
			TierFree:     TokenLimit(10),
			TierPro:      TokenLimit(100),
			TierUltimate: UnlimitedLimit(),
		},
	}
}

type limitsFile struct {
	Monthly map[string]int64 `yaml:"monthly"`
	Weekly  map[string]int64 `yaml:"weekly"`
}

// LoadLimits 는 YAML 파일에서 한도 테이블을 읽는다.
// 음수 값은 무제한을 뜻한다. path 가 비어 있으면 기본값을 반환한다.
func LoadLimits(path string) (Limits, error) {
	limits := DefaultLimits()
	if strings.TrimSpace(path) == "" {
		return limits, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Limits{}, fmt.Errorf("read limits file: %w", err)
	}

	var file limitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Limits{}, fmt.Errorf("parse limits file: %w", err)
	}

	applyOverrides(limits.Monthly, file.Monthly)
	applyOverrides(limits.Weekly, file.Weekly)
	return limits, nil
}

func applyOverrides(table Table, overrides map[string]int64) {
	for tier, value := range overrides {
		key := strings.ToLower(strings.TrimSpace(tier))
		if key == "" {
			continue
		}
		if value < 0 {
			table[key] = UnlimitedLimit()
			continue
		}
		table[key] = TokenLimit(value)
	}
}
