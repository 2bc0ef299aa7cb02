package quota

import (
	"fmt"
	"time"
)

// StartOfWeek 는 기준 시각이 속한 주의 시작(가장 최근 일요일 00:00 UTC)을 반환한다.
// 일요일인 날은 그 날 자정이 곧 주 시작이다.
func StartOfWeek(now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, -int(now.Weekday()))
}

// WeeklyResetDate 는 주간 윈도 리셋 날짜(주 시작 + 7일)를 YYYY-MM-DD 로 반환한다.
func WeeklyResetDate(start time.Time) string {
	return start.AddDate(0, 0, 7).Format("2006-01-02")
}

// YearMonthKey 는 월간 윈도 키를 YYYY-MM 으로 만든다.
func YearMonthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// MonthlyResetDate 는 다음 달 1일을 YYYY-MM-01 로 반환한다. 12월은 다음 해 1월로 넘어간다.
func MonthlyResetDate(year int, month time.Month) string {
	next := int(month) + 1
	if next > 12 {
		next = 1
		year++
	}
	return fmt.Sprintf("%04d-%02d-01", year, next)
}
