package ledger

// MonthlyUsage 는 사용자·월별 토큰 사용량 집계를 저장하는 DB 모델이다.
type MonthlyUsage struct {
	ID           int64  `gorm:"column:id;primaryKey"`
	UserID       string `gorm:"column:user_id"`
	YearMonth    string `gorm:"column:year_month;type:varchar(7)"`
	TokensUsed   int64  `gorm:"column:tokens_used"`
	RequestCount int64  `gorm:"column:request_count"`
	Version      int64  `gorm:"column:version"`
}

// TableName 은 GORM에서 사용할 테이블명을 반환한다.
func (MonthlyUsage) TableName() string {
	return "monthly_token_usage"
}
