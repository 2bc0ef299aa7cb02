package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/ai4kingdom/chat-server-go/internal/subscription"
)

// Reason 는 결정 사유 코드다.
type Reason string

const (
	ReasonAllowed          Reason = "allowed"
	ReasonInactive         Reason = "subscription_inactive"
	ReasonInsufficientRole Reason = "insufficient_permissions"
	ReasonLimitExhausted   Reason = "limit_exhausted"
	ReasonCheckFailed      Reason = "check_failed"
)

// Decision 는 쿼터 판정 결과와 핸들러가 응답을 구성하는 데 필요한 수치를 담는다.
// Limit.Unlimited 인 경우 Remaining 은 의미가 없다.
type Decision struct {
	Allowed          bool
	Reason           Reason
	SubscriptionType string
	Subscription     *subscription.Subscription
	Limit            Limit
	Consumed         int64
	Remaining        int64
	NextResetDate    string
	YearMonth        string
	WindowStart      time.Time
	Detail           string
}

// SubscriptionResolver 는 회원 구독 상태 조회를 추상화한다.
type SubscriptionResolver interface {
	Resolve(ctx context.Context, userID string) (*subscription.Subscription, error)
}

// WeeklyAggregator 는 주간 윈도 구간 합산을 추상화한다.
type WeeklyAggregator interface {
	SumRange(ctx context.Context, userID string, from, to time.Time) (int64, error)
}

// MonthlyAggregator 는 월간 누적 사용량 조회를 추상화한다.
type MonthlyAggregator interface {
	SumMonth(ctx context.Context, userID, yearMonth string) (int64, error)
}

// Gate 는 구독 상태와 누적 사용량으로 요청 허용 여부를 판정한다.
type Gate struct {
	limits   Limits
	resolver SubscriptionResolver
	weekly   WeeklyAggregator
	monthly  MonthlyAggregator
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate 는 쿼터 게이트를 생성한다.
func NewGate(
	limits Limits,
	resolver SubscriptionResolver,
	weekly WeeklyAggregator,
	monthly MonthlyAggregator,
	logger *slog.Logger,
) *Gate {
	return &Gate{
		limits:   limits,
		resolver: resolver,
		weekly:   weekly,
		monthly:  monthly,
		logger:   logger,
		now:      time.Now,
	}
}

// Limits 는 게이트에 적용된 한도 테이블을 반환한다.
func (g *Gate) Limits() Limits {
	return g.limits
}

// CheckMonthly 는 월간 토큰 쿼터를 판정한다. year/month 가 0 이면 현재 달을 쓴다.
// 역할 검사는 주간 경로에만 적용되고 여기서는 하지 않는다.
func (g *Gate) CheckMonthly(ctx context.Context, userID string, year int, month time.Month) Decision {
	if year == 0 || month == 0 {
		now := g.now().UTC()
		year, month = now.Year(), now.Month()
	}

	dec := Decision{
		Reason:        ReasonAllowed,
		YearMonth:     YearMonthKey(year, month),
		NextResetDate: MonthlyResetDate(year, month),
	}

	sub := g.resolveSubscription(ctx, userID)
	dec.Subscription = sub
	if sub == nil || !sub.IsActive() {
		dec.Reason = ReasonInactive
		dec.Limit = g.limits.Monthly.ForType(TierFree)
		return dec
	}
	dec.SubscriptionType = sub.NormalizedType()
	dec.Limit = g.limits.Monthly.ForType(dec.SubscriptionType)

	consumed, err := g.monthly.SumMonth(ctx, userID, dec.YearMonth)
	if err != nil {
		g.logger.Warn("monthly_usage_query_failed", "user_id", userID, "error", err)
		dec.Reason = ReasonCheckFailed
		dec.Detail = err.Error()
		return dec
	}
	dec.Consumed = consumed

	if dec.Limit.Unlimited {
		dec.Allowed = true
		return dec
	}

	// 남은 양은 음수 그대로 보고한다. 허용 여부만 0 경계로 판정한다.
	dec.Remaining = dec.Limit.Tokens - consumed
	if dec.Remaining <= 0 {
		dec.Reason = ReasonLimitExhausted
		return dec
	}
	dec.Allowed = true
	return dec
}

// CheckWeekly 는 주간 쿼터를 판정한다. 윈도는 가장 최근 일요일 00:00 UTC 부터다.
func (g *Gate) CheckWeekly(ctx context.Context, userID string) Decision {
	now := g.now().UTC()
	start := StartOfWeek(now)

	dec := Decision{
		Reason:        ReasonAllowed,
		WindowStart:   start,
		NextResetDate: WeeklyResetDate(start),
	}

	sub := g.resolveSubscription(ctx, userID)
	dec.Subscription = sub
	if sub == nil || !sub.IsActive() {
		dec.Reason = ReasonInactive
		dec.Limit = g.limits.Weekly.ForType(TierFree)
		return dec
	}
	dec.SubscriptionType = sub.NormalizedType()
	dec.Limit = g.limits.Weekly.ForType(dec.SubscriptionType)

	if !sub.HasMemberRole() {
		dec.Reason = ReasonInsufficientRole
		return dec
	}

	consumed, err := g.weekly.SumRange(ctx, userID, start, now)
	if err != nil {
		g.logger.Warn("weekly_usage_query_failed", "user_id", userID, "error", err)
		dec.Reason = ReasonCheckFailed
		dec.Detail = err.Error()
		return dec
	}
	dec.Consumed = consumed

	if dec.Limit.Unlimited {
		dec.Allowed = true
		return dec
	}

	// 남은 양은 음수 그대로 보고한다. 허용 여부만 0 경계로 판정한다.
	dec.Remaining = dec.Limit.Tokens - consumed
	if dec.Remaining <= 0 {
		dec.Reason = ReasonLimitExhausted
		return dec
	}
	dec.Allowed = true
	return dec
}

func (g *Gate) resolveSubscription(ctx context.Context, userID string) *subscription.Subscription {
	sub, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		g.logger.Warn("subscription_resolve_failed", "user_id", userID, "error", err)
		return nil
	}
	return sub
}
