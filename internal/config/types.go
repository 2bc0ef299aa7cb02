package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// AssistantConfig 는 어시스턴트 API 연결 설정이다.
type AssistantConfig struct {
	BaseURL             string
	APIKey              string
	TimeoutSeconds      int
	MaxCompletionTokens int
	Poll                PollConfig
}

// PollConfig 는 run 상태 폴링의 재시도 정책이다.
// 지연은 base * growth^attempt 로 증가하며 max 로 상한을 둔다.
type PollConfig struct {
	MaxAttempts  int
	BaseDelayMS  int
	GrowthFactor float64
	MaxDelayMS   int
}

// BaseDelay 는 폴링 기본 지연을 반환한다.
func (p PollConfig) BaseDelay() time.Duration {
	return time.Duration(p.BaseDelayMS) * time.Millisecond
}

// MaxDelay 는 폴링 지연 상한을 반환한다.
func (p PollConfig) MaxDelay() time.Duration {
	return time.Duration(p.MaxDelayMS) * time.Millisecond
}

// MembershipConfig 는 구독 조회 엔드포인트 설정이다.
type MembershipConfig struct {
	URL            string
	TimeoutSeconds int
}

// LedgerConfig 는 사용량 원장(Valkey) 연결 설정이다.
type LedgerConfig struct {
	URL          string
	Enabled      bool
	Required     bool
	DisableCache bool
	PageSize     int
}

// QuotaConfig 는 쿼터 게이트 설정이다.
// StrictMode 는 같은 사용자의 채팅 턴을 직렬화해 한도 경계의 동시 초과를 막는다.
type QuotaConfig struct {
	LimitsFile string
	StrictMode bool
}

// CORSConfig 는 허용 출처 설정이다.
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig 는 로깅 설정이다.
type LoggingConfig struct {
	Level      string
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// HTTPConfig 는 HTTP 서버 설정이다.
type HTTPConfig struct {
	Host         string
	Port         int
	HTTP2Enabled bool
}

// HTTPAuthConfig 는 API 키 인증 설정이다.
type HTTPAuthConfig struct {
	APIKey string
}

// HTTPRateLimitConfig 는 요청 제한 설정이다.
type HTTPRateLimitConfig struct {
	RequestsPerMinute int
	CacheSize         int
	CacheTTLSeconds   int
}

// DatabaseConfig 는 월간 집계 DB 연결 및 배치 설정이다.
type DatabaseConfig struct {
	Host                                 string
	Port                                 int
	Name                                 string
	User                                 string
	Password                             string
	MinPool                              int
	MaxPool                              int
	ConnMaxLifetimeMinutes               int
	ConnMaxIdleTimeMinutes               int
	UsageBatchEnabled                    bool
	UsageBatchFlushIntervalSeconds       int
	UsageBatchFlushTimeoutSeconds        int
	UsageBatchMaxPendingRequests         int
	UsageBatchMaxBackoffSeconds          int
	UsageBatchErrorLogMaxIntervalSeconds int
}

// DSN 는 DB 접속 문자열을 반환한다.
func (d DatabaseConfig) DSN() string {
	host := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	u := &url.URL{
		Scheme: "postgresql",
		Host:   host,
		Path:   "/" + d.Name,
	}
	if d.Password == "" {
		u.User = url.User(d.User)
	} else {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

// Config 는 애플리케이션 전체 설정이다.
// 프로세스 시작 시 한 번 만들어 모든 구성 요소 생성자에 전달한다.
type Config struct {
	Assistant     AssistantConfig
	Membership    MembershipConfig
	Ledger        LedgerConfig
	Quota         QuotaConfig
	CORS          CORSConfig
	Logging       LoggingConfig
	HTTP          HTTPConfig
	HTTPAuth      HTTPAuthConfig
	HTTPRateLimit HTTPRateLimitConfig
	Database      DatabaseConfig
}
