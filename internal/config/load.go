package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

var (
	configOnce  sync.Once
	configValue *Config
)

var defaultAllowedOrigins = []string{
	"https://ai4kingdom.com",
	"http://localhost:3000",
}

// Load 는 환경 변수 기반 설정을 로드한다.
func Load() *Config {
	configOnce.Do(func() {
		_ = godotenv.Load()
		configValue = buildConfig()
	})
	return configValue
}

// ProvideConfig 는 설정을 로드하고 검증한다.
func ProvideConfig() (*Config, error) {
	cfg := Load()
	if cfg == nil {
		return nil, errors.New("config not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 는 설정 유효성을 검사한다.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Assistant.BaseURL) == "" {
		return errors.New("assistant base url required")
	}
	if strings.TrimSpace(c.Membership.URL) == "" {
		return errors.New("membership url required")
	}
	if c.Assistant.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("poll max attempts must be positive: %d", c.Assistant.Poll.MaxAttempts)
	}
	if c.Assistant.Poll.GrowthFactor < 1.0 {
		return fmt.Errorf("poll growth factor must be >= 1.0: %f", c.Assistant.Poll.GrowthFactor)
	}
	return nil
}

// LogEnvStatus 는 환경 설정 상태를 로그로 남긴다.
func LogEnvStatus(cfg *Config, logger *slog.Logger) {
	if logger == nil || cfg == nil {
		return
	}

	envFilePresent := fileExists(".env")
	logger.Debug(
		"env_status",
		"env_file", envFilePresent,
		"assistant_base_url", cfg.Assistant.BaseURL,
		"assistant_key", maskSecret(cfg.Assistant.APIKey),
		"membership_url", cfg.Membership.URL,
		"ledger_url", cfg.Ledger.URL,
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Name,
		"cors_origins", len(cfg.CORS.AllowedOrigins),
		"quota_strict", cfg.Quota.StrictMode,
	)

	if cfg.Assistant.APIKey == "" {
		logger.Error("env_missing_assistant_api_key")
	}
}

func buildConfig() *Config {
	return &Config{
		Assistant: AssistantConfig{
			BaseURL:             getEnvString("ASSISTANT_BASE_URL", "https://api.openai.com/v1"),
			APIKey:              getEnvString("ASSISTANT_API_KEY", ""),
			TimeoutSeconds:      getEnvInt("ASSISTANT_TIMEOUT", 30),
			MaxCompletionTokens: getEnvInt("ASSISTANT_MAX_COMPLETION_TOKENS", 1000),
			Poll: PollConfig{
				MaxAttempts:  max(1, getEnvNonNegativeInt("ASSISTANT_POLL_MAX_ATTEMPTS", 30)),
				BaseDelayMS:  max(1, getEnvNonNegativeInt("ASSISTANT_POLL_BASE_DELAY_MS", 1000)),
				GrowthFactor: getEnvFloat("ASSISTANT_POLL_GROWTH_FACTOR", 1.2),
				MaxDelayMS:   max(1, getEnvNonNegativeInt("ASSISTANT_POLL_MAX_DELAY_MS", 3000)),
			},
		},
		Membership: MembershipConfig{
			URL:            getEnvString("MEMBERSHIP_URL", "https://ai4kingdom.com/wp-json/custom/v1/validate_session"),
			TimeoutSeconds: getEnvInt("MEMBERSHIP_TIMEOUT", 10),
		},
		Ledger: LedgerConfig{
			URL:          getEnvString("LEDGER_STORE_URL", "redis://localhost:6379"),
			Enabled:      getEnvBool("LEDGER_STORE_ENABLED", true),
			Required:     getEnvBool("LEDGER_STORE_REQUIRED", false),
			DisableCache: getEnvBool("LEDGER_STORE_DISABLE_CACHE", false),
			PageSize:     max(1, getEnvNonNegativeInt("LEDGER_PAGE_SIZE", 100)),
		},
		Quota: QuotaConfig{
			LimitsFile: getEnvString("QUOTA_LIMITS_FILE", ""),
			StrictMode: getEnvBool("QUOTA_STRICT_MODE", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", defaultAllowedOrigins),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			LogDir:     getEnvString("LOG_DIR", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 1),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 30),
			MaxAgeDays: getEnvInt("LOG_FILE_MAX_AGE_DAYS", 7),
			Compress:   getEnvBool("LOG_FILE_COMPRESS", true),
		},
		HTTP: HTTPConfig{
			Host:         getEnvString("HTTP_HOST", "127.0.0.1"),
			Port:         getEnvInt("HTTP_PORT", 40631),
			HTTP2Enabled: getEnvBool("HTTP2_ENABLED", true),
		},
		HTTPAuth: HTTPAuthConfig{
			APIKey: getEnvString("HTTP_API_KEY", ""),
		},
		HTTPRateLimit: HTTPRateLimitConfig{
			RequestsPerMinute: getEnvNonNegativeInt("HTTP_RATE_LIMIT_RPM", 0),
			CacheSize:         max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_SIZE", 10000)),
			CacheTTLSeconds:   max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_TTL_SECONDS", 120)),
		},
		Database: DatabaseConfig{
			Host:                                 getEnvString("DB_HOST", "localhost"),
			Port:                                 getEnvInt("DB_PORT", 5432),
			Name:                                 getEnvString("DB_NAME", "chatusage"),
			User:                                 getEnvString("DB_USER", "chatusage"),
			Password:                             getEnvString("DB_PASSWORD", ""),
			MinPool:                              getEnvInt("DB_MIN_POOL", 1),
			MaxPool:                              getEnvInt("DB_MAX_POOL", 5),
			ConnMaxLifetimeMinutes:               getEnvNonNegativeInt("DB_CONN_MAX_LIFETIME_MINUTES", 60),
			ConnMaxIdleTimeMinutes:               getEnvNonNegativeInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
			UsageBatchEnabled:                    getEnvBool("DB_USAGE_BATCH_ENABLED", false),
			UsageBatchFlushIntervalSeconds:       max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_FLUSH_INTERVAL_SECONDS", 1)),
			UsageBatchFlushTimeoutSeconds:        max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_FLUSH_TIMEOUT_SECONDS", 5)),
			UsageBatchMaxPendingRequests:         max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_MAX_PENDING_REQUESTS", 50)),
			UsageBatchMaxBackoffSeconds:          getEnvNonNegativeInt("DB_USAGE_BATCH_MAX_BACKOFF_SECONDS", 60),
			UsageBatchErrorLogMaxIntervalSeconds: getEnvNonNegativeInt("DB_USAGE_BATCH_ERROR_LOG_MAX_INTERVAL_SECONDS", 60),
		},
	}
}
