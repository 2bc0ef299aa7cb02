package di

import (
	"fmt"

	"github.com/ai4kingdom/chat-server-go/internal/assistant"
	"github.com/ai4kingdom/chat-server-go/internal/chat"
	"github.com/ai4kingdom/chat-server-go/internal/config"
	"github.com/ai4kingdom/chat-server-go/internal/handler"
	"github.com/ai4kingdom/chat-server-go/internal/health"
	"github.com/ai4kingdom/chat-server-go/internal/ledger"
	"github.com/ai4kingdom/chat-server-go/internal/metrics"
	"github.com/ai4kingdom/chat-server-go/internal/quota"
	"github.com/ai4kingdom/chat-server-go/internal/server"
	"github.com/ai4kingdom/chat-server-go/internal/subscription"
)

// InitializeApp 은 애플리케이션 의존성을 초기화하고 App 인스턴스를 반환한다.
func InitializeApp() (*App, error) {
	cfg, err := config.ProvideConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	metricsStore := metrics.NewStore()

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	limits, err := quota.LoadLimits(cfg.Quota.LimitsFile)
	if err != nil {
		return nil, fmt.Errorf("quota limits: %w", err)
	}

	ledgerStore, err := ledger.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("ledger store: %w", err)
	}

	usageRepository := ledger.NewRepository(cfg, logger)
	usageRecorder := ledger.NewRecorder(cfg, usageRepository, logger)

	resolver, err := subscription.NewResolver(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("subscription resolver: %w", err)
	}

	gate := quota.NewGate(limits, resolver, ledgerStore, usageRepository, logger)

	assistantClient, err := assistant.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("assistant client: %w", err)
	}

	chatService := chat.NewService(cfg, gate, assistantClient, ledgerStore, usageRecorder, metricsStore, logger)

	chatHandler := handler.NewChatHandler(cfg, chatService, logger)
	usageHandler := handler.NewUsageHandler(cfg, gate, metricsStore, logger)

	healthDeps := health.Dependencies{
		LedgerStore: ledgerStore,
		UsageDB:     usageRepository,
	}

	router := handler.NewRouter(cfg, logger, chatHandler, usageHandler, healthDeps, metricsStore)
	httpServer := server.NewHTTPServer(cfg, router)

	return NewApp(httpServer, logger, cfg, ledgerStore, usageRepository, usageRecorder), nil
}
