package di

import (
	"log/slog"
	"net/http"

	"github.com/ai4kingdom/chat-server-go/internal/config"
	"github.com/ai4kingdom/chat-server-go/internal/ledger"
)

// App: 애플리케이션 구성 요소를 묶는다.
type App struct {
	Server          *http.Server
	Logger          *slog.Logger
	Config          *config.Config
	LedgerStore     *ledger.Store
	UsageRepository *ledger.Repository
	UsageRecorder   *ledger.Recorder
}

// NewApp: App 인스턴스를 생성합니다.
func NewApp(
	server *http.Server,
	logger *slog.Logger,
	cfg *config.Config,
	ledgerStore *ledger.Store,
	usageRepository *ledger.Repository,
	usageRecorder *ledger.Recorder,
) *App {
	return &App{
		Server:          server,
		Logger:          logger,
		Config:          cfg,
		LedgerStore:     ledgerStore,
		UsageRepository: usageRepository,
		UsageRecorder:   usageRecorder,
	}
}

// Close: 앱 리소스를 정리합니다.
func (a *App) Close() {
	if a.LedgerStore != nil {
		a.LedgerStore.Close()
	}
	if a.UsageRecorder != nil {
		a.UsageRecorder.Close()
	}
	if a.UsageRepository != nil {
		a.UsageRepository.Close()
	}
}
