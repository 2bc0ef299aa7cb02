package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ai4kingdom/chat-server-go/internal/config"
)

// NewHTTPServer 는 HTTP 서버를 생성한다.
// 채팅 턴은 런 폴링이 끝날 때까지 응답을 쓰지 못하므로
// 쓰기 타임아웃이 폴링 예산보다 커야 한다.
func NewHTTPServer(cfg *config.Config, router *gin.Engine) *http.Server {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(cfg),
		IdleTimeout:       2 * time.Minute,
	}

	if cfg.HTTP.HTTP2Enabled {
		server.Handler = h2c.NewHandler(router, &http2.Server{})
	}

	return server
}

// writeTimeout 는 폴링 최악 소요와 어시스턴트 API 타임아웃의 합이다. 하한 1분.
func writeTimeout(cfg *config.Config) time.Duration {
	poll := cfg.Assistant.Poll
	budget := time.Duration(poll.MaxAttempts)*poll.MaxDelay() +
		time.Duration(cfg.Assistant.TimeoutSeconds)*time.Second
	if budget < time.Minute {
		budget = time.Minute
	}
	return budget
}
