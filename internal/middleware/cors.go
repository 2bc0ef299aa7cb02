package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ai4kingdom/chat-server-go/internal/config"
)

// CORS 는 허용 출처 기반 CORS 미들웨어다.
// 프리플라이트(OPTIONS)는 204 로 응답한다.
func CORS(cfg *config.Config) gin.HandlerFunc {
	origins := []string{}
	if cfg != nil {
		origins = cfg.CORS.AllowedOrigins
	}

	corsConfig := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-WP-Nonce", "X-Requested-With", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}

	return cors.New(corsConfig)
}
