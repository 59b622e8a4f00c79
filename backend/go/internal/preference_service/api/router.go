package api

import (
	"net/http"
	"time"

	"foodietrack/backend/go/internal/identity"
	"foodietrack/backend/go/internal/metrics"
	"foodietrack/backend/go/pkg/httpmiddleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig 包含路由需要的中间件依赖。
type RouterConfig struct {
	CORSOrigins []string
	Verifier    identity.Verifier
	Metrics     *metrics.Metrics
	RateLimiter *httpmiddleware.KeyedLimiter // 为 nil 时不限流
}

// SetupRouter 配置和返回一个 Gin 引擎实例。
func SetupRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.RequestLogger(serviceName))
	r.Use(cfg.Metrics.Middleware())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	// 公开路由
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	// 需要认证的路由
	authed := r.Group("/")
	authed.Use(AuthMiddleware(cfg.Verifier))
	if cfg.RateLimiter != nil {
		authed.Use(httpmiddleware.RateLimit(cfg.RateLimiter, httpmiddleware.ByUserOrIP))
	}
	{
		authed.GET("/", h.Root)

		prefs := authed.Group("/preferences")
		{
			prefs.POST("/", h.CreatePreference)
			prefs.GET("/", h.ListPreferences)
			prefs.GET("/export", h.ExportPreferences)
			prefs.POST("/record", h.RecordPreferences)
			prefs.PUT("/:id", h.UpdatePreference)
			prefs.DELETE("/:id", h.DeletePreference)
		}

		voice := authed.Group("/voice")
		{
			voice.POST("/analyze", h.AnalyzeVoice)
			voice.GET("/history", h.VoiceHistory)
		}

		authed.POST("/recommendations/", h.Recommend)
		authed.POST("/store-transcript", h.StoreTranscript)
		authed.POST("/transcripts/search", h.SearchTranscripts)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// corsConfig 允许配置的来源携带凭证访问。列表为空或包含 "*" 时允许所有来源，此时不允许携带凭证。
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", httpmiddleware.RequestIDHeader},
		ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			origins = nil
			break
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
