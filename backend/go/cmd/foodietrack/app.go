package main

import (
	"context"
	"errors"
	"fmt"

	"foodietrack/backend/go/internal/analysis"
	"foodietrack/backend/go/internal/audioarchive"
	"foodietrack/backend/go/internal/config"
	"foodietrack/backend/go/internal/database/kafka"
	"foodietrack/backend/go/internal/database/milvus"
	"foodietrack/backend/go/internal/database/minio"
	"foodietrack/backend/go/internal/database/redis"
	"foodietrack/backend/go/internal/database/sqldb"
	"foodietrack/backend/go/internal/docindex"
	"foodietrack/backend/go/internal/embedding"
	"foodietrack/backend/go/internal/events"
	"foodietrack/backend/go/internal/identity"
	"foodietrack/backend/go/internal/llm"
	"foodietrack/backend/go/internal/metrics"
	"foodietrack/backend/go/internal/preference_service/api"
	prefservice "foodietrack/backend/go/internal/preference_service/service"
	prefstore "foodietrack/backend/go/internal/preference_service/store"
	recservice "foodietrack/backend/go/internal/recommendation_service/service"
	"foodietrack/backend/go/internal/speech"
	voiceservice "foodietrack/backend/go/internal/voice_service/service"
	voicestore "foodietrack/backend/go/internal/voice_service/store"
	"foodietrack/backend/go/pkg/circuitbreaker"
	httpclient "foodietrack/backend/go/pkg/http"
	"foodietrack/backend/go/pkg/httpmiddleware"
	"foodietrack/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// memoryCacheBytes 是未配置 Redis 时进程内推荐缓存的上限。
const memoryCacheBytes = 8 << 20

// app 持有进程内所有长生命周期的依赖。
type app struct {
	Router  *gin.Engine
	DB      *gorm.DB
	Metrics *metrics.Metrics

	log     *logger.Logger
	closers []func() error
}

// newApp 按配置组装依赖。只有数据库和身份认证是必需的，其余外部服务在未配置或初始化失败时降级。
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{log: logger.New(cfg.App.Name, "", ""), Metrics: metrics.New()}
	if err := a.wire(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *config.AppConfig) error {
	var err error

	a.DB, err = sqldb.Open(&cfg.Databases.SQL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { return sqldb.Close(a.DB) })
	a.log.Info("Database connection established")

	if err := ensureSchema(ctx, a.DB); err != nil {
		a.log.WithErr(err).Warn("Database schema bootstrap failed, continuing")
	}

	verifier, err := newVerifier(cfg.Auth, a.httpClient("auth0", cfg.Middleware.CircuitBreaker))
	if err != nil {
		return err
	}

	handlerOpts := []api.HandlerOption{
		api.WithMaxUpload(cfg.Server.MaxUploadMB << 20),
		api.WithHealthCheck("sql", func(ctx context.Context) error { return sqldb.HealthCheck(ctx, a.DB) }),
	}

	// 偏好服务与事件发布
	prefOpts := []prefservice.Option{prefservice.WithMetrics(a.Metrics)}
	if w, err := kafka.NewWriter(ctx, &cfg.Databases.Kafka); err != nil {
		a.log.WithErr(err).Warn("Kafka unavailable, preference events disabled")
	} else if w != nil {
		pub := events.NewKafkaPublisher(w)
		a.closers = append(a.closers, pub.Close)
		prefOpts = append(prefOpts, prefservice.WithPublisher(pub))
		a.log.Info("Kafka preference event publisher initialized")
	}
	prefs := prefservice.NewService(prefstore.NewStore(a.DB), prefOpts...)

	// LLM
	var model llm.LLM
	if m, err := llm.NewClient(ctx, cfg.LLM); err != nil {
		a.log.WithErr(err).Warn("LLM unavailable, falling back to rule-based analysis and ranking")
	} else {
		a.closers = append(a.closers, m.Close)
		model = llm.NewGuarded(m, a.breaker("llm", cfg.Middleware.CircuitBreaker), a.Metrics)
		a.log.Info("LLM client initialized: " + cfg.LLM.Provider)
	}

	// 文档索引
	index, indexCheck, err := a.newDocIndex(ctx, cfg)
	if err != nil {
		a.log.WithErr(err).Warn("Document index unavailable")
		index = docindex.Nop{}
	} else if indexCheck != nil {
		handlerOpts = append(handlerOpts, api.WithHealthCheck(cfg.DocIndex.Provider, indexCheck))
	}
	handlerOpts = append(handlerOpts, api.WithDocIndex(index, cfg.DocIndex.TopK))

	// 语音
	voiceOpts := []voiceservice.Option{
		voiceservice.WithIndex(index),
		voiceservice.WithHistory(voicestore.NewStore(a.DB)),
	}
	if model != nil {
		voiceOpts = append(voiceOpts, voiceservice.WithAnalyzer(analysis.NewAnalyzer(model, 0)))
	}
	if mc, err := minio.NewClient(ctx, &cfg.Databases.MinIO); err != nil {
		a.log.WithErr(err).Warn("MinIO unavailable, audio will not be archived")
	} else if mc != nil {
		voiceOpts = append(voiceOpts, voiceservice.WithArchive(audioarchive.New(mc, cfg.Databases.MinIO.Bucket)))
		handlerOpts = append(handlerOpts, api.WithHealthCheck("minio", func(ctx context.Context) error {
			return minio.HealthCheck(ctx, mc, cfg.Databases.MinIO.Bucket)
		}))
	}
	transcriber, err := speech.NewTranscriber(cfg.Speech, a.httpClient(cfg.Speech.Provider, cfg.Middleware.CircuitBreaker))
	if err != nil {
		a.log.WithErr(err).Warn("Speech-to-text unavailable")
	}
	handlerOpts = append(handlerOpts, api.WithVoice(voiceservice.NewService(transcriber, prefs, voiceOpts...)))

	// 推荐
	recOpts := []recservice.Option{recservice.WithMetrics(a.Metrics)}
	if model != nil {
		recOpts = append(recOpts, recservice.WithLLM(model))
	}
	cacheTTL := config.Duration(cfg.Databases.Redis.TTL)
	rdb, err := redis.NewClient(ctx, &cfg.Databases.Redis)
	if err != nil {
		a.log.WithErr(err).Warn("Redis unavailable, using in-process recommendation cache")
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		recOpts = append(recOpts, recservice.WithCache(recservice.NewRedisCache(rdb, "foodietrack:rec:"), cacheTTL))
		handlerOpts = append(handlerOpts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return redis.HealthCheck(ctx, rdb)
		}))
	} else if mem, err := recservice.NewMemoryCache(memoryCacheBytes); err == nil {
		recOpts = append(recOpts, recservice.WithCache(mem, cacheTTL))
	}
	handlerOpts = append(handlerOpts, api.WithRecommendations(recservice.NewService(prefs, recOpts...)))

	var limiter *httpmiddleware.KeyedLimiter
	if rl := cfg.Middleware.RateLimiter; rl.Enabled {
		limiter = httpmiddleware.NewKeyedLimiter(rl.Rate, rl.Burst)
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	a.Router = api.SetupRouter(api.NewHandler(prefs, handlerOpts...), api.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		Verifier:    verifier,
		Metrics:     a.Metrics,
		RateLimiter: limiter,
	})
	return nil
}

// newDocIndex 按 provider 创建文档索引，返回的健康检查可能为 nil。
func (a *app) newDocIndex(ctx context.Context, cfg *config.AppConfig) (docindex.Index, api.HealthCheck, error) {
	switch cfg.DocIndex.Provider {
	case "backboard":
		return docindex.NewBackboard(cfg.DocIndex.Backboard, a.httpClient("backboard", cfg.Middleware.CircuitBreaker)), nil, nil
	case "milvus":
		emb, err := embedding.NewModel(ctx, cfg.Embedding)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, emb.Close)
		mc, err := milvus.NewClient(ctx, &cfg.Databases.Milvus)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, mc.Close)
		if err := mc.EnsureCollection(ctx); err != nil {
			return nil, nil, err
		}
		return docindex.NewMilvus(mc, emb, a.Metrics), mc.HealthCheck, nil
	default:
		return docindex.Nop{}, nil, nil
	}
}

// breaker 创建一个把状态变化写入指标和日志的熔断器；未启用时返回 nil。
func (a *app) breaker(name string, cfg config.CircuitBreakerConfig) *circuitbreaker.Breaker {
	if !cfg.Enabled {
		return nil
	}
	return circuitbreaker.New(name, circuitbreaker.Settings{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          config.Duration(cfg.Timeout),
		OnStateChange:    a.onBreakerStateChange,
	})
}

func (a *app) httpClient(name string, cfg config.CircuitBreakerConfig) *httpclient.Client {
	return httpclient.NewClient(name, cfg, httpclient.WithStateChange(a.onBreakerStateChange))
}

func (a *app) onBreakerStateChange(name string, from, to circuitbreaker.State) {
	a.Metrics.SetBreakerState(name, int(to))
	a.log.WithField("upstream", name).Warn(fmt.Sprintf("circuit breaker %s -> %s", from, to))
}

// Close 按与创建相反的顺序释放资源。
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newVerifier 配置了 Auth0 时校验 RS256 令牌，否则退回到 HS256 共享密钥。
func newVerifier(cfg config.AuthConfig, client *httpclient.Client) (identity.Verifier, error) {
	if cfg.Auth0Domain != "" {
		return identity.NewAuth0Verifier(cfg.Auth0Domain, cfg.Auth0Audience, config.Duration(cfg.JWKSCacheTTL), client)
	}
	if cfg.JwtSecret != "" {
		return identity.NewHMACVerifier(cfg.JwtSecret)
	}
	return nil, errors.New("no authentication configured: set auth.auth0Domain or auth.jwtSecret")
}
