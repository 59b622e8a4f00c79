package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"foodietrack/backend/go/internal/models"
	"foodietrack/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// RequestIDHeader carries the trace id in both directions.
	RequestIDHeader = "X-Request-ID"
	// ContextKeyTraceID is the gin context key holding the trace id.
	ContextKeyTraceID = "trace_id"
	// ContextKeyUserID is the gin context key the auth middleware fills.
	ContextKeyUserID = "user_id"
)

// RequestID assigns a trace id to each request, reusing an incoming X-Request-ID when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ContextKeyTraceID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// TraceID returns the trace id set by RequestID.
func TraceID(c *gin.Context) string {
	return c.GetString(ContextKeyTraceID)
}

// RequestLogger logs one structured entry per request once the handler chain returns.
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log := logger.New(serviceName, TraceID(c), c.GetString(ContextKeyUserID)).
			WithRequest(models.RequestInfo{
				Method:     c.Request.Method,
				Path:       path,
				RemoteAddr: c.ClientIP(),
				UserAgent:  c.Request.UserAgent(),
				Status:     status,
				LatencyMs:  time.Since(start).Milliseconds(),
			})
		if len(c.Errors) > 0 {
			log = log.WithError(models.ErrorInfo{Message: c.Errors.String(), StatusCode: status})
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request failed")
		case status >= http.StatusBadRequest:
			log.Warn("request rejected")
		default:
			log.Info("request completed")
		}
	}
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByClientIP charges requests to the client address.
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// ByUserOrIP charges authenticated requests to the user and falls back to the client address.
func ByUserOrIP(c *gin.Context) string {
	if uid := c.GetString(ContextKeyUserID); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.ClientIP()
}

// KeyedLimiter keeps one token bucket per key.
type KeyedLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	sweep   time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows r events per second with the given burst for each key.
// Buckets idle for longer than ten minutes are dropped.
func NewKeyedLimiter(r float64, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		limit:   rate.Limit(r),
		burst:   burst,
		ttl:     10 * time.Minute,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether one more event for key may happen now.
func (l *KeyedLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	if now.Sub(l.sweep) > l.ttl {
		for k, v := range l.buckets {
			if now.Sub(v.lastSeen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.sweep = now
	}
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// RateLimit rejects requests over the per-key budget with 429.
func RateLimit(limiter *KeyedLimiter, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
