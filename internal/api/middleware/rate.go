package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL evicts limiters not seen for this long. Zero keeps them forever.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the dev server's rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		Burst:             100,
		IdleTTL:           10 * time.Minute,
	}
}

// KeyFunc picks the bucket a request is charged to
type KeyFunc func(c *gin.Context) string

// ClientIP charges requests to the caller's address.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// TenantKey charges requests to the tenant named by a route parameter,
// falling back to the caller's address on routes without it.
func TenantKey(param string) KeyFunc {
	return func(c *gin.Context) string {
		if id := c.Param(param); id != "" {
			return "tenant:" + id
		}
		return c.ClientIP()
	}
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return KeyedRateLimit(cfg, ClientIP)
}

// KeyedRateLimit creates a token bucket per key.
func KeyedRateLimit(cfg RateLimitConfig, key KeyFunc) gin.HandlerFunc {
	b := newBuckets(cfg)
	return func(c *gin.Context) {
		limiter := b.get(key(c), time.Now())
		if !limiter.Allow() {
			reject(c, limiter)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			reject(c, limiter)
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context, limiter *rate.Limiter) {
	if limiter.Limit() > 0 {
		wait := math.Ceil(1 / float64(limiter.Limit()))
		c.Header("Retry-After", strconv.Itoa(int(wait)))
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
	})
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type buckets struct {
	cfg       RateLimitConfig
	mu        sync.Mutex
	entries   map[string]*bucket
	lastSweep time.Time
}

func newBuckets(cfg RateLimitConfig) *buckets {
	return &buckets{cfg: cfg, entries: make(map[string]*bucket)}
}

func (b *buckets) get(key string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweepLocked(now)
	e, ok := b.entries[key]
	if !ok {
		e = &bucket{limiter: rate.NewLimiter(rate.Limit(b.cfg.RequestsPerSecond), b.cfg.Burst)}
		b.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// sweepLocked drops idle buckets at most once per TTL
func (b *buckets) sweepLocked(now time.Time) {
	ttl := b.cfg.IdleTTL
	if ttl <= 0 || now.Sub(b.lastSweep) < ttl {
		return
	}
	b.lastSweep = now
	for k, e := range b.entries {
		if now.Sub(e.lastSeen) > ttl {
			delete(b.entries, k)
		}
	}
}

func (b *buckets) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
