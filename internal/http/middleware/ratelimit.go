package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitOptions tunes the per-client token bucket limiter.
type RateLimitOptions struct {
	// RPS is the sustained request rate allowed per key. Zero or negative
	// disables limiting.
	RPS float64
	// Burst is the bucket capacity. Values < 1 fall back to 1.
	Burst int
	// KeyFunc derives the limiter key from the request. Defaults to
	// KeyByDeviceOrIP.
	KeyFunc func(c *gin.Context) string
	// TTL is how long an idle key keeps its bucket before eviction.
	// Defaults to 10 minutes.
	TTL time.Duration
}

// KeyByDeviceOrIP keys the limiter on the authenticated device when
// present, falling back to the client IP for unauthenticated routes. A
// fleet of meters behind one NAT therefore gets per-device buckets once
// authenticated.
func KeyByDeviceOrIP(c *gin.Context) string {
	if d := DeviceID(c); d != "" {
		return "device:" + d
	}
	return "ip:" + c.ClientIP()
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns a token-bucket limiter that keeps one bucket per key
// and answers 429 when a bucket is empty. Idle buckets are evicted
// opportunistically so the map cannot grow without bound.
func RateLimit(opts RateLimitOptions) gin.HandlerFunc {
	if opts.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = KeyByDeviceOrIP
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}

	var (
		mu      sync.Mutex
		entries = make(map[string]*limiterEntry)
		lastGC  = time.Now()
	)

	return func(c *gin.Context) {
		key := opts.KeyFunc(c)
		now := time.Now()

		mu.Lock()
		e, ok := entries[key]
		if !ok {
			e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst)}
			entries[key] = e
		}
		e.lastSeen = now

		if now.Sub(lastGC) > opts.TTL {
			for k, v := range entries {
				if now.Sub(v.lastSeen) > opts.TTL {
					delete(entries, k)
				}
			}
			lastGC = now
		}
		allowed := e.lim.Allow()
		mu.Unlock()

		if !allowed {
			rid, _ := c.Get(requestIDKey)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"request_id": asString(rid),
				"code":       "rate_limited",
				"message":    "too many requests",
			})
			return
		}
		c.Next()
	}
}
