package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is an in-memory per-client token bucket. Tokens refill
// continuously at the configured per-minute rate up to a burst of one
// minute's worth. State lives in process memory, so limits are per instance.
type RateLimiter struct {
	perSecond float64
	burst     float64

	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter allows perMinute requests per client key.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RateLimiter{
		perSecond: float64(perMinute) / 60,
		burst:     float64(perMinute),
		clients:   make(map[string]*clientBucket),
	}
}

// Handler enforces the limit per client IP and answers 429 with a
// Retry-After hint when exhausted.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		if !rl.take(key, time.Now()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) take(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[key]
	if !ok {
		rl.sweep(now)
		rl.clients[key] = &clientBucket{tokens: rl.burst - 1, seen: now}
		return true
	}

	b.tokens += now.Sub(b.seen).Seconds() * rl.perSecond
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets idle long enough to be fully refilled anyway. Called
// with the lock held, only when a new client first appears.
func (rl *RateLimiter) sweep(now time.Time) {
	if len(rl.clients) < 10000 {
		return
	}
	for key, b := range rl.clients {
		if now.Sub(b.seen) > time.Hour {
			delete(rl.clients, key)
		}
	}
}
