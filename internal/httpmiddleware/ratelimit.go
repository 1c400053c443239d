package httpmiddleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a per-IP requests-per-minute cap. With a Redis
// client it uses a fixed window shared across instances; without one it
// falls back to an in-memory token bucket.
type RateLimiter struct {
	perMinute int
	rdb       *redis.Client

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewRateLimiter creates a limiter. rdb may be nil.
func NewRateLimiter(perMinute int, rdb *redis.Client) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RateLimiter{
		perMinute: perMinute,
		rdb:       rdb,
		state:     make(map[string]*bucket),
	}
}

// GinMiddleware returns a gin handler enforcing the limit.
func (l *RateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(c, ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) allow(c *gin.Context, ip string) bool {
	if l.rdb != nil {
		if ok, err := l.allowRedis(c, ip); err == nil {
			return ok
		}
		// Redis down: fall through to the local bucket rather than
		// failing every request.
	}
	return l.allowLocal(ip)
}

func (l *RateLimiter) allowRedis(c *gin.Context, ip string) (bool, error) {
	ctx := c.Request.Context()
	key := fmt.Sprintf("ratelimit:%s:%d", ip, time.Now().Unix()/60)
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		l.rdb.Expire(ctx, key, 2*time.Minute)
	}
	return count <= int64(l.perMinute), nil
}

func (l *RateLimiter) allowLocal(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := time.Now()
	if !ok {
		b = &bucket{tokens: l.perMinute - 1, last: now}
		l.state[key] = b
		return true
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.perMinute))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.perMinute {
			b.tokens = l.perMinute
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
