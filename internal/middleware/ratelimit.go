package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	RateLimitHeader          = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"

	rateLimitKeyPrefix = "ratelimit:"
)

// fixedWindowScript returns {allowed, remaining, ttl_seconds}.
var fixedWindowScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if current >= limit then
	return {0, 0, redis.call("TTL", KEYS[1])}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return {1, limit - current, redis.call("TTL", KEYS[1])}
`)

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(*gin.Context) string
	SkipFunc func(*gin.Context) bool
}

// DefaultRateLimitConfig keys on client IP and never limits health or metrics probes.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Requests: 120,
		Window:   time.Minute,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
		SkipFunc: func(c *gin.Context) bool {
			switch c.Request.URL.Path {
			case "/health", "/live", "/metrics":
				return true
			}
			return false
		},
	}
}

// RateLimiter is a fixed window limiter backed by Redis when available and
// by process memory otherwise.
type RateLimiter struct {
	config RateLimitConfig
	redis  *redis.Client
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(config RateLimitConfig, redisClient *redis.Client, logger *zap.Logger) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.Requests <= 0 {
		config.Requests = defaults.Requests
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.KeyFunc == nil {
		config.KeyFunc = defaults.KeyFunc
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		config:  config,
		redis:   redisClient,
		logger:  logger,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.config.SkipFunc != nil && rl.config.SkipFunc(c) {
			c.Next()
			return
		}

		key := rl.config.KeyFunc(c)
		allowed, remaining, resetAt, err := rl.take(c.Request.Context(), key)
		if err != nil {
			// fail open
			rl.logger.Error("Rate limit check failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header(RateLimitHeader, strconv.Itoa(rl.config.Requests))
		c.Header(RateLimitRemainingHeader, strconv.Itoa(remaining))
		c.Header(RateLimitResetHeader, strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":      "error",
				"error":       "rate limit exceeded",
				"retry_after": int(resetAt.Sub(rl.now()).Seconds()),
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) take(ctx context.Context, key string) (bool, int, time.Time, error) {
	if rl.redis != nil {
		return rl.takeRedis(ctx, key)
	}
	return rl.takeLocal(key)
}

func (rl *RateLimiter) takeRedis(ctx context.Context, key string) (bool, int, time.Time, error) {
	windowSeconds := int(rl.config.Window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	values, err := fixedWindowScript.Run(ctx, rl.redis, []string{rateLimitKeyPrefix + key}, rl.config.Requests, windowSeconds).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, err
	}
	if len(values) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected rate limit script result %v", values)
	}
	ttl := values[2]
	if ttl < 0 {
		ttl = 0
	}
	return values[0] == 1, int(values[1]), rl.now().Add(time.Duration(ttl) * time.Second), nil
}

func (rl *RateLimiter) takeLocal(key string) (bool, int, time.Time, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.windows) > 1000 {
		for k, w := range rl.windows {
			if !now.Before(w.resetAt) {
				delete(rl.windows, k)
			}
		}
	}

	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(rl.config.Window)}
		rl.windows[key] = w
	}
	if w.count >= rl.config.Requests {
		return false, 0, w.resetAt, nil
	}
	w.count++
	return true, rl.config.Requests - w.count, w.resetAt, nil
}

// Reset clears the window for key.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	if rl.redis != nil {
		return rl.redis.Del(ctx, rateLimitKeyPrefix+key).Err()
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, key)
	return nil
}
