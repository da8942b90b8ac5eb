package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/iliyamo/mindwell/internal/config"
)

var tokenBucketScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        local until_next = interval_ms - (now_ms - last_refill)
        if until_next < 0 then until_next = 0 end
        retry_after_ms = until_next
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// NewTokenBucket limits requests with a Redis token bucket shared by every
// instance. When rdb is nil, or a Redis call fails, requests are checked
// against an in-process per-key limiter with the same capacity and rate
// instead, if cfg.LocalFallback is set.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return passThrough
	}
	var local *localLimiter
	if cfg.LocalFallback {
		perSecond := float64(cfg.RefillTokens) / cfg.RefillInterval.Seconds()
		local = newLocalLimiter(rate.Limit(perSecond), cfg.Capacity, cfg.TTL)
	}
	if rdb == nil && local == nil {
		return passThrough
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))

			if rdb != nil {
				allowed, remaining, retryMs, err := runBucket(c, rdb, cfg, key)
				if err == nil {
					h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
					if !allowed {
						return tooMany(c, int(math.Ceil(float64(retryMs)/1000.0)))
					}
					if cfg.Debug {
						h.Set("X-RateLimit-Key", key)
					}
					return next(c)
				}
				if cfg.Debug {
					log.Warn("ratelimit redis error", zap.String("key", key), zap.Error(err))
				}
			}
			if local == nil {
				return next(c)
			}
			if r := local.reserve(key); !r.allowed {
				return tooMany(c, int(math.Ceil(r.wait.Seconds())))
			}
			return next(c)
		}
	}
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func runBucket(c echo.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string) (bool, int64, int64, error) {
	args := []any{
		time.Now().UnixMilli(),
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		int64(cfg.TTL / time.Second),
	}
	vals, err := tokenBucketScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
	if err != nil {
		return false, 0, 0, err
	}
	arr, ok := vals.([]any)
	if !ok || len(arr) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected script result %#v", vals)
	}
	return asInt64(arr[0]) == 1, asInt64(arr[1]), asInt64(arr[2]), nil
}

func tooMany(c echo.Context, retrySecs int) error {
	if retrySecs < 0 {
		retrySecs = 0
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(retrySecs))
	return c.JSON(http.StatusTooManyRequests, echo.Map{
		"error":       "too_many_requests",
		"message":     "rate limit exceeded",
		"retry_after": retrySecs,
	})
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userID(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}

// localLimiter keeps one x/time/rate limiter per key and forgets keys idle
// for longer than idle. Pruning happens inline every pruneEvery calls.
type localLimiter struct {
	mu    sync.Mutex
	keys  map[string]*visitor
	limit rate.Limit
	burst int
	idle  time.Duration
	calls int
	now   func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type localResult struct {
	allowed bool
	wait    time.Duration
}

const pruneEvery = 1024

func newLocalLimiter(limit rate.Limit, burst int, idle time.Duration) *localLimiter {
	return &localLimiter{keys: map[string]*visitor{}, limit: limit, burst: burst, idle: idle, now: time.Now}
}

func (l *localLimiter) reserve(key string) localResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	l.calls++
	if l.calls%pruneEvery == 0 {
		for k, v := range l.keys {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.keys, k)
			}
		}
	}

	v, ok := l.keys[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.keys[key] = v
	}
	v.lastSeen = now
	if v.limiter.AllowN(now, 1) {
		return localResult{allowed: true}
	}
	r := v.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return localResult{wait: wait}
}
