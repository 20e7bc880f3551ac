package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/campusevents/ticketing/internal/config"
)

// limiterScript keeps one hash per bucket with the tokens left and the
// stamp of the last whole refill step.  ARGV is capacity, refill tokens,
// step ms, ttl ms, now ms.  It replies {allowed, left, wait_ms}.
var limiterScript = redis.NewScript(`
local cap = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local step = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local left = tonumber(redis.call('HGET', KEYS[1], 'left'))
local stamp = tonumber(redis.call('HGET', KEYS[1], 'stamp'))
if left == nil or stamp == nil then
  left, stamp = cap, now
end

if step > 0 and refill > 0 and now > stamp then
  local steps = math.floor((now - stamp) / step)
  left = math.min(cap, left + steps * refill)
  stamp = stamp + steps * step
end

local ok, wait = 0, 0
if left >= 1 then
  ok, left = 1, left - 1
elseif step > 0 then
  wait = math.max(0, stamp + step - now)
end

redis.call('HSET', KEYS[1], 'left', left, 'stamp', stamp)
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return {ok, left, wait}
`)

// clock is replaced in tests.
var clock = time.Now

// NewTokenBucket limits requests per key with a Redis token bucket.  It is
// a pass-through when disabled or when rdb is nil, and it fails open on
// Redis errors.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			ctx := c.Request().Context()
			vals, err := limiterScript.Run(ctx, rdb, []string{key}, limiterArgs(cfg, clock())...).Result()
			if err != nil {
				slog.Warn("ratelimit: redis error, allowing request", "key", key, "error", err)
				return next(c)
			}

			arr, ok := vals.([]interface{})
			if !ok || len(arr) != 3 {
				slog.Warn("ratelimit: unexpected script result", "key", key, "result", fmt.Sprintf("%#v", vals))
				return next(c)
			}
			allowed := asInt64(arr[0]) == 1
			remaining := asInt64(arr[1])
			retryMs := asInt64(arr[2])

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					slog.Info("ratelimit: blocked", "key", key, "remaining", remaining, "retry_ms", retryMs)
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}

			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

func limiterArgs(cfg config.RateLimitConfig, now time.Time) []interface{} {
	return []interface{}{
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		cfg.TTL.Milliseconds(),
		now.UnixMilli(),
	}
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc {
	return next
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
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
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := rateIdentity(c)
	route := c.Request().Method + " " + c.Path()

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
