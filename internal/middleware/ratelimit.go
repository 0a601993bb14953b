package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"
	"holdem-service/pkg/response"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RateLimitConfig struct {
	ActionLimit  int64
	ActionWindow time.Duration
	APILimit     int64
	APIWindow    time.Duration
}

func defaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		ActionLimit:  10,
		ActionWindow: time.Second,
		APILimit:     60,
		APIWindow:    time.Minute,
	}
}

// RateLimiter counts requests in a sliding window kept as a sorted set of
// request timestamps.
type RateLimiter struct {
	rdb   *redis.Client
	clock quartz.Clock
	cfg   RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig, clock quartz.Clock) *RateLimiter {
	def := defaultRateLimitConfig()
	if cfg.ActionLimit <= 0 {
		cfg.ActionLimit = def.ActionLimit
	}
	if cfg.ActionWindow <= 0 {
		cfg.ActionWindow = def.ActionWindow
	}
	if cfg.APILimit <= 0 {
		cfg.APILimit = def.APILimit
	}
	if cfg.APIWindow <= 0 {
		cfg.APIWindow = def.APIWindow
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &RateLimiter{rdb: rdb, clock: clock, cfg: cfg}
}

func buildActionLimitKey(userID, tableID int64) string {
	return fmt.Sprintf("ratelimit:action:%d:%d", userID, tableID)
}

func buildAPILimitKey(userID int64) string {
	return "ratelimit:api:" + strconv.FormatInt(userID, 10)
}

// KEYS: window set. ARGV: now ms, window ms, limit, member
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', tonumber(ARGV[1]) - tonumber(ARGV[2]))
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

func (l *RateLimiter) allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	now := l.clock.Now().UnixMilli()
	n, err := slidingWindowScript.Run(ctx, l.rdb, []string{key}, now, window.Milliseconds(), limit, uuid.NewString()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AllowAction limits how fast one player may submit actions at a table.
func (l *RateLimiter) AllowAction(ctx context.Context, userID, tableID int64) (bool, error) {
	return l.allow(ctx, buildActionLimitKey(userID, tableID), l.cfg.ActionLimit, l.cfg.ActionWindow)
}

func (l *RateLimiter) AllowAPI(ctx context.Context, userID int64) (bool, error) {
	return l.allow(ctx, buildAPILimitKey(userID), l.cfg.APILimit, l.cfg.APIWindow)
}

// RateLimit guards authenticated API routes. A Redis failure lets the
// request through.
func RateLimit(l *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		if userID == 0 {
			c.Next()
			return
		}
		ok, err := l.AllowAPI(c.Request.Context(), userID)
		if err != nil {
			logger.Log.Warn("rate limit check failed", zap.Int64("userID", userID), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			response.Fail(c, appErr.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
