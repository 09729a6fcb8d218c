package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"pharmacy_inventory/internal/auth"
	rediskey "pharmacy_inventory/pkg/redis"
)

// luaRateLimit is an atomic sliding window on a sorted set.
// KEYS[1]=window key, ARGV[1]=now (ms), ARGV[2]=window start (ms),
// ARGV[3]=window seconds, ARGV[4]=member, ARGV[5]=limit.
// Returns the count inside the window, or -1 when the limit is reached.
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)

if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// RedisRateLimit limits requests per window for one route scope. Requests
// that passed RequireAuth are counted per username, the rest per client IP.
// Redis errors let the request through.
func RedisRateLimit(rdb *rd.Client, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c, scope)

		now := time.Now()
		nowMs := now.UnixMilli()
		windowSec := int64(window / time.Second)
		if windowSec <= 0 {
			windowSec = 1
		}
		windowStart := nowMs - window.Milliseconds()
		member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

		res, err := rdb.Eval(c.Request.Context(), luaRateLimit, []string{key},
			nowMs, windowStart, windowSec, member, limit).Int()
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("rate limit unavailable, allowing request")
			c.Next()
			return
		}

		if res < 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "Too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}

// rateLimitKey never trusts the request body: a username typed into a login
// form is not an identity.
func rateLimitKey(c *gin.Context, scope string) string {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok && claims.Username != "" {
			return rediskey.RateLimitKey(scope, "user", claims.Username)
		}
	}
	return rediskey.RateLimitKey(scope, "ip", c.ClientIP())
}
