package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	rediskey "storefront/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// rateLimitScript：滑动窗口计数，ZSET 分数为毫秒时间戳。
// KEYS[1]=限流key，ARGV = now, windowStart, windowSec, member, limit
// 返回窗口内请求数，超限返回 -1。EvalSha 缓存脚本，NOSCRIPT 时自动回退 Eval。
var rateLimitScript = rd.NewScript(`
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
`)

// RedisRateLimit 写接口限流：已登录按用户 ID，否则按 IP。
// 挂在 RequireAuth 之后才能拿到用户。
func RedisRateLimit(rdb *rd.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if u := CurrentUser(c); u != nil {
			key = rediskey.RateLimitUserKey(u.ID)
		} else {
			key = rediskey.RateLimitIPKey(c.ClientIP())
		}

		now := time.Now()
		windowSec := int64(window.Seconds())
		// 毫秒分数，同一秒内的请求也能正确计数与过期
		nowMs := now.UnixMilli()
		windowStart := nowMs - window.Milliseconds()
		member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

		res, err := rateLimitScript.Run(c.Request.Context(), rdb, []string{key},
			nowMs, windowStart, windowSec, member, limit).Int()
		if err != nil {
			// Redis 出错时放行（降级策略）
			c.Next()
			return
		}
		if res < 0 {
			c.Header("Retry-After", strconv.FormatInt(windowSec, 10))
			abort(c, http.StatusTooManyRequests, "too many requests, please try again later")
			return
		}
		c.Next()
	}
}
