package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-user-service/pkg/response"
)

// KeyFunc names the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// AllowFunc reports whether a request skips the limiter.
type AllowFunc func(c *gin.Context) bool

// KeyByIP counts every route of a client in one bucket.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string {
		return "ratelimit:" + clientIP(c)
	}
}

// KeyByIPAndPath gives each client a separate bucket per route pattern.
func KeyByIPAndPath() KeyFunc {
	return func(c *gin.Context) string {
		return "ratelimit:" + routePath(c) + ":" + clientIP(c)
	}
}

// hitScript counts one hit and replies {count, pttl}. The window opens on the first hit.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

type fixedWindow struct {
	rdb  *redis.Client
	size time.Duration
}

func (w fixedWindow) hit(ctx context.Context, key string) (int, time.Duration, error) {
	reply, err := hitScript.Run(ctx, w.rdb, []string{key}, w.size.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(reply) != 2 {
		return 0, 0, fmt.Errorf("rate limit: unexpected reply %v", reply)
	}
	return int(reply[0]), time.Duration(reply[1]) * time.Millisecond, nil
}

// RateLimit is a fixed-window limiter backed by Redis. It reports the
// X-RateLimit-* headers, skips OPTIONS and lets requests through when Redis
// cannot be reached. A nil client or non-positive limit disables it.
func RateLimit(rdb *redis.Client, max int, window time.Duration, keyFn KeyFunc, allow AllowFunc) gin.HandlerFunc {
	if rdb == nil || max <= 0 || window <= 0 || keyFn == nil {
		return func(c *gin.Context) { c.Next() }
	}
	fw := fixedWindow{rdb: rdb, size: window}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || (allow != nil && allow(c)) {
			c.Next()
			return
		}

		count, resetIn, err := fw.hit(c.Request.Context(), keyFn(c))
		if err != nil {
			c.Next()
			return
		}

		resetSec := 0
		if resetIn > 0 {
			resetSec = int((resetIn + time.Second - 1) / time.Second)
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max-min(count, max)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))

		if count <= max {
			c.Next()
			return
		}
		if resetSec > 0 {
			c.Header("Retry-After", strconv.Itoa(resetSec))
		}
		response.Abort(c, http.StatusTooManyRequests, "rate limit exceeded", nil)
	}
}
