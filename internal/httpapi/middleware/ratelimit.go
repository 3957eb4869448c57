package middleware

import (
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/vidblog/internal/common"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
	"github.com/suPer8Hu/vidblog/internal/ratelimit"
)

// RateLimit keys on the authenticated user, falling back to the client IP.
// A limiter backend error lets the request through.
func RateLimit(l ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if uid, ok := UserID(c); ok {
			key = "user:" + strconv.FormatUint(uid, 10)
		}

		d, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.Printf("[RateLimit] key=%s err=%v", key, err)
			c.Next()
			return
		}
		if !d.Allowed {
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			common.FailBody(c, common.ErrorBody{
				Code:       string(pipeline.KindRateLimit),
				Message:    "too many requests",
				StatusCode: http.StatusTooManyRequests,
				RetryAfter: secs,
			})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Next()
	}
}
