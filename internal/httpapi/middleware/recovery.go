package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/vidblog/internal/common"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

// Recovery turns a panic into a 500 envelope instead of a dropped connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[Recovery] request_id=%s path=%s panic=%v\n%s", c.GetString(RequestIDKey), c.Request.URL.Path, rec, debug.Stack())
				common.Fail(c, http.StatusInternalServerError, string(pipeline.KindInternal), "internal server error")
			}
		}()
		c.Next()
	}
}
