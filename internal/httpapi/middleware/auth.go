package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/vidblog/internal/auth"
	"github.com/suPer8Hu/vidblog/internal/common"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

const UserIDKey = "user_id"

// AuthRequired accepts "Authorization: Bearer <jwt>" and stores the caller's
// user id under UserIDKey.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			common.Fail(c, http.StatusUnauthorized, string(pipeline.KindAuthentication), "missing bearer token")
			return
		}
		uid, err := auth.ParseJWT(strings.TrimSpace(token), secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, string(pipeline.KindAuthentication), "invalid or expired token")
			return
		}
		c.Set(UserIDKey, uid)
		c.Next()
	}
}

// UserID returns the authenticated caller, if any.
func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}
