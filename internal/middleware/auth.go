package middleware

import (
	"context"
	"net/http"
	"strings"

	"storefront/internal/auth"
	"storefront/internal/model"

	"github.com/gin-gonic/gin"
)

const userKey = "current_user"

// UserLookup 按 ID 读取账号，用户模块实现。
type UserLookup interface {
	Get(ctx context.Context, id uint) (*model.User, error)
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}

// RequireAuth 校验 Bearer 令牌并加载账号；账号不存在或已停用视为未认证。
func RequireAuth(tokens *auth.Issuer, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abort(c, http.StatusUnauthorized, "not authorized, no token")
			return
		}
		id, err := tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			abort(c, http.StatusUnauthorized, "not authorized, invalid token")
			return
		}
		u, err := users.Get(c.Request.Context(), id)
		if err != nil {
			abort(c, http.StatusUnauthorized, "not authorized, user not found")
			return
		}
		if !u.IsActive {
			abort(c, http.StatusUnauthorized, "account is disabled")
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// RequireAdmin 必须挂在 RequireAuth 之后。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentUser(c).IsAdmin() {
			abort(c, http.StatusForbidden, "admin access required")
			return
		}
		c.Next()
	}
}

// CurrentUser 返回已认证的账号，未经过 RequireAuth 时为 nil。
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}
