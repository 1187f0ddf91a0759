package auth

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"library-backend/internal/platform/apperr"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
)

func abort(c *gin.Context, err *apperr.APIError) {
	c.AbortWithStatusJSON(apperr.ToHTTPStatus(err), apperr.Body(err))
}

// RequireAuth: Authorization: Bearer <access token> を検証して context に sub/role を詰める
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			abort(c, apperr.Unauthenticated("authentication credentials were not provided"))
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, apperr.Unauthenticated("invalid Authorization header"))
			return
		}
		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			abort(c, apperr.Unauthenticated("empty token"))
			return
		}

		claims, err := ParseToken(secret, tokenStr, tokenAccess, time.Now)
		if err != nil {
			abort(c, apperr.Unauthenticated("token is invalid or expired"))
			return
		}

		c.Set(CtxUserIDKey, claims.Subject)
		c.Set(CtxRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole: 例) staff のみ許可したい時に追加
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, allowed := roleSet[Role(c)]; !allowed {
			abort(c, apperr.Forbidden("you do not have permission to perform this action"))
			return
		}
		c.Next()
	}
}

// RequireSelfOrStaff lets a request through when the :param path value is the
// caller's own id, or the caller is staff.
func RequireSelfOrStaff(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsSelfOrStaff(c, c.Param(param)) {
			abort(c, apperr.Forbidden("you do not have permission to perform this action"))
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) string { return c.GetString(CtxUserIDKey) }

func Role(c *gin.Context) string { return c.GetString(CtxRoleKey) }

func IsStaff(c *gin.Context) bool { return Role(c) == RoleStaff }

func IsSelfOrStaff(c *gin.Context, userID string) bool {
	uid := UserID(c)
	return IsStaff(c) || (uid != "" && uid == userID)
}
