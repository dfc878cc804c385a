package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/opencoe/exam-paper-api/internal/models"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
	"github.com/opencoe/exam-paper-api/pkg/response"
)

// RequireRoles blocks any caller whose role is not in the allowed set.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
