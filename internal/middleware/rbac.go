package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-scheduler/internal/models"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
	"github.com/noah-isme/campus-scheduler/pkg/response"
)

// RequireRoles admits requests whose verified claims carry one of roles.
// It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		c.Next()
	}
}

// Admin chains JWT verification with the admin role check. A nil validator
// leaves the routes open, which is how AUTH_ENABLED=false is served.
func Admin(validator TokenValidator) []gin.HandlerFunc {
	if validator == nil {
		return nil
	}
	return []gin.HandlerFunc{JWT(validator), RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)}
}
