package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
	"github.com/noah-isme/moracollect-api/pkg/response"
)

// RoleAdmin grants access to operator endpoints.
const RoleAdmin = "admin"

// RequireRoles allows the request when the contributor holds any of roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		contributor, ok := CurrentContributor(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}
		for _, role := range roles {
			if contributor.HasRole(role) {
				c.Next()
				return
			}
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
