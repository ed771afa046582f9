package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
	"github.com/noah-isme/moracollect-api/pkg/logger"
	"github.com/noah-isme/moracollect-api/pkg/response"
)

// ContextContributorKey is the gin context key storing the verified contributor.
const ContextContributorKey = "currentContributor"

// IdentityVerifier turns a bearer token into a contributor.
type IdentityVerifier interface {
	Verify(token string) (*models.Contributor, error)
}

// JWT protects routes by requiring a valid identity token.
func JWT(verifier IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid authorization header"))
			c.Abort()
			return
		}

		contributor, err := verifier.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextContributorKey, contributor)
		c.Set(logger.ContributorKey, contributor.ID)
		c.Next()
	}
}

// CurrentContributor returns the contributor set by JWT.
func CurrentContributor(c *gin.Context) (*models.Contributor, bool) {
	value, exists := c.Get(ContextContributorKey)
	if !exists {
		return nil, false
	}
	contributor, ok := value.(*models.Contributor)
	return contributor, ok && contributor != nil
}
