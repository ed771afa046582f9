package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/moracollect-api/internal/middleware"
	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
)

// contributorFromContext returns the verified caller, zero when absent so
// services answer Unauthenticated.
func contributorFromContext(c *gin.Context) models.Contributor {
	contributor, ok := middleware.CurrentContributor(c)
	if !ok {
		return models.Contributor{}
	}
	return *contributor
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrInvalidRequest, "limit must be an integer")
	}
	return limit, nil
}

func queryBool(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, appErrors.Clone(appErrors.ErrInvalidRequest, name+" must be a boolean")
	}
	return value, nil
}
