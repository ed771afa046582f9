package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
	"github.com/noah-isme/moracollect-api/pkg/response"
)

type profileService interface {
	Update(ctx context.Context, contributor models.Contributor, req models.UpdateProfileRequest) (*models.ContributorProfile, error)
}

// ProfileHandler exposes the caller's profile and identity.
type ProfileHandler struct {
	service profileService
}

// NewProfileHandler builds a new handler.
func NewProfileHandler(service profileService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// Update godoc
// @Summary Update the caller's display preferences
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpdateProfileRequest true "Profile changes"
// @Success 200 {object} response.Envelope
// @Router /me/profile [patch]
func (h *ProfileHandler) Update(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}
	profile, err := h.service.Update(c.Request.Context(), contributorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Ping godoc
// @Summary Echo the verified identity
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /ping [get]
func (h *ProfileHandler) Ping(c *gin.Context) {
	contributor := contributorFromContext(c)
	if contributor.ID == "" {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"contributor_id": contributor.ID,
		"email":          contributor.Email,
	}, nil)
}
