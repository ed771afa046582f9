package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
	"github.com/noah-isme/moracollect-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, contributor models.Contributor, req models.RegisterSubmissionRequest) (*models.RegisterSubmissionResult, error)
}

type deletionService interface {
	Delete(ctx context.Context, contributor models.Contributor, submissionID string) (*models.DeleteSubmissionResult, error)
}

type mirrorService interface {
	ListOwn(ctx context.Context, contributorID, cursor string, limit int) ([]models.MirrorEntry, *models.Pagination, error)
}

// SubmissionHandler exposes the contribution write path and self-listing.
type SubmissionHandler struct {
	registration registrationService
	deletion     deletionService
	mirror       mirrorService
}

// NewSubmissionHandler builds a new handler.
func NewSubmissionHandler(registration registrationService, deletion deletionService, mirror mirrorService) *SubmissionHandler {
	return &SubmissionHandler{registration: registration, deletion: deletion, mirror: mirror}
}

// Register godoc
// @Summary Register an uploaded recording
// @Description Idempotent by submission_id. Returns 201 on first registration and 200 when already registered.
// @Tags Submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.RegisterSubmissionRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Register(c *gin.Context) {
	var req models.RegisterSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	result, err := h.registration.Register(c.Request.Context(), contributorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.AlreadyRegistered {
		response.JSON(c, http.StatusOK, result, nil)
		return
	}
	response.Created(c, result)
}

// Delete godoc
// @Summary Delete one of the caller's submissions
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 500 {object} response.Envelope "BLOB_CLEANUP_FAILED when the ledger entry was removed but audio cleanup failed"
// @Router /submissions/{id} [delete]
func (h *SubmissionHandler) Delete(c *gin.Context) {
	result, err := h.deletion.Delete(c.Request.Context(), contributorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListMine godoc
// @Summary List the caller's submissions, newest first
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param cursor query string false "Cursor from a previous page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /me/submissions [get]
func (h *SubmissionHandler) ListMine(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	contributor := contributorFromContext(c)
	entries, pagination, err := h.mirror.ListOwn(c.Request.Context(), contributor.ID, c.Query("cursor"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
