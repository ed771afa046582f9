package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/moracollect-api/internal/models"
	"github.com/noah-isme/moracollect-api/internal/service"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
	"github.com/noah-isme/moracollect-api/pkg/response"
)

type snapshotRebuilder interface {
	Rebuild(ctx context.Context) (models.RebuildReport, error)
}

type totalsBackfiller interface {
	Backfill(ctx context.Context, dryRun bool) (*models.BackfillReport, error)
}

type statsExporter interface {
	Export(ctx context.Context, collectionID, format string) (*service.StatsExport, error)
}

type orphanCollector interface {
	Collect(ctx context.Context, dryRun bool) (*models.OrphanReport, error)
}

// AdminHandler exposes operator procedures. Routes must sit behind the admin role.
type AdminHandler struct {
	snapshots snapshotRebuilder
	backfill  totalsBackfiller
	exporter  statsExporter
	orphans   orphanCollector
}

// NewAdminHandler builds a new handler.
func NewAdminHandler(snapshots snapshotRebuilder, backfill totalsBackfiller, exporter statsExporter, orphans orphanCollector) *AdminHandler {
	return &AdminHandler{snapshots: snapshots, backfill: backfill, exporter: exporter, orphans: orphans}
}

// RebuildSnapshots godoc
// @Summary Recompute every listing snapshot from the counters
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/snapshots/rebuild [post]
func (h *AdminHandler) RebuildSnapshots(c *gin.Context) {
	report, err := h.snapshots.Rebuild(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Internal(err, "snapshot rebuild failed"))
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// BackfillTotals godoc
// @Summary Recompute contributor totals from the ledger
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param dry_run query bool false "Report deltas without writing"
// @Success 200 {object} response.Envelope
// @Router /admin/contributor-totals/backfill [post]
func (h *AdminHandler) BackfillTotals(c *gin.Context) {
	dryRun, err := queryBool(c, "dry_run")
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.backfill.Backfill(c.Request.Context(), dryRun)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ExportStats godoc
// @Summary Download contribution counters
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Param collection_id query string false "Export item counters of one collection"
// @Success 200 {file} file
// @Router /admin/stats/export [get]
func (h *AdminHandler) ExportStats(c *gin.Context) {
	out, err := h.exporter.Export(c.Request.Context(), c.Query("collection_id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Body)
}

// CollectOrphans godoc
// @Summary Delete uploads that never became a submission
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param dry_run query bool false "Report orphans without deleting"
// @Success 200 {object} response.Envelope
// @Router /admin/orphans/collect [post]
func (h *AdminHandler) CollectOrphans(c *gin.Context) {
	dryRun, err := queryBool(c, "dry_run")
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.orphans.Collect(c.Request.Context(), dryRun)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
