package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/moracollect-api/internal/models"
	"github.com/noah-isme/moracollect-api/internal/service"
)

type adminServiceMock struct {
	rebuildErr error
	lastDryRun *bool
	lastFormat string
	lastColl   string
}

func (m *adminServiceMock) Rebuild(ctx context.Context) (models.RebuildReport, error) {
	return models.RebuildReport{Collections: 2, ItemDocuments: 2, DeletedDocuments: 1}, m.rebuildErr
}

func (m *adminServiceMock) Backfill(ctx context.Context, dryRun bool) (*models.BackfillReport, error) {
	m.lastDryRun = &dryRun
	return &models.BackfillReport{DryRun: dryRun, Deltas: []models.BackfillDelta{}}, nil
}

func (m *adminServiceMock) Export(ctx context.Context, collectionID, format string) (*service.StatsExport, error) {
	m.lastColl, m.lastFormat = collectionID, format
	return &service.StatsExport{Filename: "collections-stats.csv", ContentType: "text/csv", Body: []byte("a,b\n")}, nil
}

func (m *adminServiceMock) Collect(ctx context.Context, dryRun bool) (*models.OrphanReport, error) {
	m.lastDryRun = &dryRun
	return &models.OrphanReport{DryRun: dryRun, Orphans: []string{}}, nil
}

func TestAdminHandlerRebuild(t *testing.T) {
	mock := &adminServiceMock{}
	h := NewAdminHandler(mock, mock, mock, mock)
	c, w := newTestContext(http.MethodPost, "/v1/admin/snapshots/rebuild", "")

	h.RebuildSnapshots(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted_documents":1`)

	mock.rebuildErr = errors.New("pq: timeout")
	c, w = newTestContext(http.MethodPost, "/v1/admin/snapshots/rebuild", "")
	h.RebuildSnapshots(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdminHandlerBackfillDryRun(t *testing.T) {
	mock := &adminServiceMock{}
	h := NewAdminHandler(mock, mock, mock, mock)

	c, w := newTestContext(http.MethodPost, "/v1/admin/contributor-totals/backfill?dry_run=true", "")
	h.BackfillTotals(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.lastDryRun)
	assert.True(t, *mock.lastDryRun)

	c, w = newTestContext(http.MethodPost, "/v1/admin/contributor-totals/backfill?dry_run=maybe", "")
	h.BackfillTotals(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandlerExportStats(t *testing.T) {
	mock := &adminServiceMock{}
	h := NewAdminHandler(mock, mock, mock, mock)
	c, w := newTestContext(http.MethodGet, "/v1/admin/stats/export?format=csv&collection_id=c1", "")

	h.ExportStats(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", mock.lastFormat)
	assert.Equal(t, "c1", mock.lastColl)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "collections-stats.csv")
}

func TestAdminHandlerCollectOrphans(t *testing.T) {
	mock := &adminServiceMock{}
	h := NewAdminHandler(mock, mock, mock, mock)
	c, w := newTestContext(http.MethodPost, "/v1/admin/orphans/collect", "")

	h.CollectOrphans(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.lastDryRun)
	assert.False(t, *mock.lastDryRun)
}

func TestMetricsHandlerReady(t *testing.T) {
	healthy := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
	})
	c, w := newTestContext(http.MethodGet, "/ready", "")
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	failing := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("dial tcp: refused") },
	})
	c, w = newTestContext(http.MethodGet, "/ready", "")
	failing.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "refused")

	c, w = newTestContext(http.MethodGet, "/metrics", "")
	failing.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestProfileHandler(t *testing.T) {
	mock := &profileServiceMock{}
	h := NewProfileHandler(mock)

	c, w := newTestContext(http.MethodPatch, "/v1/me/profile", `{"display_name":"Rika","leaderboard_hidden":true}`)
	h.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.last.DisplayName)
	assert.Equal(t, "Rika", *mock.last.DisplayName)

	c, w = newTestContext(http.MethodGet, "/v1/ping", "")
	h.Ping(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"contributor_id":"u1"`)
	assert.Contains(t, w.Body.String(), `"email":"u1@example.com"`)
}

type profileServiceMock struct {
	last models.UpdateProfileRequest
}

func (m *profileServiceMock) Update(ctx context.Context, contributor models.Contributor, req models.UpdateProfileRequest) (*models.ContributorProfile, error) {
	m.last = req
	return &models.ContributorProfile{ContributorID: contributor.ID, DisplayName: *req.DisplayName}, nil
}
