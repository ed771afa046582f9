package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/moracollect-api/internal/models"
)

// SubmissionRepository serves read paths over the ledger and its mirror.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// ListMirror returns one page of a contributor's submissions, newest first.
// Callers pass Limit+1 to detect a following page.
func (r *SubmissionRepository) ListMirror(ctx context.Context, filter models.MirrorFilter) ([]models.MirrorEntry, error) {
	builder := strings.Builder{}
	args := []interface{}{filter.ContributorID}
	builder.WriteString(`SELECT contributor_id, submission_id, item_id, collection_id, item_label, object_path, mime_type, size_bytes, duration_ms, status, created_at
	FROM submission_mirror WHERE contributor_id = $1`)
	if filter.After != nil {
		args = append(args, filter.After.CreatedAt, filter.After.SubmissionID)
		builder.WriteString(" AND (created_at, submission_id) < ($2, $3)")
	}
	builder.WriteString(" ORDER BY created_at DESC, submission_id DESC")
	args = append(args, filter.Limit)
	builder.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))

	var entries []models.MirrorEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list submission mirror: %w", err)
	}
	return entries, nil
}

// ExistingIDs reports which of ids still have a ledger entry.
func (r *SubmissionRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	var existing []string
	if err := r.db.SelectContext(ctx, &existing, `SELECT id::text FROM submissions WHERE id::text = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lookup submission ids: %w", err)
	}
	for _, id := range existing {
		found[id] = true
	}
	return found, nil
}

// CountByContributor counts live submissions per contributor.
func (r *SubmissionRepository) CountByContributor(ctx context.Context) (map[string]int64, error) {
	rows := []struct {
		ContributorID string `db:"contributor_id"`
		Count         int64  `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, `SELECT contributor_id, COUNT(*) AS count FROM submissions GROUP BY contributor_id`); err != nil {
		return nil, fmt.Errorf("count submissions by contributor: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ContributorID] = row.Count
	}
	return counts, nil
}
