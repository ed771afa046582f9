package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/moracollect-api/internal/models"
)

// SnapshotRepository reads stored snapshot documents. Writes happen inside a
// ContributionTx so they serialise with live counter updates.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository constructs the repository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Get returns sql.ErrNoRows when the document was never built or was dropped.
func (r *SnapshotRepository) Get(ctx context.Context, id string) (*models.SnapshotDocument, error) {
	const query = `SELECT id, kind, collection_id, body, updated_at FROM snapshot_documents WHERE id = $1`
	var doc models.SnapshotDocument
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListIDs returns every stored document id.
func (r *SnapshotRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM snapshot_documents ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list snapshot ids: %w", err)
	}
	return ids, nil
}
