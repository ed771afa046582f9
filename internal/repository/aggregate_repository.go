package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/moracollect-api/internal/models"
)

// AggregateRepository reads committed aggregate counters outside of a
// contribution transaction. It never writes.
type AggregateRepository struct {
	db *sqlx.DB
}

// NewAggregateRepository constructs the repository.
func NewAggregateRepository(db *sqlx.DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

// ListCollectionStats joins every collection with its counters.
func (r *AggregateRepository) ListCollectionStats(ctx context.Context) ([]models.CollectionStats, error) {
	return selectCollectionStats(ctx, r.db)
}

// ListItemStats joins every item of a collection with its counters.
func (r *AggregateRepository) ListItemStats(ctx context.Context, collectionID string) ([]models.ItemStats, error) {
	return selectItemStats(ctx, r.db, collectionID)
}

// GetAggregate returns sql.ErrNoRows when the entity was never counted.
func (r *AggregateRepository) GetAggregate(ctx context.Context, kind models.EntityKind, entityID string) (*models.Aggregate, error) {
	const query = `SELECT entity_kind, entity_id, total_submissions, unique_contributors, updated_at
	FROM entity_aggregates WHERE entity_kind = $1 AND entity_id = $2`
	var aggregate models.Aggregate
	if err := r.db.GetContext(ctx, &aggregate, query, kind, entityID); err != nil {
		return nil, err
	}
	return &aggregate, nil
}
