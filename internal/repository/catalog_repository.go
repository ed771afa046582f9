package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/moracollect-api/internal/models"
)

// CatalogRepository persists collections and items.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository instantiates a catalog repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetCollection loads a collection by identifier.
func (r *CatalogRepository) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	const query = `SELECT id, title, description, sort_order, is_active, created_at, updated_at FROM collections WHERE id = $1`
	var collection models.Collection
	if err := r.db.GetContext(ctx, &collection, query, id); err != nil {
		return nil, err
	}
	return &collection, nil
}

// GetItem loads an item by identifier.
func (r *CatalogRepository) GetItem(ctx context.Context, id string) (*models.Item, error) {
	const query = `SELECT id, collection_id, text, type, sort_order, is_active, created_at, updated_at FROM items WHERE id = $1`
	var item models.Item
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Seed upserts the provided catalog and, when prune is set, removes rows absent
// from it. Aggregates and submissions are left untouched.
func (r *CatalogRepository) Seed(ctx context.Context, seed models.CatalogSeed, prune bool) (result models.CatalogSeedResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const upsertCollection = `INSERT INTO collections (id, title, description, sort_order, is_active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6)
	ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description,
	sort_order = EXCLUDED.sort_order, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`
	collectionIDs := make([]string, 0, len(seed.Collections))
	for _, c := range seed.Collections {
		if _, err = tx.ExecContext(ctx, upsertCollection, c.ID, c.Title, c.Description, c.Order, c.IsActive, now); err != nil {
			return result, fmt.Errorf("upsert collection %s: %w", c.ID, err)
		}
		collectionIDs = append(collectionIDs, c.ID)
	}

	const upsertItem = `INSERT INTO items (id, collection_id, text, type, sort_order, is_active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	ON CONFLICT (id) DO UPDATE SET collection_id = EXCLUDED.collection_id, text = EXCLUDED.text, type = EXCLUDED.type,
	sort_order = EXCLUDED.sort_order, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`
	itemIDs := make([]string, 0, len(seed.Items))
	for _, item := range seed.Items {
		if _, err = tx.ExecContext(ctx, upsertItem, item.ID, item.CollectionID, item.Text, item.Type, item.Order, item.IsActive, now); err != nil {
			return result, fmt.Errorf("upsert item %s: %w", item.ID, err)
		}
		itemIDs = append(itemIDs, item.ID)
	}
	result.Collections = len(collectionIDs)
	result.Items = len(itemIDs)

	if prune {
		res, execErr := tx.ExecContext(ctx, `DELETE FROM items WHERE NOT (id = ANY($1))`, pq.Array(itemIDs))
		if execErr != nil {
			err = fmt.Errorf("prune items: %w", execErr)
			return result, err
		}
		pruned, _ := res.RowsAffected()
		result.PrunedItems = int(pruned)

		res, execErr = tx.ExecContext(ctx, `DELETE FROM collections WHERE NOT (id = ANY($1))`, pq.Array(collectionIDs))
		if execErr != nil {
			err = fmt.Errorf("prune collections: %w", execErr)
			return result, err
		}
		pruned, _ = res.RowsAffected()
		result.PrunedCollections = int(pruned)
	}

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("commit seed tx: %w", err)
	}
	return result, nil
}
