package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/moracollect-api/internal/models"
)

const collectionStatsQuery = `SELECT c.id, c.title, c.description, c.sort_order, c.is_active, c.created_at, c.updated_at,
       (SELECT COUNT(*) FROM items i WHERE i.collection_id = c.id AND i.is_active) AS item_count,
       COALESCE(a.total_submissions, 0) AS total_submissions,
       COALESCE(a.unique_contributors, 0) AS unique_contributors,
       a.updated_at AS aggregate_updated_at
FROM collections c
LEFT JOIN entity_aggregates a ON a.entity_kind = 'collection' AND a.entity_id = c.id
ORDER BY c.sort_order, c.id`

const itemStatsQuery = `SELECT i.id, i.collection_id, i.text, i.type, i.sort_order, i.is_active, i.created_at, i.updated_at,
       COALESCE(a.total_submissions, 0) AS total_submissions,
       COALESCE(a.unique_contributors, 0) AS unique_contributors,
       a.updated_at AS aggregate_updated_at
FROM items i
LEFT JOIN entity_aggregates a ON a.entity_kind = 'item' AND a.entity_id = i.id
WHERE i.collection_id = $1
ORDER BY i.sort_order, i.id`

func selectCollectionStats(ctx context.Context, q sqlx.QueryerContext) ([]models.CollectionStats, error) {
	var stats []models.CollectionStats
	if err := sqlx.SelectContext(ctx, q, &stats, collectionStatsQuery); err != nil {
		return nil, fmt.Errorf("list collection stats: %w", err)
	}
	return stats, nil
}

func selectItemStats(ctx context.Context, q sqlx.QueryerContext, collectionID string) ([]models.ItemStats, error) {
	var stats []models.ItemStats
	if err := sqlx.SelectContext(ctx, q, &stats, itemStatsQuery, collectionID); err != nil {
		return nil, fmt.Errorf("list item stats: %w", err)
	}
	return stats, nil
}

func entityColumn(kind models.EntityKind) (string, error) {
	switch kind {
	case models.EntityItem:
		return "item_id", nil
	case models.EntityCollection:
		return "collection_id", nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
}
