package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
)

type catalogSeeder interface {
	Seed(ctx context.Context, seed models.CatalogSeed, prune bool) (models.CatalogSeedResult, error)
}

type snapshotRebuilder interface {
	Rebuild(ctx context.Context) (models.RebuildReport, error)
}

// CatalogService loads the collection/item catalog from seed files.
type CatalogService struct {
	repo      catalogSeeder
	snapshots snapshotRebuilder
	logger    *zap.Logger
}

// NewCatalogService constructs the service.
func NewCatalogService(repo catalogSeeder, snapshots snapshotRebuilder, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, snapshots: snapshots, logger: logger}
}

type collectionSeed struct {
	CollectionID string `json:"collection_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Order        int    `json:"order"`
	IsActive     *bool  `json:"is_active"`
}

type itemSeed struct {
	ItemID       string `json:"item_id"`
	CollectionID string `json:"collection_id"`
	Text         string `json:"text"`
	Type         string `json:"type"`
	Order        int    `json:"order"`
	IsActive     *bool  `json:"is_active"`
}

// DecodeCatalogSeed parses the collections and items seed documents (JSON arrays).
func DecodeCatalogSeed(collectionsJSON, itemsJSON []byte) (models.CatalogSeed, error) {
	var seed models.CatalogSeed
	var collections []collectionSeed
	if err := json.Unmarshal(collectionsJSON, &collections); err != nil {
		return seed, fmt.Errorf("decode collections seed: %w", err)
	}
	var items []itemSeed
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return seed, fmt.Errorf("decode items seed: %w", err)
	}
	for _, c := range collections {
		seed.Collections = append(seed.Collections, models.Collection{
			ID:          strings.TrimSpace(c.CollectionID),
			Title:       strings.TrimSpace(c.Title),
			Description: c.Description,
			Order:       c.Order,
			IsActive:    c.IsActive == nil || *c.IsActive,
		})
	}
	for _, it := range items {
		itemType := strings.TrimSpace(it.Type)
		if itemType == "" {
			itemType = models.DefaultItemType
		}
		seed.Items = append(seed.Items, models.Item{
			ID:           strings.TrimSpace(it.ItemID),
			CollectionID: strings.TrimSpace(it.CollectionID),
			Text:         strings.TrimSpace(it.Text),
			Type:         itemType,
			Order:        it.Order,
			IsActive:     it.IsActive == nil || *it.IsActive,
		})
	}
	return seed, nil
}

// Seed validates and stores the catalog, then rebuilds the snapshots so
// listings reflect the new catalog immediately.
func (s *CatalogService) Seed(ctx context.Context, seed models.CatalogSeed, prune bool) (*models.CatalogSeedResult, error) {
	if err := validateSeed(seed); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, err.Error())
	}
	result, err := s.repo.Seed(ctx, seed, prune)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to seed catalog")
	}
	if _, err := s.snapshots.Rebuild(ctx); err != nil {
		return nil, appErrors.Internal(err, "catalog seeded but snapshot rebuild failed")
	}
	result.SnapshotsRebuilt = true
	s.logger.Info("catalog seeded",
		zap.Int("collections", result.Collections),
		zap.Int("items", result.Items),
		zap.Int("pruned_collections", result.PrunedCollections),
		zap.Int("pruned_items", result.PrunedItems),
	)
	return &result, nil
}

func validateSeed(seed models.CatalogSeed) error {
	collections := make(map[string]bool, len(seed.Collections))
	for i, c := range seed.Collections {
		if c.ID == "" || strings.Contains(c.ID, "/") {
			return fmt.Errorf("collections[%d]: invalid collection_id", i)
		}
		if c.Title == "" {
			return fmt.Errorf("collections[%d]: title is required", i)
		}
		if collections[c.ID] {
			return fmt.Errorf("collections[%d]: duplicate collection_id %q", i, c.ID)
		}
		collections[c.ID] = true
	}
	items := make(map[string]bool, len(seed.Items))
	for i, it := range seed.Items {
		if it.ID == "" || strings.Contains(it.ID, "/") {
			return fmt.Errorf("items[%d]: invalid item_id", i)
		}
		if it.Text == "" {
			return fmt.Errorf("items[%d]: text is required", i)
		}
		if !collections[it.CollectionID] {
			return fmt.Errorf("items[%d]: unknown collection_id %q", i, it.CollectionID)
		}
		if items[it.ID] {
			return fmt.Errorf("items[%d]: duplicate item_id %q", i, it.ID)
		}
		items[it.ID] = true
	}
	return nil
}
