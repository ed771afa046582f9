package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/moracollect-api/internal/models"
	"github.com/noah-isme/moracollect-api/internal/repository"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
)

const snapshotCachePrefix = "snapshot:"

type snapshotDocuments interface {
	Get(ctx context.Context, id string) (*models.SnapshotDocument, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// SnapshotService maintains and serves the listing projections. Documents are
// written in the same transaction as the counters they project, read through
// an optional edge cache, and derived straight from the counters when missing.
type SnapshotService struct {
	store       contributionStore
	docs        snapshotDocuments
	stats       repository.StatsReader
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	concurrency int
}

// NewSnapshotService constructs the service.
func NewSnapshotService(store contributionStore, docs snapshotDocuments, stats repository.StatsReader, cache *CacheService, metrics *MetricsService, logger *zap.Logger, concurrency int) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SnapshotService{store: store, docs: docs, stats: stats, cache: cache, metrics: metrics, logger: logger, concurrency: concurrency}
}

// WriteThrough refreshes the items document of collectionID and the overview
// document inside tx. It must run after the aggregates were saved. It returns
// the ids of the documents it touched so the caller can invalidate them once
// the transaction committed.
func (s *SnapshotService) WriteThrough(ctx context.Context, tx repository.ContributionTx, collectionID string) ([]string, error) {
	itemsID := models.ItemsSnapshotID(collectionID)
	if err := tx.LockSnapshot(ctx, itemsID); err != nil {
		return nil, err
	}
	if err := tx.LockSnapshot(ctx, models.CollectionsSnapshotID); err != nil {
		return nil, err
	}

	collections, err := tx.ListCollectionStats(ctx)
	if err != nil {
		return nil, err
	}
	if containsCollection(collections, collectionID) {
		items, err := tx.ListItemStats(ctx, collectionID)
		if err != nil {
			return nil, err
		}
		doc, err := BuildItemsDocument(collectionID, items)
		if err != nil {
			return nil, err
		}
		if err := tx.SaveSnapshot(ctx, doc); err != nil {
			return nil, err
		}
	} else if err := tx.DeleteSnapshot(ctx, itemsID); err != nil {
		return nil, err
	}

	overview, err := BuildCollectionsDocument(collections)
	if err != nil {
		return nil, err
	}
	if err := tx.SaveSnapshot(ctx, overview); err != nil {
		return nil, err
	}
	return []string{itemsID, models.CollectionsSnapshotID}, nil
}

// Invalidate drops edge cache entries of the given documents.
func (s *SnapshotService) Invalidate(ctx context.Context, ids ...string) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, snapshotCachePrefix+id)
	}
	s.cache.Invalidate(ctx, keys...)
}

// ListCollections returns active collections ordered by (order, id).
func (s *SnapshotService) ListCollections(ctx context.Context) (*models.CollectionListing, error) {
	snapshot, source, err := s.collectionsSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSnapshotRead(source)
	return &models.CollectionListing{Collections: activeCollections(snapshot), Source: source}, nil
}

// ListItems returns the active items of an active collection ordered by (order, id).
func (s *SnapshotService) ListItems(ctx context.Context, collectionID string) (*models.ItemListing, error) {
	overview, overviewSource, err := s.collectionsSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := overview.Collections[collectionID]
	if !ok || !entry.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "collection not found")
	}
	items, source, err := s.itemsSnapshot(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if overviewSource == models.ListingFromFallback {
		source = models.ListingFromFallback
	}
	s.metrics.RecordSnapshotRead(source)
	return &models.ItemListing{Collection: entry, Items: activeItems(items), Source: source}, nil
}

func (s *SnapshotService) collectionsSnapshot(ctx context.Context) (*models.CollectionsSnapshot, models.ListingSource, error) {
	body, source, err := s.readDocument(ctx, models.CollectionsSnapshotID)
	if err != nil {
		return nil, "", err
	}
	if body == nil {
		stats, err := s.stats.ListCollectionStats(ctx)
		if err != nil {
			return nil, "", appErrors.Internal(err, "failed to derive collection listing")
		}
		snapshot := collectionsSnapshotFromStats(stats)
		return &snapshot, models.ListingFromFallback, nil
	}
	var snapshot models.CollectionsSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, "", appErrors.Internal(err, "failed to decode collection snapshot")
	}
	return &snapshot, source, nil
}

func (s *SnapshotService) itemsSnapshot(ctx context.Context, collectionID string) (*models.ItemsSnapshot, models.ListingSource, error) {
	body, source, err := s.readDocument(ctx, models.ItemsSnapshotID(collectionID))
	if err != nil {
		return nil, "", err
	}
	if body == nil {
		stats, err := s.stats.ListItemStats(ctx, collectionID)
		if err != nil {
			return nil, "", appErrors.Internal(err, "failed to derive item listing")
		}
		snapshot := itemsSnapshotFromStats(collectionID, stats)
		return &snapshot, models.ListingFromFallback, nil
	}
	var snapshot models.ItemsSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, "", appErrors.Internal(err, "failed to decode item snapshot")
	}
	return &snapshot, source, nil
}

// readDocument returns nil bytes when the document is absent.
func (s *SnapshotService) readDocument(ctx context.Context, id string) ([]byte, models.ListingSource, error) {
	key := snapshotCachePrefix + id
	if raw, hit := s.cache.Get(ctx, key); hit {
		return raw, models.ListingFromEdge, nil
	}
	gen, fillable := s.cache.Generation(ctx, key)
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		s.logger.Warn("snapshot read failed, deriving from aggregates", zap.String("document", id), zap.Error(err))
		return nil, "", nil
	}
	body := []byte(doc.Body)
	if fillable {
		s.cache.Fill(ctx, key, gen, body)
	}
	return body, models.ListingFromSnapshot, nil
}

// Rebuild recomputes every snapshot document from the current counters and
// removes items documents of collections that left the catalog. It only reads
// counters and is safe to run alongside live traffic.
func (s *SnapshotService) Rebuild(ctx context.Context) (models.RebuildReport, error) {
	var report models.RebuildReport
	collections, err := s.stats.ListCollectionStats(ctx)
	if err != nil {
		return report, fmt.Errorf("list collections: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for _, c := range collections {
		collectionID := c.ID
		group.Go(func() error {
			return s.store.WithinTx(groupCtx, func(tx repository.ContributionTx) error {
				if err := tx.LockSnapshot(groupCtx, models.ItemsSnapshotID(collectionID)); err != nil {
					return err
				}
				items, err := tx.ListItemStats(groupCtx, collectionID)
				if err != nil {
					return err
				}
				doc, err := BuildItemsDocument(collectionID, items)
				if err != nil {
					return err
				}
				return tx.SaveSnapshot(groupCtx, doc)
			})
		})
	}
	if err := group.Wait(); err != nil {
		return report, fmt.Errorf("rebuild items snapshots: %w", err)
	}
	report.ItemDocuments = len(collections)

	err = s.store.WithinTx(ctx, func(tx repository.ContributionTx) error {
		if err := tx.LockSnapshot(ctx, models.CollectionsSnapshotID); err != nil {
			return err
		}
		fresh, err := tx.ListCollectionStats(ctx)
		if err != nil {
			return err
		}
		report.Collections = len(fresh)
		doc, err := BuildCollectionsDocument(fresh)
		if err != nil {
			return err
		}
		return tx.SaveSnapshot(ctx, doc)
	})
	if err != nil {
		return report, fmt.Errorf("rebuild collections snapshot: %w", err)
	}

	ids, err := s.docs.ListIDs(ctx)
	if err != nil {
		return report, err
	}
	touched := make([]string, 0, len(collections)+len(ids)+1)
	touched = append(touched, models.CollectionsSnapshotID)
	for _, c := range collections {
		touched = append(touched, models.ItemsSnapshotID(c.ID))
	}
	for _, id := range ids {
		collectionID, ok := models.CollectionFromSnapshotID(id)
		if !ok || containsCollection(collections, collectionID) {
			continue
		}
		err := s.store.WithinTx(ctx, func(tx repository.ContributionTx) error {
			if err := tx.LockSnapshot(ctx, id); err != nil {
				return err
			}
			return tx.DeleteSnapshot(ctx, id)
		})
		if err != nil {
			return report, fmt.Errorf("delete stale snapshot %s: %w", id, err)
		}
		report.DeletedDocuments++
		touched = append(touched, id)
	}

	s.Invalidate(ctx, touched...)
	s.logger.Info("snapshots rebuilt",
		zap.Int("collections", report.Collections),
		zap.Int("item_documents", report.ItemDocuments),
		zap.Int("deleted_documents", report.DeletedDocuments),
	)
	return report, nil
}

// BuildCollectionsDocument renders the overview document. The output depends
// only on stats, so equal counters always produce identical bytes.
func BuildCollectionsDocument(stats []models.CollectionStats) (*models.SnapshotDocument, error) {
	snapshot := collectionsSnapshotFromStats(stats)
	body, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode collections snapshot: %w", err)
	}
	return &models.SnapshotDocument{
		ID:        models.CollectionsSnapshotID,
		Kind:      models.SnapshotCollections,
		Body:      string(body),
		UpdatedAt: documentTime(snapshot.UpdatedAt),
	}, nil
}

// BuildItemsDocument renders the items document of one collection.
func BuildItemsDocument(collectionID string, stats []models.ItemStats) (*models.SnapshotDocument, error) {
	snapshot := itemsSnapshotFromStats(collectionID, stats)
	body, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode items snapshot: %w", err)
	}
	id := collectionID
	return &models.SnapshotDocument{
		ID:           models.ItemsSnapshotID(collectionID),
		Kind:         models.SnapshotItems,
		CollectionID: &id,
		Body:         string(body),
		UpdatedAt:    documentTime(snapshot.UpdatedAt),
	}, nil
}

func collectionsSnapshotFromStats(stats []models.CollectionStats) models.CollectionsSnapshot {
	snapshot := models.CollectionsSnapshot{Collections: make(map[string]models.CollectionEntry, len(stats))}
	for _, c := range stats {
		title := c.Title
		if title == "" {
			title = c.ID
		}
		snapshot.Collections[c.ID] = models.CollectionEntry{
			CollectionID:       c.ID,
			Title:              title,
			Description:        c.Description,
			Order:              c.Order,
			IsActive:           c.IsActive,
			ItemCount:          c.ItemCount,
			TotalSubmissions:   nonNegative(c.TotalSubmissions),
			UniqueContributors: nonNegative(c.UniqueContributors),
		}
		snapshot.UpdatedAt = latest(snapshot.UpdatedAt, c.AggregateUpdatedAt)
	}
	return snapshot
}

func itemsSnapshotFromStats(collectionID string, stats []models.ItemStats) models.ItemsSnapshot {
	snapshot := models.ItemsSnapshot{CollectionID: collectionID, Items: make(map[string]models.ItemEntry, len(stats))}
	for _, item := range stats {
		snapshot.Items[item.ID] = models.ItemEntry{
			ItemID:             item.ID,
			Text:               item.Text,
			Type:               item.Type,
			Order:              item.Order,
			IsActive:           item.IsActive,
			TotalSubmissions:   nonNegative(item.TotalSubmissions),
			UniqueContributors: nonNegative(item.UniqueContributors),
		}
		snapshot.UpdatedAt = latest(snapshot.UpdatedAt, item.AggregateUpdatedAt)
	}
	return snapshot
}

func activeCollections(snapshot *models.CollectionsSnapshot) []models.CollectionEntry {
	entries := make([]models.CollectionEntry, 0, len(snapshot.Collections))
	for _, entry := range snapshot.Collections {
		if entry.IsActive {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Order != entries[j].Order {
			return entries[i].Order < entries[j].Order
		}
		return entries[i].CollectionID < entries[j].CollectionID
	})
	return entries
}

func activeItems(snapshot *models.ItemsSnapshot) []models.ItemEntry {
	entries := make([]models.ItemEntry, 0, len(snapshot.Items))
	for _, entry := range snapshot.Items {
		if entry.IsActive {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Order != entries[j].Order {
			return entries[i].Order < entries[j].Order
		}
		return entries[i].ItemID < entries[j].ItemID
	})
	return entries
}

func containsCollection(stats []models.CollectionStats, id string) bool {
	for _, c := range stats {
		if c.ID == id {
			return true
		}
	}
	return false
}

func latest(current, candidate *time.Time) *time.Time {
	if candidate == nil {
		return current
	}
	c := candidate.UTC().Truncate(time.Microsecond)
	if current == nil || c.After(*current) {
		return &c
	}
	return current
}

func documentTime(t *time.Time) time.Time {
	if t == nil {
		return time.Unix(0, 0).UTC()
	}
	return *t
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
