package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/moracollect-api/internal/models"
	"github.com/noah-isme/moracollect-api/internal/repository"
	"github.com/noah-isme/moracollect-api/pkg/storage"
)

// memoryState is the full database content of memoryStore.
type memoryState struct {
	collections map[string]models.Collection
	items       map[string]models.Item
	submissions map[string]models.Submission
	mirror      map[string]models.MirrorEntry
	memberships map[string]bool
	aggregates  map[string]models.Aggregate
	totals      map[string]models.ContributorTotal
	profiles    map[string]models.ContributorProfile
	snapshots   map[string]models.SnapshotDocument
}

func newMemoryState() memoryState {
	return memoryState{
		collections: map[string]models.Collection{},
		items:       map[string]models.Item{},
		submissions: map[string]models.Submission{},
		mirror:      map[string]models.MirrorEntry{},
		memberships: map[string]bool{},
		aggregates:  map[string]models.Aggregate{},
		totals:      map[string]models.ContributorTotal{},
		profiles:    map[string]models.ContributorProfile{},
		snapshots:   map[string]models.SnapshotDocument{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s memoryState) clone() memoryState {
	return memoryState{
		collections: cloneMap(s.collections),
		items:       cloneMap(s.items),
		submissions: cloneMap(s.submissions),
		mirror:      cloneMap(s.mirror),
		memberships: cloneMap(s.memberships),
		aggregates:  cloneMap(s.aggregates),
		totals:      cloneMap(s.totals),
		profiles:    cloneMap(s.profiles),
		snapshots:   cloneMap(s.snapshots),
	}
}

// memoryStore is a serialisable in-memory stand-in for PostgreSQL. Every
// transaction runs under one mutex and rolls back by restoring a copy.
type memoryStore struct {
	mu      sync.Mutex
	state   memoryState
	clock   time.Time
	txCount int

	// failAfterWork fails the next transaction after fn returned.
	failAfterWork error
	// readErr fails reads of snapshot documents.
	readErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		state: newMemoryState(),
		clock: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (s *memoryStore) WithinTx(ctx context.Context, fn func(tx repository.ContributionTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	s.clock = s.clock.Add(time.Second)
	saved := s.state.clone()
	err := fn(&memoryTx{store: s, now: s.clock})
	if err == nil && s.failAfterWork != nil {
		err = s.failAfterWork
		s.failAfterWork = nil
	}
	if err != nil {
		s.state = saved
	}
	return err
}

func (s *memoryStore) addCollection(id string, order int, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.collections[id] = models.Collection{ID: id, Title: "Title " + id, Order: order, IsActive: active}
}

func (s *memoryStore) addItem(id, collectionID string, order int, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.items[id] = models.Item{ID: id, CollectionID: collectionID, Text: "text " + id, Type: models.DefaultItemType, Order: order, IsActive: active}
}

func (s *memoryStore) snapshot() memoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *memoryStore) aggregate(kind models.EntityKind, id string) models.Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.aggregates[aggregateKey(kind, id)]
}

func (s *memoryStore) total(contributorID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.totals[contributorID].ContributionCount
}

func (s *memoryStore) setAggregate(kind models.EntityKind, id string, total, unique int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.aggregates[aggregateKey(kind, id)] = models.Aggregate{Kind: kind, EntityID: id, TotalSubmissions: total, UniqueContributors: unique, UpdatedAt: s.clock}
}

func aggregateKey(kind models.EntityKind, id string) string {
	return string(kind) + "|" + id
}

func membershipKey(kind models.EntityKind, entityID, contributorID string) string {
	return string(kind) + "|" + entityID + "|" + contributorID
}

// Read-side repositories.

func (s *memoryStore) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.collections[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *memoryStore) GetItem(ctx context.Context, id string) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.state.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &it, nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*models.SnapshotDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	doc, ok := s.state.snapshots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &doc, nil
}

func (s *memoryStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.state.snapshots))
	for id := range s.state.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryStore) ListCollectionStats(ctx context.Context) ([]models.CollectionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.collectionStats(), nil
}

func (s *memoryStore) ListItemStats(ctx context.Context, collectionID string) ([]models.ItemStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.itemStats(collectionID), nil
}

func (s *memoryStore) CountByContributor(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	for _, sub := range s.state.submissions {
		counts[sub.ContributorID]++
	}
	return counts, nil
}

func (s *memoryStore) ListTotals(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := map[string]int64{}
	for id, t := range s.state.totals {
		totals[id] = t.ContributionCount
	}
	return totals, nil
}

func (s *memoryStore) SaveTotals(ctx context.Context, totals []models.ContributorTotal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range totals {
		s.state.totals[t.ContributorID] = t
	}
	return nil
}

func (s *memoryStore) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := map[string]bool{}
	for _, id := range ids {
		if _, ok := s.state.submissions[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

func (s *memoryStore) ListMirror(ctx context.Context, filter models.MirrorFilter) ([]models.MirrorEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []models.MirrorEntry
	for _, e := range s.state.mirror {
		if e.ContributorID != filter.ContributorID {
			continue
		}
		if a := filter.After; a != nil {
			if e.CreatedAt.After(a.CreatedAt) || (e.CreatedAt.Equal(a.CreatedAt) && e.SubmissionID >= a.SubmissionID) {
				continue
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].SubmissionID > entries[j].SubmissionID
	})
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (s *memoryStore) TopContributors(ctx context.Context, limit int) ([]models.LeaderboardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.LeaderboardRow
	for id, t := range s.state.totals {
		profile := s.state.profiles[id]
		if t.ContributionCount <= 0 || profile.LeaderboardHidden {
			continue
		}
		rows = append(rows, models.LeaderboardRow{ContributorID: id, DisplayName: profile.DisplayName, ContributionCount: t.ContributionCount})
	}
	ranked := rankContributors(rows)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]models.LeaderboardRow, 0, len(ranked))
	for _, e := range ranked {
		out = append(out, models.LeaderboardRow{ContributorID: e.ContributorID, DisplayName: s.state.profiles[e.ContributorID].DisplayName, ContributionCount: e.ContributionCount})
	}
	return out, nil
}

func (s *memoryStore) GetProfile(ctx context.Context, contributorID string) (*models.ContributorProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.profiles[contributorID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (s *memoryStore) UpsertProfile(ctx context.Context, profile *models.ContributorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.profiles[profile.ContributorID] = *profile
	return nil
}

func (st memoryState) collectionStats() []models.CollectionStats {
	stats := make([]models.CollectionStats, 0, len(st.collections))
	for _, c := range st.collections {
		row := models.CollectionStats{Collection: c}
		for _, it := range st.items {
			if it.CollectionID == c.ID && it.IsActive {
				row.ItemCount++
			}
		}
		if a, ok := st.aggregates[aggregateKey(models.EntityCollection, c.ID)]; ok {
			row.TotalSubmissions = a.TotalSubmissions
			row.UniqueContributors = a.UniqueContributors
			updated := a.UpdatedAt
			row.AggregateUpdatedAt = &updated
		}
		stats = append(stats, row)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Order != stats[j].Order {
			return stats[i].Order < stats[j].Order
		}
		return stats[i].ID < stats[j].ID
	})
	return stats
}

func (st memoryState) itemStats(collectionID string) []models.ItemStats {
	var stats []models.ItemStats
	for _, it := range st.items {
		if it.CollectionID != collectionID {
			continue
		}
		row := models.ItemStats{Item: it}
		if a, ok := st.aggregates[aggregateKey(models.EntityItem, it.ID)]; ok {
			row.TotalSubmissions = a.TotalSubmissions
			row.UniqueContributors = a.UniqueContributors
			updated := a.UpdatedAt
			row.AggregateUpdatedAt = &updated
		}
		stats = append(stats, row)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Order != stats[j].Order {
			return stats[i].Order < stats[j].Order
		}
		return stats[i].ID < stats[j].ID
	})
	return stats
}

// memoryTx operates on the store while its mutex is held by WithinTx.
type memoryTx struct {
	store *memoryStore
	now   time.Time
}

func (t *memoryTx) st() *memoryState { return &t.store.state }

func (t *memoryTx) Now() time.Time { return t.now }

func (t *memoryTx) ListCollectionStats(ctx context.Context) ([]models.CollectionStats, error) {
	return t.st().collectionStats(), nil
}

func (t *memoryTx) ListItemStats(ctx context.Context, collectionID string) ([]models.ItemStats, error) {
	return t.st().itemStats(collectionID), nil
}

func (t *memoryTx) LockSubmission(ctx context.Context, id string) (*models.Submission, error) {
	sub, ok := t.st().submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &sub, nil
}

func (t *memoryTx) InsertSubmission(ctx context.Context, submission *models.Submission, mirror *models.MirrorEntry) error {
	if _, ok := t.st().submissions[submission.ID]; ok {
		return errors.New("duplicate submission")
	}
	for _, existing := range t.st().submissions {
		if existing.ObjectPath == submission.ObjectPath {
			return errors.New("duplicate object path")
		}
	}
	t.st().submissions[submission.ID] = *submission
	t.st().mirror[submission.ID] = *mirror
	return nil
}

func (t *memoryTx) DeleteSubmission(ctx context.Context, submission *models.Submission) error {
	delete(t.st().submissions, submission.ID)
	delete(t.st().mirror, submission.ID)
	return nil
}

func (t *memoryTx) ClaimMembership(ctx context.Context, kind models.EntityKind, entityID, contributorID string) (bool, error) {
	key := membershipKey(kind, entityID, contributorID)
	if t.st().memberships[key] {
		return false, nil
	}
	t.st().memberships[key] = true
	return true, nil
}

func (t *memoryTx) LockMembership(ctx context.Context, kind models.EntityKind, entityID, contributorID string) (bool, error) {
	return t.st().memberships[membershipKey(kind, entityID, contributorID)], nil
}

func (t *memoryTx) HasLiveSubmission(ctx context.Context, kind models.EntityKind, entityID, contributorID string) (bool, error) {
	for _, sub := range t.st().submissions {
		if sub.ContributorID != contributorID {
			continue
		}
		if (kind == models.EntityItem && sub.ItemID == entityID) || (kind == models.EntityCollection && sub.CollectionID == entityID) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) DeleteMembership(ctx context.Context, kind models.EntityKind, entityID, contributorID string) error {
	delete(t.st().memberships, membershipKey(kind, entityID, contributorID))
	return nil
}

func (t *memoryTx) LockAggregate(ctx context.Context, kind models.EntityKind, entityID string) (*models.Aggregate, error) {
	key := aggregateKey(kind, entityID)
	a, ok := t.st().aggregates[key]
	if !ok {
		a = models.Aggregate{Kind: kind, EntityID: entityID, UpdatedAt: t.now}
		t.st().aggregates[key] = a
	}
	return &a, nil
}

func (t *memoryTx) SaveAggregate(ctx context.Context, aggregate *models.Aggregate) error {
	t.st().aggregates[aggregateKey(aggregate.Kind, aggregate.EntityID)] = *aggregate
	return nil
}

func (t *memoryTx) LockContributorTotal(ctx context.Context, contributorID string) (*models.ContributorTotal, error) {
	total, ok := t.st().totals[contributorID]
	if !ok {
		total = models.ContributorTotal{ContributorID: contributorID, UpdatedAt: t.now}
		t.st().totals[contributorID] = total
	}
	return &total, nil
}

func (t *memoryTx) SaveContributorTotal(ctx context.Context, total *models.ContributorTotal) error {
	t.st().totals[total.ContributorID] = *total
	return nil
}

func (t *memoryTx) EnsureProfile(ctx context.Context, contributorID, displayName string) error {
	if _, ok := t.st().profiles[contributorID]; ok {
		return nil
	}
	t.st().profiles[contributorID] = models.ContributorProfile{ContributorID: contributorID, DisplayName: displayName, CreatedAt: t.now, UpdatedAt: t.now}
	return nil
}

func (t *memoryTx) LockSnapshot(ctx context.Context, id string) error { return nil }

func (t *memoryTx) SaveSnapshot(ctx context.Context, doc *models.SnapshotDocument) error {
	t.st().snapshots[doc.ID] = *doc
	return nil
}

func (t *memoryTx) DeleteSnapshot(ctx context.Context, id string) error {
	delete(t.st().snapshots, id)
	return nil
}

// failingBlobs wraps a blob store and fails deletes of matching paths.
type failingBlobs struct {
	storage.BlobStore
	failDelete string
}

func (f *failingBlobs) Delete(ctx context.Context, path string) error {
	if f.failDelete != "" && strings.HasPrefix(path, f.failDelete) {
		return errors.New("blob backend unavailable")
	}
	return f.BlobStore.Delete(ctx, path)
}

// contributionHarness wires the write and read services to one memoryStore.
type contributionHarness struct {
	store        *memoryStore
	blobs        *storage.LocalStore
	metrics      *MetricsService
	snapshots    *SnapshotService
	registration *RegistrationService
	deletion     *DeletionService
}

func newContributionHarness(t *testing.T) *contributionHarness {
	t.Helper()
	store := newMemoryStore()
	store.addCollection("c1", 1, true)
	store.addCollection("c2", 2, true)
	store.addItem("i1", "c1", 1, true)
	store.addItem("i2", "c1", 2, true)
	store.addItem("i3", "c2", 1, true)

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	logger := zap.NewNop()
	metrics := NewMetricsService()
	snapshots := NewSnapshotService(store, store, store, nil, metrics, logger, 2)
	registration := NewRegistrationService(store, store, blobs, snapshots, nil, metrics, logger, RegistrationConfig{
		RawPrefix:              "raw",
		AllowedExtensions:      []string{"webm", "m4a", "wav"},
		AllowedMIMETypes:       []string{"audio/webm", "audio/mp4", "audio/wav"},
		MaxBytes:               10 << 20,
		MaxDurationMs:          60_000,
		ClientMetadataMaxBytes: 2048,
	})
	deletion := NewDeletionService(store, blobs, snapshots, metrics, logger, []string{"processed"})
	return &contributionHarness{
		store:        store,
		blobs:        blobs,
		metrics:      metrics,
		snapshots:    snapshots,
		registration: registration,
		deletion:     deletion,
	}
}

// upload stores a raw blob for the contributor and returns a matching request.
func (h *contributionHarness) upload(t *testing.T, contributorID, submissionID, itemID, collectionID string) models.RegisterSubmissionRequest {
	t.Helper()
	objectPath := "raw/" + contributorID + "/" + submissionID + ".webm"
	require.NoError(t, h.blobs.Save(objectPath, []byte("audio")))
	return models.RegisterSubmissionRequest{
		SubmissionID:    submissionID,
		ObjectPath:      objectPath,
		ItemID:          itemID,
		CollectionID:    collectionID,
		CaptureMetadata: models.CaptureMetadata{MimeType: "audio/webm;codecs=opus", SizeBytes: 2048, DurationMs: 1500},
	}
}

func contributor(id string) models.Contributor {
	return models.Contributor{ID: id, DisplayName: "Name " + id}
}
