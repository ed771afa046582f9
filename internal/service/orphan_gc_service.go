package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
	"github.com/noah-isme/moracollect-api/pkg/storage"
)

type submissionLookup interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
}

// OrphanGCConfig controls an orphan collection run. DerivedPrefixes hold
// processed renditions laid out like raw uploads; they are scanned too.
type OrphanGCConfig struct {
	RawPrefix       string
	DerivedPrefixes []string
	GracePeriod     time.Duration
	Concurrency     int
}

// OrphanGCService deletes raw uploads and derived renditions whose submission
// is not in the ledger. Blobs younger than the grace period are left alone
// since their registration may still be in flight.
type OrphanGCService struct {
	blobs       storage.BlobStore
	submissions submissionLookup
	logger      *zap.Logger
	cfg         OrphanGCConfig
	now         func() time.Time
}

// NewOrphanGCService constructs the service.
func NewOrphanGCService(blobs storage.BlobStore, submissions submissionLookup, logger *zap.Logger, cfg OrphanGCConfig) *OrphanGCService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RawPrefix == "" {
		cfg.RawPrefix = "raw"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &OrphanGCService{blobs: blobs, submissions: submissions, logger: logger, cfg: cfg, now: time.Now}
}

// Collect scans the raw and derived prefixes and removes orphaned blobs. With
// dryRun the orphans are only reported.
func (s *OrphanGCService) Collect(ctx context.Context, dryRun bool) (*models.OrphanReport, error) {
	report := &models.OrphanReport{DryRun: dryRun, Orphans: []string{}}
	cutoff := s.now().Add(-s.cfg.GracePeriod)
	candidates := make(map[string][]string)
	for _, prefix := range s.prefixes() {
		objects, err := s.blobs.List(ctx, prefix+"/")
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list stored audio")
		}
		report.Scanned += len(objects)
		for _, obj := range objects {
			if obj.Updated.After(cutoff) {
				continue
			}
			// Ledger ids are canonical UUIDs, so the lookup must use the same form.
			id, ok := blobSubmissionID(prefix, obj.Path)
			if !ok {
				s.logger.Warn("skipping unrecognised blob path", zap.String("path", obj.Path))
				continue
			}
			candidates[id] = append(candidates[id], obj.Path)
		}
	}
	if len(candidates) == 0 {
		return report, nil
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	existing, err := s.submissions.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to look up submissions")
	}
	for _, id := range ids {
		if !existing[id] {
			report.Orphans = append(report.Orphans, candidates[id]...)
		}
	}
	sort.Strings(report.Orphans)

	if dryRun || len(report.Orphans) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, p := range report.Orphans {
		p := p
		g.Go(func() error {
			err := s.blobs.Delete(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				s.logger.Warn("failed to delete orphaned blob", zap.String("path", p), zap.Error(err))
				return nil
			}
			report.Deleted++
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("orphaned blobs collected",
		zap.Int("scanned", report.Scanned),
		zap.Int("orphans", len(report.Orphans)),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *OrphanGCService) prefixes() []string {
	prefixes := []string{s.cfg.RawPrefix}
	for _, p := range s.cfg.DerivedPrefixes {
		p = strings.Trim(p, "/")
		if p != "" && p != s.cfg.RawPrefix {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}
