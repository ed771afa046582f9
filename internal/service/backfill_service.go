package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
)

type submissionCounter interface {
	CountByContributor(ctx context.Context) (map[string]int64, error)
}

type contributorTotalStore interface {
	ListTotals(ctx context.Context) (map[string]int64, error)
	SaveTotals(ctx context.Context, totals []models.ContributorTotal) error
}

// BackfillService recomputes contributor totals from the ledger. It is an
// operator procedure and should run while registrations are paused.
type BackfillService struct {
	submissions submissionCounter
	totals      contributorTotalStore
	logger      *zap.Logger
	batchSize   int
}

// NewBackfillService constructs the service.
func NewBackfillService(submissions submissionCounter, totals contributorTotalStore, logger *zap.Logger, batchSize int) *BackfillService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 400
	}
	return &BackfillService{submissions: submissions, totals: totals, logger: logger, batchSize: batchSize}
}

// Backfill counts live submissions for every contributor that has a total or a
// submission and overwrites totals that differ. With dryRun nothing is written.
func (s *BackfillService) Backfill(ctx context.Context, dryRun bool) (*models.BackfillReport, error) {
	counts, err := s.submissions.CountByContributor(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count submissions")
	}
	stored, err := s.totals.ListTotals(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load contributor totals")
	}

	targets := make(map[string]struct{}, len(counts)+len(stored))
	report := &models.BackfillReport{DryRun: dryRun, Deltas: []models.BackfillDelta{}}
	for id, n := range counts {
		targets[id] = struct{}{}
		report.TotalSubmissions += n
		if n > 0 {
			report.ContributorsWithSubmissions++
		}
	}
	for id := range stored {
		targets[id] = struct{}{}
	}
	report.TargetContributors = len(targets)

	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	pending := make([]models.ContributorTotal, 0, s.batchSize)
	for _, id := range ids {
		previous, known := stored[id]
		counted := counts[id]
		if known && previous == counted {
			continue
		}
		report.Deltas = append(report.Deltas, models.BackfillDelta{ContributorID: id, Previous: previous, Counted: counted})
		if dryRun {
			continue
		}
		pending = append(pending, models.ContributorTotal{ContributorID: id, ContributionCount: counted, UpdatedAt: now})
		if len(pending) == s.batchSize {
			if err := s.totals.SaveTotals(ctx, pending); err != nil {
				return nil, appErrors.Internal(err, "failed to save contributor totals")
			}
			pending = pending[:0]
		}
	}
	if !dryRun && len(pending) > 0 {
		if err := s.totals.SaveTotals(ctx, pending); err != nil {
			return nil, appErrors.Internal(err, "failed to save contributor totals")
		}
	}
	report.Changed = len(report.Deltas)

	s.logger.Info("contributor totals backfilled",
		zap.Bool("dry_run", dryRun),
		zap.Int("target_contributors", report.TargetContributors),
		zap.Int("changed", report.Changed),
		zap.Int64("total_submissions", report.TotalSubmissions),
	)
	return report, nil
}
