package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/moracollect-api/internal/models"
	"github.com/noah-isme/moracollect-api/internal/repository"
)

// contributionStore runs one atomic contribution unit of work.
type contributionStore interface {
	WithinTx(ctx context.Context, fn func(tx repository.ContributionTx) error) error
}

// counterGuard applies deltas to maintained counters. A result below zero is
// an invariant violation: it is clamped, logged at error level and counted.
type counterGuard struct {
	logger  *zap.Logger
	metrics *MetricsService
}

func (g counterGuard) apply(counter, entityID string, current, delta int64) int64 {
	next := current + delta
	if next >= 0 {
		return next
	}
	g.logger.Error("counter underflow clamped to zero",
		zap.String("counter", counter),
		zap.String("entity_id", entityID),
		zap.Int64("current", current),
		zap.Int64("delta", delta),
	)
	g.metrics.RecordCounterClamp(counter)
	return 0
}

func (g counterGuard) adjustAggregate(aggregate *models.Aggregate, totalDelta, uniqueDelta int64, now time.Time) {
	prefix := string(aggregate.Kind)
	aggregate.TotalSubmissions = g.apply(prefix+".total_submissions", aggregate.EntityID, aggregate.TotalSubmissions, totalDelta)
	aggregate.UniqueContributors = g.apply(prefix+".unique_contributors", aggregate.EntityID, aggregate.UniqueContributors, uniqueDelta)
	aggregate.UpdatedAt = now
}

func (g counterGuard) adjustTotal(total *models.ContributorTotal, delta int64, now time.Time) {
	total.ContributionCount = g.apply("contributor.contribution_count", total.ContributorID, total.ContributionCount, delta)
	total.UpdatedAt = now
}

// entityDelta is the counter change computed for one aggregate inside a
// contribution transaction.
type entityDelta struct {
	kind   models.EntityKind
	id     string
	total  int64
	unique int64
}

// applyEntityDeltas locks and updates aggregates in the order given.
func (g counterGuard) applyEntityDeltas(ctx context.Context, tx repository.ContributionTx, deltas []entityDelta) error {
	for _, d := range deltas {
		aggregate, err := tx.LockAggregate(ctx, d.kind, d.id)
		if err != nil {
			return err
		}
		g.adjustAggregate(aggregate, d.total, d.unique, tx.Now())
		if err := tx.SaveAggregate(ctx, aggregate); err != nil {
			return err
		}
	}
	return nil
}

func (g counterGuard) applyContributorDelta(ctx context.Context, tx repository.ContributionTx, contributorID string, delta int64) error {
	total, err := tx.LockContributorTotal(ctx, contributorID)
	if err != nil {
		return err
	}
	g.adjustTotal(total, delta, tx.Now())
	return tx.SaveContributorTotal(ctx, total)
}

func boolDelta(b bool, sign int64) int64 {
	if b {
		return sign
	}
	return 0
}
