package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/moracollect-api/internal/models"
	"github.com/noah-isme/moracollect-api/pkg/config"
	"github.com/noah-isme/moracollect-api/pkg/database"
)

// StatsReader derives listing rows by joining the catalog with aggregate counters.
type StatsReader interface {
	ListCollectionStats(ctx context.Context) ([]models.CollectionStats, error)
	ListItemStats(ctx context.Context, collectionID string) ([]models.ItemStats, error)
}

// ContributionTx is the set of operations available inside one contribution
// transaction. Lock-taking methods must be called in a fixed order: submission,
// memberships, aggregates, contributor total, snapshot documents.
type ContributionTx interface {
	StatsReader

	Now() time.Time

	LockSubmission(ctx context.Context, id string) (*models.Submission, error)
	InsertSubmission(ctx context.Context, submission *models.Submission, mirror *models.MirrorEntry) error
	DeleteSubmission(ctx context.Context, submission *models.Submission) error

	ClaimMembership(ctx context.Context, kind models.EntityKind, entityID, contributorID string) (bool, error)
	LockMembership(ctx context.Context, kind models.EntityKind, entityID, contributorID string) (bool, error)
	HasLiveSubmission(ctx context.Context, kind models.EntityKind, entityID, contributorID string) (bool, error)
	DeleteMembership(ctx context.Context, kind models.EntityKind, entityID, contributorID string) error

	LockAggregate(ctx context.Context, kind models.EntityKind, entityID string) (*models.Aggregate, error)
	SaveAggregate(ctx context.Context, aggregate *models.Aggregate) error
	LockContributorTotal(ctx context.Context, contributorID string) (*models.ContributorTotal, error)
	SaveContributorTotal(ctx context.Context, total *models.ContributorTotal) error
	EnsureProfile(ctx context.Context, contributorID, displayName string) error

	LockSnapshot(ctx context.Context, id string) error
	SaveSnapshot(ctx context.Context, doc *models.SnapshotDocument) error
	DeleteSnapshot(ctx context.Context, id string) error
}

// RetryObserver is notified before a conflicting transaction is re-driven.
type RetryObserver func(attempt int, err error)

// ContributionStore runs contribution units of work on PostgreSQL, retrying
// the whole unit on write conflicts.
type ContributionStore struct {
	db         *sqlx.DB
	maxRetries int
	retryDelay time.Duration
	observer   RetryObserver
	now        func() time.Time
}

// NewContributionStore constructs the store.
func NewContributionStore(db *sqlx.DB, cfg config.TransactionConfig, observer RetryObserver) *ContributionStore {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &ContributionStore{
		db:         db,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		observer:   observer,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// WithinTx executes fn in a transaction. fn may run more than once and must
// not have effects outside the transaction.
func (s *ContributionStore) WithinTx(ctx context.Context, fn func(tx ContributionTx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil || !database.IsRetryable(err) || attempt > s.maxRetries {
			return err
		}
		if s.observer != nil {
			s.observer(attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay * time.Duration(attempt)):
		}
	}
}

func (s *ContributionStore) runOnce(ctx context.Context, fn func(tx ContributionTx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin contribution tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&pgContributionTx{tx: tx, now: s.now()}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit contribution tx: %w", err)
	}
	return nil
}
