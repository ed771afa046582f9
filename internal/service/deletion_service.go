package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/moracollect-api/internal/models"
	"github.com/noah-isme/moracollect-api/internal/repository"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
	"github.com/noah-isme/moracollect-api/pkg/storage"
)

// DeletionService removes a contributor's own submission and reverses its
// counters. Blobs are deleted only after the ledger change committed.
type DeletionService struct {
	store           contributionStore
	blobs           storage.BlobStore
	snapshots       *SnapshotService
	logger          *zap.Logger
	metrics         *MetricsService
	counters        counterGuard
	derivedPrefixes []string
}

// NewDeletionService constructs the service.
func NewDeletionService(store contributionStore, blobs storage.BlobStore, snapshots *SnapshotService, metrics *MetricsService, logger *zap.Logger, derivedPrefixes []string) *DeletionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeletionService{
		store:           store,
		blobs:           blobs,
		snapshots:       snapshots,
		logger:          logger,
		metrics:         metrics,
		counters:        counterGuard{logger: logger, metrics: metrics},
		derivedPrefixes: derivedPrefixes,
	}
}

// Delete removes the submission. A second call for the same id returns
// NotFound, which callers treat as already satisfied.
func (s *DeletionService) Delete(ctx context.Context, contributor models.Contributor, submissionID string) (*models.DeleteSubmissionResult, error) {
	result, err := s.delete(ctx, contributor, submissionID)
	switch {
	case err == nil:
		s.metrics.RecordDeletion(OutcomeDeleted)
	case errors.Is(err, appErrors.ErrBlobCleanup):
		s.metrics.RecordDeletion(OutcomeBlobCleanupFailed)
	default:
		s.metrics.RecordDeletion(OutcomeRejected)
	}
	return result, err
}

func (s *DeletionService) delete(ctx context.Context, contributor models.Contributor, submissionID string) (*models.DeleteSubmissionResult, error) {
	if contributor.ID == "" {
		return nil, appErrors.ErrUnauthenticated
	}
	submissionID = strings.ToLower(strings.TrimSpace(submissionID))
	if _, err := uuid.Parse(submissionID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}

	var removed *models.Submission
	var touched []string
	err := s.store.WithinTx(ctx, func(tx repository.ContributionTx) error {
		submission, err := tx.LockSubmission(ctx, submissionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
			}
			return err
		}
		if submission.ContributorID != contributor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another contributor")
		}
		if err := tx.DeleteSubmission(ctx, submission); err != nil {
			return err
		}

		entities := []struct {
			kind models.EntityKind
			id   string
		}{
			{models.EntityItem, submission.ItemID},
			{models.EntityCollection, submission.CollectionID},
		}
		// Lock memberships before looking for remaining submissions so a
		// concurrent registration by the same contributor is ordered against us.
		held := make([]bool, len(entities))
		for i, e := range entities {
			if held[i], err = tx.LockMembership(ctx, e.kind, e.id, contributor.ID); err != nil {
				return err
			}
		}
		deltas := make([]entityDelta, len(entities))
		for i, e := range entities {
			live, err := tx.HasLiveSubmission(ctx, e.kind, e.id, contributor.ID)
			if err != nil {
				return err
			}
			left := held[i] && !live
			if left {
				if err := tx.DeleteMembership(ctx, e.kind, e.id, contributor.ID); err != nil {
					return err
				}
			} else if !held[i] {
				s.logger.Error("membership missing for live contributor",
					zap.String("entity_kind", string(e.kind)),
					zap.String("entity_id", e.id),
					zap.String("contributor_id", contributor.ID),
				)
			}
			deltas[i] = entityDelta{kind: e.kind, id: e.id, total: -1, unique: boolDelta(left, -1)}
		}
		if err := s.counters.applyEntityDeltas(ctx, tx, deltas); err != nil {
			return err
		}
		if err := s.counters.applyContributorDelta(ctx, tx, contributor.ID, -1); err != nil {
			return err
		}

		touched, err = s.snapshots.WriteThrough(ctx, tx, submission.CollectionID)
		if err != nil {
			return err
		}
		removed = submission
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		s.logger.Error("deletion transaction failed",
			zap.String("submission_id", submissionID),
			zap.String("contributor_id", contributor.ID),
			zap.Error(err),
		)
		return nil, appErrors.Internal(err, "failed to delete submission")
	}
	s.snapshots.Invalidate(ctx, touched...)

	result := &models.DeleteSubmissionResult{OK: true, SubmissionID: submissionID, Deleted: true}
	if err := s.deleteBlobs(ctx, removed); err != nil {
		s.logger.Error("submission removed but blob cleanup failed",
			zap.String("submission_id", submissionID),
			zap.String("contributor_id", contributor.ID),
			zap.String("object_path", removed.ObjectPath),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrBlobCleanup.Code, appErrors.ErrBlobCleanup.Status, appErrors.ErrBlobCleanup.Message)
	}

	s.logger.Info("submission deleted",
		zap.String("submission_id", submissionID),
		zap.String("contributor_id", contributor.ID),
		zap.String("item_id", removed.ItemID),
		zap.String("collection_id", removed.CollectionID),
	)
	return result, nil
}

func (s *DeletionService) deleteBlobs(ctx context.Context, submission *models.Submission) error {
	if err := s.blobs.Delete(ctx, submission.ObjectPath); err != nil {
		return err
	}
	for _, prefix := range s.derivedPrefixes {
		derived, err := s.blobs.List(ctx, derivedObjectPrefix(prefix, submission.ContributorID, submission.ID))
		if err != nil {
			return err
		}
		for _, obj := range derived {
			if err := s.blobs.Delete(ctx, obj.Path); err != nil {
				return err
			}
		}
	}
	return nil
}
