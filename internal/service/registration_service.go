package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/moracollect-api/internal/models"
	"github.com/noah-isme/moracollect-api/internal/repository"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
)

type catalogReader interface {
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
	GetItem(ctx context.Context, id string) (*models.Item, error)
}

type blobChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// RegistrationConfig bounds what a registration may carry.
type RegistrationConfig struct {
	RawPrefix              string
	AllowedExtensions      []string
	AllowedMIMETypes       []string
	MaxBytes               int64
	MaxDurationMs          int64
	ClientMetadataMaxBytes int
}

// RegistrationService records uploaded submissions exactly once.
type RegistrationService struct {
	store     contributionStore
	catalog   catalogReader
	blobs     blobChecker
	snapshots *SnapshotService
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	counters  counterGuard
	cfg       RegistrationConfig
}

// NewRegistrationService constructs the service.
func NewRegistrationService(store contributionStore, catalog catalogReader, blobs blobChecker, snapshots *SnapshotService, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg RegistrationConfig) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.RawPrefix == "" {
		cfg.RawPrefix = "raw"
	}
	return &RegistrationService{
		store:     store,
		catalog:   catalog,
		blobs:     blobs,
		snapshots: snapshots,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		counters:  counterGuard{logger: logger, metrics: metrics},
		cfg:       cfg,
	}
}

// Register validates the request and, on first sight of the submission id,
// records the ledger entry, mirror, memberships, counters and snapshots in one
// transaction. A repeated call by the same contributor is a no-op success.
func (s *RegistrationService) Register(ctx context.Context, contributor models.Contributor, req models.RegisterSubmissionRequest) (*models.RegisterSubmissionResult, error) {
	result, err := s.register(ctx, contributor, req)
	if err != nil {
		s.metrics.RecordRegistration(OutcomeRejected)
		return nil, err
	}
	if result.AlreadyRegistered {
		s.metrics.RecordRegistration(OutcomeAlreadyRegistered)
	} else {
		s.metrics.RecordRegistration(OutcomeCreated)
	}
	return result, nil
}

func (s *RegistrationService) register(ctx context.Context, contributor models.Contributor, req models.RegisterSubmissionRequest) (*models.RegisterSubmissionResult, error) {
	if contributor.ID == "" {
		return nil, appErrors.ErrUnauthenticated
	}
	req.SubmissionID = canonicalSubmissionID(req.SubmissionID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "invalid registration payload")
	}
	if err := s.validateIdentifiers(contributor.ID, req); err != nil {
		return nil, err
	}
	if err := s.validateCapture(req.CaptureMetadata); err != nil {
		return nil, err
	}
	clientMetadata, err := normaliseClientMetadata(req.ClientMetadata, s.cfg.ClientMetadataMaxBytes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, err.Error())
	}
	item, err := s.validateCatalog(ctx, req.ItemID, req.CollectionID)
	if err != nil {
		return nil, err
	}

	exists, err := s.blobs.Exists(ctx, req.ObjectPath)
	if err != nil {
		return nil, appErrors.Retryable(appErrors.Internal(err, "failed to verify uploaded audio"))
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "uploaded audio not found")
	}

	result := &models.RegisterSubmissionResult{OK: true, SubmissionID: req.SubmissionID, Status: models.SubmissionStatusUploaded}
	var touched []string
	err = s.store.WithinTx(ctx, func(tx repository.ContributionTx) error {
		result.AlreadyRegistered = false
		existing, err := tx.LockSubmission(ctx, req.SubmissionID)
		switch {
		case err == nil:
			if existing.ContributorID != contributor.ID {
				return appErrors.Clone(appErrors.ErrConflict, "submission id belongs to another contributor")
			}
			result.AlreadyRegistered = true
			result.Status = existing.Status
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		now := tx.Now()
		submission := &models.Submission{
			ID:             req.SubmissionID,
			ContributorID:  contributor.ID,
			ItemID:         req.ItemID,
			CollectionID:   req.CollectionID,
			ObjectPath:     req.ObjectPath,
			MimeType:       strings.ToLower(req.CaptureMetadata.MimeType),
			SizeBytes:      req.CaptureMetadata.SizeBytes,
			DurationMs:     req.CaptureMetadata.DurationMs,
			ClientMetadata: clientMetadata,
			Status:         models.SubmissionStatusUploaded,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		mirror := &models.MirrorEntry{
			ContributorID: contributor.ID,
			SubmissionID:  submission.ID,
			ItemID:        submission.ItemID,
			CollectionID:  submission.CollectionID,
			ItemLabel:     item.Text,
			ObjectPath:    submission.ObjectPath,
			MimeType:      submission.MimeType,
			SizeBytes:     submission.SizeBytes,
			DurationMs:    submission.DurationMs,
			Status:        submission.Status,
			CreatedAt:     now,
		}
		if err := tx.InsertSubmission(ctx, submission, mirror); err != nil {
			return err
		}

		newToItem, err := tx.ClaimMembership(ctx, models.EntityItem, req.ItemID, contributor.ID)
		if err != nil {
			return err
		}
		newToCollection, err := tx.ClaimMembership(ctx, models.EntityCollection, req.CollectionID, contributor.ID)
		if err != nil {
			return err
		}
		if err := s.counters.applyEntityDeltas(ctx, tx, []entityDelta{
			{kind: models.EntityItem, id: req.ItemID, total: 1, unique: boolDelta(newToItem, 1)},
			{kind: models.EntityCollection, id: req.CollectionID, total: 1, unique: boolDelta(newToCollection, 1)},
		}); err != nil {
			return err
		}
		if err := s.counters.applyContributorDelta(ctx, tx, contributor.ID, 1); err != nil {
			return err
		}
		if err := tx.EnsureProfile(ctx, contributor.ID, contributor.DisplayName); err != nil {
			return err
		}

		touched, err = s.snapshots.WriteThrough(ctx, tx, req.CollectionID)
		return err
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		s.logger.Error("registration transaction failed",
			zap.String("submission_id", req.SubmissionID),
			zap.String("contributor_id", contributor.ID),
			zap.Error(err),
		)
		return nil, appErrors.Retryable(appErrors.Internal(err, "failed to register submission"))
	}

	if !result.AlreadyRegistered {
		s.snapshots.Invalidate(ctx, touched...)
	}
	s.logger.Info("submission registered",
		zap.String("submission_id", req.SubmissionID),
		zap.String("contributor_id", contributor.ID),
		zap.String("item_id", req.ItemID),
		zap.String("collection_id", req.CollectionID),
		zap.Bool("already_registered", result.AlreadyRegistered),
	)
	return result, nil
}

func (s *RegistrationService) validateIdentifiers(contributorID string, req models.RegisterSubmissionRequest) error {
	if _, err := uuid.Parse(req.SubmissionID); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidRequest, "submission_id must be a UUID")
	}
	parts, ok := parseObjectPath(s.cfg.RawPrefix, req.ObjectPath)
	if !ok {
		return appErrors.Clone(appErrors.ErrInvalidRequest, fmt.Sprintf("object_path must look like %s/{contributor_id}/{submission_id}.{ext}", s.cfg.RawPrefix))
	}
	if parts.ContributorID != contributorID {
		return appErrors.Clone(appErrors.ErrInvalidRequest, "object_path does not belong to the caller")
	}
	if parts.SubmissionID != req.SubmissionID {
		return appErrors.Clone(appErrors.ErrInvalidRequest, "object_path does not match submission_id")
	}
	if len(s.cfg.AllowedExtensions) > 0 && !containsFold(s.cfg.AllowedExtensions, parts.Extension) {
		return appErrors.Clone(appErrors.ErrInvalidRequest, "unsupported audio file extension")
	}
	return nil
}

func (s *RegistrationService) validateCapture(capture models.CaptureMetadata) error {
	if len(s.cfg.AllowedMIMETypes) > 0 && !containsFold(s.cfg.AllowedMIMETypes, mediaType(capture.MimeType)) {
		return appErrors.Clone(appErrors.ErrInvalidRequest, "unsupported audio mime type")
	}
	if s.cfg.MaxBytes > 0 && capture.SizeBytes > s.cfg.MaxBytes {
		return appErrors.Clone(appErrors.ErrInvalidRequest, "audio exceeds the maximum size")
	}
	if s.cfg.MaxDurationMs > 0 && capture.DurationMs > s.cfg.MaxDurationMs {
		return appErrors.Clone(appErrors.ErrInvalidRequest, "audio exceeds the maximum duration")
	}
	return nil
}

func (s *RegistrationService) validateCatalog(ctx context.Context, itemID, collectionID string) (*models.Item, error) {
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "unknown item")
		}
		return nil, appErrors.Retryable(appErrors.Internal(err, "failed to load item"))
	}
	if !item.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "item is not active")
	}
	if item.CollectionID != collectionID {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "item does not belong to collection")
	}
	collection, err := s.catalog.GetCollection(ctx, collectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "unknown collection")
		}
		return nil, appErrors.Retryable(appErrors.Internal(err, "failed to load collection"))
	}
	if !collection.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "collection is not active")
	}
	return item, nil
}

// mediaType strips parameters such as "; codecs=opus".
func mediaType(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
