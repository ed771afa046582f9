package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
)

var errInvalidCursor = errors.New("invalid cursor")

type mirrorRepository interface {
	ListMirror(ctx context.Context, filter models.MirrorFilter) ([]models.MirrorEntry, error)
}

// MirrorService serves a contributor's own submissions from the mirror.
type MirrorService struct {
	repo         mirrorRepository
	defaultLimit int
	maxLimit     int
}

// NewMirrorService constructs the service.
func NewMirrorService(repo mirrorRepository, defaultLimit, maxLimit int) *MirrorService {
	if maxLimit <= 0 {
		maxLimit = 50
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = min(20, maxLimit)
	}
	return &MirrorService{repo: repo, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// ListOwn returns one page of the contributor's submissions, newest first.
func (s *MirrorService) ListOwn(ctx context.Context, contributorID, cursor string, limit int) ([]models.MirrorEntry, *models.Pagination, error) {
	if contributorID == "" {
		return nil, nil, appErrors.ErrUnauthenticated
	}
	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit < 1 || limit > s.maxLimit {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidRequest, "limit out of range")
	}
	filter := models.MirrorFilter{ContributorID: contributorID, Limit: limit + 1}
	if cursor != "" {
		after, err := decodeMirrorCursor(cursor)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidRequest, "invalid cursor")
		}
		filter.After = after
	}

	entries, err := s.repo.ListMirror(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list submissions")
	}
	pagination := &models.Pagination{Limit: limit}
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		pagination.HasMore = true
		pagination.NextCursor = encodeMirrorCursor(models.MirrorCursor{CreatedAt: last.CreatedAt, SubmissionID: last.SubmissionID})
	}
	if entries == nil {
		entries = []models.MirrorEntry{}
	}
	return entries, pagination, nil
}

func encodeMirrorCursor(c models.MirrorCursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.SubmissionID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeMirrorCursor(cursor string) (*models.MirrorCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, errInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, err
	}
	// The id is bound to a uuid column; anything else would fail in postgres.
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, errInvalidCursor
	}
	return &models.MirrorCursor{CreatedAt: createdAt, SubmissionID: parsed.String()}, nil
}
