package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
)

type profileRepository interface {
	GetProfile(ctx context.Context, contributorID string) (*models.ContributorProfile, error)
	UpsertProfile(ctx context.Context, profile *models.ContributorProfile) error
}

// ProfileService manages contributor display preferences.
type ProfileService struct {
	repo      profileRepository
	validator *validator.Validate
}

// NewProfileService constructs the service.
func NewProfileService(repo profileRepository, validate *validator.Validate) *ProfileService {
	if validate == nil {
		validate = validator.New()
	}
	return &ProfileService{repo: repo, validator: validate}
}

// Update applies a partial profile change, creating the profile when missing.
func (s *ProfileService) Update(ctx context.Context, contributor models.Contributor, req models.UpdateProfileRequest) (*models.ContributorProfile, error) {
	if contributor.ID == "" {
		return nil, appErrors.ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "invalid profile payload")
	}
	profile, err := s.repo.GetProfile(ctx, contributor.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to load profile")
		}
		profile = &models.ContributorProfile{ContributorID: contributor.ID, DisplayName: contributor.DisplayName}
	}
	if req.DisplayName != nil {
		profile.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.LeaderboardHidden != nil {
		profile.LeaderboardHidden = *req.LeaderboardHidden
	}
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, appErrors.Internal(err, "failed to save profile")
	}
	return profile, nil
}
