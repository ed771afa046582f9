package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
)

type leaderboardRepository interface {
	TopContributors(ctx context.Context, limit int) ([]models.LeaderboardRow, error)
}

// LeaderboardService ranks contributors by lifetime submission count.
type LeaderboardService struct {
	repo         leaderboardRepository
	logger       *zap.Logger
	defaultLimit int
	maxLimit     int
}

// NewLeaderboardService constructs the service.
func NewLeaderboardService(repo leaderboardRepository, logger *zap.Logger, defaultLimit, maxLimit int) *LeaderboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLimit <= 0 {
		maxLimit = 50
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = min(10, maxLimit)
	}
	return &LeaderboardService{repo: repo, logger: logger, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Top returns up to limit visible contributors. A zero limit selects the
// default; limits outside 1..max are rejected.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit < 1 || limit > s.maxLimit {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "limit out of range")
	}
	rows, err := s.repo.TopContributors(ctx, limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load leaderboard")
	}
	return rankContributors(rows), nil
}

// rankContributors orders rows by count desc, effective display name asc,
// contributor id asc and assigns competition ranks (ties share a rank).
func rankContributors(rows []models.LeaderboardRow) []models.LeaderboardEntry {
	sorted := make([]models.LeaderboardRow, 0, len(rows))
	for _, row := range rows {
		if row.ContributionCount > 0 {
			sorted = append(sorted, row)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ContributionCount != b.ContributionCount {
			return a.ContributionCount > b.ContributionCount
		}
		if an, bn := effectiveName(a), effectiveName(b); an != bn {
			return an < bn
		}
		return a.ContributorID < b.ContributorID
	})

	entries := make([]models.LeaderboardEntry, len(sorted))
	for i, row := range sorted {
		rank := i + 1
		if i > 0 && row.ContributionCount == sorted[i-1].ContributionCount {
			rank = entries[i-1].Rank
		}
		entries[i] = models.LeaderboardEntry{
			Rank:              rank,
			ContributorID:     row.ContributorID,
			DisplayName:       effectiveName(row),
			ContributionCount: row.ContributionCount,
		}
	}
	return entries
}

func effectiveName(row models.LeaderboardRow) string {
	if row.DisplayName != "" {
		return row.DisplayName
	}
	return row.ContributorID
}
