package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/moracollect-api/internal/models"
)

// ContributorRepository persists contributor profiles and totals.
type ContributorRepository struct {
	db *sqlx.DB
}

// NewContributorRepository constructs the repository.
func NewContributorRepository(db *sqlx.DB) *ContributorRepository {
	return &ContributorRepository{db: db}
}

// TopContributors returns visible contributors with a positive total ordered by
// count, then effective display name, then id. Byte-wise collation keeps the
// order independent of the database locale.
func (r *ContributorRepository) TopContributors(ctx context.Context, limit int) ([]models.LeaderboardRow, error) {
	const query = `SELECT t.contributor_id, COALESCE(p.display_name, '') AS display_name, t.contribution_count
	FROM contributor_totals t
	LEFT JOIN contributor_profiles p ON p.contributor_id = t.contributor_id
	WHERE t.contribution_count > 0 AND COALESCE(p.leaderboard_hidden, FALSE) = FALSE
	ORDER BY t.contribution_count DESC,
	         COALESCE(NULLIF(p.display_name, ''), t.contributor_id) COLLATE "C" ASC,
	         t.contributor_id COLLATE "C" ASC
	LIMIT $1`
	var rows []models.LeaderboardRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list top contributors: %w", err)
	}
	return rows, nil
}

// GetProfile returns sql.ErrNoRows when the contributor has no profile yet.
func (r *ContributorRepository) GetProfile(ctx context.Context, contributorID string) (*models.ContributorProfile, error) {
	const query = `SELECT contributor_id, display_name, leaderboard_hidden, created_at, updated_at FROM contributor_profiles WHERE contributor_id = $1`
	var profile models.ContributorProfile
	if err := r.db.GetContext(ctx, &profile, query, contributorID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile stores the profile, creating it when missing.
func (r *ContributorRepository) UpsertProfile(ctx context.Context, profile *models.ContributorProfile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO contributor_profiles (contributor_id, display_name, leaderboard_hidden, created_at, updated_at)
	VALUES (:contributor_id, :display_name, :leaderboard_hidden, :created_at, :updated_at)
	ON CONFLICT (contributor_id) DO UPDATE SET display_name = EXCLUDED.display_name,
	leaderboard_hidden = EXCLUDED.leaderboard_hidden, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert contributor profile: %w", err)
	}
	return nil
}

// ListTotals returns every stored contributor total keyed by contributor id.
func (r *ContributorRepository) ListTotals(ctx context.Context) (map[string]int64, error) {
	var rows []models.ContributorTotal
	if err := r.db.SelectContext(ctx, &rows, `SELECT contributor_id, contribution_count, updated_at FROM contributor_totals`); err != nil {
		return nil, fmt.Errorf("list contributor totals: %w", err)
	}
	totals := make(map[string]int64, len(rows))
	for _, row := range rows {
		totals[row.ContributorID] = row.ContributionCount
	}
	return totals, nil
}

// SaveTotals overwrites the totals of the given contributors in one transaction.
func (r *ContributorRepository) SaveTotals(ctx context.Context, totals []models.ContributorTotal) (err error) {
	if len(totals) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save totals tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO contributor_totals (contributor_id, contribution_count, updated_at)
	VALUES (:contributor_id, :contribution_count, :updated_at)
	ON CONFLICT (contributor_id) DO UPDATE SET contribution_count = EXCLUDED.contribution_count, updated_at = EXCLUDED.updated_at`
	for i := range totals {
		if _, err = tx.NamedExecContext(ctx, query, &totals[i]); err != nil {
			return fmt.Errorf("save contributor total %s: %w", totals[i].ContributorID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save totals tx: %w", err)
	}
	return nil
}
