package models

import "time"

// EntityKind distinguishes the two aggregated entity types.
type EntityKind string

const (
	EntityItem       EntityKind = "item"
	EntityCollection EntityKind = "collection"
)

// Aggregate holds the maintained counters of one item or collection.
type Aggregate struct {
	Kind               EntityKind `db:"entity_kind" json:"kind"`
	EntityID           string     `db:"entity_id" json:"entity_id"`
	TotalSubmissions   int64      `db:"total_submissions" json:"total_submissions"`
	UniqueContributors int64      `db:"unique_contributors" json:"unique_contributors"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// ContributorTotal is the lifetime submission count that drives the leaderboard.
type ContributorTotal struct {
	ContributorID     string    `db:"contributor_id" json:"contributor_id"`
	ContributionCount int64     `db:"contribution_count" json:"contribution_count"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ContributorProfile stores display preferences separately from counters.
type ContributorProfile struct {
	ContributorID     string    `db:"contributor_id" json:"contributor_id"`
	DisplayName       string    `db:"display_name" json:"display_name"`
	LeaderboardHidden bool      `db:"leaderboard_hidden" json:"leaderboard_hidden"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// UpdateProfileRequest is the payload of PATCH /me/profile.
type UpdateProfileRequest struct {
	DisplayName       *string `json:"display_name" validate:"omitempty,max=80"`
	LeaderboardHidden *bool   `json:"leaderboard_hidden"`
}

// LeaderboardRow is a raw contributor total joined with its profile.
type LeaderboardRow struct {
	ContributorID     string `db:"contributor_id"`
	DisplayName       string `db:"display_name"`
	ContributionCount int64  `db:"contribution_count"`
}

// LeaderboardEntry is one ranked position.
type LeaderboardEntry struct {
	Rank              int    `json:"rank"`
	ContributorID     string `json:"contributor_id"`
	DisplayName       string `json:"display_name"`
	ContributionCount int64  `json:"contribution_count"`
}

// BackfillDelta is a single contributor whose stored total differs from the ledger.
type BackfillDelta struct {
	ContributorID string `json:"contributor_id"`
	Previous      int64  `json:"previous"`
	Counted       int64  `json:"counted"`
}

// BackfillReport summarises a contributor total backfill run.
type BackfillReport struct {
	DryRun                      bool            `json:"dry_run"`
	TargetContributors          int             `json:"target_contributors"`
	ContributorsWithSubmissions int             `json:"contributors_with_submissions"`
	TotalSubmissions            int64           `json:"total_submissions"`
	Changed                     int             `json:"changed"`
	Deltas                      []BackfillDelta `json:"deltas"`
}

// OrphanReport summarises an orphan blob collection run.
type OrphanReport struct {
	DryRun  bool     `json:"dry_run"`
	Scanned int      `json:"scanned"`
	Orphans []string `json:"orphans"`
	Deleted int      `json:"deleted"`
	Failed  int      `json:"failed"`
}
