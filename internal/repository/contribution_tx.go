package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/moracollect-api/internal/models"
)

const submissionColumns = `id, contributor_id, item_id, collection_id, object_path, mime_type, size_bytes, duration_ms, client_metadata, status, created_at, updated_at`

type pgContributionTx struct {
	tx  *sqlx.Tx
	now time.Time
}

// Now is the timestamp stamped on every row this transaction writes.
func (t *pgContributionTx) Now() time.Time {
	return t.now
}

func (t *pgContributionTx) ListCollectionStats(ctx context.Context) ([]models.CollectionStats, error) {
	return selectCollectionStats(ctx, t.tx)
}

func (t *pgContributionTx) ListItemStats(ctx context.Context, collectionID string) ([]models.ItemStats, error) {
	return selectItemStats(ctx, t.tx, collectionID)
}

// LockSubmission returns sql.ErrNoRows when the submission does not exist.
func (t *pgContributionTx) LockSubmission(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 FOR UPDATE`
	var submission models.Submission
	if err := t.tx.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

func (t *pgContributionTx) InsertSubmission(ctx context.Context, submission *models.Submission, mirror *models.MirrorEntry) error {
	const insertSubmission = `INSERT INTO submissions (` + submissionColumns + `)
	VALUES (:id, :contributor_id, :item_id, :collection_id, :object_path, :mime_type, :size_bytes, :duration_ms, :client_metadata, :status, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, insertSubmission, submission); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	const insertMirror = `INSERT INTO submission_mirror
	(contributor_id, submission_id, item_id, collection_id, item_label, object_path, mime_type, size_bytes, duration_ms, status, created_at)
	VALUES (:contributor_id, :submission_id, :item_id, :collection_id, :item_label, :object_path, :mime_type, :size_bytes, :duration_ms, :status, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, insertMirror, mirror); err != nil {
		return fmt.Errorf("insert submission mirror: %w", err)
	}
	return nil
}

func (t *pgContributionTx) DeleteSubmission(ctx context.Context, submission *models.Submission) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM submission_mirror WHERE contributor_id = $1 AND submission_id = $2`, submission.ContributorID, submission.ID); err != nil {
		return fmt.Errorf("delete submission mirror: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, submission.ID); err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return nil
}

// ClaimMembership upserts the membership row, leaving it locked, and reports
// whether this call created it.
func (t *pgContributionTx) ClaimMembership(ctx context.Context, kind models.EntityKind, entityID, contributorID string) (bool, error) {
	const query = `INSERT INTO entity_memberships (entity_kind, entity_id, contributor_id, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (entity_kind, entity_id, contributor_id) DO UPDATE SET created_at = entity_memberships.created_at
	RETURNING (xmax = 0) AS inserted`
	var inserted bool
	if err := t.tx.GetContext(ctx, &inserted, query, kind, entityID, contributorID, t.now); err != nil {
		return false, fmt.Errorf("claim %s membership: %w", kind, err)
	}
	return inserted, nil
}

func (t *pgContributionTx) LockMembership(ctx context.Context, kind models.EntityKind, entityID, contributorID string) (bool, error) {
	const query = `SELECT 1 FROM entity_memberships WHERE entity_kind = $1 AND entity_id = $2 AND contributor_id = $3 FOR UPDATE`
	var found int
	if err := t.tx.GetContext(ctx, &found, query, kind, entityID, contributorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lock %s membership: %w", kind, err)
	}
	return true, nil
}

func (t *pgContributionTx) HasLiveSubmission(ctx context.Context, kind models.EntityKind, entityID, contributorID string) (bool, error) {
	column, err := entityColumn(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM submissions WHERE %s = $1 AND contributor_id = $2)`, column)
	var exists bool
	if err := t.tx.GetContext(ctx, &exists, query, entityID, contributorID); err != nil {
		return false, fmt.Errorf("check live %s submissions: %w", kind, err)
	}
	return exists, nil
}

func (t *pgContributionTx) DeleteMembership(ctx context.Context, kind models.EntityKind, entityID, contributorID string) error {
	const query = `DELETE FROM entity_memberships WHERE entity_kind = $1 AND entity_id = $2 AND contributor_id = $3`
	if _, err := t.tx.ExecContext(ctx, query, kind, entityID, contributorID); err != nil {
		return fmt.Errorf("delete %s membership: %w", kind, err)
	}
	return nil
}

// LockAggregate creates the aggregate row on first use and locks it.
func (t *pgContributionTx) LockAggregate(ctx context.Context, kind models.EntityKind, entityID string) (*models.Aggregate, error) {
	const ensure = `INSERT INTO entity_aggregates (entity_kind, entity_id, total_submissions, unique_contributors, updated_at)
	VALUES ($1, $2, 0, 0, $3) ON CONFLICT (entity_kind, entity_id) DO NOTHING`
	if _, err := t.tx.ExecContext(ctx, ensure, kind, entityID, t.now); err != nil {
		return nil, fmt.Errorf("ensure %s aggregate: %w", kind, err)
	}
	const query = `SELECT entity_kind, entity_id, total_submissions, unique_contributors, updated_at
	FROM entity_aggregates WHERE entity_kind = $1 AND entity_id = $2 FOR UPDATE`
	var aggregate models.Aggregate
	if err := t.tx.GetContext(ctx, &aggregate, query, kind, entityID); err != nil {
		return nil, fmt.Errorf("lock %s aggregate: %w", kind, err)
	}
	return &aggregate, nil
}

func (t *pgContributionTx) SaveAggregate(ctx context.Context, aggregate *models.Aggregate) error {
	const query = `UPDATE entity_aggregates SET total_submissions = :total_submissions, unique_contributors = :unique_contributors, updated_at = :updated_at
	WHERE entity_kind = :entity_kind AND entity_id = :entity_id`
	if _, err := t.tx.NamedExecContext(ctx, query, aggregate); err != nil {
		return fmt.Errorf("save %s aggregate: %w", aggregate.Kind, err)
	}
	return nil
}

// LockContributorTotal creates the total row on first use and locks it.
func (t *pgContributionTx) LockContributorTotal(ctx context.Context, contributorID string) (*models.ContributorTotal, error) {
	const ensure = `INSERT INTO contributor_totals (contributor_id, contribution_count, updated_at)
	VALUES ($1, 0, $2) ON CONFLICT (contributor_id) DO NOTHING`
	if _, err := t.tx.ExecContext(ctx, ensure, contributorID, t.now); err != nil {
		return nil, fmt.Errorf("ensure contributor total: %w", err)
	}
	const query = `SELECT contributor_id, contribution_count, updated_at FROM contributor_totals WHERE contributor_id = $1 FOR UPDATE`
	var total models.ContributorTotal
	if err := t.tx.GetContext(ctx, &total, query, contributorID); err != nil {
		return nil, fmt.Errorf("lock contributor total: %w", err)
	}
	return &total, nil
}

func (t *pgContributionTx) SaveContributorTotal(ctx context.Context, total *models.ContributorTotal) error {
	const query = `UPDATE contributor_totals SET contribution_count = :contribution_count, updated_at = :updated_at WHERE contributor_id = :contributor_id`
	if _, err := t.tx.NamedExecContext(ctx, query, total); err != nil {
		return fmt.Errorf("save contributor total: %w", err)
	}
	return nil
}

func (t *pgContributionTx) EnsureProfile(ctx context.Context, contributorID, displayName string) error {
	const query = `INSERT INTO contributor_profiles (contributor_id, display_name, leaderboard_hidden, created_at, updated_at)
	VALUES ($1, $2, FALSE, $3, $3) ON CONFLICT (contributor_id) DO NOTHING`
	if _, err := t.tx.ExecContext(ctx, query, contributorID, displayName, t.now); err != nil {
		return fmt.Errorf("ensure contributor profile: %w", err)
	}
	return nil
}

// LockSnapshot serialises writers of one snapshot document until commit.
func (t *pgContributionTx) LockSnapshot(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "snapshot:"+id); err != nil {
		return fmt.Errorf("lock snapshot %s: %w", id, err)
	}
	return nil
}

func (t *pgContributionTx) SaveSnapshot(ctx context.Context, doc *models.SnapshotDocument) error {
	const query = `INSERT INTO snapshot_documents (id, kind, collection_id, body, updated_at)
	VALUES (:id, :kind, :collection_id, :body, :updated_at)
	ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, collection_id = EXCLUDED.collection_id, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	if _, err := t.tx.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("save snapshot %s: %w", doc.ID, err)
	}
	return nil
}

func (t *pgContributionTx) DeleteSnapshot(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM snapshot_documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	return nil
}
