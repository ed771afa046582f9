package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/moracollect-api/internal/models"
)

func TestCatalogSeedWithPrune(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCatalogRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO collections")).WithArgs("c1", "Script 1", "", 1, true, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO items")).WithArgs("p1", "c1", "ka", "mora", 1, true, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM items WHERE NOT")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM collections WHERE NOT")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Seed(context.Background(), models.CatalogSeed{
		Collections: []models.Collection{{ID: "c1", Title: "Script 1", Order: 1, IsActive: true}},
		Items:       []models.Item{{ID: "p1", CollectionID: "c1", Text: "ka", Type: "mora", Order: 1, IsActive: true}},
	}, true)
	require.NoError(t, err)
	require.Equal(t, models.CatalogSeedResult{Collections: 1, Items: 1, PrunedItems: 2, PrunedCollections: 1}, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogSeedRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCatalogRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO collections")).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := repo.Seed(context.Background(), models.CatalogSeed{Collections: []models.Collection{{ID: "c1", Title: "x"}}}, false)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateRepositoryListItemStats(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAggregateRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM items i")).WithArgs("c1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "collection_id", "text", "type", "sort_order", "is_active", "created_at", "updated_at", "total_submissions", "unique_contributors", "aggregate_updated_at"}).
			AddRow("p1", "c1", "ka", "mora", 1, true, now, now, 3, 2, now).
			AddRow("p2", "c1", "ki", "mora", 2, true, now, now, 0, 0, nil))

	stats, err := repo.ListItemStats(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Equal(t, "p1", stats[0].ID)
	require.EqualValues(t, 3, stats[0].TotalSubmissions)
	require.NotNil(t, stats[0].AggregateUpdatedAt)
	require.Nil(t, stats[1].AggregateUpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListMirrorWithCursor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	cursorTime := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("AND (created_at, submission_id) < ($2, $3) ORDER BY created_at DESC, submission_id DESC LIMIT $4")).
		WithArgs("u1", cursorTime, "s9", 21).
		WillReturnRows(sqlmock.NewRows([]string{"contributor_id", "submission_id", "item_id", "collection_id", "item_label", "object_path", "mime_type", "size_bytes", "duration_ms", "status", "created_at"}).
			AddRow("u1", "s8", "p1", "c1", "ka", "raw/u1/s8.webm", "audio/webm", 10, 900, "uploaded", cursorTime.Add(-time.Minute)))

	entries, err := repo.ListMirror(context.Background(), models.MirrorFilter{
		ContributorID: "u1",
		After:         &models.MirrorCursor{CreatedAt: cursorTime, SubmissionID: "s9"},
		Limit:         21,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ka", entries[0].ItemLabel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryExistingIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	found, err := repo.ExistingIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, found)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id::text FROM submissions")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
	found, err = repo.ExistingIDs(context.Background(), []string{"s1", "s2"})
	require.NoError(t, err)
	require.True(t, found["s1"])
	require.False(t, found["s2"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContributorRepositoryTopContributors(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewContributorRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta(`COALESCE(NULLIF(p.display_name, ''), t.contributor_id) COLLATE "C" ASC`)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"contributor_id", "display_name", "contribution_count"}).
			AddRow("u2", "Aiko", 5).
			AddRow("u1", "", 5))

	rows, err := repo.TopContributors(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Aiko", rows[0].DisplayName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContributorRepositorySaveTotals(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewContributorRepository(db)
	require.NoError(t, repo.SaveTotals(context.Background(), nil))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contributor_totals")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contributor_totals")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	err := repo.SaveTotals(context.Background(), []models.ContributorTotal{
		{ContributorID: "u1", ContributionCount: 3, UpdatedAt: now},
		{ContributorID: "u2", ContributionCount: 0, UpdatedAt: now},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSnapshotRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM snapshot_documents WHERE id = $1")).
		WithArgs("collections").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), models.CollectionsSnapshotID)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
