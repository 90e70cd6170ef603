package run_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpipe/features/run"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := run.NewPostgresRepo(db)
	started := time.Now().Add(-time.Minute)
	finished := time.Now()

	r := &run.Run{
		Mode:          "upload",
		Target:        "http://docs.example/",
		DocSet:        "jdk",
		Processed:     3,
		Skipped:       7,
		ChunksStored:  12,
		ChunksDeduped: 4,
		Failures:      []byte(`[]`),
		StartedAt:     started,
		FinishedAt:    finished,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ingestion_runs")).
		WithArgs("upload", "http://docs.example/", "jdk", 3, 7, 12, 4, []byte(`[]`), started, finished).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("run-1"))

	err = repo.Save(context.Background(), r)
	assert.NoError(t, err)
	assert.Equal(t, "run-1", r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func runColumns() []string {
	return []string{"id", "mode", "target", "doc_set", "processed", "skipped",
		"chunks_stored", "chunks_deduped", "failures", "started_at", "finished_at"}
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := run.NewPostgresRepo(db)
	now := time.Now()

	rows := sqlmock.NewRows(runColumns()).
		AddRow("run-2", "local-only", "/docs", "", 5, 0, 20, 0, []byte(`[]`), now, now).
		AddRow("run-1", "upload", "http://docs.example/", "jdk", 3, 7, 12, 4,
			[]byte(`[{"source":"x","phase":"index"}]`), now.Add(-time.Hour), now.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("FROM ingestion_runs ORDER BY started_at DESC LIMIT $1")).
		WithArgs(10).
		WillReturnRows(rows)

	runs, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "local-only", runs[0].Mode)
	assert.JSONEq(t, `[{"source":"x","phase":"index"}]`, string(runs[1].Failures))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Latest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := run.NewPostgresRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM ingestion_runs ORDER BY started_at DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows(runColumns()).
			AddRow("run-9", "upload", "http://docs.example/", "jdk", 1, 0, 2, 0, []byte(`[]`), now, now))

	latest, err := repo.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-9", latest.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Count(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := run.NewPostgresRepo(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM ingestion_runs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
