package run_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docpipe/features/run"
	"docpipe/internal/testutils"
)

func TestPostgresRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	ctx := context.Background()
	repo := run.NewPostgresRepo(suite.DB)

	first := &run.Run{
		Mode:         "crawl",
		Target:       "https://docs.example.com/",
		DocSet:       "jdk",
		Processed:    3,
		ChunksStored: 12,
		Failures:     json.RawMessage(`[]`),
		StartedAt:    time.Now().UTC().Add(-time.Minute),
		FinishedAt:   time.Now().UTC().Add(-30 * time.Second),
	}
	require.NoError(t, repo.Save(ctx, first))
	require.NotEmpty(t, first.ID)

	second := &run.Run{
		Mode:       "local",
		Target:     "/var/docs",
		DocSet:     "jdk",
		Skipped:    3,
		Failures:   json.RawMessage(`[{"source":"/var/docs/a.pdf","phase":"pdf-extraction"}]`),
		StartedAt:  time.Now().UTC().Add(-10 * time.Second),
		FinishedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Save(ctx, second))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, "local", latest.Mode)
	require.JSONEq(t, string(second.Failures), string(latest.Failures))

	runs, err := repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "local", runs[0].Mode)
}
