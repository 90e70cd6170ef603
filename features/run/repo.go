package run

import (
	"context"
	"database/sql"
	"encoding/json"
)

type Repository interface {
	Save(ctx context.Context, run *Run) error
	List(ctx context.Context, limit int) ([]Run, error)
	Latest(ctx context.Context) (*Run, error)
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, run *Run) error {
	query := `INSERT INTO ingestion_runs (mode, target, doc_set, processed, skipped, chunks_stored, chunks_deduped, failures, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		run.Mode, run.Target, run.DocSet,
		run.Processed, run.Skipped, run.ChunksStored, run.ChunksDeduped,
		[]byte(run.Failures), run.StartedAt, run.FinishedAt,
	).Scan(&run.ID)
}

const selectColumns = `id, mode, target, doc_set, processed, skipped, chunks_stored, chunks_deduped, failures, started_at, finished_at`

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + selectColumns + ` FROM ingestion_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *PostgresRepo) Latest(ctx context.Context) (*Run, error) {
	query := `SELECT ` + selectColumns + ` FROM ingestion_runs ORDER BY started_at DESC LIMIT 1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query))
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingestion_runs`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var run Run
	var failures []byte
	err := s.Scan(&run.ID, &run.Mode, &run.Target, &run.DocSet,
		&run.Processed, &run.Skipped, &run.ChunksStored, &run.ChunksDeduped,
		&failures, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return Run{}, err
	}
	run.Failures = json.RawMessage(failures)
	return run, nil
}
