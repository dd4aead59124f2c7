package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmarket/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

Rows are loaded with COPY inside the same transaction that drops and
recreates the table, so readers see either the old table or the new one.
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) Dialect() storage.Dialect { return storage.Postgres }

func (r *Repo) Query(ctx context.Context, q string, args ...any) (storage.Rows, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return storage.Rows{}, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	out := storage.Rows{Columns: make([]string, len(fds))}
	for i, fd := range fds {
		out.Columns[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return storage.Rows{}, err
		}
		out.Values = append(out.Values, vals)
	}
	return out, rows.Err()
}

func (r *Repo) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any, run storage.IngestRun) (int64, error) {
	d := storage.Postgres

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, d.DropTable(spec.Name)); err != nil {
		return 0, fmt.Errorf("drop %s: %w", spec.Name, err)
	}
	if _, err := tx.Exec(ctx, d.CreateTable(spec, false)); err != nil {
		return 0, fmt.Errorf("create %s: %w", spec.Name, err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{spec.Name}, spec.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", spec.Name, err)
	}

	runs := storage.RunsSpec(spec.Name)
	if _, err := tx.Exec(ctx, d.CreateTable(runs, true)); err != nil {
		return 0, fmt.Errorf("create %s: %w", runs.Name, err)
	}
	if _, err := tx.Exec(ctx, d.Insert(runs.Name, runs.ColumnNames(), 1), storage.RunValues(run)...); err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}
