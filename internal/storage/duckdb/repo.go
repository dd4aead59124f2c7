// Package duckdb stores postings in an embedded DuckDB file, suited to
// running the aggregate catalog over large exports.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"

	"jobmarket/internal/storage"
)

type Repo struct {
	storage.SQLDB
}

func init() {
	storage.Register("duckdb", New)
}

// New opens the DuckDB database at cfg.DSN. An empty DSN opens an
// in-memory database. The parent directory is created when missing.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if cfg.DSN != "" {
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("duckdb: create %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		// each connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{SQLDB: storage.SQLDB{DB: db, D: storage.DuckDB, BatchSize: cfg.BatchSize}}, nil
}

func (r *Repo) Close() { _ = r.DB.Close() }
