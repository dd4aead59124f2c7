// Package sqlite is the default, file-backed store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"jobmarket/internal/storage"
)

type Repo struct {
	storage.SQLDB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens (creating if needed) the database file named by cfg.DSN. The
// parent directory is created when missing. ":memory:" and "file:" DSNs are
// accepted.
//
// A single connection is used: sqlite serializes writers anyway, and an
// in-memory database exists per connection.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if dir := parentDir(cfg.DSN); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{SQLDB: storage.SQLDB{DB: db, D: storage.SQLite, BatchSize: cfg.BatchSize}}, nil
}

func (r *Repo) Close() { _ = r.DB.Close() }

// parentDir returns the directory that must exist for dsn, or "" when none
// is needed.
func parentDir(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || strings.HasPrefix(p, ":memory:") {
		return ""
	}
	dir := filepath.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}
