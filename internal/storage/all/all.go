// Package all registers every storage backend. Import it for side effects.
package all

import (
	_ "jobmarket/internal/storage/clickhouse"
	_ "jobmarket/internal/storage/duckdb"
	_ "jobmarket/internal/storage/mssql"
	_ "jobmarket/internal/storage/postgres"
	_ "jobmarket/internal/storage/sqlite"
)
