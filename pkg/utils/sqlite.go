package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens a SQLite database with the pure-Go modernc driver.
//
// path may be ":memory:" for a throwaway database; in that case the pool is
// pinned to a single connection so every query sees the same schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := HealthCheck(ctx, db, 5*time.Second); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
