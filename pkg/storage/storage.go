// Package storage opens the SQL database used for the geocode cache.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL syntax differences between backends.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Placeholder returns the bind parameter for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// DB is a database handle that knows its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to dsn. postgres:// and postgresql:// URLs use pgx; anything
// else is treated as a SQLite path, optionally prefixed with sqlite://.
func Open(ctx context.Context, dsn string) (*DB, error) {
	dialect, driver, source := parseDSN(dsn)

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if dialect == SQLite {
		// A single writer avoids SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify %s connection: %w", dialect, err)
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

func parseDSN(dsn string) (Dialect, string, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, "pgx", dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return SQLite, "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	default:
		return SQLite, "sqlite", dsn
	}
}
