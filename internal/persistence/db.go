package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"  // Postgres driver for the production audit log.
	_ "modernc.org/sqlite" // Pure-Go SQLite driver for local runs and tests.
)

// Dialect is the SQL flavour behind a DB.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB wraps a *sql.DB with the placeholder rewriting its dialect needs.
// Queries are written once with $N placeholders.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open picks the driver from the URL scheme. postgres:// and postgresql://
// go to lib/pq; sqlite://path or a bare file path go to SQLite.
func Open(url string) (*DB, error) {
	dialect, dsn := DialectPostgres, url
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
	case strings.HasPrefix(url, "sqlite://"):
		dialect, dsn = DialectSQLite, strings.TrimPrefix(url, "sqlite://")
	default:
		dialect = DialectSQLite
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return &DB{DB: db, dialect: dialect}, nil
}

func (db *DB) Dialect() Dialect { return db.dialect }

var placeholder = regexp.MustCompile(`\$(\d+)`)

// Rebind rewrites $N placeholders to ?N for SQLite.
func (db *DB) Rebind(query string) string {
	if db.dialect != DialectSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?$1")
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
