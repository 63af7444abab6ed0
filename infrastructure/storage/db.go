// Package storage implements Hydra's persistence ports on database/sql.
//
// Two dialects are supported: postgres (lib/pq) for deployments and sqlite3
// (mattn/go-sqlite3) for local runs and tests. Queries are written with ?
// placeholders and rebound for postgres at execution time.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ahrav/go-hydra/internal/ports"
)

// Dialect names a supported SQL driver.
type Dialect string

// Supported dialects. The values double as database/sql driver names.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// sqliteBusyTimeoutMS is how long sqlite waits on a locked database before
// reporting SQLITE_BUSY.
const sqliteBusyTimeoutMS = 5000

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn binds a querier to its dialect.
type conn struct {
	q       querier
	dialect Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, rebind(c.dialect, query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, rebind(c.dialect, query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, rebind(c.dialect, query), args...)
}

// atomically runs fn in a transaction. When c is already bound to a
// transaction fn joins it.
func (c conn) atomically(ctx context.Context, fn func(conn) error) error {
	db, ok := c.q.(*sql.DB)
	if !ok {
		return fn(c)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("tx", "BeginTx", err)
	}
	if err := fn(conn{q: tx, dialect: c.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("tx", "Commit", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for postgres.
func rebind(d Dialect, query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stores hands out the repositories bound to one conn.
type stores struct{ c conn }

func (s stores) Results() ports.ResultStore             { return resultStore{s.c} }
func (s stores) Sessions() ports.SessionStore           { return sessionStore{s.c} }
func (s stores) Assignments() ports.AssignmentStore     { return assignmentStore{s.c} }
func (s stores) Evolutions() ports.EvolutionStore       { return evolutionStore{s.c} }
func (s stores) Notifications() ports.NotificationStore { return notificationStore{s.c} }
func (s stores) Users() ports.UserDirectory             { return userDirectory{s.c} }

// DB is the database-backed ports.UnitOfWork.
type DB struct {
	stores
	db      *sql.DB
	dialect Dialect
}

var _ ports.UnitOfWork = (*DB)(nil)

// Open connects to dsn with the given dialect and verifies the connection.
// Sqlite connections are limited to one so writers queue instead of failing
// with SQLITE_BUSY.
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	switch dialect {
	case DialectPostgres:
	case DialectSQLite:
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}

	sqlDB, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, mapError("db", "Ping", err)
	}

	return &DB{
		stores:  stores{conn{q: sqlDB, dialect: dialect}},
		db:      sqlDB,
		dialect: dialect,
	}, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d", dsn, sep, sqliteBusyTimeoutMS)
}

// Dialect reports the SQL dialect in use.
func (d *DB) Dialect() Dialect { return d.dialect }

// Close releases the connection pool.
func (d *DB) Close() error { return d.db.Close() }

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return mapError("db", "Ping", d.db.PingContext(ctx))
}

// WithinTx implements ports.UnitOfWork.
func (d *DB) WithinTx(ctx context.Context, fn func(tx ports.Stores) error) error {
	return d.c.atomically(ctx, func(c conn) error {
		return fn(stores{c})
	})
}
