package relational

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect hides the differences between the supported SQL engines.
// Queries are written with "?" placeholders and rebound per engine.
type Dialect interface {
	Name() string
	Rebind(query string) string
	IsUniqueViolation(err error) bool
	// ReadTxOptions returns the options for the snapshot used by Find.
	ReadTxOptions() *sql.TxOptions
	// ArrayContains returns a predicate that holds when column stores a JSON
	// array containing the element of the one-element JSON array bound to its
	// single placeholder.
	ArrayContains(column string) string
}

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, bool) {
	switch name {
	case "postgres":
		return Postgres, true
	case "sqlite":
		return SQLite, true
	}
	return nil, false
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
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

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (postgresDialect) ReadTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

func (postgresDialect) ArrayContains(column string) string {
	return `(jsonb_typeof(` + column + `::jsonb) = 'array' AND ` + column + `::jsonb @> ?::jsonb)`
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// SQLite transactions are serializable already; a single connection is used.
func (sqliteDialect) ReadTxOptions() *sql.TxOptions { return nil }

// Elements compare by JSON type and atom so "1", 1 and true stay distinct.
func (sqliteDialect) ArrayContains(column string) string {
	return `(json_type(` + column + `) = 'array' AND EXISTS (SELECT 1 FROM json_each(` + column + `) elem, json_each(?) want WHERE elem.type = want.type AND elem.atom IS want.atom))`
}
