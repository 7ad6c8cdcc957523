package database

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// Dialect hides the differences between the supported SQL engines
type Dialect interface {
	// Name is the config name of the engine and its migrations subdirectory
	Name() string
	DriverName() string
	DSN(config DialectConfig) string

	// RewriteQuery turns ? placeholders into the engine's own syntax
	RewriteQuery(query string) string

	// SupportsLastInsertId is false when inserts need a RETURNING clause
	SupportsLastInsertId() bool
	ConfigureConnection(db *sql.DB, config DialectConfig) error
	CreateMigrationsTableQuery() string

	// UpsertClause is appended to an INSERT so that a row colliding on the
	// conflict columns has the update columns overwritten instead
	UpsertClause(conflict, update []string) string

	// ResetSequenceQuery moves a table's id sequence past its largest id.
	// Empty when the engine derives auto-increment values from the rows.
	ResetSequenceQuery(table string) string

	// LockClause is appended to a SELECT to hold its rows until commit.
	// Empty where a write transaction already serializes writers.
	LockClause() string

	// IsUniqueViolation reports whether err came from a unique index
	IsUniqueViolation(err error) bool
}

// DialectConfig holds configuration for database connection
type DialectConfig struct {
	// Path is the SQLite file, or ":memory:"
	Path string

	// URL is the PostgreSQL or MySQL connection string
	URL string
}

// rewritePlaceholdersToNumbered converts ? placeholders to $1, $2, ...
// Question marks inside quoted literals are left alone.
func rewritePlaceholdersToNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// onConflictClause is the ON CONFLICT upsert shared by SQLite and PostgreSQL
func onConflictClause(conflict, update []string) string {
	sets := make([]string, len(update))
	for i, col := range update {
		sets[i] = col + " = excluded." + col
	}
	return " ON CONFLICT (" + strings.Join(conflict, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// configurePool sizes a server-backed connection pool
func configurePool(db *sql.DB) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
}
