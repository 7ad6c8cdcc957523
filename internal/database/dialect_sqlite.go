package database

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

const memoryPath = ":memory:"

// SQLiteDialect talks to SQLite through mattn/go-sqlite3
type SQLiteDialect struct{}

func NewSQLiteDialect() *SQLiteDialect { return &SQLiteDialect{} }

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite3" }

func isMemory(config DialectConfig) bool {
	return config.Path == memoryPath || config.Path == ""
}

// DSN puts the pragmas in the connection string so every pooled connection
// gets foreign keys and the busy timeout
func (d *SQLiteDialect) DSN(config DialectConfig) string {
	if isMemory(config) {
		return "file::memory:?_foreign_keys=on"
	}
	return "file:" + config.Path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}

func (d *SQLiteDialect) RewriteQuery(query string) string { return query }

func (d *SQLiteDialect) SupportsLastInsertId() bool { return true }

func (d *SQLiteDialect) ConfigureConnection(db *sql.DB, config DialectConfig) error {
	if !isMemory(config) {
		configurePool(db)
		return nil
	}
	// Each in-memory connection is its own database; keep exactly one alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	return nil
}

func (d *SQLiteDialect) CreateMigrationsTableQuery() string {
	return `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT UNIQUE NOT NULL,
			executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
}

func (d *SQLiteDialect) UpsertClause(conflict, update []string) string {
	return onConflictClause(conflict, update)
}

func (d *SQLiteDialect) ResetSequenceQuery(string) string { return "" }

func (d *SQLiteDialect) LockClause() string { return "" }

func (d *SQLiteDialect) IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
