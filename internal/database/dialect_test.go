package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialects(t *testing.T) {
	tests := []struct {
		dialect         Dialect
		name            string
		driver          string
		lastInsertID    bool
		resetsSequences bool
	}{
		{NewSQLiteDialect(), "sqlite", "sqlite3", true, false},
		{NewPostgresDialect(), "postgres", "postgres", false, true},
		{NewMySQLDialect(), "mysql", "mysql", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.dialect.Name())
			assert.Equal(t, tt.driver, tt.dialect.DriverName())
			assert.Equal(t, tt.lastInsertID, tt.dialect.SupportsLastInsertId())
			assert.Equal(t, tt.resetsSequences, tt.dialect.ResetSequenceQuery("rewards") != "")
			assert.Contains(t, tt.dialect.CreateMigrationsTableQuery(), "CREATE TABLE IF NOT EXISTS migrations")

			entries, err := migrationsFS.ReadDir("migrations/" + tt.dialect.Name())
			require.NoError(t, err)
			assert.NotEmpty(t, entries, "every engine ships its own migrations")
		})
	}
}

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		query    string
		expected string
	}{
		{
			name:     "sqlite unchanged",
			dialect:  NewSQLiteDialect(),
			query:    "SELECT * FROM habits WHERE child_id = ?",
			expected: "SELECT * FROM habits WHERE child_id = ?",
		},
		{
			name:     "postgres numbered",
			dialect:  NewPostgresDialect(),
			query:    "INSERT INTO rewards (family_id, name, cost) VALUES (?, ?, ?)",
			expected: "INSERT INTO rewards (family_id, name, cost) VALUES ($1, $2, $3)",
		},
		{
			name:     "postgres skips quoted question marks",
			dialect:  NewPostgresDialect(),
			query:    "UPDATE habits SET name = 'why?' WHERE id = ?",
			expected: "UPDATE habits SET name = 'why?' WHERE id = $1",
		},
		{
			name:     "mysql unchanged",
			dialect:  NewMySQLDialect(),
			query:    "UPDATE children SET points = ? WHERE id = ?",
			expected: "UPDATE children SET points = ? WHERE id = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.dialect.RewriteQuery(tt.query))
		})
	}
}

func TestUpsertClause(t *testing.T) {
	conflict := []string{"user_id", "device_id"}
	update := []string{"name", "updated_at"}

	assert.Equal(t,
		" ON CONFLICT (user_id, device_id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at",
		NewSQLiteDialect().UpsertClause(conflict, update))
	assert.Equal(t,
		NewSQLiteDialect().UpsertClause(conflict, update),
		NewPostgresDialect().UpsertClause(conflict, update))
	assert.Equal(t,
		" ON DUPLICATE KEY UPDATE name = VALUES(name), updated_at = VALUES(updated_at)",
		NewMySQLDialect().UpsertClause(conflict, update))
}

func TestUpsertClauseOnSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT NOT NULL)")
	require.NoError(t, err)

	upsert := "INSERT INTO kv (k, v) VALUES (?, ?)" + db.GetDialect().UpsertClause([]string{"k"}, []string{"v"})
	for _, v := range []string{"first", "second"} {
		_, err = db.ExecContext(ctx, upsert, "theme", v)
		require.NoError(t, err)
	}

	var count int
	var v string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(v) FROM kv").Scan(&count, &v))
	assert.Equal(t, 1, count)
	assert.Equal(t, "second", v)
}

func TestResetSequenceQuery(t *testing.T) {
	q := NewPostgresDialect().ResetSequenceQuery("reward_claims")
	assert.Contains(t, q, "pg_get_serial_sequence('reward_claims', 'id')")
	assert.Contains(t, q, "SELECT MAX(id) FROM reward_claims")
}

func TestLockClause(t *testing.T) {
	assert.Empty(t, NewSQLiteDialect().LockClause())
	assert.Equal(t, " FOR UPDATE", NewPostgresDialect().LockClause())
	assert.Equal(t, " FOR UPDATE", NewMySQLDialect().LockClause())
}

func TestIsUniqueViolation(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("failed to create completion: %w", err) }
	tests := []struct {
		name    string
		dialect Dialect
		err     error
		want    bool
	}{
		{"sqlite unique", NewSQLiteDialect(), wrap(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}), true},
		{"sqlite foreign key", NewSQLiteDialect(), wrap(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}), false},
		{"postgres unique", NewPostgresDialect(), wrap(&pq.Error{Code: "23505"}), true},
		{"postgres not null", NewPostgresDialect(), wrap(&pq.Error{Code: "23502"}), false},
		{"mysql duplicate entry", NewMySQLDialect(), wrap(&mysql.MySQLError{Number: 1062}), true},
		{"mysql lock wait", NewMySQLDialect(), wrap(&mysql.MySQLError{Number: 1205}), false},
		{"plain error", NewPostgresDialect(), errors.New("boom"), false},
		{"nil", NewSQLiteDialect(), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.IsUniqueViolation(tt.err))
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	d := NewSQLiteDialect()
	assert.Equal(t, "file::memory:?_foreign_keys=on", d.DSN(DialectConfig{Path: ":memory:"}))
	assert.Equal(t, "file::memory:?_foreign_keys=on", d.DSN(DialectConfig{}))
	assert.Equal(t,
		"file:data/habits.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL",
		d.DSN(DialectConfig{Path: "data/habits.db"}))
}

func TestMySQLDSN(t *testing.T) {
	d := NewMySQLDialect()
	assert.Empty(t, d.DSN(DialectConfig{}))
	assert.Equal(t,
		"u:p@tcp(db:3306)/hh?parseTime=true&loc=UTC&clientFoundRows=true",
		d.DSN(DialectConfig{URL: "u:p@tcp(db:3306)/hh"}))
	assert.Equal(t,
		"u:p@tcp(db:3306)/hh?tls=true&parseTime=true&loc=UTC&clientFoundRows=true",
		d.DSN(DialectConfig{URL: "u:p@tcp(db:3306)/hh?tls=true"}))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?,?,?", Placeholders(3))
}

func TestSplitStatements(t *testing.T) {
	content := `-- header comment
CREATE TABLE a (
    id INTEGER
);

CREATE INDEX idx_a ON a(id);
`
	stmts := splitStatements(content)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE INDEX idx_a ON a(id)", stmts[1])
}
