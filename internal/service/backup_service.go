package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"habitheroes/internal/clock"
	"habitheroes/internal/database"
)

// BackupVersion is written into every export
const BackupVersion = "1"

type columnKind int

const (
	colInt columnKind = iota
	colNullInt
	colText
	colNullText
	colBool
	colTime
	colNullTime
)

type backupColumn struct {
	name string
	kind columnKind
}

type backupTable struct {
	name    string
	orderBy string
	serial  bool
	columns []backupColumn
}

func cols(spec string) []backupColumn {
	kinds := map[string]columnKind{
		"int": colInt, "int?": colNullInt,
		"text": colText, "text?": colNullText,
		"bool": colBool,
		"time": colTime, "time?": colNullTime,
	}
	var out []backupColumn
	for _, field := range strings.Fields(spec) {
		name, kind, _ := strings.Cut(field, ":")
		out = append(out, backupColumn{name: name, kind: kinds[kind]})
	}
	return out
}

// backupTables lists every table in foreign key order: a table only refers
// to tables above it
var backupTables = []backupTable{
	{"users", "id", true, cols("id:int email:text name:text password_hash:text google_sub:text? created_at:time updated_at:time")},
	{"sessions", "id", false, cols("id:text user_id:int expires_at:time created_at:time")},
	{"families", "id", true, cols("id:int name:text family_code:text created_at:time updated_at:time")},
	{"family_members", "id", true, cols("id:int family_id:int user_id:int role:text created_at:time")},
	{"children", "id", true, cols("id:int family_id:int name:text username:text pin_hash:text avatar_id:text level:int xp:int total_xp:int reward_points:int unlocked_avatars:text unlocked_gear:text created_at:time updated_at:time")},
	{"child_sessions", "id", false, cols("id:text child_id:int expires_at:time created_at:time")},
	{"master_habits", "id", true, cols("id:int family_id:int name:text icon:text xp_reward:int reminder_enabled:bool reminder_time:text created_at:time updated_at:time")},
	{"habits", "id", true, cols("id:int child_id:int master_habit_id:int? name:text icon:text xp_reward:int reminder_enabled:bool reminder_time:text active:bool created_at:time updated_at:time")},
	{"habit_completions", "id", true, cols("id:int habit_id:int child_id:int completion_date:text completed_at:time xp_earned:int streak_count:int reward_points_earned:int status:text reviewed_by:text review_message:text reviewed_at:time? auto_approved:bool")},
	{"rewards", "id", true, cols("id:int family_id:int child_id:int? title:text description:text cost:int category:text is_recurring:bool next_occurrence:time? parent_reward_id:int? active:bool created_at:time updated_at:time")},
	{"reward_claims", "id", true, cols("id:int reward_id:int child_id:int status:text message:text requested_at:time reviewed_at:time? reviewed_by:text")},
	{"reward_transactions", "id", true, cols("id:int child_id:int amount:int kind:text description:text reference_type:text reference_id:int? requires_approval:bool approved:bool created_at:time")},
	{"parental_controls", "id", true, cols("id:int child_id:int daily_screen_time_minutes:int bedtime_start:text bedtime_end:text rewards_enabled:bool avatar_shop_enabled:bool challenges_enabled:bool emergency_mode:bool updated_at:time")},
	{"approval_settings", "family_id", false, cols("family_id:int enabled:bool delay_value:int delay_unit:text updated_at:time")},
	{"devices", "id", true, cols("id:int user_id:int device_id:text name:text device_type:text push_token:text active:bool last_sync_at:time? created_at:time updated_at:time")},
	{"sync_events", "id", true, cols("id:int user_id:int event_type:text entity_type:text entity_id:int payload:text occurred_at:time processed:bool")},
	{"weekend_challenges", "id", true, cols("id:int child_id:int title:text description:text bonus_points:int bonus_xp:int starts_at:time ends_at:time is_accepted:bool is_completed:bool accepted_at:time? completed_at:time? created_at:time")},
}

// BackupData is the JSON document produced by Export
type BackupData struct {
	Version    string                              `json:"version"`
	ExportedAt time.Time                           `json:"exported_at"`
	Tables     map[string][]map[string]interface{} `json:"tables"`
}

// Count returns the number of rows held for a table
func (b *BackupData) Count(table string) int {
	return len(b.Tables[table])
}

// BackupService exports and restores the whole database as JSON
type BackupService struct {
	db  *database.DB
	clk clock.Clock
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, clk clock.Clock) *BackupService {
	return &BackupService{db: db, clk: clk}
}

// Export writes every table to w as indented JSON
func (s *BackupService) Export(ctx context.Context, w io.Writer) (*BackupData, error) {
	backup := &BackupData{
		Version:    BackupVersion,
		ExportedAt: s.clk.Now(),
		Tables:     make(map[string][]map[string]interface{}, len(backupTables)),
	}
	for _, table := range backupTables {
		rows, err := s.exportTable(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", table.name, err)
		}
		backup.Tables[table.name] = rows
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	return backup, nil
}

func (s *BackupService) exportTable(ctx context.Context, table backupTable) ([]map[string]interface{}, error) {
	names := make([]string, len(table.columns))
	for i, c := range table.columns {
		names[i] = c.name
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(names, ", "), table.name, table.orderBy)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []map[string]interface{}{}
	for rows.Next() {
		dest := make([]interface{}, len(table.columns))
		for i, c := range table.columns {
			dest[i] = scanTarget(c.kind)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		record := make(map[string]interface{}, len(table.columns))
		for i, c := range table.columns {
			record[c.name] = exportValue(dest[i])
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func scanTarget(kind columnKind) interface{} {
	switch kind {
	case colInt:
		return new(int64)
	case colNullInt:
		return new(sql.NullInt64)
	case colText:
		return new(string)
	case colNullText:
		return new(sql.NullString)
	case colBool:
		return new(bool)
	case colTime:
		return new(time.Time)
	default:
		return new(sql.NullTime)
	}
}

func exportValue(v interface{}) interface{} {
	switch v := v.(type) {
	case *int64:
		return *v
	case *string:
		return *v
	case *bool:
		return *v
	case *time.Time:
		return v.UTC()
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64
		}
	case *sql.NullString:
		if v.Valid {
			return v.String
		}
	case *sql.NullTime:
		if v.Valid {
			return v.Time.UTC()
		}
	}
	return nil
}

// Import restores a backup read from r in one transaction. With clear set,
// existing rows are deleted first; otherwise the backup must not collide
// with existing keys.
func (s *BackupService) Import(ctx context.Context, r io.Reader, clear bool) (*BackupData, error) {
	var backup BackupData
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	if err := decoder.Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != BackupVersion {
		return nil, fmt.Errorf("unsupported backup version %q", backup.Version)
	}
	log.Printf("Backup version: %s, exported at: %s", backup.Version, backup.ExportedAt.Format(time.RFC3339))

	err := database.WithTx(ctx, s.db, func(tx *database.Tx) error {
		if clear {
			for i := len(backupTables) - 1; i >= 0; i-- {
				if _, err := tx.ExecContext(ctx, "DELETE FROM "+backupTables[i].name); err != nil {
					return fmt.Errorf("failed to clear %s: %w", backupTables[i].name, err)
				}
			}
		}
		for _, table := range backupTables {
			if err := importTable(ctx, tx, table, backup.Tables[table.name]); err != nil {
				return fmt.Errorf("failed to import %s: %w", table.name, err)
			}
		}
		return resetSequences(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return &backup, nil
}

func importTable(ctx context.Context, tx *database.Tx, table backupTable, rows []map[string]interface{}) error {
	names := make([]string, len(table.columns))
	for i, c := range table.columns {
		names[i] = c.name
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.name, strings.Join(names, ", "), database.Placeholders(len(names)))

	for n, row := range rows {
		args := make([]interface{}, len(table.columns))
		for i, c := range table.columns {
			v, err := importValue(c, row[c.name])
			if err != nil {
				return fmt.Errorf("row %d: %w", n, err)
			}
			args[i] = v
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("row %d: %w", n, err)
		}
	}
	return nil
}

func importValue(c backupColumn, raw interface{}) (interface{}, error) {
	if raw == nil {
		switch c.kind {
		case colNullInt, colNullText, colNullTime:
			return nil, nil
		}
		return nil, fmt.Errorf("column %s is required", c.name)
	}

	switch c.kind {
	case colInt, colNullInt:
		num, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("column %s: expected a number", c.name)
		}
		return num.Int64()
	case colText, colNullText:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("column %s: expected a string", c.name)
		}
		return str, nil
	case colBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("column %s: expected a boolean", c.name)
		}
		return b, nil
	default:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("column %s: expected a timestamp", c.name)
		}
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.name, err)
		}
		return t.UTC(), nil
	}
}

// resetSequences moves id sequences past the imported ids on engines that
// keep them apart from the rows
func resetSequences(ctx context.Context, tx *database.Tx) error {
	dialect := tx.GetDialect()
	for _, table := range backupTables {
		if !table.serial {
			continue
		}
		query := dialect.ResetSequenceQuery(table.name)
		if query == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to reset sequence for %s: %w", table.name, err)
		}
	}
	return nil
}
