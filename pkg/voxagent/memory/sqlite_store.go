// sqlite_store.go implements the Storage interface on SQLite. The record
// shape from record.go is the on-disk contract: every field maps to a
// column (structured tool payloads are stored as JSON), so any other
// backend honoring the same shape stays interchangeable.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// SQLiteStore persists memory records in a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens or creates the records database. WAL mode and a busy
// timeout keep concurrent conversation writes from failing fast.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.With("component", "sqlite_store"),
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// initSchema creates the records table and lookup indices.
func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			id              TEXT PRIMARY KEY,
			content         TEXT NOT NULL,
			timestamp       DATETIME NOT NULL,
			type            TEXT NOT NULL,
			importance      INTEGER NOT NULL DEFAULT 0,
			channel         TEXT NOT NULL DEFAULT '',
			role            TEXT NOT NULL DEFAULT '',
			conversation_id TEXT NOT NULL DEFAULT '',
			call_sid        TEXT NOT NULL DEFAULT '',
			message_sid     TEXT NOT NULL DEFAULT '',
			sender          TEXT NOT NULL DEFAULT '',
			recipient       TEXT NOT NULL DEFAULT '',
			thread_id       TEXT NOT NULL DEFAULT '',
			in_reply_to     TEXT NOT NULL DEFAULT '',
			direction       TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT '',
			tool_call       TEXT,
			tool_result     TEXT,
			goal_achieved   INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_records_conversation
			ON records(conversation_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_records_timestamp
			ON records(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save inserts a single record. Records are immutable, so a duplicate ID is
// an error rather than an upsert.
func (s *SQLiteStore) Save(ctx context.Context, record Record) error {
	toolCall, toolResult, err := marshalToolPayloads(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (
			id, content, timestamp, type, importance, channel, role,
			conversation_id, call_sid, message_sid, sender, recipient,
			thread_id, in_reply_to, direction, status,
			tool_call, tool_result, goal_achieved
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID, record.Content, record.Timestamp.UTC(), string(record.Type),
		record.Importance, string(record.Channel), string(record.Role),
		record.Session.ConversationID, record.Session.CallSID, record.Session.MessageSID,
		record.Session.From, record.Session.To,
		record.Session.ThreadID, record.Session.InReplyTo,
		record.Session.Direction, record.Session.Status,
		toolCall, toolResult, boolToInt(record.GoalAchieved),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// SaveBatch inserts records in one transaction; all-or-nothing.
func (s *SQLiteStore) SaveBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (
			id, content, timestamp, type, importance, channel, role,
			conversation_id, call_sid, message_sid, sender, recipient,
			thread_id, in_reply_to, direction, status,
			tool_call, tool_result, goal_achieved
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, record := range records {
		toolCall, toolResult, err := marshalToolPayloads(record)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			record.ID, record.Content, record.Timestamp.UTC(), string(record.Type),
			record.Importance, string(record.Channel), string(record.Role),
			record.Session.ConversationID, record.Session.CallSID, record.Session.MessageSID,
			record.Session.From, record.Session.To,
			record.Session.ThreadID, record.Session.InReplyTo,
			record.Session.Direction, record.Session.Status,
			toolCall, toolResult, boolToInt(record.GoalAchieved),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", record.ID, err)
		}
	}

	return tx.Commit()
}

// Get loads a record by ID; ErrNotFound on a miss.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM records WHERE id = ?", id)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load record %s: %w", id, err)
	}
	return record, nil
}

// Search applies the query filters and returns matching records.
func (s *SQLiteStore) Search(ctx context.Context, query SearchQuery) ([]Record, error) {
	var conditions []string
	var args []any

	if query.ConversationID != "" {
		conditions = append(conditions, "conversation_id = ?")
		args = append(args, query.ConversationID)
	}
	if query.Channel != "" {
		conditions = append(conditions, "channel = ?")
		args = append(args, string(query.Channel))
	}
	if len(query.Types) > 0 {
		placeholders := strings.Repeat("?,", len(query.Types))
		conditions = append(conditions, fmt.Sprintf("type IN (%s)", placeholders[:len(placeholders)-1]))
		for _, t := range query.Types {
			args = append(args, string(t))
		}
	}
	if query.Role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, string(query.Role))
	}
	if !query.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.Since.UTC())
	}
	if !query.Until.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, query.Until.UTC())
	}
	if query.MinImportance > 0 {
		conditions = append(conditions, "importance >= ?")
		args = append(args, query.MinImportance)
	}
	if len(query.Keywords) > 0 {
		var kwConds []string
		for _, kw := range query.Keywords {
			if kw == "" {
				continue
			}
			kwConds = append(kwConds, "content LIKE ? ESCAPE '\\'")
			args = append(args, "%"+escapeLike(kw)+"%")
		}
		if len(kwConds) > 0 {
			conditions = append(conditions, "("+strings.Join(kwConds, " OR ")+")")
		}
	}

	sqlQuery := selectColumns + " FROM records"
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	orderCol := "timestamp"
	if query.OrderBy == OrderByImportance {
		orderCol = "importance"
	}
	direction := "DESC"
	if query.Ascending {
		direction = "ASC"
	}
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s", orderCol, direction)

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Delete removes a record permanently.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
	return err
}

// DeleteOlderThan removes low-importance records older than the cutoff.
// Used by the retention pruner; records at or above keepImportance survive
// regardless of age.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, keepImportance int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE timestamp < ? AND importance < ?",
		cutoff.UTC(), keepImportance,
	)
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}
	return res.RowsAffected()
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Count returns the total number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectColumns = `SELECT
	id, content, timestamp, type, importance, channel, role,
	conversation_id, call_sid, message_sid, sender, recipient,
	thread_id, in_reply_to, direction, status,
	tool_call, tool_result, goal_achieved`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord maps a result row back to a Record.
func scanRecord(row rowScanner) (Record, error) {
	var r Record
	var recordType, channel, role string
	var toolCall, toolResult sql.NullString
	var goalAchieved int

	err := row.Scan(
		&r.ID, &r.Content, &r.Timestamp, &recordType, &r.Importance, &channel, &role,
		&r.Session.ConversationID, &r.Session.CallSID, &r.Session.MessageSID,
		&r.Session.From, &r.Session.To,
		&r.Session.ThreadID, &r.Session.InReplyTo,
		&r.Session.Direction, &r.Session.Status,
		&toolCall, &toolResult, &goalAchieved,
	)
	if err != nil {
		return Record{}, err
	}

	r.Type = RecordType(recordType)
	r.Channel = Channel(channel)
	r.Role = Role(role)
	r.GoalAchieved = goalAchieved != 0
	r.Timestamp = r.Timestamp.UTC()

	if toolCall.Valid && toolCall.String != "" {
		var tc ToolInvocation
		if err := json.Unmarshal([]byte(toolCall.String), &tc); err != nil {
			return Record{}, fmt.Errorf("decode tool call: %w", err)
		}
		r.ToolCall = &tc
	}
	if toolResult.Valid && toolResult.String != "" {
		var tr ToolOutcome
		if err := json.Unmarshal([]byte(toolResult.String), &tr); err != nil {
			return Record{}, fmt.Errorf("decode tool result: %w", err)
		}
		r.ToolResult = &tr
	}
	return r, nil
}

// marshalToolPayloads JSON-encodes the optional structured payloads.
func marshalToolPayloads(record Record) (sql.NullString, sql.NullString, error) {
	var toolCall, toolResult sql.NullString

	if record.ToolCall != nil {
		data, err := json.Marshal(record.ToolCall)
		if err != nil {
			return toolCall, toolResult, fmt.Errorf("encode tool call: %w", err)
		}
		toolCall = sql.NullString{String: string(data), Valid: true}
	}
	if record.ToolResult != nil {
		data, err := json.Marshal(record.ToolResult)
		if err != nil {
			return toolCall, toolResult, fmt.Errorf("encode tool result: %w", err)
		}
		toolResult = sql.NullString{String: string(data), Valid: true}
	}
	return toolCall, toolResult, nil
}

// escapeLike escapes LIKE wildcards in user-supplied keywords.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
