// Package sqlite is an embedded Driver backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/store"
)

// DB is the sqlite driver.
type DB struct {
	db *sql.DB
}

var _ store.Driver = (*DB)(nil)

// NewDB opens path (a file path or ":memory:") and runs migrations.
func NewDB(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite store: empty path")
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer keeps ":memory:" databases on a single connection and
	// avoids SQLITE_BUSY under concurrent persistence workers.
	db.SetMaxOpenConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			timestamp_ms INTEGER NOT NULL,
			user_message TEXT NOT NULL,
			ai_response TEXT NOT NULL,
			message_type TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS turns_by_user ON turns(user_id, timestamp_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS turns_by_session ON turns(session_id, timestamp_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS turns_by_conversation ON turns(conversation_id, timestamp_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS turns_by_time ON turns(timestamp_ms);`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			last_active_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			is_active INTEGER NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			ended_at_ms INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS sessions_by_user ON sessions(user_id, created_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := d.db.Exec(st); err != nil {
			return fmt.Errorf("sqlite store: migrate: %w", err)
		}
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) CreateTurn(ctx context.Context, create *model.Turn) (*model.Turn, error) {
	t := *create
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	metadata, err := marshalJSON(t.Metadata)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: marshal metadata: %w", err)
	}

	if _, err := d.db.ExecContext(ctx, `
		INSERT INTO turns(id, conversation_id, user_id, session_id, timestamp_ms, user_message, ai_response, message_type, metadata_json)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ConversationID, t.UserID, t.SessionID, t.Timestamp.UnixMilli(),
		t.UserMessage, t.AIResponse, string(t.MessageType), metadata); err != nil {
		return nil, fmt.Errorf("sqlite store: insert turn: %w", err)
	}
	return &t, nil
}

func (d *DB) ListTurns(ctx context.Context, find *store.FindTurn) ([]*model.Turn, error) {
	where, args := turnWhere(find.UserID, find.SessionID, find.ConversationID)

	query := `SELECT id, conversation_id, user_id, session_id, timestamp_ms, user_message, ai_response, message_type, metadata_json
		FROM turns WHERE ` + strings.Join(where, " AND ") + ` ORDER BY timestamp_ms DESC, rowid DESC`
	if find.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, find.Limit, find.Offset)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Turn
	for rows.Next() {
		var (
			t            model.Turn
			tsMs         int64
			messageType  string
			metadataJSON string
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.UserID, &t.SessionID, &tsMs,
			&t.UserMessage, &t.AIResponse, &messageType, &metadataJSON); err != nil {
			return nil, fmt.Errorf("sqlite store: scan turn: %w", err)
		}
		t.Timestamp = time.UnixMilli(tsMs).UTC()
		t.MessageType = model.MessageType(messageType)
		t.Metadata = map[string]any{}
		if err := json.Unmarshal([]byte(metadataJSON), &t.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite store: decode metadata: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (d *DB) TurnStats(ctx context.Context, userID string) (*model.ConversationStats, error) {
	where, args := turnWhere(userID, "", "")
	row := d.db.QueryRowContext(ctx, `
		SELECT
			COUNT(1),
			COALESCE(SUM(CASE WHEN message_type = 'text' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN message_type = 'voice' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN message_type = 'realtime' THEN 1 ELSE 0 END), 0),
			MIN(timestamp_ms),
			MAX(timestamp_ms)
		FROM turns WHERE `+strings.Join(where, " AND "), args...)

	var (
		stats       model.ConversationStats
		first, last sql.NullInt64
	)
	if err := row.Scan(&stats.TotalConversations, &stats.TextMessages, &stats.VoiceMessages,
		&stats.RealtimeMessages, &first, &last); err != nil {
		return nil, fmt.Errorf("sqlite store: turn stats: %w", err)
	}
	stats.TotalMessages = stats.TotalConversations * 2
	if first.Valid {
		ts := time.UnixMilli(first.Int64).UTC()
		stats.FirstConversation = &ts
	}
	if last.Valid {
		ts := time.UnixMilli(last.Int64).UTC()
		stats.LastConversation = &ts
	}
	return &stats, nil
}

func (d *DB) DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM turns WHERE timestamp_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite store: delete turns: %w", err)
	}
	return res.RowsAffected()
}

func (d *DB) UpsertUser(ctx context.Context, upsert *store.UpsertUser) (*model.User, error) {
	ms := upsert.LastActive.UnixMilli()
	if _, err := d.db.ExecContext(ctx, `
		INSERT INTO users(user_id, email, name, created_at_ms, updated_at_ms, last_active_ms)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
			name = CASE WHEN ? <> '' THEN excluded.name ELSE users.name END,
			updated_at_ms = excluded.updated_at_ms,
			last_active_ms = excluded.last_active_ms
	`, upsert.UserID, upsert.Email, nameOrDefault(upsert.Name), ms, ms, ms, upsert.Name); err != nil {
		return nil, fmt.Errorf("sqlite store: upsert user: %w", err)
	}
	return d.GetUser(ctx, upsert.UserID)
}

func (d *DB) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var (
		u                              model.User
		createdMs, updatedMs, activeMs int64
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT user_id, email, name, created_at_ms, updated_at_ms, last_active_ms FROM users WHERE user_id = ?
	`, userID).Scan(&u.UserID, &u.Email, &u.Name, &createdMs, &updatedMs, &activeMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(createdMs).UTC()
	u.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	u.LastActive = time.UnixMilli(activeMs).UTC()
	return &u, nil
}

func (d *DB) CreateSession(ctx context.Context, create *model.Session) (*model.Session, error) {
	metadata, err := marshalJSON(create.Metadata)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: marshal session metadata: %w", err)
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO sessions(session_id, user_id, is_active, metadata_json, created_at_ms, updated_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`, create.SessionID, create.UserID, create.IsActive, metadata,
		create.CreatedAt.UnixMilli(), create.UpdatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite store: insert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrSessionExists
	}
	return d.GetSession(ctx, create.SessionID)
}

func (d *DB) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (*model.Session, error) {
	ms := endedAt.UnixMilli()
	if _, err := d.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = 0, ended_at_ms = ?, updated_at_ms = ?
		WHERE session_id = ? AND is_active = 1
	`, ms, ms, sessionID); err != nil {
		return nil, fmt.Errorf("sqlite store: end session: %w", err)
	}
	return d.GetSession(ctx, sessionID)
}

func (d *DB) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var (
		s                    model.Session
		active               bool
		metadataJSON         string
		createdMs, updatedMs int64
		endedMs              sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, is_active, metadata_json, created_at_ms, updated_at_ms, ended_at_ms
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&s.SessionID, &s.UserID, &active, &metadataJSON, &createdMs, &updatedMs, &endedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get session: %w", err)
	}
	s.IsActive = active
	s.CreatedAt = time.UnixMilli(createdMs).UTC()
	s.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	if endedMs.Valid {
		ended := time.UnixMilli(endedMs.Int64).UTC()
		s.EndedAt = &ended
	}
	if metadataJSON != "" && metadataJSON != "{}" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &s.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite store: decode session metadata: %w", err)
		}
	}
	return &s, nil
}

func turnWhere(userID, sessionID, conversationID string) ([]string, []any) {
	where, args := []string{"1 = 1"}, []any{}
	if userID != "" {
		where, args = append(where, "user_id = ?"), append(args, userID)
	}
	if sessionID != "" {
		where, args = append(where, "session_id = ?"), append(args, sessionID)
	}
	if conversationID != "" {
		where, args = append(where, "conversation_id = ?"), append(args, conversationID)
	}
	return where, args
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "{}", nil
	}
	return string(b), nil
}

func nameOrDefault(name string) string {
	if name == "" {
		return store.DefaultUserName
	}
	return name
}
