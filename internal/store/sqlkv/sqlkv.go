// Package sqlkv is the SQL-backed KVStore/StreamStore variant, grounded on
// the teacher's cockroach-backed session store: a messages table keyed by
// (session_id, id), driven through database/sql so the same code serves
// Postgres (lib/pq) and SQLite (mattn/go-sqlite3 or modernc.org/sqlite,
// selected by DSN scheme) without a second implementation.
package sqlkv

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/agentcore/internal/store"
)

// Driver names a registered database/sql driver. "postgres" uses
// github.com/lib/pq; "sqlite3" uses github.com/mattn/go-sqlite3 (cgo);
// "sqlite" uses modernc.org/sqlite (pure Go).
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite3  Driver = "sqlite3"
	DriverSQLite   Driver = "sqlite"
)

// Store is a database/sql-backed KVStore.
type Store struct {
	db     *sql.DB
	driver Driver
}

// Open connects using the given driver and DSN and ensures the schema
// exists. Callers register the relevant database/sql driver import
// (_ "github.com/lib/pq", _ "github.com/mattn/go-sqlite3", or
// _ "modernc.org/sqlite") in their main package.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sql store: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT NOT NULL,
			id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			tool_call_id TEXT,
			created_at TIMESTAMP NOT NULL,
			token_estimate INTEGER NOT NULL,
			active BOOLEAN NOT NULL,
			supersedes_ids TEXT,
			PRIMARY KEY (session_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_activity TIMESTAMP NOT NULL,
			summary_cursor TEXT,
			total_tokens_estimate INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sql store: %w", err)
		}
	}
	return nil
}

func (s *Store) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *Store) Put(ctx context.Context, sessionID string, msg store.Message) error {
	toolCallsJSON, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	supersedesJSON, err := json.Marshal(msg.SupersedesIDs)
	if err != nil {
		return fmt.Errorf("marshal supersedes ids: %w", err)
	}

	var query string
	if s.driver == DriverPostgres {
		query = `INSERT INTO messages (session_id, id, role, content, tool_calls, tool_call_id, created_at, token_estimate, active, supersedes_ids)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (session_id, id) DO UPDATE SET
			role=excluded.role, content=excluded.content, tool_calls=excluded.tool_calls,
			tool_call_id=excluded.tool_call_id, created_at=excluded.created_at,
			token_estimate=excluded.token_estimate, active=excluded.active, supersedes_ids=excluded.supersedes_ids`
	} else {
		query = `INSERT INTO messages (session_id, id, role, content, tool_calls, tool_call_id, created_at, token_estimate, active, supersedes_ids)
			VALUES (?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT (session_id, id) DO UPDATE SET
			role=excluded.role, content=excluded.content, tool_calls=excluded.tool_calls,
			tool_call_id=excluded.tool_call_id, created_at=excluded.created_at,
			token_estimate=excluded.token_estimate, active=excluded.active, supersedes_ids=excluded.supersedes_ids`
	}

	_, err = s.db.ExecContext(ctx, query,
		sessionID, msg.ID, string(msg.Role), msg.Content, string(toolCallsJSON), msg.ToolCallID,
		msg.CreatedAt, msg.TokenEstimate, msg.Active, string(supersedesJSON))
	return err
}

func (s *Store) GetRange(ctx context.Context, sessionID string, fromID string, limit int) ([]store.Message, error) {
	query := fmt.Sprintf(`SELECT id, role, content, tool_calls, tool_call_id, created_at, token_estimate, active, supersedes_ids
		FROM messages WHERE session_id = %s AND id > %s ORDER BY created_at, id`,
		s.placeholder(1), s.placeholder(2))
	args := []any{sessionID, fromID}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var m store.Message
		var toolCallsJSON, supersedesJSON string
		m.SessionID = sessionID
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &toolCallsJSON, &m.ToolCallID, &m.CreatedAt, &m.TokenEstimate, &m.Active, &supersedesJSON); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		_ = json.Unmarshal([]byte(toolCallsJSON), &m.ToolCalls)
		_ = json.Unmarshal([]byte(supersedesJSON), &m.SupersedesIDs)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateActive(ctx context.Context, sessionID string, ids []string, active bool) error {
	for _, id := range ids {
		query := fmt.Sprintf("UPDATE messages SET active = %s WHERE session_id = %s AND id = %s",
			s.placeholder(1), s.placeholder(2), s.placeholder(3))
		if _, err := s.db.ExecContext(ctx, query, active, sessionID, id); err != nil {
			return fmt.Errorf("update active: %w", err)
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM messages WHERE session_id = %s", s.placeholder(1)), sessionID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM sessions WHERE session_id = %s", s.placeholder(1)), sessionID)
	return err
}

func (s *Store) ScanSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT session_id FROM messages ORDER BY session_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) PutSession(ctx context.Context, sess store.Session) error {
	var query string
	if s.driver == DriverPostgres {
		query = `INSERT INTO sessions (session_id, agent_id, created_at, last_activity, summary_cursor, total_tokens_estimate)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (session_id) DO UPDATE SET agent_id=excluded.agent_id, last_activity=excluded.last_activity,
			summary_cursor=excluded.summary_cursor, total_tokens_estimate=excluded.total_tokens_estimate`
	} else {
		query = `INSERT INTO sessions (session_id, agent_id, created_at, last_activity, summary_cursor, total_tokens_estimate)
			VALUES (?,?,?,?,?,?)
			ON CONFLICT (session_id) DO UPDATE SET agent_id=excluded.agent_id, last_activity=excluded.last_activity,
			summary_cursor=excluded.summary_cursor, total_tokens_estimate=excluded.total_tokens_estimate`
	}
	_, err := s.db.ExecContext(ctx, query, sess.SessionID, sess.AgentID, sess.CreatedAt, sess.LastActivity, sess.SummaryCursor, sess.TotalTokensEstimate)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, bool, error) {
	query := fmt.Sprintf(`SELECT session_id, agent_id, created_at, last_activity, summary_cursor, total_tokens_estimate
		FROM sessions WHERE session_id = %s`, s.placeholder(1))
	row := s.db.QueryRowContext(ctx, query, sessionID)
	var sess store.Session
	var lastActivity, createdAt time.Time
	if err := row.Scan(&sess.SessionID, &sess.AgentID, &createdAt, &lastActivity, &sess.SummaryCursor, &sess.TotalTokensEstimate); err != nil {
		if err == sql.ErrNoRows {
			return store.Session{}, false, nil
		}
		return store.Session{}, false, err
	}
	sess.CreatedAt = createdAt
	sess.LastActivity = lastActivity
	return sess, true, nil
}

func (s *Store) Close() error { return s.db.Close() }
