package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/haasonsaas/agentcore/internal/store"
)

func setupMockStore(t *testing.T, driver Driver) (sqlmock.Sqlmock, *Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return mock, &Store{db: db, driver: driver}
}

func TestStore_Put(t *testing.T) {
	mock, s := setupMockStore(t, DriverSQLite)
	msg := store.Message{ID: "m1", Role: store.RoleUser, Content: "hi", CreatedAt: time.Now(), Active: true}

	mock.ExpectExec("INSERT INTO messages").
		WithArgs("sess-1", "m1", "user", "hi", "null", "", sqlmock.AnyArg(), 0, true, "null").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Put(context.Background(), "sess-1", msg); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStore_Put_DatabaseError(t *testing.T) {
	mock, s := setupMockStore(t, DriverPostgres)
	msg := store.Message{ID: "m1", Role: store.RoleUser, Content: "hi", CreatedAt: time.Now()}

	mock.ExpectExec("INSERT INTO messages").WillReturnError(errors.New("connection refused"))

	if err := s.Put(context.Background(), "sess-1", msg); err == nil {
		t.Fatal("expected an error")
	}
}

func TestStore_GetRange(t *testing.T) {
	mock, s := setupMockStore(t, DriverSQLite)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "role", "content", "tool_calls", "tool_call_id", "created_at", "token_estimate", "active", "supersedes_ids"}).
		AddRow("m1", "user", "hi", "null", "", now, 3, true, "null").
		AddRow("m2", "assistant", "hello", "null", "", now, 2, true, "null")

	mock.ExpectQuery("SELECT id, role, content").
		WithArgs("sess-1", "").
		WillReturnRows(rows)

	msgs, err := s.GetRange(context.Background(), "sess-1", "", 0)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].SessionID != "sess-1" {
		t.Fatalf("expected session id to be populated, got %q", msgs[0].SessionID)
	}
}

func TestStore_GetSession_NotFound(t *testing.T) {
	mock, s := setupMockStore(t, DriverSQLite)

	mock.ExpectQuery("SELECT session_id, agent_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := s.GetSession(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a missing session")
	}
}

func TestStore_UpdateActive(t *testing.T) {
	mock, s := setupMockStore(t, DriverPostgres)

	mock.ExpectExec("UPDATE messages SET active").WithArgs(false, "sess-1", "m1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE messages SET active").WithArgs(false, "sess-1", "m2").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateActive(context.Background(), "sess-1", []string{"m1", "m2"}, false); err != nil {
		t.Fatalf("UpdateActive: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	mock, s := setupMockStore(t, DriverSQLite)

	mock.ExpectExec("DELETE FROM messages WHERE session_id").WithArgs("sess-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM sessions WHERE session_id").WithArgs("sess-1").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Delete(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestStore_PlaceholderStyle(t *testing.T) {
	_, pg := setupMockStore(t, DriverPostgres)
	if got := pg.placeholder(2); got != "$2" {
		t.Fatalf("expected postgres placeholder $2, got %q", got)
	}
	_, lite := setupMockStore(t, DriverSQLite)
	if got := lite.placeholder(2); got != "?" {
		t.Fatalf("expected sqlite placeholder ?, got %q", got)
	}
}
