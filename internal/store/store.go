// Package store keeps the memo journal: every memo write attempted against
// the ERP, successful or not, so the front desk can see what was sent.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("store: memo not found")

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Memo is one journaled memo write.
type Memo struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Date      string    `json:"date,omitempty"`
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS memo (
	id         TEXT PRIMARY KEY,
	event_id   TEXT NOT NULL,
	date       TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memo_event ON memo (event_id, created_ts);
`

const memoColumns = "id, event_id, date, text, status, error, created_ts"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the sqlite journal at path. ":memory:"
// gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record journals one attempt. A non-nil writeErr marks it failed.
func (s *Store) Record(ctx context.Context, eventID, date, text string, writeErr error) (Memo, error) {
	m := Memo{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Date:      date,
		Text:      text,
		Status:    StatusOK,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if writeErr != nil {
		m.Status = StatusFailed
		m.Error = writeErr.Error()
	}

	stmt := `INSERT INTO memo (` + memoColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt,
		m.ID, m.EventID, m.Date, m.Text, string(m.Status), m.Error, m.CreatedAt.UnixMilli(),
	); err != nil {
		return Memo{}, fmt.Errorf("failed to record memo: %w", err)
	}
	return m, nil
}

func (s *Store) Get(ctx context.Context, id string) (Memo, error) {
	list, err := s.list(ctx, []string{"id = ?"}, []any{id}, 1)
	if err != nil {
		return Memo{}, err
	}
	if len(list) == 0 {
		return Memo{}, ErrNotFound
	}
	return list[0], nil
}

// ListByEvent returns the attempts for one ERP event, newest first.
func (s *Store) ListByEvent(ctx context.Context, eventID string) ([]Memo, error) {
	return s.list(ctx, []string{"event_id = ?"}, []any{eventID}, 0)
}

// Recent returns the newest limit attempts across all events.
func (s *Store) Recent(ctx context.Context, limit int) ([]Memo, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, nil, nil, limit)
}

func (s *Store) list(ctx context.Context, where []string, args []any, limit int) ([]Memo, error) {
	query := `SELECT ` + memoColumns + ` FROM memo`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	// rowid breaks ties between writes in the same millisecond.
	query += ` ORDER BY created_ts DESC, rowid DESC`
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memos: %w", err)
	}
	defer rows.Close()

	list := make([]Memo, 0)
	for rows.Next() {
		var m Memo
		var status string
		var createdTs int64
		if err := rows.Scan(&m.ID, &m.EventID, &m.Date, &m.Text, &status, &m.Error, &createdTs); err != nil {
			return nil, fmt.Errorf("failed to scan memo: %w", err)
		}
		m.Status = Status(status)
		m.CreatedAt = time.UnixMilli(createdTs).UTC()
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
