// Package ticketstore provides ticket.Store adapters over external
// persistence: a local SQLite database and a Google Sheets spreadsheet.
// Both are thin row mappers; all lifecycle logic lives in the ticket package.
package ticketstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bull/ragdesk/internal/ticket"
)

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	ticket_id       TEXT PRIMARY KEY,
	content         TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	resolution_text TEXT NOT NULL DEFAULT '',
	reporter        TEXT NOT NULL DEFAULT '',
	rollback_to     TEXT NOT NULL DEFAULT '',
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL DEFAULT '',
	updated_at      TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore persists tickets in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a ticket database at path.
// WAL mode keeps concurrent resolver workers from blocking each other.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) List(ctx context.Context) ([]*ticket.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticket_id, content, category, status, resolution_text, reporter,
		        rollback_to, attempts, last_error, created_at, updated_at
		 FROM tickets ORDER BY ticket_id`)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*ticket.Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ticket_id, content, category, status, resolution_text, reporter,
		        rollback_to, attempts, last_error, created_at, updated_at
		 FROM tickets WHERE ticket_id = ?`, id)

	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ticket.ErrNotFound, id)
	}
	return t, err
}

func (s *SQLiteStore) Put(ctx context.Context, t *ticket.Ticket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (ticket_id, content, category, status, resolution_text,
		                      reporter, rollback_to, attempts, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ticket_id) DO UPDATE SET
		   content = excluded.content,
		   category = excluded.category,
		   status = excluded.status,
		   resolution_text = excluded.resolution_text,
		   reporter = excluded.reporter,
		   rollback_to = excluded.rollback_to,
		   attempts = excluded.attempts,
		   last_error = excluded.last_error,
		   updated_at = excluded.updated_at`,
		t.ID, t.Content, t.Category, string(t.Status), t.ResolutionText,
		t.Reporter, string(t.RollbackTo), t.Attempts, t.LastError,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting ticket %s: %w", t.ID, err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*ticket.Ticket, error) {
	var t ticket.Ticket
	var status, rollback, createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Content, &t.Category, &status, &t.ResolutionText,
		&t.Reporter, &rollback, &t.Attempts, &t.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	parsed, err := ticket.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", t.ID, err)
	}
	t.Status = parsed
	if rollback != "" {
		if t.RollbackTo, err = ticket.ParseStatus(rollback); err != nil {
			return nil, fmt.Errorf("ticket %s: %w", t.ID, err)
		}
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
