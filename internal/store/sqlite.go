// Package store is the persistence layer: a SQLite database holding the
// settings scope (one row), per-(domain, session) conversation records, the
// bookmarked-messages list, and per-domain sticky flags. Records are opaque
// blobs written whole; the session layer owns their shape.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// SessionRecord is one persisted session keyed by (domain, session id).
type SessionRecord struct {
	Domain      string
	SessionID   string
	Title       string
	Messages    []byte // JSON, written atomically as a whole
	LastUpdated time.Time
}

// Bookmark is one saved message.
type Bookmark struct {
	ID        int64
	Domain    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// DB wraps the SQLite handle.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory database, used by tests.
func OpenMemory() (*DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Each pooled connection would get its own empty :memory: database.
	db.SetMaxOpenConns(1)
	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		id   INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		domain       TEXT NOT NULL,
		session_id   TEXT NOT NULL,
		title        TEXT NOT NULL DEFAULT '',
		messages     TEXT NOT NULL,
		last_updated INTEGER NOT NULL, -- unix nanoseconds; ordering must be numeric
		PRIMARY KEY (domain, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_domain_updated
		ON sessions(domain, last_updated DESC);

	CREATE TABLE IF NOT EXISTS bookmarks (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		domain     TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bookmarks_domain ON bookmarks(domain);

	CREATE TABLE IF NOT EXISTS sticky (
		domain  TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetSettings returns the settings blob, or ErrNotFound when none saved.
func (s *DB) GetSettings(ctx context.Context) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return []byte(data), nil
}

// PutSettings replaces the settings blob.
func (s *DB) PutSettings(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (id, data) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(data))
	if err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}

// PutSession writes the whole record, last-writer-wins per key.
func (s *DB) PutSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (domain, session_id, title, messages, last_updated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(domain, session_id) DO UPDATE SET
			title = excluded.title,
			messages = excluded.messages,
			last_updated = excluded.last_updated`,
		rec.Domain, rec.SessionID, rec.Title, string(rec.Messages),
		rec.LastUpdated.UnixNano())
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession loads one record.
func (s *DB) GetSession(ctx context.Context, domain, sessionID string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT domain, session_id, title, messages, last_updated
		 FROM sessions WHERE domain = ? AND session_id = ?`, domain, sessionID)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// ListSessions returns records for a domain (or all when domain is empty),
// most recently updated first, ties broken by session id so ordering is
// deterministic.
func (s *DB) ListSessions(ctx context.Context, domain string) ([]SessionRecord, error) {
	query := `SELECT domain, session_id, title, messages, last_updated FROM sessions`
	args := []any{}
	if domain != "" {
		query += ` WHERE domain = ?`
		args = append(args, domain)
	}
	query += ` ORDER BY last_updated DESC, session_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes one record.
func (s *DB) DeleteSession(ctx context.Context, domain, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE domain = ? AND session_id = ?`, domain, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteSessions removes all records for a domain, or every record when the
// domain is empty.
func (s *DB) DeleteSessions(ctx context.Context, domain string) error {
	var err error
	if domain == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM sessions`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE domain = ?`, domain)
	}
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

// AddBookmark appends to the bookmarked-messages list.
func (s *DB) AddBookmark(ctx context.Context, domain, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmarks (domain, role, content, created_at) VALUES (?, ?, ?, ?)`,
		domain, role, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add bookmark: %w", err)
	}
	return nil
}

// ListBookmarks returns bookmarks for a domain (or all when empty), newest
// first.
func (s *DB) ListBookmarks(ctx context.Context, domain string) ([]Bookmark, error) {
	query := `SELECT id, domain, role, content, created_at FROM bookmarks`
	args := []any{}
	if domain != "" {
		query += ` WHERE domain = ?`
		args = append(args, domain)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		var created string
		if err := rows.Scan(&b.ID, &b.Domain, &b.Role, &b.Content, &created); err != nil {
			return nil, fmt.Errorf("list bookmarks: %w", err)
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Sticky reports the per-domain sticky-mode flag; absent means off.
func (s *DB) Sticky(ctx context.Context, domain string) (bool, error) {
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM sticky WHERE domain = ?`, domain).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get sticky: %w", err)
	}
	return enabled != 0, nil
}

// SetSticky stores the per-domain sticky-mode flag.
func (s *DB) SetSticky(ctx context.Context, domain string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sticky (domain, enabled) VALUES (?, ?)
		 ON CONFLICT(domain) DO UPDATE SET enabled = excluded.enabled`, domain, v)
	if err != nil {
		return fmt.Errorf("set sticky: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (SessionRecord, error) {
	var rec SessionRecord
	var messages string
	var updated int64
	if err := row.Scan(&rec.Domain, &rec.SessionID, &rec.Title, &messages, &updated); err != nil {
		return SessionRecord{}, err
	}
	rec.Messages = []byte(messages)
	rec.LastUpdated = time.Unix(0, updated).UTC()
	return rec, nil
}
