// Package sqlite implements the message log on a local sqlite database
// using the cgo-free modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/courier/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the sqlite-backed MessageStore. Writes are serialized by mu so
// the dedup check-and-insert is atomic even before the unique index kicks
// in; reads go straight to the database.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	lastTS int64 // unix millis of the last write, for monotonic timestamps
}

var _ store.MessageStore = (*Store)(nil)

// Open opens (creating if needed) the database file at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := "file:" + url.PathEscape(path) +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// Bootstrap applies the embedded migrations. Safe to call on every start;
// an already-current schema is a no-op and existing rows are untouched.
func (s *Store) Bootstrap(_ context.Context) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls the schema back one step. Exposed for the bootstrap CLI.
func (s *Store) MigrateDown() error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

// SchemaVersion returns the current migration version (0 if none applied).
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.migrator()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return v, dirty, nil
}

func (s *Store) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Append inserts one message. Timestamps are assigned here, under the write
// lock, and never decrease even if the wall clock steps backwards.
func (s *Store) Append(ctx context.Context, userID string, dir store.Direction, text, externalID, channel string) (store.AppendResult, error) {
	if channel == "" {
		channel = "whatsapp"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := time.Now().UnixMilli()
	if ts < s.lastTS {
		ts = s.lastTS
	}

	var extID any
	if externalID != "" {
		extID = externalID
	}

	// OR IGNORE turns a hit on the partial unique index (IN + external_id)
	// into a silent no-op; RowsAffected tells us which case we're in.
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (user_id, direction, text, external_id, channel, ts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, string(dir), text, extID, channel, ts)
	if err != nil {
		return store.AppendResult{}, fmt.Errorf("append message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return store.AppendResult{}, fmt.Errorf("append message: rows affected: %w", err)
	}
	if n == 0 {
		return store.AppendResult{Outcome: store.Duplicate}, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return store.AppendResult{}, fmt.Errorf("append message: last insert id: %w", err)
	}
	s.lastTS = ts
	return store.AppendResult{Outcome: store.AppendedNew, ID: id}, nil
}

// History returns at most limit most-recent messages, oldest first.
// Insertion order (rowid) is the chronological order: timestamps are
// assigned monotonically at write time.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, direction, text, external_id, channel, ts
		 FROM messages WHERE user_id = ?
		 ORDER BY id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var (
			m     store.Message
			d     string
			extID sql.NullString
			ts    int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &d, &m.Text, &extID, &m.Channel, &ts); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		m.Direction = store.Direction(d)
		m.ExternalID = extID.String
		m.Timestamp = time.UnixMilli(ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	// Query returned newest-first; callers want oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// HasExternalID reports whether an IN row with the given delivery id exists.
func (s *Store) HasExternalID(ctx context.Context, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE external_id = ? AND direction = 'IN' LIMIT 1`,
		externalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe external id: %w", err)
	}
	return true, nil
}

// Clear deletes all messages for a user.
func (s *Store) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
