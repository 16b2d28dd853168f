package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/move-it/website/internal/domain"
	"github.com/move-it/website/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	deleteMu sync.Mutex // Serializes visitor purges to keep SQLITE_BUSY rare
}

// NewSQLite creates a new SQLite-backed repository.
// Opening is idempotent: collections are created only if missing.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS visitors (
		visitor_id TEXT PRIMARY KEY,
		first_seen_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_visitors_last_seen ON visitors(last_seen_at);

	CREATE TABLE IF NOT EXISTS chatTable (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		visitor_id TEXT NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_visitor_ts ON chatTable(visitor_id, timestamp, id);

	CREATE TABLE IF NOT EXISTS chatWindowState (
		visitor_id TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_window_visitor ON chatWindowState(visitor_id);

	CREATE TABLE IF NOT EXISTS themeTable (
		visitor_id TEXT NOT NULL,
		theme TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_theme_visitor ON themeTable(visitor_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, SchemaVersion)
	}
	if version < SchemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
		slog.Info("Database schema initialized", "version", SchemaVersion, "previous", version)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// TouchVisitor creates the visitor record if needed and bumps last_seen_at.
func (s *SQLiteStore) TouchVisitor(ctx context.Context, visitorID string, seen time.Time) error {
	query := `
	INSERT INTO visitors (visitor_id, first_seen_at, last_seen_at)
	VALUES (?, ?, ?)
	ON CONFLICT(visitor_id) DO UPDATE SET
		last_seen_at = MAX(visitors.last_seen_at, excluded.last_seen_at)`

	ms := seen.UnixMilli()
	if _, err := s.db.ExecContext(ctx, query, visitorID, ms, ms); err != nil {
		return fmt.Errorf("touch visitor: %w", err)
	}
	return nil
}

// GetVisitor retrieves a visitor by ID.
func (s *SQLiteStore) GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT visitor_id, first_seen_at, last_seen_at FROM visitors WHERE visitor_id = ?`, visitorID)

	var v domain.Visitor
	var firstSeen, lastSeen int64
	err := row.Scan(&v.VisitorID, &firstSeen, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan visitor row: %w", err)
	}
	v.FirstSeenAt = time.UnixMilli(firstSeen)
	v.LastSeenAt = time.UnixMilli(lastSeen)
	return &v, nil
}

// InsertMessage appends a message to the visitor's transcript.
func (s *SQLiteStore) InsertMessage(ctx context.Context, visitorID string, msg *domain.ChatMessage) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("insert message: unknown role %q", msg.Role)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO chatTable (visitor_id, type, text, timestamp) VALUES (?, ?, ?, ?)`,
		visitorID, string(msg.Role), msg.Text, msg.TimestampMillis(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get message id: %w", err)
	}
	msg.ID = id
	return nil
}

// ListMessages returns the visitor's transcript in replay order.
func (s *SQLiteStore) ListMessages(ctx context.Context, visitorID string) ([]*domain.ChatMessage, error) {
	query := `
		SELECT id, type, text, timestamp
		FROM chatTable WHERE visitor_id = ?
		ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, visitorID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var messages []*domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		var role string
		var ts int64
		if err := rows.Scan(&msg.ID, &role, &msg.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		parsed, err := domain.ParseRole(role)
		if err != nil {
			slog.Warn("Skipping message with unknown role", "visitor_id", visitorID, "id", msg.ID, "role", role)
			continue
		}
		msg.Role = parsed
		msg.Timestamp = time.UnixMilli(ts)
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// ClearMessages removes the visitor's whole transcript.
func (s *SQLiteStore) ClearMessages(ctx context.Context, visitorID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chatTable WHERE visitor_id = ?`, visitorID)
	if err != nil {
		return 0, fmt.Errorf("clear messages: %w", err)
	}
	return result.RowsAffected()
}

// GetWindowState returns the stored widget state for the visitor.
func (s *SQLiteStore) GetWindowState(ctx context.Context, visitorID string) (domain.WindowState, bool, error) {
	value, found, err := s.getSingleton(ctx, ChatWindowState, "state", visitorID)
	if err != nil || !found {
		return domain.DefaultWindowState, false, err
	}
	state, err := domain.ParseWindowState(value)
	if err != nil {
		return domain.DefaultWindowState, false, err
	}
	return state, true, nil
}

// SetWindowState replaces the visitor's widget state.
func (s *SQLiteStore) SetWindowState(ctx context.Context, visitorID string, state domain.WindowState) error {
	return s.replaceSingleton(ctx, ChatWindowState, "state", visitorID, string(state))
}

// GetTheme returns the stored theme for the visitor.
func (s *SQLiteStore) GetTheme(ctx context.Context, visitorID string) (domain.Theme, bool, error) {
	value, found, err := s.getSingleton(ctx, ThemeTable, "theme", visitorID)
	if err != nil || !found {
		return domain.DefaultTheme, false, err
	}
	theme, err := domain.ParseTheme(value)
	if err != nil {
		return domain.DefaultTheme, false, err
	}
	return theme, true, nil
}

// SetTheme replaces the visitor's theme.
func (s *SQLiteStore) SetTheme(ctx context.Context, visitorID string, theme domain.Theme) error {
	return s.replaceSingleton(ctx, ThemeTable, "theme", visitorID, string(theme))
}

// getSingleton reads the single value column of table for a visitor.
// table and column are package constants, never user input.
func (s *SQLiteStore) getSingleton(ctx context.Context, table, column, visitorID string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE visitor_id = ? ORDER BY rowid DESC LIMIT 1`, column, table)

	var value string
	err := s.db.QueryRowContext(ctx, query, visitorID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", table, err)
	}
	return value, true, nil
}

// replaceSingleton clears the visitor's rows in table and inserts value,
// in one transaction, so at most one row per visitor ever exists.
func (s *SQLiteStore) replaceSingleton(ctx context.Context, table, column, visitorID, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s write: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE visitor_id = ?`, table), visitorID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (visitor_id, %s, updated_at) VALUES (?, ?, ?)`, table, column)
	if _, err := tx.ExecContext(ctx, insert, visitorID, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s write: %w", table, err)
	}
	return nil
}

// GetExpiredVisitors retrieves visitors whose last activity is older than ttl.
func (s *SQLiteStore) GetExpiredVisitors(ctx context.Context, ttl time.Duration) ([]*domain.Visitor, error) {
	threshold := time.Now().Add(-ttl).UnixMilli()
	query := `
		SELECT visitor_id, first_seen_at, last_seen_at
		FROM visitors WHERE last_seen_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired visitors: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expired visitor rows", "error", closeErr)
		}
	}()

	var visitors []*domain.Visitor
	for rows.Next() {
		var v domain.Visitor
		var firstSeen, lastSeen int64
		if err := rows.Scan(&v.VisitorID, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan expired visitor row: %w", err)
		}
		v.FirstSeenAt = time.UnixMilli(firstSeen)
		v.LastSeenAt = time.UnixMilli(lastSeen)
		visitors = append(visitors, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired visitors: %w", err)
	}
	return visitors, nil
}

// Purges retry SQLITE_BUSY with backoff sleeps of 100ms, 200ms and 400ms.
const (
	deleteAttempts  = 4
	deleteBaseDelay = 100 * time.Millisecond
)

// DeleteVisitor removes a visitor and all of its collections.
func (s *SQLiteStore) DeleteVisitor(ctx context.Context, visitorID string) error {
	err := shared.RetryOnConflict(ctx, deleteAttempts, deleteBaseDelay, "delete_visitor", func() error {
		return s.deleteVisitorOnce(ctx, visitorID)
	})
	if err != nil {
		return fmt.Errorf("delete visitor %s: %w", visitorID, err)
	}
	return nil
}

func (s *SQLiteStore) deleteVisitorOnce(ctx context.Context, visitorID string) error {
	s.deleteMu.Lock()
	defer s.deleteMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin visitor delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{ChatTable, ChatWindowState, ThemeTable, VisitorsTable} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE visitor_id = ?`, table), visitorID); err != nil {
			return fmt.Errorf("delete visitor from %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit visitor delete: %w", err)
	}
	return nil
}
