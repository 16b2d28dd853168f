// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/move-it/website/internal/domain"
)

// Collection names. They double as SQLite table names.
const (
	ChatTable       = "chatTable"
	ChatWindowState = "chatWindowState"
	ThemeTable      = "themeTable"
	VisitorsTable   = "visitors"
)

// SchemaVersion is recorded in PRAGMA user_version when the schema is created.
const SchemaVersion = 1

// Repository defines the interface for persisting per-visitor chat data.
// Every record is scoped to the visitor ID issued by the identity middleware.
type Repository interface {
	// TouchVisitor creates the visitor record if needed and bumps last_seen_at.
	TouchVisitor(ctx context.Context, visitorID string, seen time.Time) error

	// GetVisitor retrieves a visitor, or nil if unknown.
	GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error)

	// InsertMessage appends a message to the transcript and sets msg.ID.
	InsertMessage(ctx context.Context, visitorID string, msg *domain.ChatMessage) error

	// ListMessages returns the transcript ordered by timestamp, then id.
	ListMessages(ctx context.Context, visitorID string) ([]*domain.ChatMessage, error)

	// ClearMessages removes the whole transcript and returns how many rows went.
	ClearMessages(ctx context.Context, visitorID string) (int64, error)

	// GetWindowState returns the stored widget state; found is false if none exists.
	GetWindowState(ctx context.Context, visitorID string) (state domain.WindowState, found bool, err error)

	// SetWindowState clears previous records and stores state as the only one.
	SetWindowState(ctx context.Context, visitorID string, state domain.WindowState) error

	// GetTheme returns the stored theme; found is false if none exists.
	GetTheme(ctx context.Context, visitorID string) (theme domain.Theme, found bool, err error)

	// SetTheme clears previous records and stores theme as the only one.
	SetTheme(ctx context.Context, visitorID string, theme domain.Theme) error

	// GetExpiredVisitors retrieves visitors idle for longer than ttl.
	GetExpiredVisitors(ctx context.Context, ttl time.Duration) ([]*domain.Visitor, error)

	// DeleteVisitor removes the visitor and every record it owns.
	DeleteVisitor(ctx context.Context, visitorID string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
