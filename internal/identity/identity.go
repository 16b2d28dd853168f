// Package identity provides anonymous per-browser identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/move-it/website/internal/store"
)

const (
	VisitorCookieName = "moveit_visitor_id"
	PageHeaderName    = "X-MoveIt-Page-ID"
	visitorCookieAge  = 30 * 24 * time.Hour
)

type contextKey int

const (
	visitorIDKey contextKey = iota
	pageIDKey
)

var visitorIDPattern = regexp.MustCompile(`^v_[a-f0-9]{32}$`)

// VisitorIDFromContext extracts the visitor ID from the request context.
func VisitorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(visitorIDKey).(string); ok {
		return v
	}
	return ""
}

// PageIDFromContext extracts the page session ID from the request context.
func PageIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(pageIDKey).(string); ok {
		return v
	}
	return ""
}

// WithVisitorID returns a context carrying visitorID.
func WithVisitorID(ctx context.Context, visitorID string) context.Context {
	return context.WithValue(ctx, visitorIDKey, visitorID)
}

// NewPageID returns a fresh page session id.
func NewPageID() string {
	return uuid.NewString()
}

func generateVisitorID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate visitor id: %w", err)
	}
	return "v_" + hex.EncodeToString(buf), nil
}

// IsValidVisitorID reports whether id has the shape issued by this package.
func IsValidVisitorID(id string) bool {
	return visitorIDPattern.MatchString(id)
}

func setVisitorCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(visitorCookieAge.Seconds()),
		Expires:  time.Now().Add(visitorCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateVisitorID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(VisitorCookieName); err == nil && IsValidVisitorID(c.Value) {
		setVisitorCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateVisitorID()
	if err != nil {
		return "", err
	}
	setVisitorCookie(w, id, isDev)
	return id, nil
}

// pageIDFromRequest keeps a client supplied page id only if it is a UUID.
func pageIDFromRequest(r *http.Request) string {
	pid := r.Header.Get(PageHeaderName)
	if pid == "" {
		pid = r.URL.Query().Get("page_id")
	}
	if parsed, err := uuid.Parse(pid); err == nil {
		return parsed.String()
	}
	return NewPageID()
}

// Middleware issues the visitor cookie, records the visit and injects the
// visitor and page ids into the request context.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID, err := getOrCreateVisitorID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish visitor identity"}`, http.StatusInternalServerError)
				return
			}

			if err := repo.TouchVisitor(r.Context(), visitorID, time.Now()); err != nil {
				slog.Warn("Failed to record visitor", "error", err, "visitor_id", visitorID)
			}

			ctx := WithVisitorID(r.Context(), visitorID)
			ctx = context.WithValue(ctx, pageIDKey, pageIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
