package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/move-it/website/internal/identity"
	"github.com/move-it/website/internal/responder"
	"github.com/move-it/website/internal/store"
)

const wsWriteTimeout = 5 * time.Second

// WebSocketConfig configures the chat websocket endpoint.
type WebSocketConfig struct {
	Session       Options
	RateLimit     rate.Limit // submissions per second per page session
	RateBurst     int
	AllowedOrigin string
	IsDev         bool
}

// WebSocketHandler serves one chat Session per websocket connection.
type WebSocketHandler struct {
	repo    store.Repository
	matcher *responder.Matcher
	sm      *SessionManager
	cfg     WebSocketConfig
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(repo store.Repository, matcher *responder.Matcher, sm *SessionManager, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Inf
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	cfg.AllowedOrigin = strings.TrimRight(cfg.AllowedOrigin, "/")
	return &WebSocketHandler{
		repo:    repo,
		matcher: matcher,
		sm:      sm,
		cfg:     cfg,
	}
}

// wsMessage is a frame sent by the widget.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsSink writes session events as JSON text frames.
type wsSink struct {
	conn *websocket.Conn
	ctx  context.Context
}

func (s *wsSink) Send(e Event) {
	if s.ctx.Err() != nil {
		return
	}
	if err := writeJSON(s.ctx, s.conn, e); err != nil && s.ctx.Err() == nil {
		slog.Debug("WebSocket write error", "error", err, "event", e.Type)
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	pageID := identity.PageIDFromContext(r.Context())
	if pageID == "" {
		pageID = identity.NewPageID()
	}
	slog.Info("WebSocket connection request", "visitor_id", visitorID, "page_id", pageID, "ip", identity.IPFromRequest(r))

	if visitorID == "" {
		http.Error(w, "missing visitor identity", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "visitor_id", visitorID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "visitor_id", visitorID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := NewSession(visitorID, pageID, h.repo, h.matcher, &wsSink{conn: ws, ctx: ctx}, h.cfg.Session)
	h.sm.Register(session, cancel)
	defer h.sm.Unregister(session)
	defer session.Close()

	session.Initialize(ctx)
	h.readLoop(ctx, ws, session)
	slog.Info("Chat session ended", "visitor_id", visitorID, "page_id", pageID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == h.cfg.AllowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, session *Session) {
	limiter := rate.NewLimiter(h.cfg.RateLimit, h.cfg.RateBurst)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed", "visitor_id", session.VisitorID(), "page_id", session.PageID())
			} else {
				slog.Warn("WebSocket read error", "error", err, "visitor_id", session.VisitorID())
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			session.Notify("invalid_message")
			continue
		}

		switch msg.Type {
		case "message":
			if !limiter.Allow() {
				slog.Warn("Chat submission rate limited", "visitor_id", session.VisitorID(), "page_id", session.PageID())
				session.Notify("rate_limited")
				continue
			}
			session.Submit(ctx, msg.Content)
		case "toggle":
			session.Toggle(ctx)
		case "ping":
			if err := writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
