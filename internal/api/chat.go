package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/move-it/website/internal/domain"
	"github.com/move-it/website/internal/identity"
)

// ClientConfig is what the widget script needs to know before connecting.
type ClientConfig struct {
	ReplyDelayMS   int64    `json:"reply_delay_ms"`
	Welcome        string   `json:"welcome"`
	OperatorAvatar string   `json:"operator_avatar"`
	Languages      []string `json:"languages"`
}

// ChatHandler serves the visitor's chat records.
type ChatHandler struct {
	*Handler
	client ClientConfig
}

// NewChatHandler creates a chat handler.
func NewChatHandler(base *Handler, client ClientConfig) *ChatHandler {
	return &ChatHandler{Handler: base, client: client}
}

// NewClientConfig builds the widget configuration.
func NewClientConfig(replyDelay time.Duration, welcome, avatar string, languages []string) ClientConfig {
	return ClientConfig{
		ReplyDelayMS:   replyDelay.Milliseconds(),
		Welcome:        welcome,
		OperatorAvatar: avatar,
		Languages:      languages,
	}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/chat/history", h.GetHistory)
		r.Delete("/chat/history", h.ClearHistory)
		r.Get("/chat/window", h.GetWindow)
		r.Put("/chat/window", h.PutWindow)
		r.Get("/theme", h.GetTheme)
		r.Put("/theme", h.PutTheme)
	})
}

func visitorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := identity.VisitorIDFromContext(r.Context())
	if id == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return id, true
}

// GetConfig returns the widget configuration.
func (h *ChatHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.client)
}

// GetHistory returns the transcript in replay order.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	vid, ok := visitorID(w, r)
	if !ok {
		return
	}

	msgs, err := h.repo.ListMessages(r.Context(), vid)
	if err != nil {
		slog.Error("Failed to list chat history", "error", err, "visitor_id", vid)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if msgs == nil {
		msgs = []*domain.ChatMessage{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// ClearHistory deletes the whole transcript.
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	vid, ok := visitorID(w, r)
	if !ok {
		return
	}

	n, err := h.repo.ClearMessages(r.Context(), vid)
	if err != nil {
		slog.Error("Failed to clear chat history", "error", err, "visitor_id", vid)
		Error(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	slog.Info("Chat history cleared", "visitor_id", vid, "deleted", n)
	JSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// GetWindow returns the widget state, wrapped when unknown or unreadable.
func (h *ChatHandler) GetWindow(w http.ResponseWriter, r *http.Request) {
	vid, ok := visitorID(w, r)
	if !ok {
		return
	}

	state, found, err := h.repo.GetWindowState(r.Context(), vid)
	if err != nil {
		slog.Warn("Failed to load chat window state", "error", err, "visitor_id", vid)
	}
	if err != nil || !found {
		state = domain.DefaultWindowState
	}
	JSON(w, http.StatusOK, map[string]domain.WindowState{"state": state})
}

// PutWindow replaces the widget state.
func (h *ChatHandler) PutWindow(w http.ResponseWriter, r *http.Request) {
	vid, ok := visitorID(w, r)
	if !ok {
		return
	}

	var body struct {
		State string `json:"state"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := domain.ParseWindowState(body.State)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.SetWindowState(r.Context(), vid, state); err != nil {
		slog.Error("Failed to save chat window state", "error", err, "visitor_id", vid)
		Error(w, http.StatusInternalServerError, "failed to save window state")
		return
	}
	JSON(w, http.StatusOK, map[string]domain.WindowState{"state": state})
}

// GetTheme returns the visitor's theme, light when unknown or unreadable.
func (h *ChatHandler) GetTheme(w http.ResponseWriter, r *http.Request) {
	vid, ok := visitorID(w, r)
	if !ok {
		return
	}

	theme, found, err := h.repo.GetTheme(r.Context(), vid)
	if err != nil {
		slog.Warn("Failed to load theme", "error", err, "visitor_id", vid)
	}
	if err != nil || !found {
		theme = domain.DefaultTheme
	}
	JSON(w, http.StatusOK, map[string]domain.Theme{"theme": theme})
}

// PutTheme replaces the visitor's theme.
func (h *ChatHandler) PutTheme(w http.ResponseWriter, r *http.Request) {
	vid, ok := visitorID(w, r)
	if !ok {
		return
	}

	var body struct {
		Theme string `json:"theme"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	theme, err := domain.ParseTheme(body.Theme)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.SetTheme(r.Context(), vid, theme); err != nil {
		slog.Error("Failed to save theme", "error", err, "visitor_id", vid)
		Error(w, http.StatusInternalServerError, "failed to save theme")
		return
	}
	JSON(w, http.StatusOK, map[string]domain.Theme{"theme": theme})
}
