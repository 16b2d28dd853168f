// Package chat runs live chat widget sessions: one Session per page load,
// fed by a websocket connection and backed by the persistent store.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/move-it/website/internal/domain"
	"github.com/move-it/website/internal/render"
	"github.com/move-it/website/internal/responder"
	"github.com/move-it/website/internal/store"
)

const (
	// DefaultReplyDelay is how long the typing indicator shows before a reply.
	DefaultReplyDelay = 1500 * time.Millisecond
	// DefaultQueueSize bounds pending store writes per session.
	DefaultQueueSize = 64
	// DefaultWelcome is shown as the first live message of every page load.
	DefaultWelcome = "Hello! I'm the Move It assistant. Ask me anything about your move: " +
		"services, prices, packing, storage or booking."

	defaultWriteTimeout = 5 * time.Second
)

// EventType names the kind of update sent to the widget.
type EventType string

const (
	EventMessage EventType = "message"
	EventTyping  EventType = "typing"
	EventWindow  EventType = "window"
	EventError   EventType = "error"
)

// Event is one update for the widget view.
type Event struct {
	Type      EventType          `json:"type"`
	Role      domain.Role        `json:"role,omitempty"`
	Text      string             `json:"text,omitempty"`
	HTML      string             `json:"html,omitempty"`
	Timestamp int64              `json:"timestamp,omitempty"`
	Active    *bool              `json:"active,omitempty"`
	State     domain.WindowState `json:"state,omitempty"`
	Message   string             `json:"message,omitempty"`
}

func typingEvent(active bool) Event {
	return Event{Type: EventTyping, Active: &active}
}

// Sink receives session events in emission order.
type Sink interface {
	Send(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Send calls f(e).
func (f SinkFunc) Send(e Event) { f(e) }

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	ReplyDelay   time.Duration
	QueueSize    int
	Welcome      string
	WriteTimeout time.Duration
	Renderer     *render.Renderer
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ReplyDelay <= 0 {
		o.ReplyDelay = DefaultReplyDelay
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Welcome == "" {
		o.Welcome = DefaultWelcome
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.Renderer == nil {
		o.Renderer = render.New(render.DefaultAvatar)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type write struct {
	op string
	fn func(ctx context.Context) error
}

// Session is the controller of one page load. It owns the dialogue state,
// the pending reply timers and a FIFO queue of store writes drained by a
// single goroutine, so rendering never waits on persistence.
type Session struct {
	visitorID string
	pageID    string
	repo      store.Repository
	matcher   *responder.Matcher
	sink      Sink
	opts      Options

	initOnce  sync.Once
	closeOnce sync.Once

	mu     sync.Mutex
	state  responder.State
	window domain.WindowState
	timers map[uint64]*time.Timer
	nextID uint64
	closed bool

	writes chan write
	done   chan struct{}
}

// NewSession creates a session and starts its persistence goroutine.
// Call Close to release it.
func NewSession(visitorID, pageID string, repo store.Repository, matcher *responder.Matcher, sink Sink, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		visitorID: visitorID,
		pageID:    pageID,
		repo:      repo,
		matcher:   matcher,
		sink:      sink,
		opts:      opts,
		window:    domain.DefaultWindowState,
		timers:    make(map[uint64]*time.Timer),
		writes:    make(chan write, opts.QueueSize),
		done:      make(chan struct{}),
	}
	go s.persistLoop()
	return s
}

// VisitorID returns the visitor owning the session.
func (s *Session) VisitorID() string { return s.visitorID }

// PageID returns the page session id.
func (s *Session) PageID() string { return s.pageID }

// State returns a copy of the current dialogue state.
func (s *Session) State() responder.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// restoreState carries dialogue state over from an earlier session of the
// same page.
func (s *Session) restoreState(state responder.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Window returns the current widget state.
func (s *Session) Window() domain.WindowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// Initialize restores the widget state and transcript, then greets the
// visitor. Only the first call has any effect. Store failures fall back to
// the defaults.
func (s *Session) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		window, found, err := s.repo.GetWindowState(ctx, s.visitorID)
		if err != nil {
			slog.Warn("Failed to load chat window state", "error", err, "visitor_id", s.visitorID)
		}
		if err != nil || !found {
			window = domain.DefaultWindowState
		}

		history, err := s.repo.ListMessages(ctx, s.visitorID)
		if err != nil {
			slog.Warn("Failed to load chat history", "error", err, "visitor_id", s.visitorID)
			history = nil
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.window = window
		s.sink.Send(Event{Type: EventWindow, State: window})
		for _, msg := range history {
			s.emitMessage(msg)
		}
		s.emitMessage(domain.NewChatMessage(domain.RoleOperator, s.opts.Welcome, s.opts.Now()))

		slog.Debug("Chat session initialized",
			"visitor_id", s.visitorID, "page_id", s.pageID, "history", len(history), "window", window)
	})
}

// Submit shows the visitor's message, records it and schedules the reply.
// Blank input is ignored. Every call schedules its own reply, so replies to
// messages sent within the delay arrive independently.
func (s *Session) Submit(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || ctx.Err() != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	now := s.opts.Now()
	msg := domain.NewChatMessage(domain.RoleUser, text, now)
	s.emitMessage(msg)
	s.persistMessage(msg)
	s.enqueue("touch_visitor", func(ctx context.Context) error {
		return s.repo.TouchVisitor(ctx, s.visitorID, now)
	})

	s.sink.Send(typingEvent(true))
	// The callback takes s.mu, so it cannot run reply before the timer is
	// registered below.
	id := s.nextID
	s.nextID++
	s.timers[id] = time.AfterFunc(s.opts.ReplyDelay, func() {
		s.reply(id, text)
	})
	return true
}

func (s *Session) reply(id uint64, input string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, pending := s.timers[id]; !pending {
		return
	}
	delete(s.timers, id)

	s.sink.Send(typingEvent(false))
	reply := s.matcher.Match(input, &s.state)
	slog.Debug("Chat reply",
		"visitor_id", s.visitorID, "page_id", s.pageID, "rule", reply.Rule, "language", reply.Language)

	msg := domain.NewChatMessage(domain.RoleOperator, reply.Text, s.opts.Now())
	s.emitMessage(msg)
	s.persistMessage(msg)
}

// Toggle flips the widget between wrapped and unwrapped and records the
// new state. It returns the new state.
func (s *Session) Toggle(ctx context.Context) domain.WindowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || ctx.Err() != nil {
		return s.window
	}

	s.window = s.window.Toggle()
	state := s.window
	s.sink.Send(Event{Type: EventWindow, State: state})
	s.enqueue("set_window_state", func(ctx context.Context) error {
		return s.repo.SetWindowState(ctx, s.visitorID, state)
	})
	return state
}

// Notify sends an error event to the view.
func (s *Session) Notify(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.sink.Send(Event{Type: EventError, Message: message})
	}
}

// Close drops pending replies, flushes queued writes and stops the
// persistence goroutine. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		for _, timer := range s.timers {
			timer.Stop()
		}
		clear(s.timers)
		close(s.writes)
		s.mu.Unlock()

		<-s.done
		slog.Debug("Chat session closed", "visitor_id", s.visitorID, "page_id", s.pageID)
	})
}

// emitMessage must be called with s.mu held.
func (s *Session) emitMessage(msg *domain.ChatMessage) {
	s.sink.Send(Event{
		Type:      EventMessage,
		Role:      msg.Role,
		Text:      msg.Text,
		HTML:      s.opts.Renderer.Bubble(msg.Role, msg.Text),
		Timestamp: msg.TimestampMillis(),
	})
}

// persistMessage must be called with s.mu held.
func (s *Session) persistMessage(msg *domain.ChatMessage) {
	s.enqueue("insert_message", func(ctx context.Context) error {
		return s.repo.InsertMessage(ctx, s.visitorID, msg)
	})
}

// enqueue must be called with s.mu held. A full queue drops the write.
func (s *Session) enqueue(op string, fn func(ctx context.Context) error) {
	if s.closed {
		return
	}
	select {
	case s.writes <- write{op: op, fn: fn}:
	default:
		slog.Warn("Chat persistence queue full, dropping write",
			"op", op, "visitor_id", s.visitorID, "page_id", s.pageID)
	}
}

func (s *Session) persistLoop() {
	defer close(s.done)
	for w := range s.writes {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		if err := w.fn(ctx); err != nil {
			slog.Warn("Chat persistence failed",
				"op", w.op, "error", err, "visitor_id", s.visitorID, "page_id", s.pageID)
		}
		cancel()
	}
}
