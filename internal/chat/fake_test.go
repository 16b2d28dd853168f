package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/move-it/website/internal/domain"
)

var errStoreDown = errors.New("store unavailable")

// memRepo is an in-memory store.Repository for session tests.
type memRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages map[string][]*domain.ChatMessage
	windows  map[string]domain.WindowState
	themes   map[string]domain.Theme
	visitors map[string]*domain.Visitor

	failReads     bool
	insertGate    chan struct{}
	insertStarted chan struct{}
	windowWrite   int
}

func newMemRepo() *memRepo {
	return &memRepo{
		messages: make(map[string][]*domain.ChatMessage),
		windows:  make(map[string]domain.WindowState),
		themes:   make(map[string]domain.Theme),
		visitors: make(map[string]*domain.Visitor),
	}
}

func (r *memRepo) TouchVisitor(_ context.Context, visitorID string, seen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visitors[visitorID]
	if !ok {
		r.visitors[visitorID] = &domain.Visitor{VisitorID: visitorID, FirstSeenAt: seen, LastSeenAt: seen}
		return nil
	}
	if seen.After(v.LastSeenAt) {
		v.LastSeenAt = seen
	}
	return nil
}

func (r *memRepo) GetVisitor(_ context.Context, visitorID string) (*domain.Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visitors[visitorID], nil
}

func (r *memRepo) InsertMessage(_ context.Context, visitorID string, msg *domain.ChatMessage) error {
	if r.insertGate != nil {
		select {
		case r.insertStarted <- struct{}{}:
		default:
		}
		<-r.insertGate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg.ID = r.nextID
	r.messages[visitorID] = append(r.messages[visitorID], msg)
	return nil
}

func (r *memRepo) ListMessages(_ context.Context, visitorID string) ([]*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReads {
		return nil, errStoreDown
	}
	out := append([]*domain.ChatMessage(nil), r.messages[visitorID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memRepo) ClearMessages(_ context.Context, visitorID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.messages[visitorID]))
	delete(r.messages, visitorID)
	return n, nil
}

func (r *memRepo) GetWindowState(_ context.Context, visitorID string) (domain.WindowState, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReads {
		return "", false, errStoreDown
	}
	state, ok := r.windows[visitorID]
	return state, ok, nil
}

func (r *memRepo) SetWindowState(_ context.Context, visitorID string, state domain.WindowState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windowWrite++
	r.windows[visitorID] = state
	return nil
}

func (r *memRepo) GetTheme(_ context.Context, visitorID string) (domain.Theme, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	theme, ok := r.themes[visitorID]
	return theme, ok, nil
}

func (r *memRepo) SetTheme(_ context.Context, visitorID string, theme domain.Theme) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.themes[visitorID] = theme
	return nil
}

func (r *memRepo) GetExpiredVisitors(_ context.Context, ttl time.Duration) ([]*domain.Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Visitor
	for _, v := range r.visitors {
		if v.Expired(time.Now(), ttl) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memRepo) DeleteVisitor(_ context.Context, visitorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.visitors, visitorID)
	delete(r.messages, visitorID)
	delete(r.windows, visitorID)
	delete(r.themes, visitorID)
	return nil
}

func (r *memRepo) Ping(context.Context) error { return nil }

func (r *memRepo) Close() error { return nil }

func (r *memRepo) stored(visitorID string) []*domain.ChatMessage {
	msgs, _ := r.ListMessages(context.Background(), visitorID)
	return msgs
}

// recordingSink collects events in arrival order.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Send(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordingSink) messages(role domain.Role) []Event {
	var out []Event
	for _, e := range s.all() {
		if e.Type == EventMessage && e.Role == role {
			out = append(out, e)
		}
	}
	return out
}
