package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sakif/planet-hub/internal/model"
)

type EventKind string

const (
	SignedIn  EventKind = "SIGNED_IN"
	SignedOut EventKind = "SIGNED_OUT"
)

// Event is delivered to session-change listeners.
type Event struct {
	Kind    EventKind
	Session model.Session
}

// Listener reacts to a session change. An error is logged and does not
// fail the sign-in.
type Listener func(ctx context.Context, ev Event) error

// hub fans events out to the current listeners. Each subscription gets its
// own ID so unsubscribing one closure never removes another.
type hub struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
	logger    *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{listeners: make(map[int]Listener), logger: logger}
}

// subscribe returns an idempotent unsubscribe func.
func (h *hub) subscribe(fn Listener) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.listeners[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// publish calls listeners synchronously, outside the lock, so a listener may
// unsubscribe itself.
func (h *hub) publish(ctx context.Context, ev Event) {
	h.mu.RLock()
	fns := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		if err := fn(ctx, ev); err != nil {
			h.logger.Error("session listener failed",
				slog.String("event", string(ev.Kind)),
				slog.String("userID", ev.Session.UserID),
				slog.String("error", err.Error()),
			)
		}
	}
}
