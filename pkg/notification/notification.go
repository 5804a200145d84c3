// Package notification implements the Notification Protocol (spec §4.4):
// a transport-agnostic core that accepts events over HTTP or a
// persistent WebSocket stream, persists them, dispatches to registered
// handlers by predicate, and broadcasts to connected streaming clients.
package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/pkg/schema"
	"github.com/corewire/taskmesh/pkg/store"
)

// State is a notification's position in the per-notification state
// machine: received -> persisted -> dispatched -> (handled | no_handler)
// -> marked_processed, with expired reachable at any pre-dispatch point.
type State string

const (
	StateReceived       State = "received"
	StatePersisted      State = "persisted"
	StateDispatched     State = "dispatched"
	StateHandled        State = "handled"
	StateNoHandler      State = "no_handler"
	StateMarkedProcessed State = "marked_processed"
	StateExpired        State = "expired"
)

// Event is the in-flight view of a notification as it moves through
// the state machine; Payload is the validated wire shape.
type Event struct {
	ID        string
	Payload   *schema.Notification
	State     State
	CreatedAt time.Time
}

func (e *Event) expired(now time.Time) bool {
	if e.Payload.ExpiresAt == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, e.Payload.ExpiresAt)
	if err != nil {
		return false
	}
	return !t.After(now)
}

// HandlerFunc processes one event. An error means this handler did not
// handle the event; it never aborts other handlers.
type HandlerFunc func(ctx context.Context, evt *Event) error

// Predicate decides whether a handler is interested in an event.
type Predicate func(evt *Event) bool

type handler struct {
	id        string
	predicate Predicate
	fn        HandlerFunc
	active    bool
}

// Config tunes the per-handler invocation deadline.
type Config struct {
	HandlerDeadline time.Duration
	Logger          corekit.Logger
}

func DefaultConfig() Config {
	return Config{HandlerDeadline: 30 * time.Second, Logger: corekit.NoOpLogger{}}
}

// Broadcaster receives every dispatched event best-effort, regardless
// of handler outcome. The WebSocket hub implements this.
type Broadcaster interface {
	Broadcast(evt *Event)
}

// Protocol is the transport-agnostic notification core. HTTP and
// WebSocket ingress both funnel through Accept.
type Protocol struct {
	cfg   Config
	store store.EventStore
	logger corekit.Logger

	mu       sync.RWMutex
	handlers []*handler

	broadcastMu sync.RWMutex
	broadcaster Broadcaster
}

func NewProtocol(cfg Config, es store.EventStore) *Protocol {
	if cfg.HandlerDeadline <= 0 {
		cfg.HandlerDeadline = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = corekit.NoOpLogger{}
	}
	return &Protocol{
		cfg:    cfg,
		store:  es,
		logger: corekit.WithComponent(cfg.Logger, "notification.protocol"),
	}
}

// SetBroadcaster wires a streaming broadcaster (e.g. the WebSocket hub)
// that receives every dispatched event best-effort.
func (p *Protocol) SetBroadcaster(b Broadcaster) {
	p.broadcastMu.Lock()
	defer p.broadcastMu.Unlock()
	p.broadcaster = b
}

// RegisterHandler adds a handler; id must be unique, predicate selects
// which events it sees, and a handler starts active.
func (p *Protocol) RegisterHandler(id string, predicate Predicate, fn HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handlers {
		if h.id == id {
			h.predicate, h.fn = predicate, fn
			return
		}
	}
	p.handlers = append(p.handlers, &handler{id: id, predicate: predicate, fn: fn, active: true})
}

// SetHandlerActive toggles a registered handler without removing it.
func (p *Protocol) SetHandlerActive(id string, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handlers {
		if h.id == id {
			h.active = active
			return
		}
	}
}

// Accept validates, persists, and dispatches a notification payload.
// It returns the final Event view regardless of handler outcome; a
// no-handler match is not an error.
func (p *Protocol) Accept(ctx context.Context, payload *schema.Notification) (*Event, error) {
	if err := schema.Validate(payload, schema.KindNotification); err != nil {
		return nil, err
	}

	evt := &Event{Payload: payload, State: StateReceived, CreatedAt: time.Now().UTC()}

	if evt.expired(time.Now().UTC()) {
		evt.State = StateExpired
		return evt, nil
	}

	id, err := p.store.Append(ctx, store.KindNotification, &store.Record{
		Status: string(StateReceived),
		Data:   notificationToData(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("notification: persist: %w", err)
	}
	evt.ID = id
	evt.State = StatePersisted

	if evt.expired(time.Now().UTC()) {
		evt.State = StateExpired
		_ = p.store.UpdateStatus(ctx, store.KindNotification, id, "", string(StateExpired), nil)
		return evt, nil
	}

	p.dispatch(ctx, evt)
	return evt, nil
}

func (p *Protocol) dispatch(ctx context.Context, evt *Event) {
	evt.State = StateDispatched
	_ = p.store.UpdateStatus(ctx, store.KindNotification, evt.ID, "", string(StateDispatched), nil)

	p.broadcastMu.RLock()
	b := p.broadcaster
	p.broadcastMu.RUnlock()
	if b != nil {
		b.Broadcast(evt)
	}

	p.mu.RLock()
	matching := make([]*handler, 0, len(p.handlers))
	for _, h := range p.handlers {
		if h.active && h.predicate != nil && h.predicate(evt) {
			matching = append(matching, h)
		}
	}
	p.mu.RUnlock()

	handled := false
	for _, h := range matching {
		if p.runHandler(ctx, h, evt) {
			handled = true
		}
	}

	if handled {
		evt.State = StateHandled
	} else {
		evt.State = StateNoHandler
		p.logger.Warn("notification had no handler", map[string]interface{}{
			"event_id": evt.ID, "type": string(evt.Payload.Type),
		})
	}

	evt.State = StateMarkedProcessed
	_ = p.store.UpdateStatus(ctx, store.KindNotification, evt.ID, "", string(StateMarkedProcessed), map[string]interface{}{
		"handled": handled,
	})
}

// runHandler isolates a single handler: its failure or panic never
// prevents other handlers from running.
func (p *Protocol) runHandler(ctx context.Context, h *handler, evt *Event) (ok bool) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.HandlerDeadline)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("notification handler panicked", map[string]interface{}{
				"handler_id": h.id, "event_id": evt.ID, "panic": fmt.Sprintf("%v", r),
			})
			ok = false
		}
	}()

	if err := h.fn(callCtx, evt); err != nil {
		p.logger.Warn("notification handler failed", map[string]interface{}{
			"handler_id": h.id, "event_id": evt.ID, "error": err.Error(),
		})
		return false
	}
	return true
}

func notificationToData(n *schema.Notification) map[string]interface{} {
	return map[string]interface{}{
		"type":       string(n.Type),
		"priority":   string(n.Priority),
		"source":     n.Source,
		"target":     n.Target,
		"data":       n.Data,
		"metadata":   n.Metadata,
		"expires_at": n.ExpiresAt,
	}
}

// RecentHandlerIDs returns registered handler ids, sorted, for
// diagnostics and tests.
func (p *Protocol) RecentHandlerIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.handlers))
	for _, h := range p.handlers {
		ids = append(ids, h.id)
	}
	sort.Strings(ids)
	return ids
}
