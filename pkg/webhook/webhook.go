// Package webhook implements the Webhook Manager (spec §4.5): ingress,
// N delivery workers, a retry scheduler with exponential backoff and
// jitter, and a periodic metrics aggregator, all cooperating over a
// registry of subscriber webhooks.
package webhook

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Webhook is a registered delivery target. The delivery counters are
// terminal-outcome counts (one increment per delivery chain, on
// success or dead-letter — not per attempt), reconcilable against the
// persisted DeliveryAttempt records.
type Webhook struct {
	ID                   string
	URL                  string
	Secret               string
	EventTypes           []string // "all" matches every event type
	Active               bool
	TotalDeliveries      int64
	SuccessfulDeliveries int64
	FailedDeliveries     int64
	LastDeliveryAt       time.Time
	CreatedAt            time.Time
}

func (w *Webhook) matches(eventType string) bool {
	for _, et := range w.EventTypes {
		if et == "all" || et == eventType {
			return true
		}
	}
	return false
}

// Registry tracks registered webhooks by id.
type Registry struct {
	mu       sync.RWMutex
	webhooks map[string]*Webhook
}

func NewRegistry() *Registry {
	return &Registry{webhooks: make(map[string]*Webhook)}
}

// Register creates a webhook subscription and returns its id.
func (r *Registry) Register(url, secret string, eventTypes []string) *Webhook {
	w := &Webhook{
		ID:         uuid.New().String(),
		URL:        url,
		Secret:     secret,
		EventTypes: eventTypes,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	r.mu.Lock()
	r.webhooks[w.ID] = w
	r.mu.Unlock()
	return w
}

func (r *Registry) Get(id string) (*Webhook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.webhooks[id]
	return w, ok
}

// Unregister removes a webhook subscription.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.webhooks[id]; !ok {
		return false
	}
	delete(r.webhooks, id)
	return true
}

// Deactivate disables a webhook in place, e.g. after a 410 Gone response.
func (r *Registry) Deactivate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.webhooks[id]; ok {
		w.Active = false
	}
}

// recordDelivery records one terminal delivery-chain outcome (success
// or dead-letter, never a mid-chain retry) against id's counters.
func (r *Registry) recordDelivery(id string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.webhooks[id]
	if !ok {
		return
	}
	w.TotalDeliveries++
	if success {
		w.SuccessfulDeliveries++
	} else {
		w.FailedDeliveries++
	}
	w.LastDeliveryAt = time.Now().UTC()
}

// ByEventType returns every active webhook matching eventType, plus
// optionally narrowed to a target-id set when targetIDs is non-empty.
func (r *Registry) ByEventType(eventType string, targetIDs []string) []*Webhook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var targetSet map[string]struct{}
	if len(targetIDs) > 0 {
		targetSet = make(map[string]struct{}, len(targetIDs))
		for _, id := range targetIDs {
			targetSet[id] = struct{}{}
		}
	}

	var matched []*Webhook
	for _, w := range r.webhooks {
		if !w.Active || !w.matches(eventType) {
			continue
		}
		if targetSet != nil {
			if _, ok := targetSet[w.ID]; !ok {
				continue
			}
		}
		matched = append(matched, w)
	}
	return matched
}

func (r *Registry) All() []*Webhook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Webhook, 0, len(r.webhooks))
	for _, w := range r.webhooks {
		all = append(all, w)
	}
	return all
}
