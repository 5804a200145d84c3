// Package store implements the Event Store (spec §4.2): the single
// component that owns persistence of notifications, delivery attempts,
// agent end-task events, audit events, and approvals. Every other
// component holds transient views only.
package store

import (
	"context"
	"time"
)

// Kind names one of the record families the store persists.
type Kind string

const (
	KindNotification    Kind = "notification"
	KindDeliveryAttempt Kind = "delivery_attempt"
	KindWebhook         Kind = "webhook"
	KindAgentEndTask    Kind = "agent_end_task"
	KindAuditEvent      Kind = "audit_event"
	KindApproval        Kind = "approval"
	KindTaskExecution   Kind = "task_execution"
)

// Record is the store's envelope around every persisted entity. Data
// carries the kind-specific fields as a JSON-friendly map so the store
// itself stays free of domain types.
type Record struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	Status    string                 `json:"status,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Data      map[string]interface{} `json:"data"`
}

// Filter narrows Query results. Zero-valued fields are unconstrained.
type Filter struct {
	Since     time.Time
	Until     time.Time
	UserID    string
	ActionName string
	Level     string
}

func (f Filter) matches(r Record) bool {
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.CreatedAt.After(f.Until) {
		return false
	}
	if f.UserID != "" && asString(r.Data["user_id"]) != f.UserID {
		return false
	}
	if f.ActionName != "" && asString(r.Data["action_name"]) != f.ActionName {
		return false
	}
	if f.Level != "" && asString(r.Data["level"]) != f.Level {
		return false
	}
	return true
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// CASError is returned by UpdateStatus when expectedStatus does not
// match the record's current status, so a caller doing a
// compare-and-set transition can detect a concurrent change.
type CASError struct {
	ID       string
	Expected string
	Actual   string
}

func (e *CASError) Error() string {
	return "store: compare-and-set failed for " + e.ID + ": expected status " + e.Expected + ", got " + e.Actual
}

// EventStore is the abstract contract consumed by every other
// component (spec §4.2). Implementations must make Append durable
// before it returns and must serialize concurrent writers to the same
// record id.
type EventStore interface {
	// Append persists record under kind, assigning and returning a
	// monotonic id (overwriting any id record already carries).
	Append(ctx context.Context, kind Kind, record *Record) (string, error)

	// Get returns the latest version of the record, or nil if absent.
	Get(ctx context.Context, kind Kind, id string) (*Record, error)

	// UpdateStatus sets status and merges fields into Data. If
	// expectedStatus is non-empty, the update only applies when the
	// record's current status equals expectedStatus (compare-and-set);
	// otherwise it is last-writer-wins.
	UpdateStatus(ctx context.Context, kind Kind, id, expectedStatus, newStatus string, fields map[string]interface{}) error

	// Query returns records of kind matching filter, newest-first,
	// bounded by limit (0 means unbounded).
	Query(ctx context.Context, kind Kind, filter Filter, limit int) ([]*Record, error)

	// Scan returns all records of kind with an id greater than sinceID,
	// in id order, for reconciliation sweeps.
	Scan(ctx context.Context, kind Kind, sinceID string) ([]*Record, error)

	// Close releases any underlying connection.
	Close() error
}
