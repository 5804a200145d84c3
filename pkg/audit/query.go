package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/corewire/taskmesh/pkg/store"
)

// Query is the Querier's view over the durable audit trail; it reads
// through the EventStore rather than the in-process buffer, since only
// drained events are guaranteed persisted.
type Query struct {
	Store store.EventStore
}

// NewQuery builds a read-only view over s.
func NewQuery(s store.EventStore) *Query { return &Query{Store: s} }

func recordToEvent(r *store.Record) *Event {
	evt := &Event{
		EventID: r.ID,
		Level:   Level(r.Status),
	}
	if v, ok := r.Data["event_type"].(string); ok {
		evt.EventType = v
	}
	if v, ok := r.Data["user_id"].(string); ok {
		evt.UserID = v
	}
	if v, ok := r.Data["action_name"].(string); ok {
		evt.ActionName = v
	}
	if v, ok := r.Data["execution_id"].(string); ok {
		evt.ExecutionID = v
	}
	if v, ok := r.Data["data"].(map[string]interface{}); ok {
		evt.Data = v
	}
	evt.Timestamp = r.CreatedAt
	return evt
}

// Filter narrows a query; zero values are unconstrained.
type Filter struct {
	Since      time.Time
	Until      time.Time
	UserID     string
	ActionName string
	Level      Level
	Limit      int
}

// Find returns matching events, newest first.
func (q *Query) Find(ctx context.Context, filter Filter) ([]*Event, error) {
	records, err := q.Store.Query(ctx, store.KindAuditEvent, store.Filter{
		Since:      filter.Since,
		Until:      filter.Until,
		UserID:     filter.UserID,
		ActionName: filter.ActionName,
		Level:      string(filter.Level),
	}, filter.Limit)
	if err != nil {
		return nil, err
	}
	events := make([]*Event, 0, len(records))
	for _, r := range records {
		events = append(events, recordToEvent(r))
	}
	return events, nil
}

// Search does a case-insensitive substring match over event_type and
// the JSON-encoded data blob — a pragmatic full-text search given the
// store has no inverted index.
func (q *Query) Search(ctx context.Context, text string) ([]*Event, error) {
	all, err := q.Find(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(text)
	var out []*Event
	for _, e := range all {
		blob, _ := json.Marshal(e.Data)
		if strings.Contains(strings.ToLower(e.EventType), needle) || strings.Contains(strings.ToLower(string(blob)), needle) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Summary is the count-by-level rollup for a time window.
type Summary struct {
	Window time.Duration
	Counts map[Level]int
	Total  int
}

// Summarize counts events by level within the trailing window.
func (q *Query) Summarize(ctx context.Context, window time.Duration) (*Summary, error) {
	events, err := q.Find(ctx, Filter{Since: time.Now().Add(-window)})
	if err != nil {
		return nil, err
	}
	s := &Summary{Window: window, Counts: make(map[Level]int)}
	for _, e := range events {
		s.Counts[e.Level]++
		s.Total++
	}
	return s, nil
}

// ExportFormat is the closed set Export accepts.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// Export serializes matching events as format.
func (q *Query) Export(ctx context.Context, format ExportFormat, filter Filter) ([]byte, error) {
	events, err := q.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportJSON:
		return json.Marshal(events)
	case ExportCSV:
		var buf strings.Builder
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"event_id", "timestamp", "event_type", "level", "user_id", "action_name", "execution_id"})
		for _, e := range events {
			_ = w.Write([]string{
				e.EventID,
				e.Timestamp.Format(time.RFC3339),
				e.EventType,
				string(e.Level),
				e.UserID,
				e.ActionName,
				e.ExecutionID,
			})
		}
		w.Flush()
		return []byte(buf.String()), w.Error()
	default:
		return nil, fmt.Errorf("audit: unknown export format %q", format)
	}
}
