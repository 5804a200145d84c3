// Package audit implements the Audit Logger (spec §4.3): a bounded
// async buffer that never blocks callers, draining to pluggable sinks,
// with query/search/summary/export views over the underlying event
// store.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/pkg/store"
)

// Level is the closed set of AuditEvent severities.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

func (l Level) atLeastError() bool { return l == LevelError || l == LevelCritical }

// Event mirrors the Data Model's AuditEvent entity.
type Event struct {
	EventID     string                 `json:"event_id"`
	Timestamp   time.Time              `json:"timestamp"`
	EventType   string                 `json:"event_type"`
	Level       Level                  `json:"level"`
	UserID      string                 `json:"user_id,omitempty"`
	ActionName  string                 `json:"action_name,omitempty"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Sink receives drained events. A sink that cannot accept an event
// should return an error; the Logger treats that as SinkUnavailable.
type Sink interface {
	Write(ctx context.Context, event *Event) error
}

// Config tunes buffer capacity and the critical-event deadline.
type Config struct {
	BufferSize       int
	CriticalDeadline time.Duration
	Logger           corekit.Logger
}

// DefaultConfig matches spec §4.3's description: a modest in-memory
// buffer, 5s deadline for a blocking critical write.
func DefaultConfig() Config {
	return Config{BufferSize: 1000, CriticalDeadline: 5 * time.Second, Logger: corekit.NoOpLogger{}}
}

// Logger is the async, non-blocking audit writer. It owns a bounded
// channel drained by a background goroutine into Sinks; overflow drops
// the oldest non-critical event, while critical (>= error) events block
// the caller up to CriticalDeadline before surfacing SinkUnavailable.
type Logger struct {
	cfg    Config
	sinks  []Sink
	buffer chan *Event
	logger corekit.Logger

	closed chan struct{}
	wg     sync.WaitGroup
}

// NewLogger starts the drain goroutine immediately; call Close to stop it.
func NewLogger(cfg Config, sinks ...Sink) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.CriticalDeadline <= 0 {
		cfg.CriticalDeadline = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = corekit.NoOpLogger{}
	}
	l := &Logger{
		cfg:    cfg,
		sinks:  sinks,
		buffer: make(chan *Event, cfg.BufferSize),
		logger: corekit.WithComponent(cfg.Logger, "audit.logger"),
		closed: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

func (l *Logger) drain() {
	defer l.wg.Done()
	for {
		select {
		case evt, ok := <-l.buffer:
			if !ok {
				return
			}
			l.writeToSinks(evt)
		case <-l.closed:
			for {
				select {
				case evt, ok := <-l.buffer:
					if !ok {
						return
					}
					l.writeToSinks(evt)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) writeToSinks(evt *Event) {
	for _, sink := range l.sinks {
		if err := sink.Write(context.Background(), evt); err != nil {
			l.logger.Error("audit sink write failed", map[string]interface{}{
				"event_id": evt.EventID, "error": err.Error(),
			})
		}
	}
}

// Log enqueues an audit event, returning its assigned id. Non-critical
// events that can't fit in the buffer evict the oldest queued event to
// make room; critical (>= error) events instead block the caller up to
// CriticalDeadline, surfacing ErrSinkUnavailable if the buffer never
// drains in time.
func (l *Logger) Log(ctx context.Context, eventType string, level Level, data map[string]interface{}, userID, actionName, executionID string) (string, error) {
	evt := &Event{
		EventID:     newEventID(),
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		Level:       level,
		UserID:      userID,
		ActionName:  actionName,
		ExecutionID: executionID,
		Data:        data,
	}

	if level.atLeastError() {
		select {
		case l.buffer <- evt:
			return evt.EventID, nil
		case <-time.After(l.cfg.CriticalDeadline):
			return "", fmt.Errorf("audit: %w: buffer full past deadline for critical event", corekit.ErrSinkUnavailable)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	select {
	case l.buffer <- evt:
		return evt.EventID, nil
	default:
	}

	// Buffer is full: evict the oldest queued event to make room for
	// this one, rather than dropping the event that just arrived.
	select {
	case dropped := <-l.buffer:
		l.logger.Warn("audit buffer full, dropping oldest event", map[string]interface{}{
			"dropped_event_id": dropped.EventID, "event_type": eventType,
		})
	default:
	}

	select {
	case l.buffer <- evt:
	default:
		l.logger.Warn("audit buffer contended, dropping event", map[string]interface{}{"event_type": eventType})
	}
	return evt.EventID, nil
}

// Close stops the drain loop after flushing whatever is already queued.
func (l *Logger) Close() error {
	close(l.closed)
	l.wg.Wait()
	return nil
}

var seq uint64
var seqMu sync.Mutex

func newEventID() string {
	seqMu.Lock()
	defer seqMu.Unlock()
	seq++
	return fmt.Sprintf("audit-%d-%d", time.Now().UnixNano(), seq)
}

// EventStoreSink writes events through the shared EventStore, giving
// query/search/summary/export a durable home.
type EventStoreSink struct {
	Store store.EventStore
}

func (s *EventStoreSink) Write(ctx context.Context, event *Event) error {
	_, err := s.Store.Append(ctx, store.KindAuditEvent, &store.Record{
		Status: string(event.Level),
		Data: map[string]interface{}{
			"event_type":   event.EventType,
			"level":        string(event.Level),
			"user_id":      event.UserID,
			"action_name":  event.ActionName,
			"execution_id": event.ExecutionID,
			"data":         event.Data,
			"timestamp":    event.Timestamp,
		},
	})
	return err
}
