package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/taskmesh/pkg/schema"
	"github.com/corewire/taskmesh/pkg/store"
)

func validPayload(typ schema.NotificationType) *schema.Notification {
	data := map[string]interface{}{}
	switch typ {
	case schema.NotifyTaskStarted:
		data["task_type"] = "code_generation"
		data["estimated_duration"] = 30
	case schema.NotifyTaskProgress:
		data["progress_percentage"] = 50
		data["current_step"] = "compiling"
	case schema.NotifyTaskCompleted:
		data["result"] = "ok"
		data["execution_summary"] = "done"
	case schema.NotifyTaskFailed:
		data["error_type"] = "timeout"
		data["error_message"] = "boom"
	}
	return &schema.Notification{
		Type:     typ,
		Priority: schema.NotificationPriorityMedium,
		Source:   "orchestrator",
		Data:     data,
	}
}

func TestAcceptRejectsInvalidPayload(t *testing.T) {
	p := NewProtocol(DefaultConfig(), store.NewMemoryStore())
	_, err := p.Accept(context.Background(), &schema.Notification{Type: schema.NotifyTaskStarted})
	require.Error(t, err)
}

func TestAcceptPersistsAndMarksProcessed(t *testing.T) {
	es := store.NewMemoryStore()
	p := NewProtocol(DefaultConfig(), es)

	evt, err := p.Accept(context.Background(), validPayload(schema.NotifyTaskStarted))
	require.NoError(t, err)
	assert.Equal(t, StateMarkedProcessed, evt.State)
	assert.NotEmpty(t, evt.ID)

	rec, err := es.Get(context.Background(), store.KindNotification, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, string(StateMarkedProcessed), rec.Status)
}

func TestAcceptExpiresBeforeDispatch(t *testing.T) {
	es := store.NewMemoryStore()
	p := NewProtocol(DefaultConfig(), es)

	payload := validPayload(schema.NotifyTaskStarted)
	payload.ExpiresAt = time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	evt, err := p.Accept(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, evt.State)
}

func TestDispatchRunsAllMatchingHandlersAndIsolatesFailures(t *testing.T) {
	es := store.NewMemoryStore()
	p := NewProtocol(DefaultConfig(), es)

	var calledA, calledB bool
	p.RegisterHandler("a", func(evt *Event) bool { return true }, func(ctx context.Context, evt *Event) error {
		calledA = true
		return errors.New("handler a always fails")
	})
	p.RegisterHandler("b", func(evt *Event) bool { return true }, func(ctx context.Context, evt *Event) error {
		calledB = true
		return nil
	})

	evt, err := p.Accept(context.Background(), validPayload(schema.NotifyTaskCompleted))
	require.NoError(t, err)

	assert.True(t, calledA)
	assert.True(t, calledB)
	assert.Equal(t, StateMarkedProcessed, evt.State)
}

func TestDispatchNoHandlerIsNotAnError(t *testing.T) {
	es := store.NewMemoryStore()
	p := NewProtocol(DefaultConfig(), es)

	evt, err := p.Accept(context.Background(), validPayload(schema.NotifyTaskFailed))
	require.NoError(t, err)
	assert.Equal(t, StateMarkedProcessed, evt.State)
}

func TestHandlerPredicateFiltersByType(t *testing.T) {
	es := store.NewMemoryStore()
	p := NewProtocol(DefaultConfig(), es)

	var called bool
	p.RegisterHandler("lifecycle", func(evt *Event) bool {
		return evt.Payload.Type == schema.NotifyTaskCompleted
	}, func(ctx context.Context, evt *Event) error {
		called = true
		return nil
	})

	_, err := p.Accept(context.Background(), validPayload(schema.NotifyTaskStarted))
	require.NoError(t, err)
	assert.False(t, called)

	_, err = p.Accept(context.Background(), validPayload(schema.NotifyTaskCompleted))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	es := store.NewMemoryStore()
	p := NewProtocol(DefaultConfig(), es)

	p.RegisterHandler("panics", func(evt *Event) bool { return true }, func(ctx context.Context, evt *Event) error {
		panic("boom")
	})
	var ran bool
	p.RegisterHandler("after", func(evt *Event) bool { return true }, func(ctx context.Context, evt *Event) error {
		ran = true
		return nil
	})

	evt, err := p.Accept(context.Background(), validPayload(schema.NotifyTaskStarted))
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, StateMarkedProcessed, evt.State)
}

type recordingBroadcaster struct {
	events []*Event
}

func (r *recordingBroadcaster) Broadcast(evt *Event) {
	r.events = append(r.events, evt)
}

func TestBroadcasterReceivesDispatchedEvents(t *testing.T) {
	es := store.NewMemoryStore()
	p := NewProtocol(DefaultConfig(), es)
	b := &recordingBroadcaster{}
	p.SetBroadcaster(b)

	_, err := p.Accept(context.Background(), validPayload(schema.NotifyTaskStarted))
	require.NoError(t, err)

	require.Len(t, b.events, 1)
}
