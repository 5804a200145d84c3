package endtask

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/taskmesh/pkg/notification"
	"github.com/corewire/taskmesh/pkg/schema"
	"github.com/corewire/taskmesh/pkg/store"
	"github.com/corewire/taskmesh/pkg/webhook"
)

func newTestManager(t *testing.T, webhookURL string) (*Manager, store.EventStore) {
	t.Helper()
	es := store.NewMemoryStore()
	protocol := notification.NewProtocol(notification.DefaultConfig(), es)

	registry := webhook.NewRegistry()
	if webhookURL != "" {
		registry.Register(webhookURL, "", []string{"all"})
	}
	wm := webhook.NewManager(webhook.DefaultConfig(), registry, es)
	t.Cleanup(wm.Close)

	return NewManager(es, wm, protocol, nil), es
}

func TestEndTaskSuccessPersistsAndNotifies(t *testing.T) {
	m, es := newTestManager(t, "")

	event := &schema.AgentEndTask{
		TaskID:           "task-1",
		AgentID:          "agent-1",
		Reason:           schema.ReasonSuccess,
		ExecutionSummary: "completed without issues",
		CleanupActions:   []string{"close_connections"},
	}

	report, err := m.EndTask(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "task-1", report.TaskID)
	assert.True(t, report.CleanupResult.CleanupSuccessful)
	assert.True(t, report.NotificationHandled)
	assert.Contains(t, report.CleanupResult.ActionsExecuted, "close_connections")

	records, err := es.Query(context.Background(), store.KindAgentEndTask, store.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "processed", records[0].Status)
}

func TestEndTaskRecordsFailedCleanupActions(t *testing.T) {
	m, _ := newTestManager(t, "")

	event := &schema.AgentEndTask{
		TaskID:           "task-blank-action",
		AgentID:          "agent-1",
		Reason:           schema.ReasonSuccess,
		ExecutionSummary: "completed with a malformed cleanup entry",
		CleanupActions:   []string{"close_connections", "  "},
	}

	report, err := m.EndTask(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, report.CleanupResult.CleanupSuccessful)
	assert.Contains(t, report.CleanupResult.ActionsExecuted, "close_connections")
	require.Len(t, report.CleanupResult.ActionsFailed, 1)
	assert.Equal(t, "  ", report.CleanupResult.ActionsFailed[0]["action"])
}

func TestEndTaskRejectsInvalidEvent(t *testing.T) {
	m, _ := newTestManager(t, "")
	_, err := m.EndTask(context.Background(), &schema.AgentEndTask{})
	require.Error(t, err)
}

func TestEndTaskRunsTypeKeyedCleanupHandler(t *testing.T) {
	m, _ := newTestManager(t, "")

	var gotTaskID string
	m.RegisterCleanupHandler("deployment", func(ctx context.Context, event *schema.AgentEndTask) (map[string]interface{}, error) {
		gotTaskID = event.TaskID
		return map[string]interface{}{"rolled_back": true}, nil
	})

	event := &schema.AgentEndTask{
		TaskID:           "task-2",
		AgentID:          "agent-1",
		Reason:           schema.ReasonFailure,
		ExecutionSummary: "deploy failed",
		Metadata:         map[string]interface{}{"task_type": "deployment"},
	}

	report, err := m.EndTask(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "task-2", gotTaskID)
	assert.Equal(t, true, report.CleanupResult.HandlerResult["rolled_back"])
}

func TestEndTaskIsolatesCleanupHandlerFailure(t *testing.T) {
	m, _ := newTestManager(t, "")

	m.RegisterCleanupHandler("general", func(ctx context.Context, event *schema.AgentEndTask) (map[string]interface{}, error) {
		return nil, errors.New("handler exploded")
	})

	event := &schema.AgentEndTask{
		TaskID:           "task-3",
		AgentID:          "agent-1",
		Reason:           schema.ReasonFailure,
		ExecutionSummary: "boom",
	}

	report, err := m.EndTask(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, report.CleanupResult.CleanupSuccessful)
	assert.Equal(t, "handler exploded", report.CleanupResult.HandlerError)
}

func TestEndTaskIsolatesCleanupHandlerPanic(t *testing.T) {
	m, _ := newTestManager(t, "")

	m.RegisterCleanupHandler("general", func(ctx context.Context, event *schema.AgentEndTask) (map[string]interface{}, error) {
		panic("unreachable state")
	})

	event := &schema.AgentEndTask{
		TaskID:           "task-4",
		AgentID:          "agent-1",
		Reason:           schema.ReasonTimeout,
		ExecutionSummary: "timed out",
	}

	require.NotPanics(t, func() {
		report, err := m.EndTask(context.Background(), event)
		require.NoError(t, err)
		assert.False(t, report.CleanupResult.CleanupSuccessful)
	})
}

func TestEndTaskRunsReasonKeyedNotificationHandler(t *testing.T) {
	m, _ := newTestManager(t, "")

	var gotReason schema.EndTaskReason
	m.RegisterNotificationHandler(schema.ReasonEscalated, func(ctx context.Context, event *schema.AgentEndTask) error {
		gotReason = event.Reason
		return nil
	})

	event := &schema.AgentEndTask{
		TaskID:           "task-5",
		AgentID:          "agent-1",
		Reason:           schema.ReasonEscalated,
		ExecutionSummary: "needs a human",
	}

	_, err := m.EndTask(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, schema.ReasonEscalated, gotReason)
}

func TestEndTaskFansOutToWebhooks(t *testing.T) {
	received := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case received <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m, _ := newTestManager(t, server.URL)

	event := &schema.AgentEndTask{
		TaskID:           "task-6",
		AgentID:          "agent-1",
		Reason:           schema.ReasonSuccess,
		ExecutionSummary: "done",
	}
	_, err := m.EndTask(context.Background(), event)
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("webhook was not delivered")
	}
}
