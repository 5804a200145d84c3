package taskapi

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/pkg/notification"
	"github.com/corewire/taskmesh/pkg/schema"
	"github.com/corewire/taskmesh/pkg/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	es := store.NewMemoryStore()
	protocol := notification.NewProtocol(notification.DefaultConfig(), es)
	return NewManager(es, protocol, nil)
}

var taskSeq int

func validTask() *schema.TaskExecution {
	taskSeq++
	return &schema.TaskExecution{
		TaskID:      fmt.Sprintf("task-%d", taskSeq),
		TaskType:    schema.TaskTypeCodeGeneration,
		Description: "generate a parser",
		Priority:    schema.PriorityNormal,
		OrchestratorInfo: schema.OrchestratorInfo{
			AgentID:   "orchestrator-1",
			Timestamp: "2026-01-01T00:00:00Z",
		},
	}
}

func TestSubmitPersistsAndReturnsPendingStatus(t *testing.T) {
	m := newTestManager(t)
	task, err := m.Submit(context.Background(), validTask())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
	assert.NotEmpty(t, task.ID)
}

func TestSubmitRejectsInvalidTask(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Submit(context.Background(), &schema.TaskExecution{})
	require.Error(t, err)
}

func TestStatusReturnsNotFoundForUnknownTask(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Status(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, corekit.ErrNotFound))
}

func TestStatusRoundTripsSubmittedTask(t *testing.T) {
	m := newTestManager(t)
	submitted, err := m.Submit(context.Background(), validTask())
	require.NoError(t, err)

	fetched, err := m.Status(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, submitted.ID, fetched.ID)
	assert.Equal(t, StatusPending, fetched.Status)
	assert.Equal(t, string(schema.TaskTypeCodeGeneration), fetched.TaskType)
}

func TestCancelMarksNonTerminalTaskCancelled(t *testing.T) {
	m := newTestManager(t)
	submitted, err := m.Submit(context.Background(), validTask())
	require.NoError(t, err)

	cancelled, err := m.Cancel(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	fetched, err := m.Status(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, fetched.Status)
}

func TestSubmitBatchSubmitsEveryTaskIndependently(t *testing.T) {
	m := newTestManager(t)
	batch := &schema.TaskBatch{Tasks: []schema.TaskExecution{*validTask(), *validTask()}}
	tasks, errs := m.SubmitBatch(context.Background(), batch)
	require.Len(t, tasks, 2)
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.NotEqual(t, tasks[0].ID, tasks[1].ID)
}
