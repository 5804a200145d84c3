// Package taskapi tracks the task dispatch half of the Orchestrator ↔
// Executor messaging substrate: POST /tasks, POST /tasks/batch, and
// GET /tasks/{id}/status (spec §6). A submitted TaskExecution is the
// orchestrator handing work to an executor agent that lives outside
// this system; taskapi's job is only to validate, persist, track
// status, and announce the task's lifecycle over the Notification
// Protocol — not to run the task itself.
package taskapi

import (
	"context"
	"fmt"
	"time"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/pkg/notification"
	"github.com/corewire/taskmesh/pkg/schema"
	"github.com/corewire/taskmesh/pkg/store"
)

// Status is the closed set of tracked task states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is the tracked view of a submitted TaskExecution.
type Task struct {
	ID          string    `json:"task_id"`
	TaskType    string    `json:"task_type"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Manager persists and tracks TaskExecution submissions.
type Manager struct {
	store         store.EventStore
	notifications *notification.Protocol
	logger        corekit.Logger
}

func NewManager(es store.EventStore, notifications *notification.Protocol, logger corekit.Logger) *Manager {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	return &Manager{store: es, notifications: notifications, logger: corekit.WithComponent(logger, "taskapi.manager")}
}

// Submit validates and persists a single TaskExecution, then announces
// it over the Notification Protocol. The orchestrator_info.agent_id
// becomes the task's owning user for permission purposes elsewhere in
// the call chain (the HTTP layer, not this package, enforces that).
func (m *Manager) Submit(ctx context.Context, task *schema.TaskExecution) (*Task, error) {
	if err := schema.Validate(task, schema.KindTaskExecution); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id, err := m.store.Append(ctx, store.KindTaskExecution, &store.Record{
		Status: string(StatusPending),
		Data: map[string]interface{}{
			"task_id":     task.TaskID,
			"task_type":   string(task.TaskType),
			"description": task.Description,
			"priority":    string(task.Priority),
			"agent_id":    task.OrchestratorInfo.AgentID,
			"metadata":    task.Metadata,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("taskapi: persist: %w", err)
	}

	if m.notifications != nil {
		payload := &schema.Notification{
			Type:     schema.NotifyTaskStarted,
			Priority: priorityFrom(task.Priority),
			Source:   task.OrchestratorInfo.AgentID,
			Data: map[string]interface{}{
				"task_id":   id,
				"task_type": string(task.TaskType),
			},
		}
		if _, err := m.notifications.Accept(ctx, payload); err != nil {
			m.logger.WarnWithContext(ctx, "task_started notification rejected", map[string]interface{}{"task_id": id, "error": err.Error()})
		}
	}

	return &Task{ID: id, TaskType: string(task.TaskType), Status: StatusPending, Description: task.Description, CreatedAt: now, UpdatedAt: now}, nil
}

// SubmitBatch validates the batch as a whole first (size 1-100, every
// task schema-valid) and rejects it wholesale on any violation. Once
// the batch passes, each task is submitted independently: a failure
// persisting one task (e.g. a store error) does not block the others.
func (m *Manager) SubmitBatch(ctx context.Context, batch *schema.TaskBatch) ([]*Task, []error) {
	if err := schema.Validate(batch, schema.KindTaskBatch); err != nil {
		return nil, []error{err}
	}

	tasks := make([]*Task, len(batch.Tasks))
	errs := make([]error, len(batch.Tasks))
	for i := range batch.Tasks {
		t, err := m.Submit(ctx, &batch.Tasks[i])
		tasks[i] = t
		errs[i] = err
	}
	return tasks, errs
}

// Status looks up a tracked task by id, or corekit.ErrNotFound.
func (m *Manager) Status(ctx context.Context, taskID string) (*Task, error) {
	rec, err := m.store.Get(ctx, store.KindTaskExecution, taskID)
	if err != nil {
		return nil, fmt.Errorf("taskapi: status: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("taskapi: %w: task %s", corekit.ErrNotFound, taskID)
	}
	return recordToTask(rec), nil
}

// Cancel marks a non-terminal task cancelled.
func (m *Manager) Cancel(ctx context.Context, taskID string) (*Task, error) {
	current, err := m.Status(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if current.Status.terminal() {
		return current, nil
	}
	if err := m.store.UpdateStatus(ctx, store.KindTaskExecution, taskID, "", string(StatusCancelled), nil); err != nil {
		return nil, fmt.Errorf("taskapi: cancel: %w", err)
	}
	current.Status = StatusCancelled
	current.UpdatedAt = time.Now().UTC()
	return current, nil
}

func recordToTask(rec *store.Record) *Task {
	t := &Task{
		ID:        rec.ID,
		Status:    Status(rec.Status),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if v, ok := rec.Data["task_type"].(string); ok {
		t.TaskType = v
	}
	if v, ok := rec.Data["description"].(string); ok {
		t.Description = v
	}
	if v, ok := rec.Data["error"].(string); ok {
		t.Error = v
	}
	return t
}

func priorityFrom(p schema.Priority) schema.NotificationPriority {
	switch p {
	case schema.PriorityLow:
		return schema.NotificationPriorityLow
	case schema.PriorityHigh:
		return schema.NotificationPriorityHigh
	case schema.PriorityCritical:
		return schema.NotificationPriorityCritical
	default:
		return schema.NotificationPriorityMedium
	}
}
