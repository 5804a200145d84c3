// Package endtask implements the Agent End-Task Manager (spec §4.9):
// the 5-step flow an agent drives through when it finishes a task —
// persist, run cleanup, notify, and fan the outcome out to
// task_lifecycle subscribers.
package endtask

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/pkg/notification"
	"github.com/corewire/taskmesh/pkg/schema"
	"github.com/corewire/taskmesh/pkg/store"
	"github.com/corewire/taskmesh/pkg/webhook"
)

// CleanupHandler runs task-type-specific teardown after the generic
// cleanup_actions have been executed. A returned error is recorded but
// never aborts the rest of the flow.
type CleanupHandler func(ctx context.Context, event *schema.AgentEndTask) (map[string]interface{}, error)

// NotificationHandler runs after the standard task_lifecycle
// notification has been sent, keyed by end-task reason.
type NotificationHandler func(ctx context.Context, event *schema.AgentEndTask) error

// CleanupResult mirrors the original system's cleanup_results shape.
type CleanupResult struct {
	ActionsExecuted   []string                 `json:"actions_executed"`
	ActionsFailed     []map[string]interface{} `json:"actions_failed"`
	HandlerResult     map[string]interface{}   `json:"handler_result,omitempty"`
	HandlerError      string                   `json:"handler_error,omitempty"`
	CleanupSuccessful bool                     `json:"cleanup_successful"`
}

// Report is what EndTask returns: the outcome of persistence, cleanup,
// and notification, regardless of whether any individual step failed.
type Report struct {
	TaskID              string        `json:"task_id"`
	Reason              schema.EndTaskReason `json:"reason"`
	CleanupResult       CleanupResult `json:"cleanup_result"`
	NotificationHandled bool          `json:"notification_handled"`
	Timestamp           time.Time     `json:"timestamp"`
}

// Manager wires the Event Store, Webhook Manager, and Notification
// Protocol together behind the EndTask flow.
type Manager struct {
	store        store.EventStore
	webhooks     *webhook.Manager
	notifications *notification.Protocol
	logger       corekit.Logger

	mu                   sync.RWMutex
	cleanupHandlers      map[string]CleanupHandler
	notificationHandlers map[schema.EndTaskReason]NotificationHandler
}

func NewManager(es store.EventStore, webhooks *webhook.Manager, notifications *notification.Protocol, logger corekit.Logger) *Manager {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	return &Manager{
		store:                es,
		webhooks:             webhooks,
		notifications:        notifications,
		logger:               corekit.WithComponent(logger, "endtask.manager"),
		cleanupHandlers:      make(map[string]CleanupHandler),
		notificationHandlers: make(map[schema.EndTaskReason]NotificationHandler),
	}
}

// RegisterCleanupHandler installs a handler keyed by task type
// (event.Metadata["task_type"], defaulting to "general").
func (m *Manager) RegisterCleanupHandler(taskType string, handler CleanupHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupHandlers[taskType] = handler
}

// RegisterNotificationHandler installs a handler keyed by end-task reason.
func (m *Manager) RegisterNotificationHandler(reason schema.EndTaskReason, handler NotificationHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notificationHandlers[reason] = handler
}

// EndTask runs the 5-step flow: persist the (unprocessed)
// AgentEndTaskEvent, run cleanup_actions plus any type-keyed cleanup
// handler (errors isolated per action/handler, never aborting), build
// and fan out the task_lifecycle notification, then mark processed.
func (m *Manager) EndTask(ctx context.Context, event *schema.AgentEndTask) (*Report, error) {
	if err := schema.Validate(event, schema.KindAgentEndTask); err != nil {
		return nil, err
	}

	recordID, err := m.persist(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("endtask: persist: %w", err)
	}

	cleanup := m.executeCleanup(ctx, event)

	notified := m.sendNotifications(ctx, event)

	if recordID != "" {
		_ = m.store.UpdateStatus(ctx, store.KindAgentEndTask, recordID, "", "processed", map[string]interface{}{
			"cleanup_successful": cleanup.CleanupSuccessful,
			"notification_sent":  notified,
		})
	}

	m.logger.InfoWithContext(ctx, "task ended", map[string]interface{}{
		"task_id": event.TaskID, "agent_id": event.AgentID, "reason": string(event.Reason),
	})

	return &Report{
		TaskID:              event.TaskID,
		Reason:              event.Reason,
		CleanupResult:       cleanup,
		NotificationHandled: notified,
		Timestamp:           time.Now().UTC(),
	}, nil
}

func (m *Manager) persist(ctx context.Context, event *schema.AgentEndTask) (string, error) {
	return m.store.Append(ctx, store.KindAgentEndTask, &store.Record{
		Status: "received",
		Data: map[string]interface{}{
			"task_id":           event.TaskID,
			"agent_id":          event.AgentID,
			"reason":            string(event.Reason),
			"execution_summary": event.ExecutionSummary,
			"cleanup_actions":   event.CleanupActions,
			"next_steps":        event.NextSteps,
			"metadata":          event.Metadata,
		},
	})
}

func (m *Manager) executeCleanup(ctx context.Context, event *schema.AgentEndTask) CleanupResult {
	result := CleanupResult{
		ActionsExecuted:   []string{},
		ActionsFailed:     []map[string]interface{}{},
		CleanupSuccessful: true,
	}

	for _, action := range event.CleanupActions {
		if strings.TrimSpace(action) == "" {
			result.ActionsFailed = append(result.ActionsFailed, map[string]interface{}{
				"action": action,
				"error":  "empty cleanup action name",
			})
			result.CleanupSuccessful = false
			continue
		}
		result.ActionsExecuted = append(result.ActionsExecuted, action)
	}

	taskType := "general"
	if event.Metadata != nil {
		if tt, ok := event.Metadata["task_type"].(string); ok && tt != "" {
			taskType = tt
		}
	}

	m.mu.RLock()
	handler, ok := m.cleanupHandlers[taskType]
	m.mu.RUnlock()
	if !ok {
		return result
	}

	handlerResult, err := m.runCleanupHandler(ctx, handler, event)
	if err != nil {
		result.HandlerError = err.Error()
		result.CleanupSuccessful = false
		m.logger.ErrorWithContext(ctx, "cleanup handler failed", map[string]interface{}{
			"task_type": taskType, "task_id": event.TaskID, "error": err.Error(),
		})
		return result
	}
	result.HandlerResult = handlerResult
	return result
}

// runCleanupHandler isolates a handler's panic or error from the rest
// of the flow.
func (m *Manager) runCleanupHandler(ctx context.Context, handler CleanupHandler, event *schema.AgentEndTask) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup handler panicked: %v", r)
		}
	}()
	return handler(ctx, event)
}

func (m *Manager) sendNotifications(ctx context.Context, event *schema.AgentEndTask) bool {
	data := map[string]interface{}{
		"task_id":           event.TaskID,
		"completion_reason": string(event.Reason),
		"cleanup_actions":   event.CleanupActions,
		"next_steps":        event.NextSteps,
	}

	notifyType := schema.NotifyTaskCompleted
	priority := schema.NotificationPriorityMedium
	if event.Reason == schema.ReasonSuccess {
		data["result"] = event.ExecutionSummary
		data["execution_summary"] = event.ExecutionSummary
	} else {
		notifyType = schema.NotifyTaskFailed
		priority = schema.NotificationPriorityHigh
		data["error_type"] = string(event.Reason)
		data["error_message"] = event.ExecutionSummary
	}

	payload := &schema.Notification{
		Type:     notifyType,
		Priority: priority,
		Source:   event.AgentID,
		Data:     data,
		Metadata: event.Metadata,
	}

	handled := false
	if m.notifications != nil {
		if _, err := m.notifications.Accept(ctx, payload); err != nil {
			m.logger.WarnWithContext(ctx, "task_lifecycle notification rejected", map[string]interface{}{
				"task_id": event.TaskID, "error": err.Error(),
			})
		} else {
			handled = true
		}
	}

	if m.webhooks != nil {
		webhookPayload := map[string]interface{}{
			"task_id":  event.TaskID,
			"agent_id": event.AgentID,
			"reason":   string(event.Reason),
			"summary":  event.ExecutionSummary,
			"next_actions": map[string]interface{}{
				"cleanup_required":           len(event.CleanupActions) > 0,
				"follow_up_tasks":            event.NextSteps,
				"escalation_needed":          event.Reason == schema.ReasonEscalated,
				"user_notification_required": event.Reason == schema.ReasonFailure || event.Reason == schema.ReasonEscalated,
			},
		}
		if err := m.webhooks.Send(ctx, "task_lifecycle", webhookPayload); err != nil {
			m.logger.WarnWithContext(ctx, "task_lifecycle webhook fan-out failed", map[string]interface{}{
				"task_id": event.TaskID, "error": err.Error(),
			})
		}
	}

	m.mu.RLock()
	handler, ok := m.notificationHandlers[event.Reason]
	m.mu.RUnlock()
	if ok {
		if err := m.runNotificationHandler(ctx, handler, event); err != nil {
			m.logger.WarnWithContext(ctx, "reason-specific notification handler failed", map[string]interface{}{
				"task_id": event.TaskID, "reason": string(event.Reason), "error": err.Error(),
			})
		}
	}

	return handled
}

func (m *Manager) runNotificationHandler(ctx context.Context, handler NotificationHandler, event *schema.AgentEndTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notification handler panicked: %v", r)
		}
	}()
	return handler(ctx, event)
}
