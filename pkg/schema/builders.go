package schema

import "time"

// BuildTaskExecution constructs a TaskExecution guaranteed to pass
// Validate(payload, KindTaskExecution) given a well-formed taskID.
func BuildTaskExecution(taskID string, taskType TaskType, description string, orchestratorID string, priority Priority, opts ...TaskExecutionOption) *TaskExecution {
	t := &TaskExecution{
		TaskID:      taskID,
		TaskType:    taskType,
		Description: description,
		Priority:    priority,
		OrchestratorInfo: OrchestratorInfo{
			AgentID:   orchestratorID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TaskExecutionOption customizes a TaskExecution built by BuildTaskExecution.
type TaskExecutionOption func(*TaskExecution)

// WithMetadata attaches free-form metadata to a built TaskExecution.
func WithMetadata(metadata map[string]interface{}) TaskExecutionOption {
	return func(t *TaskExecution) { t.Metadata = metadata }
}

// WithTimestamp overrides the orchestrator_info.timestamp, useful for
// deterministic tests and replays.
func WithTimestamp(ts time.Time) TaskExecutionOption {
	return func(t *TaskExecution) { t.OrchestratorInfo.Timestamp = ts.UTC().Format(time.RFC3339) }
}

// BuildTaskBatch wraps 1-100 TaskExecutions into a TaskBatch.
func BuildTaskBatch(tasks ...TaskExecution) *TaskBatch {
	return &TaskBatch{Tasks: tasks}
}

// BuildTaskStartedNotification builds a task_started Notification.
func BuildTaskStartedNotification(source, taskType string, estimatedDuration int) *Notification {
	return &Notification{
		Type:     NotifyTaskStarted,
		Priority: NotificationPriorityMedium,
		Source:   source,
		Data: map[string]interface{}{
			"task_type":          taskType,
			"estimated_duration": estimatedDuration,
		},
	}
}

// BuildTaskProgressNotification builds a task_progress Notification.
func BuildTaskProgressNotification(source string, progressPercentage float64, currentStep string) *Notification {
	return &Notification{
		Type:     NotifyTaskProgress,
		Priority: NotificationPriorityLow,
		Source:   source,
		Data: map[string]interface{}{
			"progress_percentage": progressPercentage,
			"current_step":        currentStep,
		},
	}
}

// BuildTaskCompletedNotification builds a task_completed Notification.
func BuildTaskCompletedNotification(source string, result interface{}, executionSummary string) *Notification {
	return &Notification{
		Type:     NotifyTaskCompleted,
		Priority: NotificationPriorityMedium,
		Source:   source,
		Data: map[string]interface{}{
			"result":            result,
			"execution_summary": executionSummary,
		},
	}
}

// BuildTaskFailedNotification builds a task_failed Notification.
func BuildTaskFailedNotification(source, errorType, errorMessage string) *Notification {
	return &Notification{
		Type:     NotifyTaskFailed,
		Priority: NotificationPriorityHigh,
		Source:   source,
		Data: map[string]interface{}{
			"error_type":    errorType,
			"error_message": errorMessage,
		},
	}
}

// BuildAgentEndTask constructs an AgentEndTask guaranteed to validate.
func BuildAgentEndTask(taskID, agentID string, reason EndTaskReason, executionSummary string, cleanupActions, nextSteps []string) *AgentEndTask {
	return &AgentEndTask{
		TaskID:           taskID,
		AgentID:          agentID,
		Reason:           reason,
		ExecutionSummary: executionSummary,
		CleanupActions:   cleanupActions,
		NextSteps:        nextSteps,
	}
}
