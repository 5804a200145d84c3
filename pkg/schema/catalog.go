package schema

// Descriptors returns a JSON-Schema-flavored description of every
// known PayloadKind, keyed by its string value — the shape behind
// GET /schemas. These are hand-maintained alongside the validators in
// validate.go rather than derived from them; keep the two in sync.
func Descriptors() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		string(KindTaskExecution):       taskExecutionDescriptor,
		string(KindTaskBatch):           taskBatchDescriptor,
		string(KindNotification):        notificationDescriptor,
		string(KindWebhookRegistration): webhookRegistrationDescriptor,
		string(KindStatusRequest):       statusRequestDescriptor,
		string(KindAgentEndTask):        agentEndTaskDescriptor,
	}
}

// Descriptor returns the descriptor for a single payload_type path
// segment, or false if the kind is unknown.
func Descriptor(payloadType string) (map[string]interface{}, bool) {
	d, ok := Descriptors()[payloadType]
	return d, ok
}

var taskExecutionDescriptor = map[string]interface{}{
	"title":       "Task Execution Request",
	"description": "Submitted by an orchestrator to dispatch work to an executor agent",
	"type":        "object",
	"required":    []string{"task_id", "task_type", "description", "priority", "orchestrator_info"},
	"properties": map[string]interface{}{
		"task_id":           map[string]interface{}{"type": "string", "pattern": "^[A-Za-z0-9_-]{1,100}$"},
		"task_type":         map[string]interface{}{"type": "string", "enum": taskTypes()},
		"description":       map[string]interface{}{"type": "string", "minLength": 10, "maxLength": 10000},
		"priority":          map[string]interface{}{"type": "string", "enum": priorities()},
		"orchestrator_info": map[string]interface{}{"type": "object", "required": []string{"agent_id", "timestamp"}},
		"metadata":          map[string]interface{}{"type": "object"},
	},
}

var taskBatchDescriptor = map[string]interface{}{
	"title":       "Task Batch Request",
	"description": "A bounded batch of Task Execution Requests submitted together",
	"type":        "object",
	"required":    []string{"tasks"},
	"properties": map[string]interface{}{
		"tasks": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"maxItems": 100,
			"items":    taskExecutionDescriptor,
		},
	},
}

var notificationDescriptor = map[string]interface{}{
	"title":       "Notification",
	"description": "Delivered over POST /notifications and the inbound WebSocket",
	"type":        "object",
	"required":    []string{"type", "priority", "source", "data"},
	"properties": map[string]interface{}{
		"type":       map[string]interface{}{"type": "string", "enum": []string{string(NotifyTaskStarted), string(NotifyTaskProgress), string(NotifyTaskCompleted), string(NotifyTaskFailed)}},
		"priority":   map[string]interface{}{"type": "string", "enum": notificationPriorities()},
		"source":     map[string]interface{}{"type": "string"},
		"target":     map[string]interface{}{"type": "string"},
		"data":       map[string]interface{}{"type": "object"},
		"metadata":   map[string]interface{}{"type": "object"},
		"expires_at": map[string]interface{}{"type": "string", "format": "date-time"},
	},
}

var webhookRegistrationDescriptor = map[string]interface{}{
	"title":       "Webhook Registration",
	"description": "Submitted by POST /webhooks to subscribe a URL to event types",
	"type":        "object",
	"required":    []string{"url", "event_types"},
	"properties": map[string]interface{}{
		"url":         map[string]interface{}{"type": "string", "format": "uri"},
		"secret":      map[string]interface{}{"type": "string"},
		"event_types": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "minItems": 1},
		"active":      map[string]interface{}{"type": "boolean"},
	},
}

var statusRequestDescriptor = map[string]interface{}{
	"title":       "Task Status Request",
	"description": "Derived from the task_id path segment of GET /tasks/{task_id}/status",
	"type":        "object",
	"required":    []string{"task_id"},
	"properties": map[string]interface{}{
		"task_id": map[string]interface{}{"type": "string", "pattern": "^[A-Za-z0-9_-]{1,100}$"},
	},
}

var agentEndTaskDescriptor = map[string]interface{}{
	"title":       "Agent End-Task Event",
	"description": "Submitted by POST /agent/end-task when an agent finishes a dispatched task",
	"type":        "object",
	"required":    []string{"task_id", "agent_id", "reason", "execution_summary"},
	"properties": map[string]interface{}{
		"task_id":           map[string]interface{}{"type": "string"},
		"agent_id":          map[string]interface{}{"type": "string"},
		"reason":            map[string]interface{}{"type": "string", "enum": endTaskReasons()},
		"execution_summary": map[string]interface{}{"type": "string"},
		"cleanup_actions":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"next_steps":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"metadata":          map[string]interface{}{"type": "object"},
	},
}

func taskTypes() []string {
	return []string{
		string(TaskTypeCodeGeneration), string(TaskTypeCodeDebugging), string(TaskTypeDataAnalysis),
		string(TaskTypeDocumentation), string(TaskTypeTesting), string(TaskTypeDeployment),
		string(TaskTypeConfiguration), string(TaskTypeMonitoring), string(TaskTypeResearch), string(TaskTypeGeneral),
	}
}

func priorities() []string {
	return []string{string(PriorityLow), string(PriorityNormal), string(PriorityHigh), string(PriorityCritical)}
}

func notificationPriorities() []string {
	return []string{
		string(NotificationPriorityLow), string(NotificationPriorityMedium),
		string(NotificationPriorityHigh), string(NotificationPriorityCritical),
	}
}

func endTaskReasons() []string {
	return []string{
		string(ReasonSuccess), string(ReasonFailure), string(ReasonTimeout),
		string(ReasonCancelled), string(ReasonEscalated), string(ReasonResourceExhausted),
	}
}
