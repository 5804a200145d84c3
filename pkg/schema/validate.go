package schema

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/corewire/taskmesh/internal/corekit"
)

var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// FieldError names the first (lexicographically) offending field a
// validation run found, plus a pointer into the kind's schema for
// client-side highlighting.
type FieldError struct {
	Path           string
	Message        string
	SchemaPointer  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationError wraps corekit.ErrValidation with the offending field.
type ValidationError struct {
	*FieldError
}

func (e *ValidationError) Unwrap() error { return corekit.ErrValidation }

func newFieldError(path, message string) *FieldError {
	return &FieldError{Path: path, Message: message, SchemaPointer: "#/" + path}
}

// Validate checks payload against the schema for kind, returning the
// first offending field (by lexicographic path) or nil if it conforms.
// It is a pure function: no side effects, no I/O.
func Validate(payload interface{}, kind PayloadKind) error {
	var errs []*FieldError

	switch kind {
	case KindTaskExecution:
		t, ok := payload.(*TaskExecution)
		if !ok {
			return wrongType(kind)
		}
		errs = validateTaskExecution(t, "")
	case KindTaskBatch:
		b, ok := payload.(*TaskBatch)
		if !ok {
			return wrongType(kind)
		}
		errs = validateTaskBatch(b)
	case KindNotification:
		n, ok := payload.(*Notification)
		if !ok {
			return wrongType(kind)
		}
		errs = validateNotification(n)
	case KindWebhookRegistration:
		w, ok := payload.(*WebhookRegistration)
		if !ok {
			return wrongType(kind)
		}
		errs = validateWebhookRegistration(w)
	case KindStatusRequest:
		s, ok := payload.(*StatusRequest)
		if !ok {
			return wrongType(kind)
		}
		errs = validateStatusRequest(s)
	case KindAgentEndTask:
		a, ok := payload.(*AgentEndTask)
		if !ok {
			return wrongType(kind)
		}
		errs = validateAgentEndTask(a)
	default:
		return &ValidationError{newFieldError("kind", fmt.Sprintf("unknown payload kind %q", kind))}
	}

	if len(errs) == 0 {
		return nil
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
	return &ValidationError{errs[0]}
}

func wrongType(kind PayloadKind) error {
	return &ValidationError{newFieldError("", fmt.Sprintf("payload does not match kind %q", kind))}
}

func validateTaskExecution(t *TaskExecution, prefix string) []*FieldError {
	var errs []*FieldError
	p := func(field string) string {
		if prefix == "" {
			return field
		}
		return prefix + "." + field
	}

	if !taskIDPattern.MatchString(t.TaskID) {
		errs = append(errs, newFieldError(p("task_id"), "must match ^[A-Za-z0-9_-]{1,100}$"))
	}
	if !isValidTaskType(t.TaskType) {
		errs = append(errs, newFieldError(p("task_type"), fmt.Sprintf("unknown task_type %q", t.TaskType)))
	}
	if l := len(t.Description); l < 10 || l > 10000 {
		errs = append(errs, newFieldError(p("description"), "length must be between 10 and 10000"))
	}
	if !isValidPriority(t.Priority) {
		errs = append(errs, newFieldError(p("priority"), fmt.Sprintf("unknown priority %q", t.Priority)))
	}
	if t.OrchestratorInfo.AgentID == "" {
		errs = append(errs, newFieldError(p("orchestrator_info.agent_id"), "required"))
	}
	if t.OrchestratorInfo.Timestamp == "" {
		errs = append(errs, newFieldError(p("orchestrator_info.timestamp"), "required"))
	}
	return errs
}

func validateTaskBatch(b *TaskBatch) []*FieldError {
	var errs []*FieldError
	if n := len(b.Tasks); n < 1 || n > 100 {
		errs = append(errs, newFieldError("tasks", "batch size must be between 1 and 100"))
		return errs
	}
	for i := range b.Tasks {
		errs = append(errs, validateTaskExecution(&b.Tasks[i], fmt.Sprintf("tasks[%d]", i))...)
	}
	return errs
}

func validateNotification(n *Notification) []*FieldError {
	var errs []*FieldError

	switch n.Type {
	case NotifyTaskStarted:
		if _, ok := n.Data["task_type"]; !ok {
			errs = append(errs, newFieldError("data.task_type", "required for task_started"))
		}
		if _, ok := n.Data["estimated_duration"]; !ok {
			errs = append(errs, newFieldError("data.estimated_duration", "required for task_started"))
		}
	case NotifyTaskProgress:
		pct, ok := n.Data["progress_percentage"]
		if !ok {
			errs = append(errs, newFieldError("data.progress_percentage", "required for task_progress"))
		} else if f, ok := asFloat(pct); !ok || f < 0 || f > 100 {
			errs = append(errs, newFieldError("data.progress_percentage", "must be a number in [0,100]"))
		}
		if _, ok := n.Data["current_step"]; !ok {
			errs = append(errs, newFieldError("data.current_step", "required for task_progress"))
		}
	case NotifyTaskCompleted:
		if _, ok := n.Data["result"]; !ok {
			errs = append(errs, newFieldError("data.result", "required for task_completed"))
		}
		if _, ok := n.Data["execution_summary"]; !ok {
			errs = append(errs, newFieldError("data.execution_summary", "required for task_completed"))
		}
	case NotifyTaskFailed:
		if _, ok := n.Data["error_type"]; !ok {
			errs = append(errs, newFieldError("data.error_type", "required for task_failed"))
		}
		if _, ok := n.Data["error_message"]; !ok {
			errs = append(errs, newFieldError("data.error_message", "required for task_failed"))
		}
	default:
		errs = append(errs, newFieldError("type", fmt.Sprintf("unknown notification type %q", n.Type)))
	}

	if !isValidNotificationPriority(n.Priority) {
		errs = append(errs, newFieldError("priority", fmt.Sprintf("unknown priority %q", n.Priority)))
	}
	if n.Source == "" {
		errs = append(errs, newFieldError("source", "required"))
	}
	return errs
}

func validateWebhookRegistration(w *WebhookRegistration) []*FieldError {
	var errs []*FieldError
	if w.URL == "" {
		errs = append(errs, newFieldError("url", "required"))
	}
	if len(w.EventTypes) == 0 {
		errs = append(errs, newFieldError("event_types", "must specify at least one event type or \"all\""))
	}
	return errs
}

func validateStatusRequest(s *StatusRequest) []*FieldError {
	var errs []*FieldError
	if !taskIDPattern.MatchString(s.TaskID) {
		errs = append(errs, newFieldError("task_id", "must match ^[A-Za-z0-9_-]{1,100}$"))
	}
	return errs
}

func validateAgentEndTask(a *AgentEndTask) []*FieldError {
	var errs []*FieldError
	if !taskIDPattern.MatchString(a.TaskID) {
		errs = append(errs, newFieldError("task_id", "must match ^[A-Za-z0-9_-]{1,100}$"))
	}
	if a.AgentID == "" {
		errs = append(errs, newFieldError("agent_id", "required"))
	}
	if !isValidReason(a.Reason) {
		errs = append(errs, newFieldError("reason", fmt.Sprintf("unknown reason %q", a.Reason)))
	}
	if a.ExecutionSummary == "" {
		errs = append(errs, newFieldError("execution_summary", "required"))
	}
	return errs
}

func isValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypeCodeGeneration, TaskTypeCodeDebugging, TaskTypeDataAnalysis, TaskTypeDocumentation,
		TaskTypeTesting, TaskTypeDeployment, TaskTypeConfiguration, TaskTypeMonitoring,
		TaskTypeResearch, TaskTypeGeneral:
		return true
	}
	return false
}

func isValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func isValidNotificationPriority(p NotificationPriority) bool {
	switch p {
	case NotificationPriorityLow, NotificationPriorityMedium, NotificationPriorityHigh, NotificationPriorityCritical:
		return true
	}
	return false
}

func isValidReason(r EndTaskReason) bool {
	switch r {
	case ReasonSuccess, ReasonFailure, ReasonTimeout, ReasonCancelled, ReasonEscalated, ReasonResourceExhausted:
		return true
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
