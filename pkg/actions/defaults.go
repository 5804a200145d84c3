package actions

import "fmt"

// defaultRetryCount is used for every canonical action unless a
// definition below overrides it; resolved as an Open Question (see
// DESIGN.md): the original source leaves retry_count at dataclass
// default 3 for all actions, so the Go registry keeps that default
// rather than inventing a per-action schedule.
const defaultRetryCount = 3

// NewDefaultRegistry builds a Registry preloaded with the canonical
// action set (spec §4.7): escalation, approval request, email, chat
// message, workflow trigger/stop, ticket/issue creation, documentation
// update, alert creation, and security scan.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range canonicalDefinitions() {
		d := def
		d.RetryCount = defaultRetryCount
		if err := r.Register(&d); err != nil {
			panic(fmt.Sprintf("actions: canonical definitions conflict: %v", err))
		}
	}
	return r
}

func canonicalDefinitions() []Definition {
	return []Definition{
		{
			Name:          "escalate_to_human",
			Description:   "Escalate a decision or issue to a human stakeholder",
			AdapterID:     "escalation",
			Category:      CategoryEscalation,
			SecurityLevel: "elevated",
			RateLimit:     5,
			Timeout:       30,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"context":                map[string]interface{}{"type": "string"},
					"urgency":                map[string]interface{}{"type": "string", "enum": []string{"low", "medium", "high", "critical"}},
					"stakeholders":           map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"notification_channels":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
				"required": []string{"context", "stakeholders"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"escalation_id": map[string]interface{}{"type": "string"},
					"status":        map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:          "request_approval",
			Description:   "Request approval for an action or decision",
			AdapterID:     "escalation",
			Category:      CategoryEscalation,
			SecurityLevel: "elevated",
			RateLimit:     5,
			Timeout:       30,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"action_description": map[string]interface{}{"type": "string"},
					"approvers":          map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"justification":      map[string]interface{}{"type": "string"},
					"approval_type":      map[string]interface{}{"type": "string", "enum": []string{"single", "majority", "unanimous"}},
				},
				"required": []string{"action_description", "approvers", "justification"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"approval_id": map[string]interface{}{"type": "string"},
					"status":      map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:          "send_email",
			Description:   "Send an email notification",
			AdapterID:     "email",
			Category:      CategoryNotification,
			SecurityLevel: "standard",
			RateLimit:     50,
			Timeout:       30,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"recipients": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"subject":    map[string]interface{}{"type": "string"},
					"template":   map[string]interface{}{"type": "string"},
					"data":       map[string]interface{}{"type": "object"},
				},
				"required": []string{"recipients", "subject"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"message_id": map[string]interface{}{"type": "string"},
					"status":     map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:          "send_slack_message",
			Description:   "Send a message to a Slack channel or user",
			AdapterID:     "slack",
			Category:      CategoryNotification,
			SecurityLevel: "standard",
			RateLimit:     100,
			Timeout:       30,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"channel": map[string]interface{}{"type": "string"},
					"message": map[string]interface{}{"type": "string"},
					"data":    map[string]interface{}{"type": "object"},
				},
				"required": []string{"channel", "message"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"message_ts": map[string]interface{}{"type": "string"},
					"status":     map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:          "trigger_workflow",
			Description:   "Trigger an external workflow or pipeline",
			AdapterID:     "workflow",
			Category:      CategoryWorkflow,
			SecurityLevel: "elevated",
			RateLimit:     20,
			Timeout:       60,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"workflow_type": map[string]interface{}{"type": "string"},
					"environment":   map[string]interface{}{"type": "string", "enum": []string{"development", "staging", "production"}},
					"parameters":    map[string]interface{}{"type": "object"},
				},
				"required": []string{"workflow_type"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"workflow_id": map[string]interface{}{"type": "string"},
					"status":      map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:             "stop_workflow",
			Description:      "Stop a running workflow or pipeline",
			AdapterID:        "workflow",
			Category:         CategoryWorkflow,
			SecurityLevel:    "elevated",
			RateLimit:        10,
			Timeout:          30,
			RequiresApproval: true,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"workflow_id": map[string]interface{}{"type": "string"},
					"reason":      map[string]interface{}{"type": "string"},
					"force":       map[string]interface{}{"type": "boolean"},
				},
				"required": []string{"workflow_id", "reason"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"workflow_id": map[string]interface{}{"type": "string"},
					"status":      map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:          "create_jira_ticket",
			Description:   "Create a ticket in Jira",
			AdapterID:     "jira",
			Category:      CategoryIntegration,
			SecurityLevel: "standard",
			RateLimit:     30,
			Timeout:       30,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"project":     map[string]interface{}{"type": "string"},
					"issue_type":  map[string]interface{}{"type": "string", "enum": []string{"Bug", "Task", "Story", "Epic", "Incident"}},
					"summary":     map[string]interface{}{"type": "string"},
					"description": map[string]interface{}{"type": "string"},
				},
				"required": []string{"project", "issue_type", "summary"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ticket_id":  map[string]interface{}{"type": "string"},
					"ticket_url": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:          "create_github_issue",
			Description:   "Create an issue in a GitHub repository",
			AdapterID:     "github",
			Category:      CategoryIntegration,
			SecurityLevel: "standard",
			RateLimit:     25,
			Timeout:       30,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repository": map[string]interface{}{"type": "string"},
					"title":      map[string]interface{}{"type": "string"},
					"body":       map[string]interface{}{"type": "string"},
					"labels":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
				"required": []string{"repository", "title"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"issue_id":  map[string]interface{}{"type": "integer"},
					"issue_url": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:          "update_documentation",
			Description:   "Update documentation in an external system",
			AdapterID:     "documentation",
			Category:      CategoryDocumentation,
			SecurityLevel: "elevated",
			RateLimit:     15,
			Timeout:       30,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"service": map[string]interface{}{"type": "string", "enum": []string{"confluence", "notion", "gitbook", "wiki"}},
					"page_id": map[string]interface{}{"type": "string"},
					"content": map[string]interface{}{"type": "string"},
				},
				"required": []string{"service", "content"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"page_id":  map[string]interface{}{"type": "string"},
					"page_url": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:             "create_alert",
			Description:      "Create a monitoring alert",
			AdapterID:        "monitoring",
			Category:         CategoryMonitoring,
			SecurityLevel:    "elevated",
			RateLimit:        10,
			Timeout:          30,
			RequiresApproval: true,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"service":    map[string]interface{}{"type": "string", "enum": []string{"datadog", "newrelic", "prometheus", "grafana"}},
					"alert_name": map[string]interface{}{"type": "string"},
					"condition":  map[string]interface{}{"type": "string"},
					"severity":   map[string]interface{}{"type": "string", "enum": []string{"info", "warning", "error", "critical"}},
				},
				"required": []string{"service", "alert_name", "condition"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"alert_id": map[string]interface{}{"type": "string"},
					"status":   map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:             "trigger_security_scan",
			Description:      "Trigger a security scan on a target system",
			AdapterID:        "security_scan",
			Category:         CategorySecurity,
			SecurityLevel:    "admin",
			RateLimit:        5,
			Timeout:          300,
			RequiresApproval: true,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scan_type": map[string]interface{}{"type": "string", "enum": []string{"vulnerability", "compliance", "penetration", "code_analysis"}},
					"target":    map[string]interface{}{"type": "string"},
					"scope":     map[string]interface{}{"type": "string", "enum": []string{"full", "incremental", "critical_only"}},
				},
				"required": []string{"scan_type", "target"},
			},
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scan_id": map[string]interface{}{"type": "string"},
					"status":  map[string]interface{}{"type": "string"},
				},
			},
		},
	}
}
