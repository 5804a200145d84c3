// Package adapters provides the executor.Adapter implementations behind
// the canonical action catalog (spec §4.7): one adapter per external
// system (escalation, email, Slack, workflow, Jira, GitHub,
// documentation, monitoring, security scanning), every one of them
// falling back to deterministic mock behavior when its credentials
// aren't configured.
package adapters

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Mock simulates every canonical action without touching a real
// external system. Real adapters embed it and delegate to it whenever
// their own credentials are absent, so a misconfigured deployment keeps
// running instead of failing every action invocation.
type Mock struct {
	name string
}

func NewMock(name string) *Mock {
	return &Mock{name: name}
}

func (m *Mock) Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error) {
	switch actionName {
	case "escalate_to_human":
		return m.escalateToHuman(input), nil
	case "request_approval":
		return m.requestApproval(input), nil
	case "send_email":
		return m.sendEmail(input), nil
	case "send_slack_message":
		return m.sendSlackMessage(input), nil
	case "trigger_workflow":
		return m.triggerWorkflow(input), nil
	case "stop_workflow":
		return m.stopWorkflow(input), nil
	case "create_jira_ticket":
		return m.createJiraTicket(input), nil
	case "create_github_issue":
		return m.createGithubIssue(input), nil
	case "update_documentation":
		return m.updateDocumentation(input), nil
	case "create_alert":
		return m.createAlert(input), nil
	case "trigger_security_scan":
		return m.triggerSecurityScan(input), nil
	default:
		return m.genericAction(actionName, input), nil
	}
}

func shortID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String()[:8])
}

func stringsFrom(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func boolOr(v interface{}, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func (m *Mock) escalateToHuman(input map[string]interface{}) map[string]interface{} {
	id := shortID("ESC")
	urgency := stringOr(input["urgency"], "medium")

	stakeholders := stringsFrom(input["stakeholders"])
	channels := stringsFrom(input["notification_channels"])
	if len(channels) == 0 {
		channels = []string{"email"}
	}
	notified := make([]string, 0, len(stakeholders)*len(channels))
	for _, s := range stakeholders {
		for _, c := range channels {
			notified = append(notified, fmt.Sprintf("%s@%s", s, c))
		}
	}

	responseTimes := map[string]string{
		"low": "4-8 hours", "medium": "2-4 hours", "high": "30-60 minutes", "critical": "5-15 minutes",
	}
	eta, ok := responseTimes[urgency]
	if !ok {
		eta = "2-4 hours"
	}

	return map[string]interface{}{
		"escalation_id":            id,
		"status":                   "escalated",
		"notified_stakeholders":    notified,
		"estimated_response_time":  eta,
		"tracking_url":             fmt.Sprintf("https://escalation.internal/track/%s", id),
		"urgency":                  urgency,
		"context":                  stringOr(input["context"], ""),
	}
}

func (m *Mock) requestApproval(input map[string]interface{}) map[string]interface{} {
	id := shortID("APR")
	approvers := stringsFrom(input["approvers"])
	notified := make([]string, 0, len(approvers))
	for _, a := range approvers {
		notified = append(notified, fmt.Sprintf("%s@approval-system", a))
	}
	return map[string]interface{}{
		"approval_id":         id,
		"status":              "pending_approval",
		"approvers_notified":  notified,
		"approval_url":        fmt.Sprintf("https://approval.internal/request/%s", id),
		"approval_type":       stringOr(input["approval_type"], "single"),
		"action_description":  stringOr(input["action_description"], ""),
	}
}

func (m *Mock) sendEmail(input map[string]interface{}) map[string]interface{} {
	id := shortID("MSG")
	recipients := stringsFrom(input["recipients"])
	delivery := make(map[string]interface{}, len(recipients))
	for _, r := range recipients {
		delivery[r] = "delivered"
	}
	return map[string]interface{}{
		"message_id":      id,
		"status":          "sent",
		"delivery_status": delivery,
		"subject":         stringOr(input["subject"], "No Subject"),
		"recipient_count": len(recipients),
	}
}

func (m *Mock) sendSlackMessage(input map[string]interface{}) map[string]interface{} {
	message := stringOr(input["message"], "")
	if len(message) > 100 {
		message = message[:100] + "..."
	}
	return map[string]interface{}{
		"message_ts": shortID("TS"),
		"channel":    stringOr(input["channel"], "#general"),
		"status":     "sent",
		"message":    message,
	}
}

func (m *Mock) triggerWorkflow(input map[string]interface{}) map[string]interface{} {
	id := shortID("WF")
	workflowType := stringOr(input["workflow_type"], "custom")
	durations := map[string]int{
		"deployment": 15, "testing": 30, "security_scan": 45, "backup": 20, "custom": 10,
	}
	duration, ok := durations[workflowType]
	if !ok {
		duration = 10
	}
	return map[string]interface{}{
		"workflow_id":         id,
		"status":              "running",
		"estimated_duration":  duration,
		"monitoring_url":      fmt.Sprintf("https://workflows.internal/monitor/%s", id),
		"workflow_type":       workflowType,
		"environment":         stringOr(input["environment"], "development"),
	}
}

func (m *Mock) stopWorkflow(input map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"workflow_id":   stringOr(input["workflow_id"], "WF-UNKNOWN"),
		"status":        "stopped",
		"reason":        stringOr(input["reason"], "user request"),
		"force_stopped": boolOr(input["force"], false),
	}
}

func (m *Mock) createJiraTicket(input map[string]interface{}) map[string]interface{} {
	ticket := shortID(stringOr(input["project"], "PROJ"))
	return map[string]interface{}{
		"ticket_id":   ticket,
		"ticket_url":  fmt.Sprintf("https://jira.internal/browse/%s", ticket),
		"status":      "created",
		"project":     stringOr(input["project"], "PROJ"),
		"issue_type":  stringOr(input["issue_type"], "Task"),
		"summary":     stringOr(input["summary"], "New Issue"),
	}
}

func (m *Mock) createGithubIssue(input map[string]interface{}) map[string]interface{} {
	repo := stringOr(input["repository"], "owner/repo")
	number := shortID("issue")
	return map[string]interface{}{
		"issue_id":   number,
		"issue_url":  fmt.Sprintf("https://github.com/%s/issues/%s", repo, number),
		"repository": repo,
		"title":      stringOr(input["title"], "New Issue"),
		"status":     "open",
	}
}

func (m *Mock) updateDocumentation(input map[string]interface{}) map[string]interface{} {
	id := shortID("PAGE")
	service := stringOr(input["service"], "confluence")
	return map[string]interface{}{
		"page_id":  id,
		"page_url": fmt.Sprintf("https://%s.internal/pages/%s", service, id),
		"version":  "v2.0",
		"status":   "updated",
		"service":  service,
	}
}

func (m *Mock) createAlert(input map[string]interface{}) map[string]interface{} {
	id := shortID("ALERT")
	service := stringOr(input["service"], "datadog")
	return map[string]interface{}{
		"alert_id":   id,
		"alert_url":  fmt.Sprintf("https://%s.internal/alerts/%s", service, id),
		"status":     "active",
		"alert_name": stringOr(input["alert_name"], "New Alert"),
		"severity":   stringOr(input["severity"], "warning"),
	}
}

func (m *Mock) triggerSecurityScan(input map[string]interface{}) map[string]interface{} {
	id := shortID("SCAN")
	scanType := stringOr(input["scan_type"], "vulnerability")
	baseMinutes := map[string]int{
		"vulnerability": 30, "compliance": 45, "penetration": 120, "code_analysis": 60,
	}
	scopeMultiplier := map[string]float64{
		"full": 1.0, "incremental": 0.3, "critical_only": 0.5,
	}
	minutes, ok := baseMinutes[scanType]
	if !ok {
		minutes = 30
	}
	scope := stringOr(input["scope"], "full")
	mult, ok := scopeMultiplier[scope]
	if !ok {
		mult = 1.0
	}
	return map[string]interface{}{
		"scan_id":     id,
		"status":      "initiated",
		"estimated_minutes": int(float64(minutes) * mult),
		"results_url": fmt.Sprintf("https://security.internal/scans/%s", id),
		"scan_type":   scanType,
		"target":      stringOr(input["target"], "unknown"),
		"scope":       scope,
	}
}

func (m *Mock) genericAction(actionName string, input map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"execution_id":   shortID("EXEC"),
		"action_name":    actionName,
		"status":         "completed",
		"result":         "mock_success",
		"input_summary":  fmt.Sprintf("%d parameters provided", len(input)),
		"adapter":        m.name,
	}
}
