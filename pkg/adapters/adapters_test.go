package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/taskmesh/internal/config"
)

func TestMockEscalateToHuman(t *testing.T) {
	m := NewMock("test")
	out, err := m.Invoke(context.Background(), "escalate_to_human", map[string]interface{}{
		"context":      "prod outage",
		"urgency":      "critical",
		"stakeholders": []interface{}{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, "escalated", out["status"])
	assert.Equal(t, "5-15 minutes", out["estimated_response_time"])
	notified, ok := out["notified_stakeholders"].([]string)
	require.True(t, ok)
	assert.Len(t, notified, 2)
}

func TestMockSendEmailCountsRecipients(t *testing.T) {
	m := NewMock("test")
	out, err := m.Invoke(context.Background(), "send_email", map[string]interface{}{
		"recipients": []interface{}{"a@example.com", "b@example.com"},
		"subject":    "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out["recipient_count"])
	assert.Equal(t, "sent", out["status"])
}

func TestMockUnknownActionFallsBackToGeneric(t *testing.T) {
	m := NewMock("test")
	out, err := m.Invoke(context.Background(), "some_future_action", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "completed", out["status"])
	assert.Equal(t, "some_future_action", out["action_name"])
}

func TestRealAdaptersDegradeToMockWithoutCredentials(t *testing.T) {
	cfg := config.AdaptersConfig{}

	slack := NewSlack(cfg)
	out, err := slack.Invoke(context.Background(), "send_slack_message", map[string]interface{}{"channel": "#ops", "message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "sent", out["status"])

	jira := NewJira(cfg)
	out, err = jira.Invoke(context.Background(), "create_jira_ticket", map[string]interface{}{"project": "OPS", "summary": "x"})
	require.NoError(t, err)
	assert.Equal(t, "created", out["status"])

	gh := NewGitHub(cfg)
	out, err = gh.Invoke(context.Background(), "create_github_issue", map[string]interface{}{"repository": "acme/app", "title": "bug"})
	require.NoError(t, err)
	assert.Equal(t, "open", out["status"])
}

func TestEscalationNeverDegrades(t *testing.T) {
	e := NewEscalation()
	out, err := e.Invoke(context.Background(), "request_approval", map[string]interface{}{
		"approvers":           []interface{}{"carol"},
		"action_description":  "deploy to prod",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending_approval", out["status"])
}

func TestResolverRoutesCanonicalAdapterIDs(t *testing.T) {
	r := NewResolver(config.AdaptersConfig{})
	for _, id := range []string{"escalation", "email", "slack", "workflow", "jira", "github", "documentation", "monitoring", "security_scan"} {
		adapter, ok := r.Resolve(id)
		assert.Truef(t, ok, "expected adapter registered for %q", id)
		assert.NotNil(t, adapter)
	}

	_, ok := r.Resolve("nonexistent")
	assert.False(t, ok)
}

func TestResolverRegisterOverridesAdapter(t *testing.T) {
	r := NewResolver(config.AdaptersConfig{})
	custom := NewMock("custom-email")
	r.Register("email", custom)

	adapter, ok := r.Resolve("email")
	require.True(t, ok)
	assert.Same(t, custom, adapter)
}
