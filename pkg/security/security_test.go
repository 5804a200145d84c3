package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/taskmesh/internal/corekit"
)

func newTestManager() *Manager {
	m := NewManager()
	m.Grant(&Permission{
		UserID:    "alice",
		Roles:     map[string]struct{}{"user": {}},
		Clearance: ClearanceStandard,
	})
	m.Grant(&Permission{
		UserID:    "bob",
		Roles:     map[string]struct{}{"developer": {}, "user": {}},
		Clearance: ClearanceElevated,
	})
	return m
}

func TestCheckPermissionAllowsMatchingUser(t *testing.T) {
	m := newTestManager()
	err := m.CheckPermission(context.Background(), "alice", "send_email", ClearanceStandard)
	require.NoError(t, err)
}

func TestCheckPermissionDeniesUnknownUser(t *testing.T) {
	m := newTestManager()
	err := m.CheckPermission(context.Background(), "ghost", "send_email", ClearanceStandard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, corekit.ErrPermissionDenied))
}

func TestCheckPermissionFailsClosedOnUnknownAction(t *testing.T) {
	m := newTestManager()
	err := m.CheckPermission(context.Background(), "alice", "does_not_exist", ClearanceStandard)
	require.Error(t, err)
}

func TestCheckPermissionDeniesMissingRole(t *testing.T) {
	m := newTestManager()
	err := m.CheckPermission(context.Background(), "alice", "create_github_issue", ClearanceStandard)
	require.Error(t, err, "alice lacks the developer role required by create_github_issue")
}

func TestCheckPermissionDeniesInsufficientClearance(t *testing.T) {
	m := newTestManager()
	err := m.CheckPermission(context.Background(), "alice", "escalate_to_human", ClearanceStandard)
	require.Error(t, err, "escalate_to_human requires elevated clearance")
}

func TestCheckPermissionDeniesExpiredPermission(t *testing.T) {
	m := NewManager()
	m.Grant(&Permission{
		UserID:    "carol",
		Roles:     map[string]struct{}{"user": {}},
		Clearance: ClearanceStandard,
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	err := m.CheckPermission(context.Background(), "carol", "send_email", ClearanceStandard)
	require.Error(t, err)
}

func TestCheckPermissionEnforcesRateLimit(t *testing.T) {
	m := newTestManager()
	policies := DefaultPolicies()
	policies["send_email"].MaxExecutionsPerHour = 2
	m = NewManager(WithPolicies(policies))
	m.Grant(&Permission{UserID: "alice", Roles: map[string]struct{}{"user": {}}, Clearance: ClearanceStandard})

	ctx := context.Background()
	require.NoError(t, m.CheckPermission(ctx, "alice", "send_email", ClearanceStandard))
	require.NoError(t, m.CheckPermission(ctx, "alice", "send_email", ClearanceStandard))
	err := m.CheckPermission(ctx, "alice", "send_email", ClearanceStandard)
	require.Error(t, err, "third call within the hour should exceed the rate limit")
}

func TestApprovalLifecycleSingleApprover(t *testing.T) {
	store := NewApprovalStore()
	input := map[string]interface{}{"target": "prod"}

	id := store.RequestApproval("trigger_workflow", input, "alice", []string{"bob"}, ApprovalSingle, 0)
	assert.False(t, store.CheckApprovalStatus("trigger_workflow", input))

	require.NoError(t, store.GrantApproval(id, "bob"))
	assert.True(t, store.CheckApprovalStatus("trigger_workflow", input))
}

func TestApprovalLifecycleMajorityRequiresMultiple(t *testing.T) {
	store := NewApprovalStore()
	input := map[string]interface{}{"target": "prod"}

	id := store.RequestApproval("stop_workflow", input, "alice", []string{"bob", "carol", "dave"}, ApprovalMajority, 0)
	require.NoError(t, store.GrantApproval(id, "bob"))
	assert.False(t, store.CheckApprovalStatus("stop_workflow", input))

	require.NoError(t, store.GrantApproval(id, "carol"))
	assert.True(t, store.CheckApprovalStatus("stop_workflow", input))
}

func TestApprovalRejectsNonApproverAndDoubleGrant(t *testing.T) {
	store := NewApprovalStore()
	input := map[string]interface{}{"target": "prod"}
	id := store.RequestApproval("stop_workflow", input, "alice", []string{"bob"}, ApprovalSingle, 0)

	require.Error(t, store.GrantApproval(id, "mallory"))
	require.NoError(t, store.GrantApproval(id, "bob"))
	require.Error(t, store.GrantApproval(id, "bob"), "bob already granted")
}

func TestApprovalKeyDeterministic(t *testing.T) {
	a := ApprovalKey("stop_workflow", map[string]interface{}{"target": "prod", "zone": "us"})
	b := ApprovalKey("stop_workflow", map[string]interface{}{"zone": "us", "target": "prod"})
	assert.Equal(t, a, b, "key must not depend on map iteration order")
	assert.Len(t, a, 16)
}

func TestSanitizeInputRejectsDangerousPatterns(t *testing.T) {
	cases := []interface{}{
		"before <script>alert(1)</script> after",
		map[string]interface{}{"nested": "javascript:alert(1)"},
		[]interface{}{"clean", "EVAL("},
	}
	for _, c := range cases {
		assert.Error(t, SanitizeInput(c))
	}
}

func TestSanitizeInputAllowsCleanPayload(t *testing.T) {
	clean := map[string]interface{}{
		"message": "hello world",
		"tags":    []interface{}{"a", "b"},
	}
	assert.NoError(t, SanitizeInput(clean))
}
