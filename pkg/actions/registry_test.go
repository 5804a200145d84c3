package actions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/taskmesh/internal/corekit"
)

func TestDefaultRegistryHasCanonicalActions(t *testing.T) {
	r := NewDefaultRegistry()
	all := r.All()
	assert.Len(t, all, len(canonicalDefinitions()))

	def, ok := r.Get("send_email")
	require.True(t, ok)
	assert.Equal(t, "email", def.AdapterID)
	assert.Equal(t, defaultRetryCount, def.RetryCount)
}

func TestRegisterIsIdempotentByName(t *testing.T) {
	r := NewRegistry()
	def := &Definition{Name: "send_email", AdapterID: "email", Category: CategoryNotification}

	require.NoError(t, r.Register(def))
	before := len(r.All())
	require.NoError(t, r.Register(def))
	after := len(r.All())

	assert.Equal(t, before, after)
}

func TestRegisterRejectsConflictingDefinition(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Definition{Name: "send_email", AdapterID: "email", Category: CategoryNotification}))

	err := r.Register(&Definition{Name: "send_email", AdapterID: "smtp-relay", Category: CategoryNotification})
	require.Error(t, err)
	assert.True(t, errors.Is(err, corekit.ErrIntegrity))

	def, ok := r.Get("send_email")
	require.True(t, ok)
	assert.Equal(t, "email", def.AdapterID, "conflicting registration must not overwrite the existing definition")
}

func TestByCategoryFiltersCorrectly(t *testing.T) {
	r := NewDefaultRegistry()
	workflow := r.ByCategory(CategoryWorkflow)
	assert.Len(t, workflow, 2)
	for _, def := range workflow {
		assert.Equal(t, CategoryWorkflow, def.Category)
	}
}

func TestSchemasExposesSafeView(t *testing.T) {
	r := NewDefaultRegistry()
	schemas := r.Schemas()
	require.Contains(t, schemas, "trigger_security_scan")
	assert.Equal(t, "admin", schemas["trigger_security_scan"]["securityLevel"])
}

func TestResolveAdapterFailsFastOnUnknownAction(t *testing.T) {
	r := NewDefaultRegistry()
	_, err := r.ResolveAdapter("does_not_exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, corekit.ErrAdapterUnavailable))
}

func TestResolveAdapterReturnsBinding(t *testing.T) {
	r := NewDefaultRegistry()
	adapterID, err := r.ResolveAdapter("create_jira_ticket")
	require.NoError(t, err)
	assert.Equal(t, "jira", adapterID)
}
