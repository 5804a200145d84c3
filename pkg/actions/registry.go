// Package actions implements the Action Registry (spec §4.7): a
// catalog of the canonical action definitions each one carrying its
// adapter identifier, JSON schema, and execution policy.
package actions

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/corewire/taskmesh/internal/corekit"
)

// Category groups related actions for discovery/display.
type Category string

const (
	CategoryEscalation    Category = "escalation"
	CategoryNotification  Category = "notification"
	CategoryWorkflow      Category = "workflow"
	CategoryIntegration   Category = "integration"
	CategoryDocumentation Category = "documentation"
	CategoryMonitoring    Category = "monitoring"
	CategorySecurity      Category = "security"
)

// Definition describes one registered action: its adapter binding,
// input/output schema, and the execution policy the engine enforces.
type Definition struct {
	Name             string
	Description      string
	AdapterID        string
	Category         Category
	SecurityLevel    string
	RateLimit        int // requests per minute, global
	Timeout          int // seconds
	RetryCount       int
	RequiresApproval bool
	InputSchema      map[string]interface{}
	OutputSchema     map[string]interface{}
	Examples         []map[string]interface{}
}

// Registry is the action catalog: re-registering a name with an
// equivalent definition is idempotent (spec.md); re-registering it
// with a conflicting one errors rather than silently overwriting.
type Registry struct {
	mu         sync.RWMutex
	actions    map[string]*Definition
	categories map[Category]string
}

// NewRegistry builds an empty registry. Use NewDefaultRegistry for the
// canonical action set.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]*Definition),
		categories: map[Category]string{
			CategoryEscalation:    "Human Escalation and Approval",
			CategoryNotification:  "Notifications and Communications",
			CategoryWorkflow:      "Workflow and Pipeline Triggers",
			CategoryIntegration:   "External System Integration",
			CategoryDocumentation: "Documentation and Knowledge Management",
			CategoryMonitoring:    "Monitoring and Alerting",
			CategorySecurity:      "Security and Compliance Actions",
		},
	}
}

// Register installs def. Calling Register twice with an equivalent
// definition of the same name is a no-op; calling it with a
// conflicting definition of an already-registered name returns
// corekit.ErrIntegrity instead of overwriting the catalog entry.
func (r *Registry) Register(def *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.actions[def.Name]; ok {
		if !reflect.DeepEqual(existing, def) {
			return fmt.Errorf("actions: %w: action %q already registered with a conflicting definition", corekit.ErrIntegrity, def.Name)
		}
		return nil
	}
	r.actions[def.Name] = def
	return nil
}

// Get returns the definition for name, or (nil, false) if unregistered.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.actions[name]
	return def, ok
}

// ByCategory returns every action registered under category.
func (r *Registry) ByCategory(category Category) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Definition
	for _, def := range r.actions {
		if def.Category == category {
			out = append(out, def)
		}
	}
	return out
}

// All returns every registered definition.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.actions))
	for _, def := range r.actions {
		out = append(out, def)
	}
	return out
}

// Schemas returns the {description, inputSchema, outputSchema,
// category, ...} view consumed by schema discovery endpoints.
func (r *Registry) Schemas() map[string]map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]interface{}, len(r.actions))
	for name, def := range r.actions {
		out[name] = map[string]interface{}{
			"description":   def.Description,
			"inputSchema":   def.InputSchema,
			"outputSchema":  def.OutputSchema,
			"category":      def.Category,
			"securityLevel": def.SecurityLevel,
			"rateLimit":     def.RateLimit,
			"examples":      def.Examples,
		}
	}
	return out
}

// Categories returns the category-id to human label map.
func (r *Registry) Categories() map[Category]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Category]string, len(r.categories))
	for k, v := range r.categories {
		out[k] = v
	}
	return out
}

// ResolveAdapter looks up the adapter identifier for name, returning
// ErrAdapterUnavailable if the action itself is unknown — the engine
// treats a missing adapter binding as fail-fast, never a fallback.
func (r *Registry) ResolveAdapter(name string) (string, error) {
	def, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("actions: %w: action %s not registered", corekit.ErrAdapterUnavailable, name)
	}
	return def.AdapterID, nil
}
