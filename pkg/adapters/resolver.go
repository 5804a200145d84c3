package adapters

import (
	"github.com/corewire/taskmesh/internal/config"
	"github.com/corewire/taskmesh/pkg/executor"
)

// Resolver routes a canonical action's AdapterID (spec §4.7) to its
// concrete executor.Adapter.
type Resolver struct {
	adapters map[string]executor.Adapter
}

// NewResolver builds the resolver for every canonical adapter ID,
// wiring credentials from cfg where an external adapter needs them.
func NewResolver(cfg config.AdaptersConfig) *Resolver {
	return &Resolver{
		adapters: map[string]executor.Adapter{
			"escalation":    NewEscalation(),
			"email":         NewEmail(cfg),
			"slack":         NewSlack(cfg),
			"workflow":      NewWorkflow(cfg),
			"jira":          NewJira(cfg),
			"github":        NewGitHub(cfg),
			"documentation": NewDocumentation(cfg),
			"monitoring":    NewMonitoring(cfg),
			"security_scan": NewSecurityScan(cfg),
		},
	}
}

func (r *Resolver) Resolve(adapterID string) (executor.Adapter, bool) {
	a, ok := r.adapters[adapterID]
	return a, ok
}

// Register overrides or adds an adapter for adapterID, letting callers
// swap in a custom or test implementation.
func (r *Resolver) Register(adapterID string, adapter executor.Adapter) {
	r.adapters[adapterID] = adapter
}
