package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/internal/resilience"
)

// Manager owns the policy table, permission table, and per-(user,
// action) rate windows. Zero value is not usable; construct with
// NewManager.
type Manager struct {
	logger corekit.Logger

	mu          sync.RWMutex
	policies    map[string]*Policy
	permissions map[string]*Permission
	rateWindows map[string]*resilience.SlidingWindow

	approvals *ApprovalStore
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger attaches a component-scoped logger.
func WithLogger(logger corekit.Logger) ManagerOption {
	return func(m *Manager) { m.logger = corekit.WithComponent(logger, "security.manager") }
}

// WithPolicies overrides the default policy table.
func WithPolicies(policies map[string]*Policy) ManagerOption {
	return func(m *Manager) { m.policies = policies }
}

// NewManager starts with DefaultPolicies and an empty permission table;
// callers register permissions with Grant.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:      corekit.NoOpLogger{},
		policies:    DefaultPolicies(),
		permissions: make(map[string]*Permission),
		rateWindows: make(map[string]*resilience.SlidingWindow),
		approvals:   NewApprovalStore(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Grant installs or replaces a user's permission record.
func (m *Manager) Grant(p *Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions[p.UserID] = p
}

// Policy returns the policy for action, or nil if none is registered.
func (m *Manager) Policy(actionName string) *Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policies[actionName]
}

func (m *Manager) rateWindow(userID, actionName string) *resilience.SlidingWindow {
	key := userID + ":" + actionName
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.rateWindows[key]
	if !ok {
		w = resilience.NewSlidingWindow(time.Hour, 60)
		m.rateWindows[key] = w
	}
	return w
}

// CheckPermission runs the six-step decision procedure from spec §4.6.
// On success it records the attempt against the user's per-hour rate
// window; on failure no attempt is recorded.
func (m *Manager) CheckPermission(ctx context.Context, userID, actionName string, needed Clearance) error {
	m.mu.RLock()
	perm, permOK := m.permissions[userID]
	policy, policyOK := m.policies[actionName]
	m.mu.RUnlock()

	if !permOK {
		return fmt.Errorf("security: %w: no permission record for user %s", corekit.ErrPermissionDenied, userID)
	}
	if perm.expired() {
		return fmt.Errorf("security: %w: permission expired for user %s", corekit.ErrPermissionDenied, userID)
	}
	if !policyOK {
		return fmt.Errorf("security: %w: no policy for action %s (fail-closed)", corekit.ErrPermissionDenied, actionName)
	}
	if !perm.hasRole(policy.RequiredRole) {
		return fmt.Errorf("security: %w: user %s lacks role %s for %s", corekit.ErrPermissionDenied, userID, policy.RequiredRole, actionName)
	}
	if rank(perm.Clearance) < rank(needed) {
		return fmt.Errorf("security: %w: user %s lacks clearance %s for %s", corekit.ErrPermissionDenied, userID, needed, actionName)
	}
	if !policy.allowsHour(time.Now().UTC().Hour()) {
		return fmt.Errorf("security: %w: action %s not allowed at this hour", corekit.ErrPermissionDenied, actionName)
	}

	window := m.rateWindow(userID, actionName)
	if policy.MaxExecutionsPerHour > 0 && window.Total() >= uint64(policy.MaxExecutionsPerHour) {
		return fmt.Errorf("security: %w: rate limit exceeded for user %s on %s", corekit.ErrPermissionDenied, userID, actionName)
	}

	window.RecordSuccess()
	return nil
}

// RequireApproval reports whether actionName's policy demands an
// approval gate.
func (m *Manager) RequireApproval(actionName string) bool {
	policy := m.Policy(actionName)
	return policy != nil && policy.ApprovalRequired
}

// Approvals exposes the approval lifecycle store.
func (m *Manager) Approvals() *ApprovalStore { return m.approvals }
