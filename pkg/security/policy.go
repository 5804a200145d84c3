// Package security implements the Security Manager (spec §4.6): policy
// table, user permission table, the check_permission decision
// procedure, the approval lifecycle, and recursive input sanitization.
package security

import "time"

// Clearance is the closed, ranked set of user security clearances.
type Clearance string

const (
	ClearanceStandard Clearance = "standard"
	ClearanceElevated Clearance = "elevated"
	ClearanceAdmin    Clearance = "admin"
)

var clearanceRank = map[Clearance]int{
	ClearanceStandard: 0,
	ClearanceElevated: 1,
	ClearanceAdmin:    2,
}

func rank(c Clearance) int {
	if r, ok := clearanceRank[c]; ok {
		return r
	}
	return 0
}

// Policy is the per-action security policy (spec §4.6).
type Policy struct {
	ActionName           string
	RequiredRole         string
	SecurityLevel        Clearance
	MaxExecutionsPerHour int
	ApprovalRequired     bool
	AllowedHours         []int // nil means unrestricted
	IPAllowlist          []string
}

func (p *Policy) allowsHour(hour int) bool {
	if len(p.AllowedHours) == 0 {
		return true
	}
	for _, h := range p.AllowedHours {
		if h == hour {
			return true
		}
	}
	return false
}

// Permission is a user's role/clearance grant.
type Permission struct {
	UserID       string
	Roles        map[string]struct{}
	Clearance    Clearance
	Restrictions map[string]interface{}
	ExpiresAt    time.Time // zero means never expires
}

func (p *Permission) expired() bool {
	return !p.ExpiresAt.IsZero() && p.ExpiresAt.Before(time.Now())
}

func (p *Permission) hasRole(role string) bool {
	_, ok := p.Roles[role]
	return ok
}

// DefaultPolicies mirrors the canonical action set (spec §4.7): every
// built-in action builder has a matching policy here.
func DefaultPolicies() map[string]*Policy {
	policies := map[string]*Policy{
		"escalate_to_human": {RequiredRole: "user", SecurityLevel: ClearanceElevated, MaxExecutionsPerHour: 10},
		"request_approval":  {RequiredRole: "user", SecurityLevel: ClearanceElevated, MaxExecutionsPerHour: 5},
		"send_email":        {RequiredRole: "user", SecurityLevel: ClearanceStandard, MaxExecutionsPerHour: 50},
		"send_slack_message": {RequiredRole: "user", SecurityLevel: ClearanceStandard, MaxExecutionsPerHour: 100},
		"trigger_workflow":  {RequiredRole: "developer", SecurityLevel: ClearanceElevated, MaxExecutionsPerHour: 20, ApprovalRequired: true},
		"stop_workflow":     {RequiredRole: "admin", SecurityLevel: ClearanceElevated, MaxExecutionsPerHour: 10, ApprovalRequired: true},
		"create_jira_ticket": {RequiredRole: "user", SecurityLevel: ClearanceStandard, MaxExecutionsPerHour: 30},
		"create_github_issue": {RequiredRole: "developer", SecurityLevel: ClearanceStandard, MaxExecutionsPerHour: 25},
		"update_documentation": {RequiredRole: "developer", SecurityLevel: ClearanceElevated, MaxExecutionsPerHour: 15},
		"create_alert":      {RequiredRole: "admin", SecurityLevel: ClearanceElevated, MaxExecutionsPerHour: 10, ApprovalRequired: true},
		"trigger_security_scan": {RequiredRole: "security_admin", SecurityLevel: ClearanceAdmin, MaxExecutionsPerHour: 5, ApprovalRequired: true},
		"submit_task":        {RequiredRole: "user", SecurityLevel: ClearanceStandard, MaxExecutionsPerHour: 200},
	}
	for name, p := range policies {
		p.ActionName = name
	}
	return policies
}
