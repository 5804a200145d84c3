package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ApprovalStatus is the closed set of ApprovalRequest states.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
)

// ApprovalMode determines the approval count required out of len(Approvers).
type ApprovalMode string

const (
	ApprovalSingle    ApprovalMode = "single"
	ApprovalMajority  ApprovalMode = "majority"
	ApprovalUnanimous ApprovalMode = "unanimous"
)

func requiredCount(mode ApprovalMode, total int) int {
	switch mode {
	case ApprovalSingle:
		return 1
	case ApprovalMajority:
		return total/2 + 1
	case ApprovalUnanimous:
		return total
	default:
		return total
	}
}

// ApprovalRequest tracks one pending or resolved approval gate.
type ApprovalRequest struct {
	ApprovalID       string
	ActionName       string
	Input            map[string]interface{}
	RequesterID      string
	Approvers        []string
	Status           ApprovalStatus
	CreatedAt        time.Time
	ExpiresAt        time.Time
	ApprovalsReceived []string
	ApprovalsRequired int
}

func (a *ApprovalRequest) expired() bool { return time.Now().After(a.ExpiresAt) }

func (a *ApprovalRequest) alreadyApprovedBy(approver string) bool {
	for _, id := range a.ApprovalsReceived {
		if id == approver {
			return true
		}
	}
	return false
}

func (a *ApprovalRequest) isApprover(id string) bool {
	for _, approver := range a.Approvers {
		if approver == id {
			return true
		}
	}
	return false
}

// ApprovalStore is the in-memory approval lifecycle (spec §4.6):
// request_approval / grant_approval / check_approval_status, keyed by
// a deterministic hash of action name and critical input.
type ApprovalStore struct {
	mu       sync.Mutex
	requests map[string]*ApprovalRequest
}

// NewApprovalStore constructs an empty store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{requests: make(map[string]*ApprovalRequest)}
}

// ApprovalKey computes sha256(action_name || canonical(critical_input))[:16]
// as hex, matching spec §4.6's deterministic key derivation.
func ApprovalKey(actionName string, criticalInput map[string]interface{}) string {
	keys := make([]string, 0, len(criticalInput))
	for k := range criticalInput {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonical string
	for _, k := range keys {
		canonical += fmt.Sprintf("%s=%v;", k, criticalInput[k])
	}

	sum := sha256.Sum256([]byte(actionName + "|" + canonical))
	return hex.EncodeToString(sum[:])[:16]
}

// RequestApproval creates a pending approval, expiring in 24h unless ttl
// overrides it (ttl<=0 keeps the default).
func (s *ApprovalStore) RequestApproval(actionName string, input map[string]interface{}, requesterID string, approvers []string, mode ApprovalMode, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	key := ApprovalKey(actionName, input)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[key] = &ApprovalRequest{
		ApprovalID:        key,
		ActionName:        actionName,
		Input:             input,
		RequesterID:       requesterID,
		Approvers:         approvers,
		Status:            ApprovalPending,
		CreatedAt:         time.Now().UTC(),
		ExpiresAt:         time.Now().UTC().Add(ttl),
		ApprovalsRequired: requiredCount(mode, len(approvers)),
	}
	return key
}

// GrantApproval records approver's grant, using compare-and-set
// semantics on ApprovalsReceived to avoid double-counting a concurrent
// grant by the same approver.
func (s *ApprovalStore) GrantApproval(approvalID, approverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[approvalID]
	if !ok {
		return fmt.Errorf("security: no such approval request %s", approvalID)
	}
	if !req.isApprover(approverID) {
		return fmt.Errorf("security: %s is not an approver for %s", approverID, approvalID)
	}
	if req.alreadyApprovedBy(approverID) {
		return fmt.Errorf("security: %s already granted approval for %s", approverID, approvalID)
	}

	req.ApprovalsReceived = append(req.ApprovalsReceived, approverID)
	if len(req.ApprovalsReceived) >= req.ApprovalsRequired {
		req.Status = ApprovalApproved
	}
	return nil
}

// CheckApprovalStatus reports whether action/input has a matching,
// unexpired, approved record.
func (s *ApprovalStore) CheckApprovalStatus(actionName string, input map[string]interface{}) bool {
	key := ApprovalKey(actionName, input)

	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[key]
	if !ok {
		return false
	}
	return req.Status == ApprovalApproved && !req.expired()
}

// Get returns the approval request by id, or nil.
func (s *ApprovalStore) Get(approvalID string) *ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[approvalID]
}

// Cleanup drops expired pending requests, returning the count removed.
func (s *ApprovalStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, req := range s.requests {
		if req.expired() && req.Status == ApprovalPending {
			delete(s.requests, id)
			removed++
		}
	}
	return removed
}
