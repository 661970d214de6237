// Package autonomy implements the auto-approval gate (C13) that decides
// whether an ActionIntent may proceed straight to execution or must wait
// for an explicit ACTION_APPROVED event. A cost-gate/policy-check pattern
// narrowed to a single yes/no decision per action type, with a per-tenant
// override that forces approval, rather than a cost ledger.
package autonomy

import (
	"github.com/lifecycleeng/account-engine/pkg/domain/decision"
)

// Policy is a single auto-approval rule: an action type is auto-approved
// if it appears in AutoApprovedActionTypes, subject to the per-tenant
// override list taking precedence over the default.
type Policy struct {
	AutoApprovedActionTypes map[string]bool
	RequireApprovalTenants  map[string]bool // tenants that always require manual approval, regardless of action type
}

// DefaultPolicy auto-approves read-adjacent, low-risk actions (notes,
// internal task creation) and requires approval for anything that writes
// to a customer-facing system.
func DefaultPolicy() Policy {
	return Policy{
		AutoApprovedActionTypes: map[string]bool{
			"CREATE_INTERNAL_TASK": true,
			"LOG_CRM_NOTE":         true,
		},
		RequireApprovalTenants: map[string]bool{},
	}
}

// Gate decides whether intent may proceed to VALIDATE_PREFLIGHT without
// waiting on an external ACTION_APPROVED event.
type Gate struct {
	policy Policy
}

// New builds a Gate against policy.
func New(policy Policy) *Gate {
	return &Gate{policy: policy}
}

// Decide returns true if intent is auto-approved.
func (g *Gate) Decide(intent decision.ActionIntent) bool {
	if g.policy.RequireApprovalTenants[intent.Tenant] {
		return false
	}
	return g.policy.AutoApprovedActionTypes[intent.ActionType]
}
