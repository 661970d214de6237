// Package decision defines the decision-scheduling and action-intent
// records.
package decision

import "time"

// RunState is the per (tenant, account, window) mutable state the cost
// gate consults before dispatching RUN_DECISION.
type RunState struct {
	Tenant     string
	AccountID  string
	Window     string
	LastRunAt  *time.Time
	RunCount   int
}

// ActionIntent is the proposal produced by the (out-of-scope) decision
// layer and consumed by the execution pipeline.
type ActionIntent struct {
	ActionIntentID string
	Tenant         string
	AccountID      string
	ActionType     string
	ActionVersion  string
	Parameters     map[string]string
	DecisionTraceID string
	CreatedAt      time.Time
}

// CostGateReason enumerates why the decision scheduler did or didn't
// dispatch a RUN_DECISION (mirrors budget.ScheduleReason's shape).
type CostGateReason string

const (
	ReasonDispatched         CostGateReason = "DISPATCHED"
	ReasonRateLimit          CostGateReason = "RATE_LIMIT"
	ReasonDuplicateCorrelation CostGateReason = "DUPLICATE_CORRELATION_ID"
	ReasonBudgetExceeded     CostGateReason = "BUDGET_EXCEEDED"
	ReasonDeferred           CostGateReason = "DEFERRED"
)

// GateResult is the decision scheduler's dispatch decision.
type GateResult struct {
	Dispatched bool
	Reason     CostGateReason
	RetryAfter *time.Duration // set when Reason == ReasonDeferred
}
