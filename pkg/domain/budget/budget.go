// Package budget defines the pull-budget config/state rows and the pull
// job/idempotency records.
package budget

import "time"

// Key identifies a budget bucket: (tenant, date, optional connector).
// An empty Connector means the tenant-wide bucket.
type Key struct {
	Tenant    string
	Date      string // YYYY-MM-DD, the UTC calendar day
	Connector string // empty = tenant-wide
}

// State is the mutable consumption row for a Key.
type State struct {
	Key            Key
	UnitsConsumed  int
	PullCount      int
}

// Depth is a connector pull's depth class.
type Depth string

const (
	Shallow Depth = "SHALLOW"
	Deep    Depth = "DEEP"
)

// Job is a scheduled, idempotent intent to poll a connector.
type Job struct {
	PullJobID       string
	Tenant          string
	AccountID       string
	Connector       string
	Depth           Depth
	DepthUnits      int
	ScheduledAt     time.Time
	CorrelationID   string
	BudgetRemaining int
}

// ScheduleReason enumerates why schedule() did or didn't place a job.
type ScheduleReason string

const (
	ReasonScheduled             ScheduleReason = "SCHEDULED"
	ReasonRateLimit             ScheduleReason = "RATE_LIMIT"
	ReasonDuplicatePullJobID    ScheduleReason = "DUPLICATE_PULL_JOB_ID"
	ReasonBudgetExceeded        ScheduleReason = "BUDGET_EXCEEDED"
)

// ScheduleResult is schedule()'s return value.
type ScheduleResult struct {
	Scheduled bool
	Reason    ScheduleReason
	Job       *Job
}
