// Package execution defines the execution-pipeline records: attempts,
// outcomes, and the external-write dedupe reservation.
package execution

import (
	"strconv"
	"time"
)

// Stage enumerates the execution pipeline's states.
type Stage string

const (
	StageStartExecution    Stage = "START_EXECUTION"
	StageValidatePreflight Stage = "VALIDATE_PREFLIGHT"
	StageMapActionToTool   Stage = "MAP_ACTION_TO_TOOL"
	StageInvokeTool        Stage = "INVOKE_TOOL"
	StageCompensateAction  Stage = "COMPENSATE_ACTION"
	StageRecordOutcome     Stage = "RECORD_OUTCOME"
	StageRecordFailure     Stage = "RECORD_FAILURE"
)

// CompensationStrategy is declared per action type in the registry.
type CompensationStrategy string

const (
	CompensationNone      CompensationStrategy = "NONE"
	CompensationAutomatic CompensationStrategy = "AUTOMATIC"
)

// CompensationStatus is the outcome's compensation lifecycle.
type CompensationStatus string

const (
	CompensationStatusNone      CompensationStatus = "NONE"
	CompensationStatusPending   CompensationStatus = "PENDING"
	CompensationStatusCompleted CompensationStatus = "COMPLETED"
	CompensationStatusFailed    CompensationStatus = "FAILED"
)

// OutcomeStatus is the terminal status of an execution attempt.
type OutcomeStatus string

const (
	StatusSucceeded OutcomeStatus = "SUCCEEDED"
	StatusFailed    OutcomeStatus = "FAILED"
	StatusCancelled OutcomeStatus = "CANCELLED"
	StatusRetrying  OutcomeStatus = "RETRYING"
)

// ExternalObjectRef is a reference to an object created/mutated by a tool
// invocation in an external system — what compensation, if any, must undo.
type ExternalObjectRef struct {
	System   string
	ObjectID string
}

// Attempt is the per-action_intent_id lock row.
type Attempt struct {
	ActionIntentID string
	AttemptCount   int
	ReservedAt     time.Time
	ExpiresAt      time.Time
}

// Outcome is the terminal record of an execution attempt.
type Outcome struct {
	ActionIntentID     string
	AttemptCount       int
	Status             OutcomeStatus
	ExternalObjectRefs []ExternalObjectRef
	ToolRunRef         string
	ErrorKind          string
	ErrorMessage       string
	CompensationStatus CompensationStatus
	StartedAt          time.Time
	CompletedAt        time.Time
}

// ExternalWriteDedupeKey reserves (tenant, idempotency_key) at the adapter
// boundary so a retried attempt cannot repeat an external write.
type ExternalWriteDedupeKey struct {
	Tenant         string
	IdempotencyKey string
	ReservedAt     time.Time
	CachedOutcome  *Outcome
}

// DeriveIdempotencyKey computes the deterministic idempotency key for an
// external write from (action_intent_id, attempt_count).
func DeriveIdempotencyKey(actionIntentID string, attemptCount int) string {
	return actionIntentID + "#" + strconv.Itoa(attemptCount)
}
