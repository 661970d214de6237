// Package execution implements the execution pipeline (C11, C12): the
// staged state machine that turns a decision layer's ActionIntent into a
// terminal Outcome, with attempt locking, transient retry with backoff,
// external-write dedupe, and an ACTION_EXECUTED/ACTION_FAILED execution
// signal as its last step. An attempt-lock + idempotent-write pattern
// generalized from a single finance write to an arbitrary tool-adapter call.
package execution

import (
	"context"
	"sync"
	"time"

	"github.com/lifecycleeng/account-engine/internal/execution/toolgateway"
	"github.com/lifecycleeng/account-engine/pkg/clock"
	"github.com/lifecycleeng/account-engine/pkg/config"
	"github.com/lifecycleeng/account-engine/pkg/domain/decision"
	domexec "github.com/lifecycleeng/account-engine/pkg/domain/execution"
	dledger "github.com/lifecycleeng/account-engine/pkg/domain/ledger"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
	"github.com/lifecycleeng/account-engine/pkg/ledger"
	"github.com/lifecycleeng/account-engine/pkg/metrics"
)

// attemptLockTTL bounds how long a START_EXECUTION lock survives a
// crashed/hung attempt before another caller may retry the same intent.
const attemptLockTTL = 5 * time.Minute

// Preflight validates an ActionIntent before any external call is made
// (VALIDATE_PREFLIGHT). A non-nil error aborts the pipeline at RECORD_FAILURE
// without ever reaching INVOKE_TOOL.
type Preflight func(ctx context.Context, intent decision.ActionIntent) error

// ActionSpec is the per-action-type registration MAP_ACTION_TO_TOOL
// consults: which compensation strategy applies if the action partially
// succeeds, and how to undo it.
type ActionSpec struct {
	Compensation domexec.CompensationStrategy
	Compensate   func(ctx context.Context, intent decision.ActionIntent, refs []domexec.ExternalObjectRef) error
}

// ExecutionSignalWriter is the narrow signalstore capability the pipeline
// emits ACTION_EXECUTED/ACTION_FAILED signals through.
type ExecutionSignalWriter interface {
	EmitExecutionSignal(ctx context.Context, s signal.Signal) (signal.Signal, error)
}

// Pipeline runs Execute.
type Pipeline struct {
	mu       sync.Mutex
	attempts map[string]domexec.Attempt
	dedupe   map[string]domexec.ExternalWriteDedupeKey // key: tenant + "|" + idempotency_key

	gateway   *toolgateway.Gateway
	registry  map[string]ActionSpec
	preflight Preflight
	retry     config.RetryPolicy
	clock     clock.Clock
	ledger    ledger.Ledger
	signals   ExecutionSignalWriter
	metrics   *metrics.Registry
}

// New builds a Pipeline. preflight may be nil (no-op validation).
func New(gw *toolgateway.Gateway, registry map[string]ActionSpec, preflight Preflight, retry config.RetryPolicy, c clock.Clock, led ledger.Ledger, signals ExecutionSignalWriter, m *metrics.Registry) *Pipeline {
	if preflight == nil {
		preflight = func(context.Context, decision.ActionIntent) error { return nil }
	}
	return &Pipeline{
		attempts:  make(map[string]domexec.Attempt),
		dedupe:    make(map[string]domexec.ExternalWriteDedupeKey),
		gateway:   gw,
		registry:  registry,
		preflight: preflight,
		retry:     retry,
		clock:     c,
		ledger:    led,
		signals:   signals,
		metrics:   m,
	}
}

// Execute runs the full pipeline for intent: START_EXECUTION ->
// VALIDATE_PREFLIGHT -> MAP_ACTION_TO_TOOL -> INVOKE_TOOL (with transient
// retry) -> [COMPENSATE_ACTION] -> RECORD_OUTCOME/RECORD_FAILURE.
func (p *Pipeline) Execute(ctx context.Context, intent decision.ActionIntent) (domexec.Outcome, error) {
	now := p.clock.Now()

	attempt, isNew := p.startExecution(intent.ActionIntentID, now)
	if !isNew {
		// A live lock already covers this intent: the caller lost the race
		// to a concurrent retry of the same action. Not an error — the
		// other attempt owns the outcome.
		return domexec.Outcome{}, engerrors.New(engerrors.ConditionalConflict, "execution attempt already in flight for "+intent.ActionIntentID, nil)
	}

	if err := p.preflight(ctx, intent); err != nil {
		return p.recordFailure(ctx, intent, attempt, now, engerrors.New(engerrors.Validation, "preflight validation failed", err), nil)
	}

	spec, ok := p.registry[intent.ActionType]
	if !ok {
		return p.recordFailure(ctx, intent, attempt, now, engerrors.New(engerrors.Config, "no action spec registered for "+intent.ActionType, nil), nil)
	}

	idempotencyKey := domexec.DeriveIdempotencyKey(intent.ActionIntentID, attempt.AttemptCount)
	if cached, ok := p.cachedOutcome(intent.Tenant, idempotencyKey); ok {
		return *cached, nil
	}

	refs, toolRunRef, err := p.invokeWithRetry(ctx, intent, idempotencyKey)
	if err != nil {
		if spec.Compensation == domexec.CompensationAutomatic && len(refs) > 0 && spec.Compensate != nil {
			_ = p.compensate(ctx, intent, spec, refs)
		}
		return p.recordFailure(ctx, intent, attempt, now, err, refs)
	}

	return p.recordOutcome(ctx, intent, attempt, now, refs, toolRunRef, idempotencyKey)
}

// startExecution conditionally inserts the attempt lock: a fresh intent id
// gets attempt 1; an
// intent whose prior lock has expired gets attempt N+1; a live lock is
// reported back as "not new" so the caller treats it as a lost race.
func (p *Pipeline) startExecution(actionIntentID string, now time.Time) (domexec.Attempt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.attempts[actionIntentID]
	if ok && now.Before(existing.ExpiresAt) {
		return existing, false
	}
	next := domexec.Attempt{
		ActionIntentID: actionIntentID,
		AttemptCount:   existing.AttemptCount + 1,
		ReservedAt:     now,
		ExpiresAt:      now.Add(attemptLockTTL),
	}
	p.attempts[actionIntentID] = next
	return next, true
}

func (p *Pipeline) cachedOutcome(tenant, idempotencyKey string) (*domexec.Outcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.dedupe[tenant+"|"+idempotencyKey]
	if !ok || d.CachedOutcome == nil {
		return nil, false
	}
	return d.CachedOutcome, true
}

func (p *Pipeline) storeOutcome(tenant, idempotencyKey string, now time.Time, outcome domexec.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dedupe[tenant+"|"+idempotencyKey] = domexec.ExternalWriteDedupeKey{
		Tenant: tenant, IdempotencyKey: idempotencyKey, ReservedAt: now, CachedOutcome: &outcome,
	}
}

// invokeWithRetry runs INVOKE_TOOL, retrying only TRANSIENT_UPSTREAM
// failures with the configured exponential backoff.
func (p *Pipeline) invokeWithRetry(ctx context.Context, intent decision.ActionIntent, idempotencyKey string) ([]domexec.ExternalObjectRef, string, error) {
	backoff := p.retry.InitialBackoff
	var lastErr error
	attempts := p.retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		resp, err := p.gateway.Invoke(ctx, toolgateway.Request{
			ActionType:     intent.ActionType,
			IdempotencyKey: idempotencyKey,
			Parameters:     intent.Parameters,
		})
		if err == nil {
			return resp.ExternalObjectRefs, resp.ToolRunRef, nil
		}
		lastErr = err
		if !engerrors.IsTransient(err) {
			return nil, "", err
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * p.retry.Factor)
		}
	}
	return nil, "", lastErr
}

func (p *Pipeline) compensate(ctx context.Context, intent decision.ActionIntent, spec ActionSpec, refs []domexec.ExternalObjectRef) error {
	return spec.Compensate(ctx, intent, refs)
}

func (p *Pipeline) recordOutcome(ctx context.Context, intent decision.ActionIntent, attempt domexec.Attempt, startedAt time.Time, refs []domexec.ExternalObjectRef, toolRunRef, idempotencyKey string) (domexec.Outcome, error) {
	completedAt := p.clock.Now()
	outcome := domexec.Outcome{
		ActionIntentID:     intent.ActionIntentID,
		AttemptCount:       attempt.AttemptCount,
		Status:             domexec.StatusSucceeded,
		ExternalObjectRefs: refs,
		ToolRunRef:         toolRunRef,
		CompensationStatus: domexec.CompensationStatusNone,
		StartedAt:          startedAt,
		CompletedAt:        completedAt,
	}
	p.storeOutcome(intent.Tenant, idempotencyKey, completedAt, outcome)
	p.emitSignal(ctx, intent, outcome, signal.ActionExecuted, completedAt)
	if p.metrics != nil {
		p.metrics.ExecutionOutcomes.WithLabelValues(intent.Tenant, intent.ActionType, string(outcome.Status)).Inc()
	}
	if err := p.appendLedger(intent, outcome, completedAt); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (p *Pipeline) recordFailure(ctx context.Context, intent decision.ActionIntent, attempt domexec.Attempt, startedAt time.Time, cause error, refs []domexec.ExternalObjectRef) (domexec.Outcome, error) {
	completedAt := p.clock.Now()
	kind := "INTERNAL"
	if ee, ok := cause.(*engerrors.EngineError); ok {
		kind = string(ee.Kind)
	}
	compStatus := domexec.CompensationStatusNone
	if len(refs) > 0 {
		compStatus = domexec.CompensationStatusCompleted
	}
	outcome := domexec.Outcome{
		ActionIntentID:     intent.ActionIntentID,
		AttemptCount:       attempt.AttemptCount,
		Status:             domexec.StatusFailed,
		ExternalObjectRefs: refs,
		ErrorKind:          kind,
		ErrorMessage:       cause.Error(),
		CompensationStatus: compStatus,
		StartedAt:          startedAt,
		CompletedAt:        completedAt,
	}
	p.emitSignal(ctx, intent, outcome, signal.ActionFailed, completedAt)
	if p.metrics != nil {
		p.metrics.ExecutionOutcomes.WithLabelValues(intent.Tenant, intent.ActionType, string(outcome.Status)).Inc()
	}
	if err := p.appendLedger(intent, outcome, completedAt); err != nil {
		return outcome, err
	}
	return outcome, cause
}

// appendLedger surfaces any write failure other than the uniqueness guard
// (already absorbed by Ledger.Append) to the caller rather than discarding
// it — the ledger is the source of truth for audit/replay.
func (p *Pipeline) appendLedger(intent decision.ActionIntent, outcome domexec.Outcome, now time.Time) error {
	if p.ledger == nil {
		return nil
	}
	entry := dledger.Entry{
		Partition: intent.DecisionTraceID,
		Sort:      dledger.SortKey(now, intent.ActionIntentID),
		Tenant:    intent.Tenant,
		AccountID: intent.AccountID,
		TraceID:   intent.DecisionTraceID,
		EventType: dledger.EventExecution,
		Data: map[string]string{
			"action_intent_id": intent.ActionIntentID,
			"action_type":      intent.ActionType,
			"status":           string(outcome.Status),
		},
		EventTime: now,
	}
	if _, err := p.ledger.Append(entry); err != nil {
		if p.metrics != nil {
			p.metrics.LedgerAppendFailures.WithLabelValues(string(dledger.EventExecution)).Inc()
		}
		return engerrors.New(engerrors.Internal, "append ledger entry", err)
	}
	return nil
}
