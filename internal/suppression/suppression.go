// Package suppression implements the single path for deterministic signal
// suppression (C6). Grounded on a rule table keyed by lifecycle
// transition, computed deterministically, applied through the signal
// store's state machine, and logged as one ledger entry per batch.
package suppression

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	dledger "github.com/lifecycleeng/account-engine/pkg/domain/ledger"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
	"github.com/lifecycleeng/account-engine/pkg/ledger"
)

// Transition identifies a lifecycle transition the suppression table is
// keyed by.
type Transition struct {
	From account.LifecycleState
	To   account.LifecycleState
}

// Set is the outcome of compute(): the signals to suppress and why.
type Set struct {
	Tenant    string
	AccountID string
	TraceID   string
	Reason    string
	SignalIDs []string
}

// StatusUpdater is the narrow signalstore capability suppression needs.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, tenant, signalID string, to signal.Status, reason string, now time.Time) (signal.Signal, error)
}

// Engine is the sole path for suppressing signals.
type Engine struct {
	table  map[Transition][]signal.Type
	writer StatusUpdater
	ledger ledger.Ledger
}

// defaultTable encodes the named lifecycle transitions explicitly, plus the
// precedence rule: FIRST_ENGAGEMENT_OCCURRED present implies
// NO_ENGAGEMENT_PRESENT must be suppressed. The precedence rule is applied
// in Compute regardless of the transition table, since it can fire on any
// transition (or none — a same-state re-synthesis).
var defaultTable = map[Transition][]signal.Type{
	{From: account.Prospect, To: account.Suspect}: {
		signal.AccountActivationDetected,
		signal.NoEngagementPresent,
	},
}

// New builds a suppression Engine against the given signal-status writer
// and ledger.
func New(writer StatusUpdater, led ledger.Ledger) *Engine {
	return &Engine{table: defaultTable, writer: writer, ledger: led}
}

// Compute consults the transition table and the FIRST_ENGAGEMENT_OCCURRED
// precedence rule to decide which currently-ACTIVE signals must be
// suppressed.
func (e *Engine) Compute(tenant, accountID, traceID string, from, to account.LifecycleState, active []signal.Signal) Set {
	suppressTypes := make(map[signal.Type]bool)
	for _, t := range e.table[Transition{From: from, To: to}] {
		suppressTypes[t] = true
	}

	hasFirstEngagement := false
	for _, s := range active {
		if s.Type == signal.FirstEngagementOccurred {
			hasFirstEngagement = true
			break
		}
	}
	if hasFirstEngagement {
		suppressTypes[signal.NoEngagementPresent] = true
	}

	var ids []string
	reason := "lifecycle_transition"
	if hasFirstEngagement && len(e.table[Transition{From: from, To: to}]) == 0 {
		reason = "first_engagement_precedence"
	}
	for _, s := range active {
		if suppressTypes[s.Type] {
			ids = append(ids, s.SignalID)
		}
	}

	return Set{Tenant: tenant, AccountID: accountID, TraceID: traceID, Reason: reason, SignalIDs: ids}
}

// Apply transitions every signal in set to SUPPRESSED via the signal
// store's state machine. One signal's state-machine rejection (e.g. it
// was already resolved by the time suppression runs) must not stop the
// rest of the batch from being suppressed, so failures are collected
// rather than short-circuiting the loop.
func (e *Engine) Apply(ctx context.Context, set Set, now time.Time) error {
	var result *multierror.Error
	for _, id := range set.SignalIDs {
		if _, err := e.writer.UpdateStatus(ctx, set.Tenant, id, signal.Suppressed, set.Reason, now); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Log appends a single VALIDATION ledger entry summarizing the whole batch.
// Any write failure other than the uniqueness guard (already absorbed by
// Ledger.Append) is surfaced to the caller rather than swallowed.
func (e *Engine) Log(set Set, now time.Time) error {
	if e.ledger == nil || len(set.SignalIDs) == 0 {
		return nil
	}
	data := map[string]string{"reason": set.Reason}
	for i, id := range set.SignalIDs {
		data["signal_id_"+strconv.Itoa(i)] = id
	}
	entry := dledger.Entry{
		Partition: set.TraceID,
		Sort:      dledger.SortKey(now, set.AccountID),
		Tenant:    set.Tenant,
		AccountID: set.AccountID,
		TraceID:   set.TraceID,
		EventType: dledger.EventValidation,
		Data:      data,
		EventTime: now,
	}
	if _, err := e.ledger.Append(entry); err != nil {
		return err
	}
	return nil
}
