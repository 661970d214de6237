// Package signalstore implements the signal store and lifecycle read-model
// (C5): the atomic coupling between a created signal and the account's
// active-signal index, the signal state machine, and the single replay
// path, over mutex-guarded in-memory maps. Every write is also appended to
// the ledger, with non-exists-guard Append semantics.
package signalstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	domevidence "github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	dledger "github.com/lifecycleeng/account-engine/pkg/domain/ledger"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
	"github.com/lifecycleeng/account-engine/pkg/evidence"
	"github.com/lifecycleeng/account-engine/pkg/ledger"
	"github.com/lifecycleeng/account-engine/pkg/metrics"
)

// Detector is the narrow capability signalstore needs from the detector
// set to support Replay — it does not import package detector, so
// detectors can depend on signalstore without a cycle.
type Detector interface {
	Version() string
	Detect(ctx context.Context, ref domevidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error)
}

// Filters narrows GetSignalsForAccount.
type Filters struct {
	Status *signal.Status // nil = default ACTIVE
	Types  []signal.Type  // empty = all
	From   *time.Time
	To     *time.Time
}

// SignalWriter, SignalReader, SignalReplayer, ExecutionSignalWriter are the
// narrow capability interfaces callers compose.
type SignalWriter interface {
	CreateSignal(ctx context.Context, s signal.Signal) (signal.Signal, error)
	UpdateStatus(ctx context.Context, tenant, signalID string, to signal.Status, reason string, now time.Time) (signal.Signal, error)
}

type SignalReader interface {
	GetSignalsForAccount(ctx context.Context, ref account.Ref, filters Filters, now time.Time) ([]signal.Signal, error)
	GetAccountState(ctx context.Context, ref account.Ref) (*account.State, error)
	GetSignalByDedupeKey(tenant, dedupeKey string) (signal.Signal, bool)
}

type SignalReplayer interface {
	Replay(ctx context.Context, tenant, signalID string, d Detector, now time.Time) (ReplayResult, error)
}

type ExecutionSignalWriter interface {
	EmitExecutionSignal(ctx context.Context, s signal.Signal) (signal.Signal, error)
}

// ReplayResult is Replay's outcome.
type ReplayResult struct {
	Matched    bool
	Stored     signal.Signal
	Recomputed signal.Signal
}

// Service implements SignalWriter, SignalReader, SignalReplayer, and
// ExecutionSignalWriter against in-memory state guarded by a single mutex
// for the whole Service — the engine's stand-in for a transactional store.
type Service struct {
	mu         sync.Mutex
	signals    map[string]map[string]signal.Signal   // tenant -> signal_id -> signal
	byDedupe   map[string]map[string]string          // tenant -> dedupe_key -> signal_id
	accounts   map[account.Ref]*account.State
	evidence   evidence.Store
	ledger     ledger.Ledger
	metrics    *metrics.Registry
}

// New builds a Service. metrics may be nil.
func New(store evidence.Store, led ledger.Ledger, m *metrics.Registry) *Service {
	return &Service{
		signals:  make(map[string]map[string]signal.Signal),
		byDedupe: make(map[string]map[string]string),
		accounts: make(map[account.Ref]*account.State),
		evidence: store,
		ledger:   led,
		metrics:  m,
	}
}

// CreateSignal implements the atomicity contract: in one
// critical section, insert the signal row (non-exists guard) and update
// the account's active-signal index and last-engagement timestamp.
// A duplicate dedupe key returns the existing row idempotently.
func (s *Service) CreateSignal(ctx context.Context, sig signal.Signal) (signal.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenantSignals := s.tenantSignals(sig.Tenant)
	tenantDedupe := s.tenantDedupe(sig.Tenant)

	if existingID, ok := tenantDedupe[sig.DedupeKey]; ok {
		return tenantSignals[existingID], nil
	}
	if existing, ok := tenantSignals[sig.SignalID]; ok {
		return existing, nil
	}

	tenantSignals[sig.SignalID] = sig
	tenantDedupe[sig.DedupeKey] = sig.SignalID

	// Execution-outcome signals bypass the lifecycle coupling: write the
	// signal row only.
	if sig.Type != signal.ActionExecuted && sig.Type != signal.ActionFailed {
		ref := account.Ref{Tenant: sig.Tenant, AccountID: sig.AccountID}
		st := s.accountStateLocked(ref)
		if sig.Status == signal.Active {
			st.IndexInsert(string(sig.Type), sig.SignalID)
		}
		if sig.Type == signal.FirstEngagementOccurred {
			t := sig.CreatedAt
			st.LastEngagementAt = &t
		}
	}

	if s.metrics != nil {
		s.metrics.SignalsCreated.WithLabelValues(sig.Tenant, string(sig.Type)).Inc()
	}
	if err := s.appendLedger(sig.Tenant, sig.AccountID, sig.TraceID, dledger.EventSignal, map[string]string{
		"signal_id": sig.SignalID, "signal_type": string(sig.Type), "status": string(sig.Status),
	}, []dledger.EvidenceRef{{URI: sig.EvidenceRef.URI, SHA256: sig.EvidenceRef.SHA256}}, sig.CreatedAt); err != nil {
		return signal.Signal{}, err
	}

	return sig, nil
}

// UpdateStatus enforces the one-way state machine and
// synchronizes activeSignalIndex on every transition that leaves or
// enters ACTIVE.
func (s *Service) UpdateStatus(ctx context.Context, tenant, signalID string, to signal.Status, reason string, now time.Time) (signal.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenantSignals := s.tenantSignals(tenant)
	sig, ok := tenantSignals[signalID]
	if !ok {
		return signal.Signal{}, engerrors.New(engerrors.Internal, "update signal status: not found", nil)
	}

	if sig.Status == to {
		return sig, nil // idempotent no-op
	}
	if !signal.CanTransition(sig.Status, to) {
		return signal.Signal{}, engerrors.Invariantf("signalstore", "illegal transition %s->%s for signal %s", sig.Status, to, signalID)
	}

	ref := account.Ref{Tenant: tenant, AccountID: sig.AccountID}
	st := s.accountStateLocked(ref)

	if sig.Status == signal.Active {
		st.IndexRemove(string(sig.Type), signalID)
	}
	if to == signal.Active {
		st.IndexInsert(string(sig.Type), signalID)
	}

	sig.Status = to
	if to == signal.Suppressed {
		sig.Suppression = &signal.SuppressionInfo{Reason: reason, SuppressedAt: now, SuppressedBy: reason}
		if s.metrics != nil {
			s.metrics.SignalsSuppressed.WithLabelValues(tenant, string(sig.Type)).Inc()
		}
	}
	tenantSignals[signalID] = sig

	if err := s.appendLedger(tenant, sig.AccountID, sig.TraceID, dledger.EventTransition, map[string]string{
		"signal_id": signalID, "to_status": string(to), "reason": reason,
	}, nil, now); err != nil {
		return signal.Signal{}, err
	}

	return sig, nil
}

// GetSignalsForAccount answers the filtered signal query. Expiry is applied at
// read time even if an eventual TTL sweep has not run.
func (s *Service) GetSignalsForAccount(ctx context.Context, ref account.Ref, filters Filters, now time.Time) ([]signal.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := signal.Active
	if filters.Status != nil {
		status = *filters.Status
	}
	typeSet := make(map[signal.Type]bool, len(filters.Types))
	for _, t := range filters.Types {
		typeSet[t] = true
	}

	var out []signal.Signal
	for _, sig := range s.tenantSignals(ref.Tenant) {
		if sig.AccountID != ref.AccountID {
			continue
		}
		effective := sig.Status
		if effective == signal.Active && sig.IsExpired(now) {
			effective = signal.Expired
		}
		if effective != status {
			continue
		}
		if len(typeSet) > 0 && !typeSet[sig.Type] {
			continue
		}
		if filters.From != nil && sig.CreatedAt.Before(*filters.From) {
			continue
		}
		if filters.To != nil && sig.CreatedAt.After(*filters.To) {
			continue
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetAccountState returns a copy-free pointer to the live read-model row
// (callers must not mutate it outside this package).
func (s *Service) GetAccountState(ctx context.Context, ref account.Ref) (*account.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountStateLocked(ref), nil
}

// GetSignalByDedupeKey implements a true dedupe index keyed on (tenant,
// dedupe_key) so CreateSignal's idempotent-replay path is a direct lookup
// rather than a linear scan.
func (s *Service) GetSignalByDedupeKey(tenant, dedupeKey string) (signal.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byDedupe[tenant][dedupeKey]
	if !ok {
		return signal.Signal{}, false
	}
	return s.signals[tenant][id], true
}

// EmitExecutionSignal writes an ACTION_EXECUTED/ACTION_FAILED signal,
// bypassing the lifecycle coupling.
func (s *Service) EmitExecutionSignal(ctx context.Context, sig signal.Signal) (signal.Signal, error) {
	return s.CreateSignal(ctx, sig)
}

// Replay reloads the evidence, re-runs the detector with the stored
// lifecycle context, and compares the recomputed signal to the stored one
// on (dedupeKey, windowKey, confidence). A mismatch appends a VALIDATION
// ledger entry and does NOT mutate the stored signal.
func (s *Service) Replay(ctx context.Context, tenant, signalID string, d Detector, now time.Time) (ReplayResult, error) {
	s.mu.Lock()
	stored, ok := s.tenantSignals(tenant)[signalID]
	var priorState *account.State
	if ok {
		ref := account.Ref{Tenant: tenant, AccountID: stored.AccountID}
		priorState = s.accountStateLocked(ref)
	}
	s.mu.Unlock()

	if !ok {
		return ReplayResult{}, engerrors.New(engerrors.Internal, "replay: signal not found", nil)
	}

	payload, err := s.evidence.Get(stored.EvidenceRef)
	if err != nil {
		return ReplayResult{}, engerrors.New(engerrors.Invariant, "replay: evidence read failed", err)
	}

	recomputedSignals, err := d.Detect(ctx, stored.EvidenceRef, payload, priorState)
	if err != nil {
		return ReplayResult{}, engerrors.New(engerrors.Invariant, "replay: detector failed", err)
	}

	var recomputed signal.Signal
	matched := false
	for _, rs := range recomputedSignals {
		if rs.Type != stored.Type {
			continue
		}
		recomputed = rs
		matched = rs.DedupeKey == stored.DedupeKey && rs.WindowKey == stored.WindowKey && rs.Confidence == stored.Confidence
		break
	}

	if !matched {
		if err := s.appendLedger(tenant, stored.AccountID, stored.TraceID, dledger.EventValidation, map[string]string{
			"signal_id": signalID, "reason": "replay_mismatch",
		}, nil, now); err != nil {
			return ReplayResult{}, err
		}
	}

	return ReplayResult{Matched: matched, Stored: stored, Recomputed: recomputed}, nil
}

func (s *Service) tenantSignals(tenant string) map[string]signal.Signal {
	m, ok := s.signals[tenant]
	if !ok {
		m = make(map[string]signal.Signal)
		s.signals[tenant] = m
	}
	return m
}

func (s *Service) tenantDedupe(tenant string) map[string]string {
	m, ok := s.byDedupe[tenant]
	if !ok {
		m = make(map[string]string)
		s.byDedupe[tenant] = m
	}
	return m
}

// accountStateLocked must be called with s.mu held.
func (s *Service) accountStateLocked(ref account.Ref) *account.State {
	st, ok := s.accounts[ref]
	if !ok {
		st = account.NewState(ref)
		s.accounts[ref] = st
	}
	return st
}

// appendLedger surfaces any write failure other than the uniqueness guard
// (which Ledger.Append already absorbs internally) to the caller — the
// ledger is the system's source of truth for audit/replay, so a failed
// write must never be silently dropped.
func (s *Service) appendLedger(tenant, accountID, traceID string, eventType dledger.EventType, data map[string]string, refs []dledger.EvidenceRef, at time.Time) error {
	if s.ledger == nil {
		return nil
	}
	// Writes without a trace id are partitioned by account.
	partition := traceID
	if partition == "" {
		partition = tenant + "/" + accountID
	}
	entry := dledger.Entry{
		Partition:    partition,
		Sort:         dledger.SortKey(at, signalID8(data["signal_id"])),
		Tenant:       tenant,
		AccountID:    accountID,
		TraceID:      traceID,
		EventType:    eventType,
		Data:         data,
		EvidenceRefs: refs,
		EventTime:    at,
	}
	if _, err := s.ledger.Append(entry); err != nil {
		if s.metrics != nil {
			s.metrics.LedgerAppendFailures.WithLabelValues(string(eventType)).Inc()
		}
		return engerrors.New(engerrors.Internal, "append ledger entry", err)
	}
	return nil
}

func signalID8(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
