// Package connector implements the connector runtime (C3): a uniform
// connect -> poll -> disconnect contract over heterogeneous external
// systems (CRM, billing, support desk, product telemetry), rate limited
// ahead of every outward call and writing content-addressed evidence
// snapshots for the detector set to consume. A connect -> poll -> disconnect
// worker loop, rate limited ahead of every outward call, generalized to a
// registry of pluggable Source implementations.
package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/clock"
	domevidence "github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
	"github.com/lifecycleeng/account-engine/pkg/evidence"
	"golang.org/x/time/rate"
)

// SyncMode is how a connector tracks what it has already ingested.
type SyncMode string

const (
	ModeTimestamp SyncMode = "TIMESTAMP"
	ModeCursor    SyncMode = "CURSOR"
	ModeHybrid    SyncMode = "HYBRID"
)

// SyncState is the persisted watermark a connector advances after every
// successfully emitted batch. For HYBRID mode, Cursor takes
// precedence when both are present — a resumed cursor walk is exact,
// while the timestamp is only a coarse fallback for a cursor a source no
// longer recognizes.
type SyncState struct {
	Tenant        string
	AccountID     string
	Connector     string
	LastSyncAt    *time.Time
	Cursor        string
	LastUpdatedAt time.Time
}

// Record is one new-or-changed item discovered by a poll call, ready to
// be hashed and written to the evidence store.
type Record struct {
	EntityType string
	EntityID   string
	EvidenceID string
	Payload    interface{} // canonically JSON-marshaled for hashing
}

// Batch is one page of records plus the sync-state advance to commit atomically
// with its emission.
type Batch struct {
	Records  []Record
	NextState SyncState
}

// Source is the per-connector implementation: how to authenticate/connect,
// how to fetch one batch given the current sync state, and how to
// disconnect. Runtime owns rate limiting and evidence writing; Source only
// knows how to talk to its upstream.
type Source interface {
	Name() string
	Mode() SyncMode
	Connect(ctx context.Context) error
	Poll(ctx context.Context, state SyncState) (Batch, bool, error) // ok=false: no more pages this cycle
	Disconnect(ctx context.Context) error
}

// ConnectorError is the typed failure the runtime rethrows on any poll
// failure.
type ConnectorError struct {
	Connector string
	Cause     error
}

func (e *ConnectorError) Error() string {
	return "connector " + e.Connector + ": " + e.Cause.Error()
}

func (e *ConnectorError) Unwrap() error { return e.Cause }

// SchemaVersion/DetectorInputVersion are stamped onto every evidence ref
// the runtime writes; connectors don't need to know about versioning.
const (
	evidenceSchemaVersion        = "connector_record/v1"
	evidenceDetectorInputVersion = "v1"
)

// PollResult summarizes one full Run cycle for the caller/event bus.
type PollResult struct {
	Connector    string
	BatchesWritten int
	Refs         []domevidence.Ref
}

// Runtime drives Source instances through connect -> poll loop ->
// disconnect, rate limiting ahead of every Poll call and persisting sync
// state only after a batch's evidence has been durably written.
type Runtime struct {
	store   evidence.Store
	clock   clock.Clock
	states  map[string]SyncState // key: tenant|account|connector
	limiter *rate.Limiter
}

// New builds a Runtime. requestsPerMinute/burst configure the shared
// token-bucket rate limit applied ahead of every Poll call.
func New(store evidence.Store, c clock.Clock, requestsPerMinute float64, burst int) *Runtime {
	return &Runtime{
		store:   store,
		clock:   c,
		states:  make(map[string]SyncState),
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), burst),
	}
}

func stateKey(tenant, accountID, connector string) string {
	return tenant + "|" + accountID + "|" + connector
}

// StateFor returns the last persisted sync state for (tenant, account,
// connector), or a zero-value state if this is the first run.
func (r *Runtime) StateFor(tenant, accountID, connector string) SyncState {
	return r.states[stateKey(tenant, accountID, connector)]
}

// Run executes one full connect -> poll(*) -> disconnect cycle against src
// for (tenant, accountID), writing every discovered record as a content-
// addressed evidence snapshot and advancing sync state only after each
// batch's evidence has been durably written: sync-state writes occur only
// after successful emission of the batch.
func (r *Runtime) Run(ctx context.Context, tenant, accountID string, src Source) (PollResult, error) {
	if err := src.Connect(ctx); err != nil {
		return PollResult{}, &ConnectorError{Connector: src.Name(), Cause: err}
	}
	defer func() { _ = src.Disconnect(ctx) }()

	result := PollResult{Connector: src.Name()}
	state := r.StateFor(tenant, accountID, src.Name())
	if state.Connector == "" {
		state = SyncState{Tenant: tenant, AccountID: accountID, Connector: src.Name()}
	}

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return result, &ConnectorError{Connector: src.Name(), Cause: err}
		}

		batch, more, err := src.Poll(ctx, state)
		if err != nil {
			return result, &ConnectorError{Connector: src.Name(), Cause: err}
		}
		if len(batch.Records) == 0 && !more {
			break
		}

		refs, err := r.writeBatch(batch.Records)
		if err != nil {
			return result, &ConnectorError{Connector: src.Name(), Cause: err}
		}

		// Sync-state only advances once the batch's evidence is durably
		// written — a crash between write and here simply repeats the
		// batch next cycle, which content-addressing makes idempotent.
		batch.NextState.LastUpdatedAt = r.clock.Now()
		r.states[stateKey(tenant, accountID, src.Name())] = batch.NextState
		state = batch.NextState

		result.BatchesWritten++
		result.Refs = append(result.Refs, refs...)

		if !more {
			break
		}
	}
	return result, nil
}

func (r *Runtime) writeBatch(records []Record) ([]domevidence.Ref, error) {
	refs := make([]domevidence.Ref, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return nil, engerrors.New(engerrors.Validation, "canonicalize connector record", err)
		}
		ref, err := r.store.Put(rec.EntityType, rec.EntityID, rec.EvidenceID, payload, evidenceSchemaVersion, evidenceDetectorInputVersion, r.clock.Now())
		if err != nil {
			return nil, engerrors.New(engerrors.Internal, "write connector evidence", err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
