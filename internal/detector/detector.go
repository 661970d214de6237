// Package detector implements the detector set (C4): pure functions from
// an evidence snapshot (plus the account's prior lifecycle state) to zero
// or more signals. No network, no semantic/LLM analysis — structural
// threshold checks only, composed as a table of handlers rather than a
// class hierarchy.
package detector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
)

// Handler is the common capability every detector exposes.
// prior is never nil: the caller passes account.NewState(ref) for an
// account with no prior history, so every detector can read prior.Ref
// (tenant, account id) and prior.Lifecycle unconditionally.
type Handler interface {
	Version() string
	SupportedTypes() []signal.Type
	Detect(ctx context.Context, ref evidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error)
}

// Registry dispatches to the handler registered for a given evidence kind.
// Handlers are registered by name (the entity type the evidence carries),
// not by a type switch on a class hierarchy.
type Registry struct {
	byEntityType map[string]Handler
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byEntityType: make(map[string]Handler)}
}

// Register binds a handler to the entity type of evidence it consumes.
func (r *Registry) Register(entityType string, h Handler) {
	r.byEntityType[entityType] = h
}

// Detect looks up the handler registered for entityType and runs it.
// Returns an INVARIANT error if no handler is registered.
func (r *Registry) Detect(ctx context.Context, entityType string, ref evidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error) {
	h, ok := r.byEntityType[entityType]
	if !ok {
		return nil, engerrors.Invariantf("detector", "no detector registered for entity type %q", entityType)
	}
	return h.Detect(ctx, ref, payload, prior)
}

// verifyAndDecode checks the evidence hash and JSON-decodes payload into v.
// Every detector MUST verify the SHA-256 before analysis; a
// mismatch is fatal to the invocation.
func verifyAndDecode(ref evidence.Ref, payload []byte, v interface{}) error {
	if err := evidence.Verify(ref, payload); err != nil {
		return engerrors.New(engerrors.Invariant, "verify evidence before detection", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return engerrors.New(engerrors.Validation, "decode evidence payload", err)
	}
	return nil
}

// newSignal fills in the deterministic id/dedupe fields common to every
// detector output.
func newSignal(tenant, accountID string, t signal.Type, windowKey string, ref evidence.Ref, confidence float64, src signal.ConfidenceSource, sev signal.Severity, ttlDays *int, detectorVersion string, now time.Time) signal.Signal {
	dedupeKey := signal.DedupeKey(accountID, t, windowKey, ref.SHA256)
	return signal.Signal{
		SignalID:         signal.SignalID(tenant, accountID, t, windowKey, ref.SHA256),
		Tenant:           tenant,
		AccountID:        accountID,
		Type:             t,
		Status:           signal.Active,
		WindowKey:        windowKey,
		DedupeKey:        dedupeKey,
		Confidence:       confidence,
		ConfidenceSource: src,
		Severity:         sev,
		TTLDays:          ttlDays,
		EvidenceRef:      ref,
		DetectorVersion:  detectorVersion,
		Context:          map[string]string{},
		Metadata:         map[string]string{},
		CreatedAt:        now,
		InferenceActive:  true,
	}
}

// dateWindow buckets a time to a day string, used as the window_key
// component for signal types whose dedupe boundary is "one per day".
func dateWindow(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func capAt(f float64, max float64) float64 {
	if f > max {
		return max
	}
	return f
}
