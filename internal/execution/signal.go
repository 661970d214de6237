package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/decision"
	domexec "github.com/lifecycleeng/account-engine/pkg/domain/execution"
	domevidence "github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

// execOutcomeContent is hashed to build the synthetic evidence ref an
// execution signal carries — there is no pulled evidence payload behind
// an execution outcome, only the outcome itself.
type execOutcomeContent struct {
	ActionIntentID string    `json:"action_intent_id"`
	CompletedAt    time.Time `json:"completed_at"`
	Status         string    `json:"status"`
}

// emitSignal writes the terminal ACTION_EXECUTED/ACTION_FAILED record
// (C12): the evidence ref is synthetic — content-addressed over the
// outcome's own identity rather than over a pulled payload — and the
// signal bypasses the lifecycle read-model coupling.
func (p *Pipeline) emitSignal(ctx context.Context, intent decision.ActionIntent, outcome domexec.Outcome, t signal.Type, now time.Time) {
	if p.signals == nil {
		return
	}
	content := execOutcomeContent{
		ActionIntentID: intent.ActionIntentID,
		CompletedAt:    outcome.CompletedAt,
		Status:         string(outcome.Status),
	}
	payload, err := json.Marshal(content)
	if err != nil {
		return
	}
	ref := domevidence.Ref{
		URI:           fmt.Sprintf("execution://%s/%s/%s", intent.Tenant, intent.AccountID, intent.ActionIntentID),
		SHA256:        domevidence.Hash(payload),
		CapturedAt:    now,
		SchemaVersion: "execution_outcome/v1",
	}

	windowKey := intent.ActionIntentID
	confidence := 1.0
	sev := signal.SeverityMedium
	if outcome.Status == domexec.StatusFailed {
		sev = signal.SeverityHigh
	}
	s := signal.Signal{
		SignalID:         signal.SignalID(intent.Tenant, intent.AccountID, t, windowKey, ref.SHA256),
		Tenant:           intent.Tenant,
		AccountID:        intent.AccountID,
		Type:             t,
		Status:           signal.Active,
		WindowKey:        windowKey,
		DedupeKey:        signal.DedupeKey(intent.AccountID, t, windowKey, ref.SHA256),
		Confidence:       confidence,
		ConfidenceSource: signal.SourceDirect,
		Severity:         sev,
		EvidenceRef:      ref,
		DetectorVersion:  "execution_pipeline/v1",
		Context:          map[string]string{"action_type": intent.ActionType, "action_intent_id": intent.ActionIntentID},
		Metadata:         map[string]string{},
		TraceID:          intent.DecisionTraceID,
		CreatedAt:        now,
		InferenceActive:  true,
	}
	_, _ = p.signals.EmitExecutionSignal(ctx, s)
}
