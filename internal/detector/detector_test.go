package detector

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

func mustRef(t *testing.T, v interface{}, capturedAt time.Time) (evidence.Ref, []byte) {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	ref := evidence.Ref{
		URI:        "evidence/test/acct-1/ev-1.json",
		SHA256:     evidence.Hash(payload),
		CapturedAt: capturedAt,
	}
	return ref, payload
}

func TestActivationFiresOnlyForProspect(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	ev := ActivationEvidence{TargetListUpdated: true}
	ref, payload := mustRef(t, ev, now)

	prospect := account.NewState(account.Ref{Tenant: "t1", AccountID: "a1"})
	sigs, err := Activation{}.Detect(context.Background(), ref, payload, prospect)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal for a prospect with a trigger, got %d", len(sigs))
	}
	if sigs[0].Type != signal.AccountActivationDetected {
		t.Fatalf("expected ACCOUNT_ACTIVATION_DETECTED, got %s", sigs[0].Type)
	}

	customer := account.NewState(account.Ref{Tenant: "t1", AccountID: "a1"})
	customer.Lifecycle = account.Customer
	sigs, err = Activation{}.Detect(context.Background(), ref, payload, customer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("expected no signal once lifecycle has left PROSPECT, got %d", len(sigs))
	}
}

func TestActivationRejectsTamperedEvidence(t *testing.T) {
	now := time.Now()
	ref, payload := mustRef(t, ActivationEvidence{TargetListUpdated: true}, now)
	payload[0] ^= 0xFF // corrupt the payload after the ref's hash was taken

	prior := account.NewState(account.Ref{Tenant: "t1", AccountID: "a1"})
	if _, err := (Activation{}).Detect(context.Background(), ref, payload, prior); err == nil {
		t.Fatal("expected an error for a payload that doesn't match its evidence hash")
	}
}

func TestActivationSeverityScalesWithTriggerCount(t *testing.T) {
	now := time.Now()
	prior := account.NewState(account.Ref{Tenant: "t1", AccountID: "a1"})

	single, payload := mustRef(t, ActivationEvidence{TargetListUpdated: true}, now)
	sigs, err := Activation{}.Detect(context.Background(), single, payload, prior)
	if err != nil || len(sigs) != 1 {
		t.Fatalf("setup: %v / %d signals", err, len(sigs))
	}
	if sigs[0].Severity != signal.SeverityMedium {
		t.Fatalf("expected medium severity for a single trigger, got %s", sigs[0].Severity)
	}

	double, payload2 := mustRef(t, ActivationEvidence{TargetListUpdated: true, ExternalSignalPresent: true}, now)
	sigs2, err := Activation{}.Detect(context.Background(), double, payload2, prior)
	if err != nil || len(sigs2) != 1 {
		t.Fatalf("setup: %v / %d signals", err, len(sigs2))
	}
	if sigs2[0].Severity != signal.SeverityHigh {
		t.Fatalf("expected high severity once 2+ triggers fire, got %s", sigs2[0].Severity)
	}
}

func TestEngagementFirstEngagementMarkedInactiveOnceCustomer(t *testing.T) {
	now := time.Now()
	ref, payload := mustRef(t, EngagementEvidence{EngagementObserved: true}, now)

	prior := account.NewState(account.Ref{Tenant: "t1", AccountID: "a1"})
	prior.Lifecycle = account.Customer

	sigs, err := Engagement{}.Detect(context.Background(), ref, payload, prior)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].InferenceActive {
		t.Fatal("expected InferenceActive=false for a first engagement on a CUSTOMER account")
	}
}

func TestEngagementNoEngagementRequiresStaleness(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	recent := now.AddDate(0, 0, -5)
	ref, payload := mustRef(t, EngagementEvidence{EngagementObserved: false}, now)

	prior := account.NewState(account.Ref{Tenant: "t1", AccountID: "a1"})
	prior.LastEngagementAt = &recent

	sigs, err := Engagement{}.Detect(context.Background(), ref, payload, prior)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("expected no NO_ENGAGEMENT_PRESENT signal within the staleness window, got %d", len(sigs))
	}

	stale := now.AddDate(0, 0, -45)
	prior.LastEngagementAt = &stale
	sigs, err = Engagement{}.Detect(context.Background(), ref, payload, prior)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 || sigs[0].Type != signal.NoEngagementPresent {
		t.Fatalf("expected a NO_ENGAGEMENT_PRESENT signal once stale, got %+v", sigs)
	}
}

func TestRegistryDispatchesByEntityType(t *testing.T) {
	r := NewRegistry()
	r.Register("crm_account", Activation{})

	now := time.Now()
	ref, payload := mustRef(t, ActivationEvidence{TargetListUpdated: true}, now)
	prior := account.NewState(account.Ref{Tenant: "t1", AccountID: "a1"})

	sigs, err := r.Detect(context.Background(), "crm_account", ref, payload, prior)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal routed through the registry, got %d", len(sigs))
	}

	if _, err := r.Detect(context.Background(), "unknown_entity", ref, payload, prior); err == nil {
		t.Fatal("expected an INVARIANT error for an unregistered entity type")
	}
}
