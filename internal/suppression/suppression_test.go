package suppression

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

type recordingWriter struct {
	updated []string
	failOn  map[string]bool
}

func (w *recordingWriter) UpdateStatus(_ context.Context, _ string, signalID string, _ signal.Status, _ string, _ time.Time) (signal.Signal, error) {
	if w.failOn[signalID] {
		return signal.Signal{}, errors.New("boom")
	}
	w.updated = append(w.updated, signalID)
	return signal.Signal{SignalID: signalID}, nil
}

func activeSignal(t signal.Type, id string) signal.Signal {
	return signal.Signal{SignalID: id, Type: t, Status: signal.Active}
}

func TestComputeAppliesTransitionTable(t *testing.T) {
	e := New(nil, nil)
	active := []signal.Signal{
		activeSignal(signal.AccountActivationDetected, "s1"),
		activeSignal(signal.NoEngagementPresent, "s2"),
		activeSignal(signal.DiscoveryProgressStalled, "s3"),
	}

	set := e.Compute("t1", "a1", "trace-1", account.Prospect, account.Suspect, active)
	if len(set.SignalIDs) != 2 {
		t.Fatalf("expected 2 signals suppressed by the PROSPECT->SUSPECT transition, got %d: %v", len(set.SignalIDs), set.SignalIDs)
	}
	for _, id := range set.SignalIDs {
		if id == "s3" {
			t.Fatal("DISCOVERY_PROGRESS_STALLED is not in the transition table and must not be suppressed")
		}
	}
}

func TestComputeFirstEngagementPrecedenceOverridesTable(t *testing.T) {
	e := New(nil, nil)
	active := []signal.Signal{
		activeSignal(signal.FirstEngagementOccurred, "s1"),
		activeSignal(signal.NoEngagementPresent, "s2"),
	}

	// No entry in the transition table for CUSTOMER->CUSTOMER, but
	// FIRST_ENGAGEMENT_OCCURRED's presence must still force
	// NO_ENGAGEMENT_PRESENT to be suppressed regardless of transition.
	set := e.Compute("t1", "a1", "trace-1", account.Customer, account.Customer, active)
	found := false
	for _, id := range set.SignalIDs {
		if id == "s2" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected NO_ENGAGEMENT_PRESENT to be suppressed under first-engagement precedence")
	}
	if set.Reason != "first_engagement_precedence" {
		t.Fatalf("expected first_engagement_precedence reason, got %s", set.Reason)
	}
}

func TestApplyAggregatesFailuresWithoutAbortingBatch(t *testing.T) {
	writer := &recordingWriter{failOn: map[string]bool{"s2": true}}
	e := New(writer, nil)
	set := Set{Tenant: "t1", AccountID: "a1", Reason: "test", SignalIDs: []string{"s1", "s2", "s3"}}

	err := e.Apply(context.Background(), set, time.Now())
	if err == nil {
		t.Fatal("expected an aggregated error since s2 failed")
	}
	if len(writer.updated) != 2 {
		t.Fatalf("expected s1 and s3 to still be applied despite s2 failing, got %v", writer.updated)
	}
}
