package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/clock"
	"github.com/lifecycleeng/account-engine/pkg/evidence"
)

type fakeSource struct {
	name       string
	mode       SyncMode
	batches    [][]Record
	connected  bool
	disconnect bool
	pollErr    error
	connectErr error
	call       int
}

func (f *fakeSource) Name() string   { return f.name }
func (f *fakeSource) Mode() SyncMode { return f.mode }

func (f *fakeSource) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeSource) Disconnect(context.Context) error {
	f.disconnect = true
	return nil
}

func (f *fakeSource) Poll(_ context.Context, state SyncState) (Batch, bool, error) {
	if f.pollErr != nil {
		return Batch{}, false, f.pollErr
	}
	if f.call >= len(f.batches) {
		return Batch{}, false, nil
	}
	records := f.batches[f.call]
	f.call++
	more := f.call < len(f.batches)
	return Batch{Records: records, NextState: SyncState{Tenant: state.Tenant, AccountID: state.AccountID, Connector: f.name, Cursor: "cursor-" + f.name}}, more, nil
}

func newRuntime() *Runtime {
	return New(evidence.NewInMemory(), clock.Fixed{At: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}, 6000, 100)
}

func TestRunConnectsPollsUntilExhaustedThenDisconnects(t *testing.T) {
	src := &fakeSource{
		name: "crm",
		mode: ModeCursor,
		batches: [][]Record{
			{{EntityType: "account", EntityID: "a1", EvidenceID: "e1", Payload: map[string]string{"k": "v1"}}},
			{{EntityType: "account", EntityID: "a1", EvidenceID: "e2", Payload: map[string]string{"k": "v2"}}},
		},
	}
	r := newRuntime()

	result, err := r.Run(context.Background(), "t1", "a1", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !src.connected || !src.disconnect {
		t.Fatal("expected Connect and Disconnect to both be called")
	}
	if result.BatchesWritten != 2 {
		t.Fatalf("expected 2 batches written, got %d", result.BatchesWritten)
	}
	if len(result.Refs) != 2 {
		t.Fatalf("expected 2 evidence refs, got %d", len(result.Refs))
	}
}

func TestRunAdvancesSyncStateOnlyAfterSuccessfulWrite(t *testing.T) {
	src := &fakeSource{
		name: "billing",
		mode: ModeTimestamp,
		batches: [][]Record{
			{{EntityType: "account", EntityID: "a1", EvidenceID: "e1", Payload: "p1"}},
		},
	}
	r := newRuntime()

	if st := r.StateFor("t1", "a1", "billing"); st.Connector != "" {
		t.Fatal("expected no prior sync state before the first run")
	}

	_, err := r.Run(context.Background(), "t1", "a1", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := r.StateFor("t1", "a1", "billing")
	if st.Cursor != "cursor-billing" {
		t.Fatalf("expected sync state to advance to the batch's NextState, got %+v", st)
	}
}

func TestRunDoesNotAdvanceSyncStateOnPollFailure(t *testing.T) {
	src := &fakeSource{name: "support", mode: ModeCursor, pollErr: errors.New("upstream unavailable")}
	r := newRuntime()

	_, err := r.Run(context.Background(), "t1", "a1", src)
	if err == nil {
		t.Fatal("expected the poll failure to surface")
	}
	var connErr *ConnectorError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected a *ConnectorError, got %T", err)
	}
	if connErr.Connector != "support" {
		t.Fatalf("expected the ConnectorError to name the failing connector, got %s", connErr.Connector)
	}
	if !errors.Is(err, src.pollErr) {
		t.Fatal("expected ConnectorError.Unwrap to expose the underlying cause")
	}
	if st := r.StateFor("t1", "a1", "support"); st.Connector != "" {
		t.Fatal("expected sync state to remain unset after a poll failure")
	}
}

func TestRunSurfacesConnectFailureWithoutPolling(t *testing.T) {
	src := &fakeSource{name: "telemetry", mode: ModeTimestamp, connectErr: errors.New("auth rejected")}
	r := newRuntime()

	_, err := r.Run(context.Background(), "t1", "a1", src)
	if err == nil {
		t.Fatal("expected the connect failure to surface")
	}
	if src.call != 0 {
		t.Fatal("expected Poll to never be called when Connect fails")
	}
}

func TestRunStopsWhenABatchReportsNoMorePages(t *testing.T) {
	src := &fakeSource{
		name: "crm",
		mode: ModeCursor,
		batches: [][]Record{
			{{EntityType: "account", EntityID: "a1", EvidenceID: "e1", Payload: "p1"}},
		},
	}
	r := newRuntime()

	result, err := r.Run(context.Background(), "t1", "a1", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BatchesWritten != 1 {
		t.Fatalf("expected exactly 1 batch before the loop stops, got %d", result.BatchesWritten)
	}
}
