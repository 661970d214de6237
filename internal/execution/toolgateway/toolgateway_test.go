package toolgateway

import (
	"context"
	"testing"
	"time"

	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
	"github.com/sony/gobreaker"
)

type stubInvoker struct {
	resp Response
	err  error
}

func (s stubInvoker) Invoke(context.Context, Request) (Response, error) {
	return s.resp, s.err
}

func tripSettings() gobreaker.Settings {
	return gobreaker.Settings{
		MaxRequests: 1,
		Interval:    0,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}
}

func TestInvokeFillsToolRunRefWhenAdapterOmitsOne(t *testing.T) {
	g := New(DefaultSettings())
	g.Register("LOG_CRM_NOTE", stubInvoker{resp: Response{}})

	resp, err := g.Invoke(context.Background(), Request{ActionType: "LOG_CRM_NOTE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ToolRunRef == "" {
		t.Fatal("expected a generated ToolRunRef when the adapter didn't supply one")
	}
}

func TestInvokePreservesAdapterSuppliedToolRunRef(t *testing.T) {
	g := New(DefaultSettings())
	g.Register("LOG_CRM_NOTE", stubInvoker{resp: Response{ToolRunRef: "crm-run-42"}})

	resp, err := g.Invoke(context.Background(), Request{ActionType: "LOG_CRM_NOTE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ToolRunRef != "crm-run-42" {
		t.Fatalf("expected the adapter's own ToolRunRef to be preserved, got %s", resp.ToolRunRef)
	}
}

func TestInvokeFailsForUnregisteredActionType(t *testing.T) {
	g := New(DefaultSettings())
	_, err := g.Invoke(context.Background(), Request{ActionType: "UNKNOWN_ACTION"})
	if !engerrors.Is(err, engerrors.Config) {
		t.Fatalf("expected a CONFIG error for an unregistered action type, got %v", err)
	}
}

func TestInvokeTranslatesOpenBreakerToTransientUpstream(t *testing.T) {
	g := New(tripSettings())
	failing := stubInvoker{err: engerrors.New(engerrors.PermanentUpstream, "adapter rejected", nil)}
	g.Register("SEND_EMAIL", failing)

	for i := 0; i < 2; i++ {
		if _, err := g.Invoke(context.Background(), Request{ActionType: "SEND_EMAIL"}); err == nil {
			t.Fatal("expected the underlying adapter failure to surface")
		}
	}

	// The breaker should now be open; the next call must fail fast with
	// TRANSIENT_UPSTREAM rather than reaching the adapter again.
	_, err := g.Invoke(context.Background(), Request{ActionType: "SEND_EMAIL"})
	if !engerrors.IsTransient(err) {
		t.Fatalf("expected an open breaker to surface as TRANSIENT_UPSTREAM, got %v", err)
	}
}

func TestInvokeIsolatesBreakersPerActionType(t *testing.T) {
	g := New(tripSettings())
	failing := stubInvoker{err: engerrors.New(engerrors.PermanentUpstream, "adapter rejected", nil)}
	healthy := stubInvoker{resp: Response{ToolRunRef: "ok"}}
	g.Register("SEND_EMAIL", failing)
	g.Register("LOG_CRM_NOTE", healthy)

	for i := 0; i < 2; i++ {
		_, _ = g.Invoke(context.Background(), Request{ActionType: "SEND_EMAIL"})
	}
	// SEND_EMAIL's breaker is now open, but LOG_CRM_NOTE's must be unaffected.
	resp, err := g.Invoke(context.Background(), Request{ActionType: "LOG_CRM_NOTE"})
	if err != nil {
		t.Fatalf("expected LOG_CRM_NOTE's independent breaker to still allow calls, got %v", err)
	}
	if resp.ToolRunRef != "ok" {
		t.Fatalf("expected the healthy adapter's response, got %+v", resp)
	}
}
