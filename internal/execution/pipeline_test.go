package execution

import (
	"context"
	"testing"
	"time"

	"github.com/lifecycleeng/account-engine/internal/execution/toolgateway"
	"github.com/lifecycleeng/account-engine/pkg/clock"
	"github.com/lifecycleeng/account-engine/pkg/config"
	"github.com/lifecycleeng/account-engine/pkg/domain/decision"
	domexec "github.com/lifecycleeng/account-engine/pkg/domain/execution"
	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

type fakeInvoker struct {
	failTimes int
	calls     int
}

func (f *fakeInvoker) Invoke(_ context.Context, req toolgateway.Request) (toolgateway.Response, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return toolgateway.Response{}, engerrors.New(engerrors.TransientUpstream, "upstream hiccup", nil)
	}
	return toolgateway.Response{ExternalObjectRefs: []domexec.ExternalObjectRef{{System: "crm", ObjectID: "obj-1"}}}, nil
}

type fakeSignalWriter struct {
	emitted []signal.Signal
}

func (f *fakeSignalWriter) EmitExecutionSignal(_ context.Context, s signal.Signal) (signal.Signal, error) {
	f.emitted = append(f.emitted, s)
	return s, nil
}

func testRetry() config.RetryPolicy {
	return config.RetryPolicy{Attempts: 3, InitialBackoff: time.Millisecond, Factor: 1.0}
}

func TestExecuteSucceedsAfterTransientRetries(t *testing.T) {
	gw := toolgateway.New(toolgateway.DefaultSettings())
	inv := &fakeInvoker{failTimes: 2}
	gw.Register("LOG_CRM_NOTE", inv)

	writer := &fakeSignalWriter{}
	registry := map[string]ActionSpec{"LOG_CRM_NOTE": {Compensation: domexec.CompensationNone}}
	p := New(gw, registry, nil, testRetry(), clock.Fixed{At: time.Now()}, nil, writer, nil)

	intent := decision.ActionIntent{ActionIntentID: "ai-1", Tenant: "t1", AccountID: "a1", ActionType: "LOG_CRM_NOTE"}
	outcome, err := p.Execute(context.Background(), intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != domexec.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED after transient retries, got %s", outcome.Status)
	}
	if inv.calls != 3 {
		t.Fatalf("expected 3 invoke attempts (2 failures + 1 success), got %d", inv.calls)
	}
	if len(writer.emitted) != 1 || writer.emitted[0].Type != signal.ActionExecuted {
		t.Fatalf("expected an ACTION_EXECUTED signal to be emitted, got %+v", writer.emitted)
	}
}

func TestExecuteFailsOnPermanentUpstreamWithoutRetrying(t *testing.T) {
	gw := toolgateway.New(toolgateway.DefaultSettings())
	gw.Register("LOG_CRM_NOTE", invokerFunc(func(context.Context, toolgateway.Request) (toolgateway.Response, error) {
		return toolgateway.Response{}, engerrors.New(engerrors.PermanentUpstream, "rejected", nil)
	}))

	writer := &fakeSignalWriter{}
	registry := map[string]ActionSpec{"LOG_CRM_NOTE": {}}
	p := New(gw, registry, nil, testRetry(), clock.Fixed{At: time.Now()}, nil, writer, nil)

	intent := decision.ActionIntent{ActionIntentID: "ai-2", Tenant: "t1", AccountID: "a1", ActionType: "LOG_CRM_NOTE"}
	outcome, err := p.Execute(context.Background(), intent)
	if err == nil {
		t.Fatal("expected a permanent upstream failure to surface as an error")
	}
	if outcome.Status != domexec.StatusFailed {
		t.Fatalf("expected FAILED outcome, got %s", outcome.Status)
	}
	if len(writer.emitted) != 1 || writer.emitted[0].Type != signal.ActionFailed {
		t.Fatalf("expected an ACTION_FAILED signal, got %+v", writer.emitted)
	}
}

func TestExecuteRejectsConcurrentAttemptOnLiveLock(t *testing.T) {
	gw := toolgateway.New(toolgateway.DefaultSettings())
	gw.Register("LOG_CRM_NOTE", &fakeInvoker{})
	registry := map[string]ActionSpec{"LOG_CRM_NOTE": {}}
	fixedNow := time.Now()
	p := New(gw, registry, nil, testRetry(), clock.Fixed{At: fixedNow}, nil, &fakeSignalWriter{}, nil)

	intent := decision.ActionIntent{ActionIntentID: "ai-3", Tenant: "t1", AccountID: "a1", ActionType: "LOG_CRM_NOTE"}

	// Manually hold the lock as if a concurrent attempt is in flight.
	p.mu.Lock()
	p.attempts["ai-3"] = domexec.Attempt{ActionIntentID: "ai-3", AttemptCount: 1, ReservedAt: fixedNow, ExpiresAt: fixedNow.Add(time.Minute)}
	p.mu.Unlock()

	_, err := p.Execute(context.Background(), intent)
	if err == nil {
		t.Fatal("expected a conflict error for an intent with a live attempt lock")
	}
	if !engerrors.IsConditionalConflict(err) {
		t.Fatalf("expected a CONDITIONAL_CONFLICT error, got %v", err)
	}
}

func TestExecuteReusesCachedOutcomeOnRepeatedIdempotencyKey(t *testing.T) {
	gw := toolgateway.New(toolgateway.DefaultSettings())
	inv := &fakeInvoker{}
	gw.Register("LOG_CRM_NOTE", inv)
	registry := map[string]ActionSpec{"LOG_CRM_NOTE": {}}
	p := New(gw, registry, nil, testRetry(), clock.Fixed{At: time.Now()}, nil, &fakeSignalWriter{}, nil)

	intent := decision.ActionIntent{ActionIntentID: "ai-4", Tenant: "t1", AccountID: "a1", ActionType: "LOG_CRM_NOTE"}

	// Pre-seed the dedupe cache with a SUCCEEDED outcome under the
	// idempotency key a fresh intent's first attempt (attempt count 1)
	// derives, so Execute must hit the dedupe cache instead of invoking
	// the external tool.
	idempotencyKey := domexec.DeriveIdempotencyKey("ai-4", 1)
	p.storeOutcome("t1", idempotencyKey, time.Now(), domexec.Outcome{ActionIntentID: "ai-4", Status: domexec.StatusSucceeded})

	outcome, err := p.Execute(context.Background(), intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != domexec.StatusSucceeded {
		t.Fatalf("expected the cached SUCCEEDED outcome to be returned, got %s", outcome.Status)
	}
	if inv.calls != 0 {
		t.Fatalf("expected the external tool not to be re-invoked for a dedupe-cache hit, got %d calls", inv.calls)
	}
}

type invokerFunc func(context.Context, toolgateway.Request) (toolgateway.Response, error)

func (f invokerFunc) Invoke(ctx context.Context, req toolgateway.Request) (toolgateway.Response, error) {
	return f(ctx, req)
}
