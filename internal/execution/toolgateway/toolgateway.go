// Package toolgateway is the outbound boundary between the execution
// pipeline and the external tool adapters it invokes (CRM write, email
// send, task creation, ...). Every adapter call runs through a circuit
// breaker so a failing external system degrades the pipeline's retry
// behavior instead of compounding an outage with retried load.
package toolgateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lifecycleeng/account-engine/pkg/domain/execution"
	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
	"github.com/sony/gobreaker"
)

// Request is the normalized call the gateway makes into an external tool
// after MAP_ACTION_TO_TOOL has resolved an action intent to a concrete
// adapter.
type Request struct {
	ActionType     string
	IdempotencyKey string
	Parameters     map[string]string
}

// Response is the adapter's result on success.
type Response struct {
	ExternalObjectRefs []execution.ExternalObjectRef
	ToolRunRef         string
}

// Invoker is the narrow capability an individual tool adapter exposes.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// Gateway wraps a registry of per-action-type Invokers, each behind its
// own circuit breaker so one failing tool doesn't trip the breaker for
// every other action type.
type Gateway struct {
	invokers  map[string]Invoker
	breakers  map[string]*gobreaker.CircuitBreaker
	breakerCfg gobreaker.Settings
}

// New builds a Gateway. settings configures every per-action-type breaker
// (e.g. trip after 5 consecutive failures, half-open after 30s).
func New(settings gobreaker.Settings) *Gateway {
	return &Gateway{
		invokers: make(map[string]Invoker),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		breakerCfg: settings,
	}
}

// Register binds an Invoker to the action type it handles.
func (g *Gateway) Register(actionType string, inv Invoker) {
	g.invokers[actionType] = inv
	cfg := g.breakerCfg
	cfg.Name = "toolgateway:" + actionType
	g.breakers[actionType] = gobreaker.NewCircuitBreaker(cfg)
}

// Invoke routes req through the breaker bound to its action type. A
// breaker trip surfaces as a TRANSIENT_UPSTREAM EngineError so the
// pipeline's existing retry/backoff policy handles it without special
// casing the breaker's own state.
func (g *Gateway) Invoke(ctx context.Context, req Request) (Response, error) {
	inv, ok := g.invokers[req.ActionType]
	if !ok {
		return Response{}, engerrors.New(engerrors.Config, "no tool adapter registered for action type "+req.ActionType, nil)
	}
	breaker := g.breakers[req.ActionType]

	result, err := breaker.Execute(func() (interface{}, error) {
		return inv.Invoke(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Response{}, engerrors.New(engerrors.TransientUpstream, "tool gateway circuit open for "+req.ActionType, err)
		}
		return Response{}, err
	}
	resp := result.(Response)
	if resp.ToolRunRef == "" {
		// Adapters that don't mint their own run reference (most don't —
		// the upstream API response rarely carries one worth surfacing)
		// get a random one here, purely for correlating gateway logs with
		// the RECORD_OUTCOME ledger entry. Never used for dedup.
		resp.ToolRunRef = uuid.NewString()
	}
	return resp, nil
}

// DefaultSettings returns a circuit-breaker configuration with reasonable
// thresholds for an internal automation pipeline: trip once 5 consecutive
// requests fail, stay open 30s before probing again.
func DefaultSettings() gobreaker.Settings {
	return gobreaker.Settings{
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}
