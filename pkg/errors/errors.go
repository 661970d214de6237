// Package errors implements the engine's error taxonomy.
//
// Every error that crosses a component boundary is, or wraps, an
// *EngineError carrying a Kind from the fixed taxonomy below. Handlers
// branch on Kind rather than sentinel values or type assertions on
// provider-specific errors.
package errors

import "fmt"

// Kind is the engine's fixed error taxonomy.
type Kind string

const (
	Config              Kind = "CONFIG"
	Validation           Kind = "VALIDATION"
	ConditionalConflict  Kind = "CONDITIONAL_CONFLICT"
	TransientUpstream    Kind = "TRANSIENT_UPSTREAM"
	PermanentUpstream    Kind = "PERMANENT_UPSTREAM"
	Auth                 Kind = "AUTH"
	RateLimit            Kind = "RATE_LIMIT"
	Timeout              Kind = "TIMEOUT"
	Invariant            Kind = "INVARIANT"
	Internal             Kind = "INTERNAL"
)

// EngineError is the canonical error shape for the engine.
type EngineError struct {
	Kind      Kind
	Operation string
	Component string
	TraceID   string
	Cause     error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	switch {
	case e.Component != "" && e.Cause != nil:
		return fmt.Sprintf("%s: failed to %s, component: %s, cause: %v", e.Kind, e.Operation, e.Component, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: failed to %s, cause: %v", e.Kind, e.Operation, e.Cause)
	case e.Component != "":
		return fmt.Sprintf("%s: failed to %s, component: %s", e.Kind, e.Operation, e.Component)
	default:
		return fmt.Sprintf("%s: failed to %s", e.Kind, e.Operation)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *EngineError) Unwrap() error { return e.Cause }

// New builds an EngineError.
func New(kind Kind, operation string, cause error) *EngineError {
	return &EngineError{Kind: kind, Operation: operation, Cause: cause}
}

// Wrap builds an EngineError of the given kind around cause, labelled with
// operation and component.
func Wrap(kind Kind, operation, component string, cause error) *EngineError {
	return &EngineError{Kind: kind, Operation: operation, Component: component, Cause: cause}
}

// WithTrace returns a copy of the error annotated with a trace id.
func (e *EngineError) WithTrace(traceID string) *EngineError {
	cp := *e
	cp.TraceID = traceID
	return &cp
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ee *EngineError
	for err != nil {
		if e, ok := err.(*EngineError); ok {
			ee = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return ee != nil && ee.Kind == kind
}

// Invariantf builds a fatal INVARIANT error — unknown ruleset, no rule
// matched, detector hash mismatch, or a state-machine violation. Never
// recovered silently.
func Invariantf(component, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: Invariant, Operation: fmt.Sprintf(format, args...), Component: component}
}

// IsConditionalConflict reports whether err represents an expected lost
// race on a conditional write (duplicate signal, duplicate pull, duplicate
// attempt) — callers translate these to structured results, not failures.
func IsConditionalConflict(err error) bool {
	return Is(err, ConditionalConflict)
}

// IsTransient reports whether err should be retried by the caller's retry
// policy (execution INVOKE_TOOL stage, or event-bus redelivery elsewhere).
func IsTransient(err error) bool {
	return Is(err, TransientUpstream)
}
