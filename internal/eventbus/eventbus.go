// Package eventbus provides a typed, in-process publish/subscribe bus
// implementing the engine's inbound and outbound event kinds.
// Dispatch is synchronous and by event kind; the Bus does not use the
// (tenant, account) partition key each event carries — the
// out-of-scope production queue (SNS/SQS, Kafka, Pub/Sub) is the thing a
// deployment wires behind the same Bus interface; this package is the
// contract that wiring has to satisfy.
package eventbus

import (
	"sync"
)

// Event is anything with a stable kind string and a partition key.
type Event interface {
	Kind() string
	PartitionKey() string // tenant_id + "/" + account_id
}

// Handler processes one event. Publish returns the first handler error to
// its caller and drops any later ones from the same Publish; the bus never
// retries — redelivery is a concern of whatever sits behind Publish in
// production.
type Handler func(Event) error

// Bus is the in-process event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers h to run for every event of the given kind.
func (b *Bus) Subscribe(kind string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish dispatches e synchronously to every handler registered for its
// kind, in registration order. Returns the first handler error, if any,
// but still runs every handler (a failing subscriber must not block its
// siblings from seeing the event).
func (b *Bus) Publish(e Event) error {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[e.Kind()]...)
	b.mu.RUnlock()

	var firstErr error
	for _, h := range hs {
		if err := h(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
