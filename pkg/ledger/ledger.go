// Package ledger implements the append-only audit log (C1). It is the
// system's source of truth for replay and audit: no updates, no deletes,
// and a single uniqueness guard on (partition, sort).
//
// An in-memory reference implementation, behind an
// interface a durable store can implement without the engine's core
// packages knowing the difference.
package ledger

import (
	"sort"
	"sync"
	"time"

	dledger "github.com/lifecycleeng/account-engine/pkg/domain/ledger"
	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
	"github.com/lifecycleeng/account-engine/pkg/metrics"
)

// Ledger is the append-only log contract.
type Ledger interface {
	// Append inserts entry if (Partition, Sort) doesn't already exist.
	// A duplicate sort key is not an error to the caller: Append returns
	// the existing entry instead. Any other write failure is returned.
	Append(entry dledger.Entry) (dledger.Entry, error)

	ByTrace(traceID string) ([]dledger.Entry, error)
	ByAccountTimeRange(tenant, accountID string, from, to time.Time) ([]dledger.Entry, error)
	ByPlan(planID string) ([]dledger.Entry, error)
}

type key struct {
	partition string
	sort      string
}

// InMemory is the default Ledger implementation: a process-local append-only
// store keyed on (partition, sort); queries scan entries in append order.
type InMemory struct {
	mu      sync.RWMutex
	byKey   map[key]dledger.Entry
	order   []dledger.Entry
	metrics *metrics.Registry
}

// NewInMemory builds an empty in-memory ledger. metrics may be nil in tests.
func NewInMemory(m *metrics.Registry) *InMemory {
	return &InMemory{byKey: make(map[key]dledger.Entry), metrics: m}
}

// Append implements Ledger.
func (l *InMemory) Append(entry dledger.Entry) (dledger.Entry, error) {
	if entry.Partition == "" || entry.Sort == "" {
		return dledger.Entry{}, engerrors.New(engerrors.Validation, "append ledger entry", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{partition: entry.Partition, sort: entry.Sort}
	if existing, ok := l.byKey[k]; ok {
		// Duplicate sort key is the expected "lost race" outcome, not an
		// error to the caller.
		return existing, nil
	}

	l.byKey[k] = entry
	l.order = append(l.order, entry)
	if l.metrics != nil {
		l.metrics.LedgerAppends.WithLabelValues(string(entry.EventType)).Inc()
	}
	return entry, nil
}

// ByTrace implements Ledger.
func (l *InMemory) ByTrace(traceID string) ([]dledger.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []dledger.Entry
	for _, e := range l.order {
		if e.TraceID == traceID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ByAccountTimeRange implements Ledger.
func (l *InMemory) ByAccountTimeRange(tenant, accountID string, from, to time.Time) ([]dledger.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []dledger.Entry
	for _, e := range l.order {
		if e.Tenant != tenant || e.AccountID != accountID {
			continue
		}
		if e.EventTime.Before(from) || e.EventTime.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventTime.Before(out[j].EventTime) })
	return out, nil
}

// ByPlan implements Ledger.
func (l *InMemory) ByPlan(planID string) ([]dledger.Entry, error) {
	return l.ByTrace(planID)
}

// Count returns the number of entries currently held — test helper.
func (l *InMemory) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}
