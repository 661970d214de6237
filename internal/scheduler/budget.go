package scheduler

import (
	"sync"

	"github.com/lifecycleeng/account-engine/pkg/domain/budget"
	"github.com/lifecycleeng/account-engine/pkg/metrics"
)

// BudgetService tracks per-(tenant, date[, connector]) unit consumption
// and performs the atomic multi-key conditional consume required when both
// a tenant-wide and a connector-specific cap are configured, so a
// pull either debits both buckets or neither.
type BudgetService struct {
	mu    sync.Mutex
	rows  map[budget.Key]*budget.State
	caps  budget.PullBudget
	units budget.DepthUnits
	m     *metrics.Registry
}

// NewBudgetService builds a BudgetService against the configured caps and
// per-depth unit costs. A zero cap disables that level's check.
func NewBudgetService(caps budget.PullBudget, units budget.DepthUnits, m *metrics.Registry) *BudgetService {
	return &BudgetService{rows: make(map[budget.Key]*budget.State), caps: caps, units: units, m: m}
}

func (b *BudgetService) row(k budget.Key) *budget.State {
	st, ok := b.rows[k]
	if !ok {
		st = &budget.State{Key: k}
		b.rows[k] = st
	}
	return st
}

func (b *BudgetService) unitsFor(depth budget.Depth) int {
	if depth == budget.Deep {
		return b.units.Deep
	}
	return b.units.Shallow
}

// TryConsume atomically checks and debits every configured budget key for
// a pull of the given depth. Returns (true, remaining-on-the-tightest-cap)
// on success, or (false, 0) if any configured cap would be exceeded — in
// which case NO bucket is debited.
func (b *BudgetService) TryConsume(tenant, date, connector string, depth budget.Depth) (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cost := b.unitsFor(depth)
	tenantKey := budget.Key{Tenant: tenant, Date: date}
	connKey := budget.Key{Tenant: tenant, Date: date, Connector: connector}

	tenantRow := b.row(tenantKey)
	connRow := b.row(connKey)

	if b.caps.MaxPerDay > 0 && tenantRow.UnitsConsumed+cost > b.caps.MaxPerDay {
		return false, 0
	}
	if b.caps.MaxPerConnectorDay > 0 && connRow.UnitsConsumed+cost > b.caps.MaxPerConnectorDay {
		return false, 0
	}

	tenantRow.UnitsConsumed += cost
	tenantRow.PullCount++
	connRow.UnitsConsumed += cost
	connRow.PullCount++

	remaining := remainingOf(b.caps.MaxPerDay, tenantRow.UnitsConsumed)
	if connRemaining := remainingOf(b.caps.MaxPerConnectorDay, connRow.UnitsConsumed); b.caps.MaxPerConnectorDay > 0 && (b.caps.MaxPerDay == 0 || connRemaining < remaining) {
		remaining = connRemaining
	}
	if b.m != nil {
		b.m.BudgetUnitsConsumed.Add(float64(cost))
	}
	return true, remaining
}

func remainingOf(cap, consumed int) int {
	if cap <= 0 {
		return -1 // uncapped
	}
	r := cap - consumed
	if r < 0 {
		return 0
	}
	return r
}
