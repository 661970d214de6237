// Package metrics exposes the engine's Prometheus instrumentation. One
// Registry is constructed per process and threaded into every component
// that wants to count or time something; nothing registers against the
// global default registry so tests can each build their own.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups the counters and gauges every core component reports to.
type Registry struct {
	Registerer prometheus.Registerer

	SignalsCreated      *prometheus.CounterVec // labels: tenant, signal_type
	SignalsSuppressed    *prometheus.CounterVec // labels: tenant, signal_type
	SynthesisRuns        *prometheus.CounterVec // labels: tenant, posture
	HeatTierTransitions  *prometheus.CounterVec // labels: tenant, from_tier, to_tier
	PullJobsScheduled    *prometheus.CounterVec // labels: tenant, connector, reason
	ExecutionOutcomes    *prometheus.CounterVec // labels: tenant, action_type, status
	LedgerAppends        *prometheus.CounterVec // labels: event_type
	LedgerAppendFailures *prometheus.CounterVec // labels: event_type
	BudgetUnitsConsumed   prometheus.Gauge
}

// New registers and returns a fresh Registry against reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Registerer: reg,
		SignalsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_signals_created_total",
			Help: "Signals created by the detector set, by tenant and type.",
		}, []string{"tenant", "signal_type"}),
		SignalsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_signals_suppressed_total",
			Help: "Signals transitioned to SUPPRESSED by the suppression engine.",
		}, []string{"tenant", "signal_type"}),
		SynthesisRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_synthesis_runs_total",
			Help: "Synthesis runs by resulting posture.",
		}, []string{"tenant", "posture"}),
		HeatTierTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_heat_tier_transitions_total",
			Help: "Heat tier transitions, by previous and new tier.",
		}, []string{"tenant", "from_tier", "to_tier"}),
		PullJobsScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_pull_jobs_scheduled_total",
			Help: "Pull scheduling decisions, by connector and reason.",
		}, []string{"tenant", "connector", "reason"}),
		ExecutionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_execution_outcomes_total",
			Help: "Terminal execution outcomes, by action type and status.",
		}, []string{"tenant", "action_type", "status"}),
		LedgerAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_ledger_appends_total",
			Help: "Ledger append calls, by event type.",
		}, []string{"event_type"}),
		LedgerAppendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_ledger_append_failures_total",
			Help: "Ledger append calls that returned an error other than the uniqueness guard, by event type.",
		}, []string{"event_type"}),
		BudgetUnitsConsumed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_budget_units_consumed",
			Help: "Pull-budget units consumed across all tenants since process start.",
		}),
	}
	reg.MustRegister(r.SignalsCreated, r.SignalsSuppressed, r.SynthesisRuns,
		r.HeatTierTransitions, r.PullJobsScheduled, r.ExecutionOutcomes,
		r.LedgerAppends, r.LedgerAppendFailures, r.BudgetUnitsConsumed)
	return r
}
