// Command engine is the account-lifecycle engine's process entrypoint: it
// wires the signal store, suppression engine, synthesis engine, heat
// scorer, pull/decision schedulers, and execution pipeline together
// against the in-memory reference stores, and serves Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/lifecycleeng/account-engine/internal/autonomy"
	"github.com/lifecycleeng/account-engine/internal/detector"
	"github.com/lifecycleeng/account-engine/internal/eventbus"
	"github.com/lifecycleeng/account-engine/internal/execution"
	"github.com/lifecycleeng/account-engine/internal/execution/toolgateway"
	"github.com/lifecycleeng/account-engine/internal/heat"
	"github.com/lifecycleeng/account-engine/internal/scheduler"
	"github.com/lifecycleeng/account-engine/internal/signalstore"
	"github.com/lifecycleeng/account-engine/internal/suppression"
	"github.com/lifecycleeng/account-engine/internal/synthesis"
	"github.com/lifecycleeng/account-engine/pkg/clock"
	"github.com/lifecycleeng/account-engine/pkg/config"
	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/evidence"
	"github.com/lifecycleeng/account-engine/pkg/ledger"
	"github.com/lifecycleeng/account-engine/pkg/logging"
	"github.com/lifecycleeng/account-engine/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const banner = `
╔═══════════════════════════════════════════════════════════════╗
║   account-engine                                                ║
║   autonomous account-lifecycle signal/synthesis/execution engine║
╚═══════════════════════════════════════════════════════════════╝
`

func main() {
	configPath := flag.String("config", "", "path to YAML config (empty = built-in defaults)")
	rulesetPath := flag.String("ruleset", "", "path to a YAML ruleset override (empty = built-in default ruleset)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	dev := flag.Bool("dev", true, "use human-readable (development) logging")
	flag.Parse()

	fmt.Print(banner)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger, err := logging.New(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	c := clock.System{}

	app := wire(cfg, *rulesetPath, c, m, logger)

	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Sugar().Infow("account engine starting", "metrics_addr", *metricsAddr, "ruleset_version", cfg.RulesetVersion)

	if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
		logger.Sugar().Errorw("metrics server stopped", "error", err)
	}
	_ = app
}

// engine bundles every wired component a deployment's event-bus handlers
// and HTTP/queue adapters would call into.
type engine struct {
	bus         *eventbus.Bus
	signals     *signalstore.Service
	suppression *suppression.Engine
	synthesis   *synthesis.Engine
	heat        *heat.Engine
	detectors   *detector.Registry
	pulls       *scheduler.PullOrchestrator
	decisions   *scheduler.DecisionScheduler
	execution   *execution.Pipeline
	autonomy    *autonomy.Gate
	clock       clock.Clock
	config      *config.Config
}

func wire(cfg *config.Config, rulesetPath string, c clock.Clock, m *metrics.Registry, logger *zap.Logger) *engine {
	store := evidence.NewInMemory()
	led := ledger.NewInMemory(m)
	signals := signalstore.New(store, led, m)

	supp := suppression.New(signals, led)
	synthEngine := synthesis.New(signals, rulesetPath, m)
	heatEngine := heat.New(cfg.HeatWeights, cfg.TierPolicy, m)

	budgets := scheduler.NewBudgetService(cfg.PullBudget, cfg.DepthUnits, m)
	pulls := scheduler.NewPullOrchestrator(budgets, 60, 10, m)

	cronRunner := cron.New()
	cronRunner.Start()
	decisions := scheduler.NewDecisionScheduler(budgets, 30, 5, cronRunner)

	gateway := toolgateway.New(toolgateway.DefaultSettings())
	pipeline := execution.New(gateway, map[string]execution.ActionSpec{}, nil, cfg.Retry, c, led, signals, m)

	autonomyGate := autonomy.New(autonomy.DefaultPolicy())

	bus := eventbus.New()
	sugar := logger.Sugar()

	// SIGNAL_DETECTED re-runs shouldTransition against the just-updated
	// active-signal index: a lifecycle advance publishes
	// LIFECYCLE_STATE_CHANGED and runs the suppression pass the transition
	// table names for that (from, to) pair. This handler does not recompute
	// heat and does not dispatch RUN_DECISION.
	bus.Subscribe(eventbus.KindSignalDetected, func(e eventbus.Event) error {
		evt := e.(eventbus.SignalDetected)
		sugar.Infow("signal detected", "partition", e.PartitionKey())

		ctx := context.Background()
		ref := account.Ref{Tenant: evt.Tenant, AccountID: evt.AccountID}
		transition, err := signals.ShouldTransition(ctx, ref, cfg.RulesetVersion, c.Now())
		if err != nil {
			return err
		}
		if !transition.Changed {
			return nil
		}

		if err := bus.Publish(eventbus.LifecycleStateChanged{
			Tenant: evt.Tenant, AccountID: evt.AccountID,
			From: string(transition.From), To: string(transition.To),
		}); err != nil {
			return err
		}

		active, err := signals.GetSignalsForAccount(ctx, ref, signalstore.Filters{}, c.Now())
		if err != nil {
			return err
		}
		set := supp.Compute(evt.Tenant, evt.AccountID, evt.SignalID, transition.From, transition.To, active)
		if err := supp.Apply(ctx, set, c.Now()); err != nil {
			return err
		}
		return supp.Log(set, c.Now())
	})
	bus.Subscribe(eventbus.KindLifecycleStateChanged, func(e eventbus.Event) error {
		evt := e.(eventbus.LifecycleStateChanged)
		sugar.Infow("lifecycle state changed", "partition", e.PartitionKey(), "from", evt.From, "to", evt.To)
		return nil
	})
	bus.Subscribe(eventbus.KindConnectorPollFailed, func(e eventbus.Event) error {
		evt := e.(eventbus.ConnectorPollFailed)
		sugar.Errorw("connector poll failed", "connector", evt.Connector, "partition", e.PartitionKey(), "message", evt.Message)
		return nil
	})

	return &engine{
		bus:         bus,
		signals:     signals,
		suppression: supp,
		synthesis:   synthEngine,
		heat:        heatEngine,
		detectors:   detector.NewDefaultRegistry(),
		pulls:       pulls,
		decisions:   decisions,
		execution:   pipeline,
		autonomy:    autonomyGate,
		clock:       c,
		config:      cfg,
	}
}
