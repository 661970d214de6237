package detector

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

// usageTrendThreshold is the relative change in a tracked metric that
// constitutes a trend change worth signaling (+/-20%).
const usageTrendThreshold = 0.20

// MetricDelta is a single tracked product-usage metric's before/after value.
type MetricDelta struct {
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
}

// UsageEvidence is the product-telemetry payload usage-trend detection
// reads: a named set of metrics compared period over period.
type UsageEvidence struct {
	Metrics map[string]MetricDelta `json:"metrics"`
}

// UsageTrend detects USAGE_TREND_CHANGE: a single aggregated signal per
// evidence capture covering every tracked metric that moved beyond the
// relative-change threshold, with direction set by the sign of the summed
// relative deltas across those metrics (not one signal per metric).
type UsageTrend struct{}

func (UsageTrend) Version() string { return "usage_trend/v1" }

func (UsageTrend) SupportedTypes() []signal.Type {
	return []signal.Type{signal.UsageTrendChange}
}

func (UsageTrend) Detect(_ context.Context, ref evidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error) {
	var ev UsageEvidence
	if err := verifyAndDecode(ref, payload, &ev); err != nil {
		return nil, err
	}

	var names []string
	var sum float64
	for name, d := range ev.Metrics {
		if d.Previous == 0 {
			continue
		}
		change := (d.Current - d.Previous) / math.Abs(d.Previous)
		if math.Abs(change) < usageTrendThreshold {
			continue
		}
		names = append(names, name)
		sum += change
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)

	direction := "increase"
	if sum < 0 {
		direction = "decrease"
	}
	sev := signal.SeverityMedium
	if math.Abs(sum) >= 2*usageTrendThreshold {
		sev = signal.SeverityHigh
	}
	if direction == "decrease" && sev == signal.SeverityMedium {
		sev = signal.SeverityHigh // a usage drop carries more risk than a spike of equal magnitude
	}

	ttl := 14
	s := newSignal(prior.Ref.Tenant, prior.Ref.AccountID, signal.UsageTrendChange, dateWindow(ref.CapturedAt), ref, 0.9, signal.SourceDirect, sev, &ttl, UsageTrend{}.Version(), ref.CapturedAt)
	s.Context = map[string]string{"direction": direction, "metrics": strings.Join(names, ",")}
	return []signal.Signal{s}, nil
}
