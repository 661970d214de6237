package detector

import (
	"context"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

// SupportEvidence is the support-desk payload support-risk detection reads.
type SupportEvidence struct {
	OpenCriticalCount int     `json:"open_critical_count"`
	AgingDays         int     `json:"aging_days"`
	VolumeIncreasePct float64 `json:"volume_increase_pct"`
	HighSeverityCount int     `json:"high_severity_count"`
}

// SupportRisk detects SUPPORT_RISK_EMERGING from a scored combination of
// high-severity ticket count, ticket aging, volume increase, and open
// critical count:
//
//	score = 2*high_sev + aging(>=7d) + 3*(vol_increase>=50%) + 5*(open_critical>=2)
//
// Emits when score >= 5; severity is high when score >= 10, medium
// otherwise; confidence is 0.5 + score/20, capped at 0.9.
type SupportRisk struct{}

func (SupportRisk) Version() string { return "support_risk/v1" }

func (SupportRisk) SupportedTypes() []signal.Type {
	return []signal.Type{signal.SupportRiskEmerging}
}

func (SupportRisk) Detect(_ context.Context, ref evidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error) {
	var ev SupportEvidence
	if err := verifyAndDecode(ref, payload, &ev); err != nil {
		return nil, err
	}

	const agingThresholdDays = 7
	const volumeThresholdPct = 0.5
	const openCriticalThreshold = 2

	score := 2 * ev.HighSeverityCount
	if ev.AgingDays >= agingThresholdDays {
		score++
	}
	if ev.VolumeIncreasePct >= volumeThresholdPct {
		score += 3
	}
	if ev.OpenCriticalCount >= openCriticalThreshold {
		score += 5
	}

	if score < 5 {
		return nil, nil
	}

	sev := signal.SeverityMedium
	if score >= 10 {
		sev = signal.SeverityHigh
	}
	confidence := capAt(0.5+float64(score)/20.0, 0.9)

	ttl := 10
	s := newSignal(prior.Ref.Tenant, prior.Ref.AccountID, signal.SupportRiskEmerging, dateWindow(ref.CapturedAt), ref, confidence, signal.SourceDerived, sev, &ttl, SupportRisk{}.Version(), ref.CapturedAt)
	return []signal.Signal{s}, nil
}
