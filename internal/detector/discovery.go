package detector

import (
	"context"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

// requiredDiscoveryFields are the qualification fields a healthy discovery
// motion should have captured.
var requiredDiscoveryFields = []string{"pain_points", "budget", "decision_maker", "timeline"}

// DiscoveryEvidence is the CRM-sourced payload discovery-stall detection
// reads: the notes/fields captured across the most recent meetings.
type DiscoveryEvidence struct {
	MissingFields            []string `json:"missing_fields"`
	RepeatedMeetingsNoNewData bool     `json:"repeated_meetings_no_new_data"`
	MissingFollowUps         bool     `json:"missing_follow_ups"`
}

// DiscoveryStall detects DISCOVERY_PROGRESS_STALLED: qualification fields
// missing, repeated meetings with no new data captured, or missing
// follow-ups — any one is sufficient, more raises confidence.
type DiscoveryStall struct{}

func (DiscoveryStall) Version() string { return "discovery_stall/v1" }

func (DiscoveryStall) SupportedTypes() []signal.Type {
	return []signal.Type{signal.DiscoveryProgressStalled}
}

func (DiscoveryStall) Detect(_ context.Context, ref evidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error) {
	var ev DiscoveryEvidence
	if err := verifyAndDecode(ref, payload, &ev); err != nil {
		return nil, err
	}

	missing := map[string]bool{}
	for _, f := range ev.MissingFields {
		missing[f] = true
	}
	missingRequired := 0
	for _, f := range requiredDiscoveryFields {
		if missing[f] {
			missingRequired++
		}
	}

	triggers := 0
	if missingRequired > 0 {
		triggers++
	}
	if ev.RepeatedMeetingsNoNewData {
		triggers++
	}
	if ev.MissingFollowUps {
		triggers++
	}
	if triggers == 0 {
		return nil, nil
	}

	confidence := capAt(0.45+0.2*float64(triggers-1)+0.05*float64(missingRequired), 1.0)
	sev := signal.SeverityLow
	switch {
	case triggers >= 3 || missingRequired >= 3:
		sev = signal.SeverityHigh
	case triggers == 2 || missingRequired >= 2:
		sev = signal.SeverityMedium
	}

	ttl := 21
	s := newSignal(prior.Ref.Tenant, prior.Ref.AccountID, signal.DiscoveryProgressStalled, dateWindow(ref.CapturedAt), ref, confidence, signal.SourceDerived, sev, &ttl, DiscoveryStall{}.Version(), ref.CapturedAt)
	return []signal.Signal{s}, nil
}
