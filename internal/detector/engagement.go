package detector

import (
	"context"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

// EngagementEvidence is the CRM/calendar-sourced payload engagement
// detection reads: whether a human engagement event (call, meeting, reply)
// was observed since the account's last known engagement.
type EngagementEvidence struct {
	EngagementObserved bool       `json:"engagement_observed"`
	ObservedAt         *time.Time `json:"observed_at,omitempty"`
}

// noEngagementThresholdDays is the staleness window before an absence of
// engagement becomes a signal.
const noEngagementThresholdDays = 30

// Engagement detects both NO_ENGAGEMENT_PRESENT and
// FIRST_ENGAGEMENT_OCCURRED from the same evidence stream.
type Engagement struct{}

func (Engagement) Version() string { return "engagement/v1" }

func (Engagement) SupportedTypes() []signal.Type {
	return []signal.Type{signal.NoEngagementPresent, signal.FirstEngagementOccurred}
}

func (Engagement) Detect(_ context.Context, ref evidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error) {
	var ev EngagementEvidence
	if err := verifyAndDecode(ref, payload, &ev); err != nil {
		return nil, err
	}

	var out []signal.Signal
	now := ref.CapturedAt

	if ev.EngagementObserved {
		// FIRST_ENGAGEMENT_OCCURRED is only meaningful while the account has
		// no prior recorded engagement; once lifecycle is already CUSTOMER
		// the event is not re-detected as a fresh signal — still recorded,
		// but marked inactive for re-inference.
		first := prior.LastEngagementAt == nil
		s := newSignal(prior.Ref.Tenant, prior.Ref.AccountID, signal.FirstEngagementOccurred, dateWindow(now), ref, 1.0, signal.SourceDirect, signal.SeverityMedium, nil, Engagement{}.Version(), now)
		if !first || prior.Lifecycle == account.Customer {
			s.InferenceActive = false
		}
		out = append(out, s)
		return out, nil
	}

	// NO_ENGAGEMENT_PRESENT only applies while the account is still a
	// PROSPECT: once it's a paying CUSTOMER, staleness is a support/renewal
	// concern, not a pre-conversion one.
	if prior.Lifecycle != account.Prospect {
		return nil, nil
	}

	// No engagement observed in this evidence capture: only a signal if the
	// account has gone stale relative to its last known engagement (or has
	// never engaged at all).
	var daysSince int
	stale := false
	if prior.LastEngagementAt == nil {
		stale = true
		daysSince = -1
	} else {
		daysSince = int(now.Sub(*prior.LastEngagementAt).Hours() / 24)
		stale = daysSince >= noEngagementThresholdDays
	}
	if !stale {
		return nil, nil
	}

	sev := signal.SeverityMedium
	if daysSince >= 2*noEngagementThresholdDays {
		sev = signal.SeverityHigh
	}
	ttl := noEngagementThresholdDays
	s := newSignal(prior.Ref.Tenant, prior.Ref.AccountID, signal.NoEngagementPresent, dateWindow(now), ref, 0.8, signal.SourceDerived, sev, &ttl, Engagement{}.Version(), now)
	out = append(out, s)
	return out, nil
}
