package detector

import (
	"context"
	"strconv"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

// renewalWindowDays is how far out a contract's renewal date must be to
// enter the window.
const renewalWindowDays = 90

// ContractRenewal is a single tracked contract's time-to-renewal.
type ContractRenewal struct {
	ContractID    string `json:"contract_id"`
	DaysToRenewal int    `json:"days_to_renewal"`
}

// ContractEvidence is the billing/CRM payload renewal-window detection
// reads.
type ContractEvidence struct {
	Contracts []ContractRenewal `json:"contracts"`
}

// RenewalWindow detects RENEWAL_WINDOW_ENTERED: a contract crossing into
// the renewal-window threshold. Only meaningful once the account is a
// CUSTOMER (it must have an active contract to renew).
type RenewalWindow struct{}

func (RenewalWindow) Version() string { return "renewal_window/v1" }

func (RenewalWindow) SupportedTypes() []signal.Type {
	return []signal.Type{signal.RenewalWindowEntered}
}

// thresholdBoundary buckets days-to-renewal into the three renewal bands;
// each band participates in its own dedupe window so a contract crossing
// from one band into another always gets a fresh signal.
func thresholdBoundary(daysToRenewal int) (label string, sev signal.Severity) {
	switch {
	case daysToRenewal <= 30:
		return "0-30", signal.SeverityCritical
	case daysToRenewal <= 60:
		return "31-60", signal.SeverityHigh
	default:
		return "61-90", signal.SeverityMedium
	}
}

func (RenewalWindow) Detect(_ context.Context, ref evidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error) {
	if prior.Lifecycle != account.Customer {
		return nil, nil
	}
	var ev ContractEvidence
	if err := verifyAndDecode(ref, payload, &ev); err != nil {
		return nil, err
	}

	var out []signal.Signal
	for _, c := range ev.Contracts {
		if c.DaysToRenewal <= 0 || c.DaysToRenewal > renewalWindowDays {
			continue
		}
		boundary, sev := thresholdBoundary(c.DaysToRenewal)
		windowKey := "contract:" + c.ContractID + ":" + boundary
		ttl := renewalWindowDays
		s := newSignal(prior.Ref.Tenant, prior.Ref.AccountID, signal.RenewalWindowEntered, windowKey, ref, 1.0, signal.SourceDirect, sev, &ttl, RenewalWindow{}.Version(), ref.CapturedAt)
		s.Context = map[string]string{"contract_id": c.ContractID, "days_to_renewal": strconv.Itoa(c.DaysToRenewal), "threshold_boundary": boundary}
		out = append(out, s)
	}
	return out, nil
}
