package detector

import (
	"context"
	"strings"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

// criticalRoles are the stakeholder roles a healthy deal needs represented.
var criticalRoles = []string{"economic_buyer", "champion", "technical_evaluator"}

// StakeholderEvidence is the CRM contact-role payload stakeholder-gap
// detection reads.
type StakeholderEvidence struct {
	Roles []string `json:"roles"`
}

// StakeholderGap detects STAKEHOLDER_GAP_DETECTED: one or more critical
// buying-committee roles with no identified contact.
type StakeholderGap struct{}

func (StakeholderGap) Version() string { return "stakeholder_gap/v1" }

func (StakeholderGap) SupportedTypes() []signal.Type {
	return []signal.Type{signal.StakeholderGapDetected}
}

func (StakeholderGap) Detect(_ context.Context, ref evidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error) {
	var ev StakeholderEvidence
	if err := verifyAndDecode(ref, payload, &ev); err != nil {
		return nil, err
	}

	present := map[string]bool{}
	for _, r := range ev.Roles {
		present[strings.ToLower(r)] = true
	}
	var missing []string
	for _, role := range criticalRoles {
		if !present[role] {
			missing = append(missing, role)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	confidence := capAt(0.4+0.2*float64(len(missing)), 1.0)
	sev := signal.SeverityMedium
	if len(missing) >= 2 {
		sev = signal.SeverityHigh
	}
	ttl := 30
	s := newSignal(prior.Ref.Tenant, prior.Ref.AccountID, signal.StakeholderGapDetected, dateWindow(ref.CapturedAt), ref, confidence, signal.SourceDerived, sev, &ttl, StakeholderGap{}.Version(), ref.CapturedAt)
	s.Context = map[string]string{"missing_roles": strings.Join(missing, ",")}
	return []signal.Signal{s}, nil
}
