package detector

import (
	"context"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

// ActivationEvidence is the CRM-sourced payload ACTIVATION detection reads.
type ActivationEvidence struct {
	TargetListUpdated          bool `json:"target_list_updated"`
	ExternalSignalPresent      bool `json:"external_signal_present"`
	PartnerOrInboundAttribution bool `json:"partner_or_inbound_attribution"`
}

// Activation detects ACCOUNT_ACTIVATION_DETECTED from CRM evidence: a
// prospect account entering active pursuit, evidenced by any of a target
// list update, an external buying signal, or partner/inbound attribution.
type Activation struct{}

func (Activation) Version() string { return "activation/v1" }

func (Activation) SupportedTypes() []signal.Type {
	return []signal.Type{signal.AccountActivationDetected}
}

func (Activation) Detect(_ context.Context, ref evidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error) {
	var ev ActivationEvidence
	if err := verifyAndDecode(ref, payload, &ev); err != nil {
		return nil, err
	}
	if prior.Lifecycle != account.Prospect {
		return nil, nil
	}
	triggers := 0
	if ev.TargetListUpdated {
		triggers++
	}
	if ev.ExternalSignalPresent {
		triggers++
	}
	if ev.PartnerOrInboundAttribution {
		triggers++
	}
	if triggers == 0 {
		return nil, nil
	}

	sev := signal.SeverityMedium
	if triggers >= 2 {
		sev = signal.SeverityHigh
	}
	windowKey := "activation"
	s := newSignal(prior.Ref.Tenant, prior.Ref.AccountID, signal.AccountActivationDetected, windowKey, ref, 1.0, signal.SourceDirect, sev, nil, Activation{}.Version(), ref.CapturedAt)
	s.Context = map[string]string{
		"target_list_updated":           boolStr(ev.TargetListUpdated),
		"external_signal_present":       boolStr(ev.ExternalSignalPresent),
		"partner_or_inbound_attribution": boolStr(ev.PartnerOrInboundAttribution),
	}
	return []signal.Signal{s}, nil
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
