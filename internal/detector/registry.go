package detector

import (
	"context"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

// Entity type names under which evidence is stored, following the
// evidence/<entityType>/<entityID>/<evidenceID>.json URI convention.
const (
	EntityCRMAccount      = "crm_account"
	EntityEngagementLog   = "engagement_log"
	EntityDiscoveryNotes  = "discovery_notes"
	EntityStakeholderMap  = "stakeholder_map"
	EntityUsageTelemetry  = "usage_telemetry"
	EntitySupportDesk     = "support_desk"
	EntityBillingContract = "billing_contract"
)

// NewDefaultRegistry builds the registry wired with every detector in the
// current set.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(EntityCRMAccount, Activation{})
	r.Register(EntityEngagementLog, Engagement{})
	r.Register(EntityDiscoveryNotes, DiscoveryStall{})
	r.Register(EntityStakeholderMap, StakeholderGap{})
	r.Register(EntityUsageTelemetry, UsageTrend{})
	r.Register(EntitySupportDesk, SupportRisk{})
	r.Register(EntityBillingContract, RenewalWindow{})
	return r
}

// ForEntityType adapts the registry to the narrow signalstore.Detector
// capability (Version + Detect with no entity-type argument), bound to one
// entity type — what a replay call needs when it already knows which
// detector produced the signal it is re-running.
func (r *Registry) ForEntityType(entityType string) EntityDetector {
	return EntityDetector{registry: r, entityType: entityType}
}

// EntityDetector is a Registry pinned to a single entity type.
type EntityDetector struct {
	registry   *Registry
	entityType string
}

func (d EntityDetector) Version() string {
	h, ok := d.registry.byEntityType[d.entityType]
	if !ok {
		return ""
	}
	return h.Version()
}

func (d EntityDetector) Detect(ctx context.Context, ref evidence.Ref, payload []byte, prior *account.State) ([]signal.Signal, error) {
	return d.registry.Detect(ctx, d.entityType, ref, payload, prior)
}
