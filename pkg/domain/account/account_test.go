package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStateDefaultsToProspectWithEmptyIndex(t *testing.T) {
	st := NewState(Ref{Tenant: "t1", AccountID: "a1"})
	assert.Equal(t, Prospect, st.Lifecycle)
	assert.Empty(t, st.ActiveSignalIDs())
}

func TestIndexInsertIsIdempotentAndMostRecentFirst(t *testing.T) {
	st := NewState(Ref{Tenant: "t1", AccountID: "a1"})
	st.IndexInsert("ACCOUNT_ACTIVATION_DETECTED", "s1")
	st.IndexInsert("ACCOUNT_ACTIVATION_DETECTED", "s2")
	st.IndexInsert("ACCOUNT_ACTIVATION_DETECTED", "s1") // duplicate insert, no-op

	ids := st.ActiveSignalIndex["ACCOUNT_ACTIVATION_DETECTED"]
	assert.Equal(t, []string{"s2", "s1"}, ids)
}

func TestIndexRemoveDropsEmptyTypeEntirely(t *testing.T) {
	st := NewState(Ref{Tenant: "t1", AccountID: "a1"})
	st.IndexInsert("NO_ENGAGEMENT_PRESENT", "s1")
	st.IndexRemove("NO_ENGAGEMENT_PRESENT", "s1")

	_, ok := st.ActiveSignalIndex["NO_ENGAGEMENT_PRESENT"]
	assert.False(t, ok, "expected the type's index entry to be removed once its last signal is removed")
}

func TestIndexRemoveLeavesOtherIDsInPlace(t *testing.T) {
	st := NewState(Ref{Tenant: "t1", AccountID: "a1"})
	st.IndexInsert("NO_ENGAGEMENT_PRESENT", "s1")
	st.IndexInsert("NO_ENGAGEMENT_PRESENT", "s2")
	st.IndexRemove("NO_ENGAGEMENT_PRESENT", "s1")

	assert.Equal(t, []string{"s2"}, st.ActiveSignalIndex["NO_ENGAGEMENT_PRESENT"])
}

func TestActiveSignalIDsAggregatesAcrossTypes(t *testing.T) {
	st := NewState(Ref{Tenant: "t1", AccountID: "a1"})
	st.IndexInsert("ACCOUNT_ACTIVATION_DETECTED", "s1")
	st.IndexInsert("NO_ENGAGEMENT_PRESENT", "s2")

	assert.Len(t, st.ActiveSignalIDs(), 2)
}
