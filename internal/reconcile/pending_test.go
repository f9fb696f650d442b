package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssertThenConfirm(t *testing.T) {
	s := NewSet()
	s.Assert("achv:coins:2")

	assert.True(t, s.Has("achv:coins:2"))
	assert.Equal(t, 1, s.PendingCount())

	s.SyncKeys([]string{"achv:coins:2", "achv:distance:1"})

	assert.True(t, s.Has("achv:coins:2"), "confirmed key stays asserted")
	assert.Equal(t, 0, s.PendingCount())
}

func TestUnconfirmedFetchKeepsPending(t *testing.T) {
	s := NewSet()
	s.Assert("item:skin-red")

	// Snapshot that does not yet include the claim.
	s.SyncKeys([]string{"item:skin-blue"})

	assert.True(t, s.Has("item:skin-red"), "absence in a fresh snapshot must not drop the assertion")
	assert.Equal(t, 1, s.PendingCount())
}

func TestNoRegressionAfterStaleSnapshot(t *testing.T) {
	s := NewSet()
	s.Assert("streak:day3")

	s.SyncKeys([]string{"streak:day3"})
	assert.True(t, s.Has("streak:day3"))

	// A stale snapshot omitting the confirmed key must not resurrect it as
	// claimable.
	s.SyncKeys([]string{})
	assert.True(t, s.Has("streak:day3"))
}

func TestRejectDropsAssertion(t *testing.T) {
	s := NewSet()
	s.Assert("item:banned")
	s.Reject("item:banned")

	assert.False(t, s.Has("item:banned"))
	assert.Equal(t, 0, s.PendingCount())
}

func TestAssertAfterConfirmIsNoop(t *testing.T) {
	s := NewSet()
	s.Assert("achv:combo:1")
	s.SyncKeys([]string{"achv:combo:1"})

	s.Assert("achv:combo:1")
	assert.Equal(t, 0, s.PendingCount())
	assert.True(t, s.Has("achv:combo:1"))
}
