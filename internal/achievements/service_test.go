package achievements

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyrush-games/client/internal/backend"
	"github.com/skyrush-games/client/internal/userdata"
)

type fakeSnapshotter struct {
	snap backend.AchievementSnapshot
	err  error
}

func (f *fakeSnapshotter) FetchAchievementSnapshot(context.Context) (backend.AchievementSnapshot, error) {
	return f.snap, f.err
}

func coinSnapshot(progress, claimedLevel int) backend.AchievementSnapshot {
	return backend.AchievementSnapshot{
		Defs: []backend.AchievementDef{{
			Type: "coins",
			Levels: []backend.AchievementLevel{
				{Level: 1, Threshold: 10, Reward: 5},
				{Level: 2, Threshold: 50, Reward: 20},
				{Level: 3, Threshold: 200, Reward: 100},
			},
		}},
		States: map[string]backend.AchievementState{
			"coins": {Type: "coins", Progress: progress, ClaimedLevel: claimedLevel},
		},
	}
}

func newService(t *testing.T, remote *fakeSnapshotter) (*Service, *userdata.Cache) {
	t.Helper()
	cache := userdata.NewCache()
	cache.Set(backend.UserData{Currency: 100})
	s := NewService(remote, cache, nil, log.New(io.Discard))
	require.NoError(t, s.Refresh(context.Background()))
	return s, cache
}

func TestClaimAllEligible_GrantsOptimistically(t *testing.T) {
	s, cache := newService(t, &fakeSnapshotter{snap: coinSnapshot(60, 0)})

	assert.True(t, s.HasClaimable())

	total := s.ClaimAllEligible()
	assert.Equal(t, 25, total, "levels 1 and 2 are eligible")

	data, _ := cache.Get()
	assert.Equal(t, 125, data.Currency, "reward credited before any network round trip")

	// The badge is gone immediately.
	assert.False(t, s.HasClaimable())

	// A second claim pass grants nothing.
	assert.Equal(t, 0, s.ClaimAllEligible())
}

func TestRefresh_ConfirmsPendingClaims(t *testing.T) {
	remote := &fakeSnapshotter{snap: coinSnapshot(60, 0)}
	s, _ := newService(t, remote)

	s.ClaimAllEligible()

	// Server catches up: claimed level now 2.
	remote.snap = coinSnapshot(60, 2)
	require.NoError(t, s.Refresh(context.Background()))

	assert.False(t, s.HasClaimable())
}

func TestRefresh_StaleSnapshotDoesNotRegress(t *testing.T) {
	remote := &fakeSnapshotter{snap: coinSnapshot(60, 0)}
	s, _ := newService(t, remote)

	s.ClaimAllEligible()

	// A stale snapshot still reporting claimedLevel 0 arrives. The pending
	// overlay must keep the tiers from re-appearing as claimable.
	require.NoError(t, s.Refresh(context.Background()))
	assert.False(t, s.HasClaimable())
	assert.Equal(t, 0, s.ClaimAllEligible())
}

func TestProgressUnlocksNextTier(t *testing.T) {
	remote := &fakeSnapshotter{snap: coinSnapshot(60, 0)}
	s, _ := newService(t, remote)
	s.ClaimAllEligible()

	remote.snap = coinSnapshot(250, 2)
	require.NoError(t, s.Refresh(context.Background()))

	assert.True(t, s.HasClaimable(), "tier 3 newly eligible")
	assert.Equal(t, 100, s.ClaimAllEligible())
}

func TestClaimStreak(t *testing.T) {
	s, cache := newService(t, &fakeSnapshotter{snap: coinSnapshot(0, 0)})

	assert.Equal(t, 10, s.ClaimStreak(3, 10))
	assert.True(t, s.StreakClaimed(3))

	// Duplicate claim is a no-op.
	assert.Equal(t, 0, s.ClaimStreak(3, 10))

	data, _ := cache.Get()
	assert.Equal(t, 110, data.Currency)

	// Authoritative snapshot confirms day 3; pending drains, claim stays.
	cache.Set(backend.UserData{Currency: 110, StreakDaysClaimed: 3})
	assert.True(t, s.StreakClaimed(3))
	assert.True(t, s.StreakClaimed(2), "earlier days covered by authoritative count")
	assert.False(t, s.StreakClaimed(4))
}
