// Package achievements implements the claimable-reward surface: achievement
// tiers and the daily streak. Claims are granted optimistically on the client
// and reconciled against later authoritative snapshots through the shared
// pending-set overlay, so badges never flicker back to "claimable" while a
// claim is in flight.
package achievements

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/skyrush-games/client/internal/backend"
	"github.com/skyrush-games/client/internal/metrics"
	"github.com/skyrush-games/client/internal/reconcile"
	"github.com/skyrush-games/client/internal/userdata"
)

// Snapshotter is the backend surface this service needs.
type Snapshotter interface {
	FetchAchievementSnapshot(ctx context.Context) (backend.AchievementSnapshot, error)
}

// Service owns the achievement snapshot and the claim flow.
type Service struct {
	remote  Snapshotter
	cache   *userdata.Cache
	pending *reconcile.Set
	metrics *metrics.Metrics
	logger  *log.Logger

	mu   sync.Mutex
	snap backend.AchievementSnapshot
}

// NewService creates the service. metrics may be nil.
func NewService(remote Snapshotter, cache *userdata.Cache, m *metrics.Metrics, logger *log.Logger) *Service {
	s := &Service{
		remote:  remote,
		cache:   cache,
		pending: reconcile.NewSet(),
		metrics: m,
		logger:  logger.With("component", "achievements"),
	}
	// Every accepted user-data snapshot doubles as a confirmation source for
	// streak claims.
	cache.Updates().Subscribe(s.onUserData)
	return s
}

// ClaimKey is the pending-set key for one achievement tier.
func ClaimKey(achievementType string, level int) string {
	return fmt.Sprintf("achv:%s:%d", achievementType, level)
}

// StreakKey is the pending-set key for one claimed streak day.
func StreakKey(day int) string {
	return fmt.Sprintf("streak:%d", day)
}

// Refresh fetches the authoritative achievement snapshot and reconciles the
// pending set against it.
func (s *Service) Refresh(ctx context.Context) error {
	snap, err := s.remote.FetchAchievementSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("achievements: snapshot fetch failed: %w", err)
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	before := s.pending.PendingCount()
	s.pending.SyncKeys(claimedKeys(snap))
	if confirmed := before - s.pending.PendingCount(); confirmed > 0 && s.metrics != nil {
		s.metrics.ClaimsConfirmed.Add(float64(confirmed))
	}
	return nil
}

// ClaimAllEligible grants every unclaimed tier whose threshold is met,
// locally and immediately: the reward lands in the cached currency, the tiers
// are asserted pending, and dependent UI re-renders off the cache broadcast.
// Returns the total reward granted.
func (s *Service) ClaimAllEligible() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	claimed := 0
	for _, def := range s.snap.Defs {
		state := s.snap.States[def.Type]
		for _, lvl := range def.Levels {
			if state.Progress < lvl.Threshold {
				continue
			}
			if s.claimedLocally(def.Type, state, lvl.Level) {
				continue
			}
			s.pending.Assert(ClaimKey(def.Type, lvl.Level))
			total += lvl.Reward
			claimed++
		}
	}

	if total > 0 {
		s.cache.Mutate(func(d *backend.UserData) { d.Currency += total })
		s.logger.Info("claimed eligible achievement tiers", "tiers", claimed, "reward", total)
	}
	if s.metrics != nil {
		s.metrics.ClaimsAsserted.Add(float64(claimed))
	}
	return total
}

// HasClaimable reports whether any tier is currently claimable. The check
// consults the union of authoritative state and the pending overlay, so a
// claim asserted but not yet synced never re-appears as claimable.
func (s *Service) HasClaimable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, def := range s.snap.Defs {
		state := s.snap.States[def.Type]
		for _, lvl := range def.Levels {
			if state.Progress >= lvl.Threshold && !s.claimedLocally(def.Type, state, lvl.Level) {
				return true
			}
		}
	}
	return false
}

// ClaimStreak asserts one streak day and credits its reward optimistically.
// Already-claimed days (authoritative or pending) are a no-op.
func (s *Service) ClaimStreak(day, reward int) int {
	if s.StreakClaimed(day) {
		return 0
	}
	s.pending.Assert(StreakKey(day))
	s.cache.Mutate(func(d *backend.UserData) { d.Currency += reward })
	if s.metrics != nil {
		s.metrics.ClaimsAsserted.Inc()
	}
	s.logger.Info("claimed streak day", "day", day, "reward", reward)
	return reward
}

// StreakClaimed reports whether a streak day is claimed, locally or
// authoritatively.
func (s *Service) StreakClaimed(day int) bool {
	if s.pending.Has(StreakKey(day)) {
		return true
	}
	data, ok := s.cache.Get()
	return ok && day <= data.StreakDaysClaimed
}

// claimedLocally merges the authoritative claimed level with the pending
// overlay for one tier. Callers hold s.mu.
func (s *Service) claimedLocally(typ string, state backend.AchievementState, level int) bool {
	if level <= state.ClaimedLevel {
		return true
	}
	return s.pending.Has(ClaimKey(typ, level))
}

func (s *Service) onUserData(data backend.UserData) {
	keys := make([]string, 0, data.StreakDaysClaimed+len(data.ClaimedAchievements))
	for day := 1; day <= data.StreakDaysClaimed; day++ {
		keys = append(keys, StreakKey(day))
	}
	keys = append(keys, data.ClaimedAchievements...)
	s.pending.SyncKeys(keys)
}

func claimedKeys(snap backend.AchievementSnapshot) []string {
	var keys []string
	for typ, state := range snap.States {
		for level := 1; level <= state.ClaimedLevel; level++ {
			keys = append(keys, ClaimKey(typ, level))
		}
	}
	return keys
}
