// Package runsim implements the economic model of one gameplay run: the speed
// ramp, score derived from forward displacement, coin and booster bookkeeping
// and the combo counter. It is a pure per-tick simulation driven by an
// injected dt; it knows nothing about the network, rendering or input.
package runsim

import "github.com/skyrush-games/client/internal/config"

// Model is the per-run simulation. All mutating operations are synchronous
// and none of them suspend; callers drive it from the single frame loop.
type Model struct {
	cfg    config.Tuning
	events *Events

	running bool

	baseSpeed     float64
	gameplayMult  float64
	playerMult    float64
	position      float64
	scoreBaseline float64
	score         int

	coins       int
	boosterFill float64
	boosterLeft float64 // seconds of booster decay remaining, 0 when inactive

	combo     int
	comboIdle float64 // seconds since the last pickup
	maxCombo  int

	boosterUses int

	playtime float64
}

// New creates a model with neutral multipliers and everything zeroed.
func New(cfg config.Tuning) *Model {
	m := &Model{cfg: cfg, events: newEvents()}
	m.InitializeSession()
	return m
}

// Events exposes the model's observer topics.
func (m *Model) Events() *Events { return m.events }

// InitializeSession resets every value to its default. The clock does not
// start until StartRun.
func (m *Model) InitializeSession() {
	m.running = false
	m.baseSpeed = 0
	m.gameplayMult = 1.0
	m.playerMult = 1.0
	m.position = 0
	m.scoreBaseline = 0
	m.score = 0
	m.coins = 0
	m.boosterFill = m.cfg.Booster.MinFill
	m.boosterLeft = 0
	m.combo = m.cfg.Combo.Base
	m.comboIdle = 0
	m.maxCombo = m.cfg.Combo.Base
	m.boosterUses = 0
	m.playtime = 0
}

// StartRun starts the clock at the configured start speed and records the
// score baseline. No-op if already running.
func (m *Model) StartRun() {
	if m.running {
		return
	}
	m.baseSpeed = clamp(m.cfg.Speed.Start, 0, m.cfg.Speed.Max)
	m.scoreBaseline = m.position
	m.running = true
	m.events.RunStarted.Publish(struct{}{})
	m.publishSpeed()
}

// Advance moves the simulation forward by dt seconds. Negative dt is ignored.
func (m *Model) Advance(dt float64) {
	if !m.running || dt <= 0 {
		return
	}
	m.playtime += dt

	m.baseSpeed += m.cfg.Speed.Acceleration * dt
	if m.baseSpeed > m.cfg.Speed.Max {
		m.baseSpeed = m.cfg.Speed.Max
	}

	m.position += m.EffectiveSpeed() * dt
	if s := int(m.position - m.scoreBaseline); s > m.score {
		m.score = s
		m.events.ScoreChanged.Publish(m.score)
	}

	if m.boosterLeft > 0 {
		m.boosterLeft -= dt
		frac := m.boosterLeft / m.cfg.Booster.Duration
		if frac < 0 {
			frac = 0
		}
		m.setBoosterFill(m.cfg.Booster.MinFill + frac*(m.cfg.Booster.MaxFill-m.cfg.Booster.MinFill))
		if m.boosterLeft <= 0 {
			m.boosterLeft = 0
			m.events.BoosterEnded.Publish(struct{}{})
		}
	}

	if m.combo > m.cfg.Combo.Base {
		m.comboIdle += dt
		if m.comboIdle >= m.cfg.Combo.Window {
			m.setCombo(m.cfg.Combo.Base)
		}
	}

	m.publishSpeed()
}

// AddCoins credits picked-up coins and charges the booster. delta <= 0 is a
// no-op. pos, when non-nil, is forwarded as a pickup FX request.
func (m *Model) AddCoins(delta int, pos *Vec2) {
	if delta <= 0 {
		return
	}
	m.coins += delta
	m.events.CoinsChanged.Publish(m.coins)

	if m.boosterLeft == 0 {
		m.setBoosterFill(m.boosterFill + float64(delta)*m.cfg.Booster.FillPerCoin)
	}

	m.setCombo(m.combo + delta)
	m.comboIdle = 0

	if pos != nil {
		m.events.PickupFXRequest.Publish(*pos)
	}
}

// BoosterUse activates the booster. Only valid when the fill is at max and no
// booster is already running; otherwise a no-op.
func (m *Model) BoosterUse() {
	if m.boosterLeft > 0 || m.boosterFill < m.cfg.Booster.MaxFill {
		return
	}
	m.boosterLeft = m.cfg.Booster.Duration
	m.boosterUses++
	m.events.BoosterStarted.Publish(struct{}{})
}

// BoosterActive reports whether a booster decay is in flight.
func (m *Model) BoosterActive() bool { return m.boosterLeft > 0 }

// ApplyGameplaySpeedPercent scales the gameplay multiplier by (1+delta),
// floored at 0. Takes effect immediately when running.
func (m *Model) ApplyGameplaySpeedPercent(delta float64) {
	m.gameplayMult *= 1 + delta
	if m.gameplayMult < 0 {
		m.gameplayMult = 0
	}
	if m.running {
		m.publishSpeed()
	}
}

// ApplyPlayerSpeedPercent scales the player-facing multiplier by (1+delta),
// floored at 0.
func (m *Model) ApplyPlayerSpeedPercent(delta float64) {
	m.playerMult *= 1 + delta
	if m.playerMult < 0 {
		m.playerMult = 0
	}
}

// ResetMultipliers returns both multipliers to neutral.
func (m *Model) ResetMultipliers() {
	m.gameplayMult = 1.0
	m.playerMult = 1.0
}

// StopRun halts the clock, cancels any in-flight booster decay and resets the
// booster and combo. Idempotent.
func (m *Model) StopRun() {
	if !m.running {
		return
	}
	m.running = false
	if m.boosterLeft > 0 {
		m.boosterLeft = 0
		m.events.BoosterEnded.Publish(struct{}{})
	}
	m.setBoosterFill(m.cfg.Booster.MinFill)
	m.setCombo(m.cfg.Combo.Base)
	m.events.RunStopped.Publish(struct{}{})
}

// ResetRun is StopRun plus a full state reset.
func (m *Model) ResetRun() {
	m.StopRun()
	m.InitializeSession()
}

func (m *Model) publishSpeed() {
	m.events.SpeedChanged.Publish(SpeedChange{Base: m.baseSpeed, Effective: m.EffectiveSpeed()})
}

func (m *Model) setBoosterFill(v float64) {
	v = clamp(v, m.cfg.Booster.MinFill, m.cfg.Booster.MaxFill)
	if v != m.boosterFill {
		m.boosterFill = v
		m.events.BoosterFill.Publish(v)
	}
}

func (m *Model) setCombo(v int) {
	if v == m.combo {
		return
	}
	m.combo = v
	if v > m.maxCombo {
		m.maxCombo = v
	}
	m.events.ComboChanged.Publish(v)
}

// Running reports whether the run clock is live.
func (m *Model) Running() bool { return m.running }

// Score is the run score so far. Non-decreasing while running.
func (m *Model) Score() int { return m.score }

// Coins is the number of coins collected this run.
func (m *Model) Coins() int { return m.coins }

// Combo is the current combo multiplier.
func (m *Model) Combo() int { return m.combo }

// MaxCombo is the highest combo reached this run.
func (m *Model) MaxCombo() int { return m.maxCombo }

// PowerUpsCollected counts booster activations this run.
func (m *Model) PowerUpsCollected() int { return m.boosterUses }

// BoosterFillValue is the current booster charge in [MinFill, MaxFill].
func (m *Model) BoosterFillValue() float64 { return m.boosterFill }

// BaseSpeed is the un-multiplied forward speed.
func (m *Model) BaseSpeed() float64 { return m.baseSpeed }

// EffectiveSpeed is base speed scaled by the gameplay multiplier.
func (m *Model) EffectiveSpeed() float64 { return m.baseSpeed * max(0, m.gameplayMult) }

// GameplayMultiplier returns the gameplay speed multiplier.
func (m *Model) GameplayMultiplier() float64 { return m.gameplayMult }

// PlayerMultiplier returns the player-facing speed multiplier.
func (m *Model) PlayerMultiplier() float64 { return m.playerMult }

// Playtime is the accumulated simulated seconds while running.
func (m *Model) Playtime() float64 { return m.playtime }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
