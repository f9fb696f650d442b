// Package session orchestrates one gameplay session end to end: the
// server-granted start, wiring the run simulation, and the at-most-once
// submission of results. The orchestrator is the single writer of the current
// session id and the active flag; everything else routes through its public
// operations.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/skyrush-games/client/internal/backend"
	"github.com/skyrush-games/client/internal/bus"
	"github.com/skyrush-games/client/internal/clock"
	"github.com/skyrush-games/client/internal/metrics"
	"github.com/skyrush-games/client/internal/phase"
	"github.com/skyrush-games/client/internal/runsim"
	"github.com/skyrush-games/client/internal/userdata"
)

var (
	// ErrRequestInFlight means a session request is already running; rapid
	// double-taps are suppressed, not queued.
	ErrRequestInFlight = errors.New("session: request already in flight")

	// ErrSessionActive means a run is already live.
	ErrSessionActive = errors.New("session: session already active")

	// ErrGateRejected means the server denied the resource-gated grant.
	ErrGateRejected = errors.New("session: grant rejected")
)

// Session is one server-granted gameplay session.
type Session struct {
	ID        string
	Mode      backend.Mode
	GrantedAt time.Time
}

// World loads and tears down the gameplay objects (map, player). It is an
// external collaborator; Load returns once the world reports ready.
type World interface {
	Load(ctx context.Context, mode backend.Mode) error
	Teardown()
}

// StatApplier applies per-user stat modifiers to the freshly-reset model.
// External collaborator; may be nil.
type StatApplier interface {
	ApplyStats(m *runsim.Model)
}

// Journal is the local persistence surface the orchestrator writes through.
type Journal interface {
	JournalSubmission(sessionID, mode string, score int, success bool) error
	SessionSubmitted(sessionID string) (bool, error)
	SaveBestScore(mode string, score int) error
	BestScore(mode string) (int, error)
}

// EndSummary describes a finished session for observers.
type EndSummary struct {
	Mode         backend.Mode
	Score        int
	Coins        int
	NewHighScore bool
	Submitted    bool
}

// Events are the orchestrator's observer topics.
type Events struct {
	// GateRejected fires when a start request is denied; the payload is the
	// user-facing reason class.
	GateRejected *bus.Topic[string]
	// HighScore fires after a submission that beat the pre-session baseline,
	// before the phase returns to Meta.
	HighScore *bus.Topic[int]
	// FailFlowStarted asks the UI to play the end-of-run sequence.
	FailFlowStarted *bus.Topic[struct{}]
	// FailFlowDone is published by the UI when that sequence completes.
	FailFlowDone *bus.Topic[struct{}]
	// Ended fires once per finished session, after teardown.
	Ended *bus.Topic[EndSummary]
}

// Orchestrator runs the session state machine on top of the phase controller.
type Orchestrator struct {
	remote  backend.Client
	phases  *phase.Controller
	model   *runsim.Model
	cache   *userdata.Cache
	journal Journal
	world   World
	stats   StatApplier
	clk     clock.Clock
	metrics *metrics.Metrics
	logger  *log.Logger
	events  *Events

	// The session id and active flag are single-writer: only the operations
	// below mutate them. The mutex is never held across a network call.
	mu       sync.Mutex
	inFlight bool
	active   bool
	current  Session
	baseline int

	failFlowSub *bus.Subscription
}

// NewOrchestrator wires the session state machine. world, stats, journal and
// metrics may be nil.
func NewOrchestrator(remote backend.Client, phases *phase.Controller, model *runsim.Model,
	cache *userdata.Cache, journal Journal, world World, stats StatApplier,
	clk clock.Clock, m *metrics.Metrics, logger *log.Logger) *Orchestrator {
	o := &Orchestrator{
		remote:  remote,
		phases:  phases,
		model:   model,
		cache:   cache,
		journal: journal,
		world:   world,
		stats:   stats,
		clk:     clk,
		metrics: m,
		logger:  logger.With("component", "session"),
		events: &Events{
			GateRejected:    bus.NewTopic[string](),
			HighScore:       bus.NewTopic[int](),
			FailFlowStarted: bus.NewTopic[struct{}](),
			FailFlowDone:    bus.NewTopic[struct{}](),
			Ended:           bus.NewTopic[EndSummary](),
		},
	}

	phases.BindStarter(o)
	phases.Changes().Subscribe(o.onPhaseChange)
	return o
}

// Events exposes the orchestrator's topics.
func (o *Orchestrator) Events() *Events { return o.events }

// Active reports whether a session is live.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// CurrentSession returns the live session, zero when none.
func (o *Orchestrator) CurrentSession() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// RequestSessionAndStart asks the server for a session grant and, on success,
// flips the phase to Gameplay and starts the run. Single-flight: overlapping
// calls fail fast with ErrRequestInFlight. On rejection or failure the phase
// is left unchanged.
func (o *Orchestrator) RequestSessionAndStart(ctx context.Context, mode backend.Mode) error {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrRequestInFlight
	}
	if o.active {
		o.mu.Unlock()
		return ErrSessionActive
	}
	o.inFlight = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	if o.metrics != nil {
		o.metrics.SessionsRequested.WithLabelValues(string(mode)).Inc()
	}

	grant, err := o.remote.RequestSession(ctx, mode)
	if err != nil {
		o.logger.Error("session request failed", "mode", mode, "error", err)
		o.events.GateRejected.Publish("unavailable")
		return err
	}
	if !grant.OK || grant.SessionID == "" {
		if o.metrics != nil {
			o.metrics.SessionsDenied.Inc()
		}
		o.logger.Info("session grant denied", "mode", mode)
		o.events.GateRejected.Publish("insufficient-resource")
		return ErrGateRejected
	}

	if o.metrics != nil {
		o.metrics.SessionsGranted.Inc()
	}

	o.mu.Lock()
	o.current = Session{ID: grant.SessionID, Mode: mode, GrantedAt: o.clk.Now()}
	o.mu.Unlock()

	// Grant in hand: the phase may flip. Setup only proceeds once the phase
	// is confirmed Gameplay.
	o.phases.SetPhase(phase.Gameplay)
	if o.phases.Current() != phase.Gameplay {
		o.dropGrant()
		return errors.New("session: phase did not reach gameplay")
	}

	return o.setup(ctx, mode)
}

// dropGrant discards the stored session without submission.
func (o *Orchestrator) dropGrant() {
	o.mu.Lock()
	o.current = Session{}
	o.mu.Unlock()
}

func (o *Orchestrator) setup(ctx context.Context, mode backend.Mode) error {
	o.baseline = o.highScoreBaseline(mode)

	if o.world != nil {
		if err := o.world.Load(ctx, mode); err != nil {
			o.logger.Error("world load failed", "mode", mode, "error", err)
			o.dropGrant()
			o.phases.SetPhase(phase.Meta)
			return err
		}
	}

	// The world load is a suspension point: a return-to-meta request may have
	// flipped the phase while it ran. Starting the run now would leave a live
	// session outside Gameplay, so the grant is abandoned instead.
	if o.phases.Current() != phase.Gameplay {
		o.dropGrant()
		if o.world != nil {
			o.world.Teardown()
		}
		o.logger.Warn("phase left gameplay during setup; grant abandoned", "mode", mode)
		return errors.New("session: phase left gameplay during setup")
	}

	o.model.InitializeSession()
	if o.stats != nil {
		o.stats.ApplyStats(o.model)
	}
	o.model.StartRun()

	o.mu.Lock()
	o.active = true
	o.mu.Unlock()

	o.logger.Info("session started", "mode", mode, "baseline", o.baseline)
	return nil
}

// Advance drives the run simulation while a session is active.
func (o *Orchestrator) Advance(dt float64) {
	o.mu.Lock()
	active := o.active
	o.mu.Unlock()
	if active {
		o.model.Advance(dt)
	}
}

// EndSession finishes the active session: stops the simulation, submits the
// results, reconciles the high score and returns to Meta. No-op when no
// session is active; the session is marked inactive immediately, so a second
// call in the same tick does nothing.
func (o *Orchestrator) EndSession(ctx context.Context, success bool) error {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return nil
	}
	o.active = false
	sess := o.current
	o.mu.Unlock()

	// Stop the clock and let visual observers detach before any network
	// wait; nothing should look alive during the submission round trip.
	o.model.StopRun()

	req := backend.SubmitRequest{
		SessionID:         sess.ID,
		EarnedCurrency:    o.model.Coins(),
		EarnedScore:       o.model.Score(),
		MaxCombo:          o.model.MaxCombo(),
		PlaytimeSeconds:   o.model.Playtime(),
		PowerUpsCollected: o.model.PowerUpsCollected(),
		Mode:              sess.Mode,
		Success:           success,
	}

	res, submitted := o.submit(ctx, req)

	newHigh := submitted && !res.AlreadyProcessed && req.EarnedScore > o.baseline
	if newHigh {
		// Surface the celebration before the phase flips back.
		o.events.HighScore.Publish(req.EarnedScore)
	}

	if submitted {
		o.applySettlement(sess.Mode, req.EarnedScore, res)
	}

	o.phases.SetPhase(phase.Meta)

	if o.world != nil {
		o.world.Teardown()
	}
	o.model.ResetMultipliers()

	o.events.Ended.Publish(EndSummary{
		Mode:         sess.Mode,
		Score:        req.EarnedScore,
		Coins:        req.EarnedCurrency,
		NewHighScore: newHigh,
		Submitted:    submitted,
	})
	return nil
}

// submit consumes the granted session id exactly once, no matter how the
// network call ends. A missing id forbids submission outright.
func (o *Orchestrator) submit(ctx context.Context, req backend.SubmitRequest) (backend.SubmitResult, bool) {
	if req.SessionID == "" {
		return backend.SubmitResult{}, false
	}

	// Clear the stored id before anything can fail: at most one submission
	// per grant, including across panics inside the transport.
	defer func() {
		o.mu.Lock()
		o.current = Session{}
		o.mu.Unlock()
	}()

	if o.journal != nil {
		if done, err := o.journal.SessionSubmitted(req.SessionID); err == nil && done {
			o.logger.Warn("session already journaled; skipping submission", "session", req.SessionID)
			return backend.SubmitResult{}, false
		}
		if err := o.journal.JournalSubmission(req.SessionID, string(req.Mode), req.EarnedScore, req.Success); err != nil {
			o.logger.Error("cannot journal submission", "session", req.SessionID, "error", err)
		}
	}

	res, err := o.remote.SubmitGameplaySession(ctx, req)
	if err != nil {
		// Swallowed from the player's perspective; the id is consumed either
		// way so a retry is never silently re-sent.
		o.logger.Error("result submission failed", "session", req.SessionID, "error", err)
		o.countSubmission("failed")
		return backend.SubmitResult{}, false
	}

	if res.AlreadyProcessed {
		o.countSubmission("already_processed")
	} else {
		o.countSubmission("ok")
	}
	return res, true
}

func (o *Orchestrator) applySettlement(mode backend.Mode, score int, res backend.SubmitResult) {
	if o.journal != nil {
		if err := o.journal.SaveBestScore(string(mode), score); err != nil {
			o.logger.Warn("cannot persist best score", "error", err)
		}
	}
	o.cache.Mutate(func(d *backend.UserData) {
		d.Currency = res.TotalCurrency
		if res.MaxScore > d.MaxScore {
			d.MaxScore = res.MaxScore
		}
	})
}

// StartFailFlow stops the run immediately and asks the UI to play the
// end-of-run sequence; when the UI signals completion, EndSession(false) runs
// exactly once. Re-entering the fail flow re-arms the completion handler
// instead of stacking a second one.
func (o *Orchestrator) StartFailFlow() {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.model.StopRun()

	// Unsubscribe before re-subscribing: one completion, one EndSession.
	if o.failFlowSub != nil {
		o.failFlowSub.Cancel()
	}
	o.failFlowSub = o.events.FailFlowDone.Subscribe(func(struct{}) {
		o.failFlowSub.Cancel()
		o.EndSession(context.Background(), false)
	})

	o.events.FailFlowStarted.Publish(struct{}{})
}

// highScoreBaseline picks the comparison baseline for "new high score": the
// server-known max, or the local journal when the cached snapshot is stale.
func (o *Orchestrator) highScoreBaseline(mode backend.Mode) int {
	baseline := 0
	if data, ok := o.cache.Get(); ok {
		baseline = data.MaxScore
	}
	if o.journal != nil {
		if local, err := o.journal.BestScore(string(mode)); err == nil && local > baseline {
			baseline = local
		}
	}
	return baseline
}

// onPhaseChange tears down session state when something else drags the phase
// out of Gameplay (e.g. an unconditional return-to-meta request). The grant is
// abandoned unsubmitted.
func (o *Orchestrator) onPhaseChange(p phase.Phase) {
	if p == phase.Gameplay {
		return
	}

	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.active = false
	abandoned := o.current
	o.current = Session{}
	o.mu.Unlock()

	o.model.StopRun()
	o.model.ResetMultipliers()
	if o.world != nil {
		o.world.Teardown()
	}
	o.logger.Warn("session abandoned on phase change", "session", abandoned.ID, "phase", p)
}


func (o *Orchestrator) countSubmission(outcome string) {
	if o.metrics != nil {
		o.metrics.Submissions.WithLabelValues(outcome).Inc()
	}
}
