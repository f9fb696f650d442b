// Package boot runs the one-shot startup state machine: backend handshake,
// auth check, profile check, parallel game-data loading, ready. It drives the
// phase controller into Meta once the sequence lands.
package boot

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/skyrush-games/client/internal/backend"
	"github.com/skyrush-games/client/internal/bus"
	"github.com/skyrush-games/client/internal/phase"
	"github.com/skyrush-games/client/internal/userdata"
)

// Stage is the boot-time application stage. Transitions are one-directional
// except the explicit re-entries into ProfileCheck after login or profile
// completion. Ready is terminal.
type Stage int

const (
	StageBoot Stage = iota
	StageAuthCheck
	StageWaitingForLogin
	StageProfileCheck
	StageWaitingForProfile
	StageGameDataLoad
	StageReady
)

func (s Stage) String() string {
	switch s {
	case StageBoot:
		return "boot"
	case StageAuthCheck:
		return "auth-check"
	case StageWaitingForLogin:
		return "waiting-for-login"
	case StageProfileCheck:
		return "profile-check"
	case StageWaitingForProfile:
		return "waiting-for-profile"
	case StageGameDataLoad:
		return "game-data-load"
	case StageReady:
		return "ready"
	default:
		return "unknown"
	}
}

// GuestUsername is the reserved placeholder a fresh account carries until the
// player picks a name.
const GuestUsername = "Guest"

// ProfileComplete reports whether the snapshot carries a finished profile.
func ProfileComplete(d backend.UserData) bool {
	return d.Username != "" && d.Username != GuestUsername
}

// Authenticator is the external auth collaborator.
type Authenticator interface {
	Authenticated(ctx context.Context) (bool, error)
}

// Initializer is one independent data service brought up during GameDataLoad
// (inventory, purchase subsystem, per-user stat refresh).
type Initializer struct {
	Name string
	Run  func(ctx context.Context) error
}

// Sequencer is the boot state machine. Run drives it to completion; the two
// On* callbacks resume it from its waiting stages.
type Sequencer struct {
	auth      Authenticator
	remote    backend.Client
	cache     *userdata.Cache
	phases    *phase.Controller
	connect   func(ctx context.Context) error
	loaders   []Initializer
	titleInit func(ctx context.Context) error
	logger    *log.Logger

	stages *bus.Topic[Stage]

	mu    sync.Mutex
	stage Stage

	// resume is buffered so a login/profile signal arriving before the
	// sequencer reaches its wait is not lost.
	resume chan struct{}
}

// NewSequencer wires the boot state machine. connect, loaders and titleInit
// may be nil/empty.
func NewSequencer(auth Authenticator, remote backend.Client, cache *userdata.Cache,
	phases *phase.Controller, connect func(ctx context.Context) error,
	loaders []Initializer, titleInit func(ctx context.Context) error,
	logger *log.Logger) *Sequencer {
	return &Sequencer{
		auth:      auth,
		remote:    remote,
		cache:     cache,
		phases:    phases,
		connect:   connect,
		loaders:   loaders,
		titleInit: titleInit,
		logger:    logger.With("component", "boot"),
		stages:    bus.NewTopic[Stage](),
		resume:    make(chan struct{}, 1),
	}
}

// Stages is the topic every stage transition is broadcast on.
func (s *Sequencer) Stages() *bus.Topic[Stage] { return s.stages }

// Stage returns the current boot stage.
func (s *Sequencer) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// OnAuthenticationSuccess resumes the sequence after an external login.
// Idempotent; safe to call from any stage.
func (s *Sequencer) OnAuthenticationSuccess() { s.signal() }

// OnProfileCompleted resumes the sequence after the profile UI finishes. The
// profile is re-verified, never assumed complete.
func (s *Sequencer) OnProfileCompleted() { s.signal() }

func (s *Sequencer) signal() {
	select {
	case s.resume <- struct{}{}:
	default:
	}
}

// Run executes the boot sequence to Ready and flips the phase controller to
// Meta. Boot failure is terminal for the process lifetime: any error returned
// here means no retry, the caller decides whether to exit.
func (s *Sequencer) Run(ctx context.Context) error {
	s.set(StageBoot)

	if s.connect != nil {
		if err := s.connect(ctx); err != nil {
			s.logger.Error("backend initialization failed; boot aborted", "error", err)
			return fmt.Errorf("boot: backend init: %w", err)
		}
	}

	s.set(StageAuthCheck)
	authed, err := s.auth.Authenticated(ctx)
	if err != nil {
		return fmt.Errorf("boot: auth check: %w", err)
	}
	if !authed {
		s.set(StageWaitingForLogin)
		if err := s.wait(ctx); err != nil {
			return err
		}
	}

	for {
		s.set(StageProfileCheck)
		data, err := s.remote.LoadUserData(ctx)
		if err != nil {
			return fmt.Errorf("boot: load user data: %w", err)
		}
		s.cache.Set(data)

		if ProfileComplete(data) {
			break
		}
		s.logger.Info("profile incomplete; waiting", "username", data.Username)
		s.set(StageWaitingForProfile)
		if err := s.wait(ctx); err != nil {
			return err
		}
	}

	s.set(StageGameDataLoad)
	s.loadGameData(ctx)

	if s.titleInit != nil {
		if err := s.titleInit(ctx); err != nil {
			return fmt.Errorf("boot: title init: %w", err)
		}
	}

	s.set(StageReady)
	s.phases.SetPhase(phase.Meta)
	return nil
}

// loadGameData fans out to the data-service initializers and joins on all of
// them. A failing initializer is logged and does not block its siblings; the
// sequence only moves on once every one has settled.
func (s *Sequencer) loadGameData(ctx context.Context) {
	var wg sync.WaitGroup
	for _, l := range s.loaders {
		wg.Add(1)
		go func(l Initializer) {
			defer wg.Done()
			if err := l.Run(ctx); err != nil {
				s.logger.Error("data service init failed", "service", l.Name, "error", err)
			}
		}(l)
	}
	wg.Wait()
}

func (s *Sequencer) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.resume:
		return nil
	}
}

func (s *Sequencer) set(next Stage) {
	s.mu.Lock()
	s.stage = next
	s.mu.Unlock()
	s.logger.Debug("boot stage", "stage", next)
	s.stages.Publish(next)
}
