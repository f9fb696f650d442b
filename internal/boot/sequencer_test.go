package boot

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyrush-games/client/internal/backend"
	"github.com/skyrush-games/client/internal/phase"
	"github.com/skyrush-games/client/internal/userdata"
)

type fakeAuth struct {
	authed bool
	err    error
}

func (f *fakeAuth) Authenticated(context.Context) (bool, error) { return f.authed, f.err }

type fakeRemote struct {
	mu   sync.Mutex
	data backend.UserData
	err  error
}

func (f *fakeRemote) setData(d backend.UserData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = d
}

func (f *fakeRemote) LoadUserData(context.Context) (backend.UserData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.err
}

func (f *fakeRemote) RequestSession(context.Context, backend.Mode) (backend.SessionGrant, error) {
	return backend.SessionGrant{}, nil
}

func (f *fakeRemote) SubmitGameplaySession(context.Context, backend.SubmitRequest) (backend.SubmitResult, error) {
	return backend.SubmitResult{}, nil
}

func (f *fakeRemote) VerifyPurchase(context.Context, string, string) (backend.VerifyResult, error) {
	return backend.VerifyResult{}, nil
}

func (f *fakeRemote) FetchAchievementSnapshot(context.Context) (backend.AchievementSnapshot, error) {
	return backend.AchievementSnapshot{}, nil
}

func newSequencer(auth *fakeAuth, remote *fakeRemote, loaders []Initializer) (*Sequencer, *phase.Controller, *userdata.Cache) {
	logger := log.New(io.Discard)
	phases := phase.NewController(logger)
	cache := userdata.NewCache()
	seq := NewSequencer(auth, remote, cache, phases, nil, loaders, nil, logger)
	return seq, phases, cache
}

// stageWatcher records every broadcast stage and lets tests wait for one.
type stageWatcher struct {
	mu     sync.Mutex
	stages []Stage
	reach  map[Stage]chan struct{}
}

func watch(seq *Sequencer) *stageWatcher {
	w := &stageWatcher{reach: map[Stage]chan struct{}{}}
	for s := StageBoot; s <= StageReady; s++ {
		w.reach[s] = make(chan struct{})
	}
	seq.Stages().Subscribe(func(s Stage) {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.stages = append(w.stages, s)
		select {
		case <-w.reach[s]:
		default:
			close(w.reach[s])
		}
	})
	return w
}

func (w *stageWatcher) waitFor(t *testing.T, s Stage) {
	t.Helper()
	select {
	case <-w.reach[s]:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stage %v", s)
	}
}

func (w *stageWatcher) seen() []Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Stage(nil), w.stages...)
}

func TestRunHappyPath(t *testing.T) {
	remote := &fakeRemote{data: backend.UserData{Username: "ace"}}
	seq, phases, cache := newSequencer(&fakeAuth{authed: true}, remote, nil)
	w := watch(seq)

	require.NoError(t, seq.Run(context.Background()))

	assert.Equal(t, StageReady, seq.Stage())
	assert.Equal(t, phase.Meta, phases.Current())
	data, ok := cache.Get()
	require.True(t, ok)
	assert.Equal(t, "ace", data.Username)

	// WaitingForLogin and WaitingForProfile are skipped outright.
	assert.Equal(t, []Stage{StageBoot, StageAuthCheck, StageProfileCheck, StageGameDataLoad, StageReady}, w.seen())
}

func TestRunWaitsForLogin(t *testing.T) {
	remote := &fakeRemote{data: backend.UserData{Username: "ace"}}
	seq, phases, _ := newSequencer(&fakeAuth{authed: false}, remote, nil)
	w := watch(seq)

	done := make(chan error, 1)
	go func() { done <- seq.Run(context.Background()) }()

	w.waitFor(t, StageWaitingForLogin)
	assert.Equal(t, phase.Boot, phases.Current())

	seq.OnAuthenticationSuccess()
	require.NoError(t, <-done)
	assert.Equal(t, StageReady, seq.Stage())
	assert.Equal(t, phase.Meta, phases.Current())
}

func TestRunReverifiesProfile(t *testing.T) {
	remote := &fakeRemote{data: backend.UserData{Username: GuestUsername}}
	seq, phases, cache := newSequencer(&fakeAuth{authed: true}, remote, nil)
	w := watch(seq)

	done := make(chan error, 1)
	go func() { done <- seq.Run(context.Background()) }()

	w.waitFor(t, StageWaitingForProfile)

	// Completion does not assume the profile is done: a still-guest snapshot
	// loops back into the wait.
	seq.OnProfileCompleted()
	time.Sleep(50 * time.Millisecond)
	assert.NotEqual(t, StageReady, seq.Stage())

	remote.setData(backend.UserData{Username: "ace"})
	seq.OnProfileCompleted()
	require.NoError(t, <-done)
	assert.Equal(t, phase.Meta, phases.Current())

	data, _ := cache.Get()
	assert.Equal(t, "ace", data.Username)
}

func TestLoaderFailureDoesNotBlockSiblings(t *testing.T) {
	var ran atomic.Int32
	loaders := []Initializer{
		{Name: "inventory", Run: func(context.Context) error { ran.Add(1); return errors.New("boom") }},
		{Name: "purchases", Run: func(context.Context) error { ran.Add(1); return nil }},
		{Name: "stats", Run: func(context.Context) error { ran.Add(1); return nil }},
	}
	remote := &fakeRemote{data: backend.UserData{Username: "ace"}}
	seq, phases, _ := newSequencer(&fakeAuth{authed: true}, remote, loaders)

	require.NoError(t, seq.Run(context.Background()))

	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, StageReady, seq.Stage())
	assert.Equal(t, phase.Meta, phases.Current())
}

func TestBackendInitFailureIsFatal(t *testing.T) {
	remote := &fakeRemote{data: backend.UserData{Username: "ace"}}
	logger := log.New(io.Discard)
	phases := phase.NewController(logger)
	connect := func(context.Context) error { return errors.New("no network") }
	seq := NewSequencer(&fakeAuth{authed: true}, remote, userdata.NewCache(), phases, connect, nil, nil, logger)

	err := seq.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, phase.Boot, phases.Current())
	assert.Equal(t, StageBoot, seq.Stage())
}

func TestUserDataFailureIsFatal(t *testing.T) {
	remote := &fakeRemote{err: errors.New("503")}
	seq, phases, _ := newSequencer(&fakeAuth{authed: true}, remote, nil)

	err := seq.Run(context.Background())
	require.Error(t, err)
	assert.NotEqual(t, phase.Meta, phases.Current())
}

func TestWaitHonorsContext(t *testing.T) {
	remote := &fakeRemote{data: backend.UserData{Username: "ace"}}
	seq, _, _ := newSequencer(&fakeAuth{authed: false}, remote, nil)
	w := watch(seq)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- seq.Run(ctx) }()

	w.waitFor(t, StageWaitingForLogin)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestEarlyLoginSignalIsNotLost(t *testing.T) {
	remote := &fakeRemote{data: backend.UserData{Username: "ace"}}
	seq, phases, _ := newSequencer(&fakeAuth{authed: false}, remote, nil)

	// Auth completes before Run reaches the wait.
	seq.OnAuthenticationSuccess()
	require.NoError(t, seq.Run(context.Background()))
	assert.Equal(t, phase.Meta, phases.Current())
}
