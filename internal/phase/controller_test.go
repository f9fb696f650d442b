package phase

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"

	"github.com/skyrush-games/client/internal/backend"
)

type stubStarter struct {
	calls []backend.Mode
	run   func(ctrl *Controller) error
}

func (s *stubStarter) RequestSessionAndStart(_ context.Context, mode backend.Mode) error {
	s.calls = append(s.calls, mode)
	if s.run != nil {
		return s.run(nil)
	}
	return nil
}

func newController() *Controller {
	return NewController(log.New(io.Discard))
}

func TestSetPhase_NoopOnSameValue(t *testing.T) {
	c := newController()

	var seen []Phase
	c.Changes().Subscribe(func(p Phase) { seen = append(seen, p) })

	c.SetPhase(Meta)
	c.SetPhase(Meta)
	c.SetPhase(Gameplay)

	assert.Equal(t, []Phase{Meta, Gameplay}, seen)
	assert.Equal(t, Gameplay, c.Current())
}

func TestSetPhase_BroadcastBeforeReturn(t *testing.T) {
	c := newController()

	observed := Boot
	c.Changes().Subscribe(func(p Phase) { observed = p })

	c.SetPhase(Meta)
	assert.Equal(t, Meta, observed, "subscriber must see the phase before SetPhase returns")
}

func TestStartRequest_DelegatesToStarter(t *testing.T) {
	c := newController()
	c.SetPhase(Meta)

	s := &stubStarter{}
	c.BindStarter(s)

	c.StartRequests().Publish(StartRequest{Mode: backend.ModeEndless})
	assert.Equal(t, []backend.Mode{backend.ModeEndless}, s.calls)
}

func TestStartRequest_RejectionLeavesPhase(t *testing.T) {
	c := newController()
	c.SetPhase(Meta)

	s := &stubStarter{run: func(*Controller) error { return errors.New("insufficient energy") }}
	c.BindStarter(s)

	c.StartRequests().Publish(StartRequest{Mode: backend.ModeChapter})
	assert.Equal(t, Meta, c.Current(), "rejected gate must not change phase")
}

func TestReturnRequest_Unconditional(t *testing.T) {
	c := newController()
	c.SetPhase(Gameplay)

	c.ReturnRequests().Publish(ReturnRequest{})
	assert.Equal(t, Meta, c.Current())
}

func TestStartRequest_NoStarterIsDropped(t *testing.T) {
	c := newController()
	c.SetPhase(Meta)

	c.StartRequests().Publish(StartRequest{Mode: backend.ModeEndless})
	assert.Equal(t, Meta, c.Current())
}
