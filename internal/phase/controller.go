// Package phase owns the top-level application phase. Everything that is only
// alive during gameplay keys off the Changes topic; the controller itself
// never knows who is listening.
package phase

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/skyrush-games/client/internal/backend"
	"github.com/skyrush-games/client/internal/bus"
)

// Phase is the mutually-exclusive top-level mode of the application.
type Phase int

const (
	Boot Phase = iota
	Meta
	Gameplay
)

func (p Phase) String() string {
	switch p {
	case Boot:
		return "boot"
	case Meta:
		return "meta"
	case Gameplay:
		return "gameplay"
	default:
		return "unknown"
	}
}

// StartRequest asks the controller to begin a gameplay session.
type StartRequest struct {
	Mode backend.Mode
}

// ReturnRequest asks the controller to return to Meta.
type ReturnRequest struct{}

// GameplayStarter is the gate consulted on a start request. The implementation
// (the session orchestrator) flips the phase to Gameplay itself once the
// server grant arrives; on rejection the phase stays put.
type GameplayStarter interface {
	RequestSessionAndStart(ctx context.Context, mode backend.Mode) error
}

// Controller is the three-state phase machine. The current phase mutates only
// through SetPhase; inbound requests travel over the two request topics so UI
// code never holds a reference to the orchestrator.
type Controller struct {
	logger *log.Logger

	mu      sync.Mutex
	current Phase

	changes *bus.Topic[Phase]
	starts  *bus.Topic[StartRequest]
	returns *bus.Topic[ReturnRequest]

	starter GameplayStarter
}

// NewController creates a controller in the Boot phase.
func NewController(logger *log.Logger) *Controller {
	c := &Controller{
		logger:  logger.With("component", "phase"),
		current: Boot,
		changes: bus.NewTopic[Phase](),
		starts:  bus.NewTopic[StartRequest](),
		returns: bus.NewTopic[ReturnRequest](),
	}
	c.starts.Subscribe(c.onStartRequest)
	c.returns.Subscribe(func(ReturnRequest) { c.SetPhase(Meta) })
	return c
}

// BindStarter wires the gameplay gate. Must be called before start requests
// are published; without a starter, requests are dropped with a warning.
func (c *Controller) BindStarter(s GameplayStarter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starter = s
}

// Current returns the current phase.
func (c *Controller) Current() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Changes is the topic every phase transition is broadcast on.
func (c *Controller) Changes() *bus.Topic[Phase] { return c.changes }

// StartRequests is the inbound topic for "start gameplay" asks.
func (c *Controller) StartRequests() *bus.Topic[StartRequest] { return c.starts }

// ReturnRequests is the inbound topic for "return to meta" asks.
func (c *Controller) ReturnRequests() *bus.Topic[ReturnRequest] { return c.returns }

// SetPhase transitions to next and broadcasts before returning. No-op when
// next equals the current phase.
func (c *Controller) SetPhase(next Phase) {
	c.mu.Lock()
	if next == c.current {
		c.mu.Unlock()
		return
	}
	prev := c.current
	c.current = next
	c.mu.Unlock()

	c.logger.Info("phase change", "from", prev, "to", next)
	c.changes.Publish(next)
}

func (c *Controller) onStartRequest(req StartRequest) {
	c.mu.Lock()
	starter := c.starter
	c.mu.Unlock()

	if starter == nil {
		c.logger.Warn("start request with no gameplay starter bound", "mode", req.Mode)
		return
	}

	// The starter owns the gate: it only flips the phase after a grant, so a
	// rejection leaves the current phase untouched.
	if err := starter.RequestSessionAndStart(context.Background(), req.Mode); err != nil {
		c.logger.Warn("gameplay start rejected", "mode", req.Mode, "error", err)
	}
}
