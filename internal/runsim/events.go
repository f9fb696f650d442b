package runsim

import "github.com/skyrush-games/client/internal/bus"

// Vec2 is a world position attached to pickup FX requests. The model never
// renders anything; observers decide what to do with it.
type Vec2 struct {
	X, Y float64
}

// SpeedChange carries the new speed pair after any recompute.
type SpeedChange struct {
	Base      float64
	Effective float64
}

// Events are the model's observer topics. All publishes happen synchronously
// inside the mutating call.
type Events struct {
	RunStarted      *bus.Topic[struct{}]
	RunStopped      *bus.Topic[struct{}]
	ScoreChanged    *bus.Topic[int]
	CoinsChanged    *bus.Topic[int]
	ComboChanged    *bus.Topic[int]
	SpeedChanged    *bus.Topic[SpeedChange]
	BoosterFill     *bus.Topic[float64]
	BoosterStarted  *bus.Topic[struct{}]
	BoosterEnded    *bus.Topic[struct{}]
	PickupFXRequest *bus.Topic[Vec2]
}

func newEvents() *Events {
	return &Events{
		RunStarted:      bus.NewTopic[struct{}](),
		RunStopped:      bus.NewTopic[struct{}](),
		ScoreChanged:    bus.NewTopic[int](),
		CoinsChanged:    bus.NewTopic[int](),
		ComboChanged:    bus.NewTopic[int](),
		SpeedChanged:    bus.NewTopic[SpeedChange](),
		BoosterFill:     bus.NewTopic[float64](),
		BoosterStarted:  bus.NewTopic[struct{}](),
		BoosterEnded:    bus.NewTopic[struct{}](),
		PickupFXRequest: bus.NewTopic[Vec2](),
	}
}
