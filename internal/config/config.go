// Package config loads the two configuration surfaces of the client: gameplay
// tuning from yaml files and environment-driven settings for the backend
// connection.
package config

// Tuning holds the gameplay numbers the run simulation consumes.
type Tuning struct {
	Speed   SpeedTuning   `yaml:"speed"`
	Booster BoosterTuning `yaml:"booster"`
	Combo   ComboTuning   `yaml:"combo"`
}

// SpeedTuning shapes the forward speed ramp.
type SpeedTuning struct {
	Start        float64 `yaml:"start"`
	Max          float64 `yaml:"max"`
	Acceleration float64 `yaml:"acceleration"`
}

// BoosterTuning shapes the booster charge and decay.
type BoosterTuning struct {
	MinFill     float64 `yaml:"min_fill"`
	MaxFill     float64 `yaml:"max_fill"`
	FillPerCoin float64 `yaml:"fill_per_coin"`
	Duration    float64 `yaml:"duration_secs"`
}

// ComboTuning shapes the pickup combo counter.
type ComboTuning struct {
	Base   int     `yaml:"base"`
	Window float64 `yaml:"window_secs"`
}

// DefaultTuning returns the hardcoded fallback tuning used when even the
// embedded yaml cannot be parsed.
func DefaultTuning() Tuning {
	return Tuning{
		Speed: SpeedTuning{
			Start:        6.0,
			Max:          24.0,
			Acceleration: 0.35,
		},
		Booster: BoosterTuning{
			MinFill:     0,
			MaxFill:     100,
			FillPerCoin: 1.0,
			Duration:    5.0,
		},
		Combo: ComboTuning{
			Base:   1,
			Window: 3.0,
		},
	}
}
