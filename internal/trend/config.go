package trend

import (
	"fmt"
	"math"
	"strings"
)

// Preset names one of the canonical threshold profiles.
type Preset int

const (
	PresetDefault Preset = iota
	PresetConservative
	PresetModerate
	PresetAggressive
)

var presetNames = map[Preset]string{
	PresetDefault:      "default",
	PresetConservative: "conservative",
	PresetModerate:     "moderate",
	PresetAggressive:   "aggressive",
}

func (p Preset) String() string {
	if s, ok := presetNames[p]; ok {
		return s
	}
	return "unknown"
}

// Presets lists every named preset in declaration order.
func Presets() []Preset {
	return []Preset{PresetDefault, PresetConservative, PresetModerate, PresetAggressive}
}

// ParsePreset resolves a case-insensitive preset name.
func ParsePreset(s string) (Preset, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range presetNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown preset %q (valid: default, conservative, moderate, aggressive)", ErrInvalidConfiguration, s)
}

// Thresholds are the nine knobs that drive segmentation.
type Thresholds struct {
	MaxOutliers         int     `json:"max_outliers" yaml:"max_outliers"`
	SoftAdjRSquaredMin  float64 `json:"soft_adj_r_squared_minimum" yaml:"soft_adj_r_squared_minimum"`
	HardAdjRSquaredMin  float64 `json:"hard_adj_r_squared_minimum" yaml:"hard_adj_r_squared_minimum"`
	SoftRMSEMultiplier  float64 `json:"soft_rmse_multiplier" yaml:"soft_rmse_multiplier"`
	HardRMSEMultiplier  float64 `json:"hard_rmse_multiplier" yaml:"hard_rmse_multiplier"`
	SoftDurbinWatsonMin float64 `json:"soft_durbin_watson_min" yaml:"soft_durbin_watson_min"`
	SoftDurbinWatsonMax float64 `json:"soft_durbin_watson_max" yaml:"soft_durbin_watson_max"`
	HardDurbinWatsonMin float64 `json:"hard_durbin_watson_min" yaml:"hard_durbin_watson_min"`
	HardDurbinWatsonMax float64 `json:"hard_durbin_watson_max" yaml:"hard_durbin_watson_max"`
}

var presetThresholds = map[Preset]Thresholds{
	PresetDefault: {
		MaxOutliers:         1,
		SoftAdjRSquaredMin:  0.25,
		HardAdjRSquaredMin:  0.05,
		SoftRMSEMultiplier:  1.3,
		HardRMSEMultiplier:  2.0,
		SoftDurbinWatsonMin: 1.0,
		SoftDurbinWatsonMax: 3.0,
		HardDurbinWatsonMin: 0.7,
		HardDurbinWatsonMax: 3.3,
	},
	PresetConservative: {
		MaxOutliers:         2,
		SoftAdjRSquaredMin:  0.4,
		HardAdjRSquaredMin:  0.2,
		SoftRMSEMultiplier:  1.5,
		HardRMSEMultiplier:  2.5,
		SoftDurbinWatsonMin: 1.2,
		SoftDurbinWatsonMax: 2.8,
		HardDurbinWatsonMin: 0.9,
		HardDurbinWatsonMax: 3.1,
	},
	PresetAggressive: {
		MaxOutliers:         0,
		SoftAdjRSquaredMin:  0.1,
		HardAdjRSquaredMin:  0.01,
		SoftRMSEMultiplier:  1.1,
		HardRMSEMultiplier:  1.5,
		SoftDurbinWatsonMin: 0.8,
		SoftDurbinWatsonMax: 3.2,
		HardDurbinWatsonMin: 0.5,
		HardDurbinWatsonMax: 3.5,
	},
}

func init() {
	presetThresholds[PresetModerate] = presetThresholds[PresetDefault]
}

// Validate checks that every value is usable and that each soft bound trips
// before its hard counterpart.
func (t Thresholds) Validate() error {
	if t.MaxOutliers < 0 {
		return fmt.Errorf("%w: max_outliers must not be negative, got %d", ErrInvalidConfiguration, t.MaxOutliers)
	}
	values := map[string]float64{
		"soft_adj_r_squared_minimum": t.SoftAdjRSquaredMin,
		"hard_adj_r_squared_minimum": t.HardAdjRSquaredMin,
		"soft_rmse_multiplier":       t.SoftRMSEMultiplier,
		"hard_rmse_multiplier":       t.HardRMSEMultiplier,
		"soft_durbin_watson_min":     t.SoftDurbinWatsonMin,
		"soft_durbin_watson_max":     t.SoftDurbinWatsonMax,
		"hard_durbin_watson_min":     t.HardDurbinWatsonMin,
		"hard_durbin_watson_max":     t.HardDurbinWatsonMax,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidConfiguration, name)
		}
	}
	if t.SoftRMSEMultiplier <= 0 || t.HardRMSEMultiplier <= 0 {
		return fmt.Errorf("%w: rmse multipliers must be positive", ErrInvalidConfiguration)
	}
	if t.SoftAdjRSquaredMin < t.HardAdjRSquaredMin {
		return fmt.Errorf("%w: soft adjusted r² minimum %.4g is below hard minimum %.4g",
			ErrInvalidConfiguration, t.SoftAdjRSquaredMin, t.HardAdjRSquaredMin)
	}
	if t.SoftRMSEMultiplier > t.HardRMSEMultiplier {
		return fmt.Errorf("%w: soft rmse multiplier %.4g exceeds hard multiplier %.4g",
			ErrInvalidConfiguration, t.SoftRMSEMultiplier, t.HardRMSEMultiplier)
	}
	if t.SoftDurbinWatsonMin > t.SoftDurbinWatsonMax {
		return fmt.Errorf("%w: soft durbin-watson band [%.4g, %.4g] is empty",
			ErrInvalidConfiguration, t.SoftDurbinWatsonMin, t.SoftDurbinWatsonMax)
	}
	if t.HardDurbinWatsonMin > t.SoftDurbinWatsonMin || t.SoftDurbinWatsonMax > t.HardDurbinWatsonMax {
		return fmt.Errorf("%w: soft durbin-watson band [%.4g, %.4g] must lie within hard band [%.4g, %.4g]",
			ErrInvalidConfiguration, t.SoftDurbinWatsonMin, t.SoftDurbinWatsonMax, t.HardDurbinWatsonMin, t.HardDurbinWatsonMax)
	}
	return nil
}

// Config selects thresholds either by preset or as a complete custom set.
// The zero value is the default preset.
type Config struct {
	preset Preset
	custom *Thresholds
}

// PresetConfig selects a named preset.
func PresetConfig(p Preset) Config {
	return Config{preset: p}
}

// CustomConfig supplies all nine thresholds at once.
func CustomConfig(t Thresholds) Config {
	return Config{custom: &t}
}

// IsCustom reports whether the config carries custom thresholds.
func (c Config) IsCustom() bool { return c.custom != nil }

func (c Config) String() string {
	if c.custom != nil {
		return "custom"
	}
	return c.preset.String()
}

// Resolve returns the concrete thresholds, validating custom values.
func (c Config) Resolve() (Thresholds, error) {
	if c.custom != nil {
		if err := c.custom.Validate(); err != nil {
			return Thresholds{}, err
		}
		return *c.custom, nil
	}
	t, ok := presetThresholds[c.preset]
	if !ok {
		return Thresholds{}, fmt.Errorf("%w: unknown preset %d", ErrInvalidConfiguration, int(c.preset))
	}
	return t, nil
}

// ConfigSpec is the request form of a Config as it arrives from JSON, YAML or
// flags: a preset name, or all nine custom values, never both and never part.
type ConfigSpec struct {
	Preset              string   `json:"preset,omitempty" yaml:"preset,omitempty"`
	MaxOutliers         *int     `json:"max_outliers,omitempty" yaml:"max_outliers,omitempty"`
	SoftAdjRSquaredMin  *float64 `json:"soft_adj_r_squared_minimum,omitempty" yaml:"soft_adj_r_squared_minimum,omitempty"`
	HardAdjRSquaredMin  *float64 `json:"hard_adj_r_squared_minimum,omitempty" yaml:"hard_adj_r_squared_minimum,omitempty"`
	SoftRMSEMultiplier  *float64 `json:"soft_rmse_multiplier,omitempty" yaml:"soft_rmse_multiplier,omitempty"`
	HardRMSEMultiplier  *float64 `json:"hard_rmse_multiplier,omitempty" yaml:"hard_rmse_multiplier,omitempty"`
	SoftDurbinWatsonMin *float64 `json:"soft_durbin_watson_min,omitempty" yaml:"soft_durbin_watson_min,omitempty"`
	SoftDurbinWatsonMax *float64 `json:"soft_durbin_watson_max,omitempty" yaml:"soft_durbin_watson_max,omitempty"`
	HardDurbinWatsonMin *float64 `json:"hard_durbin_watson_min,omitempty" yaml:"hard_durbin_watson_min,omitempty"`
	HardDurbinWatsonMax *float64 `json:"hard_durbin_watson_max,omitempty" yaml:"hard_durbin_watson_max,omitempty"`
}

// Build turns the request into a Config.
func (s ConfigSpec) Build() (Config, error) {
	floats := []*float64{
		s.SoftAdjRSquaredMin, s.HardAdjRSquaredMin,
		s.SoftRMSEMultiplier, s.HardRMSEMultiplier,
		s.SoftDurbinWatsonMin, s.SoftDurbinWatsonMax,
		s.HardDurbinWatsonMin, s.HardDurbinWatsonMax,
	}
	set := 0
	if s.MaxOutliers != nil {
		set++
	}
	for _, f := range floats {
		if f != nil {
			set++
		}
	}

	switch {
	case s.Preset != "" && set > 0:
		return Config{}, fmt.Errorf("%w: preset %q cannot be combined with custom thresholds", ErrInvalidConfiguration, s.Preset)
	case s.Preset != "":
		p, err := ParsePreset(s.Preset)
		if err != nil {
			return Config{}, err
		}
		return PresetConfig(p), nil
	case set == 0:
		return Config{}, fmt.Errorf("%w: provide a preset or all 9 custom thresholds", ErrInvalidConfiguration)
	case set < 9:
		return Config{}, fmt.Errorf("%w: custom thresholds must be supplied together, got %d of 9", ErrInvalidConfiguration, set)
	}

	t := Thresholds{
		MaxOutliers:         *s.MaxOutliers,
		SoftAdjRSquaredMin:  *s.SoftAdjRSquaredMin,
		HardAdjRSquaredMin:  *s.HardAdjRSquaredMin,
		SoftRMSEMultiplier:  *s.SoftRMSEMultiplier,
		HardRMSEMultiplier:  *s.HardRMSEMultiplier,
		SoftDurbinWatsonMin: *s.SoftDurbinWatsonMin,
		SoftDurbinWatsonMax: *s.SoftDurbinWatsonMax,
		HardDurbinWatsonMin: *s.HardDurbinWatsonMin,
		HardDurbinWatsonMax: *s.HardDurbinWatsonMax,
	}
	if err := t.Validate(); err != nil {
		return Config{}, err
	}
	return CustomConfig(t), nil
}

// SpecFor returns the ConfigSpec that rebuilds t as a custom config.
func SpecFor(t Thresholds) ConfigSpec {
	return ConfigSpec{
		MaxOutliers:         &t.MaxOutliers,
		SoftAdjRSquaredMin:  &t.SoftAdjRSquaredMin,
		HardAdjRSquaredMin:  &t.HardAdjRSquaredMin,
		SoftRMSEMultiplier:  &t.SoftRMSEMultiplier,
		HardRMSEMultiplier:  &t.HardRMSEMultiplier,
		SoftDurbinWatsonMin: &t.SoftDurbinWatsonMin,
		SoftDurbinWatsonMax: &t.SoftDurbinWatsonMax,
		HardDurbinWatsonMin: &t.HardDurbinWatsonMin,
		HardDurbinWatsonMax: &t.HardDurbinWatsonMax,
	}
}
