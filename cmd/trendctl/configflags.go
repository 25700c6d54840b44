package main

import (
	"fmt"

	"trendsys/config"
	"trendsys/internal/trend"

	"github.com/spf13/cobra"
)

// configFlags carries the threshold flags shared by breakdown and reload.
type configFlags struct {
	preset string
	file   string
	t      trend.Thresholds
}

var customFlagNames = []string{
	"max-outliers",
	"soft-adj-r-squared-min", "hard-adj-r-squared-min",
	"soft-rmse-multiplier", "hard-rmse-multiplier",
	"soft-durbin-watson-min", "soft-durbin-watson-max",
	"hard-durbin-watson-min", "hard-durbin-watson-max",
}

func (cf *configFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&cf.preset, "preset", "", "Named preset (default|conservative|moderate|aggressive)")
	f.StringVar(&cf.file, "config", "", "YAML file with a preset or the nine custom thresholds")
	f.IntVar(&cf.t.MaxOutliers, "max-outliers", 0, "Soft violations tolerated before a break")
	f.Float64Var(&cf.t.SoftAdjRSquaredMin, "soft-adj-r-squared-min", 0, "Soft adjusted R² minimum")
	f.Float64Var(&cf.t.HardAdjRSquaredMin, "hard-adj-r-squared-min", 0, "Hard adjusted R² minimum")
	f.Float64Var(&cf.t.SoftRMSEMultiplier, "soft-rmse-multiplier", 0, "Soft RMSE growth multiplier")
	f.Float64Var(&cf.t.HardRMSEMultiplier, "hard-rmse-multiplier", 0, "Hard RMSE growth multiplier")
	f.Float64Var(&cf.t.SoftDurbinWatsonMin, "soft-durbin-watson-min", 0, "Soft Durbin-Watson lower bound")
	f.Float64Var(&cf.t.SoftDurbinWatsonMax, "soft-durbin-watson-max", 0, "Soft Durbin-Watson upper bound")
	f.Float64Var(&cf.t.HardDurbinWatsonMin, "hard-durbin-watson-min", 0, "Hard Durbin-Watson lower bound")
	f.Float64Var(&cf.t.HardDurbinWatsonMax, "hard-durbin-watson-max", 0, "Hard Durbin-Watson upper bound")
}

// spec collects the flags that were set into a ConfigSpec. It returns nil when
// no threshold flag was given.
func (cf *configFlags) spec(cmd *cobra.Command) (*trend.ConfigSpec, error) {
	f := cmd.Flags()
	custom := 0
	for _, name := range customFlagNames {
		if f.Changed(name) {
			custom++
		}
	}

	if cf.file != "" {
		if cf.preset != "" || custom > 0 {
			return nil, fmt.Errorf("%w: --config cannot be combined with --preset or threshold flags", trend.ErrInvalidConfiguration)
		}
		spec, err := config.LoadTrendSpec(cf.file)
		if err != nil {
			return nil, err
		}
		return &spec, nil
	}
	if cf.preset == "" && custom == 0 {
		return nil, nil
	}

	spec := trend.ConfigSpec{Preset: cf.preset}
	if custom > 0 {
		full := trend.SpecFor(cf.t)
		set := func(name string, dst **float64, v *float64) {
			if f.Changed(name) {
				*dst = v
			}
		}
		if f.Changed("max-outliers") {
			spec.MaxOutliers = full.MaxOutliers
		}
		set("soft-adj-r-squared-min", &spec.SoftAdjRSquaredMin, full.SoftAdjRSquaredMin)
		set("hard-adj-r-squared-min", &spec.HardAdjRSquaredMin, full.HardAdjRSquaredMin)
		set("soft-rmse-multiplier", &spec.SoftRMSEMultiplier, full.SoftRMSEMultiplier)
		set("hard-rmse-multiplier", &spec.HardRMSEMultiplier, full.HardRMSEMultiplier)
		set("soft-durbin-watson-min", &spec.SoftDurbinWatsonMin, full.SoftDurbinWatsonMin)
		set("soft-durbin-watson-max", &spec.SoftDurbinWatsonMax, full.SoftDurbinWatsonMax)
		set("hard-durbin-watson-min", &spec.HardDurbinWatsonMin, full.HardDurbinWatsonMin)
		set("hard-durbin-watson-max", &spec.HardDurbinWatsonMax, full.HardDurbinWatsonMax)
	}
	return &spec, nil
}

// resolve builds the Config, falling back to the default preset when no
// threshold flag was given.
func (cf *configFlags) resolve(cmd *cobra.Command) (trend.Config, error) {
	spec, err := cf.spec(cmd)
	if err != nil {
		return trend.Config{}, err
	}
	if spec == nil {
		return trend.PresetConfig(trend.PresetDefault), nil
	}
	return spec.Build()
}
