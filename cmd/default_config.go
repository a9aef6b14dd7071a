package cmd

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/timestep-sampler/sampler"
	"github.com/inference-sim/timestep-sampler/sampler/analytic"
	"github.com/inference-sim/timestep-sampler/sampler/schedule"
)

// ModelPreset describes an analytic stand-in model in defaults.yaml.
type ModelPreset struct {
	Schedule         string  `yaml:"schedule"` // "scaled_linear" or "linear"
	BetaStart        float64 `yaml:"beta_start"`
	BetaEnd          float64 `yaml:"beta_end"`
	Parameterization string  `yaml:"parameterization"`
	DataStd          float64 `yaml:"data_std"`
	LatentShape      []int   `yaml:"latent_shape"` // per-sample, without the batch axis
}

// Config represents the full defaults.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	Version string                 `yaml:"version"`
	Models  map[string]ModelPreset `yaml:"models"`
}

// loadDefaultsConfig parses defaults.yaml into a Config struct.
// Uses strict field checking: typos must cause errors.
func loadDefaultsConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading defaults file %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing defaults YAML: %w", err)
	}
	return cfg, nil
}

// Preset looks a model preset up by name.
func (c Config) Preset(name string) (ModelPreset, error) {
	if p, ok := c.Models[name]; ok {
		return p, nil
	}
	names := make([]string, 0, len(c.Models))
	for n := range c.Models {
		names = append(names, n)
	}
	sort.Strings(names)
	return ModelPreset{}, fmt.Errorf("unknown model %q (available: %v)", name, names)
}

// Build constructs the noise schedule and the analytic model for the preset.
func (p ModelPreset) Build() (*analytic.GaussianModel, error) {
	var (
		sched *schedule.NoiseSchedule
		err   error
	)
	switch p.Schedule {
	case "scaled_linear":
		sched, err = schedule.NewScaledLinear(p.BetaStart, p.BetaEnd)
	case "linear":
		sched, err = schedule.NewLinear(p.BetaStart, p.BetaEnd)
	default:
		return nil, fmt.Errorf("unknown schedule %q", p.Schedule)
	}
	if err != nil {
		return nil, err
	}
	if len(p.LatentShape) == 0 {
		return nil, fmt.Errorf("latent_shape must not be empty")
	}
	return analytic.NewGaussianModel(sched, sampler.Parameterization(p.Parameterization), p.DataStd)
}
