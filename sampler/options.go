package sampler

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options are the process-wide sampling settings, loadable from a YAML file.
// Fields absent from the file keep their DefaultOptions value.
type Options struct {
	AlwaysDiscardNextToLastSigma bool         `yaml:"always_discard_next_to_last_sigma"`
	Img2ImgFixSteps              bool         `yaml:"img2img_fix_steps"`
	PadCondUncond                bool         `yaml:"pad_cond_uncond"`
	BatchCondUncond              bool         `yaml:"batch_cond_uncond"`
	EtaDDIM                      float64      `yaml:"eta_ddim"`
	UniPC                        UniPCOptions `yaml:"uni_pc"`
}

// UniPCOptions configures the UniPC integrator.
type UniPCOptions struct {
	Variant         string `yaml:"variant"`
	SkipType        string `yaml:"skip_type"`
	Order           int    `yaml:"order"`
	LowerOrderFinal bool   `yaml:"lower_order_final"`
}

// DefaultOptions returns the settings used when no options file is given.
func DefaultOptions() *Options {
	return &Options{
		BatchCondUncond: true,
		UniPC: UniPCOptions{
			Variant:         "bh1",
			SkipType:        "time_uniform",
			Order:           3,
			LowerOrderFinal: true,
		},
	}
}

// LoadOptions reads a YAML options file over DefaultOptions.
// Unknown keys are rejected so typos surface as errors.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sampler options: %w", err)
	}
	opts := DefaultOptions()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(opts); err != nil {
		return nil, fmt.Errorf("parsing sampler options: %w", err)
	}
	return opts, nil
}

// ValidUniPCVariants is the set of recognized UniPC B(h) variants.
var ValidUniPCVariants = map[string]bool{"bh1": true, "bh2": true}

// ValidUniPCSkipTypes is the set of recognized UniPC time-step spacings.
var ValidUniPCSkipTypes = map[string]bool{"time_uniform": true, "time_quadratic": true, "logSNR": true}

// Validate checks names and parameter ranges.
func (o *Options) Validate() error {
	if o.EtaDDIM < 0 {
		return fmt.Errorf("eta_ddim must be non-negative, got %f", o.EtaDDIM)
	}
	if !ValidUniPCVariants[o.UniPC.Variant] {
		return fmt.Errorf("unknown uni_pc variant %q", o.UniPC.Variant)
	}
	if !ValidUniPCSkipTypes[o.UniPC.SkipType] {
		return fmt.Errorf("unknown uni_pc skip_type %q", o.UniPC.SkipType)
	}
	if o.UniPC.Order < 1 || o.UniPC.Order > 3 {
		return fmt.Errorf("uni_pc order must be in [1, 3], got %d", o.UniPC.Order)
	}
	return nil
}
