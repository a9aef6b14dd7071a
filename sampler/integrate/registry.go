package integrate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/inference-sim/timestep-sampler/sampler"
)

// ErrUnknownSampler is returned by Create for a name that matches no label or alias.
var ErrUnknownSampler = errors.New("unknown sampler")

// SamplerData is one registration record: a display label, a constructor
// binding the integrator to a model, lookup aliases and per-sampler options.
type SamplerData struct {
	Label       string
	Constructor func(model sampler.Model, opts *sampler.Options) (*sampler.Sampler, error)
	Aliases     []string
	Options     sampler.SamplerOptions

	// Capabilities the integrator declares; listed without building a sampler.
	Capabilities sampler.Capabilities
}

var samplersTimesteps = []struct {
	label      string
	integrator func(opts *sampler.Options) sampler.Integrator
	aliases    []string
	options    sampler.SamplerOptions
}{
	{"k_DDIM", func(*sampler.Options) sampler.Integrator { return DDIM{} }, []string{"k_ddim", "ddim"}, sampler.SamplerOptions{}},
	{"k_PLMS", func(*sampler.Options) sampler.Integrator { return PLMS{} }, []string{"k_plms", "plms"}, sampler.SamplerOptions{}},
	{"k_UniPC", func(o *sampler.Options) sampler.Integrator { return NewUniPC(o.UniPC) }, []string{"k_unipc", "unipc"}, sampler.SamplerOptions{}},
}

var samplersData = buildSamplersData()

func buildSamplersData() []SamplerData {
	data := make([]SamplerData, 0, len(samplersTimesteps))
	for _, s := range samplersTimesteps {
		s := s
		data = append(data, SamplerData{
			Label: s.label,
			Constructor: func(model sampler.Model, opts *sampler.Options) (*sampler.Sampler, error) {
				if opts == nil {
					opts = sampler.DefaultOptions()
				}
				return sampler.New(s.label, s.integrator(opts), model, s.options, opts)
			},
			Aliases:      s.aliases,
			Options:      s.options,
			Capabilities: s.integrator(sampler.DefaultOptions()).Capabilities(),
		})
	}
	return data
}

// All returns the registration records in registration order.
func All() []SamplerData {
	out := make([]SamplerData, len(samplersData))
	copy(out, samplersData)
	return out
}

// Names returns every label and alias, sorted.
func Names() []string {
	var names []string
	for _, d := range samplersData {
		names = append(names, d.Label)
		names = append(names, d.Aliases...)
	}
	sort.Strings(names)
	return names
}

// Find looks a sampler up by label or alias, ignoring case.
func Find(name string) (SamplerData, bool) {
	for _, d := range samplersData {
		if strings.EqualFold(d.Label, name) {
			return d, true
		}
		for _, a := range d.Aliases {
			if strings.EqualFold(a, name) {
				return d, true
			}
		}
	}
	return SamplerData{}, false
}

// Create finds the named sampler and constructs it for model.
func Create(name string, model sampler.Model, opts *sampler.Options) (*sampler.Sampler, error) {
	d, ok := Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownSampler, name, strings.Join(Names(), ", "))
	}
	return d.Constructor(model, opts)
}
