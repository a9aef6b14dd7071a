package sampler

import (
	"errors"
	"math/rand"
	"strings"

	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// ErrInterrupted is the sentinel a StepCallback returns to stop sampling.
// Integrators and the driver return it to the caller unchanged.
var ErrInterrupted = errors.New("sampling interrupted")

// Capabilities is the set of optional arguments an integrator accepts.
type Capabilities uint8

const (
	// AcceptsTimesteps: the integrator walks an explicit discrete timestep sequence.
	AcceptsTimesteps Capabilities = 1 << iota
	// AcceptsImg2Img: the integrator wants to know it starts from a partially noised image.
	AcceptsImg2Img
	// AcceptsEta: the integrator takes a stochasticity coefficient.
	AcceptsEta
)

var capabilityNames = []struct {
	flag Capabilities
	name string
}{
	{AcceptsTimesteps, "timesteps"},
	{AcceptsImg2Img, "is_img2img"},
	{AcceptsEta, "eta"},
}

// Has reports whether every flag in f is declared.
func (c Capabilities) Has(f Capabilities) bool {
	return c&f == f
}

// Names lists the declared argument names in declaration order.
func (c Capabilities) Names() []string {
	var names []string
	for _, cn := range capabilityNames {
		if c.Has(cn.flag) {
			names = append(names, cn.name)
		}
	}
	return names
}

func (c Capabilities) String() string {
	if c == 0 {
		return "-"
	}
	return strings.Join(c.Names(), ",")
}

// StepInfo is handed to the step callback after every integrator step.
type StepInfo struct {
	X        *tensor.Tensor
	I        int
	Sigma    float64
	Denoised *tensor.Tensor
	// Preview is the clean-sample estimate from the latest guided model call.
	// The driver fills it in; integrators leave it nil.
	Preview *tensor.Tensor
}

// StepCallback runs synchronously after each step. A non-nil error stops the
// integrator, which must return that error unchanged.
type StepCallback func(StepInfo) error

// IntegratorOptions carries the optional arguments. A field is only set when
// the integrator declared the matching capability.
type IntegratorOptions struct {
	Timesteps []int
	IsImg2Img *bool
	Eta       *float64
}

// IntegratorCall is everything an integrator receives besides the denoiser and
// the starting latent.
type IntegratorCall struct {
	Args *GuidanceArgs
	// Disable suppresses per-step progress logging.
	Disable  bool
	Callback StepCallback
	// Steps is the number of steps the caller expects; integrators without
	// explicit timesteps build their own schedule from it.
	Steps   int
	RNG     *rand.Rand
	Options IntegratorOptions
}

// Integrator advances a noisy latent toward a clean sample.
type Integrator interface {
	Capabilities() Capabilities
	Integrate(model GuidedDenoiser, x *tensor.Tensor, call *IntegratorCall) (*tensor.Tensor, error)
}
