package sampler

import (
	"github.com/inference-sim/timestep-sampler/sampler/schedule"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// Parameterization names what a model's raw output represents.
type Parameterization string

const (
	// ParameterizationEps models predict the added noise.
	ParameterizationEps Parameterization = "eps"
	// ParameterizationV models predict velocity v = sqrt(a)*eps - sqrt(1-a)*x0.
	ParameterizationV Parameterization = "v"
)

// Conditioning is what the network is conditioned on for one batch.
type Conditioning struct {
	// CrossAttn is the text conditioning, shaped [batch, tokens, dim].
	CrossAttn *tensor.Tensor
	// Concat is optional spatial conditioning (inpainting/depth image), batch-major.
	Concat *tensor.Tensor
}

// Model is a loaded diffusion model.
type Model interface {
	// ApplyModel runs the network. t carries one (possibly fractional) timestep
	// per batch item; x and the returned tensor share a shape.
	ApplyModel(x *tensor.Tensor, t []float64, cond *Conditioning) (*tensor.Tensor, error)
	Parameterization() Parameterization
	// Schedule is the alphas_cumprod table the model was trained with.
	Schedule() *schedule.NoiseSchedule
}
