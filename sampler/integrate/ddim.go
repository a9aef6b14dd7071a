package integrate

import (
	"math"

	"github.com/inference-sim/timestep-sampler/sampler"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// DDIM is the denoising diffusion implicit model integrator. With eta = 0 it
// is deterministic; eta > 0 re-injects noise drawn from the call RNG.
//
//	pred_x0 = (x - sqrt(1-a_t)*eps) / sqrt(a_t)
//	x_prev  = sqrt(a_prev)*pred_x0 + sqrt(1-a_prev-sigma_t^2)*eps + sigma_t*z
type DDIM struct{}

func (DDIM) Capabilities() sampler.Capabilities {
	return sampler.AcceptsTimesteps | sampler.AcceptsEta
}

func (DDIM) Integrate(model sampler.GuidedDenoiser, x *tensor.Tensor, call *sampler.IntegratorCall) (*tensor.Tensor, error) {
	timesteps, err := resolveTimesteps(call)
	if err != nil {
		return nil, err
	}
	eta := 0.0
	if call.Options.Eta != nil {
		eta = *call.Options.Eta
	}

	alphas, alphasPrev := alphaPairs(model.Schedule(), timesteps)
	total := len(timesteps) - 1
	for i := 0; i < total; i++ {
		index := total - i
		sigma := float64(timesteps[index])

		eT, err := model.Denoise(x, sigma, call.Args)
		if err != nil {
			return nil, err
		}

		aT, aPrev := alphas[index], alphasPrev[index]
		sigmaT := eta * math.Sqrt((1-aPrev)/(1-aT)*(1-aT/aPrev))

		predX0 := tensor.Combine(1/math.Sqrt(aT), x, -math.Sqrt(1-aT)/math.Sqrt(aT), eT)
		dirCoeff := math.Sqrt(math.Max(0, 1-aPrev-sigmaT*sigmaT))
		next := tensor.Combine(math.Sqrt(aPrev), predX0, dirCoeff, eT)
		if sigmaT > 0 {
			next.AddScaled(sigmaT, tensor.RandomNormal(call.RNG, x.Shape...))
		}
		x = next

		if err := step(call, "DDIM", i, total, sigma, x, predX0); err != nil {
			return nil, err
		}
	}
	return x, nil
}
