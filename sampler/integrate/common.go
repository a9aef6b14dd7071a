// Package integrate provides the discrete-timestep integrators (DDIM, PLMS,
// UniPC) and the sampler registration table. The Integrator contract is
// defined in sampler/ (parent package).
package integrate

import (
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/timestep-sampler/sampler"
	"github.com/inference-sim/timestep-sampler/sampler/schedule"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// resolveTimesteps returns the explicit sequence when the driver supplied one,
// or builds a default schedule from the call's step count.
func resolveTimesteps(call *sampler.IntegratorCall) ([]int, error) {
	if call.Options.Timesteps != nil {
		return call.Options.Timesteps, nil
	}
	return schedule.Timesteps(call.Steps, false)
}

// alphaPairs looks up a_t for every timestep, and a_prev = a at the previous
// (smaller) timestep, with alphas_cumprod[0] for the first entry.
func alphaPairs(s *schedule.NoiseSchedule, timesteps []int) (alphas, alphasPrev []float64) {
	alphas = make([]float64, len(timesteps))
	alphasPrev = make([]float64, len(timesteps))
	for i, ts := range timesteps {
		alphas[i] = s.AlphaCumprod(ts)
		if i == 0 {
			alphasPrev[i] = s.AlphaCumprod(0)
		} else {
			alphasPrev[i] = s.AlphaCumprod(timesteps[i-1])
		}
	}
	return alphas, alphasPrev
}

// step reports progress and invokes the callback. The callback's error is
// returned as is.
func step(call *sampler.IntegratorCall, name string, i, total int, sigma float64, x, denoised *tensor.Tensor) error {
	if !call.Disable {
		logrus.Debugf("%s step %d/%d (t=%.2f)", name, i+1, total, sigma)
	}
	if call.Callback == nil {
		return nil
	}
	return call.Callback(sampler.StepInfo{X: x, I: i, Sigma: sigma, Denoised: denoised})
}
