package integrate

import (
	"math"

	"github.com/inference-sim/timestep-sampler/sampler"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// PLMS is the pseudo linear multistep integrator: a pseudo improved Euler
// warm-up step, then Adams–Bashforth of increasing order (up to 4) over the
// history of noise estimates.
type PLMS struct{}

func (PLMS) Capabilities() sampler.Capabilities {
	return sampler.AcceptsTimesteps
}

// Adams–Bashforth weights (newest first) for orders 2..4.
var adamsBashforth = [][]float64{
	{3.0 / 2, -1.0 / 2},
	{23.0 / 12, -16.0 / 12, 5.0 / 12},
	{55.0 / 24, -59.0 / 24, 37.0 / 24, -9.0 / 24},
}

func (PLMS) Integrate(model sampler.GuidedDenoiser, x *tensor.Tensor, call *sampler.IntegratorCall) (*tensor.Tensor, error) {
	timesteps, err := resolveTimesteps(call)
	if err != nil {
		return nil, err
	}
	alphas, alphasPrev := alphaPairs(model.Schedule(), timesteps)

	xPrevAndPredX0 := func(x, eT *tensor.Tensor, index int) (*tensor.Tensor, *tensor.Tensor) {
		aT, aPrev := alphas[index], alphasPrev[index]
		predX0 := tensor.Combine(1/math.Sqrt(aT), x, -math.Sqrt(1-aT)/math.Sqrt(aT), eT)
		return tensor.Combine(math.Sqrt(aPrev), predX0, math.Sqrt(1-aPrev), eT), predX0
	}

	var oldEps []*tensor.Tensor // newest last, at most 3 kept
	total := len(timesteps) - 1
	for i := 0; i < total; i++ {
		index := total - i
		sigma := float64(timesteps[index])
		tNext := float64(timesteps[max(index-1, 0)])

		eT, err := model.Denoise(x, sigma, call.Args)
		if err != nil {
			return nil, err
		}

		var ePrime *tensor.Tensor
		if len(oldEps) == 0 {
			xPrev, _ := xPrevAndPredX0(x, eT, index)
			eNext, err := model.Denoise(xPrev, tNext, call.Args)
			if err != nil {
				return nil, err
			}
			ePrime = tensor.Combine(0.5, eT, 0.5, eNext)
		} else {
			w := adamsBashforth[len(oldEps)-1]
			ePrime = eT.Scale(w[0])
			for k := 1; k < len(w); k++ {
				ePrime.AddScaled(w[k], oldEps[len(oldEps)-k])
			}
		}

		xPrev, predX0 := xPrevAndPredX0(x, ePrime, index)

		oldEps = append(oldEps, eT)
		if len(oldEps) > 3 {
			oldEps = oldEps[1:]
		}
		x = xPrev

		if err := step(call, "PLMS", i, total, sigma, x, predX0); err != nil {
			return nil, err
		}
	}
	return x, nil
}
