// Package analytic provides models whose posterior is known in closed form.
// They stand in for a trained network: integrators driven by them converge to
// a predictable answer, which makes end-to-end sampling testable and gives the
// CLI something to run.
package analytic

import (
	"fmt"
	"math"

	"github.com/inference-sim/timestep-sampler/sampler"
	"github.com/inference-sim/timestep-sampler/sampler/schedule"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// GaussianModel is the exact denoiser for data x0 ~ N(m, s^2) element-wise,
// where m is the mean of the sample's cross-attention conditioning (0 when
// absent) and s is DataStd. With x_t = sqrt(a)*x0 + sqrt(1-a)*eps:
//
//	E[x0|x]  = m + sqrt(a)*s^2*(x - sqrt(a)*m) / (a*s^2 + 1 - a)
//	E[eps|x] = sqrt(1-a)*(x - sqrt(a)*m) / (a*s^2 + 1 - a)
type GaussianModel struct {
	DataStd float64
	param   sampler.Parameterization
	sched   *schedule.NoiseSchedule
}

// NewGaussianModel returns a model predicting param over sched.
func NewGaussianModel(sched *schedule.NoiseSchedule, param sampler.Parameterization, dataStd float64) (*GaussianModel, error) {
	if dataStd < 0 {
		return nil, fmt.Errorf("data std must be non-negative, got %f", dataStd)
	}
	return &GaussianModel{DataStd: dataStd, param: param, sched: sched}, nil
}

func (g *GaussianModel) Parameterization() sampler.Parameterization { return g.param }

func (g *GaussianModel) Schedule() *schedule.NoiseSchedule { return g.sched }

// ApplyModel evaluates the posterior for every batch item at its own
// timestep, truncated to a schedule index.
func (g *GaussianModel) ApplyModel(x *tensor.Tensor, t []float64, cond *sampler.Conditioning) (*tensor.Tensor, error) {
	if len(t) != x.Batch() {
		return nil, fmt.Errorf("got %d timesteps for batch of %d", len(t), x.Batch())
	}
	if cond != nil && cond.CrossAttn != nil && cond.CrossAttn.Batch() != x.Batch() {
		return nil, fmt.Errorf("conditioning batch %d does not match latent batch %d", cond.CrossAttn.Batch(), x.Batch())
	}

	s2 := g.DataStd * g.DataStd
	out := tensor.New(x.Shape...)
	for b := 0; b < x.Batch(); b++ {
		a := g.sched.AlphaCumprod(g.sched.TimestepIndex(t[b]))
		sqrtA, sqrtOneMinusA := math.Sqrt(a), math.Sqrt(1-a)
		m := g.mean(cond, b)
		denom := a*s2 + 1 - a

		xs, ys := x.Sample(b), out.Sample(b)
		for i, xv := range xs {
			r := (xv - sqrtA*m) / denom
			eps := sqrtOneMinusA * r
			switch g.param {
			case sampler.ParameterizationV:
				x0 := m + sqrtA*s2*r
				ys[i] = sqrtA*eps - sqrtOneMinusA*x0
			default:
				ys[i] = eps
			}
		}
	}
	return out, nil
}

// posteriorMean returns E[x0|x] at timestep t for data mean m.
func (g *GaussianModel) posteriorMean(x *tensor.Tensor, t int, m float64) *tensor.Tensor {
	a := g.sched.AlphaCumprod(t)
	s2 := g.DataStd * g.DataStd
	denom := a*s2 + 1 - a
	out := tensor.New(x.Shape...)
	for i, xv := range x.Data {
		out.Data[i] = m + math.Sqrt(a)*s2*(xv-math.Sqrt(a)*m)/denom
	}
	return out
}

func (g *GaussianModel) mean(cond *sampler.Conditioning, b int) float64 {
	if cond == nil || cond.CrossAttn == nil {
		return 0
	}
	return cond.CrossAttn.SampleMean(b)
}
