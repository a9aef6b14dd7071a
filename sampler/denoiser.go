package sampler

import (
	"errors"
	"fmt"

	"github.com/inference-sim/timestep-sampler/sampler/schedule"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// ErrUnsupportedParameterization is returned when a model declares an output
// parameterization no adapter exists for.
var ErrUnsupportedParameterization = errors.New("unsupported model parameterization")

// Denoiser wraps a Model so Forward always yields a noise estimate with the
// same shape as x, whatever the model predicts natively.
type Denoiser interface {
	Forward(x *tensor.Tensor, t []float64, cond *Conditioning) (*tensor.Tensor, error)
	Schedule() *schedule.NoiseSchedule
}

// NewDenoiser selects the adapter for the model's parameterization. The choice
// is made once; callers keep the returned Denoiser for the sampler's lifetime.
func NewDenoiser(m Model) (Denoiser, error) {
	switch p := m.Parameterization(); p {
	case ParameterizationEps:
		return &EpsDenoiser{model: m}, nil
	case ParameterizationV:
		return &VDenoiser{model: m}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedParameterization, p)
	}
}

// EpsDenoiser passes noise-prediction output through untouched.
type EpsDenoiser struct {
	model Model
}

func (d *EpsDenoiser) Forward(x *tensor.Tensor, t []float64, cond *Conditioning) (*tensor.Tensor, error) {
	return d.model.ApplyModel(x, t, cond)
}

func (d *EpsDenoiser) Schedule() *schedule.NoiseSchedule {
	return d.model.Schedule()
}

// VDenoiser reconstructs a noise estimate from velocity-prediction output.
type VDenoiser struct {
	model Model
}

func (d *VDenoiser) Forward(x *tensor.Tensor, t []float64, cond *Conditioning) (*tensor.Tensor, error) {
	v, err := d.model.ApplyModel(x, t, cond)
	if err != nil {
		return nil, err
	}
	return PredictEpsFromZAndV(d.model.Schedule(), x, t, v), nil
}

func (d *VDenoiser) Schedule() *schedule.NoiseSchedule {
	return d.model.Schedule()
}

// PredictEpsFromZAndV computes eps = sqrt(a_t)*v + sqrt(1-a_t)*x_t, looking up
// a_t separately for every batch item from its own timestep, clamped into the
// schedule.
func PredictEpsFromZAndV(s *schedule.NoiseSchedule, xt *tensor.Tensor, t []float64, v *tensor.Tensor) *tensor.Tensor {
	sqrtA := make([]float64, xt.Batch())
	sqrtOneMinusA := make([]float64, xt.Batch())
	for i := range sqrtA {
		ts := s.TimestepIndex(t[i])
		sqrtA[i] = s.SqrtAlphaCumprod(ts)
		sqrtOneMinusA[i] = s.SqrtOneMinusAlphaCumprod(ts)
	}
	return tensor.CombinePerSample(sqrtA, v, sqrtOneMinusA, xt)
}
