package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inference-sim/timestep-sampler/sampler/schedule"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// testSchedule is alphas_cumprod spaced linearly from 0.9999 to 0.0001.
func testSchedule(t *testing.T) *schedule.NoiseSchedule {
	t.Helper()
	s, err := schedule.NewLinearAlphas(0.9999, 0.0001)
	require.NoError(t, err)
	return s
}

type modelCall struct {
	batch  int
	t      []float64
	tokens int
}

// fakeModel records every call. By default it outputs, per batch item, the
// mean of that item's cross-attention conditioning (0 without one).
type fakeModel struct {
	param Parameterization
	sched *schedule.NoiseSchedule
	fn    func(x *tensor.Tensor, t []float64, cond *Conditioning) *tensor.Tensor
	calls []modelCall
}

func (m *fakeModel) ApplyModel(x *tensor.Tensor, t []float64, cond *Conditioning) (*tensor.Tensor, error) {
	call := modelCall{batch: x.Batch(), t: append([]float64(nil), t...)}
	if cond != nil {
		call.tokens = tokenCount(cond.CrossAttn)
	}
	m.calls = append(m.calls, call)
	if m.fn != nil {
		return m.fn(x, t, cond), nil
	}
	out := tensor.New(x.Shape...)
	if cond == nil || cond.CrossAttn == nil {
		return out, nil
	}
	for b := 0; b < x.Batch(); b++ {
		mean := cond.CrossAttn.SampleMean(b)
		for i := range out.Sample(b) {
			out.Sample(b)[i] = mean
		}
	}
	return out, nil
}

func (m *fakeModel) Parameterization() Parameterization { return m.param }

func (m *fakeModel) Schedule() *schedule.NoiseSchedule { return m.sched }

// recordingIntegrator captures what the driver hands it, optionally calls the
// denoiser once, then fires the callback callbacks times.
type recordingIntegrator struct {
	caps      Capabilities
	denoise   bool
	callbacks int

	call *IntegratorCall
	x    *tensor.Tensor
}

func (r *recordingIntegrator) Capabilities() Capabilities { return r.caps }

func (r *recordingIntegrator) Integrate(model GuidedDenoiser, x *tensor.Tensor, call *IntegratorCall) (*tensor.Tensor, error) {
	r.call, r.x = call, x
	if r.denoise {
		if _, err := model.Denoise(x, 500, call.Args); err != nil {
			return nil, err
		}
	}
	for i := 0; i < r.callbacks; i++ {
		if err := call.Callback(StepInfo{X: x, I: i, Sigma: float64(i), Denoised: x}); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// condTensor is a [batch, tokens, 2] conditioning filled with v.
func condTensor(batch, tokens int, v float64) *tensor.Tensor {
	return tensor.Full(v, batch, tokens, 2)
}
