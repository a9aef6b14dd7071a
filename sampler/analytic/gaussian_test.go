package analytic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/timestep-sampler/sampler"
	"github.com/inference-sim/timestep-sampler/sampler/internal/testutil"
	"github.com/inference-sim/timestep-sampler/sampler/schedule"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

func scaledLinear(t *testing.T) *schedule.NoiseSchedule {
	t.Helper()
	s, err := schedule.NewScaledLinear(0.00085, 0.012)
	require.NoError(t, err)
	return s
}

func TestNewGaussianModel_RejectsNegativeStd(t *testing.T) {
	_, err := NewGaussianModel(scaledLinear(t), sampler.ParameterizationEps, -1)
	assert.Error(t, err)
}

func TestGaussianModel_PointMassEps(t *testing.T) {
	// GIVEN data concentrated at m = 2 and x built from a known eps
	s := scaledLinear(t)
	g, err := NewGaussianModel(s, sampler.ParameterizationEps, 0)
	require.NoError(t, err)
	a := s.AlphaCumprod(600)
	x := tensor.FromSlice([]float64{math.Sqrt(a)*2 + math.Sqrt(1-a)*0.7}, 1, 1)
	cond := &sampler.Conditioning{CrossAttn: tensor.Full(2, 1, 3, 2)}

	// WHEN evaluating at t = 600.4
	out, err := g.ApplyModel(x, []float64{600.4}, cond)

	// THEN the noise is recovered exactly
	require.NoError(t, err)
	testutil.AssertFloat64Equal(t, "eps", 0.7, out.Data[0], 1e-9)
}

func TestGaussianModel_VMatchesEpsThroughAdapter(t *testing.T) {
	// GIVEN eps and v flavors of the same posterior
	s := scaledLinear(t)
	epsModel, err := NewGaussianModel(s, sampler.ParameterizationEps, 0.8)
	require.NoError(t, err)
	vModel, err := NewGaussianModel(s, sampler.ParameterizationV, 0.8)
	require.NoError(t, err)
	x := tensor.FromSlice([]float64{0.3, -1.2, 2.5, 0.0}, 2, 2)
	ts := []float64{50, 900}
	cond := &sampler.Conditioning{CrossAttn: tensor.FromSlice([]float64{1, 1, -1, -1}, 2, 2)}

	// WHEN the v output goes through the velocity adapter
	d, err := sampler.NewDenoiser(vModel)
	require.NoError(t, err)
	fromV, err := d.Forward(x, ts, cond)
	require.NoError(t, err)
	eps, err := epsModel.ApplyModel(x, ts, cond)
	require.NoError(t, err)

	// THEN both agree
	assert.InDeltaSlice(t, eps.Data, fromV.Data, 1e-12)
}

func TestGaussianModel_PosteriorMeanConsistentWithEps(t *testing.T) {
	s := scaledLinear(t)
	g, err := NewGaussianModel(s, sampler.ParameterizationEps, 0.5)
	require.NoError(t, err)
	x := tensor.FromSlice([]float64{0.4, -0.9}, 1, 2)
	cond := &sampler.Conditioning{CrossAttn: tensor.Full(0.25, 1, 1, 1)}

	eps, err := g.ApplyModel(x, []float64{300}, cond)
	require.NoError(t, err)
	x0 := g.posteriorMean(x, 300, 0.25)

	// x = sqrt(a)*E[x0|x] + sqrt(1-a)*E[eps|x]
	a := s.AlphaCumprod(300)
	for i := range x.Data {
		assert.InDelta(t, x.Data[i], math.Sqrt(a)*x0.Data[i]+math.Sqrt(1-a)*eps.Data[i], 1e-12)
	}
}

func TestGaussianModel_RejectsMismatchedBatch(t *testing.T) {
	g, err := NewGaussianModel(scaledLinear(t), sampler.ParameterizationEps, 1)
	require.NoError(t, err)

	_, err = g.ApplyModel(tensor.New(2, 2), []float64{1}, nil)
	assert.Error(t, err)

	_, err = g.ApplyModel(tensor.New(2, 2), []float64{1, 2}, &sampler.Conditioning{CrossAttn: tensor.New(3, 1, 1)})
	assert.Error(t, err)
}
