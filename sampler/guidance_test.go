package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

func newTestGuidance(t *testing.T, m *fakeModel, pad, batch bool) *Guidance {
	t.Helper()
	d, err := NewDenoiser(m)
	require.NoError(t, err)
	return NewGuidance(d, &Options{PadCondUncond: pad, BatchCondUncond: batch})
}

func TestTimestepX0Predictor_RecoversX0(t *testing.T) {
	// GIVEN x = sqrt(a)*x0 + sqrt(1-a)*eps at timestep 500
	s := testSchedule(t)
	a := s.AlphaCumprod(500)
	x0 := tensor.FromSlice([]float64{1, -2, 0.5}, 1, 3)
	eps := tensor.FromSlice([]float64{0.2, 0.9, -1.1}, 1, 3)
	x := tensor.Combine(math.Sqrt(a), x0, math.Sqrt(1-a), eps)

	// WHEN predicting from a fractional sigma that truncates to 500
	got := NewTimestepX0Predictor(s).PredX0(x, eps, 500.9)

	// THEN x0 is recovered
	assert.InDeltaSlice(t, x0.Data, got.Data, 1e-9)
}

func TestGuide_CombinesBranches(t *testing.T) {
	// cond output is 1 everywhere, uncond output is 0: the result is the scale.
	for _, batched := range []bool{true, false} {
		name := "separate"
		if batched {
			name = "batched"
		}
		t.Run(name, func(t *testing.T) {
			m := &fakeModel{param: ParameterizationEps, sched: testSchedule(t)}
			g := newTestGuidance(t, m, false, batched)
			args := &GuidanceArgs{Cond: condTensor(2, 4, 1), Uncond: condTensor(2, 4, 0), CondScale: 7.5}

			out, padded, err := g.Guide(tensor.New(2, 3), 400, args)

			require.NoError(t, err)
			assert.False(t, padded)
			assert.InDeltaSlice(t, []float64{7.5, 7.5, 7.5, 7.5, 7.5, 7.5}, out.Data, 1e-12)
			if batched {
				require.Len(t, m.calls, 1)
				assert.Equal(t, 4, m.calls[0].batch)
				assert.Equal(t, []float64{400, 400, 400, 400}, m.calls[0].t)
			} else {
				require.Len(t, m.calls, 2)
				assert.Equal(t, 2, m.calls[0].batch)
			}
		})
	}
}

func TestGuide_SkipsUncond(t *testing.T) {
	tests := []struct {
		name       string
		uncond     bool
		sMinUncond float64
		sigma      float64
		wantCalls  int
		want       float64
	}{
		{"no uncond", false, 0, 400, 1, 1},
		{"below s_min_uncond", true, 500, 400, 1, 1},
		{"above s_min_uncond", true, 500, 600, 1, 3},
		{"s_min_uncond disabled", true, 0, 1, 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeModel{param: ParameterizationEps, sched: testSchedule(t)}
			g := newTestGuidance(t, m, false, true)
			args := &GuidanceArgs{Cond: condTensor(1, 2, 1), CondScale: 3, SMinUncond: tt.sMinUncond}
			if tt.uncond {
				args.Uncond = condTensor(1, 2, 0)
			}

			out, _, err := g.Guide(tensor.New(1, 2), tt.sigma, args)

			require.NoError(t, err)
			assert.Len(t, m.calls, tt.wantCalls)
			assert.InDeltaSlice(t, []float64{tt.want, tt.want}, out.Data, 1e-12)
		})
	}
}

func TestGuide_PadsShorterConditioning(t *testing.T) {
	tests := []struct {
		name       string
		cond       *tensor.Tensor
		uncond     *tensor.Tensor
		wantPadded bool
		wantTokens []int
		want       float64
	}{
		{"shorter cond", condTensor(1, 3, 1), condTensor(1, 5, 0), true, []int{5}, 2},
		{"shorter uncond", condTensor(1, 5, 1), condTensor(1, 3, 0), true, []int{5}, 2},
		{"equal tokens", condTensor(1, 4, 1), condTensor(1, 4, 0), false, []int{4}, 2},
		// an empty conditioning has nothing to repeat and runs on its own
		{"empty cond", tensor.New(1, 0, 2), condTensor(1, 3, 1), false, []int{0, 3}, -1},
		{"empty uncond", condTensor(1, 3, 1), tensor.New(1, 0, 2), false, []int{3, 0}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN padding and batching enabled
			m := &fakeModel{param: ParameterizationEps, sched: testSchedule(t)}
			g := newTestGuidance(t, m, true, true)
			args := &GuidanceArgs{Cond: tt.cond, Uncond: tt.uncond, CondScale: 2}

			// WHEN guiding
			out, padded, err := g.Guide(tensor.New(1, 2), 100, args)

			// THEN the branches are padded into one call only when both carry tokens
			require.NoError(t, err)
			assert.Equal(t, tt.wantPadded, padded)
			require.Len(t, m.calls, len(tt.wantTokens))
			for i, want := range tt.wantTokens {
				assert.Equal(t, want, m.calls[i].tokens)
			}
			assert.InDeltaSlice(t, []float64{tt.want, tt.want}, out.Data, 1e-12)
		})
	}
}

func TestGuide_UnequalTokensWithoutPaddingRunsSeparately(t *testing.T) {
	m := &fakeModel{param: ParameterizationEps, sched: testSchedule(t)}
	g := newTestGuidance(t, m, false, true)
	args := &GuidanceArgs{Cond: condTensor(1, 3, 1), Uncond: condTensor(1, 5, 0), CondScale: 2}

	_, padded, err := g.Guide(tensor.New(1, 2), 100, args)

	require.NoError(t, err)
	assert.False(t, padded)
	require.Len(t, m.calls, 2)
	assert.Equal(t, 3, m.calls[0].tokens)
	assert.Equal(t, 5, m.calls[1].tokens)
}

func TestPadTokens_RepeatsLastToken(t *testing.T) {
	c := tensor.FromSlice([]float64{1, 2, 3, 4}, 1, 2, 2)
	got := padTokens(c, 4)
	assert.Equal(t, []int{1, 4, 2}, got.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 3, 4, 3, 4}, got.Data)
}

func TestCFGDenoiser_TracksPaddingAndLastLatent(t *testing.T) {
	m := &fakeModel{param: ParameterizationEps, sched: testSchedule(t)}
	g := newTestGuidance(t, m, true, true)
	cfg := NewCFGDenoiser(g, NewTimestepX0Predictor(m.sched))
	assert.Nil(t, cfg.LastLatent())

	x := tensor.Full(0.5, 1, 2)
	out, err := cfg.Denoise(x, 300, &GuidanceArgs{Cond: condTensor(1, 1, 1), Uncond: condTensor(1, 2, 0), CondScale: 1})

	require.NoError(t, err)
	assert.True(t, cfg.PaddedCondUncond)
	require.NotNil(t, cfg.LastLatent())
	assert.InDeltaSlice(t, cfg.PredX0(x, out, 300).Data, cfg.LastLatent().Data, 1e-12)
	assert.Same(t, m.sched, cfg.Schedule())
}
