package tensor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ZeroFilledWithShape(t *testing.T) {
	x := New(2, 3, 4)
	assert.Equal(t, []int{2, 3, 4}, x.Shape)
	assert.Len(t, x.Data, 24)
	assert.Equal(t, 2, x.Batch())
	assert.Equal(t, 12, x.SampleLen())
}

func TestFromSlice_SizeMismatch_Panics(t *testing.T) {
	assert.Panics(t, func() { FromSlice([]float64{1, 2, 3}, 2, 2) })
}

func TestConcat_StacksAlongBatch(t *testing.T) {
	a := FromSlice([]float64{1, 2}, 1, 2)
	b := FromSlice([]float64{3, 4, 5, 6}, 2, 2)

	got := Concat(a, b)

	assert.Equal(t, []int{3, 2}, got.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, got.Data)
}

func TestConcat_TrailingMismatch_Panics(t *testing.T) {
	assert.Panics(t, func() { Concat(New(1, 2), New(1, 3)) })
}

func TestSliceBatch_CopiesRange(t *testing.T) {
	x := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 3, 2)

	got := x.SliceBatch(1, 3)
	got.Data[0] = 99

	assert.Equal(t, []int{2, 2}, got.Shape)
	assert.Equal(t, 3.0, x.Data[2], "slice must not alias the source")
}

func TestCombine_LinearCombination(t *testing.T) {
	x := FromSlice([]float64{1, 2}, 1, 2)
	y := FromSlice([]float64{10, 20}, 1, 2)

	got := Combine(2, x, 0.5, y)

	assert.Equal(t, []float64{7, 14}, got.Data)
	assert.Equal(t, []float64{1, 2}, x.Data, "inputs are not mutated")
}

func TestCombinePerSample_UsesEachSampleCoefficient(t *testing.T) {
	x := FromSlice([]float64{1, 1, 2, 2}, 2, 2)
	y := FromSlice([]float64{1, 1, 1, 1}, 2, 2)

	got := CombinePerSample([]float64{1, 3}, x, []float64{0, -1}, y)

	assert.Equal(t, []float64{1, 1, 5, 5}, got.Data)
}

func TestCountNonFinite(t *testing.T) {
	x := FromSlice([]float64{1, math.NaN(), math.Inf(1), math.Inf(-1)}, 1, 4)
	assert.Equal(t, 3, x.CountNonFinite())
}

func TestRandomNormal_DeterministicForSeed(t *testing.T) {
	a := RandomNormal(rand.New(rand.NewSource(7)), 2, 8)
	b := RandomNormal(rand.New(rand.NewSource(7)), 2, 8)
	require.Equal(t, a.Data, b.Data)
	assert.InDelta(t, 0, a.Mean(), 1.0)
}
