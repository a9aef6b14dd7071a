// Package testutil provides shared assertion helpers for the sampler test
// packages.
package testutil

import (
	"math"
	"testing"

	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertTensorNear checks shapes match and every element is within absTol.
// Only the first mismatching element is reported.
func AssertTensorNear(t *testing.T, name string, want, got *tensor.Tensor, absTol float64) {
	t.Helper()
	if want == nil || got == nil {
		if want != got {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
		return
	}
	if !want.SameShape(got) {
		t.Errorf("%s: shape %v, want %v", name, got.Shape, want.Shape)
		return
	}
	for i := range want.Data {
		if diff := math.Abs(want.Data[i] - got.Data[i]); !(diff <= absTol) {
			t.Errorf("%s[%d]: got %v, want %v (diff=%v)", name, i, got.Data[i], want.Data[i], diff)
			return
		}
	}
}

// AssertAllNear checks every element of got is within absTol of want.
func AssertAllNear(t *testing.T, name string, want float64, got *tensor.Tensor, absTol float64) {
	t.Helper()
	for i, v := range got.Data {
		if diff := math.Abs(v - want); !(diff <= absTol) {
			t.Errorf("%s[%d]: got %v, want %v (diff=%v)", name, i, v, want, diff)
			return
		}
	}
}
