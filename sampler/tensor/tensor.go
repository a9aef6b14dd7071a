// Package tensor provides the dense, batch-major buffer used for latents,
// conditioning, and model outputs. Axis 0 is always the batch axis.
// Arithmetic is delegated to gonum/floats.
package tensor

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Tensor is an n-dimensional float64 array stored row-major.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zero-filled tensor.
func New(shape ...int) *Tensor {
	return &Tensor{Data: make([]float64, numel(shape)), Shape: append([]int{}, shape...)}
}

// FromSlice wraps data without copying. Panics if len(data) does not match the shape.
func FromSlice(data []float64, shape ...int) *Tensor {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("tensor: %d values do not fit shape %v", len(data), shape))
	}
	return &Tensor{Data: data, Shape: append([]int{}, shape...)}
}

// Full allocates a tensor with every element set to v.
func Full(v float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

// RandomNormal draws a standard-normal tensor from rng.
func RandomNormal(rng *rand.Rand, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64()
	}
	return t
}

func numel(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func (t *Tensor) Clone() *Tensor {
	d := make([]float64, len(t.Data))
	copy(d, t.Data)
	return &Tensor{Data: d, Shape: append([]int{}, t.Shape...)}
}

// Batch returns the size of axis 0.
func (t *Tensor) Batch() int {
	if len(t.Shape) == 0 {
		return 1
	}
	return t.Shape[0]
}

// SampleLen is the number of elements in one batch item.
func (t *Tensor) SampleLen() int {
	if len(t.Shape) == 0 {
		return 1
	}
	return numel(t.Shape[1:])
}

// Sample returns a view of batch item i.
func (t *Tensor) Sample(i int) []float64 {
	n := t.SampleLen()
	return t.Data[i*n : (i+1)*n]
}

// SameShape reports whether both tensors have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Concat stacks tensors along the batch axis. All trailing dimensions must match.
func Concat(ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		return New(0)
	}
	trailing := ts[0].Shape[1:]
	batch := 0
	for _, t := range ts {
		if !equalDims(trailing, t.Shape[1:]) {
			panic(fmt.Sprintf("tensor: cannot concat shapes %v and %v", ts[0].Shape, t.Shape))
		}
		batch += t.Batch()
	}
	shape := append([]int{batch}, trailing...)
	out := &Tensor{Data: make([]float64, 0, numel(shape)), Shape: shape}
	for _, t := range ts {
		out.Data = append(out.Data, t.Data...)
	}
	return out
}

func equalDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SliceBatch copies batch items [start, end).
func (t *Tensor) SliceBatch(start, end int) *Tensor {
	n := t.SampleLen()
	shape := append([]int{end - start}, t.Shape[1:]...)
	d := make([]float64, (end-start)*n)
	copy(d, t.Data[start*n:end*n])
	return &Tensor{Data: d, Shape: shape}
}

// Scale returns c*t.
func (t *Tensor) Scale(c float64) *Tensor {
	out := &Tensor{Data: make([]float64, len(t.Data)), Shape: append([]int{}, t.Shape...)}
	floats.ScaleTo(out.Data, c, t.Data)
	return out
}

// Combine returns a*x + b*y.
func Combine(a float64, x *Tensor, b float64, y *Tensor) *Tensor {
	mustMatch(x, y)
	out := x.Scale(a)
	floats.AddScaled(out.Data, b, y.Data)
	return out
}

// CombinePerSample returns a[i]*x[i] + b[i]*y[i] for every batch item i.
func CombinePerSample(a []float64, x *Tensor, b []float64, y *Tensor) *Tensor {
	mustMatch(x, y)
	out := New(x.Shape...)
	for i := 0; i < x.Batch(); i++ {
		dst := out.Sample(i)
		floats.ScaleTo(dst, a[i], x.Sample(i))
		floats.AddScaled(dst, b[i], y.Sample(i))
	}
	return out
}

// AddScaled computes t += alpha*s in place.
func (t *Tensor) AddScaled(alpha float64, s *Tensor) {
	mustMatch(t, s)
	floats.AddScaled(t.Data, alpha, s.Data)
}

// Mean is the arithmetic mean over every element.
func (t *Tensor) Mean() float64 {
	if len(t.Data) == 0 {
		return 0
	}
	return floats.Sum(t.Data) / float64(len(t.Data))
}

// SampleMean is the mean of batch item i.
func (t *Tensor) SampleMean(i int) float64 {
	s := t.Sample(i)
	if len(s) == 0 {
		return 0
	}
	return floats.Sum(s) / float64(len(s))
}

// CountNonFinite returns how many elements are NaN or ±Inf.
func (t *Tensor) CountNonFinite() int {
	n := 0
	for _, v := range t.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			n++
		}
	}
	return n
}

func mustMatch(a, b *Tensor) {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("tensor: shape mismatch %v vs %v", a.Shape, b.Shape))
	}
}
