// Package schedule holds the per-model noise schedule (cumulative
// signal-retention coefficients over the training timesteps) and the
// discrete timestep scheduler that samplers walk over.
package schedule

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// NumTrainTimesteps is the number of discrete timesteps the models are trained with.
const NumTrainTimesteps = 1000

// ErrInvalidSchedule is returned when alphas_cumprod cannot serve as a noise schedule.
var ErrInvalidSchedule = errors.New("invalid noise schedule")

// NoiseSchedule is an immutable alphas_cumprod table indexed by discrete timestep.
// It is safe to share between concurrent sampling calls.
type NoiseSchedule struct {
	alphasCumprod      []float64
	sqrtAlphasCumprod  []float64
	sqrtOneMinusAlphas []float64
}

// New validates and copies alphasCumprod. Values must number NumTrainTimesteps,
// lie in (0, 1], and be strictly decreasing.
func New(alphasCumprod []float64) (*NoiseSchedule, error) {
	if len(alphasCumprod) != NumTrainTimesteps {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrInvalidSchedule, len(alphasCumprod), NumTrainTimesteps)
	}
	for i, a := range alphasCumprod {
		if !(a > 0 && a <= 1) {
			return nil, fmt.Errorf("%w: alphas_cumprod[%d]=%v outside (0, 1]", ErrInvalidSchedule, i, a)
		}
		if i > 0 && a >= alphasCumprod[i-1] {
			return nil, fmt.Errorf("%w: alphas_cumprod[%d]=%v not below alphas_cumprod[%d]=%v",
				ErrInvalidSchedule, i, a, i-1, alphasCumprod[i-1])
		}
	}
	s := &NoiseSchedule{
		alphasCumprod:      append([]float64{}, alphasCumprod...),
		sqrtAlphasCumprod:  make([]float64, len(alphasCumprod)),
		sqrtOneMinusAlphas: make([]float64, len(alphasCumprod)),
	}
	for i, a := range alphasCumprod {
		s.sqrtAlphasCumprod[i] = math.Sqrt(a)
		s.sqrtOneMinusAlphas[i] = math.Sqrt(1 - a)
	}
	return s, nil
}

// NewScaledLinear builds the "scaled_linear" schedule used by Stable Diffusion:
// betas = linspace(sqrt(start), sqrt(end))^2, alphas_cumprod = cumprod(1 - betas).
func NewScaledLinear(betaStart, betaEnd float64) (*NoiseSchedule, error) {
	betas := make([]float64, NumTrainTimesteps)
	floats.Span(betas, math.Sqrt(betaStart), math.Sqrt(betaEnd))
	for i, b := range betas {
		betas[i] = b * b
	}
	return fromBetas(betas)
}

// NewLinear builds the "linear" beta schedule: betas = linspace(start, end).
func NewLinear(betaStart, betaEnd float64) (*NoiseSchedule, error) {
	betas := make([]float64, NumTrainTimesteps)
	floats.Span(betas, betaStart, betaEnd)
	return fromBetas(betas)
}

// NewLinearAlphas spaces alphas_cumprod itself linearly from first to last.
func NewLinearAlphas(first, last float64) (*NoiseSchedule, error) {
	alphas := make([]float64, NumTrainTimesteps)
	floats.Span(alphas, first, last)
	return New(alphas)
}

func fromBetas(betas []float64) (*NoiseSchedule, error) {
	alphas := make([]float64, len(betas))
	prod := 1.0
	for i, b := range betas {
		prod *= 1.0 - b
		alphas[i] = prod
	}
	return New(alphas)
}

// Len is the number of discrete timesteps.
func (s *NoiseSchedule) Len() int {
	return len(s.alphasCumprod)
}

func (s *NoiseSchedule) AlphaCumprod(t int) float64 {
	return s.alphasCumprod[t]
}

func (s *NoiseSchedule) SqrtAlphaCumprod(t int) float64 {
	return s.sqrtAlphasCumprod[t]
}

func (s *NoiseSchedule) SqrtOneMinusAlphaCumprod(t int) float64 {
	return s.sqrtOneMinusAlphas[t]
}

// TimestepIndex truncates a continuous timestep value (a "sigma" in generic
// solver terms) to an index into the schedule, clamped into range.
func (s *NoiseSchedule) TimestepIndex(sigma float64) int {
	t := int(sigma)
	if t < 0 {
		return 0
	}
	if t >= len(s.alphasCumprod) {
		return len(s.alphasCumprod) - 1
	}
	return t
}
