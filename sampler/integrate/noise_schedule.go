package integrate

import (
	"math"
	"sort"

	"github.com/inference-sim/timestep-sampler/sampler/schedule"
)

// vpSchedule is the continuous-time view of a discrete variance-preserving
// schedule. Time t in (0, 1] maps to discrete index t*N - 1; log(alpha_t) is
// linearly interpolated between the N knots.
type vpSchedule struct {
	n        int
	tArray   []float64 // ascending, (i+1)/N
	logAlpha []float64 // 0.5*log(alphas_cumprod), descending
}

func newVPSchedule(s *schedule.NoiseSchedule) *vpSchedule {
	n := s.Len()
	vp := &vpSchedule{n: n, tArray: make([]float64, n), logAlpha: make([]float64, n)}
	for i := 0; i < n; i++ {
		vp.tArray[i] = float64(i+1) / float64(n)
		vp.logAlpha[i] = 0.5 * math.Log(s.AlphaCumprod(i))
	}
	return vp
}

// T is the end of the continuous time range.
func (vp *vpSchedule) T() float64 { return 1.0 }

// Eps is the smallest time the solver walks to.
func (vp *vpSchedule) Eps() float64 { return 1.0 / float64(vp.n) }

func (vp *vpSchedule) logMeanCoeff(t float64) float64 {
	return interpolate(t, vp.tArray, vp.logAlpha)
}

func (vp *vpSchedule) alpha(t float64) float64 {
	return math.Exp(vp.logMeanCoeff(t))
}

func (vp *vpSchedule) std(t float64) float64 {
	return math.Sqrt(1 - math.Exp(2*vp.logMeanCoeff(t)))
}

// lambda is the half log-SNR, log(alpha_t) - log(sigma_t).
func (vp *vpSchedule) lambda(t float64) float64 {
	lmc := vp.logMeanCoeff(t)
	return lmc - 0.5*math.Log(1-math.Exp(2*lmc))
}

func (vp *vpSchedule) inverseLambda(l float64) float64 {
	logAlpha := -0.5 * logAddExp(0, -2*l)
	n := len(vp.logAlpha)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = vp.logAlpha[n-1-i]
		ys[i] = vp.tArray[n-1-i]
	}
	return interpolate(logAlpha, xs, ys)
}

// modelTime converts continuous time to the discrete timestep the model sees.
func (vp *vpSchedule) modelTime(t float64) float64 {
	return (t - vp.Eps()) * float64(vp.n)
}

// interpolate is piecewise linear through (xs, ys) with xs ascending, extending
// the first and last segments beyond the knots.
func interpolate(x float64, xs, ys []float64) float64 {
	n := len(xs)
	i := sort.SearchFloat64s(xs, x)
	switch {
	case i <= 0:
		i = 1
	case i >= n:
		i = n - 1
	}
	x0, x1 := xs[i-1], xs[i]
	y0, y1 := ys[i-1], ys[i]
	if x1 == x0 {
		return y0
	}
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

func logAddExp(a, b float64) float64 {
	hi, lo := math.Max(a, b), math.Min(a, b)
	return hi + math.Log1p(math.Exp(lo-hi))
}
