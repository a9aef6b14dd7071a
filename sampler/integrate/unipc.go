package integrate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/inference-sim/timestep-sampler/sampler"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// UniPC is the unified predictor-corrector multistep solver in its
// data-prediction form. It only uses the timestep sequence for its length and,
// for img2img, for the starting time; the solver spaces its own continuous
// times according to SkipType.
type UniPC struct {
	Variant         string
	SkipType        string
	Order           int
	LowerOrderFinal bool
}

// NewUniPC builds a UniPC integrator from configured options.
func NewUniPC(o sampler.UniPCOptions) *UniPC {
	return &UniPC{
		Variant:         o.Variant,
		SkipType:        o.SkipType,
		Order:           o.Order,
		LowerOrderFinal: o.LowerOrderFinal,
	}
}

func (*UniPC) Capabilities() sampler.Capabilities {
	return sampler.AcceptsTimesteps | sampler.AcceptsImg2Img
}

func (u *UniPC) Integrate(model sampler.GuidedDenoiser, x *tensor.Tensor, call *sampler.IntegratorCall) (*tensor.Tensor, error) {
	timesteps, err := resolveTimesteps(call)
	if err != nil {
		return nil, err
	}
	steps := len(timesteps)
	if steps == 0 {
		return x, nil
	}

	vp := newVPSchedule(model.Schedule())
	tStart := vp.T()
	if call.Options.IsImg2Img != nil && *call.Options.IsImg2Img {
		tStart = float64(timesteps[steps-1])/1000 + 1.0/1000
	}
	ts, err := u.timeSteps(vp, tStart, vp.Eps(), steps)
	if err != nil {
		return nil, err
	}

	run := &unipcRun{vp: vp, model: model, args: call.Args, variant: u.Variant}
	order := min(max(u.Order, 1), steps)

	m0, err := run.modelFn(x, ts[0])
	if err != nil {
		return nil, err
	}
	tPrev := []float64{ts[0]}
	modelPrev := []*tensor.Tensor{m0}

	// Warm up with increasing order until the history is full.
	for initOrder := 1; initOrder < order; initOrder++ {
		t := ts[initOrder]
		var modelX *tensor.Tensor
		x, modelX, err = run.update(x, modelPrev, tPrev, t, initOrder, true)
		if err != nil {
			return nil, err
		}
		tPrev = append(tPrev, t)
		modelPrev = append(modelPrev, modelX)
		if err := step(call, "UniPC", initOrder-1, steps, vp.modelTime(t), x, modelX); err != nil {
			return nil, err
		}
	}

	for i := order; i <= steps; i++ {
		stepOrder := order
		if u.LowerOrderFinal {
			stepOrder = min(order, steps+1-i)
		}
		t := ts[i]
		var modelX *tensor.Tensor
		x, modelX, err = run.update(x, modelPrev, tPrev, t, stepOrder, i != steps)
		if err != nil {
			return nil, err
		}
		if i < steps && modelX == nil {
			if modelX, err = run.modelFn(x, t); err != nil {
				return nil, err
			}
		}
		tPrev = append(tPrev[1:], t)
		modelPrev = append(modelPrev[1:], modelX)
		if err := step(call, "UniPC", i-1, steps, vp.modelTime(t), x, modelX); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// timeSteps spaces steps+1 continuous times from tT down to t0.
func (u *UniPC) timeSteps(vp *vpSchedule, tT, t0 float64, steps int) ([]float64, error) {
	ts := make([]float64, steps+1)
	switch u.SkipType {
	case "logSNR":
		lT, l0 := vp.lambda(tT), vp.lambda(t0)
		for i := range ts {
			ts[i] = vp.inverseLambda(lT + (l0-lT)*float64(i)/float64(steps))
		}
	case "time_uniform":
		for i := range ts {
			ts[i] = tT + (t0-tT)*float64(i)/float64(steps)
		}
	case "time_quadratic":
		a, b := math.Sqrt(tT), math.Sqrt(t0)
		for i := range ts {
			r := a + (b-a)*float64(i)/float64(steps)
			ts[i] = r * r
		}
	default:
		return nil, fmt.Errorf("unknown uni_pc skip_type %q", u.SkipType)
	}
	return ts, nil
}

type unipcRun struct {
	vp      *vpSchedule
	model   sampler.GuidedDenoiser
	args    *sampler.GuidanceArgs
	variant string
}

// modelFn returns the data prediction x0 = (x - sigma_t*eps) / alpha_t.
func (r *unipcRun) modelFn(x *tensor.Tensor, t float64) (*tensor.Tensor, error) {
	eps, err := r.model.Denoise(x, r.vp.modelTime(t), r.args)
	if err != nil {
		return nil, err
	}
	alpha, sigma := r.vp.alpha(t), r.vp.std(t)
	return tensor.Combine(1/alpha, x, -sigma/alpha, eps), nil
}

// update performs one B(h) predictor step of the given order, followed by the
// corrector when useCorrector is set. modelT is the data prediction at the
// new point, or nil when the corrector did not run.
func (r *unipcRun) update(x *tensor.Tensor, modelPrev []*tensor.Tensor, tPrev []float64, t float64, order int, useCorrector bool) (xT, modelT *tensor.Tensor, err error) {
	vp := r.vp
	last := len(modelPrev) - 1
	m0 := modelPrev[last]
	lambdaPrev0, lambdaT := vp.lambda(tPrev[last]), vp.lambda(t)
	sigmaPrev0, sigmaT := vp.std(tPrev[last]), vp.std(t)
	alphaT := vp.alpha(t)
	h := lambdaT - lambdaPrev0

	rks := make([]float64, 0, order)
	d1s := make([]*tensor.Tensor, 0, order-1)
	for i := 1; i < order; i++ {
		rk := (vp.lambda(tPrev[last-i]) - lambdaPrev0) / h
		rks = append(rks, rk)
		d1s = append(d1s, tensor.Combine(1/rk, modelPrev[last-i], -1/rk, m0))
	}
	rks = append(rks, 1)

	hh := -h
	hPhi1 := math.Expm1(hh)
	hPhiK := hPhi1/hh - 1
	var bH float64
	switch r.variant {
	case "bh1":
		bH = hh
	case "bh2":
		bH = math.Expm1(hh)
	default:
		return nil, nil, fmt.Errorf("unknown uni_pc variant %q", r.variant)
	}

	R := mat.NewDense(order, order, nil)
	b := make([]float64, order)
	factorial := 1.0
	for i := 1; i <= order; i++ {
		for j, rk := range rks {
			R.Set(i-1, j, math.Pow(rk, float64(i-1)))
		}
		b[i-1] = hPhiK * factorial / bH
		factorial *= float64(i + 1)
		hPhiK = hPhiK/hh - 1/factorial
	}

	var rhosP []float64
	if len(d1s) > 0 {
		if order == 2 {
			rhosP = []float64{0.5}
		} else if rhosP, err = solve(R.Slice(0, order-1, 0, order-1), b[:order-1]); err != nil {
			return nil, nil, err
		}
	}
	var rhosC []float64
	if useCorrector {
		if order == 1 {
			rhosC = []float64{0.5}
		} else if rhosC, err = solve(R, b); err != nil {
			return nil, nil, err
		}
	}

	xTBase := tensor.Combine(sigmaT/sigmaPrev0, x, -alphaT*hPhi1, m0)
	xT = xTBase.Clone()
	for k, rho := range rhosP {
		xT.AddScaled(-alphaT*bH*rho, d1s[k])
	}

	if !useCorrector {
		return xT, nil, nil
	}
	modelT, err = r.modelFn(xT, t)
	if err != nil {
		return nil, nil, err
	}
	xT = xTBase.Clone()
	for k, d1 := range d1s {
		xT.AddScaled(-alphaT*bH*rhosC[k], d1)
	}
	xT.AddScaled(-alphaT*bH*rhosC[len(rhosC)-1], tensor.Combine(1, modelT, -1, m0))
	return xT, modelT, nil
}

// solve returns x with a*x = b. Ill-conditioned systems still yield a result.
func solve(a mat.Matrix, b []float64) ([]float64, error) {
	var x mat.VecDense
	err := x.SolveVec(a, mat.NewVecDense(len(b), append([]float64(nil), b...)))
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		return nil, fmt.Errorf("solving unipc coefficients: %w", err)
	}
	out := make([]float64, len(b))
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}
