package sampler

import (
	"github.com/inference-sim/timestep-sampler/sampler/schedule"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
)

// GuidanceArgs is the extra-args bundle an integrator forwards, unchanged, to
// every GuidedDenoiser call.
type GuidanceArgs struct {
	Cond       *tensor.Tensor
	Uncond     *tensor.Tensor
	ImageCond  *tensor.Tensor
	CondScale  float64
	SMinUncond float64
}

// GuidedDenoiser is the callable an integrator drives. sigma is the continuous
// noise level the integrator is at; for the timestep integrators in this module
// it is a (possibly fractional) discrete timestep.
type GuidedDenoiser interface {
	Denoise(x *tensor.Tensor, sigma float64, args *GuidanceArgs) (*tensor.Tensor, error)
	Schedule() *schedule.NoiseSchedule
}

// X0Predictor turns guided model output at a noise level into a predicted
// clean sample.
type X0Predictor interface {
	PredX0(xIn, xOut *tensor.Tensor, sigma float64) *tensor.Tensor
}

// TimestepX0Predictor inverts the forward diffusion equation using the
// alphas_cumprod entry at the truncated timestep:
//
//	x0 = (x - sqrt(1-a_t)*eps) / sqrt(a_t)
type TimestepX0Predictor struct {
	schedule *schedule.NoiseSchedule
}

func NewTimestepX0Predictor(s *schedule.NoiseSchedule) *TimestepX0Predictor {
	return &TimestepX0Predictor{schedule: s}
}

// PredX0 expects xOut to already be a noise estimate. a_t is never zero
// because schedule.New rejects non-positive coefficients.
func (p *TimestepX0Predictor) PredX0(xIn, xOut *tensor.Tensor, sigma float64) *tensor.Tensor {
	ts := p.schedule.TimestepIndex(sigma)
	sqrtA := p.schedule.SqrtAlphaCumprod(ts)
	return tensor.Combine(1/sqrtA, xIn, -p.schedule.SqrtOneMinusAlphaCumprod(ts)/sqrtA, xOut)
}

// Guidance is classifier-free guidance over a Denoiser: it evaluates the
// conditional and unconditional branches and blends them by CondScale.
type Guidance struct {
	inner Denoiser
	// PadCondUncond pads the shorter conditioning so both branches fit in one batch.
	PadCondUncond bool
	// BatchCondUncond evaluates both branches in a single model call when shapes allow.
	BatchCondUncond bool
}

func NewGuidance(inner Denoiser, opts *Options) *Guidance {
	return &Guidance{
		inner:           inner,
		PadCondUncond:   opts.PadCondUncond,
		BatchCondUncond: opts.BatchCondUncond,
	}
}

// Guide returns uncond + (cond - uncond)*CondScale. padded reports whether the
// conditionings had to be padded to equal token counts.
//
// The unconditional branch is skipped (the conditional output is returned)
// when args carries no Uncond, or when SMinUncond > 0 and sigma < SMinUncond.
func (g *Guidance) Guide(x *tensor.Tensor, sigma float64, args *GuidanceArgs) (out *tensor.Tensor, padded bool, err error) {
	batch := x.Batch()
	cond, uncond := args.Cond, args.Uncond
	skipUncond := uncond == nil || (args.SMinUncond > 0 && sigma < args.SMinUncond)

	if skipUncond {
		out, err = g.inner.Forward(x, fill(batch, sigma), &Conditioning{CrossAttn: cond, Concat: args.ImageCond})
		return out, false, err
	}

	// An empty conditioning has no last token to repeat; it is evaluated separately.
	tc, tu := tokenCount(cond), tokenCount(uncond)
	if g.PadCondUncond && tc != tu && tc > 0 && tu > 0 {
		cond, uncond = padToMatch(cond, uncond)
		padded = true
	}

	var condOut, uncondOut *tensor.Tensor
	if g.BatchCondUncond && cond != nil && tokenCount(cond) == tokenCount(uncond) {
		cIn := &Conditioning{CrossAttn: tensor.Concat(cond, uncond)}
		if args.ImageCond != nil {
			cIn.Concat = tensor.Concat(args.ImageCond, args.ImageCond)
		}
		xOut, err := g.inner.Forward(tensor.Concat(x, x), fill(2*batch, sigma), cIn)
		if err != nil {
			return nil, padded, err
		}
		condOut, uncondOut = xOut.SliceBatch(0, batch), xOut.SliceBatch(batch, 2*batch)
	} else {
		sigmas := fill(batch, sigma)
		if condOut, err = g.inner.Forward(x, sigmas, &Conditioning{CrossAttn: cond, Concat: args.ImageCond}); err != nil {
			return nil, padded, err
		}
		if uncondOut, err = g.inner.Forward(x, sigmas, &Conditioning{CrossAttn: uncond, Concat: args.ImageCond}); err != nil {
			return nil, padded, err
		}
	}
	return tensor.Combine(args.CondScale, condOut, 1-args.CondScale, uncondOut), padded, nil
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// tokenCount is axis 1 of a [batch, tokens, dim] conditioning tensor.
func tokenCount(c *tensor.Tensor) int {
	if c == nil || len(c.Shape) < 2 {
		return 0
	}
	return c.Shape[1]
}

// padToMatch extends the conditioning with fewer tokens by repeating its last
// token vector until both have the same token count. Both must carry at least
// one token.
func padToMatch(cond, uncond *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	tc, tu := tokenCount(cond), tokenCount(uncond)
	switch {
	case tc < tu:
		return padTokens(cond, tu), uncond
	case tu < tc:
		return cond, padTokens(uncond, tc)
	}
	return cond, uncond
}

func padTokens(c *tensor.Tensor, tokens int) *tensor.Tensor {
	batch, have := c.Shape[0], c.Shape[1]
	dim := c.SampleLen() / have
	shape := append([]int{batch, tokens}, c.Shape[2:]...)
	out := tensor.New(shape...)
	for b := 0; b < batch; b++ {
		src := c.Sample(b)
		dst := out.Sample(b)
		copy(dst, src)
		last := src[(have-1)*dim:]
		for tok := have; tok < tokens; tok++ {
			copy(dst[tok*dim:(tok+1)*dim], last)
		}
	}
	return out
}

// CFGDenoiser is the per-call guidance wrapper an integrator drives. It
// composes the shared Guidance with the X0Predictor strategy and holds the
// state of a single sampling call.
type CFGDenoiser struct {
	guidance  *Guidance
	predictor X0Predictor

	// PaddedCondUncond is set once any step had to pad conditionings.
	PaddedCondUncond bool
	lastLatent       *tensor.Tensor
}

func NewCFGDenoiser(g *Guidance, p X0Predictor) *CFGDenoiser {
	return &CFGDenoiser{guidance: g, predictor: p}
}

func (c *CFGDenoiser) Denoise(x *tensor.Tensor, sigma float64, args *GuidanceArgs) (*tensor.Tensor, error) {
	out, padded, err := c.guidance.Guide(x, sigma, args)
	if err != nil {
		return nil, err
	}
	if padded {
		c.PaddedCondUncond = true
	}
	c.lastLatent = c.predictor.PredX0(x, out, sigma)
	return out, nil
}

// PredX0 exposes the composed predictor.
func (c *CFGDenoiser) PredX0(xIn, xOut *tensor.Tensor, sigma float64) *tensor.Tensor {
	return c.predictor.PredX0(xIn, xOut, sigma)
}

// LastLatent is the clean-sample estimate from the most recent Denoise call,
// or nil before the first one.
func (c *CFGDenoiser) LastLatent() *tensor.Tensor {
	return c.lastLatent
}

func (c *CFGDenoiser) Schedule() *schedule.NoiseSchedule {
	return c.guidance.inner.Schedule()
}
