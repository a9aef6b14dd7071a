package sampler

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/timestep-sampler/sampler/schedule"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
	"github.com/inference-sim/timestep-sampler/sampler/trace"
)

// SamplerOptions are per-sampler settings carried by a registration record.
type SamplerOptions struct {
	DiscardNextToLastSigma bool `yaml:"discard_next_to_last_sigma"`
}

// Sampler drives one integrator over one model. The denoiser adapter and the
// guidance composition are fixed at construction; per-call state lives in a
// fresh CFGDenoiser, so a Sampler may serve concurrent calls.
type Sampler struct {
	Label      string
	integrator Integrator
	denoiser   Denoiser
	guidance   *Guidance
	predictor  X0Predictor
	config     SamplerOptions
	opts       *Options
}

// New builds a Sampler. A nil opts uses DefaultOptions. Fails with
// ErrUnsupportedParameterization when the model's output kind is unknown.
func New(label string, integrator Integrator, model Model, config SamplerOptions, opts *Options) (*Sampler, error) {
	denoiser, err := NewDenoiser(model)
	if err != nil {
		return nil, fmt.Errorf("creating sampler %s: %w", label, err)
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Sampler{
		Label:      label,
		integrator: integrator,
		denoiser:   denoiser,
		guidance:   NewGuidance(denoiser, opts),
		predictor:  NewTimestepX0Predictor(denoiser.Schedule()),
		config:     config,
		opts:       opts,
	}, nil
}

// Capabilities are the optional arguments the wrapped integrator accepts.
func (s *Sampler) Capabilities() Capabilities {
	return s.integrator.Capabilities()
}

// GetTimesteps builds the timestep sequence for steps. The discard-penultimate
// policy is on when the sampler config or the call asks for it, or when the
// global option forces it; in the last case the call metadata records that
// the adjustment was applied.
func (s *Sampler) GetTimesteps(p *GenerationParams, steps int) ([]int, error) {
	discard := s.config.DiscardNextToLastSigma || p.DiscardPenultimateSigma
	if s.opts.AlwaysDiscardNextToLastSigma && !discard {
		discard = true
		p.annotate(MetaDiscardPenultimateSigma, true)
	}
	return schedule.Timesteps(steps, discard)
}

// initialize resolves the optional arguments that do not depend on the
// schedule and records non-default values in the metadata.
func (s *Sampler) initialize(p *GenerationParams) IntegratorOptions {
	var o IntegratorOptions
	if s.Capabilities().Has(AcceptsEta) {
		eta := s.opts.EtaDDIM
		if p.Eta != nil {
			eta = *p.Eta
		}
		if eta != etaDefault {
			p.annotate(MetaEtaDDIM, eta)
		}
		o.Eta = &eta
	}
	return o
}

// Sample runs a full text-to-image pass from x (usually pure noise). steps of
// 0 uses p.Steps.
func (s *Sampler) Sample(p *GenerationParams, x, cond, uncond *tensor.Tensor, steps int, imageCond *tensor.Tensor) (*tensor.Tensor, error) {
	if steps == 0 {
		steps = p.Steps
	}
	timesteps, err := s.GetTimesteps(p, steps)
	if err != nil {
		return nil, err
	}

	o := s.initialize(p)
	if s.Capabilities().Has(AcceptsTimesteps) {
		o.Timesteps = timesteps
	}

	return s.launch(p, x, steps, &GuidanceArgs{
		Cond:       cond,
		Uncond:     uncond,
		ImageCond:  imageCond,
		CondScale:  p.CFGScale,
		SMinUncond: p.SMinUncond,
	}, o)
}

// SampleImg2Img forward-diffuses the source latent x with noise to the level of
// the cutoff timestep and samples only the first t_enc timesteps from there:
//
//	xi = x*sqrt(a[ts[t_enc]]) + noise*sqrt(1 - a[ts[t_enc]])
func (s *Sampler) SampleImg2Img(p *GenerationParams, x, noise, cond, uncond *tensor.Tensor, steps int, imageCond *tensor.Tensor) (*tensor.Tensor, error) {
	steps, tEnc := SetupImg2ImgSteps(p, steps, s.opts)

	timesteps, err := s.GetTimesteps(p, steps)
	if err != nil {
		return nil, err
	}
	if tEnc < 0 || tEnc >= len(timesteps) {
		return nil, fmt.Errorf("%w: t_enc %d outside schedule of %d timesteps", schedule.ErrInvalidSteps, tEnc, len(timesteps))
	}
	timestepsSched := timesteps[:tEnc]

	alphas := s.denoiser.Schedule()
	cutoff := timesteps[tEnc]
	xi := tensor.Combine(alphas.SqrtAlphaCumprod(cutoff), x, alphas.SqrtOneMinusAlphaCumprod(cutoff), noise)

	o := s.initialize(p)
	caps := s.Capabilities()
	if caps.Has(AcceptsTimesteps) {
		o.Timesteps = timestepsSched
	}
	if caps.Has(AcceptsImg2Img) {
		isImg2Img := true
		o.IsImg2Img = &isImg2Img
	}

	return s.launch(p, xi, tEnc+1, &GuidanceArgs{
		Cond:       cond,
		Uncond:     uncond,
		ImageCond:  imageCond,
		CondScale:  p.CFGScale,
		SMinUncond: p.SMinUncond,
	}, o)
}

func (s *Sampler) launch(p *GenerationParams, x *tensor.Tensor, steps int, args *GuidanceArgs, o IntegratorOptions) (*tensor.Tensor, error) {
	cfg := NewCFGDenoiser(s.guidance, s.predictor)
	call := &IntegratorCall{
		Args:     args,
		Disable:  p.DisableProgress,
		Callback: s.callbackState(p, cfg),
		Steps:    steps,
		RNG:      p.rng().ForSubsystem(SubsystemSampler),
		Options:  o,
	}
	if p.Trace != nil {
		p.Trace.Sampler = s.Label
	}

	logrus.Infof("Sampling with %s: %d steps, cfg_scale=%v, capabilities=%s", s.Label, steps, args.CondScale, s.Capabilities())
	samples, err := s.integrator.Integrate(cfg, x, call)
	if err != nil {
		return nil, err
	}

	if cfg.PaddedCondUncond {
		p.annotate(MetaPadConds, true)
	}
	if n := samples.CountNonFinite(); n > 0 {
		logrus.Warnf("%s produced %d non-finite latent values", s.Label, n)
	}
	p.Trace.Annotate(p.ExtraGenerationParams)
	return samples, nil
}

// callbackState wraps the caller's step callback: it attaches the latest
// clean-sample preview, records the step in the trace, then hands the step to
// p.OnStep and returns its error untouched.
func (s *Sampler) callbackState(p *GenerationParams, cfg *CFGDenoiser) StepCallback {
	return func(info StepInfo) error {
		info.Preview = cfg.LastLatent()
		if p.Trace.Enabled() {
			mean, std := stat.MeanStdDev(info.X.Data, nil)
			rec := trace.StepRecord{
				Step:       info.I,
				Sigma:      info.Sigma,
				LatentMean: mean,
				LatentStd:  std,
				NonFinite:  info.X.CountNonFinite(),
			}
			if info.Denoised != nil {
				rec.DenoisedMean = info.Denoised.Mean()
			}
			if info.Preview != nil {
				rec.PreviewMean = info.Preview.Mean()
			}
			p.Trace.RecordStep(rec)
		}
		if p.OnStep != nil {
			return p.OnStep(info)
		}
		return nil
	}
}
