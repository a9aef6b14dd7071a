package sampler

import (
	"math"

	"github.com/inference-sim/timestep-sampler/sampler/trace"
)

// Generation metadata keys the driver annotates.
const (
	MetaDiscardPenultimateSigma = "Discard penultimate sigma"
	MetaPadConds                = "Pad conds"
	MetaEtaDDIM                 = "Eta DDIM"
)

// etaDefault is the eta the timestep integrators use when nothing is configured;
// other values are recorded in the generation metadata.
const etaDefault = 0.0

// GenerationParams is the per-call input to the driver. The driver writes only
// to ExtraGenerationParams and Trace.
type GenerationParams struct {
	Steps      int
	CFGScale   float64
	SMinUncond float64
	// DenoisingStrength in (0, 1] controls how far img2img re-noises the source.
	DenoisingStrength float64
	// DiscardPenultimateSigma requests the discard-penultimate policy for this call.
	DiscardPenultimateSigma bool
	// Eta overrides Options.EtaDDIM when set.
	Eta  *float64
	Seed int64
	// RNG, if nil, is derived from Seed.
	RNG *PartitionedRNG
	// OnStep is invoked once per integrator step; returning an error
	// (typically ErrInterrupted) aborts sampling with that error.
	OnStep StepCallback
	// DisableProgress suppresses per-step debug logging in the integrator.
	DisableProgress bool
	Trace           *trace.SamplingTrace

	ExtraGenerationParams map[string]any
}

func (p *GenerationParams) annotate(key string, value any) {
	if p.ExtraGenerationParams == nil {
		p.ExtraGenerationParams = make(map[string]any)
	}
	p.ExtraGenerationParams[key] = value
}

func (p *GenerationParams) rng() *PartitionedRNG {
	if p.RNG == nil {
		p.RNG = NewPartitionedRNG(NewSamplingKey(p.Seed))
	}
	return p.RNG
}

// SetupImg2ImgSteps derives the total step count and the encode cutoff t_enc
// for image-to-image sampling from the denoising strength.
//
// With opts.Img2ImgFixSteps, or an explicit steps argument, the requested
// count is the number of steps actually run: steps = requested/strength and
// t_enc = requested-1. Otherwise steps = p.Steps and t_enc = strength*steps.
// Strength is capped at 0.999 so t_enc always indexes inside the schedule.
func SetupImg2ImgSteps(p *GenerationParams, steps int, opts *Options) (int, int) {
	strength := math.Min(p.DenoisingStrength, 0.999)
	if opts.Img2ImgFixSteps || steps != 0 {
		requested := steps
		if requested == 0 {
			requested = p.Steps
		}
		if p.DenoisingStrength > 0 {
			steps = int(float64(requested) / strength)
		} else {
			steps = 0
		}
		return steps, requested - 1
	}
	steps = p.Steps
	return steps, int(strength * float64(steps))
}
