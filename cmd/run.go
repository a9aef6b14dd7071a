package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/timestep-sampler/sampler"
	"github.com/inference-sim/timestep-sampler/sampler/tensor"
	"github.com/inference-sim/timestep-sampler/sampler/trace"
)

// embedDim is the width of the synthetic conditioning token vectors.
const embedDim = 8

// runConfig is one `sample` invocation, resolved from flags.
type runConfig struct {
	Steps                   int
	CFGScale                float64
	SMinUncond              float64
	Seed                    int64
	LatentShape             []int
	CondMean                float64
	CondTokens              int
	UncondTokens            int // 0 disables the unconditional branch
	Strength                float64
	InitMean                float64
	DiscardPenultimateSigma bool
	Eta                     *float64
	TraceLevel              trace.TraceLevel
	BatchCount              int
}

// runResult is the outcome of one sampling call in a batch.
type runResult struct {
	Index  int
	Seed   int64
	Latent *tensor.Tensor
	Mean   float64
	Std    float64
	Params map[string]any
	Trace  *trace.SamplingTrace
}

// runBatch runs BatchCount independent sampling calls concurrently, seeds
// Seed, Seed+1, ... Results come back in run order. The first failure cancels
// the remaining runs at their next step.
func runBatch(ctx context.Context, s *sampler.Sampler, rc runConfig) ([]runResult, error) {
	if rc.BatchCount < 1 {
		return nil, fmt.Errorf("batch count must be >= 1, got %d", rc.BatchCount)
	}
	if rc.CondTokens < 1 {
		return nil, fmt.Errorf("cond tokens must be >= 1, got %d", rc.CondTokens)
	}
	if rc.UncondTokens < 0 {
		return nil, fmt.Errorf("uncond tokens must be >= 0, got %d", rc.UncondTokens)
	}
	results := make([]runResult, rc.BatchCount)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < rc.BatchCount; i++ {
		i := i
		g.Go(func() error {
			r, err := runOne(ctx, s, rc, i)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runOne(ctx context.Context, s *sampler.Sampler, rc runConfig, i int) (runResult, error) {
	seed := rc.Seed + int64(i)
	rng := sampler.NewPartitionedRNG(sampler.NewSamplingKey(seed))
	shape := append([]int{1}, rc.LatentShape...)
	noise := tensor.RandomNormal(rng.ForSubsystem(sampler.SubsystemNoise), shape...)

	cond := tensor.Full(rc.CondMean, 1, rc.CondTokens, embedDim)
	var uncond *tensor.Tensor
	if rc.UncondTokens > 0 {
		uncond = tensor.New(1, rc.UncondTokens, embedDim)
	}

	p := &sampler.GenerationParams{
		Steps:                   rc.Steps,
		CFGScale:                rc.CFGScale,
		SMinUncond:              rc.SMinUncond,
		DenoisingStrength:       rc.Strength,
		DiscardPenultimateSigma: rc.DiscardPenultimateSigma,
		Eta:                     rc.Eta,
		Seed:                    seed,
		RNG:                     rng,
		DisableProgress:         rc.BatchCount > 1,
		OnStep: func(sampler.StepInfo) error {
			if ctx.Err() != nil {
				return sampler.ErrInterrupted
			}
			return nil
		},
	}
	if rc.TraceLevel == trace.TraceLevelSteps {
		p.Trace = trace.NewSamplingTrace(trace.TraceConfig{Level: rc.TraceLevel})
	}

	var (
		out *tensor.Tensor
		err error
	)
	if rc.Strength > 0 {
		src := tensor.Full(rc.InitMean, shape...)
		out, err = s.SampleImg2Img(p, src, noise, cond, uncond, 0, nil)
	} else {
		out, err = s.Sample(p, noise, cond, uncond, 0, nil)
	}
	if err != nil {
		return runResult{}, err
	}

	mean, std := stat.MeanStdDev(out.Data, nil)
	logrus.Debugf("run %d (seed %d): mean=%.4f std=%.4f", i, seed, mean, std)
	return runResult{
		Index:  i,
		Seed:   seed,
		Latent: out,
		Mean:   mean,
		Std:    std,
		Params: p.ExtraGenerationParams,
		Trace:  p.Trace,
	}, nil
}
