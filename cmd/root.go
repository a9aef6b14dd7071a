package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/timestep-sampler/sampler"
	"github.com/inference-sim/timestep-sampler/sampler/integrate"
	"github.com/inference-sim/timestep-sampler/sampler/trace"
)

var (
	// Sampling flags
	samplerName        string  // Registered sampler label or alias
	steps              int     // Number of sampling steps
	cfgScale           float64 // Classifier-free guidance scale
	sMinUncond         float64 // Skip the unconditional branch below this timestep
	seed               int64   // Seed for noise and stochastic integrators
	eta                float64 // DDIM eta, only used when the flag is set
	discardPenultimate bool    // Drop the next-to-last noise level
	batchCount         int     // Independent runs, seeds seed..seed+n-1
	strength           float64 // Img2img denoising strength; 0 runs text-to-image
	initMean           float64 // Value of the synthetic img2img source latent

	// Conditioning flags
	condMean     float64 // Data mean carried by the conditioning
	condTokens   int     // Conditional token count
	uncondTokens int     // Unconditional token count; 0 disables guidance

	// Model and configuration
	modelName        string // Preset name in defaults.yaml
	defaultsFilePath string // Path to defaults.yaml
	optionsFilePath  string // Sampler options YAML; empty uses built-in defaults

	// Output
	logLevel    string // Log verbosity level
	traceLevel  string // Trace verbosity level
	traceOutput string // JSON trace export path
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "timestep-sampler",
	Short: "Discrete-timestep diffusion samplers (DDIM, PLMS, UniPC)",
}

// sampleCmd runs the sampler against an analytic model preset
var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Sample latents with a registered sampler",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s (valid: none, steps)", traceLevel)
		}
		if traceOutput != "" && trace.TraceLevel(traceLevel) != trace.TraceLevelSteps {
			logrus.Warnf("--trace-output set without --trace-level steps; traces will be empty")
		}

		if condTokens < 1 {
			logrus.Fatalf("--cond-tokens must be >= 1, got %d", condTokens)
		}
		if uncondTokens < 0 {
			logrus.Fatalf("--uncond-tokens must be >= 0, got %d", uncondTokens)
		}

		cfg, err := loadDefaultsConfig(defaultsFilePath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		preset, err := cfg.Preset(modelName)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		model, err := preset.Build()
		if err != nil {
			logrus.Fatalf("Invalid model preset %s: %v", modelName, err)
		}

		opts := sampler.DefaultOptions()
		if optionsFilePath != "" {
			if opts, err = sampler.LoadOptions(optionsFilePath); err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		if err := opts.Validate(); err != nil {
			logrus.Fatalf("Invalid sampler options: %v", err)
		}

		s, err := integrate.Create(samplerName, model, opts)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		rc := runConfig{
			Steps:                   steps,
			CFGScale:                cfgScale,
			SMinUncond:              sMinUncond,
			Seed:                    seed,
			LatentShape:             preset.LatentShape,
			CondMean:                condMean,
			CondTokens:              condTokens,
			UncondTokens:            uncondTokens,
			Strength:                strength,
			InitMean:                initMean,
			DiscardPenultimateSigma: discardPenultimate,
			TraceLevel:              trace.TraceLevel(traceLevel),
			BatchCount:              batchCount,
		}
		if cmd.Flags().Changed("eta") {
			rc.Eta = &eta
		}

		logrus.Infof("Sampling %d run(s) with %s on %s: steps=%d, cfg_scale=%v, strength=%v",
			batchCount, s.Label, modelName, steps, cfgScale, strength)
		startTime := time.Now()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		results, err := runBatch(ctx, s, rc)
		if err != nil {
			logrus.Fatalf("Sampling failed: %v", err)
		}

		printResults(os.Stdout, s.Label, results)
		if traceOutput != "" {
			if err := writeTraces(traceOutput, results); err != nil {
				logrus.Fatalf("%v", err)
			}
			logrus.Infof("Traces written to %s", traceOutput)
		}
		logrus.Infof("Sampling complete in %v.", time.Since(startTime))
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	sampleCmd.Flags().StringVar(&samplerName, "sampler", "k_DDIM", "Sampler label or alias (see `samplers`)")
	sampleCmd.Flags().IntVar(&steps, "steps", 20, "Number of sampling steps")
	sampleCmd.Flags().Float64Var(&cfgScale, "cfg-scale", 7.0, "Classifier-free guidance scale")
	sampleCmd.Flags().Float64Var(&sMinUncond, "s-min-uncond", 0, "Skip the unconditional pass below this timestep (0 disables)")
	sampleCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for initial noise and stochastic integrators")
	sampleCmd.Flags().Float64Var(&eta, "eta", 0, "DDIM eta (overrides eta_ddim from the options file)")
	sampleCmd.Flags().BoolVar(&discardPenultimate, "discard-penultimate", false, "Discard the next-to-last noise level")
	sampleCmd.Flags().IntVar(&batchCount, "batch-count", 1, "Number of independent runs, sampled concurrently")
	sampleCmd.Flags().Float64Var(&strength, "strength", 0, "Img2img denoising strength in (0, 1]; 0 runs text-to-image")
	sampleCmd.Flags().Float64Var(&initMean, "init-mean", 0.5, "Value of the img2img source latent")

	sampleCmd.Flags().Float64Var(&condMean, "cond-mean", 1.0, "Data mean carried by the conditioning")
	sampleCmd.Flags().IntVar(&condTokens, "cond-tokens", 77, "Conditional token count")
	sampleCmd.Flags().IntVar(&uncondTokens, "uncond-tokens", 77, "Unconditional token count (0 disables guidance)")

	sampleCmd.Flags().StringVar(&modelName, "model", "sd15", "Model preset from the defaults file")
	sampleCmd.Flags().StringVar(&defaultsFilePath, "defaults-filepath", "defaults.yaml", "Path to default constants")
	sampleCmd.Flags().StringVar(&optionsFilePath, "options", "", "Sampler options YAML file")

	sampleCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	sampleCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Trace verbosity (none, steps)")
	sampleCmd.Flags().StringVar(&traceOutput, "trace-output", "", "Write per-run step traces to this JSON file")

	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(samplersCmd)
}
