// Package sampler drives discrete-timestep diffusion integrators (DDIM, PLMS,
// UniPC) over a trained noise-prediction or velocity-prediction model.
//
// # Reading Guide
//
// Start with these files:
//   - model.go: the Model contract a loaded diffusion model satisfies
//   - denoiser.go: adapters turning raw model output into a noise estimate
//   - guidance.go: classifier-free guidance plus the clean-sample (x0) predictor
//   - sampler.go: the driver for full and image-to-image sampling
//
// # Architecture
//
// The sampler package defines interfaces and bridge types; implementations live in
// sub-packages:
//   - sampler/tensor/: batch-major latent buffer
//   - sampler/schedule/: alphas_cumprod noise schedule and discrete timestep scheduler
//   - sampler/integrate/: DDIM, PLMS and UniPC integrators and the sampler registration table
//   - sampler/analytic/: closed-form Gaussian model for running samplers without weights
//   - sampler/trace/: per-step trace recording
//
// # Key Interfaces
//
//   - Model: apply the network at a latent and continuous timestep
//   - Denoiser: model wrapped to always return a noise estimate
//   - X0Predictor: convert a guided noise estimate into a clean-sample estimate
//   - GuidedDenoiser: what an integrator calls once or more per step
//   - Integrator: the step loop, plus the Capabilities it declares
//
// Integrators declare the optional arguments they accept as a Capabilities bit
// set. The driver passes only what is declared; an integrator that does not
// accept explicit timesteps falls back to its own schedule.
package sampler
