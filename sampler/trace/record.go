// Package trace records per-step statistics of a sampling call.
// This package has no dependencies on sampler/ — it stores pure data types.
package trace

// StepRecord captures one integrator step as seen by the step callback.
type StepRecord struct {
	Step         int     `json:"step"`
	Sigma        float64 `json:"sigma"`
	LatentMean   float64 `json:"latent_mean"`
	LatentStd    float64 `json:"latent_std"`
	DenoisedMean float64 `json:"denoised_mean"`
	PreviewMean  float64 `json:"preview_mean"` // mean of the predicted clean sample
	NonFinite    int     `json:"non_finite"`   // NaN/Inf count in the latent after this step
}
