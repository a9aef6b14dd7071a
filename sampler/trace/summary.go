package trace

// TraceSummary aggregates statistics from a SamplingTrace.
type TraceSummary struct {
	TotalSteps     int     `json:"total_steps"`
	FinalMean      float64 `json:"final_mean"`
	FinalStd       float64 `json:"final_std"`
	NonFiniteSteps int     `json:"non_finite_steps"` // steps whose latent contained NaN/Inf
	MaxNonFinite   int     `json:"max_non_finite"`
}

// Summarize computes aggregate statistics from a SamplingTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SamplingTrace) *TraceSummary {
	summary := &TraceSummary{}
	if st == nil || len(st.Steps) == 0 {
		return summary
	}

	summary.TotalSteps = len(st.Steps)
	for _, s := range st.Steps {
		if s.NonFinite > 0 {
			summary.NonFiniteSteps++
		}
		if s.NonFinite > summary.MaxNonFinite {
			summary.MaxNonFinite = s.NonFinite
		}
	}
	last := st.Steps[len(st.Steps)-1]
	summary.FinalMean = last.LatentMean
	summary.FinalStd = last.LatentStd

	return summary
}
