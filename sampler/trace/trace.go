package trace

import "github.com/google/uuid"

// TraceLevel controls the verbosity of step tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelSteps captures one record per integrator step.
	TraceLevelSteps TraceLevel = "steps"
)

var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:  true,
	TraceLevelSteps: true,
	"":              true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SamplingTrace collects step records during one sampling call.
type SamplingTrace struct {
	ID       string         `json:"id"`
	Config   TraceConfig    `json:"-"`
	Sampler  string         `json:"sampler"`
	Steps    []StepRecord   `json:"steps"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewSamplingTrace creates a SamplingTrace ready for recording, with a fresh run ID.
func NewSamplingTrace(config TraceConfig) *SamplingTrace {
	return &SamplingTrace{
		ID:     uuid.NewString(),
		Config: config,
		Steps:  make([]StepRecord, 0),
	}
}

// Enabled reports whether records should be collected.
func (st *SamplingTrace) Enabled() bool {
	return st != nil && st.Config.Level == TraceLevelSteps
}

// RecordStep appends a step record. No-op unless the trace is enabled.
func (st *SamplingTrace) RecordStep(record StepRecord) {
	if !st.Enabled() {
		return
	}
	st.Steps = append(st.Steps, record)
}

// Annotate copies generation metadata onto the trace.
func (st *SamplingTrace) Annotate(metadata map[string]any) {
	if st == nil || len(metadata) == 0 {
		return
	}
	if st.Metadata == nil {
		st.Metadata = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		st.Metadata[k] = v
	}
}
