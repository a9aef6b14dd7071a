package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inference-sim/timestep-sampler/sampler"
	"github.com/inference-sim/timestep-sampler/sampler/integrate"
	"github.com/inference-sim/timestep-sampler/sampler/trace"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// defaultsPath finds the repo's defaults.yaml from the package directory.
func defaultsPath(t *testing.T) string {
	t.Helper()
	for _, p := range []string{"defaults.yaml", "../defaults.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	t.Skip("defaults.yaml not found, skipping integration test")
	return ""
}

func newPresetSampler(t *testing.T, name, preset string) (*sampler.Sampler, ModelPreset) {
	t.Helper()
	cfg, err := loadDefaultsConfig(defaultsPath(t))
	require.NoError(t, err)
	p, err := cfg.Preset(preset)
	require.NoError(t, err)
	m, err := p.Build()
	require.NoError(t, err)
	s, err := integrate.Create(name, m, nil)
	require.NoError(t, err)
	return s, p
}

func baseRunConfig(p ModelPreset) runConfig {
	return runConfig{
		Steps:        10,
		CFGScale:     5,
		Seed:         42,
		LatentShape:  p.LatentShape,
		CondMean:     1,
		CondTokens:   4,
		UncondTokens: 4,
		TraceLevel:   trace.TraceLevelNone,
		BatchCount:   1,
	}
}
