package sampler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOptions_ValidYAML(t *testing.T) {
	path := writeTempYAML(t, `
always_discard_next_to_last_sigma: true
pad_cond_uncond: true
eta_ddim: 0.25
uni_pc:
  variant: bh2
  order: 2
`)
	opts, err := LoadOptions(path)
	require.NoError(t, err)

	assert.True(t, opts.AlwaysDiscardNextToLastSigma)
	assert.True(t, opts.PadCondUncond)
	assert.Equal(t, 0.25, opts.EtaDDIM)
	assert.Equal(t, "bh2", opts.UniPC.Variant)
	assert.Equal(t, 2, opts.UniPC.Order)
	// Absent keys keep their defaults.
	assert.True(t, opts.BatchCondUncond)
	assert.Equal(t, "time_uniform", opts.UniPC.SkipType)
	assert.True(t, opts.UniPC.LowerOrderFinal)
	assert.NoError(t, opts.Validate())
}

func TestLoadOptions_ExplicitFalseOverridesDefault(t *testing.T) {
	opts, err := LoadOptions(writeTempYAML(t, "batch_cond_uncond: false\n"))
	require.NoError(t, err)
	assert.False(t, opts.BatchCondUncond)
}

func TestLoadOptions_UnknownKeyRejected(t *testing.T) {
	_, err := LoadOptions(writeTempYAML(t, "eta_ddmi: 0.5\n"))
	assert.Error(t, err)
}

func TestLoadOptions_MissingFile(t *testing.T) {
	_, err := LoadOptions(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr bool
	}{
		{"defaults", func(o *Options) {}, false},
		{"negative eta", func(o *Options) { o.EtaDDIM = -0.1 }, true},
		{"unknown variant", func(o *Options) { o.UniPC.Variant = "bh3" }, true},
		{"unknown skip type", func(o *Options) { o.UniPC.SkipType = "karras" }, true},
		{"order zero", func(o *Options) { o.UniPC.Order = 0 }, true},
		{"order four", func(o *Options) { o.UniPC.Order = 4 }, true},
		{"logSNR order 1", func(o *Options) { o.UniPC.SkipType = "logSNR"; o.UniPC.Order = 1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(opts)
			if tt.wantErr {
				assert.Error(t, opts.Validate())
			} else {
				assert.NoError(t, opts.Validate())
			}
		})
	}
}
