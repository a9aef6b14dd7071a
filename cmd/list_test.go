package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListSamplers(t *testing.T) {
	var buf bytes.Buffer
	listSamplers(&buf)

	out := buf.String()
	assert.Contains(t, out, "ACCEPTS")
	assert.Contains(t, out, "k_DDIM")
	assert.Contains(t, out, "timesteps,eta")
	assert.Contains(t, out, "k_UniPC")
	assert.Contains(t, out, "timesteps,is_img2img")
	assert.Contains(t, out, "k_plms, plms")
}
