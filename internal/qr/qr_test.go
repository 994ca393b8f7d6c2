package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQR(t *testing.T) {
	r := NewRenderer(128)

	first, err := r.RenderQR("credential-token")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())

	second, err := r.RenderQR("credential-token")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderQREmpty(t *testing.T) {
	_, err := NewRenderer(0).RenderQR("")
	assert.Error(t, err)
}
