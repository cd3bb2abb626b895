package imagecache

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/charoster/internal/interfaces"
	"github.com/conneroisu/charoster/internal/testutils"
)

func TestRasterCodec(t *testing.T) {
	codec := NewRasterCodec()

	img, err := codec.Decode(testutils.PNG(t, 40, 20, color.NRGBA{R: 255, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 20), img.Bounds())

	extended := codec.Extend(img, interfaces.Padding{Left: 5, Top: 2})
	assert.Equal(t, image.Rect(0, 0, 45, 22), extended.Bounds())
	_, _, _, alpha := extended.At(0, 0).RGBA()
	assert.Zero(t, alpha, "padding is transparent")
	_, _, _, alpha = extended.At(5, 2).RGBA()
	assert.NotZero(t, alpha)

	cropped, err := codec.Crop(extended, image.Rect(5, 2, 25, 12))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), cropped.Bounds())

	_, err = codec.Crop(img, image.Rect(-1, 0, 10, 10))
	assert.Error(t, err)

	resized := codec.Resize(img, 10)
	assert.Equal(t, image.Rect(0, 0, 10, 5), resized.Bounds())

	encoded, err := codec.Encode(resized)
	require.NoError(t, err)
	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, resized.Bounds(), decoded.Bounds())

	_, err = codec.Decode([]byte("not an image"))
	assert.Error(t, err)
}
