package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrayscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	src.Set(1, 0, color.RGBA{R: 0, G: 0, B: 0, A: 255})

	gray := Grayscale(src)
	assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(1, 0).Y)
}

func TestBinarize(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 1))
	src.SetGray(0, 0, color.Gray{Y: 200})
	src.SetGray(1, 0, color.Gray{Y: 150})
	src.SetGray(2, 0, color.Gray{Y: 100})

	out := Binarize(src, 150)
	assert.Equal(t, uint8(255), out.GrayAt(0, 0).Y)
	// The cutoff itself lands on white.
	assert.Equal(t, uint8(255), out.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(0), out.GrayAt(2, 0).Y)
}

func TestUpscale(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 3))

	t.Run("DoublesDimensions", func(t *testing.T) {
		out := Upscale(src, 2)
		assert.Equal(t, 8, out.Bounds().Dx())
		assert.Equal(t, 6, out.Bounds().Dy())
	})

	t.Run("FactorBelowTwoIsIdentity", func(t *testing.T) {
		out := Upscale(src, 1)
		assert.Equal(t, src.Bounds(), out.Bounds())
	})
}

func TestPrepare(t *testing.T) {
	t.Run("Pipeline", func(t *testing.T) {
		src := image.NewRGBA(image.Rect(0, 0, 10, 10))
		for y := 0; y < 10; y++ {
			for x := 0; x < 10; x++ {
				src.Set(x, y, color.RGBA{R: 240, G: 240, B: 240, A: 255})
			}
		}
		// One dark square that must survive the pipeline as black.
		src.Set(5, 5, color.RGBA{A: 255})

		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, src))

		out, err := Prepare(buf.Bytes(), 150, 2)
		require.NoError(t, err)

		img, _, err := image.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 20, img.Bounds().Dx())
		assert.Equal(t, 20, img.Bounds().Dy())

		gray, ok := img.(*image.Gray)
		require.True(t, ok)
		assert.Equal(t, uint8(0), gray.GrayAt(10, 10).Y)
		assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
	})

	t.Run("RejectsGarbage", func(t *testing.T) {
		_, err := Prepare([]byte("not a png"), 150, 2)
		assert.Error(t, err)
	})
}
