// internal/oracle/encode.go
package oracle

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// Downscaling floor. Below this the grid digits stop being readable for the
// human solver too, so shrinking further cannot produce a usable answer.
const minBoundedDimension = 64

// BoundImage re-encodes a PNG so it fits within maxBytes, downscaling as
// needed. It returns the encoded bytes and the applied scale factor: 1.0
// when untouched, otherwise the ratio of bounded to source dimensions.
// Coordinates answered against the bounded image divide by the factor to
// recover source pixels.
func BoundImage(data []byte, maxBytes int) ([]byte, float64, error) {
	if maxBytes <= 0 || len(data) <= maxBytes {
		return data, 1.0, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	// PNG size tracks pixel count closely enough that the area ratio is a
	// good first guess; subsequent passes shrink further if it misses.
	scale := math.Sqrt(float64(maxBytes) / float64(len(data)))
	if scale >= 1.0 {
		scale = 0.9
	}

	for attempt := 0; attempt < 8; attempt++ {
		w := int(math.Round(float64(srcW) * scale))
		h := int(math.Round(float64(srcH) * scale))
		if w < minBoundedDimension || h < minBoundedDimension {
			break
		}

		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

		var buf bytes.Buffer
		if err := png.Encode(&buf, dst); err != nil {
			return nil, 0, fmt.Errorf("encode scaled image: %w", err)
		}
		if buf.Len() <= maxBytes {
			// Report the exact ratio actually applied, not the requested
			// one, since rounding nudges the dimensions.
			return buf.Bytes(), float64(w) / float64(srcW), nil
		}

		scale *= 0.85
	}

	return nil, 0, fmt.Errorf("image cannot be bounded to %d bytes without destroying legibility", maxBytes)
}
