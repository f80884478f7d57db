// internal/captcha/mapper.go
package captcha

import (
	"math"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

// ToViewport translates a point in captured-image pixel space into viewport
// space: undo the device pixel ratio baked into the raster, add the capture
// region's page offset, subtract the scroll position. Rounding happens once,
// at the end, so composed translations stay associative.
func ToViewport(pt schemas.ImagePoint, region schemas.CaptureRegion, m schemas.ViewportMetrics) schemas.ViewportPoint {
	scale := m.Scale
	if scale <= 0 {
		scale = 1
	}
	return schemas.ViewportPoint{
		X: math.Round(float64(pt.X)/scale + region.OffsetX - m.ScrollX),
		Y: math.Round(float64(pt.Y)/scale + region.OffsetY - m.ScrollY),
	}
}

// FromViewport is the inverse of ToViewport. Round-tripping a point loses at
// most the integer-pixel rounding applied on each leg.
func FromViewport(pt schemas.ViewportPoint, region schemas.CaptureRegion, m schemas.ViewportMetrics) schemas.ImagePoint {
	scale := m.Scale
	if scale <= 0 {
		scale = 1
	}
	return schemas.ImagePoint{
		X: int(math.Round((pt.X + m.ScrollX - region.OffsetX) * scale)),
		Y: int(math.Round((pt.Y + m.ScrollY - region.OffsetY) * scale)),
	}
}

// MapAll applies ToViewport over an ordered candidate list, preserving order.
func MapAll(points []schemas.ImagePoint, region schemas.CaptureRegion, m schemas.ViewportMetrics) []schemas.ViewportPoint {
	out := make([]schemas.ViewportPoint, len(points))
	for i, pt := range points {
		out[i] = ToViewport(pt, region, m)
	}
	return out
}
