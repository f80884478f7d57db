package schemas

import (
	"fmt"
	"time"
)

// -- Coordinate Schemas --

// ImagePoint is an (x, y) pair in ChallengeImage pixel space.
type ImagePoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p ImagePoint) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// ViewportPoint is a point in on-screen pixel space, ready for actuation.
// Its lifetime is bound to a single click action.
type ViewportPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Provenance records how much trust a coordinate has earned.
type Provenance string

const (
	// ProvenanceOracle marks a coordinate as proposed by the remote solver
	// and not yet cross-checked.
	ProvenanceOracle Provenance = "oracle-proposed"
	// ProvenanceVerified marks a coordinate that passed the local OCR check.
	ProvenanceVerified Provenance = "locally-verified"
)

// CandidateCoordinate is a single oracle-proposed click point.
type CandidateCoordinate struct {
	Point      ImagePoint `json:"point"`
	Provenance Provenance `json:"provenance"`
}

// SolutionSet is the ordered list of candidates as returned by the oracle.
// Order matters because clicks are issued in the same sequence.
type SolutionSet []CandidateCoordinate

// Points flattens the set to bare image points.
func (s SolutionSet) Points() []ImagePoint {
	pts := make([]ImagePoint, len(s))
	for i, c := range s {
		pts[i] = c.Point
	}
	return pts
}

// VerifiedCoordinate is a candidate whose target digits were locally confirmed.
type VerifiedCoordinate struct {
	Point          ImagePoint `json:"point"`
	RecognizedText string     `json:"recognized_text"`
	Confidence     float64    `json:"confidence"`
}

// -- Capture Schemas --

// CaptureRegion describes the pixel offset and extent of a captured region
// relative to the full page origin.
type CaptureRegion struct {
	OffsetX  float64 `json:"offset_x"`
	OffsetY  float64 `json:"offset_y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FullPage bool    `json:"full_page"`
}

// Pad grows the region by margin pixels on every side, clamping the origin at
// the page origin so a capture never requests negative offsets.
func (r CaptureRegion) Pad(margin float64) CaptureRegion {
	out := r
	out.OffsetX = r.OffsetX - margin
	out.OffsetY = r.OffsetY - margin
	out.Width = r.Width + 2*margin
	out.Height = r.Height + 2*margin
	if out.OffsetX < 0 {
		out.Width += out.OffsetX
		out.OffsetX = 0
	}
	if out.OffsetY < 0 {
		out.Height += out.OffsetY
		out.OffsetY = 0
	}
	return out
}

// ViewportMetrics captures scroll position and effective display scale at the
// moment a screenshot was taken. Scale is the device pixel ratio applied to
// the captured raster.
type ViewportMetrics struct {
	ScrollX float64 `json:"scroll_x"`
	ScrollY float64 `json:"scroll_y"`
	Scale   float64 `json:"scale"`
}

// ChallengeImage is the captured CAPTCHA grid raster. It is owned exclusively
// by the active attempt and immutable once captured; it is discarded after
// verification because the challenge regenerates on a rejected submission.
type ChallengeImage struct {
	PNG        []byte          `json:"-"`
	Region     CaptureRegion   `json:"region"`
	Metrics    ViewportMetrics `json:"metrics"`
	CapturedAt time.Time       `json:"captured_at"`
}
