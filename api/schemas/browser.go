package schemas

import (
	"context"
	"time"
)

// -- Browser Driver Schemas --

// Element is a resolved page element. Selector is the candidate that actually
// matched, so later operations against the same element reuse it.
type Element struct {
	Selector string        `json:"selector"`
	Box      CaptureRegion `json:"box"`
	TagName  string        `json:"tag_name,omitempty"`
}

// PathStep is one step of a planned cursor path: where the cursor should be
// and how long to pause before the next step.
type PathStep struct {
	Point ViewportPoint `json:"point"`
	Pause time.Duration `json:"pause"`
}

// BrowserDriver is the narrow surface the resolution engine borrows from the
// browser-driving layer. The engine never assumes a selector syntax; lookup
// methods take a priority-ordered list of candidates and use the first that
// resolves. The handle is owned by the caller; the engine never closes or
// reinitializes it.
type BrowserDriver interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// Find tries each selector in order and returns the first visible match,
	// or a nil element when none resolve.
	Find(ctx context.Context, selectors []string) (*Element, error)

	// ReadText returns the inner text of a previously resolved element.
	ReadText(ctx context.Context, el *Element) (string, error)

	// Screenshot captures the given page region, or the full page when region
	// is nil. The returned region describes what was actually captured.
	Screenshot(ctx context.Context, region *CaptureRegion) ([]byte, CaptureRegion, error)

	// DispatchClick issues a full press/hold/release cycle at the point.
	DispatchClick(ctx context.Context, pt ViewportPoint) error

	// MoveCursor replays a planned cursor path, honoring per-step pauses.
	MoveCursor(ctx context.Context, path []PathStep) error

	// SetValue writes value into the first input matched by the selector list.
	SetValue(ctx context.Context, selectors []string, value string) error

	// AcceptAlert consumes the oldest pending javascript dialog, returning its
	// message text. ok is false when no dialog was pending.
	AcceptAlert(ctx context.Context) (text string, ok bool, err error)

	// Metrics reports the current scroll offsets and device pixel ratio.
	Metrics(ctx context.Context) (ViewportMetrics, error)

	// CurrentURL returns the top frame's current location.
	CurrentURL(ctx context.Context) (string, error)
}
