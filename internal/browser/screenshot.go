package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

const (
	captureTimeout   = 30 * time.Second
	captureTries     = 3
	captureRetryWait = 500 * time.Millisecond

	// Payloads under this size are almost always a blank frame captured
	// before the challenge finished rendering.
	minCaptureBytes = 1000
)

// Screenshot captures the given page region, or the full page when region is
// nil. Suspiciously small payloads are retried a few times; the last capture
// is returned regardless, because a genuinely tiny page is still a page.
func (d *Driver) Screenshot(ctx context.Context, region *schemas.CaptureRegion) ([]byte, schemas.CaptureRegion, error) {
	var lastErr error
	for try := 1; try <= captureTries; try++ {
		if try > 1 {
			if err := sleepCtx(ctx, captureRetryWait); err != nil {
				return nil, schemas.CaptureRegion{}, err
			}
		}

		buf, got, err := d.captureOnce(ctx, region)
		if err != nil {
			if ctx.Err() != nil {
				return nil, schemas.CaptureRegion{}, err
			}
			lastErr = err
			d.logger.Debug("Capture attempt failed.", zap.Int("try", try), zap.Error(err))
			continue
		}

		if len(buf) < minCaptureBytes {
			if try < captureTries {
				d.logger.Debug("Capture suspiciously small, retrying.",
					zap.Int("bytes", len(buf)), zap.Int("try", try))
				continue
			}
			d.logger.Warn("Capture still small after retries, using it anyway.",
				zap.Int("bytes", len(buf)))
		}
		return buf, got, nil
	}
	return nil, schemas.CaptureRegion{}, fmt.Errorf("capturing screenshot: %w", lastErr)
}

func (d *Driver) captureOnce(ctx context.Context, region *schemas.CaptureRegion) ([]byte, schemas.CaptureRegion, error) {
	opCtx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	if region == nil {
		return d.captureFullPage(opCtx)
	}
	buf, err := d.captureClip(opCtx, *region)
	return buf, *region, err
}

// captureClip rasters the requested region. Scale 1 keeps clip units in CSS
// pixels; the device pixel ratio reported by Metrics describes the raster
// density.
func (d *Driver) captureClip(ctx context.Context, r schemas.CaptureRegion) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithCaptureBeyondViewport(true).
			WithClip(&page.Viewport{
				X:      r.OffsetX,
				Y:      r.OffsetY,
				Width:  r.Width,
				Height: r.Height,
				Scale:  1,
			}).
			Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("clipped capture: %w", err)
	}
	return buf, nil
}

// captureFullPage rasters the whole document and reports the content extent
// actually covered.
func (d *Driver) captureFullPage(ctx context.Context) ([]byte, schemas.CaptureRegion, error) {
	var buf []byte
	got := schemas.CaptureRegion{FullPage: true}

	err := d.run(ctx,
		chromedp.FullScreenshot(&buf, 100),
		chromedp.ActionFunc(func(c context.Context) error {
			_, _, contentSize, _, _, cssContentSize, err := page.GetLayoutMetrics().Do(c)
			if err != nil {
				return err
			}
			if cssContentSize == nil {
				cssContentSize = contentSize
			}
			if cssContentSize != nil {
				got.Width = cssContentSize.Width
				got.Height = cssContentSize.Height
			}
			return nil
		}),
	)
	if err != nil {
		return nil, schemas.CaptureRegion{}, fmt.Errorf("full page capture: %w", err)
	}
	return buf, got, nil
}
