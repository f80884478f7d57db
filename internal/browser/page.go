package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

// metricsScript reads the live scroll offsets and device pixel ratio; the
// mapper divides raster coordinates by the ratio, so it must describe the
// same moment as the capture it is paired with.
const metricsScript = `({sx: window.scrollX, sy: window.scrollY, dpr: window.devicePixelRatio || 1})`

// Navigate loads the URL and waits for the page to settle. Readiness of the
// body is best-effort: some challenge pages never fire a clean load event,
// and the post-load wait covers late DOM mutations either way.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if timeout := d.cfg.Network.NavigationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := d.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := d.run(navCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		d.logger.Debug("Page readiness wait failed, continuing.", zap.Error(err))
	}
	if wait := d.cfg.Network.PostLoadWait; wait > 0 {
		if err := sleepCtx(navCtx, wait); err != nil {
			return err
		}
	}

	d.logger.Info("Navigation complete.", zap.String("url", url))
	return nil
}

// CurrentURL returns the top frame's current location.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var url string
	if err := d.run(opCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return url, nil
}

// Metrics reports the current scroll offsets and device pixel ratio.
func (d *Driver) Metrics(ctx context.Context) (schemas.ViewportMetrics, error) {
	var payload struct {
		SX  float64 `json:"sx"`
		SY  float64 `json:"sy"`
		DPR float64 `json:"dpr"`
	}
	if err := d.evaluate(ctx, metricsScript, &payload); err != nil {
		return schemas.ViewportMetrics{}, fmt.Errorf("reading viewport metrics: %w", err)
	}

	m := schemas.ViewportMetrics{ScrollX: payload.SX, ScrollY: payload.SY, Scale: payload.DPR}
	if m.Scale <= 0 {
		m.Scale = 1
	}
	return m, nil
}

// evaluate runs a script in the page and decodes its JSON result into out.
// Promises are awaited and exceptions stay silent; scripts are expected to
// catch their own failures and return null instead.
func (d *Driver) evaluate(ctx context.Context, script string, out interface{}) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return d.run(opCtx, chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
}
