// Package browser drives a Chrome instance over the DevTools protocol and
// implements the schemas.BrowserDriver surface the resolution engine borrows.
// One Driver owns one browser process and one tab; the caller owns the handle
// and must Close it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
	"github.com/krylovex/gridpick-cli/internal/config"
)

const (
	// opTimeout bounds short page operations (lookups, metrics, script
	// evaluation) so a wedged renderer cannot stall an attempt.
	opTimeout = 10 * time.Second

	// closeTimeout bounds the graceful browser shutdown before the process
	// is abandoned to context cancellation.
	closeTimeout = 10 * time.Second
)

// Driver is the chromedp-backed browser driver.
type Driver struct {
	cfg    *config.Config
	logger *zap.Logger

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	rngMu sync.Mutex
	rng   *rand.Rand

	// holdSampler, when set, replaces the uniform config-range click hold
	// with an external source. See SetHoldSampler.
	holdSampler func() time.Duration

	dialogMu sync.Mutex
	dialogs  []string

	closeOnce sync.Once
}

var _ schemas.BrowserDriver = (*Driver)(nil)

// New launches a browser process and binds a driver to a fresh tab. A zero
// humanoid seed derives one from the wall clock; tests pin it for
// reproducible click-hold sampling.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Driver, error) {
	if cfg == nil {
		return nil, errors.New("browser: config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	seed := cfg.Humanoid.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg.Browser)...)

	var ctxOpts []chromedp.ContextOption
	if cfg.Browser.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(logger.Sugar().Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	d := &Driver{
		cfg:           cfg,
		logger:        logger.Named("browser"),
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		rng:           rand.New(rand.NewSource(seed)),
	}

	// The dialog listener must be attached before the first Run so an alert
	// fired during startup is not lost.
	d.watchDialogs()

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	d.logger.Info("Browser launched.",
		zap.Bool("headless", cfg.Browser.Headless),
		zap.Int("viewport_width", cfg.Browser.ViewportWidth),
		zap.Int("viewport_height", cfg.Browser.ViewportHeight),
	)
	return d, nil
}

// Close shuts the browser down gracefully, falling back to hard cancellation
// when the process does not exit in time. Safe to call more than once.
func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.logger.Debug("Shutting down browser.")

		waitCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(d.browserCtx) }()

		select {
		case err = <-done:
		case <-waitCtx.Done():
			err = fmt.Errorf("browser shutdown timed out after %s", closeTimeout)
		}

		d.browserCancel()
		d.allocCancel()
	})
	return err
}

// run executes chromedp actions so they respect both the browser lifetime and
// the caller's deadline.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(d.browserCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// combineContext derives a context from primary, which carries the CDP target
// values, that is additionally canceled when secondary ends.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// sleepCtx waits for d, aborting early if the context ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
