package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

// DispatchClick issues a full press/hold/release cycle at the point. The hold
// is sampled from the configured range so consecutive clicks never share an
// identical down-up gap.
func (d *Driver) DispatchClick(ctx context.Context, pt schemas.ViewportPoint) error {
	press := input.DispatchMouseEvent(input.MousePressed, pt.X, pt.Y).
		WithButton(input.Left).
		WithClickCount(1).
		WithTimestamp(timeNowInputPtr())
	if err := d.run(ctx, press); err != nil {
		return fmt.Errorf("mousedown at (%.0f,%.0f): %w", pt.X, pt.Y, err)
	}

	if err := sleepCtx(ctx, d.holdDuration()); err != nil {
		return err
	}

	release := input.DispatchMouseEvent(input.MouseReleased, pt.X, pt.Y).
		WithButton(input.Left).
		WithClickCount(1).
		WithTimestamp(timeNowInputPtr())
	if err := d.run(ctx, release); err != nil {
		return fmt.Errorf("mouseup at (%.0f,%.0f): %w", pt.X, pt.Y, err)
	}
	return nil
}

// MoveCursor replays a planned cursor path, honoring per-step pauses. A
// single dropped move event does not invalidate the gesture; the click that
// follows surfaces a dead target soon enough.
func (d *Driver) MoveCursor(ctx context.Context, path []schemas.PathStep) error {
	for _, step := range path {
		if err := ctx.Err(); err != nil {
			return err
		}

		move := input.DispatchMouseEvent(input.MouseMoved, step.Point.X, step.Point.Y).
			WithButton(input.None).
			WithTimestamp(timeNowInputPtr())
		if err := d.run(ctx, move); err != nil {
			d.logger.Debug("Mouse move event dropped.", zap.Error(err))
		}

		if err := sleepCtx(ctx, step.Pause); err != nil {
			return err
		}
	}
	return nil
}

// SetHoldSampler points click-hold sampling at an external source, typically
// the humanoid persona, so holds and cursor paths share one motor signature.
// Must be called before the first click; unset, holds are drawn uniformly
// from the configured range.
func (d *Driver) SetHoldSampler(sampler func() time.Duration) {
	d.holdSampler = sampler
}

// holdDuration samples how long a click stays pressed.
func (d *Driver) holdDuration() time.Duration {
	if d.holdSampler != nil {
		return d.holdSampler()
	}

	min := time.Duration(d.cfg.Humanoid.ClickHoldMinMs) * time.Millisecond
	max := time.Duration(d.cfg.Humanoid.ClickHoldMaxMs) * time.Millisecond
	if min < 0 {
		min = 0
	}
	if max <= 0 || max < min {
		return 0
	}
	if max == min {
		return min
	}

	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return min + time.Duration(d.rng.Int63n(int64(max-min)))
}

// timeNowInputPtr returns the current time in the pointer form WithTimestamp
// expects.
func timeNowInputPtr() *input.TimeSinceEpoch {
	t := input.TimeSinceEpoch(time.Now())
	return &t
}
