// internal/captcha/sequencer.go
package captcha

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
	"github.com/krylovex/gridpick-cli/internal/config"
	"github.com/krylovex/gridpick-cli/internal/humanoid"
)

// Distractor repulsion applied to planned paths. Falloff is sized to about
// one grid cell spacing so only nearby cells bend the approach.
const (
	distractorStrength = -1.0
	distractorFalloff  = 60.0
)

// Sequencer actuates verified coordinates through the browser driver. It
// keeps clicks in input order, paces them with sampled delays, and when
// humanization is on it routes the cursor along planned paths so the motion
// stream looks like a person working through the grid.
type Sequencer struct {
	driver  schemas.BrowserDriver
	planner *humanoid.Planner
	logger  *zap.Logger

	humanize   bool
	delayMin   time.Duration
	delayMax   time.Duration
	submitSels []string

	// cursor is the last position the virtual pointer was driven to; paths
	// start here so consecutive movements chain naturally.
	cursor schemas.ViewportPoint
}

// NewSequencer builds a Sequencer. A nil planner gets replaced with a fresh
// one so delay sampling always works; the humanoid.enabled flag only gates
// path replay.
func NewSequencer(cfg *config.Config, driver schemas.BrowserDriver, planner *humanoid.Planner, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if planner == nil {
		planner = humanoid.New(humanoid.DefaultConfig(), cfg.Humanoid.Seed, logger)
	}
	return &Sequencer{
		driver:     driver,
		planner:    planner,
		logger:     logger.Named("sequencer"),
		humanize:   cfg.Humanoid.Enabled,
		delayMin:   cfg.Solver.ClickDelayMin,
		delayMax:   cfg.Solver.ClickDelayMax,
		submitSels: cfg.Solver.Selectors.Submit,
		cursor: schemas.ViewportPoint{
			X: float64(cfg.Browser.ViewportWidth) / 2,
			Y: float64(cfg.Browser.ViewportHeight) / 2,
		},
	}
}

// Execute clicks every coordinate in input order. Between clicks it dwells
// for a delay sampled from the configured range; before each click it
// optionally replays a planned cursor path to the target.
func (s *Sequencer) Execute(ctx context.Context, coords []schemas.ViewportPoint) error {
	for i, pt := range coords {
		if i > 0 {
			if err := sleepCtx(ctx, s.planner.Delay(s.delayMin, s.delayMax)); err != nil {
				return err
			}
		}
		if err := s.clickAt(ctx, pt, coords[i+1:]); err != nil {
			return fmt.Errorf("click %d of %d at (%.0f,%.0f): %w", i+1, len(coords), pt.X, pt.Y, err)
		}
	}
	s.logger.Info("Click sequence complete", zap.Int("clicks", len(coords)))
	return nil
}

// Submit locates the submit control through its selector list and clicks
// it. Challenges that auto-submit have no such control; that is not an
// error.
func (s *Sequencer) Submit(ctx context.Context) error {
	el, err := s.driver.Find(ctx, s.submitSels)
	if err != nil {
		return fmt.Errorf("locating submit control: %w", err)
	}
	if el == nil {
		s.logger.Debug("No submit control present, assuming auto-submit")
		return nil
	}

	m, err := s.driver.Metrics(ctx)
	if err != nil {
		return fmt.Errorf("reading viewport metrics: %w", err)
	}
	center := schemas.ViewportPoint{
		X: el.Box.OffsetX + el.Box.Width/2 - m.ScrollX,
		Y: el.Box.OffsetY + el.Box.Height/2 - m.ScrollY,
	}

	s.logger.Debug("Clicking submit control",
		zap.String("selector", el.Selector),
		zap.Float64("x", center.X),
		zap.Float64("y", center.Y),
	)
	if err := s.clickAt(ctx, center, nil); err != nil {
		return fmt.Errorf("clicking submit control: %w", err)
	}
	return nil
}

// clickAt moves (optionally) and clicks, then remembers the cursor position.
// Coordinates still waiting for their click act as path distractors.
func (s *Sequencer) clickAt(ctx context.Context, pt schemas.ViewportPoint, distractors []schemas.ViewportPoint) error {
	if s.humanize {
		path := s.planner.Plan(s.cursor, pt, &humanoid.PlanOptions{Field: distractorField(distractors)})
		if err := s.driver.MoveCursor(ctx, path); err != nil {
			return fmt.Errorf("replay cursor path: %w", err)
		}
	}
	if err := s.driver.DispatchClick(ctx, pt); err != nil {
		return err
	}
	s.cursor = pt
	return nil
}

// distractorField builds a repulsor per pending coordinate so the cursor
// arcs around grid cells it is not clicking yet instead of cutting straight
// across them. An empty field stays nil, which Plan treats as force-free.
func distractorField(distractors []schemas.ViewportPoint) *humanoid.PotentialField {
	if len(distractors) == 0 {
		return nil
	}
	field := humanoid.NewPotentialField()
	for _, d := range distractors {
		field.AddSource(humanoid.Vector2D{X: d.X, Y: d.Y}, distractorStrength, distractorFalloff)
	}
	return field
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
