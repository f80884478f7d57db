// internal/captcha/engine.go
package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
	"github.com/krylovex/gridpick-cli/internal/artifacts"
	"github.com/krylovex/gridpick-cli/internal/config"
	"github.com/krylovex/gridpick-cli/internal/journal"
	"github.com/krylovex/gridpick-cli/internal/oracle"
)

// ErrNoChallenge signals that no challenge signature was found on the page.
// It ends a run as OutcomeNoChallenge, which is a non-match, not a failure.
var ErrNoChallenge = errors.New("captcha: no challenge present")

// Solver is the remote coordinate oracle surface the engine consumes.
type Solver interface {
	Solve(ctx context.Context, img schemas.ChallengeImage, instruction string) (schemas.SolutionSet, error)
}

// attemptFailure is one resolved attempt failure feeding the retry loop.
type attemptFailure struct {
	detail    string
	retryable bool
}

// Engine drives the resolution state machine over a borrowed browser
// session: detect the challenge, capture it, parse the target, solve
// remotely, verify locally, click, submit, evaluate. Attempts repeat on
// retryable failure until the retry budget runs out. The engine never
// closes or reinitializes the driver it is handed.
type Engine struct {
	cfg       *config.Config
	driver    schemas.BrowserDriver
	parser    *Parser
	solver    Solver
	verifier  *Verifier
	sequencer *Sequencer
	sink      *artifacts.Sink
	journal   *journal.Recorder
	logger    *zap.Logger
}

// NewEngine wires the engine with fully constructed components. The sink and
// recorder may be nil; everything else is required.
func NewEngine(
	cfg *config.Config,
	driver schemas.BrowserDriver,
	solver Solver,
	verifier *Verifier,
	sequencer *Sequencer,
	sink *artifacts.Sink,
	recorder *journal.Recorder,
	logger *zap.Logger,
) (*Engine, error) {
	if cfg == nil || driver == nil || solver == nil || verifier == nil || sequencer == nil {
		return nil, fmt.Errorf("cannot initialize engine with nil dependencies")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		driver:    driver,
		parser:    NewParser(cfg.Solver.DefaultTarget, logger),
		solver:    solver,
		verifier:  verifier,
		sequencer: sequencer,
		sink:      sink,
		journal:   recorder,
		logger:    logger.Named("engine"),
	}, nil
}

// Resolve runs the bounded-retry resolution loop against the page the driver
// currently shows. The returned report always describes the run; the error
// is non-nil only for context cancellation or an unusable driver. Whether
// the challenge was solved or the budget ran out is carried on the report.
func (e *Engine) Resolve(ctx context.Context) (*schemas.AttemptReport, error) {
	report := schemas.NewAttemptReport()
	defer func() {
		report.FinishedAt = time.Now().UTC()

		// Journal even when the caller's context is already gone.
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.journal.Record(jctx, report); err != nil {
			e.logger.Warn("Could not journal attempt report", zap.Error(err))
		}
	}()

	budget := e.cfg.Solver.RetryBudget
	state := schemas.StateDetecting
	attempt := 0

	for {
		attempt++
		report.AttemptsUsed = attempt

		fail, err := e.runAttempt(ctx, attempt, report, &state)
		if err != nil {
			if errors.Is(err, ErrNoChallenge) {
				e.logger.Info("No challenge signature on page",
					zap.String("attempt_id", report.ID.String()),
					zap.Int("attempt", attempt),
				)
				report.Outcome = schemas.OutcomeNoChallenge
				return report, nil
			}
			report.Outcome = schemas.OutcomeExhausted
			report.LastFailure = err.Error()
			return report, err
		}
		if fail == nil {
			report.Outcome = schemas.OutcomeSolved
			e.logger.Info("Challenge solved",
				zap.String("attempt_id", report.ID.String()),
				zap.Int("attempts_used", attempt),
			)
			return report, nil
		}

		// One budget decrement per resolved failure, no exceptions.
		budget--
		report.LastFailure = fail.detail

		if !fail.retryable || budget <= 0 {
			e.logger.Warn("Resolution exhausted",
				zap.String("attempt_id", report.ID.String()),
				zap.Int("attempts_used", attempt),
				zap.Bool("retryable", fail.retryable),
				zap.Int("budget_remaining", budget),
				zap.String("last_failure", fail.detail),
			)
			report.Outcome = schemas.OutcomeExhausted
			return report, nil
		}

		// Sites wipe the credential field when they reject a submission, so
		// restore it before the page is challenged again.
		e.reapplyCredential(ctx)
		e.advance(report, attempt, &state, schemas.StateDetecting,
			fmt.Sprintf("retrying, budget %d remaining", budget))
	}
}

// runAttempt walks one attempt through the state machine. It returns a
// non-nil attemptFailure for a resolved FAILED state, (nil, nil) on
// SUCCEEDED, ErrNoChallenge when detection finds nothing, and a bare error
// only when the run cannot continue at all.
func (e *Engine) runAttempt(ctx context.Context, attempt int, report *schemas.AttemptReport, state *schemas.AttemptState) (*attemptFailure, error) {
	actx := ctx
	if d := e.cfg.Solver.AttemptTimeout; d > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	// -- DETECTING --
	instrEl, err := e.driver.Find(actx, e.cfg.Solver.Selectors.Instruction)
	if err != nil {
		return e.resolveStageErr(ctx, actx, report, attempt, state, "detecting", err)
	}
	gridEl, err := e.driver.Find(actx, e.cfg.Solver.Selectors.Grid)
	if err != nil {
		return e.resolveStageErr(ctx, actx, report, attempt, state, "detecting", err)
	}
	if instrEl == nil || gridEl == nil {
		return nil, ErrNoChallenge
	}

	// -- CAPTURING --
	e.advance(report, attempt, state, schemas.StateCapturing, "challenge signature found",
		zap.String("instruction_selector", instrEl.Selector),
		zap.String("grid_selector", gridEl.Selector),
	)
	img, err := e.capture(actx, attempt, gridEl)
	if err != nil {
		return e.resolveStageErr(ctx, actx, report, attempt, state, "capturing", err)
	}

	// -- PARSING --
	e.advance(report, attempt, state, schemas.StateParsing, "",
		zap.Int("image_bytes", len(img.PNG)),
		zap.Bool("full_page", img.Region.FullPage),
	)
	text, err := e.driver.ReadText(actx, instrEl)
	if err != nil {
		return e.resolveStageErr(ctx, actx, report, attempt, state, "parsing", err)
	}
	target, rule := e.parser.Extract(text)
	report.TargetNumber = target
	report.RuleFired = string(rule)

	// -- SOLVING --
	e.advance(report, attempt, state, schemas.StateSolving, "",
		zap.String("target", target),
		zap.String("rule", string(rule)),
	)
	instruction := fmt.Sprintf(e.cfg.Oracle.InstructionTemplate, target)
	set, err := e.solver.Solve(actx, img, instruction)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return e.failAttempt(report, attempt, state, &attemptFailure{
				detail:    fmt.Sprintf("solving: attempt timed out after %s", e.cfg.Solver.AttemptTimeout),
				retryable: true,
			})
		}
		// Everything the oracle surfaces is an attempt failure, never a run
		// error; only invalid credentials and a drained balance refuse retry.
		fail := &attemptFailure{detail: err.Error(), retryable: true}
		var se *oracle.SolveError
		if errors.As(err, &se) {
			fail.retryable = se.Retryable()
			return e.failAttempt(report, attempt, state, fail,
				zap.String("oracle_reason", string(se.Reason)))
		}
		return e.failAttempt(report, attempt, state, fail)
	}
	report.CandidateSize = len(set)
	if len(set) == 0 {
		return e.failAttempt(report, attempt, state, &attemptFailure{
			detail:    "oracle returned no coordinates",
			retryable: true,
		})
	}

	// -- VERIFYING --
	e.advance(report, attempt, state, schemas.StateVerifying, "",
		zap.Int("candidates", len(set)),
	)
	verified := e.verifier.Verify(actx, set, img, target)
	report.VerifiedCount = len(verified)
	if actx.Err() != nil {
		return e.resolveStageErr(ctx, actx, report, attempt, state, "verifying", actx.Err())
	}
	if len(verified) == 0 {
		// The oracle answered but nothing on screen backs it up. Distinct
		// from a solve failure; a fresh submission may come back clean.
		return e.failAttempt(report, attempt, state, &attemptFailure{
			detail:    fmt.Sprintf("verification mismatch: no candidate shows %q", target),
			retryable: true,
		})
	}

	// -- CLICKING --
	e.advance(report, attempt, state, schemas.StateClicking, "",
		zap.Int("verified", len(verified)),
	)
	points := make([]schemas.ViewportPoint, len(verified))
	for i, vc := range verified {
		points[i] = ToViewport(vc.Point, img.Region, img.Metrics)
	}
	if err := e.sequencer.Execute(actx, points); err != nil {
		return e.resolveStageErr(ctx, actx, report, attempt, state, "clicking", err)
	}

	// -- SUBMITTING --
	e.advance(report, attempt, state, schemas.StateSubmitting, "")
	if e.cfg.Solver.SubmitEnabled {
		if err := e.sequencer.Submit(actx); err != nil {
			return e.resolveStageErr(ctx, actx, report, attempt, state, "submitting", err)
		}
	}

	// -- EVALUATING --
	e.advance(report, attempt, state, schemas.StateEvaluating, "",
		zap.Duration("settle_delay", e.cfg.Solver.SettleDelay),
	)
	if err := sleepCtx(actx, e.cfg.Solver.SettleDelay); err != nil {
		return e.resolveStageErr(ctx, actx, report, attempt, state, "evaluating", err)
	}
	if rejected, detail := e.checkRejection(actx); rejected {
		return e.failAttempt(report, attempt, state, &attemptFailure{
			detail:    detail,
			retryable: true,
		})
	}

	e.advance(report, attempt, state, schemas.StateSucceeded, "no rejection signal")
	return nil, nil
}

// capture screenshots the padded grid region, falling back to a full-page
// capture when the region grab fails. Only a failed fallback is an error.
func (e *Engine) capture(ctx context.Context, attempt int, gridEl *schemas.Element) (schemas.ChallengeImage, error) {
	region := gridEl.Box.Pad(e.cfg.Solver.CapturePadding)

	png, got, err := e.driver.Screenshot(ctx, &region)
	if err != nil {
		e.logger.Warn("Region capture failed, falling back to full page",
			zap.String("selector", gridEl.Selector),
			zap.Error(err),
		)
		png, got, err = e.driver.Screenshot(ctx, nil)
		if err != nil {
			return schemas.ChallengeImage{}, err
		}
	}

	metrics, err := e.driver.Metrics(ctx)
	if err != nil {
		return schemas.ChallengeImage{}, err
	}

	e.sink.SaveChallenge(attempt, png)
	return schemas.ChallengeImage{
		PNG:        png,
		Region:     got,
		Metrics:    metrics,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// checkRejection looks for the three rejection signals in order: a pending
// javascript dialog carrying a rejection marker, a marker in the current
// URL, and a residual challenge signature in the DOM. Signal checks never
// abort the evaluation; a probe failure just skips that signal.
func (e *Engine) checkRejection(ctx context.Context) (bool, string) {
	if text, ok, err := e.driver.AcceptAlert(ctx); err != nil {
		e.logger.Warn("Could not check pending dialogs", zap.Error(err))
	} else if ok {
		if marker, hit := matchAny(text, e.cfg.Solver.RejectionAlertMarkers); hit {
			return true, fmt.Sprintf("rejection alert (%s): %q", marker, text)
		}
		e.logger.Debug("Consumed unrelated dialog", zap.String("text", text))
	}

	if rawURL, err := e.driver.CurrentURL(ctx); err != nil {
		e.logger.Warn("Could not read current URL", zap.Error(err))
	} else if marker, hit := matchAny(rawURL, e.cfg.Solver.RejectionURLMarkers); hit {
		return true, fmt.Sprintf("rejection marker %q in URL %s", marker, rawURL)
	}

	instrEl, ierr := e.driver.Find(ctx, e.cfg.Solver.Selectors.Instruction)
	gridEl, gerr := e.driver.Find(ctx, e.cfg.Solver.Selectors.Grid)
	if ierr == nil && gerr == nil && instrEl != nil && gridEl != nil {
		return true, "challenge still present after submission"
	}
	return false, ""
}

// reapplyCredential restores the configured password into its field before a
// retry. Best effort: a missing field or write failure only logs.
func (e *Engine) reapplyCredential(ctx context.Context) {
	password := e.cfg.Solver.Password
	if password == "" {
		return
	}

	sels := e.cfg.Solver.Selectors.Password
	el, err := e.driver.Find(ctx, sels)
	if err != nil {
		e.logger.Warn("Could not look up password field", zap.Error(err))
		return
	}
	if el == nil {
		return
	}
	if err := e.driver.SetValue(ctx, sels, password); err != nil {
		e.logger.Warn("Could not re-apply credential", zap.Error(err))
		return
	}
	e.logger.Debug("Re-applied credential before retry", zap.String("selector", el.Selector))
}

// failAttempt resolves the running attempt as FAILED.
func (e *Engine) failAttempt(report *schemas.AttemptReport, attempt int, state *schemas.AttemptState, fail *attemptFailure, fields ...zap.Field) (*attemptFailure, error) {
	fields = append(fields, zap.Bool("retryable", fail.retryable))
	e.advance(report, attempt, state, schemas.StateFailed, fail.detail, fields...)
	return fail, nil
}

// resolveStageErr decides what a stage error means for the run: parent
// cancellation and driver faults end it, an expired attempt timeout only
// fails the attempt.
func (e *Engine) resolveStageErr(parent, actx context.Context, report *schemas.AttemptReport, attempt int, state *schemas.AttemptState, stage string, err error) (*attemptFailure, error) {
	if parent.Err() != nil {
		return nil, parent.Err()
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) {
		return e.failAttempt(report, attempt, state, &attemptFailure{
			detail:    fmt.Sprintf("%s: attempt timed out after %s", stage, e.cfg.Solver.AttemptTimeout),
			retryable: true,
		})
	}
	return nil, fmt.Errorf("%s: %w", stage, err)
}

// advance records one state machine edge on the report and emits the
// matching structured log line.
func (e *Engine) advance(report *schemas.AttemptReport, attempt int, state *schemas.AttemptState, to schemas.AttemptState, detail string, fields ...zap.Field) {
	report.RecordTransition(attempt, *state, to, detail)

	fields = append(fields,
		zap.String("attempt_id", report.ID.String()),
		zap.Int("attempt", attempt),
		zap.String("from", string(*state)),
		zap.String("to", string(to)),
	)
	if detail != "" {
		fields = append(fields, zap.String("detail", detail))
	}
	e.logger.Info("Attempt state transition", fields...)

	*state = to
}

// matchAny reports the first marker contained in s, comparing
// case-insensitively.
func matchAny(s string, markers []string) (string, bool) {
	ls := strings.ToLower(s)
	for _, m := range markers {
		if m != "" && strings.Contains(ls, strings.ToLower(m)) {
			return m, true
		}
	}
	return "", false
}
