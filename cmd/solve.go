package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
	"github.com/krylovex/gridpick-cli/internal/artifacts"
	"github.com/krylovex/gridpick-cli/internal/browser"
	"github.com/krylovex/gridpick-cli/internal/captcha"
	"github.com/krylovex/gridpick-cli/internal/config"
	"github.com/krylovex/gridpick-cli/internal/humanoid"
	"github.com/krylovex/gridpick-cli/internal/journal"
	"github.com/krylovex/gridpick-cli/internal/network"
	"github.com/krylovex/gridpick-cli/internal/observability"
	"github.com/krylovex/gridpick-cli/internal/ocr"
	"github.com/krylovex/gridpick-cli/internal/ocr/gemini"
	"github.com/krylovex/gridpick-cli/internal/ocr/tesseract"
	"github.com/krylovex/gridpick-cli/internal/oracle"
)

// newSolveCmd creates and configures the `solve` command.
func newSolveCmd() *cobra.Command {
	solveCmd := &cobra.Command{
		Use:   "solve <url>",
		Short: "Opens the given page and resolves its number-grid captcha",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys. This is the idiomatic way to
			// make command-line flags override values from the config file
			// and environment variables.
			bindings := map[string]string{
				"solver.default_target":  "target",
				"solver.retry_budget":    "budget",
				"solver.attempt_timeout": "timeout",
				"solver.submit_enabled":  "submit",
				"browser.headless":       "headless",
				"artifacts.enabled":      "artifacts",
				"humanoid.seed":          "seed",
			}
			for key, name := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}
			// Bind the rest under their own names.
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config. Now that flags are bound in PreRunE,
			// viper applies the overrides with the right precedence.
			resolved, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to apply flag overrides: %w", err)
			}
			cfg = resolved

			pageURL := args[0]
			if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
				pageURL = "https://" + pageURL
			}

			logger.Info("Starting resolution run",
				zap.String("url", pageURL),
				zap.String("fallback_target", cfg.Solver.DefaultTarget),
				zap.Int("retry_budget", cfg.Solver.RetryBudget),
				zap.String("ocr_engine", cfg.OCR.Engine),
				zap.Bool("headless", cfg.Browser.Headless),
			)

			components, err := initializeSolveComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize solve components: %w", err)
			}
			defer components.Shutdown()

			if err := components.Driver.Navigate(ctx, pageURL); err != nil {
				return fmt.Errorf("failed to open %s: %w", pageURL, err)
			}

			report, err := components.Engine.Resolve(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Resolution aborted", zap.String("attempt_id", report.ID.String()))
					return fmt.Errorf("resolution aborted by user signal")
				}
				logger.Error("Resolution failed",
					zap.Error(err),
					zap.String("attempt_id", report.ID.String()),
				)
				return err
			}

			printReport(report)

			if report.Outcome == schemas.OutcomeExhausted {
				return fmt.Errorf("challenge not solved after %d attempts: %s", report.AttemptsUsed, report.LastFailure)
			}
			return nil
		},
	}

	// Override flags. Unset flags rank below config file and environment,
	// so zero defaults here never mask configured values.
	solveCmd.Flags().StringP("target", "t", "", "Fallback target number when instruction parsing fails. (Overrides config/env)")
	solveCmd.Flags().IntP("budget", "b", 0, "Retry budget for the resolution loop. (Overrides config/env)")
	solveCmd.Flags().Duration("timeout", 0, "Per-attempt timeout. (Overrides config/env)")
	solveCmd.Flags().Bool("submit", true, "Click the verify control after selecting tiles. (Overrides config/env)")
	solveCmd.Flags().Bool("headless", true, "Run the browser headless. Pass --headless=false to watch the run.")
	solveCmd.Flags().Bool("artifacts", false, "Save challenge captures and candidate crops for debugging.")
	solveCmd.Flags().Int64("seed", 0, "Seed for humanized cursor timing; 0 derives one from the clock.")

	return solveCmd
}

// solveComponents holds the initialized services for one resolution run.
type solveComponents struct {
	Oracle   *oracle.Client
	Driver   *browser.Driver
	Engine   *captcha.Engine
	Sink     *artifacts.Sink
	Recorder *journal.Recorder
	DBPool   *pgxpool.Pool
}

// Shutdown gracefully closes all components. The driver goes first so the
// sink and journal can still absorb whatever the run produced.
func (sc *solveComponents) Shutdown() {
	if sc.Driver != nil {
		if err := sc.Driver.Close(); err != nil {
			observability.GetLogger().Warn("Error during browser shutdown", zap.Error(err))
		}
	}
	if sc.Sink != nil {
		if err := sc.Sink.Close(); err != nil {
			observability.GetLogger().Warn("Error draining artifact sink", zap.Error(err))
		}
	}
	if sc.DBPool != nil {
		sc.DBPool.Close()
	}
}

// initializeSolveComponents handles dependency injection. On error it returns
// the partially-built components so the caller can shut down whatever
// already started.
func initializeSolveComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*solveComponents, error) {
	components := &solveComponents{}

	// 1. Oracle client and balance preflight. Runs before the browser
	// launches so credential and balance problems fail fast.
	oracleClient, err := oracle.NewClient(cfg.Oracle, network.NewAPIClient(cfg.Network.Timeout), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oracle client: %w", err)
	}
	components.Oracle = oracleClient

	if cfg.Oracle.CheckBalance {
		balance, err := oracleClient.Balance(ctx)
		if err != nil {
			return components, fmt.Errorf("oracle balance preflight failed: %w", err)
		}
		if balance <= 0 {
			return components, fmt.Errorf("oracle reports an exhausted balance ($%.3f)", balance)
		}
		logger.Info("Oracle balance verified", zap.Float64("usd", balance))
	}

	// 2. Local recognizer for the verification pass.
	recognizer, err := newRecognizer(cfg, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize recognizer: %w", err)
	}

	// 3. Artifact sink. A disabled config yields a nil sink, which every
	// consumer treats as a no-op.
	sink, err := artifacts.NewSink(cfg.Artifacts, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize artifact sink: %w", err)
	}
	components.Sink = sink

	// 4. Optional attempt journal. The pool lives here so Shutdown can
	// close it after the engine's final Record.
	if cfg.Journal.URL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Journal.URL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to journal database: %w", err)
		}
		components.DBPool = dbPool

		recorder, err := journal.New(ctx, dbPool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize attempt journal: %w", err)
		}
		components.Recorder = recorder
	}

	// 5. Browser driver.
	driver, err := browser.New(ctx, cfg, logger)
	if err != nil {
		return components, fmt.Errorf("failed to launch browser: %w", err)
	}
	components.Driver = driver

	// 6. Resolution engine and its collaborators.
	plannerCfg := humanoid.DefaultConfig()
	plannerCfg.ClickHoldMinMs = cfg.Humanoid.ClickHoldMinMs
	plannerCfg.ClickHoldMaxMs = cfg.Humanoid.ClickHoldMaxMs
	planner := humanoid.New(plannerCfg, cfg.Humanoid.Seed, logger)
	if cfg.Humanoid.Enabled {
		// Holds come from the same persona as the cursor paths.
		driver.SetHoldSampler(planner.HoldDuration)
	}
	sequencer := captcha.NewSequencer(cfg, driver, planner, logger)

	verifier := captcha.NewVerifier(cfg, recognizer, sink, logger)
	if cfg.OCR.Engine == "none" {
		// Without a recognizer every candidate would fail the substring
		// match; trust the oracle outright instead.
		verifier.Matcher = trustAll
	}

	engine, err := captcha.NewEngine(cfg, driver, oracleClient, verifier, sequencer, sink, components.Recorder, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize resolution engine: %w", err)
	}
	components.Engine = engine

	return components, nil
}

// newRecognizer selects the OCR backend used to cross-check oracle answers.
func newRecognizer(cfg *config.Config, logger *zap.Logger) (ocr.Engine, error) {
	switch cfg.OCR.Engine {
	case "tesseract":
		return tesseract.NewEngine(), nil
	case "gemini":
		return gemini.NewEngine(cfg.OCR.Gemini, logger)
	case "none":
		return ocr.Noop(), nil
	default:
		return nil, fmt.Errorf("unsupported ocr engine %q", cfg.OCR.Engine)
	}
}

// trustAll retains every oracle candidate. Wired in when recognition is
// disabled, so verification degrades to a bounds check.
func trustAll(string, string) bool { return true }

// printReport writes the run summary to stdout. The structured logs carry the
// same data; this block is for the operator's eyes.
func printReport(report *schemas.AttemptReport) {
	fmt.Printf("\nResolution complete. Outcome: %s\n", report.Outcome)
	fmt.Printf("  Attempt ID:    %s\n", report.ID)
	fmt.Printf("  Attempts used: %d\n", report.AttemptsUsed)
	if report.TargetNumber != "" {
		fmt.Printf("  Target number: %s (%s)\n", report.TargetNumber, report.RuleFired)
	}
	if report.CandidateSize > 0 {
		fmt.Printf("  Candidates:    %d returned, %d verified\n", report.CandidateSize, report.VerifiedCount)
	}
	if report.LastFailure != "" {
		fmt.Printf("  Last failure:  %s\n", report.LastFailure)
	}
	fmt.Printf("  Duration:      %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
}
