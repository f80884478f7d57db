// internal/journal/journal.go

// Package journal persists finished resolution runs to Postgres. It is an
// optional diagnostics channel: when no journal URL is configured the engine
// carries a nil Recorder and every call degrades to a no-op.
package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlEnsureAttempts = `
        CREATE TABLE IF NOT EXISTS attempts (
            id UUID PRIMARY KEY,
            outcome TEXT NOT NULL,
            attempts_used INT NOT NULL,
            rule_fired TEXT NOT NULL DEFAULT '',
            target_number TEXT NOT NULL DEFAULT '',
            candidate_size INT NOT NULL DEFAULT 0,
            verified_count INT NOT NULL DEFAULT 0,
            last_failure TEXT NOT NULL DEFAULT '',
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL
        );`

	sqlEnsureTransitions = `
        CREATE TABLE IF NOT EXISTS attempt_transitions (
            attempt_id UUID NOT NULL REFERENCES attempts (id) ON DELETE CASCADE,
            seq INT NOT NULL,
            attempt INT NOT NULL,
            from_state TEXT NOT NULL,
            to_state TEXT NOT NULL,
            detail TEXT NOT NULL DEFAULT '',
            at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (attempt_id, seq)
        );`

	sqlInsertAttempt = `
        INSERT INTO attempts (id, outcome, attempts_used, rule_fired, target_number, candidate_size, verified_count, last_failure, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	sqlRecentAttempts = `
        SELECT id, outcome, attempts_used, rule_fired, target_number, candidate_size, verified_count, last_failure, started_at, finished_at
        FROM attempts
        ORDER BY finished_at DESC
        LIMIT $1;`
)

// Recorder provides the PostgreSQL-backed attempt journal.
type Recorder struct {
	pool DBPool
	log  *zap.Logger
}

// New verifies the connection and ensures the journal schema exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	r := &Recorder{
		pool: pool,
		log:  logger.Named("journal"),
	}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) ensureSchema(ctx context.Context) error {
	for _, stmt := range []string{sqlEnsureAttempts, sqlEnsureTransitions} {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure journal schema: %w", err)
		}
	}
	return nil
}

// Record persists one finished resolution run and its transition trace in a
// single transaction. Calls on a nil Recorder are no-ops so the engine never
// branches on whether journaling is enabled.
func (r *Recorder) Record(ctx context.Context, report *schemas.AttemptReport) error {
	if r == nil || report == nil {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			r.log.Error("Failed to rollback journal transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlInsertAttempt,
		report.ID,
		string(report.Outcome),
		report.AttemptsUsed,
		report.RuleFired,
		report.TargetNumber,
		report.CandidateSize,
		report.VerifiedCount,
		report.LastFailure,
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert attempt row: %w", err)
	}

	if err := r.copyTransitions(ctx, tx, report); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit journal transaction: %w", err)
	}
	return nil
}

func (r *Recorder) copyTransitions(ctx context.Context, tx pgx.Tx, report *schemas.AttemptReport) error {
	if len(report.Transitions) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(report.Transitions))
	for i, tr := range report.Transitions {
		rows[i] = []interface{}{
			report.ID, i, tr.Attempt,
			string(tr.From), string(tr.To),
			tr.Detail, tr.At.UTC(),
		}
	}

	copied, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_transitions"},
		[]string{"attempt_id", "seq", "attempt", "from_state", "to_state", "detail", "at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy transition trace: %w", err)
	}
	if int(copied) != len(rows) {
		return fmt.Errorf("mismatch in copied transition count: expected %d, got %d", len(rows), copied)
	}
	return nil
}

// Recent returns summaries of the latest runs, newest first. Transition
// traces are not loaded. Reading from a disabled journal is a caller error,
// unlike recording to one.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]schemas.AttemptReport, error) {
	if r == nil {
		return nil, errors.New("journal is not configured")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, sqlRecentAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent attempts: %w", err)
	}
	defer rows.Close()

	var reports []schemas.AttemptReport
	for rows.Next() {
		var rep schemas.AttemptReport
		var outcome string

		if err := rows.Scan(
			&rep.ID, &outcome, &rep.AttemptsUsed,
			&rep.RuleFired, &rep.TargetNumber,
			&rep.CandidateSize, &rep.VerifiedCount, &rep.LastFailure,
			&rep.StartedAt, &rep.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}

		rep.Outcome = schemas.Outcome(outcome)
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return reports, nil
}
