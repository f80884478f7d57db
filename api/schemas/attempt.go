package schemas

import (
	"time"

	"github.com/google/uuid"
)

// -- Attempt Lifecycle Schemas --

// AttemptState identifies where in the detect-capture-solve-verify-click cycle
// an attempt currently is. One AttemptState exists per challenge attempt; it is
// destroyed and recreated on retry.
type AttemptState string

const (
	StateDetecting  AttemptState = "DETECTING"
	StateCapturing  AttemptState = "CAPTURING"
	StateParsing    AttemptState = "PARSING"
	StateSolving    AttemptState = "SOLVING"
	StateVerifying  AttemptState = "VERIFYING"
	StateClicking   AttemptState = "CLICKING"
	StateSubmitting AttemptState = "SUBMITTING"
	StateEvaluating AttemptState = "EVALUATING"
	StateSucceeded  AttemptState = "SUCCEEDED"
	StateFailed     AttemptState = "FAILED"
)

// Terminal reports whether the state ends an attempt.
func (s AttemptState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Outcome is the single result the caller receives for a resolution run.
type Outcome string

const (
	// OutcomeSolved means a submission went through with no rejection signal.
	OutcomeSolved Outcome = "solved"
	// OutcomeNoChallenge means no challenge signature was found on the page.
	// This is a non-match, not a failure.
	OutcomeNoChallenge Outcome = "no-challenge"
	// OutcomeExhausted means the retry budget ran out, or a non-retryable
	// failure (bad credentials, empty balance) ended the run early.
	OutcomeExhausted Outcome = "exhausted"
)

// StateTransition is one recorded edge of the attempt state machine.
type StateTransition struct {
	Attempt int          `json:"attempt"`
	From    AttemptState `json:"from"`
	To      AttemptState `json:"to"`
	At      time.Time    `json:"at"`
	Detail  string       `json:"detail,omitempty"`
}

// AttemptReport is the diagnostics bundle accumulated across a resolution run
// and returned to the caller alongside the outcome. No other state leaks
// across attempts.
type AttemptReport struct {
	ID            uuid.UUID         `json:"id"`
	Outcome       Outcome           `json:"outcome"`
	AttemptsUsed  int               `json:"attempts_used"`
	RuleFired     string            `json:"rule_fired,omitempty"`
	TargetNumber  string            `json:"target_number,omitempty"`
	CandidateSize int               `json:"candidate_size"`
	VerifiedCount int               `json:"verified_count"`
	LastFailure   string            `json:"last_failure,omitempty"`
	Transitions   []StateTransition `json:"transitions,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
}

// NewAttemptReport seeds a report for a fresh resolution run.
func NewAttemptReport() *AttemptReport {
	return &AttemptReport{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
	}
}

// RecordTransition appends one state machine edge to the report trace.
func (r *AttemptReport) RecordTransition(attempt int, from, to AttemptState, detail string) {
	r.Transitions = append(r.Transitions, StateTransition{
		Attempt: attempt,
		From:    from,
		To:      to,
		At:      time.Now().UTC(),
		Detail:  detail,
	})
}

// Solved is a convenience accessor for the caller's boolean view of the run.
func (r *AttemptReport) Solved() bool {
	return r.Outcome == OutcomeSolved
}
