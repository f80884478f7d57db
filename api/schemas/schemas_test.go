package schemas_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

// TestConstants verifies that wire-visible constants hold their expected
// string values, guarding against accidental renames.
func TestConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		constant interface{}
		expected string
	}{
		{"StateDetecting", schemas.StateDetecting, "DETECTING"},
		{"StateCapturing", schemas.StateCapturing, "CAPTURING"},
		{"StateParsing", schemas.StateParsing, "PARSING"},
		{"StateSolving", schemas.StateSolving, "SOLVING"},
		{"StateVerifying", schemas.StateVerifying, "VERIFYING"},
		{"StateClicking", schemas.StateClicking, "CLICKING"},
		{"StateSubmitting", schemas.StateSubmitting, "SUBMITTING"},
		{"StateEvaluating", schemas.StateEvaluating, "EVALUATING"},
		{"StateSucceeded", schemas.StateSucceeded, "SUCCEEDED"},
		{"StateFailed", schemas.StateFailed, "FAILED"},

		{"OutcomeSolved", schemas.OutcomeSolved, "solved"},
		{"OutcomeNoChallenge", schemas.OutcomeNoChallenge, "no-challenge"},
		{"OutcomeExhausted", schemas.OutcomeExhausted, "exhausted"},

		{"ProvenanceOracle", schemas.ProvenanceOracle, "oracle-proposed"},
		{"ProvenanceVerified", schemas.ProvenanceVerified, "locally-verified"},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var actual string
			if stringer, ok := tt.constant.(fmt.Stringer); ok {
				actual = stringer.String()
			} else {
				actual = fmt.Sprintf("%v", tt.constant)
			}
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestAttemptStateTerminal(t *testing.T) {
	t.Parallel()

	terminal := []schemas.AttemptState{schemas.StateSucceeded, schemas.StateFailed}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "state %s should be terminal", s)
	}

	active := []schemas.AttemptState{
		schemas.StateDetecting, schemas.StateCapturing, schemas.StateParsing,
		schemas.StateSolving, schemas.StateVerifying, schemas.StateClicking,
		schemas.StateSubmitting, schemas.StateEvaluating,
	}
	for _, s := range active {
		assert.False(t, s.Terminal(), "state %s should not be terminal", s)
	}
}

func TestCaptureRegionPad(t *testing.T) {
	t.Parallel()

	t.Run("grows symmetrically", func(t *testing.T) {
		t.Parallel()
		r := schemas.CaptureRegion{OffsetX: 100, OffsetY: 200, Width: 300, Height: 150}
		padded := r.Pad(10)
		assert.Equal(t, 90.0, padded.OffsetX)
		assert.Equal(t, 190.0, padded.OffsetY)
		assert.Equal(t, 320.0, padded.Width)
		assert.Equal(t, 170.0, padded.Height)
	})

	t.Run("clamps at page origin", func(t *testing.T) {
		t.Parallel()
		r := schemas.CaptureRegion{OffsetX: 4, OffsetY: 0, Width: 100, Height: 100}
		padded := r.Pad(10)
		assert.Equal(t, 0.0, padded.OffsetX)
		assert.Equal(t, 0.0, padded.OffsetY)
		// Width loses the 6px that would have gone past the left edge.
		assert.Equal(t, 114.0, padded.Width)
		assert.Equal(t, 110.0, padded.Height)
	})
}

func TestSolutionSetPoints(t *testing.T) {
	t.Parallel()

	set := schemas.SolutionSet{
		{Point: schemas.ImagePoint{X: 50, Y: 50}, Provenance: schemas.ProvenanceOracle},
		{Point: schemas.ImagePoint{X: 120, Y: 50}, Provenance: schemas.ProvenanceOracle},
		{Point: schemas.ImagePoint{X: 190, Y: 120}, Provenance: schemas.ProvenanceOracle},
	}

	pts := set.Points()
	require.Len(t, pts, 3)
	assert.Equal(t, schemas.ImagePoint{X: 50, Y: 50}, pts[0])
	assert.Equal(t, schemas.ImagePoint{X: 120, Y: 50}, pts[1])
	assert.Equal(t, schemas.ImagePoint{X: 190, Y: 120}, pts[2])
}

func TestAttemptReportTrace(t *testing.T) {
	t.Parallel()

	report := schemas.NewAttemptReport()
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", report.ID.String())
	assert.False(t, report.Solved())

	report.RecordTransition(1, schemas.StateDetecting, schemas.StateCapturing, "")
	report.RecordTransition(1, schemas.StateCapturing, schemas.StateParsing, "region capture")
	require.Len(t, report.Transitions, 2)
	assert.Equal(t, schemas.StateDetecting, report.Transitions[0].From)
	assert.Equal(t, schemas.StateParsing, report.Transitions[1].To)
	assert.Equal(t, "region capture", report.Transitions[1].Detail)

	report.Outcome = schemas.OutcomeSolved
	assert.True(t, report.Solved())
}
