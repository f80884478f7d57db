package humanoid

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

func TestPlanner_Determinism(t *testing.T) {
	from := schemas.ViewportPoint{X: 100, Y: 100}
	to := schemas.ViewportPoint{X: 400, Y: 320}

	pathA := NewTestPlanner(42).Plan(from, to, nil)
	pathB := NewTestPlanner(42).Plan(from, to, nil)
	if diff := cmp.Diff(pathA, pathB); diff != "" {
		t.Fatalf("same seed must reproduce the same path (-a +b):\n%s", diff)
	}

	pathC := NewTestPlanner(43).Plan(from, to, nil)
	assert.NotEqual(t, pathA, pathC, "different seeds must diverge")
}

func TestPlanner_PathEndpoints(t *testing.T) {
	p := NewTestPlanner(7)
	from := schemas.ViewportPoint{X: 50, Y: 60}
	to := schemas.ViewportPoint{X: 500, Y: 400}

	path := p.Plan(from, to, nil)
	require.GreaterOrEqual(t, len(path), 2)

	// The first step starts at the origin, perturbed only by bounded noise.
	first := path[0]
	assert.InDelta(t, from.X, first.Point.X, 15.0)
	assert.InDelta(t, from.Y, first.Point.Y, 15.0)

	// The last step must land exactly on the target so the click that
	// follows hits the intended pixel.
	last := path[len(path)-1]
	assert.Equal(t, to.X, last.Point.X)
	assert.Equal(t, to.Y, last.Point.Y)
}

func TestPlanner_ShortMovement(t *testing.T) {
	p := NewTestPlanner(3)
	from := schemas.ViewportPoint{X: 200, Y: 200}
	to := schemas.ViewportPoint{X: 200.4, Y: 200.3}

	path := p.Plan(from, to, nil)
	require.Len(t, path, 1)
	assert.Equal(t, to, path[0].Point)
	assert.Greater(t, path[0].Pause, time.Duration(0))
}

func TestPlanner_PauseBounds(t *testing.T) {
	p := NewTestPlanner(11)
	from := schemas.ViewportPoint{X: 0, Y: 0}
	to := schemas.ViewportPoint{X: 600, Y: 450}

	path := p.Plan(from, to, nil)

	var total time.Duration
	for i, step := range path {
		assert.Greater(t, step.Pause, time.Duration(0), "step %d has a non-positive pause", i)
		total += step.Pause
	}

	// A cross-viewport move should replay in human time: more than a few
	// tens of milliseconds, well under ten seconds.
	assert.Greater(t, total, 50*time.Millisecond)
	assert.Less(t, total, 10*time.Second)
}

func TestPlanner_FieldBendsPath(t *testing.T) {
	from := schemas.ViewportPoint{X: 0, Y: 100}
	to := schemas.ViewportPoint{X: 300, Y: 100}

	straight := NewTestPlanner(5).Plan(from, to, nil)

	field := NewPotentialField()
	// Strong repulsor just above the midpoint pushes the path downward.
	field.AddSource(Vector2D{X: 150, Y: 90}, -500.0, 80.0)
	bent := NewTestPlanner(5).Plan(from, to, &PlanOptions{Field: field})

	assert.NotEqual(t, straight, bent)

	// Both variants still converge on the target.
	assert.Equal(t, to, straight[len(straight)-1].Point)
	assert.Equal(t, to, bent[len(bent)-1].Point)
}

func TestPlanner_TwoPhaseLandsExactly(t *testing.T) {
	p := NewTestPlanner(19)

	// Far beyond the micro correction threshold, so the plan decomposes
	// into approach plus correction.
	from := schemas.ViewportPoint{X: 10, Y: 10}
	to := schemas.ViewportPoint{X: 900, Y: 700}

	path := p.Plan(from, to, nil)
	require.NotEmpty(t, path)
	assert.Equal(t, to, path[len(path)-1].Point)

	// Two phases produce noticeably more steps than the minimum.
	assert.Greater(t, len(path), 10)
}

func TestPlanner_HoldDuration(t *testing.T) {
	p := NewTestPlanner(23)
	cfg := p.Persona()

	min := time.Duration(cfg.ClickHoldMinMs) * time.Millisecond
	max := time.Duration(cfg.ClickHoldMaxMs) * time.Millisecond

	for i := 0; i < 100; i++ {
		hold := p.HoldDuration()
		assert.GreaterOrEqual(t, hold, min)
		assert.LessOrEqual(t, hold, max)
	}
}

func TestPlanner_Delay(t *testing.T) {
	p := NewTestPlanner(29)

	t.Run("WithinBounds", func(t *testing.T) {
		min := 300 * time.Millisecond
		max := 3 * time.Second
		for i := 0; i < 100; i++ {
			d := p.Delay(min, max)
			assert.GreaterOrEqual(t, d, min)
			assert.LessOrEqual(t, d, max)
		}
	})

	t.Run("DegenerateRange", func(t *testing.T) {
		d := p.Delay(time.Second, time.Second)
		assert.Equal(t, time.Second, d)
	})
}
