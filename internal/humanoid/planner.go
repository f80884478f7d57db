// internal/humanoid/planner.go
package humanoid

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/api/schemas"
)

const (
	// Assumed target widths (W) in pixels for Fitts' law. The terminal
	// phase homes in on a tighter effective target.
	fittsMainWidth     = 30.0
	fittsTerminalWidth = 20.0

	// Upper bound on planned cursor speed in px/s. Durations are stretched
	// so no movement exceeds it.
	maxVelocity = 6000.0

	// Temporal frequency applied to the Perlin drift.
	perlinFrequency = 0.8

	// Path steps are emitted at roughly this rate.
	stepsPerSecond = 100.0
)

// PlanOptions tunes a single Plan call.
type PlanOptions struct {
	// Field bends the path around on-page distractors. Nil means an empty
	// field and a near-straight curve.
	Field *PotentialField
}

// Planner synthesizes cursor paths with human motor characteristics:
// Fitts' law timing, Bezier curvature, ease-in-out pacing, Perlin drift and
// Gaussian tremor. It owns a session persona sampled once at construction,
// so all paths of a session share one motor signature.
type Planner struct {
	mu     sync.Mutex
	cfg    Config
	rng    *rand.Rand
	pink   *PinkNoiseGenerator
	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
	logger *zap.Logger
}

// New creates a Planner seeded with `seed`. A zero seed derives one from the
// wall clock, which is the production mode; tests pass a fixed seed to make
// every sampled path reproducible.
func New(cfg Config, seed int64, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))
	cfg.FinalizeSessionPersona(rng)

	logger.Debug("Motor persona finalized",
		zap.Int64("seed", seed),
		zap.Float64("fitts_a", cfg.FittsA),
		zap.Float64("fitts_b", cfg.FittsB),
		zap.Float64("gaussian_strength", cfg.GaussianStrength),
		zap.Float64("perlin_amplitude", cfg.PerlinAmplitude),
	)

	return &Planner{
		cfg:    cfg,
		rng:    rng,
		pink:   NewPinkNoiseGenerator(rng, 0),
		noiseX: perlin.NewPerlin(2, 2, 3, seed),
		noiseY: perlin.NewPerlin(2, 2, 3, seed+1),
		logger: logger,
	}
}

// NewTestPlanner returns a deterministic planner whose persona is pinned at
// the population means.
func NewTestPlanner(seed int64) *Planner {
	cfg := DefaultConfig()
	cfg.FinalizeSessionPersona(nil)

	rng := rand.New(rand.NewSource(seed))
	return &Planner{
		cfg:    cfg,
		rng:    rng,
		pink:   NewPinkNoiseGenerator(rng, 0),
		noiseX: perlin.NewPerlin(2, 2, 3, seed),
		noiseY: perlin.NewPerlin(2, 2, 3, seed+1),
		logger: zap.NewNop(),
	}
}

// Persona returns the finalized per-session parameters.
func (p *Planner) Persona() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Plan synthesizes a cursor path from `from` to `to` in viewport
// coordinates. Each step's Pause is the dwell before the next step is
// dispatched. The final step lands exactly on `to` so a click dispatched at
// the path's end hits the intended pixel.
//
// Movements longer than the persona's micro correction threshold decompose
// into a ballistic approach that lands near the target followed by a slower
// corrective hop onto it.
func (p *Planner) Plan(from, to schemas.ViewportPoint, opts *PlanOptions) []schemas.PathStep {
	p.mu.Lock()
	defer p.mu.Unlock()

	var field *PotentialField
	if opts != nil {
		field = opts.Field
	}
	if field == nil {
		field = NewPotentialField()
	}

	start := Vector2D{X: from.X, Y: from.Y}
	end := Vector2D{X: to.X, Y: to.Y}
	dist := start.Dist(end)

	if dist < 1.0 {
		return []schemas.PathStep{{Point: to, Pause: p.microPause()}}
	}

	if dist > p.cfg.MicroCorrectionThreshold {
		// Ballistic moves overshoot or undershoot slightly; the scatter
		// radius scales with the persona's click noise.
		approach := end.Add(Vector2D{
			X: p.rng.NormFloat64() * p.cfg.ClickNoise * 2.0,
			Y: p.rng.NormFloat64() * p.cfg.ClickNoise * 2.0,
		})

		steps := p.planPhase(start, approach, field, p.mainDuration(dist))
		correction := p.planPhase(approach, end, field, p.terminalDuration(approach.Dist(end)))
		return append(steps, correction...)
	}

	return p.planPhase(start, end, field, p.mainDuration(dist))
}

// HoldDuration samples how long a click should be held between press and
// release, drawn from a Gaussian centered on the configured hold window.
func (p *Planner) HoldDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	min := float64(p.cfg.ClickHoldMinMs)
	max := float64(p.cfg.ClickHoldMaxMs)
	mean := (min + max) / 2.0
	std := (max - min) / 4.0

	ms := mean + p.rng.NormFloat64()*std
	if ms < min {
		ms = min
	}
	if ms > max {
		ms = max
	}
	return time.Duration(ms) * time.Millisecond
}

// Delay samples a dwell in [min, max], tilted by pink noise so consecutive
// dwells correlate the way human pacing does.
func (p *Planner) Delay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	span := float64(max - min)
	base := float64(min) + p.rng.Float64()*span
	base += p.pink.Next() * span * 0.1

	d := time.Duration(base)
	if d < min {
		d = min
	}
	if d > max {
		d = max
	}
	return d
}

// planPhase emits the steps of one movement phase. The ideal path is a cubic
// Bezier bent by the potential field; easing redistributes samples so event
// density rises near the endpoints; Perlin drift and Gaussian tremor perturb
// every sample, fading to zero at the end of the phase.
func (p *Planner) planPhase(start, end Vector2D, field *PotentialField, duration time.Duration) []schemas.PathStep {
	numSteps := int(duration.Seconds() * stepsPerSecond)
	if numSteps < 2 {
		numSteps = 2
	}

	ideal := p.idealPath(start, end, field, numSteps)
	steps := make([]schemas.PathStep, 0, numSteps)

	prevEased := 0.0
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		easedT := computeEaseInOutCubic(t)

		pathIndex := int(easedT * float64(numSteps-1))
		if pathIndex >= len(ideal) {
			pathIndex = len(ideal) - 1
		}
		pos := ideal[pathIndex]

		// Noise fades with progress so the phase converges on its target.
		fade := 1.0 - easedT

		elapsed := easedT * duration.Seconds()
		pos = pos.Add(Vector2D{
			X: p.noiseX.Noise1D(elapsed*perlinFrequency) * p.cfg.PerlinAmplitude * fade,
			Y: p.noiseY.Noise1D(elapsed*perlinFrequency) * p.cfg.PerlinAmplitude * fade,
		})

		tremor := p.cfg.GaussianStrength * (0.5 + p.rng.Float64())
		pos = pos.Add(Vector2D{
			X: p.rng.NormFloat64() * tremor * fade,
			Y: p.rng.NormFloat64() * tremor * fade,
		})

		if i == numSteps-1 {
			pos = end
		}

		// The pause covers this step's share of the eased schedule plus the
		// same few-millisecond dispatch jitter a real hand produces.
		pause := time.Duration((easedT - prevEased) * float64(duration))
		pause += p.microPause()
		prevEased = easedT

		steps = append(steps, schemas.PathStep{
			Point: schemas.ViewportPoint{X: pos.X, Y: pos.Y},
			Pause: pause,
		})
	}

	return steps
}

// idealPath samples a cubic Bezier curve between start and end. The control
// points sit a third and two thirds of the way along the straight line,
// displaced by the field force at those samples.
func (p *Planner) idealPath(start, end Vector2D, field *PotentialField, numSteps int) []Vector2D {
	p0, p3 := start, end
	mainVec := end.Sub(start)
	dist := mainVec.Mag()

	if dist < 1.0 || numSteps <= 1 {
		return []Vector2D{end}
	}

	mainDir := mainVec.Normalize()

	samplePoint1 := start.Add(mainDir.Mul(dist / 3.0))
	force1 := field.CalculateNetForce(samplePoint1)
	samplePoint2 := start.Add(mainDir.Mul(dist * 2.0 / 3.0))
	force2 := field.CalculateNetForce(samplePoint2)

	p1 := samplePoint1.Add(force1.Mul(dist * 0.1))
	p2 := samplePoint2.Add(force2.Mul(dist * 2.0 / 3.0))

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		omt := 1.0 - t
		omt2 := omt * omt
		omt3 := omt2 * omt
		t2 := t * t
		t3 := t2 * t

		path[i] = p0.Mul(omt3).Add(p1.Mul(3 * omt2 * t)).Add(p2.Mul(3 * omt * t2)).Add(p3.Mul(t3))
	}

	return path
}

// mainDuration estimates the ballistic movement time via Fitts' law with
// +/- 15% jitter.
func (p *Planner) mainDuration(dist float64) time.Duration {
	id := math.Log2(1.0 + dist/fittsMainWidth)
	mt := p.cfg.FittsA + p.cfg.FittsB*id
	mt += mt * (p.rng.Float64()*0.3 - 0.15)
	return p.boundDuration(mt, dist)
}

// terminalDuration estimates the corrective hop time with a tighter target
// width and +/- 10% jitter.
func (p *Planner) terminalDuration(dist float64) time.Duration {
	id := math.Log2(1.0 + dist/fittsTerminalWidth)
	mt := p.cfg.FittsA + p.cfg.FittsB*id
	mt += mt * (p.rng.Float64()*0.2 - 0.1)
	return p.boundDuration(mt, dist)
}

// boundDuration clamps a movement time in milliseconds so the implied speed
// stays below maxVelocity and the duration is never negative.
func (p *Planner) boundDuration(mt, dist float64) time.Duration {
	if floor := dist / maxVelocity * 1000.0; mt < floor {
		mt = floor
	}
	if mt < 0 {
		mt = 0
	}
	return time.Duration(mt) * time.Millisecond
}

// microPause samples the 2-5ms dispatch jitter between consecutive steps.
func (p *Planner) microPause() time.Duration {
	return time.Duration(2+p.rng.Intn(4)) * time.Millisecond
}

// computeEaseInOutCubic provides a smooth acceleration and deceleration
// profile over t in [0, 1].
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}
