// internal/humanoid/noise.go
package humanoid

import (
	"math"
	"math/rand"
)

// randSource abstracts the random number generator so the pink noise
// generator can be driven deterministically in tests.
type randSource interface {
	Float64() float64
	Intn(n int) int
}

// PinkNoiseGenerator produces 1/f noise using the Voss-McCartney algorithm.
// Pink noise correlates across timescales, which makes it a better model for
// the drift in human inter-event timing than white noise. The generator keeps
// a set of white noise sources and updates one per sample, chosen with
// probability proportional to 2^-i.
type PinkNoiseGenerator struct {
	rng       randSource
	sources   []float64
	probs     []float64
	scale     float64
	numSource int
}

// NewPinkNoiseGenerator creates a generator with n internal sources. If n is
// not positive a default of 12 sources is used, enough to cover the
// timescales of a single browsing session.
func NewPinkNoiseGenerator(rng randSource, n int) *PinkNoiseGenerator {
	if n <= 0 {
		n = 12
	}

	g := &PinkNoiseGenerator{
		rng:       rng,
		sources:   make([]float64, n),
		probs:     make([]float64, n),
		scale:     1.0 / math.Sqrt(float64(n)),
		numSource: n,
	}

	// Source i fires with probability proportional to 2^-i, then the set is
	// normalized so the probabilities sum to one.
	total := 0.0
	for i := 0; i < n; i++ {
		p := math.Pow(2, -float64(i))
		g.probs[i] = p
		total += p
	}
	for i := 0; i < n; i++ {
		g.probs[i] /= total
	}

	// Seed the sources so the first samples are not biased toward zero.
	for i := 0; i < n; i++ {
		g.sources[i] = rng.Float64()*2 - 1
	}

	return g
}

// Next returns the next pink noise sample, approximately in [-1, 1].
func (g *PinkNoiseGenerator) Next() float64 {
	// Pick one source by cumulative probability and refresh it.
	r := g.rng.Float64()
	cumulative := 0.0
	for i := 0; i < g.numSource; i++ {
		cumulative += g.probs[i]
		if r < cumulative {
			g.sources[i] = g.rng.Float64()*2 - 1
			break
		}
	}

	sum := 0.0
	for _, s := range g.sources {
		sum += s
	}
	return sum * g.scale
}

// compile-time check that the stdlib generator satisfies randSource.
var _ randSource = (*rand.Rand)(nil)
