// internal/humanoid/config.go
package humanoid

import "math/rand"

// Config holds the tunable parameters of a motor persona. The *Mean/*StdDev
// pairs describe a population; FinalizeSessionPersona draws one individual
// from that population so every session moves a little differently while
// staying plausible.
type Config struct {
	// Fitts' law coefficients for movement time: MT = A + B*log2(1 + D/W).
	FittsAMean   float64
	FittsAStdDev float64
	FittsBMean   float64
	FittsBStdDev float64

	// Strength of the high-frequency hand tremor applied per step.
	GaussianStrengthMean   float64
	GaussianStrengthStdDev float64

	// Amplitude of the low-frequency Perlin drift along the path.
	PerlinAmplitudeMean   float64
	PerlinAmplitudeStdDev float64

	// Radius of the scatter applied to the approach point of long movements.
	ClickNoiseMean   float64
	ClickNoiseStdDev float64

	// Movements longer than this many pixels are split into a ballistic
	// approach phase and a slower terminal correction phase.
	MicroCorrectionThreshold float64

	// Bounds for how long a click is held between press and release.
	ClickHoldMinMs int
	ClickHoldMaxMs int

	// Per-session values sampled from the distributions above. Zero until
	// FinalizeSessionPersona runs.
	FittsA           float64
	FittsB           float64
	GaussianStrength float64
	PerlinAmplitude  float64
	ClickNoise       float64
}

// DefaultConfig returns the population defaults. The values produce paths in
// the few-hundred-millisecond range for typical in-page distances.
func DefaultConfig() Config {
	return Config{
		FittsAMean:   100.0,
		FittsAStdDev: 15.0,
		FittsBMean:   120.0,
		FittsBStdDev: 20.0,

		GaussianStrengthMean:   0.5,
		GaussianStrengthStdDev: 0.1,

		PerlinAmplitudeMean:   2.5,
		PerlinAmplitudeStdDev: 0.5,

		ClickNoiseMean:   2.0,
		ClickNoiseStdDev: 0.5,

		MicroCorrectionThreshold: 50.0,

		ClickHoldMinMs: 50,
		ClickHoldMaxMs: 120,
	}
}

// FinalizeSessionPersona samples the per-session parameters from their
// configured distributions. Passing a nil rng fixes every parameter at its
// mean, which keeps tests deterministic.
func (c *Config) FinalizeSessionPersona(rng *rand.Rand) {
	c.FittsA = sampleGaussian(rng, c.FittsAMean, c.FittsAStdDev)
	c.FittsB = sampleGaussian(rng, c.FittsBMean, c.FittsBStdDev)
	c.GaussianStrength = sampleGaussian(rng, c.GaussianStrengthMean, c.GaussianStrengthStdDev)
	c.PerlinAmplitude = sampleGaussian(rng, c.PerlinAmplitudeMean, c.PerlinAmplitudeStdDev)
	c.ClickNoise = sampleGaussian(rng, c.ClickNoiseMean, c.ClickNoiseStdDev)

	// Clamp samples that landed in physically meaningless ranges.
	if c.FittsA < 10.0 {
		c.FittsA = 10.0
	}
	if c.FittsB < 20.0 {
		c.FittsB = 20.0
	}
	if c.GaussianStrength < 0 {
		c.GaussianStrength = 0
	}
	if c.PerlinAmplitude < 0 {
		c.PerlinAmplitude = 0
	}
	if c.ClickNoise < 0 {
		c.ClickNoise = 0
	}
	if c.ClickHoldMaxMs <= c.ClickHoldMinMs {
		c.ClickHoldMaxMs = c.ClickHoldMinMs + 1
	}
}

// sampleGaussian draws from N(mean, stdDev). A nil rng returns the mean.
func sampleGaussian(rng *rand.Rand, mean, stdDev float64) float64 {
	if rng == nil {
		return mean
	}
	return mean + rng.NormFloat64()*stdDev
}
