// internal/humanoid/field.go
package humanoid

import "math"

// ForceSource represents a single point of influence within a PotentialField.
// It can act as either an attractor (positive strength) or a repulsor
// (negative strength), bending the planned cursor paths that pass nearby.
type ForceSource struct {
	// Position is the coordinate of the force source.
	Position Vector2D
	// Strength determines the magnitude of the force. Positive values create
	// attraction, while negative values create repulsion.
	Strength float64
	// Falloff controls how quickly the force diminishes with distance. A
	// larger value results in a wider area of influence.
	Falloff float64
}

// PotentialField simulates a 2D field of forces that deform a planned cursor
// trajectory. The click sequencer registers a repulsor per on-page
// distractor (the grid cells still awaiting their click) so synthesized
// paths curve around them instead of cutting straight lines.
type PotentialField struct {
	sources []ForceSource
}

// NewPotentialField creates and returns an empty PotentialField.
func NewPotentialField() *PotentialField {
	return &PotentialField{
		sources: make([]ForceSource, 0),
	}
}

// AddSource adds a new force source (an attractor or repulsor) to the field.
func (pf *PotentialField) AddSource(pos Vector2D, strength, falloff float64) {
	pf.sources = append(pf.sources, ForceSource{
		Position: pos,
		Strength: strength,
		Falloff:  falloff,
	})
}

// CalculateNetForce computes the combined force vector exerted by all
// sources in the field on a given point. Each source contributes
// F = S * exp(-d/L) directed from the point toward the source, so positive
// strengths pull and negative strengths push.
func (pf *PotentialField) CalculateNetForce(cursorPos Vector2D) Vector2D {
	netForce := Vector2D{}
	for _, source := range pf.sources {
		vecToSource := source.Position.Sub(cursorPos)
		dist := vecToSource.Mag()
		if dist < 1e-9 {
			continue // Avoid division by zero.
		}
		magnitude := source.Strength * math.Exp(-dist/source.Falloff)
		netForce = netForce.Add(vecToSource.Mul(magnitude / dist))
	}
	return netForce
}
