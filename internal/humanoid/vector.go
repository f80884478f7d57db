// internal/humanoid/vector.go
package humanoid

import "math"

// Vector2D represents a point or vector in a 2D Cartesian coordinate system.
// It is used throughout the path synthesis to represent positions, forces and
// displacements.
type Vector2D struct {
	X float64
	Y float64
}

// Add performs vector addition, returning a new Vector2D `v + other`.
func (v Vector2D) Add(other Vector2D) Vector2D {
	return Vector2D{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub performs vector subtraction, returning a new Vector2D `v - other`.
func (v Vector2D) Sub(other Vector2D) Vector2D {
	return Vector2D{X: v.X - other.X, Y: v.Y - other.Y}
}

// Mul performs scalar multiplication, returning a new Vector2D `v * scalar`.
func (v Vector2D) Mul(scalar float64) Vector2D {
	return Vector2D{X: v.X * scalar, Y: v.Y * scalar}
}

// Dot calculates the dot product of `v` and `other`.
func (v Vector2D) Dot(other Vector2D) float64 {
	return v.X*other.X + v.Y*other.Y
}

// MagSq calculates the squared magnitude of the vector. Cheaper than Mag when
// only comparing distances because it avoids the square root.
func (v Vector2D) MagSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Mag calculates the magnitude (Euclidean length) of the vector.
func (v Vector2D) Mag() float64 {
	// math.Hypot for numerical stability with very large or small components.
	return math.Hypot(v.X, v.Y)
}

// Normalize returns a unit vector with the same direction as `v`. The zero
// vector normalizes to the zero vector.
func (v Vector2D) Normalize() Vector2D {
	mag := v.Mag()
	if mag < 1e-9 {
		return Vector2D{}
	}
	return v.Mul(1.0 / mag)
}

// Dist calculates the Euclidean distance between the points `v` and `other`.
func (v Vector2D) Dist(other Vector2D) float64 {
	return math.Hypot(v.X-other.X, v.Y-other.Y)
}

// Limit caps the magnitude of the vector at `max`, preserving direction.
func (v Vector2D) Limit(max float64) Vector2D {
	magSq := v.MagSq()

	if magSq > max*max && magSq > 0 {
		mag := math.Sqrt(magSq)
		return v.Mul(max / mag)
	}
	return v
}

// Angle calculates the angle of the vector in radians with respect to the
// positive X-axis, in the range [-Pi, Pi].
func (v Vector2D) Angle() float64 {
	return math.Atan2(v.Y, v.X)
}
