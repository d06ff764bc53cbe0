package geocontrol

import "github.com/go-gl/mathgl/mgl64"

// DesiredForce returns the world frame force that drives the vehicle toward the
// trajectory point, along with the position and velocity errors behind it.
// The body velocity in s is rotated into the world frame before comparison.
func DesiredForce(s VehicleState, tr Trajectory, k Gains, p VehicleParameters) (force, ePos, eVel mgl64.Vec3) {
	ePos = s.Position.Sub(tr.Position)
	eVel = s.Orientation.Mul3x1(s.Velocity).Sub(tr.Velocity)

	force = hadamard(ePos, k.Position).
		Add(hadamard(eVel, k.Velocity)).
		Sub(E3.Mul(p.Mass * p.Gravity)).
		Sub(tr.Acceleration.Mul(p.Mass))
	return force, ePos, eVel
}
