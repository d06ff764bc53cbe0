package geocontrol

import "github.com/go-gl/mathgl/mgl64"

// Moment returns the body frame control moment for the attitude and rate errors.
// The gyroscopic term omega x (J omega) is always included.
func Moment(eR, eOmega, omega mgl64.Vec3, k Gains, inertia mgl64.Mat3) mgl64.Vec3 {
	return hadamard(eR, k.Attitude).Mul(-1).
		Sub(hadamard(eOmega, k.AngularRate)).
		Add(omega.Cross(inertia.Mul3x1(omega)))
}

// Thrust projects the desired force onto the current body 3 axis.
// The sign is kept; negative thrust saturates in the allocator.
func Thrust(force mgl64.Vec3, r mgl64.Mat3) float64 {
	return -force.Dot(r.Col(2))
}
