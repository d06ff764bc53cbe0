package geocontrol

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/westphae/quaternion"
)

// Skew returns the cross-product matrix of v, so that Skew(v)*x == v.Cross(x).
func Skew(v mgl64.Vec3) mgl64.Mat3 {
	// column-major
	return mgl64.Mat3{
		0, v[2], -v[1],
		-v[2], 0, v[0],
		v[1], -v[0], 0,
	}
}

// Vee is the inverse of Skew. Only the antisymmetric part of m contributes.
func Vee(m mgl64.Mat3) mgl64.Vec3 {
	return mgl64.Vec3{
		(m.At(2, 1) - m.At(1, 2)) / 2,
		(m.At(0, 2) - m.At(2, 0)) / 2,
		(m.At(1, 0) - m.At(0, 1)) / 2,
	}
}

// Yaw returns the heading of the horizontal velocity (vx, vy), in [0, 2*Pi).
func Yaw(vx, vy float64) float64 {
	yaw := math.Atan2(vy, vx)
	if yaw < 0 {
		yaw += 2 * Pi
	}
	if yaw >= 2*Pi { // -tiny + 2*Pi rounds up
		yaw = 0
	}
	return yaw
}

// HeadingYaw returns the heading of the commanded velocity v, or prev when the
// horizontal speed is below minSpeed and the heading would be meaningless.
func HeadingYaw(v mgl64.Vec3, prev, minSpeed float64) float64 {
	if math.Hypot(v[0], v[1]) < minSpeed || !finiteVec(v) {
		return prev
	}
	return Yaw(v[0], v[1])
}

// HeadingVector is the desired body 1 direction for a given yaw.
func HeadingVector(yaw float64) mgl64.Vec3 {
	s, c := math.Sincos(yaw)
	return mgl64.Vec3{c, s, 0}
}

// RotationFromQuaternion returns the rotation matrix rotating body frame into
// world frame for the quaternion q, X_w = q*X_b*conj(q). q need not be unit.
func RotationFromQuaternion(q quaternion.Quaternion) mgl64.Mat3 {
	q = quaternion.Unit(q)
	e11 := +q.W*q.W + q.X*q.X - q.Y*q.Y - q.Z*q.Z
	e12 := 2 * (-q.W*q.Z + q.X*q.Y)
	e13 := 2 * (+q.W*q.Y + q.X*q.Z)
	e21 := 2 * (+q.W*q.Z + q.Y*q.X)
	e22 := +q.W*q.W - q.X*q.X + q.Y*q.Y - q.Z*q.Z
	e23 := 2 * (-q.W*q.X + q.Y*q.Z)
	e31 := 2 * (-q.W*q.Y + q.Z*q.X)
	e32 := 2 * (+q.W*q.X + q.Z*q.Y)
	e33 := +q.W*q.W - q.X*q.X - q.Y*q.Y + q.Z*q.Z
	return mgl64.Mat3{e11, e21, e31, e12, e22, e32, e13, e23, e33}
}

// QuaternionFromRotation is the inverse of RotationFromQuaternion, returning
// the representative with W >= 0.
func QuaternionFromRotation(r mgl64.Mat3) quaternion.Quaternion {
	var q quaternion.Quaternion
	switch tr := r.At(0, 0) + r.At(1, 1) + r.At(2, 2); {
	case tr > 0:
		s := 2 * math.Sqrt(1+tr)
		q = quaternion.Quaternion{
			W: s / 4,
			X: (r.At(2, 1) - r.At(1, 2)) / s,
			Y: (r.At(0, 2) - r.At(2, 0)) / s,
			Z: (r.At(1, 0) - r.At(0, 1)) / s,
		}
	case r.At(0, 0) > r.At(1, 1) && r.At(0, 0) > r.At(2, 2):
		s := 2 * math.Sqrt(1+r.At(0, 0)-r.At(1, 1)-r.At(2, 2))
		q = quaternion.Quaternion{
			W: (r.At(2, 1) - r.At(1, 2)) / s,
			X: s / 4,
			Y: (r.At(0, 1) + r.At(1, 0)) / s,
			Z: (r.At(0, 2) + r.At(2, 0)) / s,
		}
	case r.At(1, 1) > r.At(2, 2):
		s := 2 * math.Sqrt(1+r.At(1, 1)-r.At(0, 0)-r.At(2, 2))
		q = quaternion.Quaternion{
			W: (r.At(0, 2) - r.At(2, 0)) / s,
			X: (r.At(0, 1) + r.At(1, 0)) / s,
			Y: s / 4,
			Z: (r.At(1, 2) + r.At(2, 1)) / s,
		}
	default:
		s := 2 * math.Sqrt(1+r.At(2, 2)-r.At(0, 0)-r.At(1, 1))
		q = quaternion.Quaternion{
			W: (r.At(1, 0) - r.At(0, 1)) / s,
			X: (r.At(0, 2) + r.At(2, 0)) / s,
			Y: (r.At(1, 2) + r.At(2, 1)) / s,
			Z: s / 4,
		}
	}
	if q.W < 0 {
		q = quaternion.Quaternion{W: -q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
	}
	return quaternion.Unit(q)
}

// RollPitchYaw returns the Z-Y-X Tait-Bryan angles of r, in radians.
func RollPitchYaw(r mgl64.Mat3) (roll, pitch, yaw float64) {
	roll = math.Atan2(r.At(2, 1), r.At(2, 2))
	pitch = -math.Asin(math.Max(-1, math.Min(1, r.At(2, 0))))
	yaw = Yaw(r.At(0, 0), r.At(1, 0))
	return
}

// IsRotation reports whether m is orthonormal with determinant +1, within tol.
func IsRotation(m mgl64.Mat3, tol float64) bool {
	if math.Abs(m.Det()-1) > tol {
		return false
	}
	return MatNear(m.Transpose().Mul3(m), mgl64.Ident3(), tol)
}

// MatNear reports whether every element of a is within tol of b.
// mgl64's ApproxEqualThreshold shrinks the tolerance to tol^2 next to zero.
func MatNear(a, b mgl64.Mat3, tol float64) bool {
	for i := range a {
		if !(math.Abs(a[i]-b[i]) <= tol) {
			return false
		}
	}
	return true
}

// hadamard is the element-wise product, i.e. multiplication by diag(k).
func hadamard(v, k mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v[0] * k[0], v[1] * k[1], v[2] * k[2]}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func finiteVec(v mgl64.Vec3) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}

func finiteMat(m mgl64.Mat3) bool {
	for _, x := range m {
		if !finite(x) {
			return false
		}
	}
	return true
}
