package geocontrol

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// DesiredRotation builds the desired attitude from the desired force and the
// desired heading b1. Body 3 opposes the force; body 2 is perpendicular to both
// body 3 and b1; body 1 completes the right-handed frame.
func DesiredRotation(force, b1 mgl64.Vec3, minForce float64) (mgl64.Mat3, error) {
	norm := force.Len()
	if !(norm >= minForce) || !finite(norm) {
		return mgl64.Mat3{}, errors.Wrapf(ErrDegenerateForce, "|F| = %g N", norm)
	}
	b3 := force.Mul(-1 / norm)

	b2 := b3.Cross(b1)
	n2 := b2.Len()
	if n2 < Small {
		return mgl64.Mat3{}, errors.Wrapf(ErrDegenerateHeading, "|b3 x b1| = %g", n2)
	}
	b2 = b2.Mul(1 / n2)

	return mgl64.Mat3FromCols(b2.Cross(b3), b2, b3), nil
}

// AttitudeError is vee(0.5*(R_des'R - R'R_des)). It vanishes iff r == rDes.
func AttitudeError(r, rDes mgl64.Mat3) mgl64.Vec3 {
	e := rDes.Transpose().Mul3(r).Sub(r.Transpose().Mul3(rDes)).Mul(0.5)
	return Vee(e)
}

// DesiredAngularRate differentiates the desired attitude over one step of dt
// and returns the corresponding body rate vee(R_des' dR_des/dt).
func DesiredAngularRate(rDes, rPrev mgl64.Mat3, dt float64) (mgl64.Vec3, error) {
	if !(dt > 0) {
		return mgl64.Vec3{}, errors.Wrapf(ErrBadTimestep, "dt = %g s", dt)
	}
	rDot := rDes.Sub(rPrev).Mul(1 / dt)
	return Vee(rDes.Transpose().Mul3(rDot)), nil
}

// AngularRateError is omega - R'R_des*omegaDes, all body frame.
func AngularRateError(omega mgl64.Vec3, r, rDes mgl64.Mat3, omegaDes mgl64.Vec3) mgl64.Vec3 {
	return omega.Sub(r.Transpose().Mul3(rDes).Mul3x1(omegaDes))
}
