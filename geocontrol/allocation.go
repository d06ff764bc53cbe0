package geocontrol

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/skelterjohn/go.matrix"
	"gonum.org/v1/gonum/mat"
)

// AllocationMatrix builds the 4xN matrix mapping squared rotor velocities to
// body moments (rows 0-2) and collective thrust (row 3).
func AllocationMatrix(rotors []Rotor) *matrix.DenseMatrix {
	a := matrix.Zeros(4, len(rotors))
	for i, r := range rotors {
		s, c := math.Sincos(r.Angle)
		a.Set(0, i, s*r.ArmLength*r.ForceConstant)
		a.Set(1, i, -c*r.ArmLength*r.ForceConstant)
		a.Set(2, i, -float64(r.Direction)*r.ForceConstant*r.MomentConstant)
		a.Set(3, i, r.ForceConstant)
	}
	return a
}

// Allocator distributes a moment/thrust command over the rotors using the
// right pseudo-inverse A'(AA')^-1 of the allocation matrix, computed once.
type Allocator struct {
	a    *matrix.DenseMatrix
	pinv *matrix.DenseMatrix
	cond float64
}

// NewAllocator checks that a is a full row rank 4xN matrix with condition
// number at most maxCond and caches its pseudo-inverse.
func NewAllocator(a *matrix.DenseMatrix, maxCond float64) (*Allocator, error) {
	if a == nil {
		return nil, errors.Wrap(ErrIllConditioned, "no allocation matrix")
	}
	if a.Rows() != 4 || a.Cols() < 4 {
		return nil, errors.Wrapf(ErrIllConditioned, "need 4xN with N >= 4, have %dx%d", a.Rows(), a.Cols())
	}

	cond, rank := conditionNumber(a)
	if rank < 4 {
		return nil, errors.Wrapf(ErrIllConditioned, "rank %d", rank)
	}
	if cond > maxCond {
		return nil, errors.Wrapf(ErrIllConditioned, "condition number %g exceeds %g", cond, maxCond)
	}

	at := a.Transpose()
	aat := matrix.Product(a, at)
	inv, err := aat.Inverse()
	if err != nil {
		return nil, errors.Wrapf(ErrIllConditioned, "inverting AA': %v", err)
	}
	return &Allocator{a: a.Copy(), pinv: matrix.Product(at, inv), cond: cond}, nil
}

// conditionNumber returns the 2-norm condition number and numerical rank of a.
func conditionNumber(a *matrix.DenseMatrix) (cond float64, rank int) {
	d := mat.NewDense(a.Rows(), a.Cols(), nil)
	for i := 0; i < a.Rows(); i++ {
		for j := 0; j < a.Cols(); j++ {
			d.Set(i, j, a.Get(i, j))
		}
	}

	var svd mat.SVD
	if !svd.Factorize(d, mat.SVDNone) {
		return math.Inf(1), 0
	}
	sv := svd.Values(nil)
	tol := sv[0] * float64(a.Cols()) * 2.220446049250313e-16
	for _, s := range sv {
		if s > tol {
			rank++
		}
	}
	if sv[len(sv)-1] == 0 {
		return math.Inf(1), rank
	}
	return sv[0] / sv[len(sv)-1], rank
}

// Rotors returns N, the number of rotors.
func (al *Allocator) Rotors() int {
	return al.a.Cols()
}

// Matrix returns a copy of the allocation matrix.
func (al *Allocator) Matrix() *matrix.DenseMatrix {
	return al.a.Copy()
}

// PseudoInverse returns a copy of the cached Nx4 pseudo-inverse.
func (al *Allocator) PseudoInverse() *matrix.DenseMatrix {
	return al.pinv.Copy()
}

// ConditionNumber of the allocation matrix.
func (al *Allocator) ConditionNumber() float64 {
	return al.cond
}

// RotorVelocities returns the rotor angular velocities realizing moment and thrust.
// Negative squared velocities cannot be produced by a rotor; they are clipped
// to zero and counted in saturated.
func (al *Allocator) RotorVelocities(moment mgl64.Vec3, thrust float64) (w []float64, saturated int) {
	u := matrix.MakeDenseMatrix([]float64{moment[0], moment[1], moment[2], thrust}, 4, 1)
	w2 := matrix.Product(al.pinv, u)

	w = make([]float64, al.Rotors())
	for i := range w {
		x := w2.Get(i, 0)
		if !(x > 0) {
			if x < 0 {
				saturated++
			}
			x = 0
		}
		w[i] = math.Sqrt(x)
	}
	return w, saturated
}
