package geocontrol

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newConfigured(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	c := New(opts...)
	require.NoError(t, c.Configure(quadParameters(), testGains()))
	return c
}

func hoverState() VehicleState {
	return VehicleState{Position: mgl64.Vec3{1, -2, 5}, Orientation: mgl64.Ident3()}
}

type recordingObserver struct {
	cycles int
	errs   []error
}

func (o *recordingObserver) ObserveCycle(rotors []float64, d Diagnostics, elapsed time.Duration, err error) {
	o.cycles++
	if err != nil {
		o.errs = append(o.errs, err)
	}
}

func TestNotConfigured(t *testing.T) {
	c := New()
	c.SetTrajectory(Trajectory{})
	w, _, err := c.ComputeRotorVelocities()
	assert.Nil(t, w)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestConfigureOnlyOnce(t *testing.T) {
	c := newConfigured(t)
	err := c.Configure(quadParameters(), testGains())
	assert.True(t, errors.Is(err, ErrAlreadyConfigured))
}

func TestConfigureRejectsBadParameters(t *testing.T) {
	tests := map[string]func(p *VehicleParameters, k *Gains){
		"zero mass":        func(p *VehicleParameters, k *Gains) { p.Mass = 0 },
		"nan gravity":      func(p *VehicleParameters, k *Gains) { p.Gravity = math.NaN() },
		"three rotors":     func(p *VehicleParameters, k *Gains) { p.Rotors = p.Rotors[:3] },
		"asymmetric J":     func(p *VehicleParameters, k *Gains) { p.Inertia.Set(0, 1, 0.01) },
		"indefinite J":     func(p *VehicleParameters, k *Gains) { p.Inertia.Set(2, 2, -0.1) },
		"zero gain":        func(p *VehicleParameters, k *Gains) { k.Attitude[2] = 0 },
		"negative gain":    func(p *VehicleParameters, k *Gains) { k.Position[0] = -1 },
		"allocation arity": func(p *VehicleParameters, k *Gains) { p.Allocation = AllocationMatrix(hexRotors()) },
	}
	for name, mutate := range tests {
		p, k := quadParameters(), testGains()
		mutate(&p, &k)
		err := New().Configure(p, k)
		assert.True(t, errors.Is(err, ErrInvalidParameters), "%s: got %v", name, err)
	}

	p := quadParameters()
	for i := range p.Rotors {
		p.Rotors[i].Angle = 0
	}
	err := New().Configure(p, testGains())
	assert.True(t, errors.Is(err, ErrIllConditioned), "got %v", err)

	st := DefaultSettings()
	st.Timestep = 0
	err = New(WithSettings(st)).Configure(quadParameters(), testGains())
	assert.True(t, errors.Is(err, ErrInvalidParameters), "got %v", err)
}

func TestConfigureToleratesInertiaRounding(t *testing.T) {
	p := quadParameters()
	p.Inertia.Set(0, 1, 1e-12)
	assert.NoError(t, New().Configure(p, testGains()))

	p = quadParameters()
	p.Inertia.Set(0, 1, 1e-3)
	p.Inertia.Set(1, 0, 1e-3+1e-7)
	err := New().Configure(p, testGains())
	assert.True(t, errors.Is(err, ErrInvalidParameters), "got %v", err)
}

func TestConfigureWithPrecomputedAllocation(t *testing.T) {
	p := quadParameters()
	p.Allocation = AllocationMatrix(hexRotors())
	p.Rotors = nil
	c := New()
	require.NoError(t, c.Configure(p, testGains()))
	assert.Equal(t, 6, c.Configuration().Allocator.Rotors())
}

func TestInactiveReturnsZero(t *testing.T) {
	c := newConfigured(t)
	rnd := rand.New(rand.NewSource(7))
	for n := 0; n < 20; n++ {
		c.SetState(VehicleState{
			T:               float64(n) * 0.02,
			Position:        randomVec(rnd, 10),
			Velocity:        randomVec(rnd, 5),
			Orientation:     randomRotation(rnd),
			AngularVelocity: randomVec(rnd, 2),
		})
		w, d, err := c.ComputeRotorVelocities()
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0, 0, 0}, w)
		assert.Equal(t, Diagnostics{}, d)
	}
	assert.False(t, c.Active())
	assert.False(t, c.Runtime().Seeded)
}

func TestActivationIsOneWay(t *testing.T) {
	c := New()
	assert.False(t, c.Active())
	c.SetTrajectory(Trajectory{})
	assert.True(t, c.Active())
	// configuring after the first command keeps the controller active
	require.NoError(t, c.Configure(quadParameters(), testGains()))
	assert.True(t, c.Active())
	c.SetTrajectory(Trajectory{Position: mgl64.Vec3{1, 1, 1}})
	assert.True(t, c.Active())
}

func TestHoverScenario(t *testing.T) {
	c := newConfigured(t)
	s := hoverState()
	c.SetState(s)
	c.SetTrajectory(Trajectory{Position: s.Position})

	for n := 0; n < 3; n++ {
		w, d, err := c.ComputeRotorVelocities()
		require.NoError(t, err)

		assertVecInDelta(t, mgl64.Vec3{0, 0, -9.81}, d.Force, Tolerance)
		assert.InDelta(t, 9.81, d.Thrust, Tolerance)
		assertVecInDelta(t, mgl64.Vec3{}, d.Moment, Tolerance)
		assertVecInDelta(t, mgl64.Vec3{}, d.AttitudeError, Tolerance)
		assertVecInDelta(t, mgl64.Vec3{}, d.AngularRateError, Tolerance)
		assert.Zero(t, d.Saturated)

		require.Len(t, w, 4)
		want := math.Sqrt(9.81 / (4 * cf))
		for i := range w {
			assert.InDelta(t, want, w[i], 1e-6, "rotor %d", i)
		}
	}
}

func TestFirstCycleHasNoDesiredRate(t *testing.T) {
	c := newConfigured(t)
	s := hoverState()
	s.Orientation = mgl64.Rotate3DX(0.2)
	s.AngularVelocity = mgl64.Vec3{0.1, -0.2, 0.3}
	c.SetState(s)
	c.SetTrajectory(Trajectory{Position: s.Position, Velocity: mgl64.Vec3{1, 1, 0}})

	_, d, err := c.ComputeRotorVelocities()
	require.NoError(t, err)
	assertVecInDelta(t, s.AngularVelocity, d.AngularRateError, Tolerance)
	assert.True(t, c.Runtime().Seeded)
	assert.InDelta(t, Pi/4, c.Runtime().Yaw, Tolerance)
}

func TestDesiredRateFollowsHeadingChange(t *testing.T) {
	c := newConfigured(t)
	s := hoverState()
	s.Velocity = mgl64.Vec3{1, 0, 0}
	c.SetState(s)
	c.SetTrajectory(Trajectory{Position: s.Position, Velocity: s.Velocity})
	_, _, err := c.ComputeRotorVelocities()
	require.NoError(t, err)

	// the commanded heading turns by 0.01 rad in one nominal step, tracked exactly
	s.Velocity = mgl64.Vec3{math.Cos(0.01), math.Sin(0.01), 0}
	c.SetState(s)
	c.SetTrajectory(Trajectory{Position: s.Position, Velocity: s.Velocity})
	_, d, err := c.ComputeRotorVelocities()
	require.NoError(t, err)
	assert.InDelta(t, DefaultTimestep, d.Dt, Tolerance)
	// R == I so the rate error is minus the desired rate, mapped into the body frame
	assert.InDelta(t, -math.Sin(0.01)/DefaultTimestep, d.AngularRateError[2], 1e-6)
}

func TestMeasuredTimestep(t *testing.T) {
	st := DefaultSettings()
	st.MeasuredTimestep = true
	c := newConfigured(t, WithSettings(st))
	s := hoverState()
	s.T = 10
	c.SetState(s)
	c.SetTrajectory(Trajectory{Position: s.Position})

	_, d, err := c.ComputeRotorVelocities()
	require.NoError(t, err)
	assert.InDelta(t, DefaultTimestep, d.Dt, Tolerance)

	s.T = 10.05
	c.SetState(s)
	_, d, err = c.ComputeRotorVelocities()
	require.NoError(t, err)
	assert.InDelta(t, 0.05, d.Dt, 1e-12)

	// a stale timestamp falls back to the nominal step
	c.SetState(s)
	_, d, err = c.ComputeRotorVelocities()
	require.NoError(t, err)
	assert.InDelta(t, DefaultTimestep, d.Dt, Tolerance)
}

func TestDegenerateForceFallsBackToZero(t *testing.T) {
	p := quadParameters()
	k := testGains()
	k.Position = mgl64.Vec3{1, 1, 1}
	core, logs := observer.New(zap.WarnLevel)
	obs := &recordingObserver{}
	c := New(WithLogger(zap.New(core)), WithObserver(obs))
	require.NoError(t, c.Configure(p, k))

	// gravity cancelled by a free-fall acceleration command, 1 nN of position error left
	c.SetState(VehicleState{Position: mgl64.Vec3{1e-9, 0, 0}, Orientation: mgl64.Ident3()})
	c.SetTrajectory(Trajectory{Acceleration: mgl64.Vec3{0, 0, -9.81}})
	before := c.Runtime()

	w, d, err := c.ComputeRotorVelocities()
	assert.True(t, errors.Is(err, ErrDegenerateForce), "got %v", err)
	assert.Equal(t, []float64{0, 0, 0, 0}, w)
	assertVecInDelta(t, mgl64.Vec3{1e-9, 0, 0}, d.Force, 1e-15)
	assert.Equal(t, before, c.Runtime())
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, 1, obs.cycles)
	assert.Len(t, obs.errs, 1)
}

func TestNonFiniteInputs(t *testing.T) {
	c := newConfigured(t)
	s := hoverState()
	s.Velocity = mgl64.Vec3{math.Inf(1), 0, 0}
	c.SetState(s)
	c.SetTrajectory(Trajectory{Position: s.Position})

	w, _, err := c.ComputeRotorVelocities()
	assert.True(t, errors.Is(err, ErrNonFinite), "got %v", err)
	assert.Equal(t, []float64{0, 0, 0, 0}, w)
}

func TestRotorVelocitiesNonNegative(t *testing.T) {
	c := newConfigured(t)
	rnd := rand.New(rand.NewSource(8))
	for n := 0; n < 500; n++ {
		c.SetState(VehicleState{
			T:               float64(n) * 0.02,
			Position:        randomVec(rnd, 20),
			Velocity:        randomVec(rnd, 10),
			Orientation:     randomRotation(rnd),
			AngularVelocity: randomVec(rnd, 5),
		})
		c.SetTrajectory(Trajectory{
			Position:     randomVec(rnd, 20),
			Velocity:     randomVec(rnd, 10),
			Acceleration: randomVec(rnd, 10),
		})
		w, _, err := c.ComputeRotorVelocities()
		if err != nil {
			assert.False(t, errors.Is(err, ErrNonFinite), "cycle %d: %v", n, err)
		}
		require.Len(t, w, 4)
		for i := range w {
			if !(w[i] >= 0) || math.IsInf(w[i], 0) {
				t.Fatalf("cycle %d rotor %d velocity %g", n, i, w[i])
			}
		}
	}
}
