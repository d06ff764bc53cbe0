package geocontrol

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Configuration is everything fixed at Configure time.
type Configuration struct {
	Params    VehicleParameters
	Gains     Gains
	Settings  Settings
	Allocator *Allocator
}

// NewConfiguration validates the parameters, gains and settings and derives the allocator.
func NewConfiguration(p VehicleParameters, k Gains, st Settings) (*Configuration, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}

	a := p.Allocation
	if a == nil {
		a = AllocationMatrix(p.Rotors)
	} else {
		a = a.Copy()
	}
	al, err := NewAllocator(a, st.MaxConditionNumber)
	if err != nil {
		return nil, err
	}

	p.Rotors = append([]Rotor(nil), p.Rotors...)
	p.Allocation = al.Matrix()
	return &Configuration{Params: p, Gains: k, Settings: st, Allocator: al}, nil
}

// Validate checks the physical parameters.
func (p VehicleParameters) Validate() error {
	if !(p.Mass > 0) || !finite(p.Mass) {
		return errors.Wrapf(ErrInvalidParameters, "mass %g kg", p.Mass)
	}
	if !finite(p.Gravity) {
		return errors.Wrapf(ErrInvalidParameters, "gravity %g m/s^2", p.Gravity)
	}
	if !finiteMat(p.Inertia) {
		return errors.Wrap(ErrInvalidParameters, "inertia is not finite")
	}
	if !MatNear(p.Inertia, p.Inertia.Transpose(), Small) {
		return errors.Wrap(ErrInvalidParameters, "inertia is not symmetric")
	}
	sym := mat.NewSymDense(3, []float64{
		p.Inertia.At(0, 0), p.Inertia.At(0, 1), p.Inertia.At(0, 2),
		p.Inertia.At(1, 0), p.Inertia.At(1, 1), p.Inertia.At(1, 2),
		p.Inertia.At(2, 0), p.Inertia.At(2, 1), p.Inertia.At(2, 2),
	})
	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return errors.Wrap(ErrInvalidParameters, "inertia is not positive definite")
	}

	if p.Allocation == nil && len(p.Rotors) < 4 {
		return errors.Wrapf(ErrInvalidParameters, "%d rotors, need at least 4", len(p.Rotors))
	}
	if p.Allocation != nil && len(p.Rotors) > 0 && p.Allocation.Cols() != len(p.Rotors) {
		return errors.Wrapf(ErrInvalidParameters, "allocation matrix has %d columns for %d rotors",
			p.Allocation.Cols(), len(p.Rotors))
	}
	return nil
}

// Validate checks that all gains are positive.
func (k Gains) Validate() error {
	named := map[string]mgl64.Vec3{
		"position":     k.Position,
		"velocity":     k.Velocity,
		"attitude":     k.Attitude,
		"angular rate": k.AngularRate,
	}
	for name, g := range named {
		for i := 0; i < 3; i++ {
			if !(g[i] > 0) || !finite(g[i]) {
				return errors.Wrapf(ErrInvalidParameters, "%s gain %d is %g", name, i, g[i])
			}
		}
	}
	return nil
}

// Validate checks the runtime settings.
func (st Settings) Validate() error {
	switch {
	case !(st.Timestep > 0) || !finite(st.Timestep):
		return errors.Wrapf(ErrInvalidParameters, "timestep %g s", st.Timestep)
	case !(st.MinForce > 0):
		return errors.Wrapf(ErrInvalidParameters, "minimum force %g N", st.MinForce)
	case !(st.MinHeadingSpeed >= 0):
		return errors.Wrapf(ErrInvalidParameters, "minimum heading speed %g m/s", st.MinHeadingSpeed)
	case !finite(st.DefaultYaw):
		return errors.Wrapf(ErrInvalidParameters, "default yaw %g", st.DefaultYaw)
	case !(st.MaxConditionNumber >= 1):
		return errors.Wrapf(ErrInvalidParameters, "maximum condition number %g", st.MaxConditionNumber)
	}
	return nil
}

// RuntimeState is the only memory the control law keeps between cycles.
type RuntimeState struct {
	PrevRDes mgl64.Mat3 // Desired attitude of the previous successful cycle
	PrevT    float64    // VehicleState.T of the previous successful cycle
	Seeded   bool       // PrevRDes holds a real attitude rather than the zero sentinel
	Yaw      float64    // Last commanded heading, rad
	Active   bool       // Set by the first trajectory command, never cleared
}

// NewRuntimeState returns the dormant runtime state for cfg.
func NewRuntimeState(cfg *Configuration) RuntimeState {
	return RuntimeState{Yaw: cfg.Settings.DefaultYaw}
}

// timestep picks the differentiation interval for a state stamped t.
func (rt *RuntimeState) timestep(t float64, st Settings) float64 {
	if st.MeasuredTimestep && rt.Seeded {
		if dt := t - rt.PrevT; dt > 0 && finite(dt) {
			return dt
		}
	}
	return st.Timestep
}

// Step runs one full control cycle for an active controller.
// On error it returns the zero command and leaves rt untouched.
func Step(cfg *Configuration, rt *RuntimeState, s VehicleState, tr Trajectory) ([]float64, Diagnostics, error) {
	var d Diagnostics
	zero := make([]float64, cfg.Allocator.Rotors())

	if !finiteVec(s.Position) || !finiteVec(s.Velocity) || !finiteMat(s.Orientation) ||
		!finiteVec(s.AngularVelocity) {
		return zero, d, errors.Wrap(ErrNonFinite, "vehicle state")
	}
	if !finiteVec(tr.Position) || !finiteVec(tr.Velocity) || !finiteVec(tr.Acceleration) {
		return zero, d, errors.Wrap(ErrNonFinite, "trajectory")
	}

	force, ePos, eVel := DesiredForce(s, tr, cfg.Gains, cfg.Params)
	d.PositionError, d.VelocityError, d.Force = ePos, eVel, force

	yaw := HeadingYaw(tr.Velocity, rt.Yaw, cfg.Settings.MinHeadingSpeed)
	d.Yaw = yaw

	rDes, err := DesiredRotation(force, HeadingVector(yaw), cfg.Settings.MinForce)
	if err != nil {
		return zero, d, err
	}

	// Differentiating against the zero sentinel would command a huge rate on
	// the first cycle, so the first desired attitude is its own predecessor.
	rPrev := rt.PrevRDes
	if !rt.Seeded {
		rPrev = rDes
	}
	d.Dt = rt.timestep(s.T, cfg.Settings)
	omegaDes, err := DesiredAngularRate(rDes, rPrev, d.Dt)
	if err != nil {
		return zero, d, err
	}

	d.AttitudeError = AttitudeError(s.Orientation, rDes)
	d.AngularRateError = AngularRateError(s.AngularVelocity, s.Orientation, rDes, omegaDes)
	d.Moment = Moment(d.AttitudeError, d.AngularRateError, s.AngularVelocity, cfg.Gains, cfg.Params.Inertia)
	d.Thrust = Thrust(force, s.Orientation)

	w, saturated := cfg.Allocator.RotorVelocities(d.Moment, d.Thrust)
	d.Saturated = saturated
	for _, x := range w {
		if !finite(x) {
			return zero, d, errors.Wrap(ErrNonFinite, "rotor command")
		}
	}

	rt.PrevRDes = rDes
	rt.PrevT = s.T
	rt.Seeded = true
	rt.Yaw = yaw
	return w, d, nil
}

// Observer is notified after every computed cycle of an active controller.
type Observer interface {
	ObserveCycle(rotors []float64, d Diagnostics, elapsed time.Duration, err error)
}

// Controller holds the state and trajectory set by the driver and runs Step on demand.
// It is not safe for concurrent use.
type Controller struct {
	cfg   *Configuration
	rt    RuntimeState
	state VehicleState
	traj  Trajectory

	settings  Settings
	log       *zap.Logger
	observers []Observer
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSettings replaces DefaultSettings.
func WithSettings(st Settings) Option {
	return func(c *Controller) { c.settings = st }
}

// WithObserver adds an observer of every control cycle.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// New returns a dormant, unconfigured controller.
func New(opts ...Option) *Controller {
	c := &Controller{
		settings: DefaultSettings(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Orientation = mgl64.Ident3()
	c.rt.Yaw = c.settings.DefaultYaw
	return c
}

// Configure validates p and k and caches the allocation pseudo-inverse.
// It may succeed only once.
func (c *Controller) Configure(p VehicleParameters, k Gains) error {
	if c.cfg != nil {
		return ErrAlreadyConfigured
	}
	cfg, err := NewConfiguration(p, k, c.settings)
	if err != nil {
		c.log.Error("Configuration rejected", zap.Error(err))
		return err
	}

	active := c.rt.Active
	c.cfg = cfg
	c.rt = NewRuntimeState(cfg)
	c.rt.Active = active
	c.log.Info("Controller configured",
		zap.Int("rotors", cfg.Allocator.Rotors()),
		zap.Float64("mass", cfg.Params.Mass),
		zap.Float64("allocationCond", cfg.Allocator.ConditionNumber()),
		zap.Float64("timestep", cfg.Settings.Timestep),
		zap.Bool("measuredTimestep", cfg.Settings.MeasuredTimestep))
	return nil
}

// Configured reports whether Configure has succeeded.
func (c *Controller) Configured() bool {
	return c.cfg != nil
}

// Configuration returns the configuration, nil before Configure.
func (c *Controller) Configuration() *Configuration {
	return c.cfg
}

// SetState replaces the vehicle state snapshot.
func (c *Controller) SetState(s VehicleState) {
	c.state = s
}

// SetTrajectory replaces the trajectory point. The first call activates the controller.
func (c *Controller) SetTrajectory(tr Trajectory) {
	c.traj = tr
	if !c.rt.Active {
		c.rt.Active = true
		c.log.Info("Controller activated by first trajectory command",
			zap.Float64s("position", tr.Position[:]))
	}
}

// Active reports whether a trajectory command has ever been received.
func (c *Controller) Active() bool {
	return c.rt.Active
}

// Runtime returns a copy of the runtime state.
func (c *Controller) Runtime() RuntimeState {
	return c.rt
}

// ComputeRotorVelocities runs one control cycle and returns N non-negative rotor
// velocities, rad/s. Before the first trajectory command the result is all zeros.
// On a runtime fault the zero command is returned along with the error.
func (c *Controller) ComputeRotorVelocities() ([]float64, Diagnostics, error) {
	if c.cfg == nil {
		return nil, Diagnostics{}, ErrNotConfigured
	}
	if !c.rt.Active {
		return make([]float64, c.cfg.Allocator.Rotors()), Diagnostics{}, nil
	}

	start := time.Now()
	w, d, err := Step(c.cfg, &c.rt, c.state, c.traj)
	elapsed := time.Since(start)
	if err != nil {
		c.log.Warn("Control cycle faulted, commanding zero",
			zap.Error(err), zap.Float64("t", c.state.T), zap.Float64("forceNorm", d.Force.Len()))
	} else if d.Saturated > 0 {
		c.log.Debug("Rotor command saturated",
			zap.Int("saturated", d.Saturated), zap.Float64("thrust", d.Thrust))
	}
	for _, o := range c.observers {
		o.ObserveCycle(w, d, elapsed, err)
	}
	return w, d, err
}

