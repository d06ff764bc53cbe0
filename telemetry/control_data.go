// Package telemetry broadcasts controller diagnostics to websocket
// subscribers and exports control-loop metrics to Prometheus.
package telemetry

import (
	"math"

	"github.com/ChengChengYang0416/multirotor-geometry-control/geocontrol"
)

// ControlData is one control cycle as sent to subscribers.
type ControlData struct {
	T      float64 // Timestamp of the vehicle state, s
	Active bool    // Has the controller received a trajectory?
	Fault  string  `json:",omitempty"` // Error of the cycle, if any

	// Vehicle state
	X1, X2, X3     float64 // Position, world frame, m
	V1, V2, V3     float64 // Velocity, body frame, m/s
	E0, E1, E2, E3 float64 // Quaternion rotating body frame to world frame
	W1, W2, W3     float64 // Angular velocity, body frame, rad/s

	// Trajectory
	P1, P2, P3 float64 // Desired position, world frame, m
	D1, D2, D3 float64 // Desired velocity, world frame, m/s
	A1, A2, A3 float64 // Desired acceleration, world frame, m/s^2

	// Errors
	EX1, EX2, EX3 float64 // Position error, m
	EV1, EV2, EV3 float64 // Velocity error, m/s
	ER1, ER2, ER3 float64 // Attitude error
	EW1, EW2, EW3 float64 // Angular rate error, rad/s

	// Commands
	F1, F2, F3 float64   // Desired force, world frame, N
	M1, M2, M3 float64   // Moment, body frame, N m
	Thrust     float64   // Collective thrust, N
	Yaw        float64   // Desired yaw, °
	Dt         float64   // Timestep used, s
	Saturated  int       // Rotors clipped to zero
	Rotors     []float64 // Rotor angular velocities, rad/s

	// Attitude for display
	Pitch, Roll, Heading float64 // °
}

const deg = 180 / math.Pi

// NewControlData snapshots one cycle. The result shares no memory with its
// arguments so it can be handed to another goroutine.
func NewControlData(s geocontrol.VehicleState, tr geocontrol.Trajectory, active bool,
	rotors []float64, d geocontrol.Diagnostics, err error) *ControlData {
	q := geocontrol.QuaternionFromRotation(s.Orientation)
	roll, pitch, yaw := geocontrol.RollPitchYaw(s.Orientation)

	c := &ControlData{
		T:      s.T,
		Active: active,

		X1: s.Position[0], X2: s.Position[1], X3: s.Position[2],
		V1: s.Velocity[0], V2: s.Velocity[1], V3: s.Velocity[2],
		E0: q.W, E1: q.X, E2: q.Y, E3: q.Z,
		W1: s.AngularVelocity[0], W2: s.AngularVelocity[1], W3: s.AngularVelocity[2],

		P1: tr.Position[0], P2: tr.Position[1], P3: tr.Position[2],
		D1: tr.Velocity[0], D2: tr.Velocity[1], D3: tr.Velocity[2],
		A1: tr.Acceleration[0], A2: tr.Acceleration[1], A3: tr.Acceleration[2],

		EX1: d.PositionError[0], EX2: d.PositionError[1], EX3: d.PositionError[2],
		EV1: d.VelocityError[0], EV2: d.VelocityError[1], EV3: d.VelocityError[2],
		ER1: d.AttitudeError[0], ER2: d.AttitudeError[1], ER3: d.AttitudeError[2],
		EW1: d.AngularRateError[0], EW2: d.AngularRateError[1], EW3: d.AngularRateError[2],

		F1: d.Force[0], F2: d.Force[1], F3: d.Force[2],
		M1: d.Moment[0], M2: d.Moment[1], M3: d.Moment[2],
		Thrust:    d.Thrust,
		Yaw:       d.Yaw * deg,
		Dt:        d.Dt,
		Saturated: d.Saturated,
		Rotors:    append([]float64(nil), rotors...),

		Roll:    roll * deg,
		Pitch:   pitch * deg,
		Heading: yaw * deg,
	}
	if err != nil {
		c.Fault = err.Error()
	}
	return c
}
