// Package geocontrol implements a geometric position controller for multirotors,
// following T. Lee et al., "Control of complex maneuvers for a quadrotor UAV
// using geometric methods on SE(3)".
//
// World frame is inertial with 3 up; body frame 3 is along the rotor axis.
// All attitudes are carried as rotation matrices rotating body frame into world frame.
package geocontrol

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/skelterjohn/go.matrix"
)

const (
	Pi    = math.Pi
	Small = 1e-9

	DefaultTimestep           = 0.02 // Nominal control period used for differentiating R_des, s
	DefaultMinHeadingSpeed    = 0.1  // Below this horizontal speed the commanded heading is held, m/s
	DefaultMinForce           = 1e-6 // Below this the desired force has no direction, N
	DefaultMaxConditionNumber = 1e8  // Largest accepted condition number of the allocation matrix
)

// E3 is the world (and body) 3-axis unit vector, pointing up.
var E3 = mgl64.Vec3{0, 0, 1}

// Rotor describes the placement and thrust model of a single rotor.
// Thrust is ForceConstant*w^2 along body 3, drag moment is MomentConstant times the thrust.
type Rotor struct {
	Angle          float64 // Arm angle from body 1 toward body 2, rad
	ArmLength      float64 // Distance from the center of mass, m
	ForceConstant  float64 // N/(rad/s)^2
	MomentConstant float64 // m
	Direction      int     // +1 counter-clockwise, -1 clockwise
}

// VehicleParameters holds the physical description of the aircraft.
// It is immutable once handed to Configure.
type VehicleParameters struct {
	Mass    float64    // kg
	Gravity float64    // m/s^2
	Inertia mgl64.Mat3 // Inertia estimate, body frame, kg m^2
	Rotors  []Rotor

	// Allocation optionally overrides the 4xN matrix otherwise derived from Rotors.
	Allocation *matrix.DenseMatrix
}

// Gains are diagonal gain matrices, applied element-wise.
type Gains struct {
	Position    mgl64.Vec3
	Velocity    mgl64.Vec3
	Attitude    mgl64.Vec3
	AngularRate mgl64.Vec3
}

// Settings tune the runtime behavior of the controller rather than the control law.
type Settings struct {
	Timestep           float64 // Nominal control period, s
	MeasuredTimestep   bool    // Differentiate over VehicleState.T deltas when they are positive
	MinHeadingSpeed    float64 // m/s
	DefaultYaw         float64 // Heading used until the trajectory first moves, rad
	MinForce           float64 // N
	MaxConditionNumber float64
}

// DefaultSettings returns the settings used when none are supplied.
func DefaultSettings() Settings {
	return Settings{
		Timestep:           DefaultTimestep,
		MinHeadingSpeed:    DefaultMinHeadingSpeed,
		MinForce:           DefaultMinForce,
		MaxConditionNumber: DefaultMaxConditionNumber,
	}
}

// VehicleState is a snapshot of the estimated vehicle state.
type VehicleState struct {
	T               float64    // Time of the estimate, s
	Position        mgl64.Vec3 // World frame, m
	Velocity        mgl64.Vec3 // Body frame, m/s
	Orientation     mgl64.Mat3 // Rotates body frame into world frame
	AngularVelocity mgl64.Vec3 // Body frame, rad/s
}

// Trajectory is a single commanded trajectory point, all world frame.
type Trajectory struct {
	Position     mgl64.Vec3
	Velocity     mgl64.Vec3
	Acceleration mgl64.Vec3
}

// Diagnostics describes one control cycle. Nothing in the control law reads it back.
type Diagnostics struct {
	PositionError    mgl64.Vec3
	VelocityError    mgl64.Vec3
	AttitudeError    mgl64.Vec3
	AngularRateError mgl64.Vec3

	Force     mgl64.Vec3 // Desired force, world frame, N
	Moment    mgl64.Vec3 // Desired moment, body frame, N m
	Thrust    float64    // N
	Yaw       float64    // Commanded heading, rad
	Dt        float64    // Timestep used for differentiating R_des, s
	Saturated int        // Number of rotors whose squared velocity was clipped to zero
}
