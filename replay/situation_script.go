package replay

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ChengChengYang0416/multirotor-geometry-control/geocontrol"
)

// Hover holds the vehicle level and motionless at Position for Duration
// seconds, commanded to stay where it is from Start on.
type Hover struct {
	Position mgl64.Vec3
	Start    float64 // s after the beginning; the controller is dormant before
	Duration float64
}

func (h *Hover) BeginTime() float64 { return 0 }
func (h *Hover) EndTime() float64   { return h.Duration }

func (h *Hover) State(t float64) (geocontrol.VehicleState, error) {
	if err := checkRange(h, t); err != nil {
		return geocontrol.VehicleState{}, err
	}
	return geocontrol.VehicleState{T: t, Position: h.Position, Orientation: mgl64.Ident3()}, nil
}

func (h *Hover) Trajectory(t float64) (geocontrol.Trajectory, bool, error) {
	if err := checkRange(h, t); err != nil {
		return geocontrol.Trajectory{}, false, err
	}
	if t < h.Start {
		return geocontrol.Trajectory{}, false, nil
	}
	return geocontrol.Trajectory{Position: h.Position}, true, nil
}

// Circle commands a level circle of Radius around Center at Speed, and
// reports the vehicle as lagging Lag seconds behind the command while
// yawed along its path.
type Circle struct {
	Center   mgl64.Vec3
	Radius   float64 // m
	Speed    float64 // m/s, positive counter-clockwise seen from above
	Lag      float64 // s
	Duration float64 // s
}

func (c *Circle) BeginTime() float64 { return 0 }
func (c *Circle) EndTime() float64   { return c.Duration }

// point returns position, velocity and acceleration on the circle at t.
func (c *Circle) point(t float64) (x, v, a mgl64.Vec3) {
	omega := c.Speed / c.Radius
	s, co := math.Sincos(omega * t)
	x = c.Center.Add(mgl64.Vec3{c.Radius * co, c.Radius * s, 0})
	v = mgl64.Vec3{-c.Speed * s, c.Speed * co, 0}
	a = mgl64.Vec3{-c.Speed * omega * co, -c.Speed * omega * s, 0}
	return
}

func (c *Circle) State(t float64) (geocontrol.VehicleState, error) {
	if err := checkRange(c, t); err != nil {
		return geocontrol.VehicleState{}, err
	}
	x, v, _ := c.point(t - c.Lag)
	r := mgl64.Rotate3DZ(geocontrol.Yaw(v[0], v[1]))
	return geocontrol.VehicleState{
		T:               t,
		Position:        x,
		Velocity:        r.Transpose().Mul3x1(v),
		Orientation:     r,
		AngularVelocity: mgl64.Vec3{0, 0, c.Speed / c.Radius},
	}, nil
}

func (c *Circle) Trajectory(t float64) (geocontrol.Trajectory, bool, error) {
	if err := checkRange(c, t); err != nil {
		return geocontrol.Trajectory{}, false, err
	}
	x, v, a := c.point(t)
	return geocontrol.Trajectory{Position: x, Velocity: v, Acceleration: a}, true, nil
}
