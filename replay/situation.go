// Package replay drives a geocontrol.Controller from a recorded or scripted
// situation and hands every cycle to logging, plotting and telemetry sinks.
// It does not simulate the vehicle: the states fed to the controller are
// whatever the situation says they are.
package replay

import (
	"github.com/pkg/errors"

	"github.com/ChengChengYang0416/multirotor-geometry-control/geocontrol"
)

// ErrOutOfRange is returned for times outside of a situation.
var ErrOutOfRange = errors.New("replay: requested time is outside of the situation")

// Situation supplies what the controller sees at time t.
type Situation interface {
	BeginTime() float64
	EndTime() float64
	// State returns the vehicle state estimate at t.
	State(t float64) (geocontrol.VehicleState, error)
	// Trajectory returns the latest trajectory command at or before t;
	// ok is false while none has been issued yet.
	Trajectory(t float64) (tr geocontrol.Trajectory, ok bool, err error)
}

func checkRange(sit Situation, t float64) error {
	if t < sit.BeginTime()-geocontrol.Small || t > sit.EndTime()+geocontrol.Small {
		return errors.Wrapf(ErrOutOfRange, "t=%g not in [%g, %g]", t, sit.BeginTime(), sit.EndTime())
	}
	return nil
}
