package replay

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ChengChengYang0416/multirotor-geometry-control/geocontrol"
	"github.com/ChengChengYang0416/multirotor-geometry-control/telemetry"
)

// Summary describes a finished replay.
type Summary struct {
	Cycles           int     // Control cycles run, dormant ones included
	ActiveCycles     int     // Cycles after the first trajectory command
	Faults           int     // Cycles that fell back to the zero command
	SaturatedCycles  int     // Cycles with at least one rotor clipped
	MaxPositionError float64 // m
	MaxAttitudeError float64
}

// Run steps ctrl through sit every dt seconds, from its beginning to its end,
// and hands each cycle to the sinks. Controller faults are counted and the
// replay goes on; situation and sink errors stop it.
func Run(ctx context.Context, sit Situation, ctrl *geocontrol.Controller, dt float64,
	log *zap.Logger, sinks ...Sink) (sum Summary, err error) {
	if !(dt > 0) {
		return sum, errors.Wrapf(geocontrol.ErrBadTimestep, "replay step %g", dt)
	}
	if !ctrl.Configured() {
		return sum, geocontrol.ErrNotConfigured
	}
	if log == nil {
		log = zap.NewNop()
	}

	t0, t1 := sit.BeginTime(), sit.EndTime()
	log.Info("Running replay", zap.Float64("begin", t0), zap.Float64("end", t1), zap.Float64("dt", dt))
	for n := 0; ; n++ {
		t := t0 + float64(n)*dt
		if t > t1+geocontrol.Small {
			break
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		s, err := sit.State(t)
		if err != nil {
			return sum, errors.Wrapf(err, "state at %g", t)
		}
		tr, ok, err := sit.Trajectory(t)
		if err != nil {
			return sum, errors.Wrapf(err, "trajectory at %g", t)
		}
		ctrl.SetState(s)
		if ok {
			ctrl.SetTrajectory(tr)
		}

		w, d, cerr := ctrl.ComputeRotorVelocities()
		sum.Cycles++
		if ctrl.Active() {
			sum.ActiveCycles++
		}
		if cerr != nil {
			sum.Faults++
			log.Debug("Cycle faulted", zap.Float64("t", t), zap.Error(cerr))
		}
		if d.Saturated > 0 {
			sum.SaturatedCycles++
		}
		sum.MaxPositionError = math.Max(sum.MaxPositionError, d.PositionError.Len())
		sum.MaxAttitudeError = math.Max(sum.MaxAttitudeError, d.AttitudeError.Len())

		c := telemetry.NewControlData(s, tr, ctrl.Active(), w, d, cerr)
		for _, sink := range sinks {
			if err := sink.Publish(c); err != nil {
				return sum, errors.Wrapf(err, "sink at %g", t)
			}
		}
	}
	log.Info("Replay finished",
		zap.Int("cycles", sum.Cycles),
		zap.Int("activeCycles", sum.ActiveCycles),
		zap.Int("faults", sum.Faults),
		zap.Int("saturatedCycles", sum.SaturatedCycles),
		zap.Float64("maxPositionError", sum.MaxPositionError))
	return sum, nil
}

// Recorder keeps every cycle in memory, e.g. for plotting.
type Recorder struct {
	Cycles []*telemetry.ControlData
}

func (r *Recorder) Publish(c *telemetry.ControlData) error {
	r.Cycles = append(r.Cycles, c)
	return nil
}
