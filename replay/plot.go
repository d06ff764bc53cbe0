package replay

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/ChengChengYang0416/multirotor-geometry-control/telemetry"
)

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 4 * vg.Inch
)

func series(cycles []*telemetry.ControlData, f func(c *telemetry.ControlData) float64) plotter.XYs {
	pts := make(plotter.XYs, len(cycles))
	for i, c := range cycles {
		pts[i].X = c.T
		pts[i].Y = f(c)
	}
	return pts
}

func norm(a, b, c float64) float64 {
	return math.Sqrt(a*a + b*b + c*c)
}

// PlotErrors saves the tracking error norms against time to path.
// The image format follows the extension, e.g. .png or .svg.
func PlotErrors(cycles []*telemetry.ControlData, path string) error {
	if len(cycles) == 0 {
		return errors.New("nothing to plot")
	}
	p := plot.New()
	p.Title.Text = "Tracking errors"
	p.X.Label.Text = "t, s"
	err := plotutil.AddLines(p,
		"|eX|, m", series(cycles, func(c *telemetry.ControlData) float64 { return norm(c.EX1, c.EX2, c.EX3) }),
		"|eV|, m/s", series(cycles, func(c *telemetry.ControlData) float64 { return norm(c.EV1, c.EV2, c.EV3) }),
		"|eR|", series(cycles, func(c *telemetry.ControlData) float64 { return norm(c.ER1, c.ER2, c.ER3) }),
		"|eW|, rad/s", series(cycles, func(c *telemetry.ControlData) float64 { return norm(c.EW1, c.EW2, c.EW3) }),
	)
	if err != nil {
		return errors.Wrap(err, "plotting errors")
	}
	return errors.Wrapf(p.Save(plotWidth, plotHeight, path), "saving %s", path)
}

// PlotRotors saves the commanded rotor velocities against time to path.
func PlotRotors(cycles []*telemetry.ControlData, path string) error {
	if len(cycles) == 0 {
		return errors.New("nothing to plot")
	}
	p := plot.New()
	p.Title.Text = "Rotor commands"
	p.X.Label.Text = "t, s"
	p.Y.Label.Text = "rad/s"

	var lines []interface{}
	for i := range cycles[0].Rotors {
		lines = append(lines, fmt.Sprintf("rotor %d", i),
			series(cycles, func(c *telemetry.ControlData) float64 {
				if i < len(c.Rotors) {
					return c.Rotors[i]
				}
				return 0
			}))
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return errors.Wrap(err, "plotting rotors")
	}
	return errors.Wrapf(p.Save(plotWidth, plotHeight, path), "saving %s", path)
}
