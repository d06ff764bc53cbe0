package replay

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ChengChengYang0416/multirotor-geometry-control/telemetry"
)

// Sink receives every control cycle of a replay.
// telemetry.Publisher is a Sink.
type Sink interface {
	Publish(*telemetry.ControlData) error
}

// logHeader names columns like SituationFromFile does, so a log can be
// replayed. TValid is the controller's activation flag.
var logHeader = []string{
	"T", "TValid", "Fault",
	"X1", "X2", "X3", "V1", "V2", "V3", "E0", "E1", "E2", "E3", "W1", "W2", "W3",
	"P1", "P2", "P3", "D1", "D2", "D3", "A1", "A2", "A3",
	"EX1", "EX2", "EX3", "EV1", "EV2", "EV3", "ER1", "ER2", "ER3", "EW1", "EW2", "EW3",
	"F1", "F2", "F3", "M1", "M2", "M3", "Thrust", "Yaw", "Dt", "Saturated",
}

// faultReplacer keeps error messages within one CSV field.
var faultReplacer = strings.NewReplacer(",", ";", "\"", "'", "\n", " ")

// CSVLogger writes one line per control cycle, followed by one column per rotor.
type CSVLogger struct {
	w      io.Writer
	f      *os.File
	rotors int
}

// NewCSVLogger creates fn and writes the header for a vehicle with n rotors.
func NewCSVLogger(fn string, n int) (*CSVLogger, error) {
	f, err := os.Create(fn)
	if err != nil {
		return nil, errors.Wrap(err, "creating log")
	}
	l, err := NewCSVWriter(f, n)
	if err != nil {
		f.Close()
		return nil, err
	}
	l.f = f
	return l, nil
}

// NewCSVWriter is NewCSVLogger for an arbitrary writer.
func NewCSVWriter(w io.Writer, n int) (*CSVLogger, error) {
	h := append([]string(nil), logHeader...)
	for i := 0; i < n; i++ {
		h = append(h, fmt.Sprintf("R%d", i))
	}
	if _, err := fmt.Fprint(w, strings.Join(h, ","), "\n"); err != nil {
		return nil, errors.Wrap(err, "writing log header")
	}
	return &CSVLogger{w: w, rotors: n}, nil
}

func (l *CSVLogger) Publish(c *telemetry.ControlData) error {
	if len(c.Rotors) != l.rotors {
		return errors.Errorf("log has %d rotor columns, cycle has %d rotors", l.rotors, len(c.Rotors))
	}
	active := 0
	if c.Active {
		active = 1
	}
	vals := []float64{
		c.X1, c.X2, c.X3, c.V1, c.V2, c.V3, c.E0, c.E1, c.E2, c.E3, c.W1, c.W2, c.W3,
		c.P1, c.P2, c.P3, c.D1, c.D2, c.D3, c.A1, c.A2, c.A3,
		c.EX1, c.EX2, c.EX3, c.EV1, c.EV2, c.EV3, c.ER1, c.ER2, c.ER3, c.EW1, c.EW2, c.EW3,
		c.F1, c.F2, c.F3, c.M1, c.M2, c.M3, c.Thrust, c.Yaw, c.Dt,
	}

	var b strings.Builder
	b.WriteString(strconv.FormatFloat(c.T, 'f', 6, 64))
	b.WriteString("," + strconv.Itoa(active))
	b.WriteString("," + faultReplacer.Replace(c.Fault))
	for _, v := range vals {
		b.WriteString("," + strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteString("," + strconv.Itoa(c.Saturated))
	for _, w := range c.Rotors {
		b.WriteString("," + strconv.FormatFloat(w, 'g', -1, 64))
	}
	b.WriteString("\n")
	_, err := io.WriteString(l.w, b.String())
	return errors.Wrap(err, "writing log")
}

// Close closes the file opened by NewCSVLogger.
func (l *CSVLogger) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}
