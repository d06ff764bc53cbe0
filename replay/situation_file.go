package replay

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/westphae/quaternion"

	"github.com/ChengChengYang0416/multirotor-geometry-control/geocontrol"
)

// SituationFromFile is a recorded flight: state estimates and trajectory
// commands, one row per timestamp. Recognized columns are
//
//	T                 timestamp, s (required, strictly increasing)
//	X1 X2 X3          position, world frame, m
//	V1 V2 V3          velocity, body frame, m/s
//	E0 E1 E2 E3       quaternion rotating body frame to world frame
//	W1 W2 W3          angular velocity, body frame, rad/s
//	TValid            nonzero when the row carries a trajectory command
//	P1 P2 P3          desired position, m
//	D1 D2 D3          desired velocity, m/s
//	A1 A2 A3          desired acceleration, m/s^2
//
// Missing columns read as zero, a missing quaternion as level, and a missing
// TValid column makes every row a command. Other columns are ignored.
type SituationFromFile struct {
	t         []float64
	x, v, w   []mgl64.Vec3
	e         []quaternion.Quaternion
	p, d, a   []mgl64.Vec3
	lastValid []int // index of the latest command row at or before each row, -1 if none
}

var situationColumns = []string{
	"T", "X1", "X2", "X3", "V1", "V2", "V3", "E0", "E1", "E2", "E3", "W1", "W2", "W3",
	"TValid", "P1", "P2", "P3", "D1", "D2", "D3", "A1", "A2", "A3",
}

// NewSituationFromFile reads a situation from a CSV file.
func NewSituationFromFile(fn string) (*SituationFromFile, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrap(err, "opening situation")
	}
	defer f.Close()
	sit, err := ReadSituation(bufio.NewReader(f))
	return sit, errors.Wrapf(err, "reading %s", fn)
}

// ReadSituation parses a situation in the CSV format of SituationFromFile.
func ReadSituation(in io.Reader) (*SituationFromFile, error) {
	r := csv.NewReader(in)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	fields := make(map[string]int)
	for i, k := range header {
		fields[strings.TrimSpace(k)] = i
	}
	if _, ok := fields["T"]; !ok {
		return nil, errors.New("no T column")
	}
	_, hasValid := fields["TValid"]
	_, hasE0 := fields["E0"]

	sit := new(SituationFromFile)
	last := -1
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}

		vals := make(map[string]float64, len(situationColumns))
		for _, name := range situationColumns {
			i, ok := fields[name]
			if !ok {
				continue
			}
			if vals[name], err = strconv.ParseFloat(strings.TrimSpace(rec[i]), 64); err != nil {
				return nil, errors.Wrapf(err, "line %d, column %s", line, name)
			}
		}
		col := func(name string) float64 {
			return vals[name]
		}
		vec := func(a, b, c string) mgl64.Vec3 {
			return mgl64.Vec3{col(a), col(b), col(c)}
		}

		t := col("T")
		if n := len(sit.t); n > 0 && t <= sit.t[n-1] {
			return nil, errors.Errorf("line %d: time %g does not increase", line, t)
		}
		q := quaternion.Quaternion{W: col("E0"), X: col("E1"), Y: col("E2"), Z: col("E3")}
		if !hasE0 || q.W*q.W+q.X*q.X+q.Y*q.Y+q.Z*q.Z < geocontrol.Small {
			q = quaternion.Quaternion{W: 1}
		}
		if !hasValid || col("TValid") != 0 {
			last = len(sit.t)
		}

		sit.t = append(sit.t, t)
		sit.x = append(sit.x, vec("X1", "X2", "X3"))
		sit.v = append(sit.v, vec("V1", "V2", "V3"))
		sit.w = append(sit.w, vec("W1", "W2", "W3"))
		sit.e = append(sit.e, quaternion.Unit(q))
		sit.p = append(sit.p, vec("P1", "P2", "P3"))
		sit.d = append(sit.d, vec("D1", "D2", "D3"))
		sit.a = append(sit.a, vec("A1", "A2", "A3"))
		sit.lastValid = append(sit.lastValid, last)
	}
	if len(sit.t) == 0 {
		return nil, errors.New("no records")
	}
	return sit, nil
}

// BeginTime returns the time stamp when the records begin
func (s *SituationFromFile) BeginTime() float64 {
	return s.t[0]
}

// EndTime returns the time stamp of the last record
func (s *SituationFromFile) EndTime() float64 {
	return s.t[len(s.t)-1]
}

// State linearly interpolates the recorded state estimates.
// The quaternion is blended and renormalized.
func (s *SituationFromFile) State(t float64) (geocontrol.VehicleState, error) {
	if err := checkRange(s, t); err != nil {
		return geocontrol.VehicleState{}, err
	}
	ix := sort.SearchFloat64s(s.t, t)
	if ix >= len(s.t) {
		ix = len(s.t) - 1
	}
	if ix == 0 || s.t[ix] == t {
		return s.row(ix), nil
	}

	// weight of the earlier record
	f := (s.t[ix] - t) / (s.t[ix] - s.t[ix-1])
	lerp := func(a []mgl64.Vec3) mgl64.Vec3 {
		return a[ix-1].Mul(f).Add(a[ix].Mul(1 - f))
	}
	q0, q1 := s.e[ix-1], s.e[ix]
	if q0.W*q1.W+q0.X*q1.X+q0.Y*q1.Y+q0.Z*q1.Z < 0 {
		q1 = quaternion.Quaternion{W: -q1.W, X: -q1.X, Y: -q1.Y, Z: -q1.Z}
	}
	q := quaternion.Quaternion{
		W: f*q0.W + (1-f)*q1.W,
		X: f*q0.X + (1-f)*q1.X,
		Y: f*q0.Y + (1-f)*q1.Y,
		Z: f*q0.Z + (1-f)*q1.Z,
	}
	return geocontrol.VehicleState{
		T:               t,
		Position:        lerp(s.x),
		Velocity:        lerp(s.v),
		Orientation:     geocontrol.RotationFromQuaternion(q),
		AngularVelocity: lerp(s.w),
	}, nil
}

func (s *SituationFromFile) row(i int) geocontrol.VehicleState {
	return geocontrol.VehicleState{
		T:               s.t[i],
		Position:        s.x[i],
		Velocity:        s.v[i],
		Orientation:     geocontrol.RotationFromQuaternion(s.e[i]),
		AngularVelocity: s.w[i],
	}
}

// Trajectory holds the latest command row at or before t.
func (s *SituationFromFile) Trajectory(t float64) (geocontrol.Trajectory, bool, error) {
	if err := checkRange(s, t); err != nil {
		return geocontrol.Trajectory{}, false, err
	}
	i := sort.Search(len(s.t), func(i int) bool { return s.t[i] > t+geocontrol.Small }) - 1
	if i < 0 {
		i = 0
	}
	j := s.lastValid[i]
	if j < 0 {
		return geocontrol.Trajectory{}, false, nil
	}
	return geocontrol.Trajectory{Position: s.p[j], Velocity: s.d[j], Acceleration: s.a[j]}, true, nil
}
