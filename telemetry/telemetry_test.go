package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ChengChengYang0416/multirotor-geometry-control/geocontrol"
)

func TestVarianceAccumulator(t *testing.T) {
	acc := NewVarianceAccumulator(1, 0.5)
	n, m, v := acc.Add(3)
	assert.InDelta(t, 1.5, n, 1e-12)
	assert.InDelta(t, 2, m, 1e-12)
	assert.InDelta(t, 1, v, 1e-12)

	// a constant signal converges to its value with no variance
	acc = NewVarianceAccumulator(0, 0.9)
	for i := 0; i < 500; i++ {
		_, m, v = acc.Add(4)
	}
	assert.InDelta(t, 4, m, 1e-9)
	assert.InDelta(t, 0, v, 1e-9)
}

func TestNewControlData(t *testing.T) {
	s := geocontrol.VehicleState{
		T:           1.5,
		Position:    mgl64.Vec3{1, 2, 3},
		Orientation: mgl64.Rotate3DZ(math.Pi / 2),
	}
	rotors := []float64{1, 2, 3, 4}
	d := geocontrol.Diagnostics{Thrust: 9.81, Yaw: math.Pi / 2, Saturated: 1}
	c := NewControlData(s, geocontrol.Trajectory{Velocity: mgl64.Vec3{0, 1, 0}}, true, rotors, d,
		errors.Wrap(geocontrol.ErrDegenerateForce, "cycle"))

	assert.Equal(t, 1.5, c.T)
	assert.True(t, c.Active)
	assert.Equal(t, 3.0, c.X3)
	assert.Equal(t, 1.0, c.D2)
	assert.InDelta(t, 90, c.Yaw, 1e-9)
	assert.InDelta(t, 90, c.Heading, 1e-9)
	assert.InDelta(t, math.Cos(math.Pi/4), c.E0, 1e-9)
	assert.InDelta(t, math.Sin(math.Pi/4), c.E3, 1e-9)
	assert.Equal(t, 1, c.Saturated)
	assert.Contains(t, c.Fault, "no direction")

	// the snapshot must not alias the controller's output
	rotors[0] = 100
	assert.Equal(t, 1.0, c.Rotors[0])
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.ObserveCycle([]float64{400, 410, 0, 420}, geocontrol.Diagnostics{Thrust: 9.81, Saturated: 1}, time.Millisecond, nil)
	m.ObserveCycle([]float64{0, 0, 0, 0}, geocontrol.Diagnostics{}, time.Millisecond,
		errors.Wrap(geocontrol.ErrDegenerateForce, "x"))
	m.ObserveCycle([]float64{0, 0, 0, 0}, geocontrol.Diagnostics{}, time.Millisecond,
		errors.Wrap(geocontrol.ErrNonFinite, "x"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("degenerate_force")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("non_finite")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.saturated))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.rotors.WithLabelValues("3")))
	assert.InDelta(t, 1e-3, testutil.ToFloat64(m.mean), 1e-12)
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "geocontrol_cycles_total 3")
}

func TestFaultReason(t *testing.T) {
	assert.Equal(t, "bad_timestep", FaultReason(errors.Wrap(geocontrol.ErrBadTimestep, "x")))
	assert.Equal(t, "degenerate_heading", FaultReason(geocontrol.ErrDegenerateHeading))
	assert.Equal(t, "other", FaultReason(errors.New("boom")))
}

func TestRoomRelaysPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	room := NewRoom(zaptest.NewLogger(t))
	go room.Run(ctx)
	srv := httptest.NewServer(room)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	sub, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan []byte, 100)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := sub.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			msgs <- msg
		}
	}()

	pub, err := Dial(ctx, url)
	require.NoError(t, err)
	defer pub.Close()

	// the subscriber may join after the first publications
	want := &ControlData{T: 2.5, Thrust: 9.81, Rotors: []float64{1, 2, 3, 4}}
	var got ControlData
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	timeout := time.After(5 * time.Second)
wait:
	for {
		select {
		case msg := <-msgs:
			require.NoError(t, json.Unmarshal(msg, &got))
			break wait
		case <-tick.C:
			require.NoError(t, pub.Publish(want))
		case <-timeout:
			t.Fatal("subscriber never received a message")
		}
	}
	assert.Equal(t, *want, got)

	// closing the room disconnects subscribers
	cancel()
	select {
	case <-readErr:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber still connected after the room closed")
	}
}
