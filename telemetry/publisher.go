package telemetry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Publisher sends ControlData snapshots to a Room.
type Publisher struct {
	mu sync.Mutex
	c  *websocket.Conn
}

// Dial connects to the room at url, e.g. ws://localhost:8000/geocontrol.
func Dial(ctx context.Context, url string) (*Publisher, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", url)
	}
	return &Publisher{c: c}, nil
}

// Publish sends one snapshot.
func (p *Publisher) Publish(data *ControlData) error {
	msg, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encoding control data")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Wrap(p.c.WriteMessage(websocket.TextMessage, msg), "publishing control data")
}

// Close says goodbye to the room and closes the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	// the room may already be gone, so a failed close message is not an error
	_ = p.c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return p.c.Close()
}
