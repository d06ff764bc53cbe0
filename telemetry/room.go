package telemetry

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Room relays every message received from one client to all clients.
// Publishers and subscribers are both just clients of the room.
type Room struct {
	// forward holds incoming messages that should be forwarded to the other clients.
	forward chan []byte
	// join is a channel for clients wishing to join the room.
	join chan *client
	// leave is a channel for clients wishing to leave the room.
	leave chan *client
	// clients holds all current clients in this room.
	clients map[*client]bool
	done    chan struct{}
	log     *zap.Logger
}

// NewRoom makes a new room that is ready to Run.
func NewRoom(log *zap.Logger) *Room {
	if log == nil {
		log = zap.NewNop()
	}
	return &Room{
		forward: make(chan []byte),
		join:    make(chan *client),
		leave:   make(chan *client),
		clients: make(map[*client]bool),
		done:    make(chan struct{}),
		log:     log,
	}
}

// Run serves the room until ctx is cancelled, then disconnects every client.
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Room closed", zap.Int("clients", len(r.clients)))
			for c := range r.clients {
				delete(r.clients, c)
				close(c.send)
			}
			return
		case c := <-r.join:
			r.clients[c] = true
			r.log.Debug("Client joined", zap.String("remote", c.socket.RemoteAddr().String()),
				zap.Int("clients", len(r.clients)))
		case c := <-r.leave:
			if r.clients[c] {
				delete(r.clients, c)
				close(c.send)
			}
			r.log.Debug("Client left", zap.Int("clients", len(r.clients)))
		case msg := <-r.forward:
			for c := range r.clients {
				select {
				case c.send <- msg:
				default:
					r.log.Debug("Client too slow, dropping message")
				}
			}
		}
	}
}

const (
	socketBufferSize  = 1024
	messageBufferSize = 10
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
		room:   r,
	}
	select {
	case r.join <- c:
	case <-r.done:
		socket.Close()
		return
	}
	defer func() {
		select {
		case r.leave <- c:
		case <-r.done:
		}
	}()
	go c.write()
	c.read()
}
