// Package transporttest provides an in-process Socket.IO server for
// exercising the client transport.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"lilgames/internal/protocol"
)

// Server speaks just enough Engine.IO v4 / Socket.IO v5 to accept a
// client connection on the default namespace.
type Server struct {
	*httptest.Server

	// Reject, when set, answers the namespace CONNECT with a
	// CONNECT_ERROR carrying this message.
	Reject string

	// PingInterval and PingTimeout are advertised in the OPEN packet.
	PingInterval time.Duration
	PingTimeout  time.Duration

	handler func(*ServerConn)
	conns   chan *ServerConn
}

// NewServer starts a server that runs handler for every client once the
// namespace is connected.  handler may be nil; connections are then
// available through Accept.
func NewServer(handler func(*ServerConn)) *Server {
	s := &Server{
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		handler:      handler,
		conns:        make(chan *ServerConn, 4),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Endpoint is the websocket URL a client dials.
func (s *Server) Endpoint() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
}

// Accept returns the next connected client.
func (s *Server) Accept(ctx context.Context) (*ServerConn, error) {
	select {
	case c := <-s.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != protocol.EngineVersion {
		http.Error(w, "unsupported protocol version", http.StatusBadRequest)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &ServerConn{ws: ws, events: make(chan protocol.Event, 16), done: make(chan struct{})}
	if err := s.handshake(c); err != nil {
		ws.Close()
		return
	}
	go c.readLoop()

	if s.handler != nil {
		s.handler(c)
		return
	}
	s.conns <- c
}

func (s *Server) handshake(c *ServerConn) error {
	open, _ := json.Marshal(protocol.OpenInfo{
		SID:          "test-sid",
		Upgrades:     []string{},
		PingInterval: int(s.PingInterval / time.Millisecond),
		PingTimeout:  int(s.PingTimeout / time.Millisecond),
		MaxPayload:   1000000,
	})
	if err := c.write(append([]byte{protocol.EngineOpen}, open...)); err != nil {
		return err
	}

	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		return err
	}
	if string(frame) != string(protocol.Connect()) {
		return fmt.Errorf("expected CONNECT, got %q", frame)
	}

	if s.Reject != "" {
		body, _ := json.Marshal(map[string]string{"message": s.Reject})
		_ = c.write(append([]byte{protocol.EngineMessage, protocol.SocketConnectError}, body...))
		return errors.New("rejected")
	}
	return c.write([]byte(`40{"sid":"test-socket"}`))
}

// ServerConn is the server side of one client connection.
type ServerConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	events chan protocol.Event
	done   chan struct{}
	pongs  atomic.Int64
	left   atomic.Bool
}

// Emit sends an event to the client.
func (c *ServerConn) Emit(name string, payload any) error {
	frame, err := protocol.EncodeEvent(name, payload)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// EmitRaw sends an event whose argument is already encoded JSON.
func (c *ServerConn) EmitRaw(name, payload string) error {
	return c.write([]byte(fmt.Sprintf(`42[%q,%s]`, name, payload)))
}

// Send writes a raw Engine.IO frame.
func (c *ServerConn) Send(frame string) error { return c.write([]byte(frame)) }

// Ping sends an Engine.IO ping.
func (c *ServerConn) Ping() error { return c.write([]byte{protocol.EnginePing}) }

// Pongs is the number of pongs received so far.
func (c *ServerConn) Pongs() int64 { return c.pongs.Load() }

// Left reports whether the client sent a namespace DISCONNECT.
func (c *ServerConn) Left() bool { return c.left.Load() }

// Next returns the next event emitted by the client.
func (c *ServerConn) Next(ctx context.Context) (protocol.Event, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return protocol.Event{}, errors.New("client gone")
		}
		return ev, nil
	case <-ctx.Done():
		return protocol.Event{}, ctx.Err()
	}
}

// Done is closed when the client connection ends.
func (c *ServerConn) Done() <-chan struct{} { return c.done }

// Close sends an Engine.IO close packet and drops the connection.
func (c *ServerConn) Close() error {
	_ = c.write([]byte{protocol.EngineClose})
	return c.ws.Close()
}

func (c *ServerConn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *ServerConn) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		p, err := protocol.DecodePacket(frame)
		if err != nil {
			continue
		}
		switch {
		case p.Engine == protocol.EnginePong:
			c.pongs.Add(1)
		case p.IsEvent():
			if ev, err := protocol.DecodeEvent(p); err == nil {
				c.events <- ev
			}
		case p.Engine == protocol.EngineMessage && p.Socket == protocol.SocketDisconnect:
			c.left.Store(true)
		}
	}
}
