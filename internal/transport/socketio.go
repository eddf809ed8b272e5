package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ncerr "lilgames/internal/errors"
	"lilgames/internal/metrics"
	"lilgames/internal/protocol"
	"lilgames/util"
)

const (
	// DefaultHandshakeTimeout bounds the websocket upgrade plus the
	// Engine.IO and Socket.IO handshakes.
	DefaultHandshakeTimeout = 30 * time.Second

	writeTimeout = 10 * time.Second
	eventBuffer  = 16
)

// SocketDialer opens Socket.IO connections.
type SocketDialer struct {
	Dialer           Dialer
	HandshakeTimeout time.Duration
	Logger           *util.Logger
	Metrics          *metrics.Collector

	// OnOpen, when set, is called after the Engine.IO session is open
	// and the namespace CONNECT has been sent.
	OnOpen func(protocol.OpenInfo)
}

// Conn is an established Socket.IO session on the default namespace.
//
// A single reader goroutine answers server pings and queues events in
// arrival order; Next hands them out one at a time.  Emit may be called
// from any goroutine.
type Conn struct {
	ws      *websocket.Conn
	info    protocol.OpenInfo
	logger  *util.Logger
	metrics *metrics.Collector

	writeMu sync.Mutex

	events  chan protocol.Event
	done    chan struct{} // closed when the reader stops
	closing chan struct{} // closed by Close
	once    sync.Once

	errMu sync.Mutex
	err   error
}

// Connect dials endpoint (a ws:// or wss:// Socket.IO URL), completes
// the Engine.IO open and the namespace CONNECT, and starts the reader.
func (d *SocketDialer) Connect(ctx context.Context, endpoint string) (*Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	logger := d.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer Dialer = &TCPDialer{Timeout: timeout}
	if d.Dialer != nil {
		dialer = d.Dialer
	}
	wsd := websocket.Dialer{
		NetDialContext:   dialer.Dial,
		HandshakeTimeout: timeout,
	}

	d.Metrics.DialAttempt()
	logger.Debug("dialing %s", endpoint)

	ws, resp, err := wsd.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %s)", err, resp.Status)
		}
		return nil, ncerr.Wrap("dial", endpoint, err)
	}

	c := &Conn{
		ws:      ws,
		logger:  logger,
		metrics: d.Metrics,
		events:  make(chan protocol.Event, eventBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}

	// Unblock handshake reads when ctx ends.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	err = c.handshake(d.OnOpen)
	if !stop() || err != nil {
		ws.Close()
		if err == nil || ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ncerr.ErrTimeout, ctx.Err())
		}
		return nil, ncerr.Wrap("handshake", endpoint, err)
	}

	go c.readLoop()
	return c, nil
}

// handshake reads the Engine.IO OPEN packet, sends the Socket.IO
// CONNECT and waits for its acknowledgement.
func (c *Conn) handshake(onOpen func(protocol.OpenInfo)) error {
	p, err := c.readPacket()
	if err != nil {
		return err
	}
	info, err := protocol.ParseOpen(p)
	if err != nil {
		return err
	}
	c.info = info
	c.logger.Debug("engine open: sid=%s ping=%dms/%dms", info.SID, info.PingInterval, info.PingTimeout)

	if err := c.write(protocol.Connect()); err != nil {
		return err
	}
	if onOpen != nil {
		onOpen(info)
	}

	for {
		p, err := c.readPacket()
		if err != nil {
			return err
		}
		switch {
		case p.Engine == protocol.EnginePing:
			if err := c.write(protocol.Pong()); err != nil {
				return err
			}
		case p.Engine == protocol.EngineMessage && p.Socket == protocol.SocketConnect:
			c.logger.Debug("namespace %s connected", p.Namespace)
			return nil
		case p.Engine == protocol.EngineMessage && p.Socket == protocol.SocketConnectError:
			return fmt.Errorf("%w: %s", ncerr.ErrJoinRejected, p.ErrorMessage())
		case p.Engine == protocol.EngineClose:
			return ncerr.ErrServerClosed
		default:
			c.logger.Debug("ignoring packet %q during handshake", p.Engine)
		}
	}
}

// ── public API ───────────────────────────────────────────────────────

// Info returns the Engine.IO session parameters.
func (c *Conn) Info() protocol.OpenInfo { return c.info }

// Next returns the next event.  After the connection ends it yields a
// single protocol.EventDisconnect and then ErrNotConnected.
func (c *Conn) Next(ctx context.Context) (protocol.Event, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return protocol.Event{}, ncerr.ErrNotConnected
		}
		return ev, nil
	case <-ctx.Done():
		return protocol.Event{}, ctx.Err()
	}
}

// Emit sends payload as event name.
func (c *Conn) Emit(ctx context.Context, name string, payload any) error {
	select {
	case <-c.done:
		return ncerr.ErrNotConnected
	default:
	}

	frame, err := protocol.EncodeEvent(name, payload)
	if err != nil {
		return err
	}
	if err := c.writeContext(ctx, frame); err != nil {
		return ncerr.Wrap("write", c.ws.RemoteAddr().String(), err)
	}
	c.metrics.EventSent()
	c.logger.Debug("emit %s", frame)
	return nil
}

// Done is closed once the connection has stopped reading.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports why the reader stopped: nil for an orderly close by
// either side.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close leaves the namespace and closes the websocket.  It is safe to
// call more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closing)

		select {
		case <-c.done:
		default:
			_ = c.write(protocol.Disconnect())
			c.writeMu.Lock()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
		}

		err = c.ws.Close()
		<-c.done
	})
	return err
}

// ── reader ───────────────────────────────────────────────────────────

func (c *Conn) readLoop() {
	defer close(c.events)

	err := c.readPackets()

	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
	close(c.done)

	if err != nil {
		c.metrics.RecordError(err.Error())
		c.logger.Debug("reader stopped: %v", err)
	}

	select {
	case c.events <- protocol.Event{Name: protocol.EventDisconnect}:
	case <-c.closing:
	}
}

// readPackets runs until the connection ends.  A nil return means an
// orderly close.
func (c *Conn) readPackets() error {
	for {
		p, err := c.readPacket()
		if err != nil {
			select {
			case <-c.closing:
				return nil
			default:
			}
			if ncerr.IsProtocol(err) {
				c.logger.Debug("skipping packet: %v", err)
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return ncerr.Wrap("read", c.ws.RemoteAddr().String(), err)
		}

		switch p.Engine {
		case protocol.EnginePing:
			if err := c.write(protocol.Pong()); err != nil {
				return ncerr.Wrap("write", c.ws.RemoteAddr().String(), err)
			}
		case protocol.EngineClose:
			return nil
		case protocol.EngineMessage:
			stop, err := c.dispatch(p)
			if stop || err != nil {
				return err
			}
		}
	}
}

// dispatch handles one Socket.IO packet.  stop reports that the
// namespace was closed by the server.
func (c *Conn) dispatch(p protocol.Packet) (stop bool, err error) {
	if p.Namespace != "/" {
		return false, nil
	}

	switch p.Socket {
	case protocol.SocketEvent:
		ev, err := protocol.DecodeEvent(p)
		if err != nil {
			c.logger.Debug("skipping event: %v", err)
			return false, nil
		}
		c.metrics.EventReceived()
		select {
		case c.events <- ev:
		case <-c.closing:
			return true, nil
		}
	case protocol.SocketDisconnect:
		return true, nil
	case protocol.SocketConnectError:
		return true, fmt.Errorf("%w: %s", ncerr.ErrJoinRejected, p.ErrorMessage())
	default:
		c.logger.Debug("ignoring socket packet type %q", p.Socket)
	}
	return false, nil
}

func (c *Conn) readPacket() (protocol.Packet, error) {
	if live := c.info.Liveness(); live > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(live))
	}

	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Packet{}, err
	}
	c.metrics.BytesReceived(int64(len(frame)))
	return protocol.DecodePacket(frame)
}

// ── writer ───────────────────────────────────────────────────────────

func (c *Conn) write(frame []byte) error {
	return c.writeContext(context.Background(), frame)
}

func (c *Conn) writeContext(ctx context.Context, frame []byte) error {
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}
	c.metrics.BytesSent(int64(len(frame)))
	return nil
}
