// Package metrics keeps per-session counters for a game client: traffic
// on the socket and what happened in the game.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one session.
type Collector struct {
	dialAttempts   atomic.Int64
	eventsReceived atomic.Int64
	eventsSent     atomic.Int64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64
	movesSent      atomic.Int64
	badMoves       atomic.Int64
	verifications  atomic.Int64
	errorsTotal    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Transport ────────────────────────────────────────────────────────

// DialAttempt records one attempt to reach the server.
func (c *Collector) DialAttempt() {
	if c == nil {
		return
	}
	c.dialAttempts.Add(1)
}

// EventReceived records a decoded inbound event.
func (c *Collector) EventReceived() {
	if c == nil {
		return
	}
	c.eventsReceived.Add(1)
}

// EventSent records an emitted event.
func (c *Collector) EventSent() {
	if c == nil {
		return
	}
	c.eventsSent.Add(1)
}

// BytesReceived records n bytes read from the socket.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the socket.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Game ─────────────────────────────────────────────────────────────

// MoveSent records a move submitted by the local player.
func (c *Collector) MoveSent() {
	if c == nil {
		return
	}
	c.movesSent.Add(1)
}

// BadMove records a move the server rejected.
func (c *Collector) BadMove() {
	if c == nil {
		return
	}
	c.badMoves.Add(1)
}

// Verification records an anti-cheat state echo.
func (c *Collector) Verification() {
	if c == nil {
		return
	}
	c.verifications.Add(1)
}

// MovesSent returns the number of moves submitted.
func (c *Collector) MovesSent() int64 {
	if c == nil {
		return 0
	}
	return c.movesSent.Load()
}

// BadMoves returns the number of rejected moves.
func (c *Collector) BadMoves() int64 {
	if c == nil {
		return 0
	}
	return c.badMoves.Load()
}

// ── Errors ───────────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	DialAttempts     int64  `json:"dial_attempts"`
	EventsReceived   int64  `json:"events_received"`
	EventsSent       int64  `json:"events_sent"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	MovesSent        int64  `json:"moves_sent"`
	BadMoves         int64  `json:"bad_moves"`
	Verifications    int64  `json:"verifications"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		DialAttempts:   c.dialAttempts.Load(),
		EventsReceived: c.eventsReceived.Load(),
		EventsSent:     c.eventsSent.Load(),
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		MovesSent:      c.movesSent.Load(),
		BadMoves:       c.badMoves.Load(),
		Verifications:  c.verifications.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
