// Package protocol implements the wire format spoken with the game
// server: Socket.IO v5 packets carried inside Engine.IO v4 websocket
// frames, and the JSON payloads the game server exchanges on top of
// them.
//
// Only the subset the client needs is implemented.  Binary packets and
// acknowledgements are recognised and skipped.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	ncerr "lilgames/internal/errors"
)

// Engine.IO packet types.
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
	EngineUpgrade byte = '5'
	EngineNoop    byte = '6'
)

// Socket.IO packet types, carried in an Engine.IO message.
const (
	SocketConnect      byte = '0'
	SocketDisconnect   byte = '1'
	SocketEvent        byte = '2'
	SocketAck          byte = '3'
	SocketConnectError byte = '4'
	SocketBinaryEvent  byte = '5'
	SocketBinaryAck    byte = '6'
)

// EngineVersion is the Engine.IO protocol revision sent in the query.
const EngineVersion = "4"

// Packet is one decoded websocket text frame.
type Packet struct {
	Engine    byte
	Socket    byte   // only set when Engine == EngineMessage
	Namespace string // "/" unless the packet names another one
	Data      json.RawMessage
}

// IsEvent reports whether p carries a Socket.IO event.
func (p Packet) IsEvent() bool {
	return p.Engine == EngineMessage && p.Socket == SocketEvent
}

// ErrorMessage extracts the reason from a CONNECT_ERROR packet.
func (p Packet) ErrorMessage() string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.Data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return string(p.Data)
}

// DecodePacket parses a websocket text frame.
func DecodePacket(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, ncerr.Protocol(frame, fmt.Errorf("empty packet"))
	}

	p := Packet{Engine: frame[0], Namespace: "/"}
	rest := frame[1:]

	if p.Engine < EngineOpen || p.Engine > EngineNoop {
		return Packet{}, ncerr.Protocol(frame, fmt.Errorf("unknown engine packet type %q", p.Engine))
	}
	if p.Engine != EngineMessage {
		p.Data = rest
		return p, nil
	}

	if len(rest) == 0 {
		return Packet{}, ncerr.Protocol(frame, fmt.Errorf("message packet without socket type"))
	}
	p.Socket = rest[0]
	rest = rest[1:]

	if p.Socket == SocketBinaryEvent || p.Socket == SocketBinaryAck {
		// "<attachments>-" prefix; the attachments themselves are not read.
		if i := bytes.IndexByte(rest, '-'); i >= 0 {
			rest = rest[i+1:]
		}
	}

	if len(rest) > 0 && rest[0] == '/' {
		if i := bytes.IndexByte(rest, ','); i >= 0 {
			p.Namespace = string(rest[:i])
			rest = rest[i+1:]
		} else {
			p.Namespace = string(rest)
			rest = nil
		}
	}

	if p.Socket != SocketConnect && p.Socket != SocketConnectError {
		// Optional ack id.
		for len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
			rest = rest[1:]
		}
	}

	p.Data = rest
	return p, nil
}

// ── Engine.IO open ───────────────────────────────────────────────────

// OpenInfo is the payload of the Engine.IO OPEN packet.
type OpenInfo struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // milliseconds
	MaxPayload   int      `json:"maxPayload"`
}

// ParseOpen decodes an OPEN packet's data.
func ParseOpen(p Packet) (OpenInfo, error) {
	if p.Engine != EngineOpen {
		return OpenInfo{}, ncerr.Protocol(p.Data, fmt.Errorf("expected open packet, got type %q", p.Engine))
	}
	var info OpenInfo
	if err := json.Unmarshal(p.Data, &info); err != nil {
		return OpenInfo{}, ncerr.Protocol(p.Data, fmt.Errorf("decode open: %w", err))
	}
	return info, nil
}

// Liveness is how long the connection may stay silent before the
// server is considered gone: one ping interval plus the ping timeout.
func (o OpenInfo) Liveness() time.Duration {
	return time.Duration(o.PingInterval+o.PingTimeout) * time.Millisecond
}

// ── Encoding ─────────────────────────────────────────────────────────

// Pong is the reply to an Engine.IO ping.
func Pong() []byte { return []byte{EnginePong} }

// Connect is the Socket.IO CONNECT packet for the default namespace.
func Connect() []byte { return []byte{EngineMessage, SocketConnect} }

// Disconnect is the Socket.IO DISCONNECT packet for the default namespace.
func Disconnect() []byte { return []byte{EngineMessage, SocketDisconnect} }

// EncodeEvent builds an EVENT packet emitting payload under name.
func EncodeEvent(name string, payload any) ([]byte, error) {
	body, err := json.Marshal([]any{name, payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", name, err)
	}
	return append([]byte{EngineMessage, SocketEvent}, body...), nil
}

// ── Events ───────────────────────────────────────────────────────────

// Event is an inbound named event with its first argument.
type Event struct {
	Name string
	Data json.RawMessage // nil when the event carries no argument
}

// DecodeEvent extracts the event name and first argument from an EVENT
// packet.
func DecodeEvent(p Packet) (Event, error) {
	if !p.IsEvent() {
		return Event{}, ncerr.Protocol(p.Data, fmt.Errorf("not an event packet"))
	}

	var args []json.RawMessage
	if err := json.Unmarshal(p.Data, &args); err != nil {
		return Event{}, ncerr.Protocol(p.Data, fmt.Errorf("decode event: %w", err))
	}
	if len(args) == 0 {
		return Event{}, ncerr.Protocol(p.Data, fmt.Errorf("event without name"))
	}

	var ev Event
	if err := json.Unmarshal(args[0], &ev.Name); err != nil {
		return Event{}, ncerr.Protocol(p.Data, fmt.Errorf("event name: %w", err))
	}
	if len(args) > 1 {
		ev.Data = args[1]
	}
	return ev, nil
}
