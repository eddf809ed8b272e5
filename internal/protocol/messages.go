package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	ncerr "lilgames/internal/errors"
	"lilgames/internal/game"
)

// Event names outside the room channel.
const (
	EventJoin            = "join"
	EventInitialGameData = "initialGameData"
	EventError           = "error"

	// EventDisconnect is never sent by the server; the transport
	// delivers it once when the connection ends.
	EventDisconnect = "disconnect"
)

// Control messages carried by the room channel's {message: ...} variant.
const (
	MsgVerifyGameData  = "verifyGameData"
	MsgBadMove         = "badMove"
	MsgInvalidGameData = "invalidGameData"
)

// ── Outbound ─────────────────────────────────────────────────────────

// JoinMessage asks the server to seat the player in a room.
type JoinMessage struct {
	GameName string `json:"gameName"`
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

// Move is a single move as understood by the server.
type Move struct {
	Player   game.PlayerType `json:"player"`
	Position int             `json:"position"`
}

// MoveMessage is emitted on the room channel when the user plays.
type MoveMessage struct {
	Move Move `json:"move"`
}

// VerifyMessage echoes the cached game state back to the server.  A nil
// state is sent as null.
type VerifyMessage struct {
	VerifyGameData json.RawMessage `json:"verifyGameData"`
}

// ── Inbound room events ──────────────────────────────────────────────

// ErrUnknownShape is returned for room payloads that match none of the
// known variants.  Callers ignore such payloads.
var ErrUnknownShape = errors.New("unknown room event shape")

// RoomEvent is one of InitialGameData, GameData or ControlMessage.
type RoomEvent interface {
	roomEvent()
}

// InitialGameData is the handshake delivered on the room channel.
type InitialGameData struct {
	Handshake Handshake
}

// GameData is an authoritative state push.
type GameData struct {
	View GameView
}

// ControlMessage is a short server instruction such as "badMove".
type ControlMessage struct {
	Text string
}

func (InitialGameData) roomEvent() {}
func (GameData) roomEvent()        {}
func (ControlMessage) roomEvent()  {}

// DecodeRoomEvent classifies a room payload.  When several variant keys
// are present the first of initialGameData, gameData, message wins.
func DecodeRoomEvent(raw json.RawMessage) (RoomEvent, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ncerr.Protocol(raw, fmt.Errorf("invalid JSON"))
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, ErrUnknownShape
	}

	if r := root.Get(EventInitialGameData); r.Exists() {
		hs, err := DecodeHandshake(json.RawMessage(r.Raw))
		if err != nil {
			return nil, err
		}
		return InitialGameData{Handshake: hs}, nil
	}

	if r := root.Get("gameData"); r.Exists() {
		view, err := DecodeGameView(json.RawMessage(r.Raw))
		if err != nil {
			return nil, err
		}
		return GameData{View: view}, nil
	}

	if r := root.Get("message"); r.Exists() && r.Type == gjson.String {
		return ControlMessage{Text: r.String()}, nil
	}

	return nil, ErrUnknownShape
}

// ErrorText renders the argument of a server "error" event.
func ErrorText(raw json.RawMessage) string {
	r := gjson.ParseBytes(raw)
	switch {
	case r.Type == gjson.String:
		return r.String()
	case r.Get("message").Exists():
		return r.Get("message").String()
	case len(raw) == 0:
		return "unknown error"
	default:
		return r.Raw
	}
}
