package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	ncerr "lilgames/internal/errors"
	"lilgames/internal/game"
)

// GameView is the client's copy of the last authoritative state.
//
// Raw keeps the object byte-for-byte as received (minus any fields the
// handshake strips) so that echoing it back for verification reproduces
// the server's key order.  The other fields are decoded views of Raw.
type GameView struct {
	Raw           json.RawMessage
	Board         game.Board
	CurrentPlayer game.PlayerType
	Winner        json.RawMessage // nil while the game is running
}

// DecodeGameView decodes a state object.
func DecodeGameView(raw json.RawMessage) (GameView, error) {
	if !gjson.ValidBytes(raw) {
		return GameView{}, ncerr.Protocol(raw, fmt.Errorf("invalid game data JSON"))
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return GameView{}, ncerr.Protocol(raw, fmt.Errorf("game data is not an object"))
	}

	board, err := game.DecodeBoard(json.RawMessage(root.Get("board").Raw))
	if err != nil {
		return GameView{}, ncerr.Protocol(raw, err)
	}

	v := GameView{
		Raw:           append(json.RawMessage(nil), raw...),
		Board:         board,
		CurrentPlayer: game.PlayerType(root.Get("currentPlayer").String()),
	}
	if w := root.Get("winner"); w.Exists() && w.Type != gjson.Null {
		v.Winner = json.RawMessage(w.Raw)
	}
	return v, nil
}

// Finished reports whether the server declared a result.
func (v GameView) Finished() bool { return v.Winner != nil }

// Result is the winner as display text: a bare string for string
// results, the raw JSON otherwise.
func (v GameView) Result() string {
	r := gjson.ParseBytes(v.Winner)
	if r.Type == gjson.String {
		return r.String()
	}
	return r.Raw
}

// TurnOf reports whether it is p's turn.
func (v GameView) TurnOf(p game.PlayerType) bool {
	return p != "" && v.CurrentPlayer == p
}
