package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	ncerr "lilgames/internal/errors"
	"lilgames/internal/game"
)

const (
	fieldOwnPlayer  = "ownPlayer"
	fieldPlayerType = "playerType"
)

// ErrNoOwnRecord means no handshake record could be attributed to the
// local player.
var ErrNoOwnRecord = errors.New("handshake has no record for this player")

// PlayerRecord is one entry of the handshake.
//
// PlayerType is required.  OwnPlayer is present only in the record of
// the player who opened the room (the initiator) and holds that
// player's id; HasOwnPlayer distinguishes an absent marker from an
// empty one.  Every other field is opaque game state.
type PlayerRecord struct {
	Raw          json.RawMessage
	PlayerType   game.PlayerType
	OwnPlayer    string
	HasOwnPlayer bool
}

// DecodePlayerRecord decodes one handshake record.
func DecodePlayerRecord(raw json.RawMessage) (PlayerRecord, error) {
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return PlayerRecord{}, ncerr.Protocol(raw, fmt.Errorf("player record is not an object"))
	}

	rec := PlayerRecord{
		Raw:        append(json.RawMessage(nil), raw...),
		PlayerType: game.PlayerType(root.Get(fieldPlayerType).String()),
	}
	if own := root.Get(fieldOwnPlayer); own.Exists() && own.Type != gjson.Null {
		rec.HasOwnPlayer = true
		rec.OwnPlayer = own.String()
	}
	return rec, nil
}

// Handshake is the initialGameData payload: normally an ordered pair of
// records, or a single record addressed to this player.
type Handshake struct {
	Records []PlayerRecord
}

// DecodeHandshake accepts an array of records or a single record object.
func DecodeHandshake(raw json.RawMessage) (Handshake, error) {
	if !gjson.ValidBytes(raw) {
		return Handshake{}, ncerr.Protocol(raw, fmt.Errorf("invalid handshake JSON"))
	}

	root := gjson.ParseBytes(raw)
	var items []gjson.Result
	switch {
	case root.IsArray():
		items = root.Array()
	case root.IsObject():
		items = []gjson.Result{root}
	default:
		return Handshake{}, ncerr.Protocol(raw, fmt.Errorf("handshake is neither array nor object"))
	}
	if len(items) == 0 {
		return Handshake{}, ncerr.Protocol(raw, fmt.Errorf("empty handshake"))
	}

	hs := Handshake{Records: make([]PlayerRecord, 0, len(items))}
	for _, it := range items {
		rec, err := DecodePlayerRecord(json.RawMessage(it.Raw))
		if err != nil {
			return Handshake{}, err
		}
		hs.Records = append(hs.Records, rec)
	}
	return hs, nil
}

// Claim is the outcome of matching a handshake to the local player.
type Claim struct {
	PlayerType game.PlayerType
	Initiator  bool            // true when this player moves first
	State      json.RawMessage // record with ownPlayer/playerType removed
}

// Claim picks the local player's record.
//
// The record carrying ownPlayer belongs to the initiator.  If its value
// equals playerID it is ours and we move first; otherwise ours is the
// other record.  A lone record is ours either way: as the initiator
// when its marker names us, as the joiner otherwise.
func (h Handshake) Claim(playerID string) (Claim, error) {
	marked := -1
	for i, r := range h.Records {
		if r.HasOwnPlayer {
			marked = i
			break
		}
	}

	var (
		own       PlayerRecord
		initiator bool
	)
	switch {
	case marked >= 0 && h.Records[marked].OwnPlayer == playerID:
		own, initiator = h.Records[marked], true
	case marked >= 0 && len(h.Records) > 1:
		own = h.Records[otherIndex(marked, len(h.Records))]
	case len(h.Records) == 1:
		own = h.Records[0]
	default:
		return Claim{}, ErrNoOwnRecord
	}

	if own.PlayerType == "" {
		return Claim{}, ncerr.Protocol(own.Raw, fmt.Errorf("player record without %s", fieldPlayerType))
	}

	state, err := strip(own.Raw, fieldOwnPlayer, fieldPlayerType)
	if err != nil {
		return Claim{}, err
	}
	return Claim{PlayerType: own.PlayerType, Initiator: initiator, State: state}, nil
}

// otherIndex returns the first index that is not i.
func otherIndex(i, n int) int {
	if i == 0 && n > 1 {
		return 1
	}
	return 0
}

// strip removes keys from a JSON object without reordering the rest.
func strip(raw json.RawMessage, keys ...string) (json.RawMessage, error) {
	out := append([]byte(nil), raw...)
	for _, k := range keys {
		var err error
		out, err = sjson.DeleteBytes(out, k)
		if err != nil {
			return nil, ncerr.Protocol(raw, fmt.Errorf("strip %s: %w", k, err))
		}
	}
	return out, nil
}
