// Package game describes the board games the client knows how to display:
// their kinds, the sides a player can be assigned, and how a board pushed
// by the server is decoded and rendered for the terminal.
//
// Nothing here enforces rules.  Move validation and win detection belong
// to the server; this package only turns server state into text.
package game

import (
	"fmt"
	"strings"
)

// Kind identifies a supported game.
type Kind string

const (
	TicTacToe   Kind = "tictactoe"
	ConnectFour Kind = "connect4"
)

// Kinds lists every supported game in the order shown in usage text.
var Kinds = []Kind{ConnectFour, TicTacToe} //nolint:gochecknoglobals

// ParseKind accepts a game name as typed on the command line.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case TicTacToe, ConnectFour:
		return k, nil
	default:
		return "", fmt.Errorf("unknown game %q (want connect4 or tictactoe)", name)
	}
}

func (k Kind) String() string { return string(k) }

// MaxPosition is the highest position shown in the move prompt.
// The server owns the real encoding; this is only a hint for the user.
func (k Kind) MaxPosition() int {
	if k == ConnectFour {
		return ConnectFourColumns - 1
	}
	return TicTacToeCells - 1
}

// Room returns the name of the server-side channel for a game instance.
func (k Kind) Room(gameID string) string {
	return string(k) + "-" + gameID
}

// PlayerType is the side assigned by the server during the handshake:
// cross/naught for tic-tac-toe, first/second for connect-four.
type PlayerType string

const (
	Cross  PlayerType = "cross"
	Naught PlayerType = "naught"
	First  PlayerType = "first"
	Second PlayerType = "second"
)
