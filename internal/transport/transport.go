// Package transport provides connection establishment for the game
// client.  A Dialer handles how bytes reach the server (plain TCP or
// through an SSH tunnel); Conn speaks Socket.IO over a websocket opened
// through any Dialer.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.  Its Dial method matches
// the NetDialContext hook of the websocket dialer, so any Dialer can
// carry the game connection.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
