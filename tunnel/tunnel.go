// Package tunnel carries the game connection through an SSH gateway
// for servers that are only reachable from behind a bastion host.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is an encrypted channel through which outbound connections
// are forwarded.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address on the far side of the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	Close() error

	// IsAlive reports whether the gateway connection is still up.
	IsAlive() bool
}
