package config

import (
	"time"

	"lilgames/util"
)

// ── Default values ───────────────────────────────────────────────────
//
// The env-default tags on Config mirror these; flag help text is built
// from them too.

const (
	// DefaultServer is where the reference game server listens.
	DefaultServer = "ws://localhost:3000"

	// DefaultSocketPath is the Socket.IO mount point.
	DefaultSocketPath = util.DefaultSocketPath

	// DefaultConnTimeout bounds the dial plus the websocket and
	// Socket.IO handshakes.
	DefaultConnTimeout = 30 * time.Second

	// DefaultJoinTimeout bounds the wait for the opponent after
	// joining a room.
	DefaultJoinTimeout = 5 * time.Minute

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultSSHKeepAlive is the SSH keepalive interval.
	DefaultSSHKeepAlive = 30 * time.Second

	// DefaultMaxDialBackoff caps the wait between dial retries.
	DefaultMaxDialBackoff = 10 * time.Second

	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "LILGAMES_"
)
