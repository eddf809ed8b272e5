// Package core is the orchestration layer.  It composes the transport,
// the game session and the ambient pieces (logging, metrics, retries)
// into a runnable Mode, and provides the builder that derives that
// Mode from a Config.
//
// Layers (bottom → top):
//
//	protocol/transport  →  session  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete run of the client, from dialing the server to
// tearing the connection down.
type Mode interface {
	Run(ctx context.Context) error
}
