package util

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultSocketPath is where Socket.IO servers mount their endpoint.
const DefaultSocketPath = "/socket.io/"

// EndpointURL turns a server address such as "http://localhost:3000"
// or "wss://games.example.com" into the websocket URL of its Socket.IO
// endpoint.  http and https are mapped to ws and wss; a bare host:port
// is treated as ws.
func EndpointURL(server, socketPath, engineVersion string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "ws://" + server
	}

	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("server %q: %w", server, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "http":
		u.Scheme = "ws"
	case "wss", "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server %q: unsupported scheme %q", server, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server %q: missing host", server)
	}

	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	u.Path = "/" + strings.Trim(socketPath, "/") + "/"

	q := u.Query()
	q.Set("EIO", engineVersion)
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// HostPort returns the host:port a websocket URL dials, filling in the
// scheme's default port.
func HostPort(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", wsURL, err)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "80"
	if u.Scheme == "wss" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
