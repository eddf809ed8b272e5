// Package config defines the runtime configuration of a lilgames
// session and how it is loaded and checked.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "lilgames/internal/errors"
	"lilgames/internal/game"
	"lilgames/internal/protocol"
	"lilgames/util"
)

// Config holds every tuneable for one game session.
//
// The game fields come from positional arguments only.  Everything else
// can be set in a YAML file, through LILGAMES_* variables or by flags.
type Config struct {
	// ── Game ─────────────────────────────────────────────────────────
	GameName string `yaml:"-"`
	PlayerID string `yaml:"-"`
	GameID   string `yaml:"-"`

	// ── Server ───────────────────────────────────────────────────────
	Server      string        `yaml:"server" env:"LILGAMES_SERVER" env-default:"ws://localhost:3000" env-description:"game server URL (ws, wss, http or https)"`
	SocketPath  string        `yaml:"socket-path" env:"LILGAMES_SOCKET_PATH" env-default:"/socket.io/" env-description:"Socket.IO endpoint path"`
	Timeout     time.Duration `yaml:"timeout" env:"LILGAMES_TIMEOUT" env-default:"30s" env-description:"connection timeout"`
	JoinTimeout time.Duration `yaml:"join-timeout" env:"LILGAMES_JOIN_TIMEOUT" env-default:"5m" env-description:"how long to wait for an opponent (0 waits forever)"`
	DialRetries int           `yaml:"dial-retries" env:"LILGAMES_DIAL_RETRIES" env-default:"0" env-description:"retries of the initial dial"`

	// ── SSH tunnel ───────────────────────────────────────────────────
	Tunnel Tunnel `yaml:"tunnel"`

	// ── Output ───────────────────────────────────────────────────────
	NoColor bool `yaml:"no-color" env:"LILGAMES_NO_COLOR" env-description:"disable coloured boards"`
	Verbose int  `yaml:"verbose" env:"LILGAMES_VERBOSE" env-description:"log verbosity (0-3)"`
	Stats   bool `yaml:"stats" env:"LILGAMES_STATS" env-description:"print session statistics on exit"`
}

// Tunnel configures the optional SSH gateway the game connection is
// routed through.
type Tunnel struct {
	Spec          string        `yaml:"spec" env:"LILGAMES_TUNNEL" env-description:"SSH gateway as [user@]host[:port]"`
	SSHKey        string        `yaml:"ssh-key" env:"LILGAMES_SSH_KEY" env-description:"private key for the gateway"`
	SSHPassword   bool          `yaml:"ssh-password" env:"LILGAMES_SSH_PASSWORD" env-description:"prompt for the gateway password"`
	SSHAgent      bool          `yaml:"ssh-agent" env:"LILGAMES_SSH_AGENT" env-description:"authenticate with ssh-agent"`
	StrictHostKey bool          `yaml:"strict-hostkey" env:"LILGAMES_STRICT_HOSTKEY" env-description:"verify the gateway host key"`
	KnownHosts    string        `yaml:"known-hosts" env:"LILGAMES_KNOWN_HOSTS" env-description:"known_hosts file"`
	KeepAlive     time.Duration `yaml:"keep-alive" env:"LILGAMES_SSH_KEEPALIVE" env-default:"30s" env-description:"gateway keepalive interval"`
}

// Enabled reports whether a gateway was requested.
func (t Tunnel) Enabled() bool { return t.Spec != "" }

// Endpoint resolves Spec, filling in the current user and port 22.
func (t Tunnel) Endpoint() (user, host string, port int, err error) {
	user, host, port, err = ParseTunnelSpec(t.Spec)
	if err != nil {
		return "", "", 0, err
	}
	if user == "" {
		user = util.CurrentUser()
	}
	return user, host, port, nil
}

// Kind is the parsed game name.
func (c *Config) Kind() (game.Kind, error) {
	return game.ParseKind(c.GameName)
}

// Endpoint is the websocket URL of the server's Socket.IO endpoint.
func (c *Config) Endpoint() (string, error) {
	return util.EndpointURL(c.Server, c.SocketPath, protocol.EngineVersion)
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q, expected [user@]host[:port]", spec)
	}
	user, host, port = m[1], m[2], DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration can start a session.  The
// first problem found is returned as a *errors.ConfigError.
func (c *Config) Validate() error {
	if c.GameName == "" {
		return &ncerr.ConfigError{
			Field:   "gameName",
			Message: "game name is required",
			Hint:    "usage: lilgames [flags] <gameName> <playerId> <gameId>",
		}
	}
	if _, err := c.Kind(); err != nil {
		return &ncerr.ConfigError{
			Field:   "gameName",
			Value:   c.GameName,
			Message: err.Error(),
			Hint:    "one of: " + kindList(),
		}
	}
	if strings.TrimSpace(c.PlayerID) == "" {
		return &ncerr.ConfigError{Field: "playerId", Message: "player id is required"}
	}
	if strings.TrimSpace(c.GameID) == "" {
		return &ncerr.ConfigError{Field: "gameId", Message: "game id is required"}
	}

	if _, err := c.Endpoint(); err != nil {
		return &ncerr.ConfigError{
			Field:   "server",
			Value:   c.Server,
			Message: err.Error(),
			Hint:    "e.g. ws://localhost:3000 or https://games.example.com",
		}
	}

	switch {
	case c.Timeout < 0:
		return &ncerr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must not be negative"}
	case c.JoinTimeout < 0:
		return &ncerr.ConfigError{Field: "join-timeout", Value: c.JoinTimeout, Message: "must not be negative", Hint: "use 0 to wait forever"}
	case c.DialRetries < 0:
		return &ncerr.ConfigError{Field: "dial-retries", Value: c.DialRetries, Message: "must not be negative"}
	case c.Tunnel.KeepAlive < 0:
		return &ncerr.ConfigError{Field: "ssh-keepalive", Value: c.Tunnel.KeepAlive, Message: "must not be negative"}
	}

	if c.Tunnel.Enabled() {
		if _, _, _, err := ParseTunnelSpec(c.Tunnel.Spec); err != nil {
			return &ncerr.ConfigError{Field: "tunnel", Value: c.Tunnel.Spec, Message: err.Error()}
		}
	}
	return nil
}

func kindList() string {
	names := make([]string, len(game.Kinds))
	for i, k := range game.Kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}
