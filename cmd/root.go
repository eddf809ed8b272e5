// Package cmd wires up the CLI flags, loads the configuration and runs
// the game client.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"lilgames/config"
	"lilgames/internal/core"
	ncerr "lilgames/internal/errors"
	"lilgames/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X lilgames/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// flagValues receives the parsed flags.  Only flags the user actually
// set are copied onto the loaded Config.
type flagValues struct {
	configPath  string
	server      string
	socketPath  string
	timeout     time.Duration
	joinTimeout time.Duration
	dialRetries int
	noColor     bool
	verbose     int
	stats       bool

	tunnel        string
	sshKey        string
	sshPassword   bool
	sshAgent      bool
	strictHostKey bool
	knownHosts    string
	sshKeepAlive  time.Duration

	dryRun      bool
	showVersion bool
	showHelp    bool
}

// Execute parses args and plays one game.
func Execute(ctx context.Context, args []string) error {
	var fv flagValues
	fs := flag.NewFlagSet("lilgames", flag.ContinueOnError)

	// ── server ───────────────────────────────────────────────────
	fs.StringVarP(&fv.configPath, "config", "C", "", "YAML configuration file")
	fs.StringVarP(&fv.server, "server", "s", config.DefaultServer, "Game server URL")
	fs.StringVar(&fv.socketPath, "socket-path", config.DefaultSocketPath, "Socket.IO endpoint path")
	fs.DurationVarP(&fv.timeout, "timeout", "w", config.DefaultConnTimeout, "Connection timeout")
	fs.DurationVar(&fv.joinTimeout, "join-timeout", config.DefaultJoinTimeout, "Wait this long for an opponent (0 waits forever)")
	fs.IntVar(&fv.dialRetries, "dial-retries", 0, "Retry the initial connection this many times")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&fv.tunnel, "tunnel", "T", "", "Reach the server through SSH gateway [user@]host[:port]")
	fs.StringVar(&fv.sshKey, "ssh-key", "", "SSH private key file")
	fs.BoolVar(&fv.sshPassword, "ssh-password", false, "Prompt for SSH password")
	fs.BoolVar(&fv.sshAgent, "ssh-agent", false, "Use SSH agent")
	fs.BoolVar(&fv.strictHostKey, "strict-hostkey", false, "Verify SSH host keys")
	fs.StringVar(&fv.knownHosts, "known-hosts", "", "Custom known_hosts path")
	fs.DurationVar(&fv.sshKeepAlive, "ssh-keepalive", config.DefaultSSHKeepAlive, "SSH keepalive interval")

	// ── output ───────────────────────────────────────────────────
	fs.BoolVar(&fv.noColor, "no-color", false, "Plain boards even on a terminal")
	fs.CountVarP(&fv.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&fv.stats, "stats", false, "Print session statistics to stderr on exit")

	fs.BoolVar(&fv.dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&fv.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&fv.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fv.showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if fv.showVersion {
		fmt.Printf("lilgames %s\n", version)
		return nil
	}

	// ── configuration ────────────────────────────────────────────
	cfg, err := config.Load(fv.configPath)
	if err != nil {
		return err
	}
	applyFlags(fs, &fv, cfg)

	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}

	if fv.dryRun {
		fmt.Println(mode)
		return nil
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// applyFlags copies every flag set on the command line onto cfg.
func applyFlags(fs *flag.FlagSet, fv *flagValues, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Server = fv.server
		case "socket-path":
			cfg.SocketPath = fv.socketPath
		case "timeout":
			cfg.Timeout = fv.timeout
		case "join-timeout":
			cfg.JoinTimeout = fv.joinTimeout
		case "dial-retries":
			cfg.DialRetries = fv.dialRetries
		case "tunnel":
			cfg.Tunnel.Spec = fv.tunnel
		case "ssh-key":
			cfg.Tunnel.SSHKey = fv.sshKey
		case "ssh-password":
			cfg.Tunnel.SSHPassword = fv.sshPassword
		case "ssh-agent":
			cfg.Tunnel.SSHAgent = fv.sshAgent
		case "strict-hostkey":
			cfg.Tunnel.StrictHostKey = fv.strictHostKey
		case "known-hosts":
			cfg.Tunnel.KnownHosts = fv.knownHosts
		case "ssh-keepalive":
			cfg.Tunnel.KeepAlive = fv.sshKeepAlive
		case "no-color":
			cfg.NoColor = fv.noColor
		case "verbose":
			cfg.Verbose = fv.verbose
		case "stats":
			cfg.Stats = fv.stats
		}
	})
}

func parsePositional(cfg *config.Config, remaining []string) error {
	const usage = "usage: lilgames [flags] <gameName> <playerId> <gameId>"

	switch {
	case len(remaining) < 3:
		names := []string{"gameName", "playerId", "gameId"}
		return &ncerr.ConfigError{
			Field:   names[len(remaining)],
			Message: "missing argument",
			Hint:    usage,
		}
	case len(remaining) > 3:
		return &ncerr.ConfigError{
			Field:   "gameId",
			Value:   strings.Join(remaining[3:], " "),
			Message: "too many arguments",
			Hint:    usage,
		}
	}

	cfg.GameName, cfg.PlayerID, cfg.GameID = remaining[0], remaining[1], remaining[2]
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `lilgames – terminal client for lilgames servers v%s

Play tic-tac-toe or connect-four against another player through a
lilgames game server.

Usage:
  lilgames [options] <gameName> <playerId> <gameId>

  gameName   connect4 | tictactoe
  playerId   your player id; the player who joins first moves first
  gameId     room to join; both players must use the same id

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
%s
Examples:
  lilgames tictactoe alice game1                      Local server on :3000
  lilgames -s https://games.example.com connect4 bob g2
  lilgames -T admin@bastion -s ws://10.0.0.5:3000 tictactoe carol g3
`, config.EnvUsage())
}
