package core

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"lilgames/config"
	"lilgames/internal/metrics"
	"lilgames/internal/transport"
	"lilgames/tunnel"
	"lilgames/util"
)

// Build constructs the Mode for cfg, which must already be valid.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	kind, err := cfg.Kind()
	if err != nil {
		return nil, err
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	dialer, err := buildDialer(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &PlayMode{
		Dialer:         dialer,
		Endpoint:       endpoint,
		Kind:           kind,
		GameID:         cfg.GameID,
		PlayerID:       cfg.PlayerID,
		ConnectTimeout: cfg.Timeout,
		JoinTimeout:    cfg.JoinTimeout,
		DialRetries:    cfg.DialRetries,
		Color:          !cfg.NoColor && stdoutIsTerminal(),
		Stats:          cfg.Stats,
		Logger:         logger,
		Metrics:        metrics.New(),
	}, nil
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) (transport.Dialer, error) {
	if !cfg.Tunnel.Enabled() {
		return &transport.TCPDialer{Timeout: cfg.Timeout}, nil
	}

	user, host, port, err := cfg.Tunnel.Endpoint()
	if err != nil {
		return nil, fmt.Errorf("tunnel: %w", err)
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	target, err := util.HostPort(endpoint)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	logger.Verbose("game server %s will be reached through %s@%s:%d", target, user, host, port)

	return transport.NewSSHDialer(&tunnel.SSHConfig{
		User:          user,
		Host:          host,
		Port:          port,
		KeyPath:       cfg.Tunnel.SSHKey,
		PromptPass:    cfg.Tunnel.SSHPassword,
		UseAgent:      cfg.Tunnel.SSHAgent,
		StrictHostKey: cfg.Tunnel.StrictHostKey,
		KnownHosts:    cfg.Tunnel.KnownHosts,
		ConnTimeout:   cfg.Timeout,
		KeepAlive:     cfg.Tunnel.KeepAlive,
	}, logger), nil
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
