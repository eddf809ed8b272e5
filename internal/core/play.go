package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"lilgames/config"
	ncerr "lilgames/internal/errors"
	"lilgames/internal/game"
	"lilgames/internal/metrics"
	"lilgames/internal/protocol"
	"lilgames/internal/retry"
	"lilgames/internal/session"
	"lilgames/internal/transport"
	"lilgames/util"
)

// PlayMode connects to a game server and plays one game.
type PlayMode struct {
	Dialer   transport.Dialer
	Endpoint string // ws:// or wss:// Socket.IO URL

	Kind     game.Kind
	GameID   string
	PlayerID string

	ConnectTimeout time.Duration
	JoinTimeout    time.Duration
	DialRetries    int
	Color          bool
	Stats          bool

	Logger  *util.Logger
	Metrics *metrics.Collector

	// Stdin/Stdout/Stderr default to the process streams when nil.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// backoff overrides the dial retry schedule in tests.
	backoff *retry.Backoff
}

func (m *PlayMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *PlayMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *PlayMode) stderr() io.Writer {
	if m.Stderr != nil {
		return m.Stderr
	}
	return os.Stderr
}

// String summarises what Run would do.
func (m *PlayMode) String() string {
	return fmt.Sprintf("play %s game %q as %q via %s", m.Kind, m.GameID, m.PlayerID, m.Endpoint)
}

// Run plays the game.  The dialer is closed when Run returns.
func (m *PlayMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()
	if m.Logger == nil {
		m.Logger = util.NewLogger(0)
	}
	if m.Metrics == nil {
		m.Metrics = metrics.New()
	}

	render := game.Render
	if m.Color {
		render = game.RenderColor
	}

	s := session.New(session.Config{
		Kind:        m.Kind,
		GameID:      m.GameID,
		PlayerID:    m.PlayerID,
		JoinTimeout: m.JoinTimeout,
		Connect:     m.connect,
		Prompter:    session.NewLinePrompter(m.stdin(), m.stdout()),
		Out:         m.stdout(),
		Render:      render,
		Logger:      m.Logger,
		Metrics:     m.Metrics,
	})

	err := s.Run(ctx)
	if err != nil {
		m.Metrics.RecordError(err.Error())
	}
	if m.Stats {
		fmt.Fprintln(m.stderr(), m.Metrics.JSON())
	}
	return err
}

// connect opens the Socket.IO connection, retrying the dial when
// DialRetries allows it.
func (m *PlayMode) connect(ctx context.Context, opened func()) (session.Conn, error) {
	sd := &transport.SocketDialer{
		Dialer:           m.Dialer,
		HandshakeTimeout: m.ConnectTimeout,
		Logger:           m.Logger.Named("transport"),
		Metrics:          m.Metrics,
		OnOpen:           func(protocol.OpenInfo) { opened() },
	}

	m.Logger.Verbose("connecting to %s", m.Endpoint)

	if m.DialRetries <= 0 {
		conn, err := sd.Connect(ctx, m.Endpoint)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	b := m.dialBackoff()
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.Logger.Warn("connect attempt %d failed: %v (retrying in %s)", attempt, err, wait.Round(time.Millisecond))
	}

	var conn *transport.Conn
	err := b.Do(ctx, func(int) error {
		c, err := sd.Connect(ctx, m.Endpoint)
		if err != nil {
			if !ncerr.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// dialBackoff is the retry schedule for the initial dial.
func (m *PlayMode) dialBackoff() *retry.Backoff {
	if m.backoff != nil {
		return m.backoff
	}
	b := retry.Attempts(m.DialRetries + 1)
	b.MaxDelay = config.DefaultMaxDialBackoff
	return b
}
