// Package session runs one game from the client's side: it joins the
// room, claims a seat from the handshake, prompts for moves on our turn
// and answers the server's control messages until the game ends.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ncerr "lilgames/internal/errors"
	"lilgames/internal/game"
	"lilgames/internal/metrics"
	"lilgames/internal/protocol"
	"lilgames/util"
)

// State is the phase a session is in.
type State int

const (
	Connecting State = iota
	AwaitingJoinAck
	AwaitingHandshake
	WaitingOpponent
	AwaitingMyMove
	GameOver
)

var stateNames = [...]string{
	Connecting:        "connecting",
	AwaitingJoinAck:   "awaiting join ack",
	AwaitingHandshake: "awaiting handshake",
	WaitingOpponent:   "waiting for opponent",
	AwaitingMyMove:    "awaiting my move",
	GameOver:          "game over",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Conn is the event channel to the game server.
type Conn interface {
	Next(ctx context.Context) (protocol.Event, error)
	Emit(ctx context.Context, name string, payload any) error
	Done() <-chan struct{}
	Close() error
}

// ConnectFunc opens a Conn.  opened is called once the transport is up
// and the namespace CONNECT has been sent.
type ConnectFunc func(ctx context.Context, opened func()) (Conn, error)

// Prompter asks the user for one line of input.
type Prompter interface {
	Prompt(ctx context.Context, prompt string) (string, error)
}

// Config holds what a Session needs besides its connection.
type Config struct {
	Kind     game.Kind
	GameID   string
	PlayerID string

	// JoinTimeout bounds the wait for the handshake after joining.
	// Zero waits forever.
	JoinTimeout time.Duration

	Connect  ConnectFunc
	Prompter Prompter
	Out      io.Writer
	Render   func(game.Board, game.Kind) string // defaults to game.Render
	Logger   *util.Logger
	Metrics  *metrics.Collector
}

// Session is the client side of one game.  It is not safe for
// concurrent use.
type Session struct {
	cfg    Config
	room   string
	logger *util.Logger

	conn       Conn
	state      State
	playerType game.PlayerType
	myTurn     bool
	view       protocol.GameView
	cache      json.RawMessage // echoed on verifyGameData
	left       bool
}

// New returns a session in the Connecting state.
func New(cfg Config) *Session {
	if cfg.Render == nil {
		cfg.Render = game.Render
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = util.NewLogger(0)
	}
	return &Session{
		cfg:    cfg,
		room:   cfg.Kind.Room(cfg.GameID),
		logger: cfg.Logger.Named("session"),
	}
}

// State reports the current phase.
func (s *Session) State() State { return s.state }

// PlayerType is the seat claimed in the handshake, empty before it.
func (s *Session) PlayerType() game.PlayerType { return s.playerType }

// GameState is the cached state that would be echoed for verification.
func (s *Session) GameState() json.RawMessage { return s.cache }

// Run connects, joins and plays until the game ends, the server closes
// the connection or ctx is cancelled.  A finished game returns nil.
func (s *Session) Run(ctx context.Context) error {
	if s.cfg.Connect == nil {
		return errors.New("session: no connect function")
	}

	s.setState(Connecting)
	conn, err := s.cfg.Connect(ctx, func() { s.setState(AwaitingJoinAck) })
	if err != nil {
		return err
	}
	s.conn = conn
	defer conn.Close()

	s.logger.Verbose("%s connection established", s.cfg.PlayerID)

	join := protocol.JoinMessage{
		GameName: s.cfg.Kind.String(),
		GameID:   s.cfg.GameID,
		PlayerID: s.cfg.PlayerID,
	}
	if err := conn.Emit(ctx, protocol.EventJoin, join); err != nil {
		return fmt.Errorf("join %s: %w", s.room, err)
	}
	s.setState(AwaitingHandshake)

	var joinDeadline time.Time
	if s.cfg.JoinTimeout > 0 {
		joinDeadline = time.Now().Add(s.cfg.JoinTimeout)
	}

	for {
		ev, err := s.next(ctx, joinDeadline)
		if err != nil {
			return err
		}
		done, err := s.handle(ctx, ev)
		if done || err != nil {
			return err
		}
	}
}

// next waits for an event, bounded by the join deadline while the
// handshake is outstanding.
func (s *Session) next(ctx context.Context, joinDeadline time.Time) (protocol.Event, error) {
	if s.state != AwaitingHandshake || joinDeadline.IsZero() {
		return s.conn.Next(ctx)
	}

	wctx, cancel := context.WithDeadline(ctx, joinDeadline)
	defer cancel()

	ev, err := s.conn.Next(wctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("no game data after %s", s.cfg.JoinTimeout)
		s.leave()
		return protocol.Event{}, fmt.Errorf("%w after %s", ncerr.ErrJoinTimeout, s.cfg.JoinTimeout)
	}
	return ev, err
}

// handle processes one event.  done reports the session is over.
func (s *Session) handle(ctx context.Context, ev protocol.Event) (done bool, err error) {
	switch ev.Name {
	case s.room:
		return s.handleRoom(ctx, ev.Data)

	case protocol.EventInitialGameData:
		hs, err := protocol.DecodeHandshake(ev.Data)
		if err != nil {
			s.logger.Debug("ignoring handshake: %v", err)
			return false, nil
		}
		return false, s.handleHandshake(ctx, hs)

	case protocol.EventError:
		text := protocol.ErrorText(ev.Data)
		s.printf("Server error: %s\n", text)
		s.cfg.Metrics.RecordError(text)
		s.leave()
		return true, fmt.Errorf("%w: %s", ncerr.ErrJoinRejected, text)

	case protocol.EventDisconnect:
		s.left = true
		s.printf("%s disconnected from server\n", s.cfg.PlayerID)
		if s.state == GameOver {
			return true, nil
		}
		return true, ncerr.ErrServerClosed

	default:
		s.logger.Debug("ignoring event %q", ev.Name)
		return false, nil
	}
}

func (s *Session) handleRoom(ctx context.Context, data json.RawMessage) (bool, error) {
	re, err := protocol.DecodeRoomEvent(data)
	if err != nil {
		s.logger.Debug("ignoring room payload: %v", err)
		return false, nil
	}

	switch re := re.(type) {
	case protocol.InitialGameData:
		return false, s.handleHandshake(ctx, re.Handshake)
	case protocol.GameData:
		return s.handleGameData(ctx, re.View)
	case protocol.ControlMessage:
		return s.handleControl(ctx, re.Text)
	}
	return false, nil
}

func (s *Session) handleHandshake(ctx context.Context, hs protocol.Handshake) error {
	if s.playerType != "" {
		s.logger.Warn("ignoring repeated handshake, already playing as %s", s.playerType)
		return nil
	}

	claim, err := hs.Claim(s.cfg.PlayerID)
	if err != nil {
		s.logger.Debug("ignoring handshake: %v", err)
		return nil
	}

	s.printf("starting game\n")
	s.playerType = claim.PlayerType
	s.cache = claim.State
	s.printf("You are %s\n", s.playerType)

	if claim.Initiator {
		s.myTurn = true
		return s.playMove(ctx)
	}
	s.setState(WaitingOpponent)
	return nil
}

func (s *Session) handleGameData(ctx context.Context, view protocol.GameView) (bool, error) {
	if view.Finished() {
		s.printBoard(view.Board)
		s.printf("Game over with result: %s\n", view.Result())
		s.setState(GameOver)
		s.leave()
		return true, nil
	}

	s.view = view
	s.cache = view.Raw
	s.printBoard(view.Board)

	s.myTurn = view.TurnOf(s.playerType)
	if s.myTurn {
		return false, s.playMove(ctx)
	}
	s.printf("Opponent's turn\n")
	s.setState(WaitingOpponent)
	return false, nil
}

func (s *Session) handleControl(ctx context.Context, msg string) (bool, error) {
	switch msg {
	case protocol.MsgVerifyGameData:
		sent, err := s.emitRoom(ctx, protocol.VerifyMessage{VerifyGameData: s.cache})
		if sent {
			s.cfg.Metrics.Verification()
		}
		return false, err

	case protocol.MsgBadMove:
		if !s.myTurn {
			s.logger.Debug("badMove while not our turn")
			return false, nil
		}
		s.cfg.Metrics.BadMove()
		s.printf("Bad move play again!\n")
		return false, s.playMove(ctx)

	case protocol.MsgInvalidGameData:
		s.printf("Somebody cheated bye.\n")
		s.leave()
		return true, ncerr.ErrCheatDetected

	default:
		s.logger.Debug("ignoring message %q", msg)
		return false, nil
	}
}

// playMove prompts until the user enters an integer and sends it.  The
// prompt is abandoned if the connection ends first; the disconnect is
// then picked up by the event loop.
func (s *Session) playMove(ctx context.Context) error {
	s.setState(AwaitingMyMove)
	prompt := fmt.Sprintf("Give a pos 0 to %d: ", s.cfg.Kind.MaxPosition())

	for {
		line, err := s.prompt(ctx, prompt)
		if err != nil {
			select {
			case <-s.conn.Done():
				s.logger.Debug("prompt abandoned: connection closed")
				return nil
			default:
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading move: %w", err)
		}

		pos, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			s.printf("%q is not a position\n", strings.TrimSpace(line))
			continue
		}

		move := protocol.MoveMessage{Move: protocol.Move{Player: s.playerType, Position: pos}}
		sent, err := s.emitRoom(ctx, move)
		if err != nil {
			return err
		}
		if sent {
			s.cfg.Metrics.MoveSent()
			s.setState(WaitingOpponent)
		}
		return nil
	}
}

func (s *Session) prompt(ctx context.Context, prompt string) (string, error) {
	if s.cfg.Prompter == nil {
		return "", errors.New("no prompter")
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.conn.Done():
			cancel()
		case <-pctx.Done():
		}
	}()

	return s.cfg.Prompter.Prompt(pctx, prompt)
}

// emitRoom sends payload on the room channel.  sent is false when the
// connection was already gone; the disconnect then ends the session.
func (s *Session) emitRoom(ctx context.Context, payload any) (sent bool, err error) {
	if err := s.conn.Emit(ctx, s.room, payload); err != nil {
		if errors.Is(err, ncerr.ErrNotConnected) {
			s.logger.Debug("emit after disconnect dropped")
			return false, nil
		}
		return false, fmt.Errorf("emit to %s: %w", s.room, err)
	}
	return true, nil
}

// leave closes the connection and prints the disconnect notice once.
func (s *Session) leave() {
	if s.left {
		return
	}
	s.left = true
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("close: %v", err)
	}
	s.printf("%s disconnected from server\n", s.cfg.PlayerID)
}

func (s *Session) setState(st State) {
	if s.state != st {
		s.logger.Debug("%s -> %s", s.state, st)
	}
	s.state = st
}

func (s *Session) printBoard(b game.Board) {
	s.printf("\n%s\n\n", s.cfg.Render(b, s.cfg.Kind))
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.cfg.Out, format, args...)
}
