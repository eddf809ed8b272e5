package session

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "lilgames/internal/errors"
	"lilgames/internal/game"
	"lilgames/internal/metrics"
	"lilgames/internal/protocol"
)

// ── fakes ────────────────────────────────────────────────────────────

type emitted struct {
	Name string
	Data string
}

type fakeConn struct {
	events chan protocol.Event

	mu      sync.Mutex
	emits   []emitted
	closes  int
	done    chan struct{}
	dropped sync.Once
}

func newFakeConn(events ...protocol.Event) *fakeConn {
	c := &fakeConn{events: make(chan protocol.Event, 32), done: make(chan struct{})}
	for _, ev := range events {
		c.events <- ev
	}
	return c
}

func (c *fakeConn) Next(ctx context.Context) (protocol.Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-ctx.Done():
		return protocol.Event{}, ctx.Err()
	}
}

func (c *fakeConn) Emit(ctx context.Context, name string, payload any) error {
	select {
	case <-c.done:
		return ncerr.ErrNotConnected
	default:
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.emits = append(c.emits, emitted{Name: name, Data: string(b)})
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.dropped.Do(func() { close(c.done) })
	return nil
}

// drop simulates the server going away.
func (c *fakeConn) drop() {
	c.dropped.Do(func() { close(c.done) })
	c.events <- protocol.Event{Name: protocol.EventDisconnect}
}

func (c *fakeConn) sent() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.emits...)
}

type fakePrompter struct {
	answers []string
	prompts []string
	onEmpty func()
}

func (p *fakePrompter) Prompt(ctx context.Context, prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if len(p.answers) == 0 {
		if p.onEmpty != nil {
			p.onEmpty()
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func event(name, data string) protocol.Event {
	return protocol.Event{Name: name, Data: json.RawMessage(data)}
}

type harness struct {
	conn     *fakeConn
	prompter *fakePrompter
	out      *bytes.Buffer
	metrics  *metrics.Collector
	session  *Session
	states   []State
}

func newHarness(kind game.Kind, conn *fakeConn, answers ...string) *harness {
	h := &harness{
		conn:     conn,
		prompter: &fakePrompter{answers: answers},
		out:      &bytes.Buffer{},
		metrics:  metrics.New(),
	}
	h.session = New(Config{
		Kind:     kind,
		GameID:   "a",
		PlayerID: "p1",
		Connect: func(ctx context.Context, opened func()) (Conn, error) {
			opened()
			h.states = append(h.states, h.session.State())
			return conn, nil
		},
		Prompter: h.prompter,
		Out:      h.out,
		Metrics:  h.metrics,
	})
	return h
}

func (h *harness) run(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.session.Run(ctx)
}

const (
	room = "tictactoe-a"

	initiatorPair = `[{"ownPlayer":"p1","playerType":"cross","board":{}},{"playerType":"naught","board":{}}]`
	joinerPair    = `[{"ownPlayer":"p2","playerType":"cross","board":{}},{"playerType":"naught","board":{}}]`
)

// ── tests ────────────────────────────────────────────────────────────

func TestSession_JoinsRoom(t *testing.T) {
	conn := newFakeConn(event(protocol.EventDisconnect, ""))
	h := newHarness(game.TicTacToe, conn)

	err := h.run(t)
	assert.ErrorIs(t, err, ncerr.ErrServerClosed)

	sent := conn.sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, protocol.EventJoin, sent[0].Name)
	assert.JSONEq(t, `{"gameName":"tictactoe","gameId":"a","playerId":"p1"}`, sent[0].Data)
	assert.Equal(t, []State{AwaitingJoinAck}, h.states)
	assert.Contains(t, h.out.String(), "p1 disconnected from server")
}

func TestSession_InitiatorHandshake(t *testing.T) {
	conn := newFakeConn(
		event(protocol.EventInitialGameData, initiatorPair),
		event(room, `{"gameData":{"board":{"4":"cross"},"currentPlayer":"naught","winner":null}}`),
		event(room, `{"gameData":{"board":{"4":"cross","0":"naught","8":"cross"},"currentPlayer":"cross","winner":"cross"}}`),
	)
	h := newHarness(game.TicTacToe, conn, "4")

	require.NoError(t, h.run(t))

	assert.Equal(t, game.Cross, h.session.PlayerType())
	assert.Equal(t, GameOver, h.session.State())
	assert.Equal(t, []string{"Give a pos 0 to 8: "}, h.prompter.prompts)

	sent := conn.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, room, sent[1].Name)
	assert.JSONEq(t, `{"move":{"player":"cross","position":4}}`, sent[1].Data)

	out := h.out.String()
	assert.Contains(t, out, "starting game\nYou are cross\n")
	assert.Contains(t, out, "Opponent's turn\n")
	assert.Contains(t, out, "Game over with result: cross\n")
	assert.Less(t, strings.Index(out, "O| |"), strings.Index(out, "Game over"))
	assert.Equal(t, int64(1), h.metrics.MovesSent())
	assert.GreaterOrEqual(t, conn.closes, 1)
}

func TestSession_JoinerHandshake(t *testing.T) {
	conn := newFakeConn(
		event(room, `{"initialGameData":`+joinerPair+`}`),
		event(room, `{"message":"verifyGameData"}`),
		event(protocol.EventDisconnect, ""),
	)
	h := newHarness(game.TicTacToe, conn)

	err := h.run(t)
	assert.ErrorIs(t, err, ncerr.ErrServerClosed)

	assert.Equal(t, game.Naught, h.session.PlayerType())
	assert.Empty(t, h.prompter.prompts)

	sent := conn.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, room, sent[1].Name)
	assert.Equal(t, `{"verifyGameData":{"board":{}}}`, sent[1].Data)
	assert.Contains(t, h.out.String(), "You are naught\n")
}

func TestSession_InitiatorCacheStripsMarker(t *testing.T) {
	conn := newFakeConn(
		event(protocol.EventInitialGameData, `[{"ownPlayer":"p1","z":1,"playerType":"first","a":2},{"playerType":"second"}]`),
		event("connect4-a", `{"message":"verifyGameData"}`),
		event(protocol.EventDisconnect, ""),
	)
	h := newHarness(game.ConnectFour, conn, "3")

	_ = h.run(t)

	assert.Equal(t, []string{"Give a pos 0 to 6: "}, h.prompter.prompts)
	sent := conn.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, `{"verifyGameData":{"z":1,"a":2}}`, sent[2].Data)
}

func TestSession_VerifyEchoesLatestStateVerbatim(t *testing.T) {
	state := `{"currentPlayer":"cross","winner":null,"board":{"1":"naught"}}`
	conn := newFakeConn(
		event(protocol.EventInitialGameData, joinerPair),
		event(room, `{"gameData":`+state+`}`),
		event(room, `{"message":"verifyGameData"}`),
		event(protocol.EventDisconnect, ""),
	)
	h := newHarness(game.TicTacToe, conn, "2")
	// naught is ours; currentPlayer is cross so no prompt
	_ = h.run(t)

	assert.Empty(t, h.prompter.prompts)
	sent := conn.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, `{"verifyGameData":`+state+`}`, sent[1].Data)
	assert.Equal(t, state, string(h.session.GameState()))
}

func TestSession_SecondHandshakeIgnored(t *testing.T) {
	conn := newFakeConn(
		event(protocol.EventInitialGameData, joinerPair),
		event(protocol.EventInitialGameData, initiatorPair),
		event(protocol.EventDisconnect, ""),
	)
	h := newHarness(game.TicTacToe, conn)

	_ = h.run(t)
	assert.Equal(t, game.Naught, h.session.PlayerType())
	assert.Empty(t, h.prompter.prompts)
}

func TestSession_HandshakeWithoutMarkerIgnored(t *testing.T) {
	conn := newFakeConn(
		event(protocol.EventInitialGameData, `[{"playerType":"cross"},{"playerType":"naught"}]`),
		event(protocol.EventDisconnect, ""),
	)
	h := newHarness(game.TicTacToe, conn)

	_ = h.run(t)
	assert.Empty(t, h.session.PlayerType())
}

func TestSession_BadMoveOnOurTurnReprompts(t *testing.T) {
	conn := newFakeConn(
		event(protocol.EventInitialGameData, initiatorPair),
		event(room, `{"message":"badMove"}`),
		event(protocol.EventDisconnect, ""),
	)
	h := newHarness(game.TicTacToe, conn, "9", "1")

	_ = h.run(t)

	assert.Len(t, h.prompter.prompts, 2)
	assert.Contains(t, h.out.String(), "Bad move play again!\n")
	sent := conn.sent()
	require.Len(t, sent, 3)
	assert.JSONEq(t, `{"move":{"player":"cross","position":9}}`, sent[1].Data)
	assert.JSONEq(t, `{"move":{"player":"cross","position":1}}`, sent[2].Data)
	assert.Equal(t, int64(1), h.metrics.BadMoves())
}

func TestSession_BadMoveOutOfTurnIsNoop(t *testing.T) {
	conn := newFakeConn(
		event(protocol.EventInitialGameData, joinerPair),
		event(room, `{"message":"badMove"}`),
		event(protocol.EventDisconnect, ""),
	)
	h := newHarness(game.TicTacToe, conn)

	_ = h.run(t)

	assert.Empty(t, h.prompter.prompts)
	assert.NotContains(t, h.out.String(), "Bad move")
	assert.Len(t, conn.sent(), 1)
}

func TestSession_InvalidGameDataEndsSession(t *testing.T) {
	for name, pair := range map[string]string{"our turn": initiatorPair, "their turn": joinerPair} {
		t.Run(name, func(t *testing.T) {
			conn := newFakeConn(
				event(protocol.EventInitialGameData, pair),
				event(room, `{"message":"invalidGameData"}`),
			)
			h := newHarness(game.TicTacToe, conn, "0")

			err := h.run(t)
			assert.ErrorIs(t, err, ncerr.ErrCheatDetected)
			assert.Contains(t, h.out.String(), "Somebody cheated bye.\n")
			assert.GreaterOrEqual(t, conn.closes, 1)
		})
	}
}

func TestSession_WinnerStopsPrompting(t *testing.T) {
	conn := newFakeConn(
		event(protocol.EventInitialGameData, joinerPair),
		event(room, `{"gameData":{"board":{},"currentPlayer":"naught","winner":"draw"}}`),
	)
	h := newHarness(game.TicTacToe, conn, "1")

	require.NoError(t, h.run(t))
	assert.Empty(t, h.prompter.prompts)
	assert.Contains(t, h.out.String(), "Game over with result: draw\n")
	assert.Equal(t, 1, strings.Count(h.out.String(), "disconnected from server"))
}

func TestSession_NonIntegerReprompts(t *testing.T) {
	conn := newFakeConn(
		event(protocol.EventInitialGameData, initiatorPair),
		event(protocol.EventDisconnect, ""),
	)
	h := newHarness(game.TicTacToe, conn, "middle", " 4 ")

	_ = h.run(t)

	assert.Len(t, h.prompter.prompts, 2)
	assert.Contains(t, h.out.String(), `"middle" is not a position`)
	sent := conn.sent()
	require.Len(t, sent, 2)
	assert.JSONEq(t, `{"move":{"player":"cross","position":4}}`, sent[1].Data)
}

func TestSession_UnknownRoomShapesIgnored(t *testing.T) {
	conn := newFakeConn(
		event(protocol.EventInitialGameData, joinerPair),
		event(room, `{"foo":1}`),
		event(room, `[1,2]`),
		event(room, `not json`),
		event("tictactoe-b", `{"message":"invalidGameData"}`),
		event(protocol.EventDisconnect, ""),
	)
	h := newHarness(game.TicTacToe, conn)

	err := h.run(t)
	assert.ErrorIs(t, err, ncerr.ErrServerClosed)
	assert.NotContains(t, h.out.String(), "cheated")
}

func TestSession_ServerError(t *testing.T) {
	conn := newFakeConn(event(protocol.EventError, `"Game already full"`))
	h := newHarness(game.TicTacToe, conn)

	err := h.run(t)
	assert.ErrorIs(t, err, ncerr.ErrJoinRejected)
	assert.Contains(t, err.Error(), "Game already full")
	assert.Contains(t, h.out.String(), "Server error: Game already full\n")
}

func TestSession_JoinTimeout(t *testing.T) {
	conn := newFakeConn()
	h := newHarness(game.TicTacToe, conn)
	h.session.cfg.JoinTimeout = 20 * time.Millisecond

	err := h.run(t)
	assert.ErrorIs(t, err, ncerr.ErrJoinTimeout)
	assert.GreaterOrEqual(t, conn.closes, 1)
}

func TestSession_PromptAbandonedOnDisconnect(t *testing.T) {
	conn := newFakeConn(event(protocol.EventInitialGameData, initiatorPair))
	h := newHarness(game.TicTacToe, conn)
	h.prompter.onEmpty = conn.drop

	err := h.run(t)
	assert.ErrorIs(t, err, ncerr.ErrServerClosed)
	assert.Len(t, h.prompter.prompts, 1)
	assert.Len(t, conn.sent(), 1)
}

func TestSession_ContextCancelled(t *testing.T) {
	conn := newFakeConn(event(protocol.EventInitialGameData, initiatorPair))
	h := newHarness(game.TicTacToe, conn)

	ctx, cancel := context.WithCancel(context.Background())
	h.prompter.onEmpty = cancel

	err := h.session.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_ConnectFailure(t *testing.T) {
	s := New(Config{
		Kind: game.TicTacToe,
		Connect: func(context.Context, func()) (Conn, error) {
			return nil, ncerr.ErrTimeout
		},
	})
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ncerr.ErrTimeout)
	assert.Equal(t, Connecting, s.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting my move", AwaitingMyMove.String())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestSession_LoneMarkedRecordForOpponent(t *testing.T) {
	const c4room = "connect4-a"
	conn := newFakeConn(
		event(c4room, `{"initialGameData":{"ownPlayer":"p0","playerType":"red","board":{}}}`),
		event(c4room, `{"message":"verifyGameData"}`),
		event(c4room, `{"gameData":{"board":{"3":{"0":"yellow"}},"currentPlayer":"red","winner":null}}`),
		event(protocol.EventDisconnect, ""),
	)
	h := newHarness(game.ConnectFour, conn, "2")

	err := h.run(t)
	assert.ErrorIs(t, err, ncerr.ErrServerClosed)

	assert.Equal(t, game.PlayerType("red"), h.session.PlayerType())
	assert.Equal(t, []string{"Give a pos 0 to 6: "}, h.prompter.prompts)

	sent := conn.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, `{"verifyGameData":{"board":{}}}`, sent[1].Data)
	assert.JSONEq(t, `{"move":{"player":"red","position":2}}`, sent[2].Data)
	assert.Contains(t, h.out.String(), "You are red\n")
}

// dropOnAnswer answers once, closing the connection just before the
// answer is returned.
type dropOnAnswer struct {
	conn   *fakeConn
	answer string
}

func (p *dropOnAnswer) Prompt(context.Context, string) (string, error) {
	p.conn.drop()
	return p.answer, nil
}

func TestSession_MoveAfterDisconnectNotCounted(t *testing.T) {
	conn := newFakeConn(event(protocol.EventInitialGameData, initiatorPair))
	m := metrics.New()
	s := New(Config{
		Kind:     game.TicTacToe,
		GameID:   "a",
		PlayerID: "p1",
		Connect: func(_ context.Context, opened func()) (Conn, error) {
			opened()
			return conn, nil
		},
		Prompter: &dropOnAnswer{conn: conn, answer: "4"},
		Out:      &bytes.Buffer{},
		Metrics:  m,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Run(ctx)

	assert.ErrorIs(t, err, ncerr.ErrServerClosed)
	assert.Len(t, conn.sent(), 1)
	assert.Equal(t, int64(0), m.MovesSent())
}
