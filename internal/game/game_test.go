package game

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"tictactoe", TicTacToe, false},
		{"connect4", ConnectFour, false},
		{" Connect4 ", ConnectFour, false},
		{"chess", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKind_MaxPositionAndRoom(t *testing.T) {
	assert.Equal(t, 8, TicTacToe.MaxPosition())
	assert.Equal(t, 6, ConnectFour.MaxPosition())
	assert.Equal(t, "tictactoe-a", TicTacToe.Room("a"))
	assert.Equal(t, "connect4-42", ConnectFour.Room("42"))
}

func TestDecodeBoard(t *testing.T) {
	t.Run("null", func(t *testing.T) {
		b, err := DecodeBoard(json.RawMessage("null"))
		require.NoError(t, err)
		assert.Empty(t, b)
	})

	t.Run("object", func(t *testing.T) {
		b, err := DecodeBoard(json.RawMessage(`{"0":"cross","4":"naught","5":null}`))
		require.NoError(t, err)
		assert.Equal(t, "cross", b.Cell("0"))
		assert.Equal(t, "naught", b.Cell("4"))
		assert.NotContains(t, b, "5")
	})

	t.Run("array", func(t *testing.T) {
		b, err := DecodeBoard(json.RawMessage(`["cross",null,"naught"]`))
		require.NoError(t, err)
		assert.Equal(t, "cross", b.Cell("0"))
		assert.Equal(t, "", b.Cell("1"))
		assert.Equal(t, "naught", b.Cell("2"))
	})

	t.Run("nested", func(t *testing.T) {
		b, err := DecodeBoard(json.RawMessage(`{"3":{"0":"first"},"4":["second"]}`))
		require.NoError(t, err)
		assert.Equal(t, "first", b.Column("3").Cell("0"))
		assert.Equal(t, "second", b.Column("4").Cell("0"))
	})

	t.Run("scalar", func(t *testing.T) {
		_, err := DecodeBoard(json.RawMessage(`"nope"`))
		require.Error(t, err)
	})
}

func TestRender_TicTacToe(t *testing.T) {
	b, err := DecodeBoard(json.RawMessage(`{"0":"cross","4":"naught"}`))
	require.NoError(t, err)

	assert.Equal(t, "X| | \n-----\n |O| \n-----\n | | ", Render(b, TicTacToe))
}

func TestRender_TicTacToeUnknownOccupantIsO(t *testing.T) {
	b := Board{"8": "nought"}
	lines := strings.Split(Render(b, TicTacToe), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, " | |O", lines[4])
}

func TestRender_TicTacToeNonStringOccupantIsO(t *testing.T) {
	b, err := DecodeBoard(json.RawMessage(`{"0":"cross","3":1,"4":true,"5":null}`))
	require.NoError(t, err)

	assert.Equal(t, "X| | \n-----\nO|O| \n-----\n | | ", Render(b, TicTacToe))
	assert.False(t, b.Occupied("5"))
}

func TestRender_Empty(t *testing.T) {
	assert.Equal(t, " | | \n-----\n | | \n-----\n | | ", Render(Board{}, TicTacToe))

	lines := strings.Split(Render(nil, ConnectFour), "\n")
	require.Len(t, lines, ConnectFourRows+1)
	for _, l := range lines[:ConnectFourRows] {
		assert.Equal(t, "|   |   |   |   |   |   |   |", l)
	}
}

func TestRender_ConnectFour(t *testing.T) {
	b, err := DecodeBoard(json.RawMessage(`{"3":{"0":"first","1":"second"},"0":{"0":"second"},"9":{"0":"first"}}`))
	require.NoError(t, err)

	want := strings.Join([]string{
		"|   |   |   |   |   |   |   |",
		"|   |   |   |   |   |   |   |",
		"|   |   |   |   |   |   |   |",
		"|   |   |   |   |   |   |   |",
		"|   |   |   | O |   |   |   |",
		"| O |   |   | X |   |   |   |",
		"  0   1   2   3   4   5   6",
	}, "\n")
	assert.Equal(t, want, Render(b, ConnectFour))
}

func TestRender_ConnectFourRedYellow(t *testing.T) {
	b := Board{"6": Board{"5": "red", "4": "yellow", "3": "green"}}
	lines := strings.Split(Render(b, ConnectFour), "\n")
	assert.Equal(t, "|   |   |   |   |   |   | X |", lines[0])
	assert.Equal(t, "|   |   |   |   |   |   | O |", lines[1])
	assert.Equal(t, "|   |   |   |   |   |   |   |", lines[2])
}

func TestRender_Idempotent(t *testing.T) {
	b, err := DecodeBoard(json.RawMessage(`{"1":{"0":"first"},"2":{"0":"second","1":"first"}}`))
	require.NoError(t, err)

	for _, k := range Kinds {
		assert.Equal(t, Render(b, k), Render(b, k), "kind %s", k)
	}
}

func TestRenderColor_SameLayout(t *testing.T) {
	b := Board{"0": "cross", "4": "naught"}
	colored := RenderColor(b, TicTacToe)
	assert.Len(t, strings.Split(colored, "\n"), 5)
	assert.Contains(t, colored, divider)
}
