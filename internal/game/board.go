package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	TicTacToeCells = 9

	ConnectFourColumns = 7
	ConnectFourRows    = 6
)

// Board is the sparse board mapping pushed by the server.
//
// For tic-tac-toe the keys are cell indexes "0".."8" and the values are
// occupant names.  For connect-four the keys are column indexes and each
// value is a nested Board keyed by row index.  Absent keys are empty.
type Board map[string]any

// DecodeBoard parses a board from JSON.  Objects and arrays are both
// accepted at every level; an array is read as index → value and null
// entries are treated as empty.  A missing or null board is empty.
func DecodeBoard(raw json.RawMessage) (Board, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Board{}, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}

	b, ok := normalize(v)
	if !ok {
		return nil, fmt.Errorf("decode board: expected object or array, got %s", raw)
	}
	return b, nil
}

func normalize(v any) (Board, bool) {
	out := Board{}
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			if item = normalizeValue(item); item != nil {
				out[k] = item
			}
		}
	case []any:
		for i, item := range t {
			if item = normalizeValue(item); item != nil {
				out[strconv.Itoa(i)] = item
			}
		}
	default:
		return nil, false
	}
	return out, true
}

func normalizeValue(v any) any {
	switch v.(type) {
	case nil:
		return nil
	case map[string]any, []any:
		nested, _ := normalize(v)
		return nested
	default:
		return v
	}
}

// Cell returns the occupant stored under key, or "" when the key is
// absent or does not hold a name.
func (b Board) Cell(key string) string {
	s, _ := b[key].(string)
	return s
}

// Occupied reports whether key holds any value.  Nulls are dropped on
// decode, so a present key is always occupied.
func (b Board) Occupied(key string) bool {
	_, ok := b[key]
	return ok
}

// Column returns the nested row mapping stored under a column key.
func (b Board) Column(key string) Board {
	c, _ := b[key].(Board)
	return c
}
