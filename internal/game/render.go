package game

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const divider = "-----"

var ( //nolint:gochecknoglobals
	xStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")).Bold(true)
	oStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6")).Bold(true)
)

// markFunc decorates a rendered X or O.
type markFunc func(mark string) string

func plainMark(mark string) string { return mark }

func colorMark(mark string) string {
	switch mark {
	case "X":
		return xStyle.Render(mark)
	case "O":
		return oStyle.Render(mark)
	default:
		return mark
	}
}

// Render draws board as plain text for the given game.  The result has
// no trailing newline and depends only on its inputs.
func Render(b Board, k Kind) string {
	return render(b, k, plainMark)
}

// RenderColor draws the same layout as Render with styled marks.
func RenderColor(b Board, k Kind) string {
	return render(b, k, colorMark)
}

func render(b Board, k Kind, mark markFunc) string {
	if k == ConnectFour {
		return renderConnectFour(b, mark)
	}
	return renderTicTacToe(b, mark)
}

// ── tic-tac-toe ──────────────────────────────────────────────────────

func ticTacToeMark(occupant string) string {
	if PlayerType(occupant) == Cross {
		return "X"
	}
	return "O"
}

func renderTicTacToe(b Board, mark markFunc) string {
	cells := make([]string, TicTacToeCells)
	for i := range cells {
		key := strconv.Itoa(i)
		cells[i] = " "
		if b.Occupied(key) {
			cells[i] = mark(ticTacToeMark(b.Cell(key)))
		}
	}

	rows := make([]string, 0, 3)
	for r := 0; r < 3; r++ {
		rows = append(rows, strings.Join(cells[r*3:(r+1)*3], "|"))
	}
	return strings.Join(rows, "\n"+divider+"\n")
}

// ── connect-four ─────────────────────────────────────────────────────

// connectFourMark maps an occupant to its mark; red/yellow are the names
// used by some server builds for first/second.
func connectFourMark(occupant string) string {
	switch occupant {
	case string(First), "red":
		return "X"
	case string(Second), "yellow":
		return "O"
	default:
		return ""
	}
}

func renderConnectFour(b Board, mark markFunc) string {
	var grid [ConnectFourRows][ConnectFourColumns]string
	for r := range grid {
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}

	for colKey := range b {
		col, err := strconv.Atoi(colKey)
		if err != nil || col < 0 || col >= ConnectFourColumns {
			continue
		}
		for rowKey := range b.Column(colKey) {
			row, err := strconv.Atoi(rowKey)
			if err != nil || row < 0 || row >= ConnectFourRows {
				continue
			}
			if m := connectFourMark(b.Column(colKey).Cell(rowKey)); m != "" {
				grid[row][col] = mark(m)
			}
		}
	}

	lines := make([]string, 0, ConnectFourRows+1)
	// Row 0 is the bottom of the board, so it is printed last.
	for r := ConnectFourRows - 1; r >= 0; r-- {
		lines = append(lines, "| "+strings.Join(grid[r][:], " | ")+" |")
	}

	footer := make([]string, ConnectFourColumns)
	for c := range footer {
		footer[c] = strconv.Itoa(c)
	}
	lines = append(lines, "  "+strings.Join(footer, "   "))

	return strings.Join(lines, "\n")
}
