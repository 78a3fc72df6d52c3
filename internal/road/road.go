// Package road lays out outcome streaks on a fixed-height grid.
package road

import "strings"

// Rows is the fixed grid height.
const Rows = 6

// DisplayColumns is how many trailing columns reports keep.
const DisplayColumns = 14

// Cell is one grid slot.
type Cell int8

const (
	Empty Cell = iota
	Win
	Loss
)

func cellOf(outcome bool) Cell {
	if outcome {
		return Win
	}
	return Loss
}

// Column holds one grid column, row 0 at the top.
type Column [Rows]Cell

// Grid is a laid-out road, oldest column first.
type Grid struct {
	Columns []Column
}

type turn struct {
	row   int
	count int
}

type layout struct {
	cols   []Column
	turned map[int]*turn
	order  []int
}

// Layout places outcomes, oldest first. A run stacks down one column; when it
// reaches the bottom it turns right along a row, one row above any earlier
// turn it would otherwise run into.
func Layout(outcomes []bool) Grid {
	l := &layout{turned: make(map[int]*turn)}
	for _, o := range outcomes {
		l.add(cellOf(o))
	}
	return Grid{Columns: l.cols}
}

func (l *layout) add(c Cell) {
	if len(l.cols) == 0 {
		var col Column
		col[0] = c
		l.cols = append(l.cols, col)
		return
	}

	latest := 0
	for i := range l.cols {
		if l.cols[i][0] == Empty {
			break
		}
		latest = i
	}
	if l.cols[latest][0] != c {
		latest++
	}
	if latest >= len(l.cols) {
		l.cols = append(l.cols, Column{})
	}

	for row := 0; row < Rows; row++ {
		if l.cols[latest][row] == Empty {
			l.cols[latest][row] = c
			return
		}
	}

	target := Rows - 1
	for _, origin := range l.order {
		if origin == latest {
			continue
		}
		t := l.turned[origin]
		if origin+t.count >= latest {
			target = t.row - 1
		}
	}
	if target < 0 {
		target = 0
	}
	t, ok := l.turned[latest]
	if !ok {
		t = &turn{row: target}
		l.turned[latest] = t
		l.order = append(l.order, latest)
	}

	for col := latest + 1; ; col++ {
		if col >= len(l.cols) {
			l.cols = append(l.cols, Column{})
		}
		if l.cols[col][target] == Empty {
			l.cols[col][target] = c
			t.row = target
			t.count++
			return
		}
	}
}

// Filled counts the occupied cells.
func (g Grid) Filled() int {
	n := 0
	for _, col := range g.Columns {
		for _, c := range col {
			if c != Empty {
				n++
			}
		}
	}
	return n
}

// Tail keeps the last n columns.
func (g Grid) Tail(n int) Grid {
	if n <= 0 || len(g.Columns) <= n {
		return g
	}
	cols := make([]Column, n)
	copy(cols, g.Columns[len(g.Columns)-n:])
	return Grid{Columns: cols}
}

// String renders the grid row by row.
func (g Grid) String() string {
	var b strings.Builder
	for row := 0; row < Rows; row++ {
		for _, col := range g.Columns {
			switch col[row] {
			case Win:
				b.WriteString("✅")
			case Loss:
				b.WriteString("❌")
			default:
				b.WriteString("⬛️")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
