package board

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyGrid   = errors.New("grid is empty")
	ErrNotSquare   = errors.New("grid is not square")
	ErrEmptyLetter = errors.New("grid contains an empty letter")
)

// Cell is a (row, col) coordinate on a grid.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Adjacent reports whether two cells touch under 8-directional adjacency
// (Chebyshev distance of exactly one).
func (c Cell) Adjacent(other Cell) bool {
	if c == other {
		return false
	}
	return abs(c.Row-other.Row) <= 1 && abs(c.Col-other.Col) <= 1
}

// Grid is an immutable square grid of letters indexed [row][col].
type Grid struct {
	letters [][]string
}

// NewGrid validates rows received from the server and copies them into a Grid.
func NewGrid(rows [][]string) (Grid, error) {
	n := len(rows)
	if n == 0 {
		return Grid{}, ErrEmptyGrid
	}

	letters := make([][]string, n)
	for r, row := range rows {
		if len(row) != n {
			return Grid{}, fmt.Errorf("row %d has %d letters, want %d: %w", r, len(row), n, ErrNotSquare)
		}
		for c, letter := range row {
			if letter == "" {
				return Grid{}, fmt.Errorf("cell (%d,%d): %w", r, c, ErrEmptyLetter)
			}
		}
		letters[r] = append([]string(nil), row...)
	}

	return Grid{letters: letters}, nil
}

// Size returns N for an N×N grid. The zero Grid has size 0.
func (g Grid) Size() int {
	return len(g.letters)
}

// Contains reports whether the cell lies inside the grid.
func (g Grid) Contains(c Cell) bool {
	n := g.Size()
	return c.Row >= 0 && c.Row < n && c.Col >= 0 && c.Col < n
}

// Letter returns the letter at c. It panics if c is out of bounds; callers
// check Contains first.
func (g Grid) Letter(c Cell) string {
	return g.letters[c.Row][c.Col]
}

// Rows returns a copy of the letters for display.
func (g Grid) Rows() [][]string {
	out := make([][]string, len(g.letters))
	for i, row := range g.letters {
		out[i] = append([]string(nil), row...)
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
