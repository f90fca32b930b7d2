// Package selection turns pointer gestures over a letter grid into word guesses.
//
// A gesture starts with PointerDown on a cell, grows or shrinks with
// PointerOver, and finishes with PointerUp, which emits the spelled word.
// Moving back over the second-to-last cell retracts the last letter; every
// other invalid movement (non-adjacent, out of bounds, revisiting a chosen
// cell) is absorbed without changing the selection.
package selection

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordtwist/go/internal/board"
)

// GuessFunc receives a finished guess on pointer release.
type GuessFunc func(word string)

// Tracker holds the in-progress selection for one grid.
// It is not safe for concurrent use; input events are delivered in order by
// the caller.
type Tracker struct {
	grid    board.Grid
	path    []board.Cell
	mask    [][]bool
	letters []string
	onGuess GuessFunc
}

// NewTracker creates a tracker for grid. onGuess may be nil, in which case
// guesses are only returned from PointerUp.
func NewTracker(grid board.Grid, onGuess GuessFunc) *Tracker {
	t := &Tracker{onGuess: onGuess}
	t.Reset(grid)
	return t
}

// Reset discards any active selection and switches to grid.
func (t *Tracker) Reset(grid board.Grid) {
	t.grid = grid
	t.path = t.path[:0]
	t.letters = t.letters[:0]
	t.mask = make([][]bool, grid.Size())
	for i := range t.mask {
		t.mask[i] = make([]bool, grid.Size())
	}
}

// PointerDown starts a new path at cell. It is ignored while a path is
// active or when cell is outside the grid.
func (t *Tracker) PointerDown(cell board.Cell) {
	if len(t.path) > 0 || !t.grid.Contains(cell) {
		return
	}
	t.extend(cell)
}

// PointerOver extends, backtracks or ignores depending on where cell lies
// relative to the tail of the path.
func (t *Tracker) PointerOver(cell board.Cell) {
	n := len(t.path)
	if n == 0 || !t.grid.Contains(cell) {
		return
	}

	last := t.path[n-1]
	if !last.Adjacent(cell) {
		return
	}

	if n >= 2 && t.path[n-2] == cell {
		t.path = t.path[:n-1]
		t.letters = t.letters[:n-1]
		t.mask[last.Row][last.Col] = false
		return
	}

	if t.mask[cell.Row][cell.Col] {
		return
	}
	t.extend(cell)
}

// PointerUp finishes the gesture. When a path was active its word is passed
// to the guess callback and returned with ok set; the selection is cleared
// either way.
func (t *Tracker) PointerUp() (word string, ok bool) {
	if len(t.path) > 0 {
		word, ok = t.Word(), true
	}

	t.path = t.path[:0]
	t.letters = t.letters[:0]
	for _, row := range t.mask {
		clear(row)
	}

	if ok {
		log.Debug().Str("word", word).Msg("selection released")
		if t.onGuess != nil {
			t.onGuess(word)
		}
	}
	return word, ok
}

// Path returns a copy of the selected cells in order.
func (t *Tracker) Path() []board.Cell {
	return append([]board.Cell(nil), t.path...)
}

// Len returns the number of selected cells, which is also the number of
// letters in Word.
func (t *Tracker) Len() int {
	return len(t.path)
}

// Word returns the candidate word spelled by the current path.
func (t *Tracker) Word() string {
	return strings.Join(t.letters, "")
}

// Selected reports whether cell is part of the current path.
func (t *Tracker) Selected(cell board.Cell) bool {
	if !t.grid.Contains(cell) {
		return false
	}
	return t.mask[cell.Row][cell.Col]
}

// Active reports whether a gesture is in progress.
func (t *Tracker) Active() bool {
	return len(t.path) > 0
}

func (t *Tracker) extend(cell board.Cell) {
	t.path = append(t.path, cell)
	t.letters = append(t.letters, t.grid.Letter(cell))
	t.mask[cell.Row][cell.Col] = true
}
