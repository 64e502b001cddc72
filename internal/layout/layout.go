// Package layout subdivides the display into a grid of equally sized cells.
package layout

import (
	"errors"
	"fmt"
)

// ErrInvalidGrid is returned when a grid or display dimension is not positive.
var ErrInvalidGrid = errors.New("layout: invalid grid")

// Cell is the placement of one grid cell on the display, in pixels.
type Cell struct {
	Index  int
	X      int
	Y      int
	Width  int
	Height int
}

// Layout is the result of subdividing a display.
type Layout struct {
	DisplayWidth  int
	DisplayHeight int
	Horizontal    int
	Vertical      int
	CellWidth     int
	CellHeight    int
	Cells         []Cell
}

// Compute splits a displayW x displayH area into h columns and v rows.
//
// Cells are numbered row-major from 0. Width and height use floor division;
// when the display is not evenly divisible the remainder pixels on the right
// and bottom edges stay unused.
func Compute(displayW, displayH, h, v int) (Layout, error) {
	if h < 1 || v < 1 {
		return Layout{}, fmt.Errorf("%w: grid %dx%d", ErrInvalidGrid, h, v)
	}
	if displayW < 1 || displayH < 1 {
		return Layout{}, fmt.Errorf("%w: display %dx%d", ErrInvalidGrid, displayW, displayH)
	}

	cellW := displayW / h
	cellH := displayH / v
	if cellW == 0 || cellH == 0 {
		return Layout{}, fmt.Errorf("%w: display %dx%d too small for grid %dx%d",
			ErrInvalidGrid, displayW, displayH, h, v)
	}

	cells := make([]Cell, h*v)
	for n := range cells {
		cells[n] = Cell{
			Index:  n,
			X:      (n % h) * cellW,
			Y:      (n / h) * cellH,
			Width:  cellW,
			Height: cellH,
		}
	}

	return Layout{
		DisplayWidth:  displayW,
		DisplayHeight: displayH,
		Horizontal:    h,
		Vertical:      v,
		CellWidth:     cellW,
		CellHeight:    cellH,
		Cells:         cells,
	}, nil
}

// Cell returns the cell at index n.
func (l Layout) Cell(n int) (Cell, bool) {
	if n < 0 || n >= len(l.Cells) {
		return Cell{}, false
	}
	return l.Cells[n], true
}
