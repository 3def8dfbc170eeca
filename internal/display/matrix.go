package display

import (
	"fmt"

	"github.com/sweeney/fall-sensor/internal/gpio"
)

// Matrix is the display handle: the row and column lines plus the
// multiplexing state. Rows are active high, columns active low.
type Matrix struct {
	rows [Size]gpio.Pin
	cols [Size]gpio.Pin

	frame      Frame
	row        int // row currently driven, -1 before the first tick
	ticks      uint32
	blinkTicks uint32

	shows int
	fault error
}

// NewMatrix returns a handle that has not driven any line yet. blinkTicks is
// the length of one blink half-cycle in refresh ticks.
func NewMatrix(rows, cols [Size]gpio.Pin, blinkTicks uint32) Matrix {
	return Matrix{rows: rows, cols: cols, row: -1, blinkTicks: blinkTicks}
}

// show replaces the frame buffer. No line is touched; the next refresh ticks
// pick the new frame up.
func (m *Matrix) show(f Frame) {
	m.frame = f
	m.shows++
}

// step performs one multiplexing step: the lit row is switched off, the
// columns are set up for the next row and that row is switched on.
// The first write error is latched and the matrix stops driving.
func (m *Matrix) step() {
	if m.fault != nil {
		return
	}
	m.ticks++
	next := (m.row + 1) % Size

	if m.row >= 0 {
		if err := m.rows[m.row].SetLow(); err != nil {
			m.fault = fmt.Errorf("row %d off: %w", m.row, err)
			return
		}
	}

	blank := m.frame.Blink && m.blinkTicks > 0 && (m.ticks/m.blinkTicks)%2 == 1
	for c := 0; c < Size; c++ {
		var err error
		if m.frame.Pixels[next][c] && !blank {
			err = m.cols[c].SetLow()
		} else {
			err = m.cols[c].SetHigh()
		}
		if err != nil {
			m.fault = fmt.Errorf("column %d: %w", c, err)
			return
		}
	}

	if err := m.rows[next].SetHigh(); err != nil {
		m.fault = fmt.Errorf("row %d on: %w", next, err)
		return
	}
	m.row = next
}

// clear switches every row off and every column to its inactive level.
func (m *Matrix) clear() error {
	m.frame = BlankFrame
	for r := 0; r < Size; r++ {
		if err := m.rows[r].SetLow(); err != nil {
			return fmt.Errorf("row %d off: %w", r, err)
		}
	}
	for c := 0; c < Size; c++ {
		if err := m.cols[c].SetHigh(); err != nil {
			return fmt.Errorf("column %d off: %w", c, err)
		}
	}
	m.row = -1
	return nil
}
