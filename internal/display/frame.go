// Package display drives a 5x5 LED matrix by row multiplexing from a periodic
// refresh interrupt.
package display

// Size is the matrix edge length.
const Size = 5

// Frame is one bitmap. Blinking frames are blanked every other blink window.
type Frame struct {
	Pixels [Size][Size]bool
	Blink  bool
}

// NewFrame builds a frame from a 0/1 grid, row major.
func NewFrame(grid [Size][Size]uint8) Frame {
	var f Frame
	for r := range grid {
		for c := range grid[r] {
			f.Pixels[r][c] = grid[r][c] != 0
		}
	}
	return f
}

// Lit returns the number of lit pixels.
func (f Frame) Lit() int {
	n := 0
	for r := range f.Pixels {
		for c := range f.Pixels[r] {
			if f.Pixels[r][c] {
				n++
			}
		}
	}
	return n
}

// StableFrame is a single centre dot.
var StableFrame = NewFrame([Size][Size]uint8{
	{0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0},
	{0, 0, 1, 0, 0},
	{0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0},
})

// FallingFrame is a vertical dashed line, an exclamation mark.
var FallingFrame = NewFrame([Size][Size]uint8{
	{0, 0, 1, 0, 0},
	{0, 0, 1, 0, 0},
	{0, 0, 1, 0, 0},
	{0, 0, 0, 0, 0},
	{0, 0, 1, 0, 0},
})

// FaultFrame is a blinking cross shown while the sensor cannot be read.
var FaultFrame = func() Frame {
	f := NewFrame([Size][Size]uint8{
		{1, 0, 0, 0, 1},
		{0, 1, 0, 1, 0},
		{0, 0, 1, 0, 0},
		{0, 1, 0, 1, 0},
		{1, 0, 0, 0, 1},
	})
	f.Blink = true
	return f
}()

// BlankFrame lights nothing.
var BlankFrame Frame
