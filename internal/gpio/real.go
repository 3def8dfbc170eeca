//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// Consumer is the label attached to every requested line.
const Consumer = "fall-sensor"

// Chip owns a GPIO chip and every output line requested from it.
type Chip struct {
	chip  *gpiocdev.Chip
	lines []*RealPin
}

// OpenChip opens a GPIO character device, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

// Output requests the line at offset as an output driven low.
func (c *Chip) Output(offset int) (*RealPin, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	p := &RealPin{line: line, offset: offset}
	c.lines = append(c.lines, p)
	return p, nil
}

// Close drives every requested line low, releases them and closes the chip.
// Lines are left low so the speaker is silent and the matrix dark after exit.
func (c *Chip) Close() error {
	var err error
	for _, p := range c.lines {
		if e := p.line.SetValue(0); e != nil {
			err = multierr.Append(err, fmt.Errorf("drive pin %d low: %w", p.offset, e))
		}
		if e := p.line.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close pin %d: %w", p.offset, e))
		}
	}
	c.lines = nil
	if c.chip != nil {
		if e := c.chip.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", e))
		}
		c.chip = nil
	}
	return err
}

// RealPin is one requested output line. The driven level is cached so Toggle
// and IsSetHigh do not need a read-back.
type RealPin struct {
	line   *gpiocdev.Line
	offset int
	high   bool
}

// SetHigh drives the line high.
func (p *RealPin) SetHigh() error { return p.set(true) }

// SetLow drives the line low.
func (p *RealPin) SetLow() error { return p.set(false) }

// Toggle inverts the driven level.
func (p *RealPin) Toggle() error { return p.set(!p.high) }

// IsSetHigh reports the level last driven.
func (p *RealPin) IsSetHigh() bool { return p.high }

func (p *RealPin) set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	if err := p.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", p.offset, err)
	}
	p.high = high
	return nil
}
