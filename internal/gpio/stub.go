//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Output is not implemented on non-Linux platforms.
func (c *Chip) Output(offset int) (*RealPin, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *Chip) Close() error {
	return nil
}

// RealPin is not available on non-Linux platforms.
type RealPin struct{}

func (p *RealPin) SetHigh() error  { return errUnsupported }
func (p *RealPin) SetLow() error   { return errUnsupported }
func (p *RealPin) Toggle() error   { return errUnsupported }
func (p *RealPin) IsSetHigh() bool { return false }
