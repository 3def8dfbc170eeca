// Package gpio provides digital output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Pin is a push-pull digital output that remembers the level it drives.
type Pin interface {
	SetHigh() error
	SetLow() error
	// Toggle inverts the driven level.
	Toggle() error
	// IsSetHigh reports the level last driven, not a read-back of the line.
	IsSetHigh() bool
}

// Pin definitions (BCM numbering) for the default wiring.
const (
	DefaultPinSpeaker = 18
)

// DefaultRowPins drive the LED matrix anodes (active high).
var DefaultRowPins = [5]int{5, 6, 13, 19, 26}

// DefaultColPins drive the LED matrix cathodes (active low).
var DefaultColPins = [5]int{12, 16, 20, 21, 25}
