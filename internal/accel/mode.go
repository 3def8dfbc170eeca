package accel

import (
	"fmt"
	"strings"
)

// Mode is the accelerometer power mode.
type Mode int

const (
	ModeNormal   Mode = iota // 10-bit
	ModeLowPower             // 8-bit
)

func (m Mode) String() string {
	if m == ModeLowPower {
		return "low-power"
	}
	return "normal"
}

// ParseMode accepts "normal" or "low-power".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return ModeNormal, nil
	case "low-power", "lowpower":
		return ModeLowPower, nil
	default:
		return 0, fmt.Errorf("unknown accelerometer mode %q", s)
	}
}

// ODR is an output data rate in Hz.
type ODR int

// CTRL_REG1_A ODR[3:0] codes for the rates shared by both power modes.
var odrCodes = map[ODR]byte{
	1:   0x1,
	10:  0x2,
	25:  0x3,
	50:  0x4,
	100: 0x5,
	200: 0x6,
	400: 0x7,
}

// Valid reports whether the rate is supported.
func (o ODR) Valid() bool {
	_, ok := odrCodes[o]
	return ok
}
