// Package alarm drives the piezo speaker.
//
// Two strategies share one handle: Continuous toggles the speaker from its own
// periodic interrupt while armed; Burst plays a fixed tone burst in the
// foreground when armed.
package alarm

import (
	"fmt"
	"strings"

	"github.com/sweeney/fall-sensor/internal/gpio"
)

// Strategy selects how the tone is generated.
type Strategy string

const (
	StrategyContinuous Strategy = "continuous"
	StrategyBurst      Strategy = "burst"
)

// ParseStrategy accepts the configuration spelling of a strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyContinuous, StrategyBurst:
		return st, nil
	default:
		return "", fmt.Errorf("unknown alarm strategy %q", s)
	}
}

// Alarm is what the main loop needs: arm on a fall, disarm on recovery.
type Alarm interface {
	SetArmed(on bool) error
	Armed() bool
	Fault() error
}

// Speaker is the alarm handle: the output line and the armed flag.
type Speaker struct {
	pin     gpio.Pin
	armed   bool
	toggles int
	fault   error
}

// NewSpeaker wraps the speaker line. The line is expected to start low.
func NewSpeaker(pin gpio.Pin) Speaker {
	return Speaker{pin: pin}
}

// silence clears the armed flag and leaves the line low.
func (s *Speaker) silence() error {
	s.armed = false
	if err := s.pin.SetLow(); err != nil {
		return fmt.Errorf("speaker low: %w", err)
	}
	return nil
}
