// Package config holds the single configuration record of the fall sensor.
// Values are compiled in by Default and may be overridden once at boot from a
// YAML file. Nothing is reloaded at runtime.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/fall-sensor/internal/accel"
	"github.com/sweeney/fall-sensor/internal/alarm"
	"github.com/sweeney/fall-sensor/internal/display"
	"github.com/sweeney/fall-sensor/internal/gpio"
	"github.com/sweeney/fall-sensor/internal/logic"
)

type Config struct {
	Detector DetectorConfig `yaml:"detector"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Display  DisplayConfig  `yaml:"display"`
	Alarm    AlarmConfig    `yaml:"alarm"`
	Retry    RetryConfig    `yaml:"retry"`
	Log      LogConfig      `yaml:"log"`
	GPIOChip string         `yaml:"gpio_chip"`
}

type DetectorConfig struct {
	LowEnter     float64       `yaml:"low_enter"`
	HighExit     float64       `yaml:"high_exit"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
}

type SensorConfig struct {
	// Bus is the periph I2C bus name; empty selects the first bus.
	Bus    string `yaml:"bus"`
	BusKHz int    `yaml:"bus_khz"`
	Mode   string `yaml:"mode"`
	ODRHz  int    `yaml:"odr_hz"`
}

type DisplayConfig struct {
	RefreshPeriod time.Duration `yaml:"refresh_period"`
	BlinkTicks    uint32        `yaml:"blink_ticks"`
	Priority      uint8         `yaml:"priority"`
	Rows          []int         `yaml:"rows"`
	Cols          []int         `yaml:"cols"`
}

type AlarmConfig struct {
	Strategy    string        `yaml:"strategy"`
	HalfPeriod  time.Duration `yaml:"half_period"`
	BurstCycles int           `yaml:"burst_cycles"`
	Priority    uint8         `yaml:"priority"`
	Pin         int           `yaml:"pin"`
}

type RetryConfig struct {
	Initial     time.Duration `yaml:"initial"`
	Max         time.Duration `yaml:"max"`
	MaxFailures int           `yaml:"max_failures"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Broker enables the MQTT debug-log sink when non-empty.
	Broker string `yaml:"broker"`
	Prefix string `yaml:"prefix"`
}

// Default returns the production configuration.
func Default() Config {
	return Config{
		Detector: DetectorConfig{
			LowEnter:     logic.DefaultThresholds.LowEnter,
			HighExit:     logic.DefaultThresholds.HighExit,
			PollInterval: 50 * time.Millisecond,
			Heartbeat:    15 * time.Minute,
		},
		Sensor: SensorConfig{
			BusKHz: 100,
			Mode:   accel.ModeNormal.String(),
			ODRHz:  50,
		},
		Display: DisplayConfig{
			RefreshPeriod: 2 * time.Millisecond,
			BlinkTicks:    125,
			Priority:      0,
			Rows:          append([]int(nil), gpio.DefaultRowPins[:]...),
			Cols:          append([]int(nil), gpio.DefaultColPins[:]...),
		},
		Alarm: AlarmConfig{
			Strategy:    string(alarm.StrategyContinuous),
			HalfPeriod:  500 * time.Microsecond,
			BurstCycles: 200,
			Priority:    1,
			Pin:         gpio.DefaultPinSpeaker,
		},
		Retry: RetryConfig{
			Initial:     100 * time.Millisecond,
			Max:         2 * time.Second,
			MaxFailures: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Prefix: "sensors/fall",
		},
		GPIOChip: "gpiochip0",
	}
}

// Load reads a YAML boot file over the defaults and validates the result.
// Keys absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if c.Detector.PollInterval <= 0 {
		return fmt.Errorf("detector.poll_interval must be > 0")
	}
	if c.Detector.Heartbeat < 0 {
		return fmt.Errorf("detector.heartbeat must be >= 0")
	}

	if c.Sensor.BusKHz <= 0 {
		return fmt.Errorf("sensor.bus_khz must be > 0")
	}
	if _, err := accel.ParseMode(c.Sensor.Mode); err != nil {
		return fmt.Errorf("sensor.mode: %w", err)
	}
	if !accel.ODR(c.Sensor.ODRHz).Valid() {
		return fmt.Errorf("sensor.odr_hz: unsupported rate %d", c.Sensor.ODRHz)
	}

	if c.Display.RefreshPeriod <= 0 {
		return fmt.Errorf("display.refresh_period must be > 0")
	}
	if len(c.Display.Rows) != display.Size || len(c.Display.Cols) != display.Size {
		return fmt.Errorf("display: need %d rows and %d cols, got %d and %d",
			display.Size, display.Size, len(c.Display.Rows), len(c.Display.Cols))
	}

	if _, err := alarm.ParseStrategy(c.Alarm.Strategy); err != nil {
		return fmt.Errorf("alarm.strategy: %w", err)
	}
	if c.Alarm.HalfPeriod <= 0 {
		return fmt.Errorf("alarm.half_period must be > 0")
	}
	if c.Alarm.BurstCycles <= 0 {
		return fmt.Errorf("alarm.burst_cycles must be > 0")
	}
	// lower is more urgent; the tone must never delay a refresh
	if c.Display.Priority >= c.Alarm.Priority {
		return fmt.Errorf("display.priority (%d) must be more urgent (lower) than alarm.priority (%d)",
			c.Display.Priority, c.Alarm.Priority)
	}

	if c.Retry.Initial <= 0 || c.Retry.Max < c.Retry.Initial {
		return fmt.Errorf("retry: need 0 < initial <= max, got %v and %v", c.Retry.Initial, c.Retry.Max)
	}
	if c.Retry.MaxFailures <= 0 {
		return fmt.Errorf("retry.max_failures must be > 0")
	}

	seen := make(map[int]string)
	claim := func(pin int, what string) error {
		if pin < 0 {
			return fmt.Errorf("%s: invalid pin %d", what, pin)
		}
		if prev, ok := seen[pin]; ok {
			return fmt.Errorf("pin %d used by both %s and %s", pin, prev, what)
		}
		seen[pin] = what
		return nil
	}
	if err := claim(c.Alarm.Pin, "alarm.pin"); err != nil {
		return err
	}
	for i, p := range c.Display.Rows {
		if err := claim(p, fmt.Sprintf("display.rows[%d]", i)); err != nil {
			return err
		}
	}
	for i, p := range c.Display.Cols {
		if err := claim(p, fmt.Sprintf("display.cols[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Thresholds() logic.Thresholds {
	return logic.Thresholds{LowEnter: c.Detector.LowEnter, HighExit: c.Detector.HighExit}
}

func (c Config) Backoff() logic.Backoff {
	return logic.Backoff{
		Initial:     c.Retry.Initial,
		Max:         c.Retry.Max,
		MaxFailures: c.Retry.MaxFailures,
	}
}

// AlarmStrategy returns the parsed strategy. Validate has already rejected
// unknown names.
func (c Config) AlarmStrategy() alarm.Strategy {
	s, _ := alarm.ParseStrategy(c.Alarm.Strategy)
	return s
}

func (c Config) SensorMode() accel.Mode {
	m, _ := accel.ParseMode(c.Sensor.Mode)
	return m
}
