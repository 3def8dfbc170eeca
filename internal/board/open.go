package board

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/sweeney/fall-sensor/internal/accel"
	"github.com/sweeney/fall-sensor/internal/config"
	"github.com/sweeney/fall-sensor/internal/display"
	"github.com/sweeney/fall-sensor/internal/gpio"
)

// Open brings up the host drivers, opens the I2C bus and requests every
// output line, then builds the board on them.
func Open(cfg config.Config, logger *zap.Logger) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(cfg.Sensor.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Sensor.Bus, err)
	}
	speed := physic.Frequency(cfg.Sensor.BusKHz) * physic.KiloHertz
	if err := bus.SetSpeed(speed); err != nil {
		// not every adapter lets userspace set the clock
		logger.Warn("i2c bus speed not set", zap.Stringer("speed", speed), zap.Error(err))
	}

	chip, err := gpio.OpenChip(cfg.GPIOChip)
	if err != nil {
		return nil, multierr.Append(err, bus.Close())
	}

	pins, err := requestPins(chip, cfg)
	if err != nil {
		return nil, multierr.Combine(err, chip.Close(), bus.Close())
	}

	b, err := New(cfg, &i2c.Dev{Bus: bus, Addr: accel.Address}, pins, clock.New(), logger)
	if err != nil {
		return nil, multierr.Combine(err, chip.Close(), bus.Close())
	}
	b.closers = append(b.closers, bus.Close, chip.Close)

	logger.Info("board opened",
		zap.String("i2c_bus", bus.String()),
		zap.String("gpio_chip", cfg.GPIOChip),
		zap.Int("speaker_pin", cfg.Alarm.Pin),
		zap.Ints("row_pins", cfg.Display.Rows),
		zap.Ints("col_pins", cfg.Display.Cols))
	return b, nil
}

func requestPins(chip *gpio.Chip, cfg config.Config) (Pins, error) {
	var pins Pins
	var err error
	if pins.Speaker, err = chip.Output(cfg.Alarm.Pin); err != nil {
		return Pins{}, err
	}
	for i := 0; i < display.Size; i++ {
		if pins.Rows[i], err = chip.Output(cfg.Display.Rows[i]); err != nil {
			return Pins{}, err
		}
		if pins.Cols[i], err = chip.Output(cfg.Display.Cols[i]); err != nil {
			return Pins{}, err
		}
	}
	return pins, nil
}
