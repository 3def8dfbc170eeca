// Package accel is a minimal LSM303AGR accelerometer driver.
//
// Focus: identity check, mode/rate configuration and non-blocking sample
// polling. The magnetometer half of the package is not used.
package accel

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sweeney/fall-sensor/internal/logic"
)

const (
	// Address is the accelerometer's 7-bit I2C address.
	Address = 0x19

	regWhoAmI   = 0x0F
	whoAmIValue = 0x33
	regCtrl1    = 0x20
	regCtrl4    = 0x23
	regStatus   = 0x27
	regOutXL    = 0x28 // X_L X_H Y_L Y_H Z_L Z_H

	// Setting the top bit of the sub-address enables register auto-increment.
	autoIncrement = 0x80

	ctrl1LowPower = 0x08
	ctrl1XYZ      = 0x07
	ctrl4BDU      = 0x80 // output registers not updated until both halves are read
	statusZYXDA   = 0x08
)

// Conn is one device on a bus: write w, then read r, in a single transaction.
// *periph.io/x/conn/v3/i2c.Dev implements it.
type Conn interface {
	Tx(w, r []byte) error
}

// ErrUnexpectedID is returned by CheckID when WHO_AM_I does not match.
var ErrUnexpectedID = errors.New("accel: unexpected device id")

// BusError is a failed bus transaction. It is transient from the driver's
// point of view; the caller decides whether and when to retry.
type BusError struct {
	Op  string
	Reg byte
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("accel: %s reg 0x%02X: %v", e.Op, e.Reg, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// Sample is one acceleration reading, in g.
type Sample struct {
	X, Y, Z float64
}

// Magnitude returns the norm of the sample.
func (s Sample) Magnitude() float64 {
	return logic.Magnitude(s.X, s.Y, s.Z)
}

// Device is an LSM303AGR accelerometer.
type Device struct {
	conn Conn

	// resolution, set by Configure
	shift      uint
	mgPerDigit float64
}

// New returns a driver for the accelerometer behind c, assuming normal mode
// until Configure is called.
func New(c Conn) *Device {
	d := &Device{conn: c}
	d.setResolution(ModeNormal)
	return d
}

// ReadID returns the WHO_AM_I register.
func (d *Device) ReadID() (byte, error) {
	var b [1]byte
	if err := d.readReg(regWhoAmI, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// CheckID reads WHO_AM_I and compares it with the expected value.
func (d *Device) CheckID() error {
	id, err := d.ReadID()
	if err != nil {
		return err
	}
	if id != whoAmIValue {
		return fmt.Errorf("%w: 0x%02X, want 0x%02X", ErrUnexpectedID, id, whoAmIValue)
	}
	return nil
}

// Configure sets the power mode and output data rate and enables all axes.
func (d *Device) Configure(mode Mode, odr ODR) error {
	code, ok := odrCodes[odr]
	if !ok {
		return fmt.Errorf("accel: unsupported output data rate %d Hz", int(odr))
	}
	if err := d.writeReg(regCtrl4, ctrl4BDU); err != nil {
		return err
	}
	ctrl1 := code<<4 | ctrl1XYZ
	if mode == ModeLowPower {
		ctrl1 |= ctrl1LowPower
	}
	if err := d.writeReg(regCtrl1, ctrl1); err != nil {
		return err
	}
	d.setResolution(mode)
	return nil
}

// Init checks the identity and configures the device. A wrong or unreadable
// identity is logged and tolerated; a configuration failure is returned.
func (d *Device) Init(mode Mode, odr ODR, logger *zap.Logger) error {
	if err := d.CheckID(); err != nil {
		logger.Warn("accelerometer identity check failed", zap.Error(err))
	}
	if err := d.Configure(mode, odr); err != nil {
		return fmt.Errorf("configure accelerometer: %w", err)
	}
	logger.Info("accelerometer configured",
		zap.Stringer("mode", mode), zap.Int("odr_hz", int(odr)))
	return nil
}

// Poll returns a fresh sample if the device has one ready, or ok=false
// immediately otherwise. Reading the sample clears the ready flag.
func (d *Device) Poll() (s Sample, ok bool, err error) {
	var status [1]byte
	if err := d.readReg(regStatus, status[:]); err != nil {
		return Sample{}, false, err
	}
	if status[0]&statusZYXDA == 0 {
		return Sample{}, false, nil
	}
	s, err = d.Read()
	if err != nil {
		return Sample{}, false, err
	}
	return s, true, nil
}

// Read reads the output registers regardless of the ready flag.
func (d *Device) Read() (Sample, error) {
	var buf [6]byte
	if err := d.readReg(regOutXL|autoIncrement, buf[:]); err != nil {
		return Sample{}, err
	}
	return Sample{
		X: d.scale(buf[0], buf[1]),
		Y: d.scale(buf[2], buf[3]),
		Z: d.scale(buf[4], buf[5]),
	}, nil
}

// scale converts a left-justified little-endian reading to g.
func (d *Device) scale(lo, hi byte) float64 {
	raw := int16(uint16(hi)<<8|uint16(lo)) >> d.shift
	return float64(raw) * d.mgPerDigit / 1000
}

func (d *Device) setResolution(mode Mode) {
	// ±2 g full scale
	if mode == ModeLowPower {
		d.shift, d.mgPerDigit = 8, 16
		return
	}
	d.shift, d.mgPerDigit = 6, 4
}

func (d *Device) readReg(reg byte, dst []byte) error {
	if err := d.conn.Tx([]byte{reg}, dst); err != nil {
		return &BusError{Op: "read", Reg: reg &^ autoIncrement, Err: err}
	}
	return nil
}

func (d *Device) writeReg(reg, value byte) error {
	if err := d.conn.Tx([]byte{reg, value}, nil); err != nil {
		return &BusError{Op: "write", Reg: reg, Err: err}
	}
	return nil
}
