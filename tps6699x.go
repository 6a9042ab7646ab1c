// Package tps6699x defines the types shared by the packages of a driver for the
// TI TPS6699x family of multi-port USB Type-C power delivery controllers.
//
// The chip is driven over I2C through 4CC commands and a shared interrupt
// line. Sub-packages implement the register transport (regbus), register views
// (registers), command encoding (command), low-level device access (device),
// the concurrent controller with its interrupt distributor (controller) and
// firmware update (fwupdate).
package tps6699x

import (
	"errors"
	"fmt"
)

// MaxPorts is the maximum number of ports a single controller can expose.
const MaxPorts = 4

// I2C address sets selected by the ADCIN pins of the controller. Index is the
// port.
var (
	Addr0 = []uint8{0x20, 0x24}
	Addr1 = []uint8{0x21, 0x25}
)

// PortID identifies one independently addressed port of a controller.
type PortID uint8

func (p PortID) String() string {
	return fmt.Sprintf("port%d", uint8(p))
}

// Port0 is the port controller wide operations are issued through.
const Port0 PortID = 0

// Mode is the operating mode reported by the MODE register.
type Mode uint32

// Modes, packed little-endian like the register.
const (
	ModeBoot Mode = 'B' | 'O'<<8 | 'O'<<16 | 'T'<<24
	ModeF211 Mode = 'F' | '2'<<8 | '1'<<16 | '1'<<24 // firmware update
	ModeApp0 Mode = 'A' | 'P'<<8 | 'P'<<16 | ' '<<24
	ModeApp1 Mode = 'A' | 'P'<<8 | 'P'<<16 | '1'<<24
	ModeWtpr Mode = 'W' | 'T'<<8 | 'P'<<16 | 'R'<<24
)

// ParseMode validates a raw MODE register value.
func ParseMode(v uint32) (Mode, error) {
	switch m := Mode(v); m {
	case ModeBoot, ModeF211, ModeApp0, ModeApp1, ModeWtpr:
		return m, nil
	}
	return 0, ErrInvalidParams
}

// IsApp returns true if the controller runs one of its application images.
func (m Mode) IsApp() bool {
	return m == ModeApp0 || m == ModeApp1
}

func (m Mode) String() string {
	b := [4]byte{byte(m), byte(m >> 8), byte(m >> 16), byte(m >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("INVALID(%#x)", uint32(m))
		}
	}
	return string(b[:])
}

var (
	// ErrInvalidParams is returned when arguments or data read from the device
	// are out of range.
	ErrInvalidParams = errors.New("tps6699x: invalid parameters")

	// ErrInvalidPort is returned for a port beyond the configured port count.
	ErrInvalidPort = errors.New("tps6699x: invalid port")

	// ErrBusy is returned when a command has not been processed yet.
	ErrBusy = errors.New("tps6699x: device busy")

	// ErrInProgress is returned when an operation is already running.
	ErrInProgress = errors.New("tps6699x: operation in progress")

	// ErrUnrecognizedCommand is returned when the device replaced the command
	// with "!CMD".
	ErrUnrecognizedCommand = errors.New("tps6699x: unrecognized command")

	// ErrTimeout is returned when the device did not finish in time.
	ErrTimeout = errors.New("tps6699x: timeout")

	// ErrRejected is returned when the device rejected a command.
	ErrRejected = errors.New("tps6699x: rejected")

	// ErrFailed is returned when a command completed with a failing result.
	ErrFailed = errors.New("tps6699x: failed")

	// ErrInvalidMode is returned when the device is not in the expected mode.
	ErrInvalidMode = errors.New("tps6699x: invalid mode")
)

// BusError wraps a failure of the underlying I2C transport. Bus errors are
// never retried by the driver.
type BusError struct {
	Addr uint16
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("tps6699x: bus error at %#02x: %v", e.Addr, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// IsBusError returns true if err is, or wraps, a *BusError.
func IsBusError(err error) bool {
	var be *BusError
	return errors.As(err, &be)
}
