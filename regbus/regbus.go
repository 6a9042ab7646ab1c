// Package regbus implements the length-prefixed register transport used by
// TPS6699x controllers on top of a plain I2C bus.
//
// A register write is a single I2C write of [reg, len, data...]. A register
// read writes [reg] and reads back [len, data...] where len is reported by the
// device itself.
package regbus

import (
	"errors"

	"github.com/oxplot/go-tps6699x"
)

// I2C defines a minimum interface to I2C hardware with a single Tx method
// which allows a single driver implementation to work across many different
// µControllers and host platforms. TinyGo's machine.I2C and periph.io's
// i2c.Bus both satisfy it.
type I2C interface {

	// Tx performs a write and then a read transfer placing the result in r.
	//
	// Passing a nil value for w or r skips the transfer corresponding to write
	// or read, respectively.
	Tx(addr uint16, w, r []byte) error
}

// MaxDataLen is the largest payload of a single register transaction since
// the length travels in one byte.
const MaxDataLen = 255

// ErrNoAck should be wrapped by I2C implementations that can tell a NACK apart
// from other failures. The controller NACKs reads while it is busy processing
// a command.
var ErrNoAck = errors.New("regbus: no acknowledge")

// Port is one register address space on the bus.
type Port struct {
	Bus  I2C
	Addr uint16
}

// WriteRegister writes data to register reg.
func (p Port) WriteRegister(reg uint8, data []byte) error {
	if len(data) > MaxDataLen {
		return tps6699x.ErrInvalidParams
	}
	buf := make([]byte, len(data)+2)
	buf[0] = reg
	buf[1] = uint8(len(data))
	copy(buf[2:], data)
	if err := p.Bus.Tx(p.Addr, buf, nil); err != nil {
		return &tps6699x.BusError{Addr: p.Addr, Err: err}
	}
	return nil
}

// ReadRegister reads register reg into data and returns the number of bytes
// the device reported. The device reporting more bytes than fit in data is an
// error, the value is never truncated.
func (p Port) ReadRegister(reg uint8, data []byte) (int, error) {
	if len(data) == 0 || len(data) > MaxDataLen {
		return 0, tps6699x.ErrInvalidParams
	}
	buf := make([]byte, len(data)+1)
	if err := p.Bus.Tx(p.Addr, []byte{reg}, buf); err != nil {
		return 0, &tps6699x.BusError{Addr: p.Addr, Err: err}
	}
	n := int(buf[0])
	if n > len(data) {
		return 0, tps6699x.ErrInvalidParams
	}
	copy(data, buf[1:n+1])
	return n, nil
}

// Write performs a raw write of data to addr without register framing. It is
// used for broadcast burst writes.
func Write(bus I2C, addr uint16, data []byte) error {
	if err := bus.Tx(addr, data, nil); err != nil {
		return &tps6699x.BusError{Addr: addr, Err: err}
	}
	return nil
}
