// Package device implements low-level access to a TPS6699x controller: the 4CC
// command protocol over the CMD1 and DATA1 registers, interrupt clearing and
// typed register getters.
//
// A Device is not safe for concurrent use. The controller package serializes
// access to it.
package device

import (
	"encoding/binary"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/command"
	"github.com/oxplot/go-tps6699x/regbus"
	"github.com/oxplot/go-tps6699x/registers"
)

// Device represents one physical TPS6699x with one I2C address per port.
type Device struct {
	bus   regbus.I2C
	ports []regbus.Port
}

// New creates a device on bus with the given per-port addresses, usually one
// of tps6699x.Addr0 or tps6699x.Addr1.
func New(bus regbus.I2C, addrs []uint8) (*Device, error) {
	if len(addrs) == 0 || len(addrs) > tps6699x.MaxPorts {
		return nil, tps6699x.ErrInvalidParams
	}
	d := &Device{bus: bus, ports: make([]regbus.Port, len(addrs))}
	for i, a := range addrs {
		d.ports[i] = regbus.Port{Bus: bus, Addr: uint16(a)}
	}
	return d, nil
}

// NumPorts returns the number of ports of the device.
func (d *Device) NumPorts() int {
	return len(d.ports)
}

// Port returns the register port of p.
func (d *Device) Port(p tps6699x.PortID) (regbus.Port, error) {
	if int(p) >= len(d.ports) {
		return regbus.Port{}, tps6699x.ErrInvalidPort
	}
	return d.ports[p], nil
}

// readFull reads a register which must report exactly len(b) bytes.
func (d *Device) readFull(p tps6699x.PortID, reg uint8, b []byte) error {
	port, err := d.Port(p)
	if err != nil {
		return err
	}
	n, err := port.ReadRegister(reg, b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return tps6699x.ErrInvalidParams
	}
	return nil
}

// ClearInterrupt reads the interrupt event register of p and clears every flag
// found set. It returns the flags that were set.
func (d *Device) ClearInterrupt(p tps6699x.PortID) (registers.IntEvent, error) {
	var flags registers.IntEvent
	port, err := d.Port(p)
	if err != nil {
		return flags, err
	}
	if _, err := port.ReadRegister(registers.IntEventBus1, flags[:]); err != nil {
		return registers.IntEvent{}, err
	}

	// Flags are cleared by writing them back

	if !flags.IsZero() {
		if err := port.WriteRegister(registers.IntClearBus1, flags[:]); err != nil {
			return registers.IntEvent{}, err
		}
	}
	return flags, nil
}

// SendCommandUnchecked writes indata, if any, to DATA1 and then cmd to CMD1
// without checking whether the device accepted the opcode.
func (d *Device) SendCommandUnchecked(p tps6699x.PortID, cmd command.Command, indata []byte) error {
	if len(indata) > command.Data1Len {
		return tps6699x.ErrInvalidParams
	}
	port, err := d.Port(p)
	if err != nil {
		return err
	}
	if len(indata) > 0 {
		if err := port.WriteRegister(registers.Data1, indata); err != nil {
			return err
		}
	}
	var b [registers.Cmd1Len]byte
	binary.LittleEndian.PutUint32(b[:], uint32(cmd))
	return port.WriteRegister(registers.Cmd1, b[:])
}

// SendCommand is SendCommandUnchecked followed by a read back of CMD1 which
// fails with tps6699x.ErrUnrecognizedCommand if the device rejected the opcode.
func (d *Device) SendCommand(p tps6699x.PortID, cmd command.Command, indata []byte) error {
	if err := d.SendCommandUnchecked(p, cmd, indata); err != nil {
		return err
	}
	c, err := d.CommandStatus(p)
	if err != nil {
		return err
	}
	if c == command.Invalid {
		return tps6699x.ErrUnrecognizedCommand
	}
	return nil
}

// CommandStatus returns the current content of CMD1.
func (d *Device) CommandStatus(p tps6699x.PortID) (command.Command, error) {
	var b [registers.Cmd1Len]byte
	if err := d.readFull(p, registers.Cmd1, b[:]); err != nil {
		return 0, err
	}
	return command.Command(binary.LittleEndian.Uint32(b[:])), nil
}

// CheckCommandComplete returns true if CMD1 reads back as success.
func (d *Device) CheckCommandComplete(p tps6699x.PortID) (bool, error) {
	c, err := d.CommandStatus(p)
	if err != nil {
		return false, err
	}
	return c == command.Success, nil
}

// ReadCommandResult reads the outcome of the last command on p. The return
// code comes from the first byte of DATA1 and the following bytes are copied
// to outdata, which may be nil.
//
// It fails with tps6699x.ErrBusy if the command has not been processed yet and
// with tps6699x.ErrUnrecognizedCommand if the device did not know the opcode.
// If the device reported fewer bytes than outdata needs, outdata is left
// untouched. That is an error for a successful result only, a failing return
// code is returned as is.
func (d *Device) ReadCommandResult(p tps6699x.PortID, outdata []byte) (command.ReturnValue, error) {
	if len(outdata) > command.Data1Len-1 {
		return 0, tps6699x.ErrInvalidParams
	}
	c, err := d.CommandStatus(p)
	if err != nil {
		return 0, err
	}
	switch c {
	case command.Success:
	case command.Invalid:
		return 0, tps6699x.ErrUnrecognizedCommand
	default:
		return 0, tps6699x.ErrBusy
	}

	port, err := d.Port(p)
	if err != nil {
		return 0, err
	}
	var buf [command.Data1Len]byte
	n, err := port.ReadRegister(registers.Data1, buf[:])
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, tps6699x.ErrInvalidParams
	}
	ret, err := command.ParseReturnValue(buf[0])
	if err != nil {
		return 0, err
	}
	if n-1 < len(outdata) {
		// Failed commands may report no payload at all, the return code
		// still counts.
		if ret != command.ReturnSuccess {
			return ret, nil
		}
		return 0, tps6699x.ErrInvalidParams
	}
	copy(outdata, buf[1:n])
	return ret, nil
}

// PortStatus reads the status register of p.
func (d *Device) PortStatus(p tps6699x.PortID) (registers.PortStatus, error) {
	var s registers.PortStatus
	err := d.readFull(p, registers.Status, s[:])
	return s, err
}

// ActivePdoContract reads the PDO of the contract active on p.
func (d *Device) ActivePdoContract(p tps6699x.PortID) (registers.ActivePdoContract, error) {
	var c registers.ActivePdoContract
	err := d.readFull(p, registers.ActivePdo, c[:])
	return c, err
}

// ActiveRdoContract reads the RDO of the contract active on p.
func (d *Device) ActiveRdoContract(p tps6699x.PortID) (registers.ActiveRdoContract, error) {
	var c registers.ActiveRdoContract
	err := d.readFull(p, registers.ActiveRdo, c[:])
	return c, err
}

// Mode returns the operating mode of the controller.
func (d *Device) Mode() (tps6699x.Mode, error) {
	var b [registers.ModeLen]byte
	if err := d.readFull(tps6699x.Port0, registers.Mode, b[:]); err != nil {
		return 0, err
	}
	return registers.DecodeMode(b[:])
}

// FwVersion returns the version of the running firmware.
func (d *Device) FwVersion() (registers.FwVersion, error) {
	var b [registers.VersionLen]byte
	if err := d.readFull(tps6699x.Port0, registers.Version, b[:]); err != nil {
		return 0, err
	}
	return registers.DecodeVersion(b[:])
}

// CustomerUse returns the customer use register.
func (d *Device) CustomerUse() (uint64, error) {
	var b [registers.CustomerUseLen]byte
	if err := d.readFull(tps6699x.Port0, registers.CustomerUse, b[:]); err != nil {
		return 0, err
	}
	return registers.DecodeCustomerUse(b[:])
}

// BurstWrite writes data to addr in chunks of at most chunk bytes without any
// register framing. The broadcast address of a firmware update reaches every
// controller on the bus at once.
func (d *Device) BurstWrite(addr uint16, data []byte, chunk int) error {
	if chunk <= 0 {
		return tps6699x.ErrInvalidParams
	}
	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		if err := regbus.Write(d.bus, addr, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
