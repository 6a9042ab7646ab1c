// Package registers describes the TPS6699x register map used by this driver:
// addresses, lengths and typed views over raw register contents.
package registers

import (
	"encoding/binary"
	"fmt"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/pdo"
)

// Register addresses.
const (
	Mode         = 0x03
	CustomerUse  = 0x06
	Cmd1         = 0x08
	Data1        = 0x09
	Version      = 0x0F
	IntEventBus1 = 0x14
	IntClearBus1 = 0x18
	Status       = 0x1A
	ActivePdo    = 0x34
	ActiveRdo    = 0x35
)

// Register lengths in bytes.
const (
	ModeLen        = 4
	CustomerUseLen = 8
	Cmd1Len        = 4
	Data1Len       = 64
	VersionLen     = 4
	IntEventLen    = 11
	StatusLen      = 5
	ActivePdoLen   = 6
	ActiveRdoLen   = 4
)

// DecodeMode decodes the contents of the mode register.
func DecodeMode(b []byte) (tps6699x.Mode, error) {
	if len(b) < ModeLen {
		return 0, tps6699x.ErrInvalidParams
	}
	return tps6699x.ParseMode(binary.LittleEndian.Uint32(b))
}

// DecodeVersion decodes the firmware version register.
func DecodeVersion(b []byte) (FwVersion, error) {
	if len(b) < VersionLen {
		return 0, tps6699x.ErrInvalidParams
	}
	return FwVersion(binary.LittleEndian.Uint32(b)), nil
}

// FwVersion is the raw firmware version. It reads as BCD major.minor.patch
// from the upper three bytes.
type FwVersion uint32

func (v FwVersion) String() string {
	return fmt.Sprintf("%x.%x.%x", uint8(v>>16), uint8(v>>8), uint8(v))
}

// DecodeCustomerUse decodes the customer use register.
func DecodeCustomerUse(b []byte) (uint64, error) {
	if len(b) < CustomerUseLen {
		return 0, tps6699x.ErrInvalidParams
	}
	return binary.LittleEndian.Uint64(b), nil
}

// PortStatus is a view over the per-port status register.
type PortStatus [StatusLen]byte

func (s PortStatus) bits() uint32 {
	return binary.LittleEndian.Uint32(s[:4])
}

// PlugPresent returns true if a plug is connected.
func (s PortStatus) PlugPresent() bool {
	return s.bits()&1 != 0
}

// ConnState returns the connection state of the port.
func (s PortStatus) ConnState() ConnState {
	return ConnState((s.bits() >> 1) & 0b111)
}

// PlugUpsideDown returns true if the plug is connected on CC2.
func (s PortStatus) PlugUpsideDown() bool {
	return s.bits()&(1<<4) != 0
}

// IsSource returns true if the port is currently the power source.
func (s PortStatus) IsSource() bool {
	return s.bits()&(1<<5) != 0
}

// IsDFP returns true if the port is currently the data host.
func (s PortStatus) IsDFP() bool {
	return s.bits()&(1<<6) != 0
}

// VbusStatus returns the VBUS state of the port.
func (s PortStatus) VbusStatus() VbusStatus {
	return VbusStatus((s.bits() >> 20) & 0b11)
}

func (s PortStatus) String() string {
	if !s.PlugPresent() {
		return "no plug"
	}
	role := "sink"
	if s.IsSource() {
		role = "source"
	}
	data := "UFP"
	if s.IsDFP() {
		data = "DFP"
	}
	return fmt.Sprintf("%s %s/%s vbus=%s", s.ConnState(), role, data, s.VbusStatus())
}

// ConnState is the connection state field of the status register.
type ConnState uint8

// Connection states.
const (
	ConnNone        ConnState = 0b000
	ConnDisabled    ConnState = 0b001
	ConnAudio       ConnState = 0b010
	ConnDebug       ConnState = 0b011
	ConnNoConnRa    ConnState = 0b100
	ConnReserved    ConnState = 0b101
	ConnPartial     ConnState = 0b110
	ConnEstablished ConnState = 0b111
)

func (c ConnState) String() string {
	switch c {
	case ConnNone:
		return "None"
	case ConnDisabled:
		return "Disabled"
	case ConnAudio:
		return "Audio"
	case ConnDebug:
		return "Debug"
	case ConnNoConnRa:
		return "Ra"
	case ConnPartial:
		return "Partial"
	case ConnEstablished:
		return "Connected"
	default:
		return "INVALID"
	}
}

// VbusStatus is the VBUS field of the status register.
type VbusStatus uint8

// VBUS states.
const (
	VbusVSafe0V VbusStatus = 0b00
	VbusVSafe5V VbusStatus = 0b01
	VbusPD      VbusStatus = 0b10
	VbusOther   VbusStatus = 0b11
)

func (v VbusStatus) String() string {
	switch v {
	case VbusVSafe0V:
		return "0V"
	case VbusVSafe5V:
		return "5V"
	case VbusPD:
		return "PD"
	default:
		return "other"
	}
}

// ActivePdoContract is a view over the active PDO contract register.
type ActivePdoContract [ActivePdoLen]byte

// PDO returns the power data object the active contract was negotiated on.
func (c ActivePdoContract) PDO() pdo.PDO {
	return pdo.PDO(binary.LittleEndian.Uint32(c[:4]))
}

// FirstPdoControl returns the control bits of the partner's first PDO.
func (c ActivePdoContract) FirstPdoControl() uint16 {
	return binary.LittleEndian.Uint16(c[4:])
}

// ActiveRdoContract is a view over the active RDO contract register.
type ActiveRdoContract [ActiveRdoLen]byte

// RDO returns the request data object of the active contract.
func (c ActiveRdoContract) RDO() pdo.RequestDO {
	return pdo.RequestDO(binary.LittleEndian.Uint32(c[:]))
}
