// Package pdo decodes the USB Power Delivery data objects reported by the
// controller's active contract registers.
package pdo

import "fmt"

// PDO is a power data object of any type. Convert it to the type reported by
// Type to read its fields.
type PDO uint32

// field extracts n bits of v starting at bit lo.
func field(v uint32, lo, n uint) uint32 {
	return (v >> lo) & (1<<n - 1)
}

// Type returns the type of the power data object. Augmented objects carry a
// second type field below the first.
func (o PDO) Type() Type {
	t := field(uint32(o), 30, 2)
	if t != 0b11 {
		return Type(t)
	}
	return Type(field(uint32(o), 28, 2)<<3 | 0b111)
}

func (o PDO) String() string {
	switch o.Type() {
	case TypeFixedSupply:
		return FixedSupplyPDO(o).String()
	case TypeVariableSupply:
		return VariableSupplyPDO(o).String()
	case TypeBattery:
		return BatteryPDO(o).String()
	case TypePPS:
		return PPSPDO(o).String()
	default:
		return fmt.Sprintf("%s(%#08x)", o.Type(), uint32(o))
	}
}

// Type represents the type of a power data object.
type Type uint8

// Power data object types.
const (
	TypeFixedSupply    Type = 0b00
	TypeBattery        Type = 0b01
	TypeVariableSupply Type = 0b10
	TypePPS            Type = 0b00111 // augmented, SPR programmable
	TypeEPRAVS         Type = 0b01111 // augmented, EPR adjustable
)

func (t Type) String() string {
	switch t {
	case TypeFixedSupply:
		return "Fixed"
	case TypeBattery:
		return "Battery"
	case TypeVariableSupply:
		return "Variable"
	case TypePPS:
		return "PPS"
	case TypeEPRAVS:
		return "EPRAVS"
	default:
		return "INVALID"
	}
}

// Units of the fields, in mV, mA and mW.
const (
	voltageUnit    = 50
	currentUnit    = 10
	powerUnit      = 250
	ppsVoltageUnit = 100
	ppsCurrentUnit = 50
	rdoVoltageUnit = 20
)

// FixedSupplyPDO is a fixed supply power data object.
type FixedSupplyPDO uint32

// Voltage returns the voltage in mV.
func (o FixedSupplyPDO) Voltage() uint16 {
	return uint16(field(uint32(o), 10, 10) * voltageUnit)
}

// MaxCurrent returns the maximum current in mA.
func (o FixedSupplyPDO) MaxCurrent() uint16 {
	return uint16(field(uint32(o), 0, 10) * currentUnit)
}

// DualRolePower returns true if the sender supports both power roles.
func (o FixedSupplyPDO) DualRolePower() bool {
	return field(uint32(o), 29, 1) == 1
}

func (o FixedSupplyPDO) String() string {
	return fmt.Sprintf("Fixed %dmV %dmA", o.Voltage(), o.MaxCurrent())
}

// VariableSupplyPDO is a variable (non-battery) supply power data object.
type VariableSupplyPDO uint32

// MaxVoltage returns the maximum voltage in mV.
func (o VariableSupplyPDO) MaxVoltage() uint16 {
	return uint16(field(uint32(o), 20, 10) * voltageUnit)
}

// MinVoltage returns the minimum voltage in mV.
func (o VariableSupplyPDO) MinVoltage() uint16 {
	return uint16(field(uint32(o), 10, 10) * voltageUnit)
}

// MaxCurrent returns the maximum current in mA.
func (o VariableSupplyPDO) MaxCurrent() uint16 {
	return uint16(field(uint32(o), 0, 10) * currentUnit)
}

func (o VariableSupplyPDO) String() string {
	return fmt.Sprintf("Variable %d-%dmV %dmA", o.MinVoltage(), o.MaxVoltage(), o.MaxCurrent())
}

// BatteryPDO is a battery supply power data object. Its voltage fields share
// the layout of VariableSupplyPDO.
type BatteryPDO uint32

// MaxVoltage returns the maximum voltage in mV.
func (o BatteryPDO) MaxVoltage() uint16 {
	return VariableSupplyPDO(o).MaxVoltage()
}

// MinVoltage returns the minimum voltage in mV.
func (o BatteryPDO) MinVoltage() uint16 {
	return VariableSupplyPDO(o).MinVoltage()
}

// MaxPower returns the maximum power in mW.
func (o BatteryPDO) MaxPower() uint32 {
	return field(uint32(o), 0, 10) * powerUnit
}

func (o BatteryPDO) String() string {
	return fmt.Sprintf("Battery %d-%dmV %dmW", o.MinVoltage(), o.MaxVoltage(), o.MaxPower())
}

// PPSPDO is a programmable power supply augmented power data object.
type PPSPDO uint32

// MinVoltage returns the minimum voltage in mV.
func (o PPSPDO) MinVoltage() uint16 {
	return uint16(field(uint32(o), 8, 8) * ppsVoltageUnit)
}

// MaxVoltage returns the maximum voltage in mV.
func (o PPSPDO) MaxVoltage() uint16 {
	return uint16(field(uint32(o), 17, 8) * ppsVoltageUnit)
}

// MaxCurrent returns the maximum current in mA.
func (o PPSPDO) MaxCurrent() uint16 {
	return uint16(field(uint32(o), 0, 7) * ppsCurrentUnit)
}

func (o PPSPDO) String() string {
	return fmt.Sprintf("PPS %d-%dmV %dmA", o.MinVoltage(), o.MaxVoltage(), o.MaxCurrent())
}

// RequestDO is the request data object of the active contract.
type RequestDO uint32

// SelectedObjectPosition returns the 1-based position of the requested PDO in
// the source capabilities. Zero means there is no contract.
func (o RequestDO) SelectedObjectPosition() uint8 {
	return uint8(field(uint32(o), 28, 4))
}

// CapabilityMismatch returns true if the sink asked for more than offered.
func (o RequestDO) CapabilityMismatch() bool {
	return field(uint32(o), 26, 1) == 1
}

// FixedOperatingCurrent returns the operating current in mA of a fixed or
// variable request.
func (o RequestDO) FixedOperatingCurrent() uint16 {
	return uint16(field(uint32(o), 10, 10) * currentUnit)
}

// FixedMaxOperatingCurrent returns the maximum operating current in mA of a
// fixed or variable request.
func (o RequestDO) FixedMaxOperatingCurrent() uint16 {
	return uint16(field(uint32(o), 0, 10) * currentUnit)
}

// PPSOutputVoltage returns the requested voltage in mV of a PPS request.
func (o RequestDO) PPSOutputVoltage() uint16 {
	return uint16(field(uint32(o), 9, 12) * rdoVoltageUnit)
}

// PPSOutputCurrent returns the requested current in mA of a PPS request.
func (o RequestDO) PPSOutputCurrent() uint16 {
	return uint16(field(uint32(o), 0, 7) * ppsCurrentUnit)
}

func (o RequestDO) String() string {
	pos := o.SelectedObjectPosition()
	if pos == 0 {
		return "none"
	}
	return fmt.Sprintf("PDO#%d %dmA (max %dmA)", pos, o.FixedOperatingCurrent(), o.FixedMaxOperatingCurrent())
}
