package registers

import (
	"strconv"
	"strings"
)

// IntEvent holds the interrupt event flags of one port. Bits are numbered
// from the least significant bit of the first byte.
type IntEvent [IntEventLen]byte

// IntFlag is the bit position of a flag in IntEvent.
type IntFlag uint8

// Interrupt flags used by the driver.
const (
	IntPdHardReset        IntFlag = 1
	IntPlugEvent          IntFlag = 3
	IntPrSwapComplete     IntFlag = 4
	IntDrSwapComplete     IntFlag = 5
	IntNewContractSink    IntFlag = 13
	IntNewContractSource  IntFlag = 14
	IntSourceCapsReceived IntFlag = 15
	IntPowerStatusUpdate  IntFlag = 24
	IntDataStatusUpdate   IntFlag = 25
	IntStatusUpdate       IntFlag = 26
	IntPdStatusUpdate     IntFlag = 27
	IntCmd1Completed      IntFlag = 30
	IntCmd2Completed      IntFlag = 31
	IntBootError          IntFlag = 54
)

var intFlagNames = map[IntFlag]string{
	IntPdHardReset:        "PdHardReset",
	IntPlugEvent:          "PlugEvent",
	IntPrSwapComplete:     "PrSwapComplete",
	IntDrSwapComplete:     "DrSwapComplete",
	IntNewContractSink:    "NewContractSink",
	IntNewContractSource:  "NewContractSource",
	IntSourceCapsReceived: "SourceCapsReceived",
	IntPowerStatusUpdate:  "PowerStatusUpdate",
	IntDataStatusUpdate:   "DataStatusUpdate",
	IntStatusUpdate:       "StatusUpdate",
	IntPdStatusUpdate:     "PdStatusUpdate",
	IntCmd1Completed:      "Cmd1Completed",
	IntCmd2Completed:      "Cmd2Completed",
	IntBootError:          "BootError",
}

func (f IntFlag) String() string {
	if n, ok := intFlagNames[f]; ok {
		return n
	}
	return "Bit" + strconv.Itoa(int(f))
}

// Has returns true if flag f is set.
func (e IntEvent) Has(f IntFlag) bool {
	if int(f)/8 >= len(e) {
		return false
	}
	return e[f/8]&(1<<(f%8)) != 0
}

// Set sets flag f.
func (e *IntEvent) Set(f IntFlag) {
	if int(f)/8 < len(e) {
		e[f/8] |= 1 << (f % 8)
	}
}

// Clear clears flag f.
func (e *IntEvent) Clear(f IntFlag) {
	if int(f)/8 < len(e) {
		e[f/8] &^= 1 << (f % 8)
	}
}

// Or adds all flags set in o.
func (e *IntEvent) Or(o IntEvent) {
	for i := range e {
		e[i] |= o[i]
	}
}

// IsZero returns true if no flag is set.
func (e IntEvent) IsZero() bool {
	return e == IntEvent{}
}

// CmdCompleted returns true if the command 1 completion flag is set.
func (e IntEvent) CmdCompleted() bool {
	return e.Has(IntCmd1Completed)
}

// BootError returns true if the boot error flag is set.
func (e IntEvent) BootError() bool {
	return e.Has(IntBootError)
}

func (e IntEvent) String() string {
	if e.IsZero() {
		return "None"
	}
	var names []string
	for f := IntFlag(0); int(f) < len(e)*8; f++ {
		if e.Has(f) {
			names = append(names, f.String())
		}
	}
	return strings.Join(names, "|")
}
