// Package command defines the 4CC command protocol of the TPS6699x: opcodes,
// return codes, argument records and the timing the chip needs between steps.
package command

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/oxplot/go-tps6699x"
)

// Command is a 4CC opcode, four ASCII characters packed little-endian the way
// the CMD1 register holds them.
type Command uint32

// Protocol status values of CMD1 and the opcodes used by the driver.
const (
	// Success is what CMD1 reads once the last command finished.
	Success Command = 0
	// Invalid is what CMD1 reads when the last opcode was not recognized.
	Invalid Command = '!' | 'C'<<8 | 'M'<<16 | 'D'<<24

	Gaid Command = 'G' | 'A'<<8 | 'I'<<16 | 'D'<<24 // cold reset
	Tfus Command = 'T' | 'F'<<8 | 'U'<<16 | 's'<<24 // enter fw update mode
	Tfuc Command = 'T' | 'F'<<8 | 'U'<<16 | 'c'<<24 // complete fw update
	Tfud Command = 'T' | 'F'<<8 | 'U'<<16 | 'd'<<24 // stream data block
	Tfue Command = 'T' | 'F'<<8 | 'U'<<16 | 'e'<<24 // exit fw update mode
	Tfui Command = 'T' | 'F'<<8 | 'U'<<16 | 'i'<<24 // init fw update
	Tfuq Command = 'T' | 'F'<<8 | 'U'<<16 | 'q'<<24 // query fw update status
	Abrt Command = 'A' | 'B'<<8 | 'R'<<16 | 'T'<<24 // abort current command
)

func (c Command) String() string {
	if c == Success {
		return "SUCCESS"
	}
	b := [4]byte{byte(c), byte(c >> 8), byte(c >> 16), byte(c >> 24)}
	for _, x := range b {
		if x < 0x20 || x > 0x7e {
			return fmt.Sprintf("%#08x", uint32(c))
		}
	}
	return string(b[:])
}

// ReturnValue is the result code found in the first byte of DATA1 after a
// command completes.
type ReturnValue uint8

// Return values
const (
	ReturnSuccess  ReturnValue = 0x00
	ReturnAbort    ReturnValue = 0x01 // timed out or aborted with ABRT
	ReturnRejected ReturnValue = 0x03
	ReturnRxLocked ReturnValue = 0x04
	ReturnTask0    ReturnValue = 0x05 // task specific results follow
	ReturnTask1    ReturnValue = 0x06
	ReturnTask2    ReturnValue = 0x07
	ReturnTask3    ReturnValue = 0x08
	ReturnTask4    ReturnValue = 0x09
	ReturnTask5    ReturnValue = 0x0A
	ReturnTask6    ReturnValue = 0x0B
	ReturnTask7    ReturnValue = 0x0C
	ReturnTask8    ReturnValue = 0x0D
	ReturnTask9    ReturnValue = 0x0E
	ReturnTask10   ReturnValue = 0x0F
)

// ParseReturnValue validates a raw return code.
func ParseReturnValue(b uint8) (ReturnValue, error) {
	if b == 0x02 || b > uint8(ReturnTask10) {
		return 0, tps6699x.ErrInvalidParams
	}
	return ReturnValue(b), nil
}

func (r ReturnValue) String() string {
	switch {
	case r == ReturnSuccess:
		return "Success"
	case r == ReturnAbort:
		return "Abort"
	case r == ReturnRejected:
		return "Rejected"
	case r == ReturnRxLocked:
		return "RxLocked"
	case r >= ReturnTask0 && r <= ReturnTask10:
		return fmt.Sprintf("Task%d", r-ReturnTask0)
	default:
		return "INVALID"
	}
}

// Data1Len is the size of the DATA1 register. The first byte holds the return
// value after completion so at most Data1Len-1 bytes of output are available.
const Data1Len = 64

// Timing of the controller.
const (
	// ResetDelay is how long the controller takes to come back after a reset
	// or a completed update.
	ResetDelay = 1600 * time.Millisecond
	// ResetTimeout bounds a whole reset including bus traffic.
	ResetTimeout = ResetDelay + 500*time.Millisecond

	// TfusDelay is how long entering fw update mode takes.
	TfusDelay   = 500 * time.Millisecond
	TfusTimeout = TfusDelay + 500*time.Millisecond

	TfueTimeout = time.Second
	TfuqTimeout = time.Second
	TfudTimeout = time.Second
	TfuiTimeout = time.Second

	// Settle time after broadcasting the header block and a data block.
	TfuiBurstWriteDelay = 250 * time.Millisecond
	TfudBurstWriteDelay = 150 * time.Millisecond
)

// BurstWriteSize is the default chunk size of broadcast writes.
const BurstWriteSize = 128

// ResetFeatureEnable is the magic value enabling TFUc's reset behavior.
const ResetFeatureEnable = 0xAC

// Argument record sizes
const (
	TfuiArgsLen        = 8
	TfudArgsLen        = 8
	TfuqArgsLen        = 2
	ResetArgsLen       = 2
	TfuqReturnLen      = 40
	TfuqBlockStatusLen = 13
)

// TfuiArgs are the arguments of TFUi. The image carries them as its header
// metadata.
type TfuiArgs struct {
	NumDataBlocksTx  uint16
	DataLen          uint16
	TimeoutSecs      uint16
	BroadcastAddress uint16
}

// Encode returns the wire form of a.
func (a TfuiArgs) Encode() []byte {
	b := make([]byte, TfuiArgsLen)
	binary.LittleEndian.PutUint16(b[0:], a.NumDataBlocksTx)
	binary.LittleEndian.PutUint16(b[2:], a.DataLen)
	binary.LittleEndian.PutUint16(b[4:], a.TimeoutSecs)
	binary.LittleEndian.PutUint16(b[6:], a.BroadcastAddress)
	return b
}

// DecodeTfuiArgs decodes TFUi arguments.
func DecodeTfuiArgs(b []byte) (TfuiArgs, error) {
	if len(b) < TfuiArgsLen {
		return TfuiArgs{}, tps6699x.ErrInvalidParams
	}
	return TfuiArgs{
		NumDataBlocksTx:  binary.LittleEndian.Uint16(b[0:]),
		DataLen:          binary.LittleEndian.Uint16(b[2:]),
		TimeoutSecs:      binary.LittleEndian.Uint16(b[4:]),
		BroadcastAddress: binary.LittleEndian.Uint16(b[6:]),
	}, nil
}

// TfudArgs are the arguments of TFUd. They share the layout of TfuiArgs and
// precede every data block in the image.
type TfudArgs TfuiArgs

// Encode returns the wire form of a.
func (a TfudArgs) Encode() []byte {
	return TfuiArgs(a).Encode()
}

// DecodeTfudArgs decodes TFUd arguments.
func DecodeTfudArgs(b []byte) (TfudArgs, error) {
	a, err := DecodeTfuiArgs(b)
	return TfudArgs(a), err
}

// TfuqCommandType selects what TFUq reports.
type TfuqCommandType uint8

// TFUq commands
const (
	QueryTfuStatus TfuqCommandType = 0x00
)

// TfuqStatusQuery selects which status TFUq reports.
type TfuqStatusQuery uint8

// TFUq status queries
const (
	StatusDefaultState TfuqStatusQuery = 0x00
	StatusInProgress   TfuqStatusQuery = 0x01
	StatusBank0        TfuqStatusQuery = 0x02
	StatusBank1        TfuqStatusQuery = 0x03
)

// TfuqArgs are the arguments of TFUq.
type TfuqArgs struct {
	Command     TfuqCommandType
	StatusQuery TfuqStatusQuery
}

// Encode returns the wire form of a.
func (a TfuqArgs) Encode() []byte {
	return []byte{byte(a.Command), byte(a.StatusQuery)}
}

// DecodeTfuqArgs decodes TFUq arguments.
func DecodeTfuqArgs(b []byte) (TfuqArgs, error) {
	if len(b) < TfuqArgsLen {
		return TfuqArgs{}, tps6699x.ErrInvalidParams
	}
	return TfuqArgs{Command: TfuqCommandType(b[0]), StatusQuery: TfuqStatusQuery(b[1])}, nil
}

// ResetArgs are the arguments of TFUc and GAID.
type ResetArgs struct {
	SwitchBanks uint8
	CopyBank    uint8
}

// Encode returns the wire form of a.
func (a ResetArgs) Encode() []byte {
	return []byte{a.SwitchBanks, a.CopyBank}
}

// DecodeResetArgs decodes reset arguments.
func DecodeResetArgs(b []byte) (ResetArgs, error) {
	if len(b) < ResetArgsLen {
		return ResetArgs{}, tps6699x.ErrInvalidParams
	}
	return ResetArgs{SwitchBanks: b[0], CopyBank: b[1]}, nil
}

// TfuqReturnValue is the output of TFUq (excluding the return code byte).
type TfuqReturnValue struct {
	ActiveHost        uint8
	CurrentState      uint8
	ImageWriteStatus  uint8
	BlocksWritten     uint16
	BlockStatus       [TfuqBlockStatusLen]uint8
	NumHeaderBytes    uint32
	NumDataBytes      uint32
	NumAppConfigBytes uint32
}

// Encode returns the wire form of v.
func (v TfuqReturnValue) Encode() []byte {
	b := make([]byte, TfuqReturnLen)
	b[0] = v.ActiveHost
	b[1] = v.CurrentState
	b[2] = v.ImageWriteStatus
	binary.LittleEndian.PutUint16(b[3:], v.BlocksWritten)
	copy(b[5:18], v.BlockStatus[:])
	binary.LittleEndian.PutUint32(b[18:], v.NumHeaderBytes)
	binary.LittleEndian.PutUint32(b[22:], v.NumDataBytes)
	binary.LittleEndian.PutUint32(b[26:], v.NumAppConfigBytes)
	return b
}

// DecodeTfuqReturnValue decodes the output of TFUq.
func DecodeTfuqReturnValue(b []byte) (TfuqReturnValue, error) {
	var v TfuqReturnValue
	if len(b) < TfuqReturnLen {
		return v, tps6699x.ErrInvalidParams
	}
	v.ActiveHost = b[0]
	v.CurrentState = b[1]
	v.ImageWriteStatus = b[2]
	v.BlocksWritten = binary.LittleEndian.Uint16(b[3:])
	copy(v.BlockStatus[:], b[5:18])
	v.NumHeaderBytes = binary.LittleEndian.Uint32(b[18:])
	v.NumDataBytes = binary.LittleEndian.Uint32(b[22:])
	v.NumAppConfigBytes = binary.LittleEndian.Uint32(b[26:])
	return v, nil
}

// BlockStatusAt returns the decoded status of block i.
func (v TfuqReturnValue) BlockStatusAt(i int) (TfuqBlockStatus, error) {
	if i < 0 || i >= len(v.BlockStatus) {
		return 0, tps6699x.ErrInvalidParams
	}
	return ParseTfuqBlockStatus(v.BlockStatus[i])
}
