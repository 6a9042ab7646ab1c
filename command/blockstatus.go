package command

import "github.com/oxplot/go-tps6699x"

// TfuqBlockStatus is the per block validation result reported by TFUq.
type TfuqBlockStatus uint8

// Block status values
const (
	BlockSuccess TfuqBlockStatus = iota
	BlockInvalidTfuState
	BlockInvalidHeaderSize
	BlockInvalidDataBlock
	BlockInvalidDataSize
	BlockInvalidSlaveAddress
	BlockInvalidTimeout
	BlockMaxAppConfigUpdate
	BlockHeaderRxInProgress
	BlockHeaderValidAndAuthentic
	BlockHeaderNotValid
	BlockHeaderKeyNotValid
	BlockHeaderRootAuthFailure
	BlockHeaderFwheaderAuthFailure
	BlockDataRxInProgress
	BlockDataValidAndAuthentic
	BlockDataValidButRepeated
	BlockDataNotValid
	BlockDataInvalidID
	BlockDataAuthFailure
	BlockF911IDNotValid
)

var blockStatusNames = [...]string{
	"Success",
	"InvalidTfuState",
	"InvalidHeaderSize",
	"InvalidDataBlock",
	"InvalidDataSize",
	"InvalidSlaveAddress",
	"InvalidTimeout",
	"MaxAppConfigUpdate",
	"HeaderRxInProgress",
	"HeaderValidAndAuthentic",
	"HeaderNotValid",
	"HeaderKeyNotValid",
	"HeaderRootAuthFailure",
	"HeaderFwheaderAuthFailure",
	"DataRxInProgress",
	"DataValidAndAuthentic",
	"DataValidButRepeated",
	"DataNotValid",
	"DataInvalidId",
	"DataAuthFailure",
	"F911IdNotValid",
}

// ParseTfuqBlockStatus validates a raw block status.
func ParseTfuqBlockStatus(b uint8) (TfuqBlockStatus, error) {
	if int(b) >= len(blockStatusNames) {
		return 0, tps6699x.ErrInvalidParams
	}
	return TfuqBlockStatus(b), nil
}

func (s TfuqBlockStatus) String() string {
	if int(s) < len(blockStatusNames) {
		return blockStatusNames[s]
	}
	return "INVALID"
}

// HeaderValid returns true if s accepts a header block.
func (s TfuqBlockStatus) HeaderValid() bool {
	return s == BlockHeaderValidAndAuthentic
}

// DataValid returns true if s accepts a data or app config block.
func (s TfuqBlockStatus) DataValid() bool {
	return s == BlockDataValidAndAuthentic || s == BlockDataValidButRepeated
}
