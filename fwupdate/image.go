package fwupdate

import (
	"encoding/binary"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/command"
)

// Layout of a firmware image, offsets from the start of the image.
const (
	ImageIDLength         = 4
	HeaderMetadataOffset  = 4
	HeaderMetadataLength  = command.TfuiArgsLen
	HeaderBlockOffset     = 12
	HeaderBlockLength     = 0x800
	DataBlockSize         = 0x4000
	DataBlockMetadataSize = command.TfudArgsLen
	AppConfigMetadataSize = command.TfudArgsLen
	AppImageSizeOffset    = 0x4F8
)

// Block indices as reported by TFUq.
const (
	HeaderBlockIndex    = 0
	DataBlockStartIndex = 1
	AppConfigBlockIndex = 12

	// MaxDataBlocks is the number of data blocks TFUq can report on.
	MaxDataBlocks = AppConfigBlockIndex - DataBlockStartIndex
)

// Image is a firmware image. It is never modified.
type Image []byte

// slice returns im[off:off+n] or ErrInvalidParams if that is out of bounds.
func (im Image) slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > len(im) || n > len(im)-off {
		return nil, tps6699x.ErrInvalidParams
	}
	return im[off : off+n], nil
}

// HeaderMetadata returns the TFUi arguments stored in the image.
func (im Image) HeaderMetadata() (command.TfuiArgs, error) {
	b, err := im.slice(HeaderMetadataOffset, HeaderMetadataLength)
	if err != nil {
		return command.TfuiArgs{}, err
	}
	args, err := command.DecodeTfuiArgs(b)
	if err != nil {
		return args, err
	}
	if int(args.NumDataBlocksTx) > MaxDataBlocks {
		return args, tps6699x.ErrInvalidParams
	}
	return args, nil
}

// HeaderBlock returns the header block.
func (im Image) HeaderBlock() ([]byte, error) {
	return im.slice(HeaderBlockOffset, HeaderBlockLength)
}

// AppImageSize returns the declared size of the application image.
func (im Image) AppImageSize() (uint32, error) {
	b, err := im.slice(AppImageSizeOffset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// DataBlockMetadataOffset returns the offset of the metadata of data block i,
// counting from 0. The block itself follows its metadata.
func DataBlockMetadataOffset(i int) int {
	return HeaderBlockOffset + HeaderBlockLength + i*(DataBlockSize+DataBlockMetadataSize)
}

// AppConfigMetadataOffset returns the offset of the metadata of the app config
// block in an image with numDataBlocks data blocks and an application image of
// appSize bytes.
func AppConfigMetadataOffset(numDataBlocks int, appSize uint32) int {
	return int(appSize) + ImageIDLength + HeaderMetadataLength + HeaderBlockLength +
		numDataBlocks*DataBlockMetadataSize
}

// DataBlock returns the TFUd arguments and the content of data block i.
func (im Image) DataBlock(i int) (command.TfudArgs, []byte, error) {
	if i < 0 || i >= MaxDataBlocks {
		return command.TfudArgs{}, nil, tps6699x.ErrInvalidParams
	}
	return im.stream(DataBlockMetadataOffset(i), DataBlockMetadataSize)
}

// AppConfigBlock returns the TFUd arguments and the content of the app config
// block.
func (im Image) AppConfigBlock(numDataBlocks int) (command.TfudArgs, []byte, error) {
	size, err := im.AppImageSize()
	if err != nil {
		return command.TfudArgs{}, nil, err
	}
	return im.stream(AppConfigMetadataOffset(numDataBlocks, size), AppConfigMetadataSize)
}

func (im Image) stream(metaOff, metaSize int) (command.TfudArgs, []byte, error) {
	meta, err := im.slice(metaOff, metaSize)
	if err != nil {
		return command.TfudArgs{}, nil, err
	}
	args, err := command.DecodeTfudArgs(meta)
	if err != nil {
		return args, nil, err
	}
	data, err := im.slice(metaOff+metaSize, int(args.DataLen))
	if err != nil {
		return args, nil, err
	}
	return args, data, nil
}
