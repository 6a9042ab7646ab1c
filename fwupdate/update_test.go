package fwupdate

import (
	"context"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/command"
)

const testBroadcastAddr = 0x50

// buildImage returns an image with k full data blocks and an app config block
// of cfgLen bytes. Every block is filled with a distinct byte.
func buildImage(k, cfgLen int) []byte {
	return buildImageAddr(k, cfgLen, testBroadcastAddr)
}

// buildImageAddr is buildImage with the data and app config blocks naming
// blockAddr as their broadcast address.
func buildImageAddr(k, cfgLen int, blockAddr uint16) []byte {
	cfgOff := AppConfigMetadataOffset(k, uint32(k*DataBlockSize))
	im := make([]byte, cfgOff+AppConfigMetadataSize+cfgLen)
	copy(im[HeaderMetadataOffset:], command.TfuiArgs{
		NumDataBlocksTx:  uint16(k),
		DataLen:          HeaderBlockLength,
		TimeoutSecs:      10,
		BroadcastAddress: testBroadcastAddr,
	}.Encode())
	fill(im[HeaderBlockOffset:HeaderBlockOffset+HeaderBlockLength], 0xA0)
	binary.LittleEndian.PutUint32(im[AppImageSizeOffset:], uint32(k*DataBlockSize))
	for i := 0; i < k; i++ {
		off := DataBlockMetadataOffset(i)
		copy(im[off:], command.TfudArgs{
			NumDataBlocksTx:  uint16(i),
			DataLen:          DataBlockSize,
			TimeoutSecs:      10,
			BroadcastAddress: blockAddr,
		}.Encode())
		fill(im[off+DataBlockMetadataSize:off+DataBlockMetadataSize+DataBlockSize], byte(i+1))
	}
	copy(im[cfgOff:], command.TfudArgs{
		NumDataBlocksTx:  uint16(k),
		DataLen:          uint16(cfgLen),
		TimeoutSecs:      10,
		BroadcastAddress: blockAddr,
	}.Encode())
	fill(im[cfgOff+AppConfigMetadataSize:], 0xC0)
	return im
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func fastOptions(opts ...Option) []Option {
	return append([]Option{WithHeaderSettleDelay(0), WithDataSettleDelay(0)}, opts...)
}

func TestImageLayout(t *testing.T) {
	if got, want := DataBlockMetadataOffset(0), 0x80C; got != want {
		t.Errorf("DataBlockMetadataOffset(0) = %#x, want %#x", got, want)
	}
	if got, want := DataBlockMetadataOffset(2), 0x80C+2*0x4008; got != want {
		t.Errorf("DataBlockMetadataOffset(2) = %#x, want %#x", got, want)
	}
	if got, want := AppConfigMetadataOffset(2, 0x8000), 0x8000+0x80C+16; got != want {
		t.Errorf("AppConfigMetadataOffset = %#x, want %#x", got, want)
	}

	im := Image(buildImage(2, 100))
	args, err := im.HeaderMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if args.NumDataBlocksTx != 2 || args.BroadcastAddress != testBroadcastAddr {
		t.Errorf("unexpected header metadata %+v", args)
	}
	if size, _ := im.AppImageSize(); size != 2*DataBlockSize {
		t.Errorf("AppImageSize = %#x", size)
	}
	dargs, data, err := im.DataBlock(1)
	if err != nil {
		t.Fatal(err)
	}
	if dargs.NumDataBlocksTx != 1 || len(data) != DataBlockSize || data[0] != 2 {
		t.Errorf("unexpected data block 1: %+v len=%d first=%d", dargs, len(data), data[0])
	}
	cargs, data, err := im.AppConfigBlock(2)
	if err != nil {
		t.Fatal(err)
	}
	if cargs.DataLen != 100 || len(data) != 100 || data[0] != 0xC0 {
		t.Errorf("unexpected app config block: %+v len=%d", cargs, len(data))
	}
	if _, _, err := im.DataBlock(MaxDataBlocks); !errors.Is(err, tps6699x.ErrInvalidParams) {
		t.Errorf("DataBlock(MaxDataBlocks) err = %v", err)
	}
}

func TestImageTooManyBlocks(t *testing.T) {
	im := buildImage(1, 8)
	binary.LittleEndian.PutUint16(im[HeaderMetadataOffset:], MaxDataBlocks+1)
	if _, err := Image(im).HeaderMetadata(); !errors.Is(err, tps6699x.ErrInvalidParams) {
		t.Errorf("err = %v, want ErrInvalidParams", err)
	}
}

func TestPerformUpdate(t *testing.T) {
	fakes, targets, j := newFakes(2)
	im := buildImage(2, 100)
	var states []State
	err := PerformUpdate(context.Background(), targets, im, fastOptions(
		WithProgressCallback(func(p Progress) { states = append(states, p.State) }),
	)...)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"0:enter", "1:enter",
		"0:init", "1:init",
		"0:burst:2048",
		"0:validate:0", "1:validate:0",
		"0:stream", "1:stream", "0:burst:16384",
		"0:validate:1", "1:validate:1",
		"0:stream", "1:stream", "0:burst:16384",
		"0:validate:2", "1:validate:2",
		"0:stream", "1:stream", "0:burst:100",
		"0:validate:12", "1:validate:12",
		"0:complete", "1:complete",
	}
	if got := j.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls\n got %v\nwant %v", got, want)
	}

	wantStates := []State{
		StateModeEntering, StateModeEntered,
		StateHeaderTransferring, StateHeaderValidating,
		StateDataTransferring, StateDataValidating,
		StateDataTransferring, StateDataValidating,
		StateConfigTransferring, StateConfigValidating,
		StateCompleting, StateModeExiting, StateIdle,
	}
	if !reflect.DeepEqual(states, wantStates) {
		t.Errorf("states\n got %v\nwant %v", states, wantStates)
	}

	f := fakes[0]
	for _, a := range f.burstAddrs {
		if a != testBroadcastAddr {
			t.Errorf("burst address = %#x", a)
		}
	}
	for _, c := range f.burstChunks {
		if c != command.BurstWriteSize {
			t.Errorf("burst chunk = %d, want %d", c, command.BurstWriteSize)
		}
	}
	if got, want := len(f.burst), HeaderBlockLength+2*DataBlockSize+100; got != want {
		t.Errorf("burst bytes = %d, want %d", got, want)
	}
	if f.initArgs.NumDataBlocksTx != 2 {
		t.Errorf("init args = %+v", f.initArgs)
	}
	if len(f.streamArgs) != 3 || f.streamArgs[2].DataLen != 100 {
		t.Errorf("stream args = %+v", f.streamArgs)
	}
	for _, f := range fakes {
		if f.exited != 0 || f.completed != 1 {
			t.Errorf("controller %d: exited=%d completed=%d", f.id, f.exited, f.completed)
		}
	}
}

func TestPerformUpdateBlockBroadcastAddress(t *testing.T) {
	fakes, targets, _ := newFakes(1)
	err := PerformUpdate(context.Background(), targets, buildImageAddr(1, 8, 0x51), fastOptions()...)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint16{testBroadcastAddr, 0x51, 0x51}
	if got := fakes[0].burstAddrs; !reflect.DeepEqual(got, want) {
		t.Errorf("burst addresses %#x, want %#x", got, want)
	}
}

func TestPerformUpdateNoDataBlocks(t *testing.T) {
	fakes, targets, _ := newFakes(1)
	if err := PerformUpdate(context.Background(), targets, buildImage(0, 32), fastOptions()...); err != nil {
		t.Fatal(err)
	}
	if want := []int{0, 12}; !reflect.DeepEqual(fakes[0].validated, want) {
		t.Errorf("validated %v, want %v", fakes[0].validated, want)
	}
}

func TestPerformUpdateBurstWriteSize(t *testing.T) {
	fakes, targets, _ := newFakes(1)
	err := PerformUpdate(context.Background(), targets, buildImage(1, 8), fastOptions(WithBurstWriteSize(32))...)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range fakes[0].burstChunks {
		if c != 32 {
			t.Fatalf("burst chunk = %d, want 32", c)
		}
	}
}

func TestPerformUpdateShortImage(t *testing.T) {
	im := buildImage(2, 100)
	for _, n := range []int{0, 10, HeaderBlockOffset + 100, len(im) - 1} {
		_, targets, j := newFakes(2)
		err := PerformUpdate(context.Background(), targets, im[:n], fastOptions()...)
		if !errors.Is(err, tps6699x.ErrInvalidParams) {
			t.Errorf("len %d: err = %v, want ErrInvalidParams", n, err)
		}
		if calls := j.list(); len(calls) != 0 {
			t.Errorf("len %d: targets touched: %v", n, calls)
		}
	}
}

func TestPerformUpdateNoTargets(t *testing.T) {
	err := PerformUpdate(context.Background(), nil, buildImage(0, 8))
	if !errors.Is(err, tps6699x.ErrInvalidParams) {
		t.Errorf("err = %v, want ErrInvalidParams", err)
	}
}

func TestPerformUpdateEnterFailure(t *testing.T) {
	fakes, targets, _ := newFakes(3)
	fakes[1].enterErr = tps6699x.ErrInvalidMode

	err := PerformUpdate(context.Background(), targets, buildImage(1, 8), fastOptions()...)
	if !errors.Is(err, tps6699x.ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
	for i, want := range []int{1, 1, 0} {
		if fakes[i].exited != want {
			t.Errorf("controller %d exited %d times, want %d", i, fakes[i].exited, want)
		}
	}
}

func TestPerformUpdateInitFailure(t *testing.T) {
	tests := []struct {
		ret  command.ReturnValue
		want error
	}{
		{command.ReturnRejected, tps6699x.ErrRejected},
		{command.ReturnTask0, tps6699x.ErrFailed},
	}
	for _, tt := range tests {
		fakes, targets, _ := newFakes(2)
		fakes[1].initRet = tt.ret
		err := PerformUpdate(context.Background(), targets, buildImage(1, 8), fastOptions()...)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.ret, err, tt.want)
		}
		for _, f := range fakes {
			if f.exited != 1 {
				t.Errorf("%s: controller %d exited %d times", tt.ret, f.id, f.exited)
			}
			if len(f.burst) != 0 {
				t.Errorf("%s: controller %d: unexpected burst write", tt.ret, f.id)
			}
		}
	}
}

func TestPerformUpdateValidationFailure(t *testing.T) {
	fakes, targets, j := newFakes(2)
	fakes[1].status = map[int]command.TfuqBlockStatus{1: command.BlockDataNotValid}

	var last Progress
	err := PerformUpdate(context.Background(), targets, buildImage(2, 8), fastOptions(
		WithProgressCallback(func(p Progress) { last = p }),
	)...)
	if !errors.Is(err, tps6699x.ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	for _, f := range fakes {
		if f.exited != 1 || f.completed != 0 {
			t.Errorf("controller %d: exited=%d completed=%d", f.id, f.exited, f.completed)
		}
	}
	for _, c := range j.list() {
		if c == "0:validate:2" {
			t.Error("kept going after a failed validation")
		}
	}
	if last.State != StateIdle {
		t.Errorf("last state = %s, want %s", last.State, StateIdle)
	}
}

func TestPerformUpdateHeaderRejected(t *testing.T) {
	fakes, targets, _ := newFakes(1)
	fakes[0].status = map[int]command.TfuqBlockStatus{0: command.BlockHeaderNotValid}
	err := PerformUpdate(context.Background(), targets, buildImage(1, 8), fastOptions()...)
	if !errors.Is(err, tps6699x.ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	if len(fakes[0].streamArgs) != 0 {
		t.Error("streamed data after a rejected header")
	}
}

func TestPerformUpdateRecoveryFailure(t *testing.T) {
	fakes, targets, _ := newFakes(2)
	fakes[0].streamErr = tps6699x.ErrTimeout
	fakes[1].exitErr = tps6699x.ErrBusy

	err := PerformUpdate(context.Background(), targets, buildImage(1, 8), fastOptions()...)
	var ae *AbortError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AbortError", err)
	}
	if !errors.Is(err, tps6699x.ErrTimeout) {
		t.Errorf("err does not wrap the cause: %v", err)
	}
	if !errors.Is(ae.RecoveryErr, tps6699x.ErrBusy) {
		t.Errorf("RecoveryErr = %v", ae.RecoveryErr)
	}
	if fakes[0].exited != 1 {
		t.Error("recovery stopped at the first failure")
	}
}

func TestPerformUpdateCompleteFailure(t *testing.T) {
	fakes, targets, _ := newFakes(2)
	fakes[0].completeErr = tps6699x.ErrInvalidMode

	err := PerformUpdate(context.Background(), targets, buildImage(1, 8), fastOptions()...)
	if !errors.Is(err, tps6699x.ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
	if fakes[0].exited != 1 {
		t.Errorf("failed controller exited %d times, want 1", fakes[0].exited)
	}
	if fakes[1].exited != 0 || fakes[1].completed != 1 {
		t.Errorf("other controller: exited=%d completed=%d", fakes[1].exited, fakes[1].completed)
	}
}

func TestPerformUpdateCancelled(t *testing.T) {
	fakes, targets, _ := newFakes(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The header settle delay notices the cancellation.
	err := PerformUpdate(ctx, targets, buildImage(1, 8), WithHeaderSettleDelay(time.Hour))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if fakes[0].exited != 1 {
		t.Error("target left in fw update mode")
	}
}
