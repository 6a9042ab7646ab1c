package fwupdate

import (
	"context"
	"fmt"
	"sync"

	"github.com/oxplot/go-tps6699x/command"
)

// journal records calls made on all fake targets in order.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(format string, args ...interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type fakeTarget struct {
	id int
	j  *journal

	enterErr    error
	initRet     command.ReturnValue
	streamErr   error
	status      map[int]command.TfuqBlockStatus // overrides per block index
	completeErr error
	exitErr     error

	initArgs    command.TfuiArgs
	streamArgs  []command.TfudArgs
	validated   []int
	burst       []byte
	burstChunks []int
	burstAddrs  []uint16
	exited      int
	completed   int
}

func newFakes(n int) ([]*fakeTarget, []Target, *journal) {
	j := &journal{}
	fakes := make([]*fakeTarget, n)
	targets := make([]Target, n)
	for i := range fakes {
		fakes[i] = &fakeTarget{id: i, j: j}
		targets[i] = fakes[i]
	}
	return fakes, targets, j
}

func (f *fakeTarget) FwUpdateModeEnter(ctx context.Context) error {
	f.j.add("%d:enter", f.id)
	return f.enterErr
}

func (f *fakeTarget) FwUpdateInit(ctx context.Context, args command.TfuiArgs) (command.ReturnValue, error) {
	f.j.add("%d:init", f.id)
	f.initArgs = args
	return f.initRet, nil
}

func (f *fakeTarget) FwUpdateStreamData(ctx context.Context, args command.TfudArgs) error {
	f.j.add("%d:stream", f.id)
	f.streamArgs = append(f.streamArgs, args)
	return f.streamErr
}

func (f *fakeTarget) FwUpdateValidateStream(ctx context.Context, blockIndex int) (command.TfuqBlockStatus, error) {
	f.j.add("%d:validate:%d", f.id, blockIndex)
	f.validated = append(f.validated, blockIndex)
	if st, ok := f.status[blockIndex]; ok {
		return st, nil
	}
	if blockIndex == HeaderBlockIndex {
		return command.BlockHeaderValidAndAuthentic, nil
	}
	return command.BlockDataValidAndAuthentic, nil
}

func (f *fakeTarget) FwUpdateComplete(ctx context.Context) error {
	f.j.add("%d:complete", f.id)
	if f.completeErr == nil {
		f.completed++
	}
	return f.completeErr
}

func (f *fakeTarget) FwUpdateModeExit(ctx context.Context) error {
	f.j.add("%d:exit", f.id)
	f.exited++
	return f.exitErr
}

func (f *fakeTarget) BurstWrite(ctx context.Context, addr uint16, data []byte, chunk int) error {
	f.j.add("%d:burst:%d", f.id, len(data))
	f.burstAddrs = append(f.burstAddrs, addr)
	f.burst = append(f.burst, data...)
	f.burstChunks = append(f.burstChunks, chunk)
	return nil
}
