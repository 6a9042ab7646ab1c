// Package fwupdate updates the firmware of one or more TPS6699x controllers
// sharing a bus.
//
// All controllers enter fw update mode, receive the TFUi arguments from the
// image header and then listen on a common broadcast address. Image blocks are
// written once to the broadcast address and validated on every controller.
// Any failure puts every controller that entered fw update mode back into
// normal operation.
package fwupdate

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/command"
	"github.com/oxplot/go-tps6699x/controller"
)

// Target is a controller taking part in an update.
type Target interface {
	FwUpdateModeEnter(ctx context.Context) error
	FwUpdateInit(ctx context.Context, args command.TfuiArgs) (command.ReturnValue, error)
	FwUpdateStreamData(ctx context.Context, args command.TfudArgs) error
	FwUpdateValidateStream(ctx context.Context, blockIndex int) (command.TfuqBlockStatus, error)
	FwUpdateComplete(ctx context.Context) error
	FwUpdateModeExit(ctx context.Context) error
	BurstWrite(ctx context.Context, addr uint16, data []byte, chunk int) error
}

var _ Target = (*controller.Controller)(nil)

// State is a stage of an update.
type State string

const (
	StateIdle               State = "idle"
	StateModeEntering       State = "mode-entering"
	StateModeEntered        State = "mode-entered"
	StateHeaderTransferring State = "header-transferring"
	StateHeaderValidating   State = "header-validating"
	StateDataTransferring   State = "data-transferring"
	StateDataValidating     State = "data-validating"
	StateConfigTransferring State = "config-transferring"
	StateConfigValidating   State = "config-validating"
	StateCompleting         State = "completing"
	StateModeExiting        State = "mode-exiting"
	StateAborting           State = "aborting"
)

// Progress describes how far an update has come.
type Progress struct {
	State        State
	Block        int // TFUq index of the block being handled
	TotalBlocks  int // header, data and app config blocks
	BytesWritten int // bytes written to the broadcast address
	Elapsed      time.Duration
}

// ProgressCallback is called on every state change.
type ProgressCallback func(Progress)

// block is an image block together with its stream arguments.
type block struct {
	index int
	args  command.TfudArgs
	data  []byte
}

type updater struct {
	ctx     context.Context
	targets []Target
	cfg     Config

	args   command.TfuiArgs
	header []byte
	blocks []block // data blocks followed by the app config block
	cur    int     // index into blocks

	// Number of leading targets which may be in fw update mode.
	entered int

	cause       error
	recoveryErr error

	start time.Time
	block int
	bytes int
}

type state struct {
	Name State

	// Enter does the work of the state and returns the next state. A nil
	// next state ends the update.
	Enter func(u *updater) (next *state, err error)
}

var (
	stateModeEntering       *state
	stateModeEntered        *state
	stateHeaderTransferring *state
	stateHeaderValidating   *state
	stateDataTransferring   *state
	stateDataValidating     *state
	stateConfigTransferring *state
	stateConfigValidating   *state
	stateCompleting         *state
	stateModeExiting        *state
	stateAborting           *state
)

// PerformUpdate writes image to all targets. The image is checked in full
// before any target is touched.
//
// When the update fails, every target that entered fw update mode is told to
// exit it and the failure is returned. If exiting fails too, the returned
// error is an *AbortError.
func PerformUpdate(ctx context.Context, targets []Target, image []byte, opts ...Option) error {
	if len(targets) == 0 {
		return errors.Wrap(tps6699x.ErrInvalidParams, "no targets")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	u := &updater{ctx: ctx, targets: targets, cfg: cfg}
	if err := u.load(Image(image)); err != nil {
		return err
	}
	return u.run()
}

func (u *updater) load(im Image) (err error) {
	if u.args, err = im.HeaderMetadata(); err != nil {
		return errors.Wrap(err, "image header metadata")
	}
	if u.header, err = im.HeaderBlock(); err != nil {
		return errors.Wrap(err, "image header block")
	}
	n := int(u.args.NumDataBlocksTx)
	for i := 0; i < n; i++ {
		args, data, err := im.DataBlock(i)
		if err != nil {
			return errors.Wrapf(err, "image data block %d", i)
		}
		u.blocks = append(u.blocks, block{index: DataBlockStartIndex + i, args: args, data: data})
	}
	args, data, err := im.AppConfigBlock(n)
	if err != nil {
		return errors.Wrap(err, "image app config block")
	}
	u.blocks = append(u.blocks, block{index: AppConfigBlockIndex, args: args, data: data})
	return nil
}

func (u *updater) run() error {
	u.start = time.Now()
	for s := stateModeEntering; s != nil; {
		u.cfg.Logger.Debug("fw update", "state", s.Name)
		u.report(s.Name)
		next, err := s.Enter(u)
		if err != nil {
			if s == stateAborting {
				u.report(StateIdle)
				return err
			}
			u.cfg.Logger.Error("fw update failed", "state", s.Name, "err", err)
			u.cause = err
			next = stateAborting
		}
		s = next
	}
	u.report(StateIdle)
	return nil
}

func (u *updater) report(s State) {
	if u.cfg.ProgressCallback == nil {
		return
	}
	u.cfg.ProgressCallback(Progress{
		State:        s,
		Block:        u.block,
		TotalBlocks:  len(u.blocks) + 1,
		BytesWritten: u.bytes,
		Elapsed:      time.Since(u.start),
	})
}

// broadcast writes data to the broadcast address addr through the first target
// and waits for the controllers to take it in.
func (u *updater) broadcast(addr uint16, data []byte, settle time.Duration) error {
	if err := u.targets[0].BurstWrite(u.ctx, addr, data, u.cfg.BurstWriteSize); err != nil {
		return errors.Wrapf(err, "burst write to %#02x", addr)
	}
	u.bytes += len(data)
	return sleep(u.ctx, settle)
}

// validate checks block index on every target with accept.
func (u *updater) validate(index int, accept func(command.TfuqBlockStatus) bool) error {
	for i, t := range u.targets {
		st, err := t.FwUpdateValidateStream(u.ctx, index)
		if err != nil {
			return errors.Wrapf(err, "controller %d: validate block %d", i, index)
		}
		if !accept(st) {
			return errors.Wrapf(tps6699x.ErrFailed, "controller %d: block %d status %s", i, index, st)
		}
	}
	return nil
}

func (u *updater) stream(b block) error {
	u.block = b.index
	for i, t := range u.targets {
		if err := t.FwUpdateStreamData(u.ctx, b.args); err != nil {
			return errors.Wrapf(err, "controller %d: stream block %d", i, b.index)
		}
	}
	return u.broadcast(b.args.BroadcastAddress, b.data, u.cfg.DataSettleDelay)
}

// exit takes target i out of fw update mode. It keeps going when ctx is
// already cancelled.
func (u *updater) exit(i int) {
	ctx := context.WithoutCancel(u.ctx)
	if err := u.targets[i].FwUpdateModeExit(ctx); err != nil {
		u.cfg.Logger.Error("exit fw update mode failed", "controller", i, "err", err)
		if u.recoveryErr == nil {
			u.recoveryErr = errors.Wrapf(err, "controller %d: exit fw update mode", i)
		}
	}
}

func init() {

	// Initializing is done here to avoid circular references between states
	// which are not allowed at the package level variable assignments.

	stateModeEntering = &state{
		Name: StateModeEntering,
		Enter: func(u *updater) (*state, error) {
			for i, t := range u.targets {
				// A target failing to enter may still have switched modes.
				u.entered = i + 1
				if err := t.FwUpdateModeEnter(u.ctx); err != nil {
					return nil, errors.Wrapf(err, "controller %d: enter fw update mode", i)
				}
			}
			return stateModeEntered, nil
		},
	}

	stateModeEntered = &state{
		Name: StateModeEntered,
		Enter: func(u *updater) (*state, error) {
			for i, t := range u.targets {
				ret, err := t.FwUpdateInit(u.ctx, u.args)
				if err != nil {
					return nil, errors.Wrapf(err, "controller %d: init fw update", i)
				}
				switch ret {
				case command.ReturnSuccess:
				case command.ReturnRejected:
					return nil, errors.Wrapf(tps6699x.ErrRejected, "controller %d: init fw update", i)
				default:
					return nil, errors.Wrapf(tps6699x.ErrFailed, "controller %d: init fw update returned %s", i, ret)
				}
			}
			return stateHeaderTransferring, nil
		},
	}

	stateHeaderTransferring = &state{
		Name: StateHeaderTransferring,
		Enter: func(u *updater) (*state, error) {
			u.block = HeaderBlockIndex
			if err := u.broadcast(u.args.BroadcastAddress, u.header, u.cfg.HeaderSettleDelay); err != nil {
				return nil, err
			}
			return stateHeaderValidating, nil
		},
	}

	stateHeaderValidating = &state{
		Name: StateHeaderValidating,
		Enter: func(u *updater) (*state, error) {
			if err := u.validate(HeaderBlockIndex, command.TfuqBlockStatus.HeaderValid); err != nil {
				return nil, err
			}
			if len(u.blocks) > 1 {
				return stateDataTransferring, nil
			}
			return stateConfigTransferring, nil
		},
	}

	stateDataTransferring = &state{
		Name: StateDataTransferring,
		Enter: func(u *updater) (*state, error) {
			if err := u.stream(u.blocks[u.cur]); err != nil {
				return nil, err
			}
			return stateDataValidating, nil
		},
	}

	stateDataValidating = &state{
		Name: StateDataValidating,
		Enter: func(u *updater) (*state, error) {
			if err := u.validate(u.blocks[u.cur].index, command.TfuqBlockStatus.DataValid); err != nil {
				return nil, err
			}
			u.cur++
			if u.cur < len(u.blocks)-1 {
				return stateDataTransferring, nil
			}
			return stateConfigTransferring, nil
		},
	}

	stateConfigTransferring = &state{
		Name: StateConfigTransferring,
		Enter: func(u *updater) (*state, error) {
			u.cur = len(u.blocks) - 1
			if err := u.stream(u.blocks[u.cur]); err != nil {
				return nil, err
			}
			return stateConfigValidating, nil
		},
	}

	stateConfigValidating = &state{
		Name: StateConfigValidating,
		Enter: func(u *updater) (*state, error) {
			if err := u.validate(AppConfigBlockIndex, command.TfuqBlockStatus.DataValid); err != nil {
				return nil, err
			}
			return stateCompleting, nil
		},
	}

	// Every target is either completed or exited here so a failure does not
	// lead to exiting the others again.
	stateCompleting = &state{
		Name: StateCompleting,
		Enter: func(u *updater) (*state, error) {
			u.entered = 0
			var first error
			for i, t := range u.targets {
				if err := t.FwUpdateComplete(u.ctx); err != nil {
					u.cfg.Logger.Error("complete fw update failed", "controller", i, "err", err)
					if first == nil {
						first = errors.Wrapf(err, "controller %d: complete fw update", i)
					}
					u.exit(i)
				}
			}
			if first != nil {
				return nil, first
			}
			return stateModeExiting, nil
		},
	}

	stateModeExiting = &state{
		Name: StateModeExiting,
		Enter: func(u *updater) (*state, error) {
			u.cfg.Logger.Info("fw update done", "controllers", len(u.targets), "bytes", u.bytes,
				"elapsed", time.Since(u.start))
			return nil, nil
		},
	}

	stateAborting = &state{
		Name: StateAborting,
		Enter: func(u *updater) (*state, error) {
			for i := 0; i < u.entered; i++ {
				u.exit(i)
			}
			u.entered = 0
			if u.recoveryErr != nil {
				return nil, &AbortError{Err: u.cause, RecoveryErr: u.recoveryErr}
			}
			return nil, u.cause
		},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
