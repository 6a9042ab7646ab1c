package controller

import (
	"context"
	"errors"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/command"
	"github.com/oxplot/go-tps6699x/device"
)

// The steps below are the per-controller building blocks of a firmware
// update. They are sequenced across controllers by the fwupdate package.

// FwUpdateModeEnter switches the controller to fw update mode. Only port 0
// keeps processing interrupts until FwUpdateComplete or FwUpdateModeExit.
func (c *Controller) FwUpdateModeEnter(ctx context.Context) error {
	c.fwMu.Lock()
	defer c.fwMu.Unlock()
	if c.fwGuard != nil {
		return tps6699x.ErrInProgress
	}

	// TFUs does not raise an interrupt and flags raised while the firmware
	// switches are meaningless. The guard taken here restores the state from
	// before entry, no other port is armed in between.

	g := c.MaskInterrupts(0)
	if err := c.enterFwUpdateMode(ctx); err != nil {
		g.Release()
		return err
	}
	c.setInterruptMask(Ports(tps6699x.Port0))
	c.fwGuard = g
	return nil
}

func (c *Controller) enterFwUpdateMode(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	ectx, cancel := context.WithTimeout(ctx, c.cfg.ModeEntryTimeout)
	defer cancel()

	if err := c.WithDevice(func(d *device.Device) error {
		return d.SendCommandUnchecked(tps6699x.Port0, command.Tfus, nil)
	}); err != nil {
		return err
	}
	if err := sleep(ectx, c.cfg.ModeEntryDelay); err != nil {
		c.cfg.Logger.Error("enter fw update mode timed out")
		return timeoutErr(ctx, err)
	}

	mode, err := c.Mode()
	if err != nil {
		return err
	}
	if mode != tps6699x.ModeF211 {
		c.cfg.Logger.Error("failed to enter fw update mode", "mode", mode)
		return tps6699x.ErrInvalidMode
	}
	return nil
}

// FwUpdateInit starts an update with TFUi. The return value is passed on
// as is.
func (c *Controller) FwUpdateInit(ctx context.Context, args command.TfuiArgs) (command.ReturnValue, error) {
	return c.ExecuteCommand(ctx, tps6699x.Port0, command.Tfui, args.Encode(), nil, c.cfg.CommandTimeout)
}

// FwUpdateStreamData announces the next data block with TFUd.
func (c *Controller) FwUpdateStreamData(ctx context.Context, args command.TfudArgs) error {
	ret, err := c.ExecuteCommand(ctx, tps6699x.Port0, command.Tfud, args.Encode(), nil, c.cfg.CommandTimeout)
	if err != nil {
		if errors.Is(err, tps6699x.ErrTimeout) {
			c.cfg.Logger.Error("stream data timed out")
		}
		return err
	}
	if ret != command.ReturnSuccess {
		c.cfg.Logger.Error("stream data failed", "ret", ret)
		return tps6699x.ErrFailed
	}
	return nil
}

// FwUpdateValidateStream queries the validation status of block blockIndex
// with TFUq. Block 0 is the header.
func (c *Controller) FwUpdateValidateStream(ctx context.Context, blockIndex int) (command.TfuqBlockStatus, error) {
	args := command.TfuqArgs{Command: command.QueryTfuStatus, StatusQuery: command.StatusInProgress}
	out := make([]byte, command.TfuqReturnLen)

	ret, err := c.ExecuteCommand(ctx, tps6699x.Port0, command.Tfuq, args.Encode(), out, c.cfg.CommandTimeout)
	if err != nil {
		if errors.Is(err, tps6699x.ErrTimeout) {
			c.cfg.Logger.Error("validate stream timed out")
		}
		return 0, err
	}
	if ret != command.ReturnSuccess {
		c.cfg.Logger.Error("validate stream failed", "ret", ret)
		return 0, tps6699x.ErrFailed
	}
	v, err := command.DecodeTfuqReturnValue(out)
	if err != nil {
		return 0, err
	}
	return v.BlockStatusAt(blockIndex)
}

// FwUpdateComplete finishes the update with TFUc and checks the controller
// came back running an application image.
func (c *Controller) FwUpdateComplete(ctx context.Context) error {
	if err := c.completeFwUpdate(ctx); err != nil {
		return err
	}
	c.releaseFwGuard()
	return nil
}

func (c *Controller) completeFwUpdate(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	g := c.MaskInterrupts(0)
	defer g.Release()

	rctx, cancel := context.WithTimeout(ctx, c.cfg.ResetTimeout)
	defer cancel()

	args := command.ResetArgs{SwitchBanks: 0, CopyBank: command.ResetFeatureEnable}
	if err := c.WithDevice(func(d *device.Device) error {
		return d.SendCommandUnchecked(tps6699x.Port0, command.Tfuc, args.Encode())
	}); err != nil {
		return err
	}
	if err := sleep(rctx, c.cfg.ResetDelay); err != nil {
		c.cfg.Logger.Error("complete fw update timed out")
		return timeoutErr(ctx, err)
	}

	mode, err := c.Mode()
	if err != nil {
		return err
	}
	if !mode.IsApp() {
		c.cfg.Logger.Error("failed to enter normal mode", "mode", mode)
		return tps6699x.ErrInvalidMode
	}
	return nil
}

// FwUpdateModeExit leaves fw update mode with TFUe. If that fails the
// controller is reset instead.
func (c *Controller) FwUpdateModeExit(ctx context.Context) error {
	defer c.releaseFwGuard()

	ret, err := c.ExecuteCommand(ctx, tps6699x.Port0, command.Tfue, nil, nil, c.cfg.CommandTimeout)
	if err == nil && ret == command.ReturnSuccess {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		c.cfg.Logger.Error("fw update exit failed, resetting", "err", err)
	} else {
		c.cfg.Logger.Error("fw update exit failed, resetting", "ret", ret)
	}
	return c.Reset(ctx)
}

// InFwUpdateMode returns true between a successful FwUpdateModeEnter and the
// following FwUpdateComplete or FwUpdateModeExit.
func (c *Controller) InFwUpdateMode() bool {
	c.fwMu.Lock()
	defer c.fwMu.Unlock()
	return c.fwGuard != nil
}

func (c *Controller) releaseFwGuard() {
	c.fwMu.Lock()
	defer c.fwMu.Unlock()
	if c.fwGuard != nil {
		c.fwGuard.Release()
		c.fwGuard = nil
	}
}

// BurstWrite writes data to the broadcast address addr in chunks. The device
// is locked per chunk so interrupts keep flowing during long transfers.
func (c *Controller) BurstWrite(ctx context.Context, addr uint16, data []byte, chunk int) error {
	if chunk <= 0 {
		return tps6699x.ErrInvalidParams
	}
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		part := data[:n]
		if err := c.WithDevice(func(d *device.Device) error {
			return d.BurstWrite(addr, part, n)
		}); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
