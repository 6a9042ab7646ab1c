// Package controller drives a TPS6699x from concurrent goroutines. It owns the
// device behind a mutex held only for single register transactions, drains
// interrupts into snapshots that waiting commands observe, and masks interrupt
// processing per port while the chip is reset or updated.
//
// A typical setup runs RunInterrupts in one goroutine and issues commands from
// others:
//
//	dev, _ := device.New(bus, tps6699x.Addr0)
//	c := controller.New(dev)
//	go controller.RunInterrupts(ctx, pin, c)
//	ret, err := c.ExecuteCommand(ctx, tps6699x.Port0, cmd, nil, nil, 0)
package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/command"
	"github.com/oxplot/go-tps6699x/device"
	"github.com/oxplot/go-tps6699x/registers"
)

// Controller wraps a Device for concurrent use.
type Controller struct {
	mu  sync.Mutex // guards dev
	dev *device.Device

	// cmdMu allows a single outstanding command per device as CMD1 and DATA1
	// are shared by all ports.
	cmdMu sync.Mutex

	sig     *signal
	enabled []atomic.Bool
	cfg     Config

	fwMu    sync.Mutex
	fwGuard *InterruptGuard // non-nil while in fw update mode
}

// New creates a controller for dev with interrupts enabled on every port.
func New(dev *device.Device, opts ...Option) *Controller {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Controller{
		dev:     dev,
		sig:     newSignal(),
		enabled: make([]atomic.Bool, dev.NumPorts()),
		cfg:     cfg,
	}
	for i := range c.enabled {
		c.enabled[i].Store(true)
	}
	return c
}

// NumPorts returns the number of ports of the underlying device.
func (c *Controller) NumPorts() int {
	return len(c.enabled)
}

// WithDevice runs fn with exclusive access to the device. fn should perform a
// short register transaction and never block on anything else.
func (c *Controller) WithDevice(fn func(*device.Device) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.dev)
}

func (c *Controller) checkPort(p tps6699x.PortID) error {
	if int(p) >= c.NumPorts() {
		return tps6699x.ErrInvalidPort
	}
	return nil
}

// ExecuteCommand sends cmd on port p and waits for its completion interrupt,
// then returns the result. A timeout of zero uses the configured command
// timeout.
//
// Completion is the Cmd1Completed flag of port p itself, flags raised on the
// other ports do not end the wait.
//
// Non-success return values are returned as values, not errors. If the
// completion interrupt does not arrive in time, the result is read once anyway
// and returned if the command did finish, otherwise tps6699x.ErrTimeout is
// returned.
func (c *Controller) ExecuteCommand(ctx context.Context, p tps6699x.PortID, cmd command.Command, indata, outdata []byte, timeout time.Duration) (command.ReturnValue, error) {
	return c.ExecuteCommandFunc(ctx, p, cmd, indata, outdata, timeout, registers.IntEvent.CmdCompleted)
}

// ExecuteCommandFunc is ExecuteCommand with a custom completion condition.
// done only ever sees the flags of port p.
func (c *Controller) ExecuteCommandFunc(ctx context.Context, p tps6699x.PortID, cmd command.Command, indata, outdata []byte, timeout time.Duration, done func(registers.IntEvent) bool) (command.ReturnValue, error) {
	if err := c.checkPort(p); err != nil {
		return 0, err
	}
	if timeout <= 0 {
		timeout = c.cfg.CommandTimeout
	}
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	// Anything published from here on may be our completion, so the
	// generation is taken before the command reaches the device.

	after := c.sig.reset()
	if err := c.WithDevice(func(d *device.Device) error {
		return d.SendCommandUnchecked(p, cmd, indata)
	}); err != nil {
		return 0, err
	}
	c.cfg.Logger.Debug("command sent", "port", p, "cmd", cmd)

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.sig.wait(wctx, after, func(s Snapshot) bool {
		return done(s.Port(p))
	})

	var ret command.ReturnValue
	read := func(d *device.Device) (err error) {
		ret, err = d.ReadCommandResult(p, outdata)
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		// The interrupt may have been missed, the result may still be there

		if rerr := c.WithDevice(read); rerr == nil {
			c.cfg.Logger.Info("command completed without interrupt", "port", p, "cmd", cmd, "ret", ret)
			return ret, nil
		}
		c.cfg.Logger.Error("command timed out", "port", p, "cmd", cmd)
		return 0, tps6699x.ErrTimeout
	}

	if err := c.WithDevice(read); err != nil {
		return 0, err
	}
	return ret, nil
}

// WaitInterrupt blocks until an interrupt snapshot has a port for which pred
// holds and returns the whole snapshot. With clearCurrent set, snapshots
// published before the call are ignored.
//
// Each snapshot is returned by WaitInterrupt at most once, so a loop of calls
// sees every matching interrupt once. With concurrent callers only one of them
// gets a given snapshot.
func (c *Controller) WaitInterrupt(ctx context.Context, clearCurrent bool, pred func(registers.IntEvent) bool) (Snapshot, error) {
	var after uint64
	if clearCurrent {
		after = c.sig.reset()
	}
	return c.sig.take(ctx, after, func(s Snapshot) bool {
		return s.Any(pred)
	})
}

// Reset performs a cold reset of the controller. Reset does not signal its
// completion through an interrupt so interrupt processing is masked on all
// ports until it is done.
func (c *Controller) Reset(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	g := c.MaskInterrupts(0)
	defer g.Release()

	rctx, cancel := context.WithTimeout(ctx, c.cfg.ResetTimeout)
	defer cancel()

	c.cfg.Logger.Info("resetting controller")
	if err := c.WithDevice(func(d *device.Device) error {
		return d.SendCommandUnchecked(tps6699x.Port0, command.Gaid, nil)
	}); err != nil {
		return err
	}
	if err := sleep(rctx, c.cfg.ResetDelay); err != nil {
		return timeoutErr(ctx, err)
	}

	// CMD1 reads back as success once the controller is back

	var done bool
	if err := c.WithDevice(func(d *device.Device) (err error) {
		done, err = d.CheckCommandComplete(tps6699x.Port0)
		return
	}); err != nil {
		return err
	}
	if !done {
		c.cfg.Logger.Error("controller still busy after reset")
		return tps6699x.ErrBusy
	}
	return nil
}

// PortStatus returns the status register of port p.
func (c *Controller) PortStatus(p tps6699x.PortID) (s registers.PortStatus, err error) {
	err = c.WithDevice(func(d *device.Device) error {
		s, err = d.PortStatus(p)
		return err
	})
	return
}

// ActivePdoContract returns the PDO of the contract active on port p.
func (c *Controller) ActivePdoContract(p tps6699x.PortID) (v registers.ActivePdoContract, err error) {
	err = c.WithDevice(func(d *device.Device) error {
		v, err = d.ActivePdoContract(p)
		return err
	})
	return
}

// ActiveRdoContract returns the RDO of the contract active on port p.
func (c *Controller) ActiveRdoContract(p tps6699x.PortID) (v registers.ActiveRdoContract, err error) {
	err = c.WithDevice(func(d *device.Device) error {
		v, err = d.ActiveRdoContract(p)
		return err
	})
	return
}

// Mode returns the operating mode of the controller.
func (c *Controller) Mode() (m tps6699x.Mode, err error) {
	err = c.WithDevice(func(d *device.Device) error {
		m, err = d.Mode()
		return err
	})
	return
}

// FwVersion returns the version of the running firmware.
func (c *Controller) FwVersion() (v registers.FwVersion, err error) {
	err = c.WithDevice(func(d *device.Device) error {
		v, err = d.FwVersion()
		return err
	})
	return
}

// CustomerUse returns the customer use register.
func (c *Controller) CustomerUse() (v uint64, err error) {
	err = c.WithDevice(func(d *device.Device) error {
		v, err = d.CustomerUse()
		return err
	})
	return
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// timeoutErr maps the expiry of a derived context to tps6699x.ErrTimeout
// while passing on cancellation of the parent.
func timeoutErr(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return tps6699x.ErrTimeout
	}
	return err
}
