package controller

import (
	"context"
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/device"
	"github.com/oxplot/go-tps6699x/regbus"
)

// InterruptPin is the active-low interrupt line of one or more controllers.
// periph.io's gpio.PinIn satisfies it.
type InterruptPin interface {
	// Read returns the current level of the line.
	Read() gpio.Level
	// WaitForEdge waits for the next edge or until timeout passes. It returns
	// false on timeout.
	WaitForEdge(timeout time.Duration) bool
}

// ProcessInterrupt drains and clears the interrupt flags of every enabled port
// and publishes them as one snapshot to WaitInterrupt and running commands. A
// pass that found no flags publishes nothing.
//
// If pin is not nil and reads high before a port is visited, the line was
// released by the previous port and the remaining ports are skipped. A port
// that does not answer (the chip NACKs reads mid-command) contributes no flags
// this time and is retried on the next interrupt.
func (c *Controller) ProcessInterrupt(pin InterruptPin) (Snapshot, error) {
	snap := make(Snapshot, c.NumPorts())
	var err error

	c.mu.Lock()
	for i := range snap {
		p := tps6699x.PortID(i)
		if !c.enabled[i].Load() {
			continue
		}
		if pin != nil && pin.Read() == gpio.High {
			break
		}
		flags, cerr := c.dev.ClearInterrupt(p)
		if cerr != nil {
			if isTransient(cerr) {
				c.cfg.Logger.Debug("port busy, skipping interrupt", "port", p, "err", cerr)
				continue
			}
			err = cerr
			break
		}
		snap[i].Or(flags)
	}
	c.mu.Unlock()

	if err != nil {
		c.cfg.Logger.Error("failed to clear interrupt", "err", err)
	}
	if !snap.IsZero() {
		c.sig.publish(snap)
	}
	return snap, err
}

func isTransient(err error) bool {
	return errors.Is(err, regbus.ErrNoAck) || errors.Is(err, tps6699x.ErrBusy)
}

// RunInterrupts services the interrupt line shared by ctrls until ctx is done.
// While the line is low every controller is drained in turn. The loop backs
// off before trying again after errors and when a pass drained no flags, e.g.
// while every port asserting the line is masked.
func RunInterrupts(ctx context.Context, pin InterruptPin, ctrls ...*Controller) error {
	if len(ctrls) == 0 {
		return tps6699x.ErrInvalidParams
	}
	backoff := ctrls[0].cfg.IdleBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if pin.Read() == gpio.Low {
			failed, drained := false, false
			for _, c := range ctrls {
				snap, err := c.ProcessInterrupt(pin)
				if err != nil {
					failed = true
				}
				if !snap.IsZero() {
					drained = true
				}
			}

			// Nothing drained means the line is held by masked ports or
			// by a port that does not answer yet.

			if failed || !drained {
				if err := sleep(ctx, backoff); err != nil {
					return err
				}
			}
			continue
		}

		// Pins without edge detection return right away, fall back to
		// polling at the backoff interval.

		start := time.Now()
		if !pin.WaitForEdge(backoff) {
			if err := sleep(ctx, backoff-time.Since(start)); err != nil {
				return err
			}
		}
	}
}

// EnableInterrupt enables or disables interrupt processing of port p.
func (c *Controller) EnableInterrupt(p tps6699x.PortID, enabled bool) error {
	if err := c.checkPort(p); err != nil {
		return err
	}
	c.enabled[p].Store(enabled)
	return nil
}

// EnableInterrupts enables or disables interrupt processing of all ports.
func (c *Controller) EnableInterrupts(enabled bool) {
	for i := range c.enabled {
		c.enabled[i].Store(enabled)
	}
}

// InterruptEnabled returns true if interrupts of port p are processed.
func (c *Controller) InterruptEnabled(p tps6699x.PortID) bool {
	return int(p) < c.NumPorts() && c.enabled[p].Load()
}

// ClearInterrupt drains the flags of port p outside of interrupt processing.
func (c *Controller) ClearInterrupt(p tps6699x.PortID) (Snapshot, error) {
	snap := make(Snapshot, c.NumPorts())
	err := c.WithDevice(func(d *device.Device) error {
		f, err := d.ClearInterrupt(p)
		if err == nil {
			snap[p] = f
		}
		return err
	})
	return snap, err
}
