package controller

import (
	"sync"

	"github.com/oxplot/go-tps6699x"
)

// PortMask selects ports by bit, bit n being port n.
type PortMask uint8

// Ports returns the mask with the given ports set.
func Ports(ps ...tps6699x.PortID) PortMask {
	var m PortMask
	for _, p := range ps {
		m |= 1 << p
	}
	return m
}

// Has returns true if port p is set.
func (m PortMask) Has(p tps6699x.PortID) bool {
	return m&(1<<p) != 0
}

// InterruptGuard restores the interrupt enable state of a controller as it was
// before MaskInterrupts.
type InterruptGuard struct {
	c    *Controller
	prev PortMask
	once sync.Once
}

// MaskInterrupts leaves interrupt processing enabled only on the ports set in
// enabled until the returned guard is released.
//
//	g := c.MaskInterrupts(0)
//	defer g.Release()
func (c *Controller) MaskInterrupts(enabled PortMask) *InterruptGuard {
	g := &InterruptGuard{c: c, prev: c.interruptMask()}
	c.setInterruptMask(enabled)
	return g
}

// Release restores the enable state recorded by MaskInterrupts. Only the first
// call has an effect.
func (g *InterruptGuard) Release() {
	g.once.Do(func() {
		g.c.setInterruptMask(g.prev)
	})
}

func (c *Controller) interruptMask() PortMask {
	var m PortMask
	for i := range c.enabled {
		if c.enabled[i].Load() {
			m |= 1 << i
		}
	}
	return m
}

func (c *Controller) setInterruptMask(m PortMask) {
	for i := range c.enabled {
		c.enabled[i].Store(m.Has(tps6699x.PortID(i)))
	}
}
