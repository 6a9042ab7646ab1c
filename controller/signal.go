package controller

import (
	"context"
	"sync"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/registers"
)

// Snapshot holds the interrupt flags drained from every port of a controller
// during one interrupt. Index is the port.
type Snapshot []registers.IntEvent

// Port returns the flags of port p or no flags if p is out of range.
func (s Snapshot) Port(p tps6699x.PortID) registers.IntEvent {
	if int(p) >= len(s) {
		return registers.IntEvent{}
	}
	return s[p]
}

// Any returns true if pred holds for at least one port.
func (s Snapshot) Any(pred func(registers.IntEvent) bool) bool {
	for _, f := range s {
		if pred(f) {
			return true
		}
	}
	return false
}

// IsZero returns true if no port has any flag set.
func (s Snapshot) IsZero() bool {
	for _, f := range s {
		if !f.IsZero() {
			return false
		}
	}
	return true
}

func (s Snapshot) clone() Snapshot {
	return append(Snapshot(nil), s...)
}

// signal is a single slot broadcast cell. Every published value replaces the
// previous one and wakes all waiters. Values are numbered so a waiter can
// ignore anything published before it started.
type signal struct {
	mu    sync.Mutex
	gen   uint64
	val   Snapshot
	valid bool
	taken uint64 // generation of the last value returned by take
	wake  chan struct{}
}

func newSignal() *signal {
	return &signal{wake: make(chan struct{})}
}

func (s *signal) publish(v Snapshot) {
	s.mu.Lock()
	s.gen++
	s.val = v.clone()
	s.valid = true
	close(s.wake)
	s.wake = make(chan struct{})
	s.mu.Unlock()
}

// reset discards the current value and returns the generation a waiter must
// see exceeded.
func (s *signal) reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = false
	return s.gen
}

// wait blocks until a value newer than generation after satisfies pred.
func (s *signal) wait(ctx context.Context, after uint64, pred func(Snapshot) bool) (Snapshot, error) {
	return s.await(ctx, after, pred, false)
}

// take is wait that also skips values already returned by take and marks the
// value it returns as taken. Each value is taken at most once.
func (s *signal) take(ctx context.Context, after uint64, pred func(Snapshot) bool) (Snapshot, error) {
	return s.await(ctx, after, pred, true)
}

func (s *signal) await(ctx context.Context, after uint64, pred func(Snapshot) bool, consume bool) (Snapshot, error) {
	for {
		s.mu.Lock()
		if consume && s.taken > after {
			after = s.taken
		}
		if s.valid && s.gen > after {
			if pred(s.val) {
				v := s.val.clone()
				if consume {
					s.taken = s.gen
				}
				s.mu.Unlock()
				return v, nil
			}
			after = s.gen
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
