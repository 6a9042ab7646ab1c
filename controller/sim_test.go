package controller

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/command"
	"github.com/oxplot/go-tps6699x/regbus"
	"github.com/oxplot/go-tps6699x/registers"
)

// sim simulates the command and interrupt behavior of a TPS6699x on an I2C
// bus. Commands complete after delay by clearing CMD1, filling DATA1 and
// raising the completion flag which pulls the interrupt line low.
type sim struct {
	mu    sync.Mutex
	pin   *gpiotest.Pin
	ports map[uint16]*simPort
	delay time.Duration
	mode  tps6699x.Mode

	// DATA1 content after completion per command, return value first.
	// Commands not listed return success without payload.
	responses map[command.Command][]byte
	// Commands that never complete.
	hang map[command.Command]bool
	// Commands completing without raising the interrupt.
	silent map[command.Command]bool
	// Number of reads NACKed per address.
	nack map[uint16]int
	// Mode to switch to on TFUs, ModeF211 if zero.
	tfusMode tps6699x.Mode

	sent  []command.Command
	burst []byte
}

type simPort struct {
	cmd1  command.Command
	data1 []byte
	flags registers.IntEvent
}

func newSim(addrs []uint8, delay time.Duration) *sim {
	s := &sim{
		pin:       &gpiotest.Pin{N: "INT", L: gpio.High, EdgesChan: make(chan gpio.Level, 16)},
		ports:     map[uint16]*simPort{},
		delay:     delay,
		mode:      tps6699x.ModeApp0,
		responses: map[command.Command][]byte{},
		hang:      map[command.Command]bool{},
		silent:    map[command.Command]bool{},
		nack:      map[uint16]int{},
	}
	for _, a := range addrs {
		s.ports[uint16(a)] = &simPort{data1: []byte{0}}
	}
	return s
}

func (s *sim) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.ports[addr]
	if !ok {
		if r != nil {
			return fmt.Errorf("sim: read from unknown address %#x", addr)
		}
		s.burst = append(s.burst, w...)
		return nil
	}
	if len(w) == 0 {
		return fmt.Errorf("sim: empty write")
	}

	if r == nil {
		if len(w) < 2 || int(w[1]) != len(w)-2 {
			return fmt.Errorf("sim: malformed register write % x", w)
		}
		s.write(p, w[0], w[2:])
		return nil
	}

	if s.nack[addr] > 0 {
		s.nack[addr]--
		return fmt.Errorf("sim: %w", regbus.ErrNoAck)
	}
	var v []byte
	switch w[0] {
	case registers.Cmd1:
		v = make([]byte, 4)
		binary.LittleEndian.PutUint32(v, uint32(p.cmd1))
	case registers.Data1:
		v = p.data1
	case registers.IntEventBus1:
		v = append([]byte(nil), p.flags[:]...)
		s.updatePin()
	case registers.Mode:
		v = make([]byte, 4)
		binary.LittleEndian.PutUint32(v, uint32(s.mode))
	default:
		return fmt.Errorf("sim: read of unsupported register %#x", w[0])
	}
	if len(v) > len(r)-1 {
		return fmt.Errorf("sim: read of %#x too short", w[0])
	}
	r[0] = uint8(len(v))
	copy(r[1:], v)
	return nil
}

func (s *sim) write(p *simPort, reg uint8, data []byte) {
	switch reg {
	case registers.Data1:
	case registers.IntClearBus1:
		for i := range p.flags {
			if i < len(data) {
				p.flags[i] &^= data[i]
			}
		}
		s.updatePin()
	case registers.Cmd1:
		cmd := command.Command(binary.LittleEndian.Uint32(data))
		p.cmd1 = cmd
		s.sent = append(s.sent, cmd)
		switch cmd {
		case command.Tfus:
			s.mode = s.tfusMode
			if s.mode == 0 {
				s.mode = tps6699x.ModeF211
			}
			p.cmd1 = command.Success
		case command.Tfuc:
			s.mode = tps6699x.ModeApp0
			p.cmd1 = command.Success
		case command.Gaid:
			if !s.hang[cmd] {
				s.mode = tps6699x.ModeApp0
				p.cmd1 = command.Success
			}
		default:
			if !s.hang[cmd] {
				time.AfterFunc(s.delay, func() { s.complete(p, cmd) })
			}
		}
	}
}

func (s *sim) complete(p *simPort, cmd command.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.cmd1 = command.Success
	p.data1 = []byte{0}
	if resp, ok := s.responses[cmd]; ok {
		p.data1 = resp
	}
	if s.silent[cmd] {
		return
	}
	p.flags.Set(registers.IntCmd1Completed)
	s.assert()
}

// raise sets flag f on the port at addr as if the chip raised it.
func (s *sim) raise(addr uint16, f registers.IntFlag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports[addr].flags.Set(f)
	s.assert()
}

func (s *sim) assert() {
	s.pin.Out(gpio.Low)
	select {
	case s.pin.EdgesChan <- gpio.Low:
	default:
	}
}

// updatePin releases the line once no port has flags pending.
func (s *sim) updatePin() {
	for _, p := range s.ports {
		if !p.flags.IsZero() {
			return
		}
	}
	s.pin.Out(gpio.High)
}

func (s *sim) sentCommands() []command.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]command.Command(nil), s.sent...)
}

func (s *sim) burstBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.burst...)
}
