// Tpsfw inspects, resets and updates the firmware of TPS6699x controllers
// attached to a Linux I2C bus.
//
// Usage:
//
//	tpsfw [flags] info
//	tpsfw [flags] watch
//	tpsfw [flags] reset
//	tpsfw [flags] update <image>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/controller"
	"github.com/oxplot/go-tps6699x/device"
	"github.com/oxplot/go-tps6699x/fwupdate"
	"github.com/oxplot/go-tps6699x/registers"
)

var (
	busName  = flag.String("bus", "1", "I2C bus name or number")
	busSpeed = flag.Int64("speed", 400000, "I2C bus speed in Hz, 0 keeps the current speed")
	intName  = flag.String("int", "", "GPIO name of the shared interrupt line")
	addrSets = flag.String("addr-set", "0", "comma separated address sets of the controllers, 0 or 1")
	debug    = flag.Bool("debug", false, "log debug messages")

	logger tps6699x.Logger = tps6699x.NopLogger
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] info|watch|reset|update <image>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	var task func(context.Context, []*controller.Controller) error
	switch cmd := flag.Arg(0); cmd {
	case "info":
		task = info
	case "watch":
		task = watch
	case "reset":
		task = reset
	case "update":
		if flag.NArg() != 2 {
			usage()
			os.Exit(2)
		}
		image, err := os.ReadFile(flag.Arg(1))
		if err != nil {
			log.Fatal(err)
		}
		task = func(ctx context.Context, ctrls []*controller.Controller) error {
			return update(ctx, ctrls, image)
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}

	sets, err := parseAddrSets(*addrSets)
	if err != nil {
		log.Fatal(err)
	}
	if *intName == "" {
		log.Fatal("-int is required")
	}

	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	b, err := i2creg.Open(*busName)
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()
	if *busSpeed > 0 {
		if err := b.SetSpeed(physic.Frequency(*busSpeed) * physic.Hertz); err != nil {
			log.Fatal(err)
		}
	}

	pin := gpioreg.ByName(*intName)
	if pin == nil {
		log.Fatalf("unknown GPIO %q", *intName)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		log.Fatal(err)
	}

	logger = tps6699x.NewLogger(os.Stderr, "\n", *debug)
	ctrls := make([]*controller.Controller, len(sets))
	for i, addrs := range sets {
		dev, err := device.New(b, addrs)
		if err != nil {
			log.Fatal(err)
		}
		ctrls[i] = controller.New(dev, controller.WithLogger(logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, pin, ctrls, task); err != nil {
		log.Fatal(err)
	}
}

// run services interrupts while task runs and stops once task returns.
func run(ctx context.Context, pin controller.InterruptPin, ctrls []*controller.Controller, task func(context.Context, []*controller.Controller) error) error {
	g, gctx := errgroup.WithContext(ctx)
	irqCtx, stopIRQ := context.WithCancel(gctx)

	g.Go(func() error {
		err := controller.RunInterrupts(irqCtx, pin, ctrls...)
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer stopIRQ()
		return task(gctx, ctrls)
	})
	return g.Wait()
}

func parseAddrSets(s string) ([][]uint8, error) {
	var sets [][]uint8
	for _, f := range strings.Split(s, ",") {
		switch strings.TrimSpace(f) {
		case "0":
			sets = append(sets, tps6699x.Addr0)
		case "1":
			sets = append(sets, tps6699x.Addr1)
		default:
			return nil, fmt.Errorf("invalid address set %q", f)
		}
	}
	return sets, nil
}

func info(ctx context.Context, ctrls []*controller.Controller) error {
	for i, c := range ctrls {
		mode, err := c.Mode()
		if err != nil {
			return err
		}
		ver, err := c.FwVersion()
		if err != nil {
			return err
		}
		cu, err := c.CustomerUse()
		if err != nil {
			return err
		}
		fmt.Printf("controller %d: mode=%s version=%s customer-use=%#016x\n", i, mode, ver, cu)

		for p := 0; p < c.NumPorts(); p++ {
			if err := printPort(c, tps6699x.PortID(p)); err != nil {
				return err
			}
		}
	}
	return nil
}

func printPort(c *controller.Controller, p tps6699x.PortID) error {
	st, err := c.PortStatus(p)
	if err != nil {
		return err
	}
	fmt.Printf("  %s: %s\n", p, st)
	if !st.PlugPresent() {
		return nil
	}
	pdo, err := c.ActivePdoContract(p)
	if err != nil {
		return err
	}
	rdo, err := c.ActiveRdoContract(p)
	if err != nil {
		return err
	}
	fmt.Printf("    pdo: %s\n    rdo: %s\n", pdo.PDO(), rdo.RDO())
	return nil
}

// watch prints interrupts until ctx is done.
func watch(ctx context.Context, ctrls []*controller.Controller) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range ctrls {
		i, c := i, c
		g.Go(func() error {
			for {
				snap, err := c.WaitInterrupt(gctx, true, func(e registers.IntEvent) bool { return !e.IsZero() })
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				for p, e := range snap {
					if e.IsZero() {
						continue
					}
					fmt.Printf("%s controller %d %s: %s\n", time.Now().Format(time.TimeOnly), i, tps6699x.PortID(p), e)
					if e.Has(registers.IntPlugEvent) || e.Has(registers.IntNewContractSink) || e.Has(registers.IntNewContractSource) {
						if err := printPort(c, tps6699x.PortID(p)); err != nil {
							fmt.Printf("  %s\n", err)
						}
					}
				}
			}
		})
	}
	return g.Wait()
}

func reset(ctx context.Context, ctrls []*controller.Controller) error {
	for i, c := range ctrls {
		if err := c.Reset(ctx); err != nil {
			return fmt.Errorf("controller %d: %w", i, err)
		}
		mode, err := c.Mode()
		if err != nil {
			return err
		}
		fmt.Printf("controller %d: mode=%s\n", i, mode)
	}
	return nil
}

func update(ctx context.Context, ctrls []*controller.Controller, image []byte) error {
	targets := make([]fwupdate.Target, len(ctrls))
	for i, c := range ctrls {
		targets[i] = c
	}
	err := fwupdate.PerformUpdate(ctx, targets, image,
		fwupdate.WithLogger(logger),
		fwupdate.WithProgressCallback(func(p fwupdate.Progress) {
			fmt.Printf("\r%-20s block %2d of %2d, %6d bytes, %s", p.State, p.Block, p.TotalBlocks,
				p.BytesWritten, p.Elapsed.Round(time.Millisecond))
		}),
	)
	fmt.Println()
	if err != nil {
		return err
	}
	return info(ctx, ctrls)
}
