package main

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/controller"
	"github.com/oxplot/go-tps6699x/device"
)

func TestParseAddrSets(t *testing.T) {
	got, err := parseAddrSets("0, 1")
	if err != nil {
		t.Fatal(err)
	}
	if want := [][]uint8{tps6699x.Addr0, tps6699x.Addr1}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	for _, s := range []string{"", "2", "0,,1"} {
		if _, err := parseAddrSets(s); err == nil {
			t.Errorf("parseAddrSets(%q) succeeded", s)
		}
	}
}

func TestRunStopsInterruptsAfterTask(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	defer bus.Close()
	dev, err := device.New(bus, tps6699x.Addr0)
	if err != nil {
		t.Fatal(err)
	}
	ctrls := []*controller.Controller{controller.New(dev, controller.WithIdleBackoff(5*time.Millisecond))}
	errTask := errors.New("task failed")

	for _, want := range []error{nil, errTask} {
		pin := &gpiotest.Pin{N: "INT", L: gpio.High, EdgesChan: make(chan gpio.Level)}
		done := make(chan error, 1)
		go func() {
			done <- run(context.Background(), pin, ctrls, func(context.Context, []*controller.Controller) error {
				return want
			})
		}()
		select {
		case err := <-done:
			if !errors.Is(err, want) {
				t.Errorf("err = %v, want %v", err, want)
			}
		case <-time.After(time.Second):
			t.Fatal("run did not return")
		}
	}
}
