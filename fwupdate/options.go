package fwupdate

import (
	"time"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/command"
	"github.com/oxplot/go-tps6699x/regbus"
)

// Config holds the update configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger tps6699x.Logger

	// ProgressCallback is called on every state change (optional)
	ProgressCallback ProgressCallback

	// BurstWriteSize is the largest single write to the broadcast address
	BurstWriteSize int

	// HeaderSettleDelay is the wait between broadcasting the header block and
	// validating it
	HeaderSettleDelay time.Duration

	// DataSettleDelay is the wait between broadcasting a data or app config
	// block and validating it
	DataSettleDelay time.Duration
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Logger:            tps6699x.NopLogger,
		BurstWriteSize:    command.BurstWriteSize,
		HeaderSettleDelay: command.TfuiBurstWriteDelay,
		DataSettleDelay:   command.TfudBurstWriteDelay,
	}
}

// Option is a functional option for configuring PerformUpdate.
type Option func(*Config)

// WithLogger sets a logger for the update.
func WithLogger(logger tps6699x.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithProgressCallback sets a callback function to track update progress.
//
// Example:
//
//	err := fwupdate.PerformUpdate(ctx, targets, image,
//	    fwupdate.WithProgressCallback(func(p fwupdate.Progress) {
//	        fmt.Printf("%s block %d/%d\n", p.State, p.Block, p.TotalBlocks)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithBurstWriteSize sets the chunk size of broadcast writes. Sizes outside
// 1..255 are ignored.
func WithBurstWriteSize(size int) Option {
	return func(c *Config) {
		if size > 0 && size <= regbus.MaxDataLen {
			c.BurstWriteSize = size
		}
	}
}

// WithHeaderSettleDelay sets the wait after broadcasting the header block.
func WithHeaderSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.HeaderSettleDelay = d
		}
	}
}

// WithDataSettleDelay sets the wait after broadcasting a data block.
func WithDataSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.DataSettleDelay = d
		}
	}
}
