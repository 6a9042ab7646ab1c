package controller

import (
	"time"

	"github.com/oxplot/go-tps6699x"
	"github.com/oxplot/go-tps6699x/command"
)

// Config holds the controller configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger tps6699x.Logger

	// ResetDelay is how long a reset or a completed update takes before the
	// controller answers again
	ResetDelay time.Duration

	// ResetTimeout bounds a whole reset
	ResetTimeout time.Duration

	// ModeEntryDelay is how long entering fw update mode takes
	ModeEntryDelay time.Duration

	// ModeEntryTimeout bounds entering fw update mode
	ModeEntryTimeout time.Duration

	// CommandTimeout is used by ExecuteCommand when no timeout is given and by
	// the interrupt driven fw update commands
	CommandTimeout time.Duration

	// IdleBackoff is the longest RunInterrupts waits for an edge before
	// polling the interrupt line again
	IdleBackoff time.Duration
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Logger:           tps6699x.NopLogger,
		ResetDelay:       command.ResetDelay,
		ResetTimeout:     command.ResetTimeout,
		ModeEntryDelay:   command.TfusDelay,
		ModeEntryTimeout: command.TfusTimeout,
		CommandTimeout:   command.TfuqTimeout,
		IdleBackoff:      50 * time.Millisecond,
	}
}

// Option is a functional option for configuring the Controller.
type Option func(*Config)

// WithLogger sets a logger for the controller operations.
//
// Example:
//
//	c := controller.New(dev, controller.WithLogger(myLogger))
func WithLogger(logger tps6699x.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithResetDelay sets how long to wait after issuing a reset before checking
// the result. The reset timeout grows along if it would be shorter.
func WithResetDelay(d time.Duration) Option {
	return func(c *Config) {
		if d < 0 {
			return
		}
		c.ResetDelay = d
		if c.ResetTimeout <= d {
			c.ResetTimeout = d + command.ResetTimeout - command.ResetDelay
		}
	}
}

// WithResetTimeout sets the bound of a whole reset.
func WithResetTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ResetTimeout = d
		}
	}
}

// WithModeEntryDelay sets how long to wait after requesting fw update mode
// before checking the mode.
func WithModeEntryDelay(d time.Duration) Option {
	return func(c *Config) {
		if d < 0 {
			return
		}
		c.ModeEntryDelay = d
		if c.ModeEntryTimeout <= d {
			c.ModeEntryTimeout = d + command.TfusTimeout - command.TfusDelay
		}
	}
}

// WithModeEntryTimeout sets the bound of entering fw update mode.
func WithModeEntryTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ModeEntryTimeout = d
		}
	}
}

// WithCommandTimeout sets the default command timeout.
//
// Example:
//
//	c := controller.New(dev, controller.WithCommandTimeout(2*time.Second))
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CommandTimeout = d
		}
	}
}

// WithIdleBackoff sets how long RunInterrupts blocks waiting for an edge.
func WithIdleBackoff(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.IdleBackoff = d
		}
	}
}
