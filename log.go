package tps6699x

import (
	"fmt"
	"io"
	"sync"
)

// Logger receives diagnostic messages from the driver. Key/value pairs follow
// the message, e.g. Info("entering fw update", "controller", 0).
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NopLogger discards everything.
var NopLogger Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// WriterLogger writes one line per message to an io.Writer. Line separator is
// written after each line. Some common values are "\n", "\r", "\r\n".
type WriterLogger struct {
	mu    sync.Mutex
	w     io.Writer
	sep   string
	debug bool
}

// NewLogger creates a logger writing to w. Debug messages are dropped unless
// debug is true.
func NewLogger(w io.Writer, lineSep string, debug bool) *WriterLogger {
	return &WriterLogger{w: w, sep: lineSep, debug: debug}
}

// Debug implements Logger.
func (l *WriterLogger) Debug(msg string, kv ...interface{}) {
	if l.debug {
		l.write("DEBUG", msg, kv)
	}
}

// Info implements Logger.
func (l *WriterLogger) Info(msg string, kv ...interface{}) {
	l.write("INFO", msg, kv)
}

// Error implements Logger.
func (l *WriterLogger) Error(msg string, kv ...interface{}) {
	l.write("ERROR", msg, kv)
}

func (l *WriterLogger) write(level, msg string, kv []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%-5s %s", level, msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(l.w, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(l.w, " %v", kv[i])
		}
	}
	fmt.Fprint(l.w, l.sep)
}
