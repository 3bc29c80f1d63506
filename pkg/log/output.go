package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
)

// ConsoleOutput writes formatted entries to stderr.
type ConsoleOutput struct {
	w io.Writer
}

// NewConsoleOutput creates a console output bound to stderr.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{w: os.Stderr}
}

func (o *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	_, err := o.w.Write(formatted)
	return err
}

func (o *ConsoleOutput) Close() error { return nil }

// WriterOutput adapts an arbitrary io.Writer to an Output. Test helper.
type WriterOutput struct {
	W io.Writer
}

func (o *WriterOutput) Write(_ *Entry, formatted []byte) error {
	_, err := o.W.Write(formatted)
	return err
}

func (o *WriterOutput) Close() error { return nil }

// RedirectStdLog routes standard library log output (Pebble logs through it)
// into the provided Logger at info level.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogBridge{logger: logger})
}

type stdLogBridge struct {
	logger Logger
}

func (b stdLogBridge) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		b.logger.Info(msg, Component("stdlog"))
	}
	return len(p), nil
}
