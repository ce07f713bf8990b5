// Package log is a minimal wrapper around an io.Writer, extended with an
// internal serialised action queue: every Logln/Logf call is handed to a
// single background goroutine, so messages from concurrent producers
// (parallel FetchJobs, in particular) are written in the order they were
// queued rather than interleaved or reordered by scheduler whim.
package log

import (
	"fmt"
	"io"
)

// Logger serialises writes to an underlying io.Writer through a single
// background goroutine.
type Logger struct {
	w       io.Writer
	actions chan func(io.Writer)
	done    chan struct{}
}

// New returns a Logger writing to w. Close must be called to stop its
// background goroutine and release w.
func New(w io.Writer) *Logger {
	l := &Logger{
		w:       w,
		actions: make(chan func(io.Writer), 64),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) run() {
	defer close(l.done)
	for action := range l.actions {
		action(l.w)
	}
}

// Close stops accepting new messages and waits for every already-queued
// message to be written before returning.
func (l *Logger) Close() error {
	close(l.actions)
	<-l.done
	return nil
}

// Logln queues a line, formatted as fmt.Fprintln would.
func (l *Logger) Logln(args ...interface{}) {
	l.actions <- func(w io.Writer) { fmt.Fprintln(w, args...) }
}

// Logf queues a formatted string, formatted as fmt.Fprintf would.
func (l *Logger) Logf(format string, args ...interface{}) {
	l.actions <- func(w io.Writer) { fmt.Fprintf(w, format, args...) }
}

// LogEnginefln queues a formatted line prefixed with "pkgcore: ".
func (l *Logger) LogEnginefln(format string, args ...interface{}) {
	l.actions <- func(w io.Writer) { fmt.Fprintf(w, "pkgcore: "+format+"\n", args...) }
}
