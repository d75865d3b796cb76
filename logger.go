// logger.go - the runtime's diagnostic output, gated by the same
// verbose/debug flags as the teacher's CPU cores.
//
// Grounded on cpu_ie32.go's timestamped Printf diagnostic lines
// (Push/Pop/Reset tracing gated behind a Debug bool), generalised into a
// small interface since the scheduler now has many goroutines logging
// concurrently and a bare fmt.Printf would interleave output.

package viua

import (
	"fmt"
	"log"
	"os"
)

// Logger is satisfied by the default implementation below and by test
// doubles that want to assert on emitted diagnostics.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// StdLogger wraps a standard library *log.Logger, gating Debugf behind a
// verbosity flag the way the teacher gates its PUSH:/POP: trace lines
// behind Debug bool.
type StdLogger struct {
	out     *log.Logger
	verbose bool
}

func NewStdLogger(verbose bool) *StdLogger {
	return &StdLogger{out: log.New(os.Stderr, "viua: ", log.LstdFlags), verbose: verbose}
}

func (l *StdLogger) Debugf(format string, args ...any) {
	if l.verbose {
		l.out.Output(2, fmt.Sprintf("DEBUG "+format, args...))
	}
}

func (l *StdLogger) Infof(format string, args ...any) {
	l.out.Output(2, fmt.Sprintf("INFO "+format, args...))
}

func (l *StdLogger) Errorf(format string, args ...any) {
	l.out.Output(2, fmt.Sprintf("ERROR "+format, args...))
}

// nullLogger discards everything; used by tests that don't want runtime
// diagnostics on stderr.
type nullLogger struct{}

func (nullLogger) Debugf(string, ...any) {}
func (nullLogger) Infof(string, ...any)  {}
func (nullLogger) Errorf(string, ...any) {}
