// debug.go - the small introspection surface cmd/viua's --debug REPL steps
// through: one tick at a time, with a stack trace and register dump
// instead of the free-running scheduler pool.
//
// Grounded on debug_monitor.go's freeze/resume/step model and
// debug_backtrace.go's frame walk, generalised from the teacher's
// single-CPU breakpoint debugger to stepping one Process's tick() in
// isolation, bypassing the scheduler pool entirely (a debugger session
// only ever drives one process at a time).

package viua

import "fmt"

// Step runs exactly one tick on p, the same unit of work a scheduler
// worker would perform, returning whether the process is still runnable.
func (p *Process) Step() (bool, error) {
	if p.Finished() {
		return false, nil
	}
	if err := p.tick(); err != nil {
		return false, err
	}
	return !p.Finished(), nil
}

// IP reports the process's current instruction cursor, relative to its
// active function's jump base.
func (p *Process) IP() int { return p.stack.IP }

// StackDepth reports the number of call frames currently on the process's
// active stack.
func (p *Process) StackDepth() int { return p.stack.Depth() }

// StackTrace renders the process's call stack, innermost frame first.
func (p *Process) StackTrace() []string { return p.stack.StackTrace() }

// ThrownException reports the exception currently propagating through the
// process, if any (nil once a handler has caught it or none was raised).
func (p *Process) ThrownException() *Exception { return p.stack.Thrown }

// DumpLocals renders the current frame's local registers as debug text,
// in the spirit of debug_ioview.go's register viewer.
func (p *Process) DumpLocals() ([]string, error) {
	f, err := p.stack.Current()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, f.Locals.Size())
	for i := 0; i < f.Locals.Size(); i++ {
		empty, _ := f.Locals.IsEmpty(i)
		if empty {
			continue
		}
		v, err := f.Locals.Get(i)
		if err != nil {
			continue
		}
		out = append(out, fmt.Sprintf("%%%d = %s", i, v.Repr()))
	}
	return out, nil
}
