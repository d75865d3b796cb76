// debug.go - the --debug interactive prompt: single-steps the entry
// process's tick() loop, printing its stack trace and locals between
// steps.
//
// Grounded on terminal_host.go's raw-mode terminal passthrough
// (golang.org/x/term), repurposed here from "forward keystrokes to an
// emulated machine's terminal device" to "read one debugger command
// keystroke at a time, no Enter required" -- and debug_commands.go's
// small command-parser loop (step/continue/print/quit) for the command
// set itself. Raw mode and line-buffered bufio.Scanner don't mix (raw
// mode suppresses the canonical newline processing Scanner depends on),
// so a controlling terminal gets single-keystroke commands and a piped
// stdin (no terminal to put in raw mode) falls back to line commands.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/viua-lang/viua"
	"golang.org/x/term"
)

// runDebugPrompt spawns the entry process and drives it one tick at a
// time under operator control, bypassing the scheduler pool: a debugger
// session only ever steps one process.
func runDebugPrompt(k *viua.Kernel, img *viua.Image, entryFn string) error {
	if err := k.Boot(img); err != nil {
		return err
	}
	p, err := k.SpawnMain(entryFn)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "viua debugger: process %d at %q, type 'h' for help\n", p.PID, entryFn)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		return runKeystrokeLoop(fd, p)
	}
	return runLineLoop(p)
}

// runKeystrokeLoop reads one raw keystroke per command: no Enter key is
// needed, matching a conventional single-key debugger prompt.
func runKeystrokeLoop(fd int, p *viua.Process) error {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return runLineLoop(p)
	}
	defer term.Restore(fd, state)

	buf := make([]byte, 1)
	for {
		fmt.Fprint(os.Stderr, "\r\n(viua) ")
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return nil
		}
		if done := dispatchCommand(p, string(buf[0])); done {
			return nil
		}
	}
}

// runLineLoop is the fallback for a non-terminal stdin (a script feeding
// commands, or output redirected): ordinary newline-terminated commands.
func runLineLoop(p *viua.Process) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "(viua) ")
		if !scanner.Scan() {
			return nil
		}
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			cmd = "s"
		}
		if done := dispatchCommand(p, cmd); done {
			return nil
		}
	}
}

// dispatchCommand runs one debugger command against p, returning true
// when the session should end (process finished or operator quit).
func dispatchCommand(p *viua.Process, cmd string) bool {
	switch cmd {
	case "s", "step":
		runnable, err := p.Step()
		if err != nil {
			fmt.Fprintf(os.Stderr, "\r\nerror: %v", err)
			return false
		}
		printStatus(p)
		if !runnable {
			fmt.Fprint(os.Stderr, "\r\nprocess finished")
			return true
		}
		return false

	case "c", "continue":
		for {
			runnable, err := p.Step()
			if err != nil {
				fmt.Fprintf(os.Stderr, "\r\nerror: %v", err)
				return true
			}
			if !runnable {
				fmt.Fprint(os.Stderr, "\r\nprocess finished")
				return true
			}
		}

	case "b", "bt", "backtrace":
		for _, line := range p.StackTrace() {
			fmt.Fprintf(os.Stderr, "\r\n%s", line)
		}
		return false

	case "p", "locals":
		locals, err := p.DumpLocals()
		if err != nil {
			fmt.Fprintf(os.Stderr, "\r\nerror: %v", err)
			return false
		}
		for _, line := range locals {
			fmt.Fprintf(os.Stderr, "\r\n%s", line)
		}
		return false

	case "q", "quit":
		return true

	case "h", "help":
		fmt.Fprint(os.Stderr, "\r\ncommands: s=step c=continue b=backtrace p=locals q=quit")
		return false

	default:
		fmt.Fprintf(os.Stderr, "\r\nunknown command %q, try 'h'", cmd)
		return false
	}
}

func printStatus(p *viua.Process) {
	fmt.Fprintf(os.Stderr, "\r\nip=%d depth=%d", p.IP(), p.StackDepth())
	if exc := p.ThrownException(); exc != nil {
		fmt.Fprintf(os.Stderr, " thrown=%s", exc.Str())
	}
}
