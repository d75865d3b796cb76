// main.go - the viua runtime's CLI entry point (spec.md §6's "CLI surface
// of the runtime"): parses flags, loads a bytecode image, boots the
// kernel, and maps its outcome onto a process exit code.
//
// Grounded on the teacher's main.go/features.go: manual flag.Bool/
// flag.String registration (no cobra/viper), a -v/--version banner printed
// from build-time constants, and an early os.Exit driven by a single
// top-level error path -- generalised from "boot one emulated machine" to
// "boot one kernel and drive it to completion".

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/viua-lang/viua"
)

const (
	versionString = "viua 0.1.0"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("viua", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		showVersion bool
		verbose     bool
		debug       bool
		scream      bool
		schedulers  int
		ffiWorkers  int
		entryFn     string
	)
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.BoolVar(&showVersion, "v", false, "print version and exit (shorthand)")
	fs.BoolVar(&verbose, "V", false, "verbose diagnostic logging (shorthand)")
	fs.BoolVar(&verbose, "verbose", false, "verbose diagnostic logging")
	fs.BoolVar(&debug, "debug", false, "drop into an interactive debugger before running")
	fs.BoolVar(&scream, "scream", false, "extra-verbose assembler-style diagnostics (forwarded to Logger)")
	fs.IntVar(&schedulers, "schedulers", 0, "number of scheduler workers (0 = number of CPUs)")
	fs.IntVar(&ffiWorkers, "ffi-schedulers", 0, "number of dedicated FFI scheduler workers (0 = default)")
	fs.StringVar(&entryFn, "entry", "", "entry function name (default: image's \"main\" meta key, else main/0)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintln(os.Stdout, versionString)
		return 0
	}

	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "usage: viua [flags] <bytecode-image>")
		return 2
	}
	imagePath := rest[0]

	cfg := viua.LoadConfig()
	cfg.Verbose = verbose
	cfg.Debug = debug
	cfg.Scream = scream

	logger := viua.NewStdLogger(verbose || scream)

	img, err := viua.NewFileLoader().Load(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "viua: %v\n", err)
		return 1
	}

	if entryFn == "" {
		entryFn = img.Meta["main"]
	}
	if entryFn == "" {
		entryFn = "main/0"
	}

	k := viua.NewKernel(cfg, logger)

	if debug {
		if err := runDebugPrompt(k, img, entryFn); err != nil {
			fmt.Fprintf(os.Stderr, "viua: debugger: %v\n", err)
			return 1
		}
		return k.ExitCode()
	}

	code, err := k.Run(img, entryFn, schedulers, ffiWorkers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "viua: %v\n", err)
		return 1
	}
	return code
}
