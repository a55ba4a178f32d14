// Command golox runs Lox programs: with a script argument it executes the
// file, without one it starts a REPL.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/kristofer/golox/pkg/vm"
)

const version = "0.1.0"

// sysexits.h-style exit codes.
const (
	exUsage    = 64 // bad command line
	exDataErr  = 65 // compile error
	exSoftware = 70 // runtime error
	exIOErr    = 74 // unreadable script
)

func main() {
	app := cli.NewApp()
	app.Name = "golox"
	app.Usage = "a bytecode interpreter for the Lox language"
	app.Version = version
	app.ArgsUsage = "[script]"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "show-bytecode",
			Usage: "print disassembled bytecode after each compilation",
		},
		cli.BoolFlag{
			Name:  "trace",
			Usage: "print every instruction and the stack while executing",
		},
		cli.BoolFlag{
			Name:  "stress-gc",
			Usage: "force a garbage collection before every allocation",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	if ctx.NArg() > 1 {
		return cli.NewExitError("Usage: golox [script]", exUsage)
	}

	machine := vm.New()
	machine.Stderr = errorWriter()

	config := loadConfig(machine.Stderr)
	machine.TraceExecution = ctx.Bool("trace") || config.enableTracing
	machine.ShowBytecode = ctx.Bool("show-bytecode") || config.showBytecode
	machine.GC().Stress = ctx.Bool("stress-gc")
	if machine.TraceExecution {
		machine.GC().Trace = machine.Stderr
	}

	if ctx.NArg() == 0 {
		runREPL(machine)
		return nil
	}
	return runFile(machine, ctx.Args().First())
}

func runFile(machine *vm.VM, path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("Could not open file %q.", path), exIOErr)
	}
	switch machine.Interpret(string(source)) {
	case vm.InterpretCompileError:
		return cli.NewExitError("", exDataErr)
	case vm.InterpretRuntimeError:
		return cli.NewExitError("", exSoftware)
	}
	return nil
}

// errorWriter colors diagnostics red when stderr is a terminal and leaves
// them alone when it is a pipe or a file.
func errorWriter() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return &coloredWriter{w: os.Stderr, c: color.New(color.FgRed)}
	}
	return os.Stderr
}

type coloredWriter struct {
	w io.Writer
	c *color.Color
}

func (cw *coloredWriter) Write(p []byte) (int, error) {
	if _, err := cw.c.Fprint(cw.w, string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
