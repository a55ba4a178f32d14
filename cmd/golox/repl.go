package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"

	"github.com/kristofer/golox/pkg/vm"
)

const banner = `
        | golox %s
 go-lox | a bytecode interpreter for Lox
        | type "quit" or "exit" to leave, :help for REPL commands
`

const historyFile = ".golox_history"

// runREPL reads lines until EOF or quit. Lines starting with ':' are REPL
// commands; everything else is interpreted in the running VM, and a
// trailing expression echoes its result.
func runREPL(machine *vm.VM) {
	machine.Repl = true
	interactive := isatty.IsTerminal(os.Stdin.Fd())
	if interactive {
		fmt.Printf(banner, version)
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := historyFilePath()
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	for {
		input, err := line.Prompt(">>> ")
		if err == io.EOF {
			fmt.Println()
			break
		}
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading input: %v\n", err)
			break
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		line.AppendHistory(input)

		if trimmed == "quit" || trimmed == "exit" {
			break
		}
		if strings.HasPrefix(trimmed, ":") {
			runCommand(machine, trimmed)
			continue
		}
		machine.Interpret(input)
	}

	if historyPath != "" {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFile)
}

func runCommand(machine *vm.VM, command string) {
	fields := strings.Fields(command)
	switch fields[0] {
	case ":help":
		fmt.Println("REPL commands:")
		fmt.Println("  :load <path>      execute a file in the current VM")
		fmt.Println("  :toggle-bytecode  toggle disassembly after compilation")
		fmt.Println("  :toggle-tracing   toggle per-instruction tracing")
		fmt.Println("  :gc               force a garbage collection cycle")
		fmt.Println("  :gc-stats         print allocation statistics")

	case ":load":
		if len(fields) != 2 {
			fmt.Fprintln(os.Stderr, "usage: :load <path>")
			return
		}
		source, err := os.ReadFile(fields[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not open file %q.\n", fields[1])
			return
		}
		machine.Interpret(string(source))

	case ":toggle-bytecode":
		machine.ShowBytecode = !machine.ShowBytecode
		fmt.Printf("show-bytecode: %v\n", machine.ShowBytecode)

	case ":toggle-tracing":
		machine.TraceExecution = !machine.TraceExecution
		if machine.TraceExecution {
			machine.GC().Trace = machine.Stderr
		} else {
			machine.GC().Trace = nil
		}
		fmt.Printf("tracing: %v\n", machine.TraceExecution)

	case ":gc":
		machine.GC().Collect()

	case ":gc-stats":
		bytesAllocated, nextGC := machine.GC().Stats()
		fmt.Printf("bytes_allocated:   %d\n", bytesAllocated)
		fmt.Printf("next_gc_threshold: %d\n", nextGC)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (try :help)\n", fields[0])
	}
}
