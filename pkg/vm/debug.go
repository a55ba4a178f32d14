package vm

import (
	"fmt"
	"io"

	"github.com/kristofer/golox/pkg/bytecode"
	"github.com/kristofer/golox/pkg/object"
)

// Disassembly and per-instruction tracing. Both write to whatever stream
// the caller passes (the CLI uses stderr), and neither is on the hot path
// unless explicitly enabled.

// DisassembleFunction prints a function's chunk followed by the chunks of
// every function nested in its constant pool.
func DisassembleFunction(function *object.ObjFunction, w io.Writer) {
	name := function.Signature.Name
	if name == "" {
		name = "<script>"
	}
	DisassembleChunk(function.Chunk, name, w)
	for _, constant := range function.Chunk.Constants {
		if !constant.IsObject() {
			continue
		}
		if nested, ok := constant.AsObject().(*object.ObjFunction); ok {
			DisassembleFunction(nested, w)
		}
	}
}

// DisassembleChunk prints every instruction in a chunk.
func DisassembleChunk(chunk *bytecode.Chunk, name string, w io.Writer) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		offset = disassembleInstruction(chunk, offset, w)
	}
}

// disassembleInstruction decodes one instruction and returns the offset
// of the next one.
func disassembleInstruction(chunk *bytecode.Chunk, offset int, w io.Writer) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		fmt.Fprintf(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", chunk.Lines[offset])
	}

	op := bytecode.Opcode(chunk.Code[offset])
	switch op.Operand() {
	case bytecode.OperandNone:
		fmt.Fprintf(w, "%s\n", op)
		return offset + 1

	case bytecode.OperandByte:
		fmt.Fprintf(w, "%-16s %4d\n", op, chunk.Code[offset+1])
		return offset + 2

	case bytecode.OperandConstant:
		index := chunk.Code[offset+1]
		fmt.Fprintf(w, "%-16s %4d '%s'\n", op, index, chunk.Constants[index].Repr())
		return offset + 2

	case bytecode.OperandJump:
		operand := chunk.ReadU16(offset + 1)
		target := offset + 3 + operand
		if op == bytecode.OpLoop {
			target = offset + 3 - operand
		}
		fmt.Fprintf(w, "%-16s %4d -> %d\n", op, offset, target)
		return offset + 3

	case bytecode.OperandClosure:
		index := chunk.Code[offset+1]
		function := chunk.Constants[index].AsObject().(*object.ObjFunction)
		fmt.Fprintf(w, "%-16s %4d %s\n", op, index, function.Repr())
		offset += 2
		for i := 0; i < function.UpvalueCount; i++ {
			kind := "upvalue"
			if chunk.Code[offset] == 1 {
				kind = "local"
			}
			fmt.Fprintf(w, "%04d    |                     %s %d\n",
				offset, kind, chunk.Code[offset+1])
			offset += 2
		}
		return offset
	}
	fmt.Fprintf(w, "UNKNOWN(%d)\n", chunk.Code[offset])
	return offset + 1
}

// traceInstruction dumps the stack and the instruction about to execute.
func (vm *VM) traceInstruction(frame *CallFrame) {
	fmt.Fprintf(vm.Stderr, "          ")
	for i := 0; i < vm.stackTop; i++ {
		fmt.Fprintf(vm.Stderr, "[ %s ]", vm.stack[i].Repr())
	}
	fmt.Fprintln(vm.Stderr)
	disassembleInstruction(frame.closure.Function.Chunk, frame.ip, vm.Stderr)
}
