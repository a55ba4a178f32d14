// Package vm implements the stack-based virtual machine that executes
// compiled bytecode, along with the native built-ins it exposes to the
// language.
//
// Architecture:
//
//   - a fixed value stack shared by every call frame,
//   - a fixed call-frame stack; each frame owns a window of the value
//     stack starting at its callee slot,
//   - an open-upvalue list through which closures observe live locals,
//   - a globals table and the interned-string heap shared with the
//     compiler through the garbage collector.
//
// The dispatch loop reads one opcode at a time and manipulates the stack;
// runtime errors unwind to Interpret, reset the machine, and are reported
// as a result code rather than a host-language panic.
package vm

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kristofer/golox/pkg/bytecode"
	"github.com/kristofer/golox/pkg/compiler"
	"github.com/kristofer/golox/pkg/object"
	"github.com/kristofer/golox/pkg/value"
)

const (
	// FramesMax bounds call depth; overflowing it is the language's
	// "Stack overflow!" error.
	FramesMax = 64
	// StackMax is the value-stack size: every frame gets up to 256 slots.
	StackMax = FramesMax * 256
)

// CallFrame is one function invocation: the closure being run, its
// instruction pointer, and where its stack window begins. slots[0] is the
// callee (or the bound receiver), slots[1..arity] the arguments.
type CallFrame struct {
	closure   *object.ObjClosure
	ip        int
	slotsBase int
}

// VM is the virtual machine. It is reusable: Interpret may be called many
// times (the REPL does), with globals and the heap persisting between
// calls.
type VM struct {
	frames      [FramesMax]CallFrame
	framesCount int

	stack    [StackMax]value.Value
	stackTop int

	gc      *object.GC
	globals object.Table

	// openUpvalues is sorted by descending stack slot; there is at most
	// one open upvalue per slot.
	openUpvalues *object.ObjUpvalue

	initString  *object.ObjString
	stringClass *object.ObjClass
	listClass   *object.ObjClass

	startTime time.Time

	// Repl switches the compiler into echo mode for trailing expressions.
	Repl bool
	// TraceExecution dumps the stack and each instruction to Stderr.
	TraceExecution bool
	// ShowBytecode disassembles every compilation result to Stderr.
	ShowBytecode bool

	Stdout io.Writer
	Stderr io.Writer
}

// New creates a VM with its own heap and the standard built-ins
// (clock, print, println, help, and the list and str classes) installed
// as globals.
func New() *VM {
	vm := &VM{
		gc:        object.NewGC(),
		startTime: time.Now(),
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
	vm.gc.AddRoots(vm)
	vm.initString = vm.gc.NewString("__init__")
	vm.defineStdlib()
	vm.stringClass = newStringClass(vm)
	vm.listClass = newListClass(vm)
	return vm
}

// GC exposes the collector for the REPL's :gc and :gc-stats commands.
func (vm *VM) GC() *object.GC { return vm.gc }

// StackSize reports how many values are live on the stack; it is zero
// between top-level statements of a well-behaved program.
func (vm *VM) StackSize() int { return vm.stackTop }

// FrameCount reports the live call-frame count.
func (vm *VM) FrameCount() int { return vm.framesCount }

// MarkRoots enumerates everything the VM holds: the live stack, the
// closures of active frames, open upvalues, globals, and the pre-interned
// runtime objects.
func (vm *VM) MarkRoots(gc *object.GC) {
	for i := 0; i < vm.stackTop; i++ {
		gc.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.framesCount; i++ {
		gc.MarkObject(vm.frames[i].closure)
	}
	for upvalue := vm.openUpvalues; upvalue != nil; upvalue = upvalue.NextOpen {
		gc.MarkObject(upvalue)
	}
	gc.MarkTable(&vm.globals)
	if vm.initString != nil {
		gc.MarkObject(vm.initString)
	}
	if vm.stringClass != nil {
		gc.MarkObject(vm.stringClass)
	}
	if vm.listClass != nil {
		gc.MarkObject(vm.listClass)
	}
}

// Interpret compiles and runs one unit of source.
func (vm *VM) Interpret(source string) InterpretResult {
	function, err := compiler.Compile(source, vm.gc, compiler.Options{
		Repl:   vm.Repl,
		Stderr: vm.Stderr,
	})
	if err != nil {
		return InterpretCompileError
	}
	if vm.ShowBytecode {
		DisassembleFunction(function, vm.Stderr)
	}

	// The function is pushed before the closure wraps it so a collection
	// triggered by the closure allocation cannot reclaim it.
	vm.push(value.ObjectVal(function))
	closure := vm.gc.NewClosure(function)
	vm.pop()
	vm.push(value.ObjectVal(closure))
	if !vm.callClosure(closure, 0) {
		return InterpretRuntimeError
	}
	return vm.run()
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.framesCount = 0
	vm.openUpvalues = nil
}

// runtimeError reports the error, optionally dumps the call stack, and
// resets the machine. The current interpretation is over.
func (vm *VM) runtimeError(format string, args ...interface{}) {
	fmt.Fprintf(vm.Stderr, "Runtime Error: "+format+"\n", args...)
	if vm.TraceExecution {
		vm.printStackTrace()
	}
	vm.resetStack()
}

func (vm *VM) printStackTrace() {
	for i := vm.framesCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		function := frame.closure.Function
		line := 0
		if frame.ip > 0 && frame.ip-1 < len(function.Chunk.Lines) {
			line = function.Chunk.Lines[frame.ip-1]
		}
		name := function.Signature.Name
		if name == "" {
			name = "script"
		} else {
			name = name + "()"
		}
		fmt.Fprintf(vm.Stderr, "[line %d] in %s\n", line, name)
	}
}

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.closure.Function.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readU16(frame *CallFrame) int {
	offset := frame.closure.Function.Chunk.ReadU16(frame.ip)
	frame.ip += 2
	return offset
}

func (vm *VM) readConstant(frame *CallFrame) value.Value {
	return frame.closure.Function.Chunk.Constants[vm.readByte(frame)]
}

func (vm *VM) readString(frame *CallFrame) *object.ObjString {
	return vm.readConstant(frame).AsObject().(*object.ObjString)
}

// run is the dispatch loop. Helpers that can fail report the error
// themselves and return false; the loop just translates that into the
// runtime-error result.
func (vm *VM) run() InterpretResult {
	frame := &vm.frames[vm.framesCount-1]

	for {
		if vm.TraceExecution {
			vm.traceInstruction(frame)
		}
		switch op := bytecode.Opcode(vm.readByte(frame)); op {
		case bytecode.OpLoadConstant:
			vm.push(vm.readConstant(frame))

		case bytecode.OpNil:
			vm.push(value.NilVal())
		case bytecode.OpTrue:
			vm.push(value.BoolVal(true))
		case bytecode.OpFalse:
			vm.push(value.BoolVal(false))

		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := int(vm.readByte(frame))
			vm.push(vm.stack[frame.slotsBase+slot])
		case bytecode.OpSetLocal:
			slot := int(vm.readByte(frame))
			vm.stack[frame.slotsBase+slot] = vm.peek(0)

		case bytecode.OpGetUpvalue:
			slot := int(vm.readByte(frame))
			vm.push(vm.upvalueGet(frame.closure.Upvalues[slot]))
		case bytecode.OpSetUpvalue:
			slot := int(vm.readByte(frame))
			vm.upvalueSet(frame.closure.Upvalues[slot], vm.peek(0))

		case bytecode.OpGetGlobal:
			name := vm.readString(frame)
			v, ok := vm.globals.Get(name)
			if !ok {
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}
			vm.push(v)
		case bytecode.OpSetGlobal:
			name := vm.readString(frame)
			if vm.globals.Set(name, vm.peek(0)) {
				// The assignment created the entry: the variable was
				// never declared. Undo and complain.
				vm.globals.Delete(name)
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}
		case bytecode.OpDefineGlobal:
			name := vm.readString(frame)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case bytecode.OpGetProperty:
			if !vm.getProperty(vm.readString(frame)) {
				return InterpretRuntimeError
			}
		case bytecode.OpSetProperty:
			if !vm.setProperty(vm.readString(frame)) {
				return InterpretRuntimeError
			}

		case bytecode.OpGetIndex:
			if !vm.getIndex() {
				return InterpretRuntimeError
			}
		case bytecode.OpSetIndex:
			if !vm.setIndex() {
				return InterpretRuntimeError
			}

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.BoolVal(a.Equals(b)))

		case bytecode.OpGreater:
			if !vm.binaryNumberOp(op) {
				return InterpretRuntimeError
			}
		case bytecode.OpLess:
			if !vm.binaryNumberOp(op) {
				return InterpretRuntimeError
			}
		case bytecode.OpAdd:
			if !vm.add() {
				return InterpretRuntimeError
			}
		case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			if !vm.binaryNumberOp(op) {
				return InterpretRuntimeError
			}

		case bytecode.OpNot:
			vm.push(value.BoolVal(vm.pop().IsFalsey()))
		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				vm.runtimeError("Operand must be a number.")
				return InterpretRuntimeError
			}
			vm.push(value.NumberVal(-vm.pop().AsNumber()))

		case bytecode.OpPrint:
			fmt.Fprintln(vm.Stdout, vm.pop().Str())
		case bytecode.OpPrintln:
			// The REPL echo: debug repr, and nothing at all for nil.
			if v := vm.pop(); !v.IsNil() {
				fmt.Fprintln(vm.Stdout, v.Repr())
			}

		case bytecode.OpJump:
			frame.ip += vm.readU16(frame)
		case bytecode.OpJumpIfFalse:
			offset := vm.readU16(frame)
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}
		case bytecode.OpLoop:
			frame.ip -= vm.readU16(frame)

		case bytecode.OpCall:
			argCount := int(vm.readByte(frame))
			if !vm.callValue(vm.peek(argCount), argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.framesCount-1]

		case bytecode.OpNewClosure:
			function := vm.readConstant(frame).AsObject().(*object.ObjFunction)
			closure := vm.gc.NewClosure(function)
			// On the stack before the upvalues are captured: capturing
			// may allocate, and an unreachable closure would be swept.
			vm.push(value.ObjectVal(closure))
			for i := range closure.Upvalues {
				isLocal := vm.readByte(frame)
				index := int(vm.readByte(frame))
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slotsBase + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case bytecode.OpNewClass:
			name := vm.readString(frame)
			vm.push(value.ObjectVal(vm.gc.NewClass(name.Chars)))

		case bytecode.OpNewMethod:
			name := vm.readString(frame)
			method := vm.peek(0).AsObject().(object.Object)
			class := vm.peek(1).AsObject().(*object.ObjClass)
			class.Methods.Set(name, value.ObjectVal(method))
			vm.pop()

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotsBase)
			vm.framesCount--
			if vm.framesCount == 0 {
				// The sentinel top-level closure.
				vm.pop()
				return InterpretOK
			}
			vm.stackTop = frame.slotsBase
			vm.push(result)
			frame = &vm.frames[vm.framesCount-1]

		default:
			vm.runtimeError("Unknown opcode %d.", byte(op))
			return InterpretRuntimeError
		}
	}
}

func (vm *VM) binaryNumberOp(op bytecode.Opcode) bool {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		vm.runtimeError("Operands must be numbers.")
		return false
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	switch op {
	case bytecode.OpGreater:
		vm.push(value.BoolVal(a > b))
	case bytecode.OpLess:
		vm.push(value.BoolVal(a < b))
	case bytecode.OpSubtract:
		vm.push(value.NumberVal(a - b))
	case bytecode.OpMultiply:
		vm.push(value.NumberVal(a * b))
	case bytecode.OpDivide:
		vm.push(value.NumberVal(a / b))
	}
	return true
}

// add is overloaded: numbers add, strings concatenate (into a fresh
// interned string). The operands stay on the stack until the result
// exists, keeping them rooted across the allocation.
func (vm *VM) add() bool {
	a, b := vm.peek(1), vm.peek(0)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.NumberVal(a.AsNumber() + b.AsNumber()))
		return true
	case a.IsObject() && b.IsObject():
		left := object.AsString(a.AsObject())
		right := object.AsString(b.AsObject())
		if left != nil && right != nil {
			concatenated := vm.gc.NewString(left.Chars + right.Chars)
			vm.pop()
			vm.pop()
			vm.push(value.ObjectVal(concatenated))
			return true
		}
	}
	vm.runtimeError("Operands must be two numbers or two strings.")
	return false
}

// callValue dispatches a call on the callee's kind.
func (vm *VM) callValue(callee value.Value, argCount int) bool {
	if callee.IsObject() {
		switch obj := callee.AsObject().(type) {
		case *object.ObjClosure:
			return vm.callClosure(obj, argCount)
		case *object.ObjNative:
			return vm.callNative(obj, argCount)
		case *object.ObjClass:
			return vm.callClass(obj, argCount)
		case *object.ObjBoundMethod:
			// The receiver takes the callee slot, becoming slot 0 of the
			// method's frame: that is what `this` resolves to.
			vm.stack[vm.stackTop-argCount-1] = obj.Receiver
			switch method := obj.Method.(type) {
			case *object.ObjClosure:
				return vm.callClosure(method, argCount)
			case *object.ObjNative:
				return vm.callNative(method, argCount)
			}
		}
	}
	vm.runtimeError("Can only call functions and classes.")
	return false
}

func (vm *VM) checkArity(signature *object.Signature, argCount int) bool {
	min, max := signature.MinArity(), signature.Arity()
	if argCount >= min && argCount <= max {
		return true
	}
	if min == max {
		vm.runtimeError("Expected %d arguments but got %d.", max, argCount)
	} else {
		vm.runtimeError("Expected between %d and %d arguments but got %d.", min, max, argCount)
	}
	return false
}

func (vm *VM) callClosure(closure *object.ObjClosure, argCount int) bool {
	if !vm.checkArity(&closure.Function.Signature, argCount) {
		return false
	}
	if vm.framesCount == FramesMax {
		vm.runtimeError("Stack overflow!")
		return false
	}
	frame := &vm.frames[vm.framesCount]
	vm.framesCount++
	frame.closure = closure
	frame.ip = 0
	frame.slotsBase = vm.stackTop - argCount - 1
	return true
}

func (vm *VM) callNative(native *object.ObjNative, argCount int) bool {
	if !vm.checkArity(&native.Signature, argCount) {
		return false
	}
	includeThis := 0
	if native.IsMethod {
		includeThis = 1
	}
	args := vm.stack[vm.stackTop-argCount-includeThis : vm.stackTop]
	result := native.Fn(args)
	if result.IsError() {
		// The native already reported the failure; just unwind.
		vm.resetStack()
		return false
	}
	vm.stackTop -= argCount + 1
	vm.push(result)
	return true
}

func (vm *VM) callClass(class *object.ObjClass, argCount int) bool {
	var instance object.Object
	if class.NewInstance != nil {
		instance = class.NewInstance(class, vm.gc)
	} else {
		instance = vm.gc.NewInstance(class)
	}
	vm.stack[vm.stackTop-argCount-1] = value.ObjectVal(instance)

	if init, ok := class.Methods.Get(vm.initString); ok {
		return vm.callClosure(init.AsObject().(*object.ObjClosure), argCount)
	}
	if argCount != 0 {
		vm.runtimeError("Expected 0 arguments but got %d.", argCount)
		return false
	}
	return true
}

// captureUpvalue returns the open upvalue over the given slot, creating
// and splicing one in descending-slot order if none exists. Reuse is what
// lets two closures over the same variable observe each other's writes.
func (vm *VM) captureUpvalue(slot int) *object.ObjUpvalue {
	var previous *object.ObjUpvalue
	upvalue := vm.openUpvalues
	for upvalue != nil && upvalue.Slot > slot {
		previous = upvalue
		upvalue = upvalue.NextOpen
	}
	if upvalue != nil && upvalue.Slot == slot {
		return upvalue
	}

	created := vm.gc.NewUpvalue(slot)
	created.NextOpen = upvalue
	if previous == nil {
		vm.openUpvalues = created
	} else {
		previous.NextOpen = created
	}
	return created
}

// closeUpvalues migrates every open upvalue at or above `last` into its
// own storage; the stack slots are about to die.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= last {
		upvalue := vm.openUpvalues
		upvalue.Closed = vm.stack[upvalue.Slot]
		upvalue.Slot = -1
		vm.openUpvalues = upvalue.NextOpen
		upvalue.NextOpen = nil
	}
}

func (vm *VM) upvalueGet(upvalue *object.ObjUpvalue) value.Value {
	if upvalue.IsClosed() {
		return upvalue.Closed
	}
	return vm.stack[upvalue.Slot]
}

func (vm *VM) upvalueSet(upvalue *object.ObjUpvalue, v value.Value) {
	if upvalue.IsClosed() {
		upvalue.Closed = v
	} else {
		vm.stack[upvalue.Slot] = v
	}
}

// getProperty implements `receiver.name`: field lookup first, then method
// binding. Strings have no fields, only the str class's methods.
func (vm *VM) getProperty(name *object.ObjString) bool {
	receiver := vm.peek(0)
	if receiver.IsObject() {
		if object.AsString(receiver.AsObject()) != nil {
			return vm.bindMethod(vm.stringClass, name)
		}
		if instance := object.AsInstance(receiver.AsObject()); instance != nil {
			if v, ok := instance.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				return true
			}
			return vm.bindMethod(instance.Class, name)
		}
	}
	vm.runtimeError("Only instances and strings have properties.")
	return false
}

// bindMethod wraps the receiver (still on the stack, so rooted) and the
// looked-up method into a bound method.
func (vm *VM) bindMethod(class *object.ObjClass, name *object.ObjString) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	bound := vm.gc.NewBoundMethod(vm.peek(0), method.AsObject().(object.Object))
	vm.pop()
	vm.push(value.ObjectVal(bound))
	return true
}

func (vm *VM) setProperty(name *object.ObjString) bool {
	receiver := vm.peek(1)
	var instance *object.ObjInstance
	if receiver.IsObject() {
		instance = object.AsInstance(receiver.AsObject())
	}
	if instance == nil {
		vm.runtimeError("Only instances have fields.")
		return false
	}
	instance.Fields.Set(name, vm.peek(0))
	v := vm.pop()
	vm.pop()
	vm.push(v)
	return true
}

func (vm *VM) getIndex() bool {
	list, index, ok := vm.indexOperands(vm.peek(1), vm.peek(0))
	if !ok {
		return false
	}
	vm.pop()
	vm.pop()
	vm.push(list.Items[index])
	return true
}

func (vm *VM) setIndex() bool {
	list, index, ok := vm.indexOperands(vm.peek(2), vm.peek(1))
	if !ok {
		return false
	}
	list.Items[index] = vm.peek(0)
	v := vm.pop()
	vm.pop()
	vm.pop()
	vm.push(v)
	return true
}

// indexOperands validates an indexing pair: the receiver must be a list,
// the index an integer within range (negative indices count from the
// end).
func (vm *VM) indexOperands(receiver, index value.Value) (*object.ObjList, int, bool) {
	var list *object.ObjList
	if receiver.IsObject() {
		list = object.AsList(receiver.AsObject())
	}
	if list == nil {
		vm.runtimeError("Can only index into lists.")
		return nil, 0, false
	}
	if !index.IsInteger() {
		vm.runtimeError("List index must be an integer.")
		return nil, 0, false
	}
	normalized, err := normalizeListIndex(index.AsInt(), len(list.Items))
	if err != nil {
		vm.runtimeError("%s", err)
		return nil, 0, false
	}
	return list, normalized, true
}
