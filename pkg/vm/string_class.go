package vm

import (
	"fmt"
	"strings"

	"github.com/kristofer/golox/pkg/object"
	"github.com/kristofer/golox/pkg/value"
)

// The native str class. Strings are not instances — property access on a
// string binds methods straight from this class — but the class is also
// registered as the global `str` so `help(str)` works.

func newStringClass(vm *VM) *object.ObjClass {
	var class *object.ObjClass
	vm.gc.WithNursery(func() {
		nameString := vm.gc.NewString("str")
		class = vm.gc.NewClass("str")
		defineStringMethods(vm, class)
		vm.globals.Set(nameString, value.ObjectVal(class))
	})
	return class
}

func defineStringMethods(vm *VM, class *object.ObjClass) {
	defineMethod(vm, class, "length", nil, "int",
		"Returns the string length.",
		func(args []value.Value) value.Value {
			self := requireString(args[0])
			return value.NumberVal(float64(len(self.Chars)))
		})

	defineMethod(vm, class, "starts_with", params(param("prefix", "str")), "bool",
		"Returns true if string starts with prefix.",
		func(args []value.Value) value.Value {
			self := requireString(args[0])
			prefix, ok := vm.requireStringArg(args[1], "starts_with")
			if !ok {
				return value.ErrorVal()
			}
			return value.BoolVal(strings.HasPrefix(self.Chars, prefix.Chars))
		})

	defineMethod(vm, class, "ends_with", params(param("suffix", "str")), "bool",
		"Returns true if string ends with suffix.",
		func(args []value.Value) value.Value {
			self := requireString(args[0])
			suffix, ok := vm.requireStringArg(args[1], "ends_with")
			if !ok {
				return value.ErrorVal()
			}
			return value.BoolVal(strings.HasSuffix(self.Chars, suffix.Chars))
		})

	defineMethod(vm, class, "index_of", params(param("target", "str")), "int",
		"Returns first index of target, or -1 if not found.",
		func(args []value.Value) value.Value {
			self := requireString(args[0])
			target, ok := vm.requireStringArg(args[1], "index_of")
			if !ok {
				return value.ErrorVal()
			}
			return value.NumberVal(float64(strings.Index(self.Chars, target.Chars)))
		})

	defineMethod(vm, class, "slice",
		params(param("start", "int"), param("end", "int")), "str",
		"Returns substring in [start, end).",
		func(args []value.Value) value.Value {
			self := requireString(args[0])
			start, ok := vm.requireIntArg(args[1], "start index")
			if !ok {
				return value.ErrorVal()
			}
			end, ok := vm.requireIntArg(args[2], "end index")
			if !ok {
				return value.ErrorVal()
			}
			normStart, normEnd, err := normalizeSliceBounds(start, end, len(self.Chars), "string")
			if err != nil {
				return vm.indexError(err)
			}
			return value.ObjectVal(vm.gc.NewString(self.Chars[normStart:normEnd]))
		})
}

func requireString(v value.Value) *object.ObjString {
	s := object.AsString(v.AsObject())
	if s == nil {
		panic("native string method called on a non-string receiver")
	}
	return s
}

// requireStringArg reports a type error for a non-string argument.
func (vm *VM) requireStringArg(v value.Value, method string) (*object.ObjString, bool) {
	if v.IsObject() {
		if s := object.AsString(v.AsObject()); s != nil {
			return s, true
		}
	}
	fmt.Fprintf(vm.Stderr, "Type Error: %s expects a string argument.\n", method)
	return nil, false
}
