package vm

import (
	"fmt"

	"github.com/kristofer/golox/pkg/object"
	"github.com/kristofer/golox/pkg/value"
)

// The native list class. `list` is a global; calling it constructs an
// empty list, and its methods are natives that receive the list instance
// as args[0].

func newListClass(vm *VM) *object.ObjClass {
	var class *object.ObjClass
	vm.gc.WithNursery(func() {
		nameString := vm.gc.NewString("list")
		class = vm.gc.NewClass("list")
		class.NewInstance = func(c *object.ObjClass, gc *object.GC) object.Object {
			return gc.NewList(c)
		}
		defineListMethods(vm, class)
		vm.globals.Set(nameString, value.ObjectVal(class))
	})
	return class
}

// defineMethod installs a native method on a class. The method name and
// the native are built inside a nursery so neither can be collected while
// the other is allocated.
func defineMethod(vm *VM, class *object.ObjClass, name string,
	parameters []object.Parameter, returnType, docstring string, fn object.NativeFn) {
	assertTrailingDefaults(name, parameters)
	vm.gc.WithNursery(func() {
		methodName := vm.gc.NewString(name)
		native := vm.gc.NewNative(fn, object.Signature{
			Name:       name,
			Parameters: parameters,
			ReturnType: returnType,
		}, docstring)
		native.IsMethod = true
		class.Methods.Set(methodName, value.ObjectVal(native))
	})
}

func defineListMethods(vm *VM, class *object.ObjClass) {
	defineMethod(vm, class, "length", nil, "number",
		"Returns the number of elements in the list.",
		func(args []value.Value) value.Value {
			list := requireList(args[0])
			return value.NumberVal(float64(len(list.Items)))
		})

	defineMethod(vm, class, "append", params(param("value", "any")), "nil",
		"Appends a value to the end of the list.",
		func(args []value.Value) value.Value {
			list := requireList(args[0])
			list.Items = append(list.Items, args[1])
			return value.NilVal()
		})

	defineMethod(vm, class, "at", params(param("index", "number")), "any",
		"Returns the element at index (negative indexes are supported).",
		func(args []value.Value) value.Value {
			list := requireList(args[0])
			index, ok := vm.requireIntArg(args[1], "list index")
			if !ok {
				return value.ErrorVal()
			}
			normalized, err := normalizeListIndex(index, len(list.Items))
			if err != nil {
				return vm.indexError(err)
			}
			return list.Items[normalized]
		})

	defineMethod(vm, class, "set",
		params(param("index", "number"), param("value", "any")), "any",
		"Replaces the element at index (negative indexes are supported) and returns the new value.",
		func(args []value.Value) value.Value {
			list := requireList(args[0])
			index, ok := vm.requireIntArg(args[1], "list index")
			if !ok {
				return value.ErrorVal()
			}
			normalized, err := normalizeListIndex(index, len(list.Items))
			if err != nil {
				return vm.indexError(err)
			}
			list.Items[normalized] = args[2]
			return args[2]
		})

	defineMethod(vm, class, "slice",
		params(param("start", "number"), paramDefault("end", "number", value.NilVal())),
		"list",
		"Returns a new list with the elements in [start, end); end defaults to the length.",
		func(args []value.Value) value.Value {
			list := requireList(args[0])
			start, ok := vm.requireIntArg(args[1], "start index")
			if !ok {
				return value.ErrorVal()
			}
			end := len(list.Items)
			if len(args) > 2 && !args[2].IsNil() {
				if end, ok = vm.requireIntArg(args[2], "end index"); !ok {
					return value.ErrorVal()
				}
			}
			normStart, normEnd, err := normalizeSliceBounds(start, end, len(list.Items), "list")
			if err != nil {
				return vm.indexError(err)
			}

			var result *object.ObjList
			vm.gc.WithNursery(func() {
				result = vm.gc.NewList(vm.listClass)
				result.Items = append(result.Items, list.Items[normStart:normEnd]...)
			})
			return value.ObjectVal(result)
		})

	defineMethod(vm, class, "clear", nil, "nil",
		"Removes all elements from the list.",
		func(args []value.Value) value.Value {
			list := requireList(args[0])
			list.Items = nil
			return value.NilVal()
		})

	defineMethod(vm, class, "pop", nil, "any",
		"Removes and returns the last element.",
		func(args []value.Value) value.Value {
			list := requireList(args[0])
			if len(list.Items) == 0 {
				fmt.Fprintln(vm.Stderr, "Error: Cannot remove elements from an empty list.")
				return value.NilVal()
			}
			last := list.Items[len(list.Items)-1]
			list.Items = list.Items[:len(list.Items)-1]
			return last
		})
}

// requireList unwraps the receiver; the VM only dispatches list methods
// on lists, so a mismatch is an interpreter bug, not a user error.
func requireList(v value.Value) *object.ObjList {
	list := object.AsList(v.AsObject())
	if list == nil {
		panic("native list method called on a non-list receiver")
	}
	return list
}

// requireIntArg rejects fractional and non-numeric indices.
func (vm *VM) requireIntArg(v value.Value, what string) (int, bool) {
	if !v.IsInteger() {
		fmt.Fprintf(vm.Stderr, "Index Error: %s must be an integer.\n", what)
		return 0, false
	}
	return v.AsInt(), true
}

// indexError reports a normalization failure and yields the error
// sentinel for the VM to unwind on.
func (vm *VM) indexError(err error) value.Value {
	fmt.Fprintf(vm.Stderr, "Index Error: %s\n", err)
	return value.ErrorVal()
}
