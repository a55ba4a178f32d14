package vm

import (
	"fmt"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/kristofer/golox/pkg/object"
	"github.com/kristofer/golox/pkg/value"
)

// The free-function standard library: clock, print, println, help. The
// list and str classes live in their own files.

func (vm *VM) defineStdlib() {
	vm.defineNative("clock", nil, "number",
		"Returns the elapsed wall-clock time since the interpreter started, in fractional seconds.",
		func(args []value.Value) value.Value {
			return value.NumberVal(time.Since(vm.startTime).Seconds())
		})

	vm.defineNative("print", params(param("value", "any")), "nil",
		"Prints a value, without a trailing newline.",
		func(args []value.Value) value.Value {
			fmt.Fprint(vm.Stdout, args[0].Str())
			return value.NilVal()
		})

	vm.defineNative("println", params(param("value", "any")), "nil",
		"Prints a value, followed by a newline.",
		func(args []value.Value) value.Value {
			fmt.Fprintln(vm.Stdout, args[0].Str())
			return value.NilVal()
		})

	vm.defineNative("help", params(param("value", "any")), "nil",
		"Prints the signature and docstring of a callable, or the method table of a class or instance.",
		func(args []value.Value) value.Value {
			vm.printHelp(args[0])
			return value.NilVal()
		})
}

// defineNative registers a free function under name. Natives are built
// inside a nursery so the name string stays rooted while the function
// object is allocated.
func (vm *VM) defineNative(name string, parameters []object.Parameter,
	returnType, docstring string, fn object.NativeFn) {
	assertTrailingDefaults(name, parameters)
	vm.gc.WithNursery(func() {
		nameString := vm.gc.NewString(name)
		native := vm.gc.NewNative(fn, object.Signature{
			Name:       name,
			Parameters: parameters,
			ReturnType: returnType,
		}, docstring)
		vm.globals.Set(nameString, value.ObjectVal(native))
	})
}

// assertTrailingDefaults enforces that defaulted parameters come last;
// a violation is a bug in the native's declaration, not a user error.
func assertTrailingDefaults(name string, parameters []object.Parameter) {
	seenDefault := false
	for _, p := range parameters {
		if p.Default != nil {
			seenDefault = true
		} else if seenDefault {
			panic(fmt.Sprintf("native %q: only trailing parameters may have defaults", name))
		}
	}
}

func params(list ...object.Parameter) []object.Parameter { return list }

func param(name, typ string) object.Parameter {
	return object.Parameter{Name: name, Type: typ}
}

func paramDefault(name, typ string, def value.Value) object.Parameter {
	return object.Parameter{Name: name, Type: typ, Default: &def}
}

func (vm *VM) printHelp(v value.Value) {
	if v.IsObject() {
		if obj, ok := v.AsObject().(object.Object); ok {
			if signature, docstring, isCallable := object.SignatureOf(obj); isCallable {
				fmt.Fprintln(vm.Stdout, signature.String())
				if docstring != "" {
					fmt.Fprintln(vm.Stdout, docstring)
				}
				return
			}
			switch t := obj.(type) {
			case *object.ObjClass:
				fmt.Fprintf(vm.Stdout, "class %s\n", t.Name)
				vm.printMethodTable(t)
				return
			default:
				if instance := object.AsInstance(obj); instance != nil {
					fmt.Fprintf(vm.Stdout, "instance of %s\n", instance.Class.Name)
					vm.printMethodTable(instance.Class)
					return
				}
			}
		}
	}
	fmt.Fprintf(vm.Stdout, "no help available for %s\n", v.Repr())
}

// printMethodTable renders a class's methods, sorted by name so the
// output is stable.
func (vm *VM) printMethodTable(class *object.ObjClass) {
	type row struct {
		name, signature, docstring string
	}
	var rows []row
	class.Methods.Range(func(key *object.ObjString, v value.Value) bool {
		signature, docstring := "", ""
		if obj, ok := v.AsObject().(object.Object); ok {
			if s, d, isCallable := object.SignatureOf(obj); isCallable {
				signature, docstring = s.String(), d
			}
		}
		rows = append(rows, row{key.Chars, signature, docstring})
		return true
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	table := tablewriter.NewWriter(vm.Stdout)
	table.SetHeader([]string{"Method", "Signature", "Description"})
	for _, r := range rows {
		table.Append([]string{r.name, r.signature, r.docstring})
	}
	table.Render()
}
