// Package value defines the runtime value representation shared by the
// compiler and the virtual machine.
//
// A Value is a small tagged union: nil, boolean, number (all numbers are
// float64), a reference to a heap object, or the internal error sentinel.
// Heap objects themselves live in pkg/object; this package only knows them
// through the Object interface, which keeps the dependency graph acyclic
// (bytecode chunks embed Values, and heap objects embed bytecode chunks).
package value

import "strconv"

// Type tags a Value with its variant.
type Type int

const (
	TypeNil Type = iota
	TypeBool
	TypeNumber
	TypeObject
	// TypeError is an internal sentinel returned by native functions to
	// signal a runtime error they have already reported. It never appears
	// on the value stack when control returns to the dispatch loop.
	TypeError
)

// Object is the face a heap object shows to this package: enough to print
// it. Reference equality of two Objects (interface comparison) is object
// identity, which string interning extends to content equality.
type Object interface {
	// Str is the display form (strings unquoted).
	Str() string
	// Repr is the debug form (strings quoted).
	Repr() string
}

// Value is the tagged union. The zero Value is nil.
type Value struct {
	Type    Type
	boolean bool
	number  float64
	object  Object
}

func NilVal() Value             { return Value{Type: TypeNil} }
func BoolVal(b bool) Value      { return Value{Type: TypeBool, boolean: b} }
func NumberVal(n float64) Value { return Value{Type: TypeNumber, number: n} }
func ObjectVal(o Object) Value  { return Value{Type: TypeObject, object: o} }
func ErrorVal() Value           { return Value{Type: TypeError} }

func (v Value) IsNil() bool    { return v.Type == TypeNil }
func (v Value) IsBool() bool   { return v.Type == TypeBool }
func (v Value) IsNumber() bool { return v.Type == TypeNumber }
func (v Value) IsObject() bool { return v.Type == TypeObject }
func (v Value) IsError() bool  { return v.Type == TypeError }

func (v Value) AsBool() bool      { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObject() Object  { return v.object }

// AsInt truncates the number payload to an int. Callers are expected to
// have checked IsInteger first when an exact index is required.
func (v Value) AsInt() int { return int(v.number) }

// IsInteger reports whether v is a number with no fractional part.
func (v Value) IsInteger() bool {
	return v.Type == TypeNumber && v.number == float64(int(v.number))
}

// IsFalsey implements the language's truthiness rule: only nil and false
// are falsey.
func (v Value) IsFalsey() bool {
	return v.Type == TypeNil || (v.Type == TypeBool && !v.boolean)
}

// Equals compares two values structurally by variant. Objects compare by
// identity; interned strings make that coincide with content equality.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeNil:
		return true
	case TypeBool:
		return v.boolean == other.boolean
	case TypeNumber:
		return v.number == other.number
	case TypeObject:
		return v.object == other.object
	default:
		return false
	}
}

// Str renders the display form: numbers like %g, booleans as true/false,
// nil as nil, strings unquoted.
func (v Value) Str() string {
	switch v.Type {
	case TypeNil:
		return "nil"
	case TypeBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case TypeNumber:
		return FormatNumber(v.number)
	case TypeObject:
		return v.object.Str()
	default:
		return "<error>"
	}
}

// Repr renders the debug form; it differs from Str only for objects
// (strings come out quoted).
func (v Value) Repr() string {
	if v.Type == TypeObject {
		return v.object.Repr()
	}
	return v.Str()
}

// FormatNumber renders a float the way C's %g does for this language's
// purposes: integral values without a trailing ".0".
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
