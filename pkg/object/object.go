// Package object implements the heap side of the runtime: the object
// variants the language manipulates, the interned-string hash table, and
// the mark-sweep garbage collector that owns every heap object.
//
// All objects share a small header (kind, liveness bit, intrusive next
// link) and are created exclusively through a GC, which threads them onto
// one intrusive list. The value stack, call frames and tables hold
// non-owning references; objects die only in a sweep.
package object

import (
	"strings"

	"github.com/kristofer/golox/pkg/bytecode"
	"github.com/kristofer/golox/pkg/value"
)

// Kind discriminates the heap object variants.
type Kind int

const (
	KindString Kind = iota
	KindFunction
	KindNative
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindList
	KindBoundMethod
)

// Object is the interface every heap object satisfies. The unexported
// header accessor keeps the set of implementations closed to this package's
// types while letting other packages hold and compare references.
type Object interface {
	value.Object
	Kind() Kind
	headerPtr() *header
}

// header is the common prefix of every heap object: its kind, the liveness
// bit the collector flips during mark, and the intrusive live-list link.
type header struct {
	kind  Kind
	alive bool
	next  Object
	// size is the accounted allocation cost, remembered so the sweep can
	// decrement the same amount the allocation added.
	size int
}

func (h *header) Kind() Kind      { return h.kind }
func (h *header) headerPtr() *header { return h }

// Alive reports the mark bit; it is meaningful only during a GC cycle and
// is false on every object between cycles.
func (h *header) Alive() bool { return h.alive }

// Parameter describes one formal parameter of a callable. Default is nil
// for required parameters; natives may declare trailing defaults.
type Parameter struct {
	Name    string
	Type    string
	Default *value.Value
}

// Signature is the callable capability shared by functions and natives.
type Signature struct {
	Name       string
	Parameters []Parameter
	ReturnType string
}

// Arity is the largest permitted argument count.
func (s *Signature) Arity() int { return len(s.Parameters) }

// MinArity drops trailing defaulted parameters; calls may pass any count
// in [MinArity, Arity].
func (s *Signature) MinArity() int {
	min := len(s.Parameters)
	for min > 0 && s.Parameters[min-1].Default != nil {
		min--
	}
	return min
}

// String renders the signature as "name(a, b=nil) -> type".
func (s *Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('(')
	for i, p := range s.Parameters {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.Type != "" && p.Type != "any" {
			b.WriteByte(':')
			b.WriteString(p.Type)
		}
		if p.Default != nil {
			b.WriteByte('=')
			b.WriteString(p.Default.Repr())
		}
	}
	b.WriteByte(')')
	if s.ReturnType != "" {
		b.WriteString(" -> ")
		b.WriteString(s.ReturnType)
	}
	return b.String()
}

// ObjString is an immutable, interned string. Two ObjStrings with equal
// contents are the same object, so equality is pointer comparison.
type ObjString struct {
	header
	Chars string
	Hash  uint32
}

func (s *ObjString) Str() string  { return s.Chars }
func (s *ObjString) Repr() string { return "\"" + s.Chars + "\"" }

// ObjFunction is a compiled function: its signature, bytecode and upvalue
// layout. It is produced by the compiler and is not directly callable —
// the VM wraps it in a closure first.
type ObjFunction struct {
	header
	Signature    Signature
	Chunk        *bytecode.Chunk
	UpvalueCount int
	Docstring    string
}

func (f *ObjFunction) Str() string {
	if f.Signature.Name == "" {
		return "<script>"
	}
	return "<fn " + f.Signature.Name + ">"
}
func (f *ObjFunction) Repr() string { return f.Str() }

// NativeFn is the host implementation of a native callable. args holds the
// caller's argument window; for methods args[0] is the receiver. A native
// signals an already-reported runtime error by returning the error
// sentinel value.
type NativeFn func(args []value.Value) value.Value

// ObjNative is a function implemented in the host language.
type ObjNative struct {
	header
	Signature Signature
	Docstring string
	Fn        NativeFn
	// IsMethod marks natives installed on a class; the VM passes the
	// receiver as args[0] when calling them.
	IsMethod bool
}

func (n *ObjNative) Str() string  { return "<native fn " + n.Signature.Name + ">" }
func (n *ObjNative) Repr() string { return n.Str() }

// ObjClosure is the user-visible callable for non-native functions: a
// function plus the captured upvalues it runs with.
type ObjClosure struct {
	header
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) Str() string  { return c.Function.Str() }
func (c *ObjClosure) Repr() string { return c.Function.Repr() }

// ObjUpvalue is the cell through which a closure reaches a captured
// variable. While open it refers to a live stack slot (Slot >= 0); closing
// migrates the value into Closed and the cell becomes self-contained.
type ObjUpvalue struct {
	header
	// Slot is the absolute value-stack index while open, -1 once closed.
	Slot   int
	Closed value.Value
	// NextOpen threads the VM's open-upvalue list, sorted by descending
	// slot.
	NextOpen *ObjUpvalue
}

// IsClosed reports whether the upvalue owns its value.
func (u *ObjUpvalue) IsClosed() bool { return u.Slot < 0 }

func (u *ObjUpvalue) Str() string  { return "upvalue" }
func (u *ObjUpvalue) Repr() string { return u.Str() }

// Constructor builds a fresh instance for a class call. Native classes
// (list) install their own to allocate a larger payload.
type Constructor func(class *ObjClass, gc *GC) Object

// ObjClass is a class: a name and a table of methods keyed by interned
// name. Methods are closures for user classes, natives for built-in ones.
type ObjClass struct {
	header
	Name    string
	Methods Table
	// NewInstance is the allocation hook used when the class is called;
	// nil means a plain instance.
	NewInstance Constructor
}

func (c *ObjClass) Str() string  { return c.Name }
func (c *ObjClass) Repr() string { return "<class " + c.Name + ">" }

// ObjInstance is a user-level object: a class reference and a field table.
type ObjInstance struct {
	header
	Class  *ObjClass
	Fields Table
}

func (i *ObjInstance) Str() string  { return i.Class.Name + " instance" }
func (i *ObjInstance) Repr() string { return i.Str() }

// ObjList is the native indexed list: an instance extended with a dynamic
// array of elements.
type ObjList struct {
	ObjInstance
	Items []value.Value
}

func (l *ObjList) Str() string { return l.Repr() }

// Repr prints the elements without recursing into nested lists, so cyclic
// structures (xs.append(xs)) stay printable: the list itself shows as "@",
// any other nested list as "[...]".
func (l *ObjList) Repr() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, item := range l.Items {
		if i > 0 {
			b.WriteByte(',')
		}
		if item.IsObject() {
			if nested, ok := item.AsObject().(*ObjList); ok {
				if nested == l {
					b.WriteByte('@')
				} else {
					b.WriteString("[...]")
				}
				continue
			}
		}
		b.WriteString(item.Repr())
	}
	b.WriteByte(']')
	return b.String()
}

// ObjBoundMethod pairs a receiver with the method pulled off it, so the
// method can be called later with the right `this`.
type ObjBoundMethod struct {
	header
	Receiver value.Value
	// Method is an *ObjClosure for user methods or an *ObjNative for
	// built-in ones.
	Method Object
}

func (b *ObjBoundMethod) Str() string  { return b.Method.Str() }
func (b *ObjBoundMethod) Repr() string { return b.Method.Repr() }

// AsInstance unwraps an object to its instance core: plain instances and
// native subclasses like lists both qualify. It returns nil for anything
// else.
func AsInstance(o value.Object) *ObjInstance {
	switch t := o.(type) {
	case *ObjInstance:
		return t
	case *ObjList:
		return &t.ObjInstance
	default:
		return nil
	}
}

// AsList unwraps an object to a list, or nil.
func AsList(o value.Object) *ObjList {
	if l, ok := o.(*ObjList); ok {
		return l
	}
	return nil
}

// AsString unwraps an object to a string, or nil.
func AsString(o value.Object) *ObjString {
	if s, ok := o.(*ObjString); ok {
		return s
	}
	return nil
}

// SignatureOf returns the callable signature of o (the Callable
// capability): functions, natives, closures and bound methods have one.
func SignatureOf(o Object) (*Signature, string, bool) {
	switch t := o.(type) {
	case *ObjFunction:
		return &t.Signature, t.Docstring, true
	case *ObjNative:
		return &t.Signature, t.Docstring, true
	case *ObjClosure:
		return &t.Function.Signature, t.Function.Docstring, true
	case *ObjBoundMethod:
		return SignatureOf(t.Method)
	default:
		return nil, "", false
	}
}
