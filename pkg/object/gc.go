package object

import (
	"fmt"
	"io"

	"github.com/kristofer/golox/pkg/bytecode"
	"github.com/kristofer/golox/pkg/value"
)

const (
	// initialGCThreshold is how many accounted bytes may be allocated
	// before the first collection.
	initialGCThreshold = 1024 * 1024
	// gcGrowFactor sets the next threshold after each cycle to this
	// multiple of the bytes still live, never below initialGCThreshold.
	gcGrowFactor = 2
)

// RootSource is anything that owns object references the collector cannot
// see on its own: the VM (stack, frames, globals, open upvalues) and any
// compiler in flight (its function chain). Sources register with AddRoots
// and mark what they hold when a cycle runs.
type RootSource interface {
	MarkRoots(gc *GC)
}

// GC owns every heap object. Objects are created only through its New*
// constructors, which thread them onto one intrusive list, account their
// size, and may run a mark-sweep cycle first when the heap has grown past
// the current threshold.
type GC struct {
	objects Object // head of the intrusive live list
	strings Table  // interned strings; keys are weak

	grayStack []Object

	bytesAllocated int
	nextGC         int

	// Nursery state: while open, every object from the list head up to
	// (but not including) nurseryEnd is pinned as a root. See OpenNursery.
	nurseryEnd   Object
	nurseryDepth int

	roots []RootSource

	// Stress forces a collection before every allocation; the stress-test
	// builds use it to shake out missing roots.
	Stress bool

	// Trace, when non-nil, receives a one-line summary after each cycle.
	Trace io.Writer
}

// NewGC returns a collector with an empty heap.
func NewGC() *GC {
	return &GC{nextGC: initialGCThreshold}
}

// Stats reports the current allocation total and the growth trigger.
func (gc *GC) Stats() (bytesAllocated, nextGC int) {
	return gc.bytesAllocated, gc.nextGC
}

// AddRoots registers a root source for the lifetime of its work; the VM
// registers itself once, compilers register around a compilation.
func (gc *GC) AddRoots(source RootSource) {
	gc.roots = append(gc.roots, source)
}

// RemoveRoots unregisters a previously added source.
func (gc *GC) RemoveRoots(source RootSource) {
	for i, s := range gc.roots {
		if s == source {
			gc.roots = append(gc.roots[:i], gc.roots[i+1:]...)
			return
		}
	}
}

// OpenNursery pins every object allocated from now until the matching
// CloseNursery, by treating the prefix of the live list that precedes the
// current head as off-limits. Natives use this to build multi-object
// structures without intermediate pieces becoming unreachable mid-build.
// Scopes nest; only the outermost open captures the boundary.
func (gc *GC) OpenNursery() {
	if gc.nurseryDepth == 0 {
		gc.nurseryEnd = gc.objects
	}
	gc.nurseryDepth++
}

// CloseNursery releases the innermost nursery scope.
func (gc *GC) CloseNursery() {
	gc.nurseryDepth--
	if gc.nurseryDepth == 0 {
		gc.nurseryEnd = nil
	}
}

// WithNursery runs fn inside a nursery scope.
func (gc *GC) WithNursery(fn func()) {
	gc.OpenNursery()
	defer gc.CloseNursery()
	fn()
}

// allocate runs the heap-growth policy, links obj at the head of the live
// list and accounts its size. Collection happens before linking: the new
// object is not reachable yet and must not be swept.
func (gc *GC) allocate(obj Object, size int) {
	if gc.Stress || gc.bytesAllocated+size > gc.nextGC {
		gc.Collect()
	}
	h := obj.headerPtr()
	h.next = gc.objects
	h.size = size
	gc.objects = obj
	gc.bytesAllocated += size
}

// Rough per-object cost estimates; Go's allocator is opaque so these only
// need to be consistent between allocate and sweep.
const (
	baseObjectSize = 48
	valueSize      = 32
)

// NewString interns: if an equal string already exists it is returned and
// nothing is allocated.
func (gc *GC) NewString(chars string) *ObjString {
	hash := HashString(chars)
	if interned := gc.strings.FindString(chars, hash); interned != nil {
		return interned
	}
	s := &ObjString{header: header{kind: KindString}, Chars: chars, Hash: hash}
	gc.allocate(s, baseObjectSize+len(chars))
	gc.strings.Set(s, value.NilVal())
	return s
}

// FindString returns the interned string with the given contents, if any.
func (gc *GC) FindString(chars string) *ObjString {
	return gc.strings.FindString(chars, HashString(chars))
}

// NewFunction returns an empty function shell for the compiler to fill.
func (gc *GC) NewFunction() *ObjFunction {
	f := &ObjFunction{
		header: header{kind: KindFunction},
		Chunk:  bytecode.NewChunk(),
	}
	gc.allocate(f, baseObjectSize*2)
	return f
}

// NewNative wraps a host function.
func (gc *GC) NewNative(fn NativeFn, signature Signature, docstring string) *ObjNative {
	n := &ObjNative{
		header:    header{kind: KindNative},
		Signature: signature,
		Docstring: docstring,
		Fn:        fn,
	}
	gc.allocate(n, baseObjectSize*2)
	return n
}

// NewClosure wraps a function with room for its upvalues.
func (gc *GC) NewClosure(function *ObjFunction) *ObjClosure {
	c := &ObjClosure{
		header:   header{kind: KindClosure},
		Function: function,
		Upvalues: make([]*ObjUpvalue, function.UpvalueCount),
	}
	gc.allocate(c, baseObjectSize+valueSize*function.UpvalueCount)
	return c
}

// NewUpvalue returns an open upvalue over the given stack slot.
func (gc *GC) NewUpvalue(slot int) *ObjUpvalue {
	u := &ObjUpvalue{header: header{kind: KindUpvalue}, Slot: slot}
	gc.allocate(u, baseObjectSize+valueSize)
	return u
}

// NewClass returns a class with an empty method table.
func (gc *GC) NewClass(name string) *ObjClass {
	c := &ObjClass{header: header{kind: KindClass}, Name: name}
	gc.allocate(c, baseObjectSize*2)
	return c
}

// NewInstance returns a plain instance of class.
func (gc *GC) NewInstance(class *ObjClass) *ObjInstance {
	i := &ObjInstance{header: header{kind: KindInstance}, Class: class}
	gc.allocate(i, baseObjectSize*2)
	return i
}

// NewList returns an empty list instance of class.
func (gc *GC) NewList(class *ObjClass) *ObjList {
	l := &ObjList{ObjInstance: ObjInstance{header: header{kind: KindList}, Class: class}}
	gc.allocate(l, baseObjectSize*3)
	return l
}

// NewBoundMethod pairs receiver and method.
func (gc *GC) NewBoundMethod(receiver value.Value, method Object) *ObjBoundMethod {
	b := &ObjBoundMethod{
		header:   header{kind: KindBoundMethod},
		Receiver: receiver,
		Method:   method,
	}
	gc.allocate(b, baseObjectSize+valueSize)
	return b
}

// MarkValue marks the object behind v, if any.
func (gc *GC) MarkValue(v value.Value) {
	if !v.IsObject() {
		return
	}
	if obj, ok := v.AsObject().(Object); ok {
		gc.MarkObject(obj)
	}
}

// MarkObject sets the liveness bit and queues the object for tracing.
func (gc *GC) MarkObject(obj Object) {
	if obj == nil {
		return
	}
	h := obj.headerPtr()
	if h.alive {
		return
	}
	h.alive = true
	gc.grayStack = append(gc.grayStack, obj)
}

// MarkTable marks every key and value of a (non-weak) table.
func (gc *GC) MarkTable(t *Table) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			gc.MarkObject(e.key)
			gc.MarkValue(e.value)
		}
	}
}

// Collect runs one full tricolor mark-sweep cycle.
func (gc *GC) Collect() {
	before := gc.bytesAllocated

	// Mark phase: roots first, then everything reachable from them.
	for _, source := range gc.roots {
		source.MarkRoots(gc)
	}
	gc.markNursery()
	gc.traceReferences()

	// The interned-string table holds its keys weakly: entries whose key
	// did not get marked are dropped before the sweep frees the keys.
	gc.strings.RemoveDead()

	freed := gc.sweep()

	gc.nextGC = gc.bytesAllocated * gcGrowFactor
	if gc.nextGC < initialGCThreshold {
		gc.nextGC = initialGCThreshold
	}
	if gc.Trace != nil {
		fmt.Fprintf(gc.Trace, "GC: freed %d objects (%d bytes), %d bytes live, next cycle at %d bytes\n",
			freed, before-gc.bytesAllocated, gc.bytesAllocated, gc.nextGC)
	}
}

// markNursery pins the prefix of the live list allocated since the
// outermost OpenNursery.
func (gc *GC) markNursery() {
	if gc.nurseryDepth == 0 {
		return
	}
	for obj := gc.objects; obj != nil && obj != gc.nurseryEnd; obj = obj.headerPtr().next {
		gc.MarkObject(obj)
	}
}

func (gc *GC) traceReferences() {
	for len(gc.grayStack) > 0 {
		obj := gc.grayStack[len(gc.grayStack)-1]
		gc.grayStack = gc.grayStack[:len(gc.grayStack)-1]
		gc.blacken(obj)
	}
}

// blacken marks every object reference going out of obj.
func (gc *GC) blacken(obj Object) {
	switch t := obj.(type) {
	case *ObjString:
		// No outgoing references.
	case *ObjFunction:
		for _, constant := range t.Chunk.Constants {
			gc.MarkValue(constant)
		}
	case *ObjNative:
		for _, p := range t.Signature.Parameters {
			if p.Default != nil {
				gc.MarkValue(*p.Default)
			}
		}
	case *ObjClosure:
		gc.MarkObject(t.Function)
		for _, upvalue := range t.Upvalues {
			// Slots stay nil until NEW_CLOSURE has captured them.
			if upvalue != nil {
				gc.MarkObject(upvalue)
			}
		}
	case *ObjUpvalue:
		gc.MarkValue(t.Closed)
	case *ObjClass:
		gc.MarkTable(&t.Methods)
	case *ObjInstance:
		gc.MarkObject(t.Class)
		gc.MarkTable(&t.Fields)
	case *ObjList:
		gc.MarkObject(t.Class)
		gc.MarkTable(&t.Fields)
		for _, item := range t.Items {
			gc.MarkValue(item)
		}
	case *ObjBoundMethod:
		gc.MarkValue(t.Receiver)
		gc.MarkObject(t.Method)
	}
}

// sweep unlinks every unmarked object and clears the mark bit on the
// survivors, leaving the heap ready for the next cycle. If the nursery
// boundary object itself is freed, the boundary advances so the nursery
// region stays a prefix of the live list.
func (gc *GC) sweep() int {
	freed := 0
	var previous Object
	obj := gc.objects
	for obj != nil {
		h := obj.headerPtr()
		if h.alive {
			h.alive = false
			previous = obj
			obj = h.next
			continue
		}

		dead := obj
		obj = h.next
		if previous == nil {
			gc.objects = obj
		} else {
			previous.headerPtr().next = obj
		}
		if gc.nurseryEnd == dead {
			gc.nurseryEnd = obj
		}
		gc.bytesAllocated -= h.size
		h.next = nil
		freed++
	}
	return freed
}
