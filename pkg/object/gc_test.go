package object

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/golox/pkg/value"
)

// rootSet is a minimal RootSource for tests.
type rootSet struct {
	values []value.Value
}

func (r *rootSet) MarkRoots(gc *GC) {
	for _, v := range r.values {
		gc.MarkValue(v)
	}
}

func (r *rootSet) hold(o Object) {
	r.values = append(r.values, value.ObjectVal(o))
}

func TestCollectFreesUnreachableObjects(t *testing.T) {
	gc := NewGC()
	gc.NewString("garbage")

	gc.Collect()

	// The interned-string table holds keys weakly, so the dead string is
	// pruned along with the object.
	assert.Nil(t, gc.FindString("garbage"))
	bytesAllocated, _ := gc.Stats()
	assert.Equal(t, 0, bytesAllocated)
}

func TestRootedObjectsSurvive(t *testing.T) {
	gc := NewGC()
	roots := &rootSet{}
	gc.AddRoots(roots)

	s := gc.NewString("kept")
	roots.hold(s)

	gc.Collect()

	assert.Same(t, s, gc.FindString("kept"))
	// The mark bit is cleared on survivors at the end of the sweep.
	assert.False(t, s.Alive())
}

func TestReachabilityThroughClosure(t *testing.T) {
	gc := NewGC()
	roots := &rootSet{}
	gc.AddRoots(roots)

	function := gc.NewFunction()
	constant := gc.NewString("constant")
	function.Chunk.AddConstant(value.ObjectVal(constant))
	closure := gc.NewClosure(function)
	roots.hold(closure)

	gc.Collect()

	// function and its string constant are reachable only through the
	// closure, and both survive.
	assert.Same(t, constant, gc.FindString("constant"))
}

func TestReachabilityThroughClosedUpvalue(t *testing.T) {
	gc := NewGC()
	roots := &rootSet{}
	gc.AddRoots(roots)

	upvalue := gc.NewUpvalue(0)
	captured := gc.NewString("captured")
	upvalue.Closed = value.ObjectVal(captured)
	upvalue.Slot = -1
	roots.hold(upvalue)

	gc.Collect()

	assert.Same(t, captured, gc.FindString("captured"))
}

func TestReachabilityThroughInstance(t *testing.T) {
	gc := NewGC()
	roots := &rootSet{}
	gc.AddRoots(roots)

	class := gc.NewClass("Widget")
	instance := gc.NewInstance(class)
	fieldName := gc.NewString("field")
	fieldValue := gc.NewString("contents")
	instance.Fields.Set(fieldName, value.ObjectVal(fieldValue))
	roots.hold(instance)

	gc.Collect()

	// Rooting only the instance keeps its class and its field table alive.
	assert.Same(t, fieldName, gc.FindString("field"))
	assert.Same(t, fieldValue, gc.FindString("contents"))
}

func TestReachabilityThroughListItems(t *testing.T) {
	gc := NewGC()
	roots := &rootSet{}
	gc.AddRoots(roots)

	class := gc.NewClass("list")
	list := gc.NewList(class)
	item := gc.NewString("item")
	list.Items = append(list.Items, value.ObjectVal(item))
	roots.hold(list)

	gc.Collect()

	assert.Same(t, item, gc.FindString("item"))
}

func TestNurseryPinsFreshObjects(t *testing.T) {
	gc := NewGC()

	gc.OpenNursery()
	gc.NewString("pinned")
	gc.Collect()
	assert.NotNil(t, gc.FindString("pinned"), "open nursery must pin")

	gc.CloseNursery()
	gc.Collect()
	assert.Nil(t, gc.FindString("pinned"), "closed nursery must release")
}

func TestNurseryNesting(t *testing.T) {
	gc := NewGC()

	gc.OpenNursery()
	gc.NewString("outer")
	gc.OpenNursery()
	gc.NewString("inner")
	gc.CloseNursery()

	gc.Collect()
	assert.NotNil(t, gc.FindString("outer"))
	assert.NotNil(t, gc.FindString("inner"),
		"closing an inner scope must not unpin while the outer is open")

	gc.CloseNursery()
	gc.Collect()
	assert.Nil(t, gc.FindString("outer"))
	assert.Nil(t, gc.FindString("inner"))
}

func TestStressModeKeepsRootsAlive(t *testing.T) {
	gc := NewGC()
	gc.Stress = true
	roots := &rootSet{}
	gc.AddRoots(roots)

	// Every allocation forces a full cycle; anything rooted must survive
	// all of them.
	strings := make([]*ObjString, 50)
	for i := range strings {
		strings[i] = gc.NewString(fmt.Sprintf("s-%d", i))
		roots.hold(strings[i])
	}
	for i, s := range strings {
		require.Same(t, s, gc.FindString(fmt.Sprintf("s-%d", i)))
	}
}

func TestStatsShrinkAfterCollect(t *testing.T) {
	gc := NewGC()
	roots := &rootSet{}
	gc.AddRoots(roots)
	roots.hold(gc.NewString("live"))

	before, _ := gc.Stats()
	for i := 0; i < 100; i++ {
		gc.NewString(fmt.Sprintf("garbage-%d", i))
	}
	during, _ := gc.Stats()
	require.Greater(t, during, before)

	gc.Collect()
	after, _ := gc.Stats()
	assert.Equal(t, before, after)
	assert.NotNil(t, gc.FindString("live"))
}

func TestRemoveRoots(t *testing.T) {
	gc := NewGC()
	roots := &rootSet{}
	gc.AddRoots(roots)
	roots.hold(gc.NewString("transient"))

	gc.RemoveRoots(roots)
	gc.Collect()
	assert.Nil(t, gc.FindString("transient"))
}
