package object

import "github.com/kristofer/golox/pkg/value"

// Table is a hash table keyed by interned strings, using open addressing
// with linear probing and tombstones. Because keys are interned, lookup is
// pointer comparison; FindString is the one exception that probes by raw
// contents (it is how interning itself is implemented).
//
// An empty bucket is (nil key, nil value); a tombstone is (nil key, true).
// Tombstones count as used buckets for the load factor, so probe sequences
// stay unbroken after deletions.
type Table struct {
	count   int // used buckets, including tombstones
	entries []entry
}

type entry struct {
	key   *ObjString
	value value.Value
}

const tableMaxLoad = 0.75

// Get looks up key and reports whether it was present.
func (t *Table) Get(key *ObjString) (value.Value, bool) {
	if t.count == 0 {
		return value.NilVal(), false
	}
	e := t.findEntry(t.entries, key)
	if e.key == nil {
		return value.NilVal(), false
	}
	return e.value, true
}

// Set inserts or updates key. It returns true iff the key is new.
func (t *Table) Set(key *ObjString, v value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}
	e := t.findEntry(t.entries, key)
	isNew := e.key == nil
	// Recycled tombstones were already counted as used buckets.
	if isNew && e.value.IsNil() {
		t.count++
	}
	e.key = key
	e.value = v
	return isNew
}

// Delete removes key, leaving a tombstone so later probes keep walking.
func (t *Table) Delete(key *ObjString) bool {
	if t.count == 0 {
		return false
	}
	e := t.findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = value.BoolVal(true)
	return true
}

// AddAll copies every entry of other into t.
func (t *Table) AddAll(other *Table) {
	for i := range other.entries {
		e := &other.entries[i]
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// Len returns the number of live entries (tombstones excluded).
func (t *Table) Len() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].key != nil {
			n++
		}
	}
	return n
}

// Range calls fn for every live entry until fn returns false.
func (t *Table) Range(fn func(key *ObjString, v value.Value) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !fn(e.key, e.value) {
			return
		}
	}
}

// findEntry probes for key. It returns the matching entry if present, else
// the first tombstone seen (a recycle target), else the terminating empty
// bucket.
func (t *Table) findEntry(entries []entry, key *ObjString) *entry {
	var tombstone *entry
	index := int(key.Hash) & (len(entries) - 1)
	for {
		e := &entries[index]
		if e.key == nil {
			if e.value.IsNil() {
				// Truly empty: the probe ends here.
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		index = (index + 1) & (len(entries) - 1)
	}
}

// FindString probes by raw contents instead of identity. It is used to
// intern: if an equal string already exists, callers reuse it.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if t.count == 0 {
		return nil
	}
	index := int(hash) & (len(t.entries) - 1)
	for {
		e := &t.entries[index]
		if e.key == nil {
			if e.value.IsNil() {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) & (len(t.entries) - 1)
	}
}

// RemoveDead deletes every entry whose key was not marked in the current
// GC cycle. Called at the end of the mark phase, this is what makes the
// interned-string table hold its keys weakly.
func (t *Table) RemoveDead() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.alive {
			t.Delete(e.key)
		}
	}
}

func (t *Table) grow() {
	capacity := len(t.entries) * 2
	if capacity < 8 {
		capacity = 8
	}
	entries := make([]entry, capacity)
	// Rebuild without tombstones; count drops back to the live entries.
	t.count = 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.key == nil {
			continue
		}
		dest := t.findEntry(entries, e.key)
		dest.key = e.key
		dest.value = e.value
		t.count++
	}
	t.entries = entries
}

// HashString is the FNV-1a hash used for interning. For details, see:
// https://en.wikipedia.org/wiki/Fowler%E2%80%93Noll%E2%80%93Vo_hash_function
func HashString(s string) uint32 {
	hash := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}
