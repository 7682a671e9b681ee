// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package symtab implements the hash table an embeddable interpreter uses to
// hold its variables, commands, namespaces, object references and
// associated data.
//
// # Tables
//
// A Table is an array of buckets, each the head of a singly linked chain of
// entries that hash to it. The bucket count is a power of two (at least 16)
// so the bucket for a key is hash(key)&(size-1). New entries are prepended
// to their chain. Collisions are resolved by walking the chain with the
// table's key comparator.
//
// What a key or value "is" is decided per table by a Type: the hash
// function, the key comparator, and optional duplicate and destroy
// callbacks that give the table ownership of what it stores. Entries are
// plain data; only the table interprets them, and every callback receives
// the privdata the table was created with.
//
// # Growth
//
// An insertion that would bring the number of entries to the bucket count
// (or to a fraction of it, see WithMaxLoadFactor) first grows the table to
// the smallest power of two that keeps the load under the limit, never
// below 32 buckets. Growth rehashes every entry into a freshly allocated
// bucket array in one pass, moving entries without invoking any duplicate
// or destroy callback, and frees the old array. A table never shrinks:
// deleting entries does not release buckets. Memory is reclaimed by Clear
// and Close.
//
// # Iteration
//
// An Iterator remembers the successor of the entry it last returned before
// handing that entry to the caller, so deleting the entry just returned
// does not disturb the traversal. Any other mutation during iteration
// (inserting, or deleting a different entry) has undefined results.
//
// # Instrumentation
//
// A table reports creation, growth, insertion, replacement, deletion and
// destruction to the trace.Hooks installed when it was created, and
// allocates through an Allocator that reports every allocation to the same
// hooks. With no hooks installed each call site costs a nil check; building
// with the notrace tag removes them.
//
// A Table is NOT goroutine-safe. It belongs to a single interpreter.
package symtab

import (
	"context"
	"fmt"
	"hash/maphash"
	"io"
	"log/slog"
	"strings"

	"github.com/cockroachdb/symtab/trace"
)

const (
	// minSize is the bucket count of a new or cleared table.
	minSize = 16
	// defaultMaxLoad is the growth trigger used unless WithMaxLoadFactor
	// says otherwise.
	defaultMaxLoad = 1.0
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Entry holds a key and value. The next field links the entry into its
// bucket's chain.
type Entry[K comparable, V any] struct {
	key   K
	value V
	next  *Entry[K, V]
}

// Key returns the key stored in the entry. If the table's Type has a KeyDup
// this is the table-owned duplicate.
func (e *Entry[K, V]) Key() K {
	return e.key
}

// Value returns the value stored in the entry.
func (e *Entry[K, V]) Value() V {
	return e.value
}

// LogValue implements slog.LogValuer.
func (e *Entry[K, V]) LogValue() slog.Value {
	return slog.AnyValue(e.key)
}

// ReplaceResult reports what Replace did.
type ReplaceResult uint8

const (
	// Inserted means the key was absent and a new entry was added.
	Inserted ReplaceResult = iota
	// Overwritten means the key was present and its value was replaced.
	Overwritten
)

func (r ReplaceResult) String() string {
	if r == Inserted {
		return "inserted"
	}
	return "overwritten"
}

// Stats is a snapshot of a table's counters.
type Stats struct {
	// Size is the number of buckets.
	Size int
	// Used is the number of entries.
	Used int
	// Collisions counts insertions into a non-empty chain over the table's
	// lifetime.
	Collisions uint64
	// Uniq counts successful insertions over the table's lifetime. It never
	// decreases.
	Uniq uint64
}

// Table is a chained hash table from keys to values with Add, Replace,
// Find, Delete and iteration. Key and value semantics are supplied by a
// Type.
//
// A Table is NOT goroutine-safe.
type Table[K comparable, V any] struct {
	typ      *Type[K, V]
	hash     func(key K) uintptr
	privdata any
	typeName string
	// buckets is size in length. Each element is the head of a chain.
	buckets []*Entry[K, V]
	// size is always a power of two; sizemask is size-1.
	size     uintptr
	sizemask uintptr
	used     int
	// growAt is the entry count an insertion may not reach without growing
	// the table first: floor(size*maxLoad).
	growAt     int
	maxLoad    float64
	uniq       uint64
	collisions uint64
	allocator  Allocator[K, V]
	hooks      *trace.Hooks
	logger     *slog.Logger
}

// New constructs a Table with the given Type and privdata. A nil typ uses
// the defaults for every callback: an identity hash for integer keys (a
// seeded runtime hash for anything else), == for comparison and no
// duplication or destruction. privdata is passed to every Type callback.
func New[K comparable, V any](
	typ *Type[K, V], privdata any, options ...option[K, V],
) *Table[K, V] {
	if typ == nil {
		typ = &Type[K, V]{}
	}
	t := &Table[K, V]{
		typ:      typ,
		privdata: privdata,
		maxLoad:  defaultMaxLoad,
		logger:   discardLogger,
	}
	if trace.Enabled {
		t.hooks = trace.Current()
	}

	for _, op := range options {
		op.apply(t)
	}
	if t.allocator == nil {
		t.allocator = defaultAllocator[K, V]{hooks: t.hooks}
	}

	t.hash = typ.Hash
	if t.hash == nil {
		t.hash = defaultHash[K](maphash.MakeSeed())
	}
	t.setBuckets(t.allocator.AllocBuckets(minSize))

	if trace.Enabled && t.hooks.ActionEnabled() {
		t.hooks.Action(trace.TableCreate, t, nil, t.typeName)
	}
	t.checkInvariants()
	return t
}

// setBuckets installs a bucket array whose length is a power of two.
func (t *Table[K, V]) setBuckets(b []*Entry[K, V]) {
	t.buckets = b
	t.size = uintptr(len(b))
	t.sizemask = t.size - 1
	t.growAt = t.growThreshold(t.size)
}

func (t *Table[K, V]) growThreshold(size uintptr) int {
	return int(float64(size) * t.maxLoad)
}

// Add inserts an entry for key. If an entry with an equal key already
// exists Add returns ErrKeyExists and changes nothing. The key is
// duplicated with the Type's KeyDup if there is one; the value is stored as
// given.
func (t *Table[K, V]) Add(key K, value V) error {
	h := t.hash(key)
	if t.lookup(h, key) != nil {
		return ErrKeyExists
	}
	t.insert(h, key, value)
	return nil
}

// Replace inserts an entry for key, or overwrites the value of the existing
// entry. When overwriting, the new value is duplicated with ValDup if set,
// the old value is passed to ValDestructor if set, and the stored key is
// left as is.
func (t *Table[K, V]) Replace(key K, value V) ReplaceResult {
	h := t.hash(key)
	e := t.lookup(h, key)
	if e == nil {
		t.insert(h, key, value)
		return Inserted
	}
	// Duplicate before destroying so that replacing a value with itself
	// works for reference-counted values.
	if t.typ.ValDup != nil {
		value = t.typ.ValDup(t.privdata, value)
	}
	old := e.value
	e.value = value
	if t.typ.ValDestructor != nil {
		t.typ.ValDestructor(t.privdata, old)
	}
	if trace.Enabled && t.hooks.ActionEnabled() {
		t.hooks.Action(trace.EntryReplace, t, e, t.typeName)
	}
	return Overwritten
}

// Find returns the entry for key, or ok=false if the key is not present.
func (t *Table[K, V]) Find(key K) (e *Entry[K, V], ok bool) {
	e = t.lookup(t.hash(key), key)
	return e, e != nil
}

// Get retrieves the value for key, returning ok=false if the key is not
// present.
func (t *Table[K, V]) Get(key K) (value V, ok bool) {
	if e := t.lookup(t.hash(key), key); e != nil {
		return e.value, true
	}
	return value, false
}

// Delete removes the entry for key, running the key and value destructors.
// It returns ErrKeyNotFound if the key is not present.
func (t *Table[K, V]) Delete(key K) error {
	i := t.hash(key) & t.sizemask
	var prev *Entry[K, V]
	for e := t.buckets[i]; e != nil; prev, e = e, e.next {
		if !t.equal(key, e.key) {
			continue
		}
		if prev == nil {
			t.buckets[i] = e.next
		} else {
			prev.next = e.next
		}
		t.used--
		if trace.Enabled && t.hooks.ActionEnabled() {
			t.hooks.Action(trace.EntryDelete, t, e, t.typeName)
		}
		t.freeEntry(e)
		t.checkInvariants()
		return nil
	}
	return ErrKeyNotFound
}

// Clear removes every entry, running the destructors, and returns the table
// to its initial bucket count. Uniq and Collisions keep counting.
func (t *Table[K, V]) Clear() {
	t.drain()
	if t.size != minSize {
		old := t.buckets
		t.setBuckets(t.allocator.AllocBuckets(minSize))
		t.allocator.FreeBuckets(old)
	}
	t.checkInvariants()
}

// Close destroys the table: every entry is removed through the destructors
// and the bucket array is released to the allocator. It is invalid to use a
// Table after it has been closed, though Close itself is idempotent.
func (t *Table[K, V]) Close() {
	if t.buckets == nil {
		return
	}
	if trace.Enabled {
		t.hooks.Enter("symtab.Close")
	}
	t.drain()
	t.allocator.FreeBuckets(t.buckets)
	t.buckets = nil
	t.size, t.sizemask, t.growAt = 0, 0, 0
	if trace.Enabled {
		if t.hooks.ActionEnabled() {
			t.hooks.Action(trace.TableDelete, t, nil, t.typeName)
		}
		t.hooks.Exit("symtab.Close")
	}
}

// Len returns the number of entries in the table.
func (t *Table[K, V]) Len() int {
	return t.used
}

// TypeName returns the label set with WithTypeName.
func (t *Table[K, V]) TypeName() string {
	return t.typeName
}

// Privdata returns the value passed to New.
func (t *Table[K, V]) Privdata() any {
	return t.privdata
}

// Stats returns a snapshot of the table's counters. It has no side effects.
func (t *Table[K, V]) Stats() Stats {
	return Stats{
		Size:       int(t.size),
		Used:       t.used,
		Collisions: t.collisions,
		Uniq:       t.uniq,
	}
}

// TraceStats reports a Stats snapshot to the table's hooks as a
// trace.TableStats action and returns it.
func (t *Table[K, V]) TraceStats() Stats {
	s := t.Stats()
	if trace.Enabled && t.hooks.ActionEnabled() {
		t.hooks.Action(trace.TableStats, t, s, t.typeName)
	}
	return s
}

// LogValue implements slog.LogValuer.
func (t *Table[K, V]) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", t.typeName),
		slog.Int("size", int(t.size)),
		slog.Int("used", t.used),
	)
}

func (t *Table[K, V]) equal(a, b K) bool {
	if t.typ.KeyCompare != nil {
		return t.typ.KeyCompare(t.privdata, a, b)
	}
	return a == b
}

// lookup returns the entry for key, whose hash is h, or nil.
func (t *Table[K, V]) lookup(h uintptr, key K) *Entry[K, V] {
	for e := t.buckets[h&t.sizemask]; e != nil; e = e.next {
		if t.equal(key, e.key) {
			return e
		}
	}
	return nil
}

// insert adds an entry known not to be in the table (violating this
// requirement will cause the table to behave erratically).
func (t *Table[K, V]) insert(h uintptr, key K, value V) *Entry[K, V] {
	if t.used+1 >= t.growAt {
		t.resize(t.targetSize(t.used + 1))
	}
	i := h & t.sizemask

	e := t.allocator.AllocEntry()
	if t.typ.KeyDup != nil {
		key = t.typ.KeyDup(t.privdata, key)
	}
	e.key = key
	e.value = value
	if t.buckets[i] != nil {
		t.collisions++
	}
	e.next = t.buckets[i]
	t.buckets[i] = e
	t.used++
	t.uniq++

	if trace.Enabled && t.hooks.ActionEnabled() {
		t.hooks.Action(trace.EntryInsert, t, e, t.typeName)
	}
	t.checkInvariants()
	return e
}

// targetSize returns the bucket count to grow to so that n entries stay
// below the growth threshold.
func (t *Table[K, V]) targetSize(n int) uintptr {
	size := uintptr(2 * minSize)
	for n >= t.growThreshold(size) {
		size <<= 1
	}
	return size
}

// resize allocates a bucket array of newSize buckets, moves every entry
// into it using the current hash function, and frees the old array.
func (t *Table[K, V]) resize(newSize uintptr) {
	if trace.Enabled {
		t.hooks.Enter("symtab.resize")
		if t.hooks.ActionEnabled() {
			t.hooks.Action(trace.TableResizeBegin, t, int(newSize), t.typeName)
		}
	}

	oldBuckets, oldSize := t.buckets, t.size
	t.setBuckets(t.allocator.AllocBuckets(int(newSize)))
	for _, e := range oldBuckets {
		for e != nil {
			next := e.next
			i := t.hash(e.key) & t.sizemask
			e.next = t.buckets[i]
			t.buckets[i] = e
			e = next
		}
	}
	t.allocator.FreeBuckets(oldBuckets)

	t.logger.LogAttrs(context.Background(), slog.LevelDebug, "symtab: resize",
		slog.String("type", t.typeName),
		slog.Int("from", int(oldSize)),
		slog.Int("to", int(newSize)),
		slog.Int("used", t.used))

	if trace.Enabled {
		if t.hooks.ActionEnabled() {
			t.hooks.Action(trace.TableResizeEnd, t, int(newSize), t.typeName)
		}
		t.hooks.Exit("symtab.resize")
	}
	t.checkInvariants()
}

// drain frees every entry, leaving all buckets empty.
func (t *Table[K, V]) drain() {
	for i, e := range t.buckets {
		for e != nil {
			next := e.next
			t.freeEntry(e)
			e = next
		}
		t.buckets[i] = nil
	}
	t.used = 0
}

// freeEntry runs the destructors for an unlinked entry and releases it.
func (t *Table[K, V]) freeEntry(e *Entry[K, V]) {
	if t.typ.KeyDestructor != nil {
		t.typ.KeyDestructor(t.privdata, e.key)
	}
	if t.typ.ValDestructor != nil {
		t.typ.ValDestructor(t.privdata, e.value)
	}
	t.allocator.FreeEntry(e)
}

func (t *Table[K, V]) checkInvariants() {
	if invariants {
		if err := t.verify(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, t.debugString()))
		}
	}
}

// verify checks the structural invariants of the table: a power-of-two
// bucket count of at least minSize, every entry chained in the bucket its
// hash selects, no duplicate keys, and used matching the number of entries
// and staying below the bucket count.
func (t *Table[K, V]) verify() error {
	if t.size < minSize || t.size&(t.size-1) != 0 {
		return fmt.Errorf("size %d is not a power of two >= %d", t.size, minSize)
	}
	if uintptr(len(t.buckets)) != t.size || t.sizemask != t.size-1 {
		return fmt.Errorf("size %d, sizemask %d, %d buckets", t.size, t.sizemask, len(t.buckets))
	}
	var used int
	for i, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			if j := t.hash(e.key) & t.sizemask; j != uintptr(i) {
				return fmt.Errorf("key %v in bucket %d, hashes to %d", e.key, i, j)
			}
			for o := e.next; o != nil; o = o.next {
				if t.equal(e.key, o.key) {
					return fmt.Errorf("key %v present twice in bucket %d", e.key, i)
				}
			}
			used++
		}
	}
	if used != t.used {
		return fmt.Errorf("found %d entries, but used count is %d", used, t.used)
	}
	if t.used >= int(t.size) {
		return fmt.Errorf("used %d >= size %d", t.used, t.size)
	}
	return nil
}

func (t *Table[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "type=%q  size=%d  used=%d  collisions=%d  uniq=%d\n",
		t.typeName, t.size, t.used, t.collisions, t.uniq)
	for i, head := range t.buckets {
		if head == nil {
			continue
		}
		fmt.Fprintf(&buf, "  %4d:", i)
		for e := head; e != nil; e = e.next {
			fmt.Fprintf(&buf, " %v", e.key)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}
