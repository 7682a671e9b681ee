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

// Package alloc is the typed allocation layer underneath the symbol tables.
//
// Raw byte allocation goes through the Allocator interface. Runtime
// delegates to the Go runtime and leaves reclamation to the garbage
// collector; Pool recycles freed blocks by size class, so Alloc may hand back
// memory with stale contents while AllocZeroed never does.
//
// The generic entry points Make, New, Grow, Release and Free allocate typed
// memory. They compute count*sizeof(T) and, when a trace.Hooks with an
// OnMemory slot is installed, emit a trace.MemoryEvent tagged with the type
// name. The tag is diagnostic only. The With variants (MakeWith, NewWith,
// ReleaseWith, FreeWith) report to the hooks they are given instead, which
// is how a table reports to its own hooks.
//
// Typed allocation always comes from the Go heap. Default, and the byte
// helpers built on it (Bytes, ZeroedBytes, ReallocBytes, FreeBytes), serve
// raw buffers only: installing a Pool as Default does not change how a
// table allocates its buckets or entries.
//
// Allocation failure is not a recoverable error. A request that cannot be
// satisfied (a negative count, a byte size that overflows, an Allocator that
// returns a short slice) panics with an error wrapping ErrOutOfMemory, and
// recovering from that panic is unsupported: a table interrupted mid-resize
// is left half rehashed.
package alloc

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"unsafe"

	"github.com/cockroachdb/symtab/trace"
)

// ErrOutOfMemory is the error carried by the panic raised when an
// allocation cannot be satisfied.
var ErrOutOfMemory = errors.New("alloc: out of memory")

// Allocator provides raw byte allocation.
type Allocator interface {
	// Alloc returns a slice of length n. Its contents are unspecified.
	Alloc(n int) []byte
	// AllocZeroed returns a zero-filled slice of length n.
	AllocZeroed(n int) []byte
	// Realloc returns a slice of length n whose first min(len(b), n) bytes
	// equal those of b. b must not be used afterwards.
	Realloc(b []byte, n int) []byte
	// Free releases b. Free(nil) is a no-op.
	Free(b []byte)
}

// Runtime is an Allocator backed by make. Free is a no-op.
type Runtime struct{}

var _ Allocator = Runtime{}

func (Runtime) Alloc(n int) []byte {
	return make([]byte, n)
}

func (Runtime) AllocZeroed(n int) []byte {
	return make([]byte, n)
}

func (Runtime) Realloc(b []byte, n int) []byte {
	if n <= cap(b) {
		return b[:n]
	}
	nb := make([]byte, n)
	copy(nb, b)
	return nb
}

func (Runtime) Free([]byte) {}

// Default is the Allocator used by Bytes, ZeroedBytes, ReallocBytes and
// FreeBytes.
var Default Allocator = Runtime{}

// Bytes allocates n bytes from Default. The contents are unspecified.
func Bytes(n int) []byte {
	checkSize(n, 1)
	b := Default.Alloc(n)
	if len(b) != n {
		fatalf("Alloc(%d) returned %d bytes", n, len(b))
	}
	emitAlloc(trace.MemAlloc, "byte", n, n, sliceAddr(b), 0)
	return b
}

// ZeroedBytes allocates n zero-filled bytes from Default.
func ZeroedBytes(n int) []byte {
	checkSize(n, 1)
	b := Default.AllocZeroed(n)
	if len(b) != n {
		fatalf("AllocZeroed(%d) returned %d bytes", n, len(b))
	}
	emitAlloc(trace.MemAlloc, "byte", n, n, sliceAddr(b), 0)
	return b
}

// ReallocBytes resizes b to n bytes using Default.
func ReallocBytes(b []byte, n int) []byte {
	checkSize(n, 1)
	old := sliceAddr(b)
	nb := Default.Realloc(b, n)
	if len(nb) != n {
		fatalf("Realloc(%d) returned %d bytes", n, len(nb))
	}
	emitAlloc(trace.MemRealloc, "byte", n, n, sliceAddr(nb), old)
	return nb
}

// FreeBytes returns b to Default. FreeBytes(nil) is a no-op.
func FreeBytes(b []byte) {
	if b == nil {
		return
	}
	emitAlloc(trace.MemFree, "byte", len(b), len(b), sliceAddr(b), 0)
	Default.Free(b)
}

// Make returns a zeroed slice of count elements of type T, reporting the
// allocation to the installed hooks.
func Make[T any](count int) []T {
	return MakeWith[T](current(), count)
}

// MakeWith is Make reporting to h instead of the installed hooks. A nil h
// reports nothing.
func MakeWith[T any](h *trace.Hooks, count int) []T {
	size := sizeOf[T](count)
	s := make([]T, count)
	if trace.Enabled {
		emitTyped[T](h, trace.MemAlloc, count, size, sliceAddr(s), 0)
	}
	return s
}

// New returns a pointer to a zeroed T.
func New[T any]() *T {
	return NewWith[T](current())
}

// NewWith is New reporting to h.
func NewWith[T any](h *trace.Hooks) *T {
	p := new(T)
	if trace.Enabled {
		emitTyped[T](h, trace.MemAlloc, 1, sizeOf[T](1), uintptr(unsafe.Pointer(p)), 0)
	}
	return p
}

// Grow returns a slice of n elements whose first min(len(s), n) elements
// are those of s. The remaining elements are zero. s must not be used
// afterwards.
func Grow[T any](s []T, n int) []T {
	size := sizeOf[T](n)
	var ns []T
	if n <= cap(s) {
		ns = s[:n]
		if n > len(s) {
			clear(ns[len(s):])
		}
	} else {
		ns = make([]T, n)
		copy(ns, s)
	}
	if trace.Enabled {
		emitTyped[T](current(), trace.MemRealloc, n, size, sliceAddr(ns), sliceAddr(s))
	}
	return ns
}

// Release frees a slice obtained from Make or Grow. The elements are zeroed
// so that the slice no longer keeps anything reachable. Release(nil) is a
// no-op.
func Release[T any](s []T) {
	ReleaseWith(current(), s)
}

// ReleaseWith is Release reporting to h.
func ReleaseWith[T any](h *trace.Hooks, s []T) {
	if s == nil {
		return
	}
	if trace.Enabled {
		emitTyped[T](h, trace.MemFree, len(s), sizeOf[T](len(s)), sliceAddr(s), 0)
	}
	clear(s)
}

// Free frees a value obtained from New, zeroing it. Free(nil) is a no-op.
func Free[T any](p *T) {
	FreeWith(current(), p)
}

// FreeWith is Free reporting to h.
func FreeWith[T any](h *trace.Hooks, p *T) {
	if p == nil {
		return
	}
	if trace.Enabled {
		emitTyped[T](h, trace.MemFree, 1, sizeOf[T](1), uintptr(unsafe.Pointer(p)), 0)
	}
	var zero T
	*p = zero
}

// sizeOf returns count*sizeof(T), aborting if the request cannot be
// represented.
func sizeOf[T any](count int) int {
	var t T
	return checkSize(count, int(unsafe.Sizeof(t)))
}

func checkSize(count, elemSize int) int {
	if count < 0 {
		fatalf("negative count %d", count)
	}
	if elemSize != 0 && count > math.MaxInt/elemSize {
		fatalf("%d elements of %d bytes overflows", count, elemSize)
	}
	return count * elemSize
}

func fatalf(format string, args ...any) {
	panic(fmt.Errorf("%w: %s", ErrOutOfMemory, fmt.Sprintf(format, args...)))
}

// current returns the installed hooks, or nil when instrumentation is
// compiled out.
func current() *trace.Hooks {
	if !trace.Enabled {
		return nil
	}
	return trace.Current()
}

func emitTyped[T any](h *trace.Hooks, kind trace.MemoryKind, count, size int, ptr, old uintptr) {
	if !h.MemoryEnabled() {
		return
	}
	h.OnMemory(trace.MemoryEvent{
		Kind:     kind,
		TypeName: reflect.TypeFor[T]().String(),
		Count:    count,
		Size:     size,
		Ptr:      ptr,
		OldPtr:   old,
	})
}

func emitAlloc(kind trace.MemoryKind, typeName string, count, size int, ptr, old uintptr) {
	if !trace.Enabled {
		return
	}
	h := trace.Current()
	if !h.MemoryEnabled() {
		return
	}
	h.OnMemory(trace.MemoryEvent{
		Kind:     kind,
		TypeName: typeName,
		Count:    count,
		Size:     size,
		Ptr:      ptr,
		OldPtr:   old,
	})
}

func sliceAddr[T any](s []T) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(s)))
}
