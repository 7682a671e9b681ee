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

package symtab

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/symtab/alloc"
	"github.com/cockroachdb/symtab/trace"
)

// option provide an interface to do work on Table while it is being created.
type option[K comparable, V any] interface {
	apply(t *Table[K, V])
}

// Allocator specifies an interface for allocating and releasing the bucket
// arrays and entries used by a Table. The default allocator goes through
// package alloc, which tags every allocation for instrumentation, and lets
// the GC reclaim memory.
//
// Every bucket array passed to FreeBuckets and every entry passed to
// FreeEntry was obtained from the same Allocator. A Table frees the old
// bucket array at the end of every resize and the current one on Close.
// An Allocator that cannot satisfy a request must not return: allocation
// failure is fatal (see package alloc).
type Allocator[K comparable, V any] interface {
	// AllocBuckets should return a slice equivalent to
	// make([]*Entry[K, V], n).
	AllocBuckets(n int) []*Entry[K, V]

	// FreeBuckets releases a bucket array. The entries it points to have
	// already been moved or freed.
	FreeBuckets(v []*Entry[K, V])

	// AllocEntry should return a pointer to a zeroed Entry.
	AllocEntry() *Entry[K, V]

	// FreeEntry releases an entry unlinked from the table. The key and
	// value destructors have already run.
	FreeEntry(e *Entry[K, V])
}

// defaultAllocator reports its allocations to hooks, which New sets to the
// table's own hooks.
type defaultAllocator[K comparable, V any] struct {
	hooks *trace.Hooks
}

func (a defaultAllocator[K, V]) AllocBuckets(n int) []*Entry[K, V] {
	return alloc.MakeWith[*Entry[K, V]](a.hooks, n)
}

func (a defaultAllocator[K, V]) FreeBuckets(v []*Entry[K, V]) {
	alloc.ReleaseWith(a.hooks, v)
}

func (a defaultAllocator[K, V]) AllocEntry() *Entry[K, V] {
	return alloc.NewWith[Entry[K, V]](a.hooks)
}

func (a defaultAllocator[K, V]) FreeEntry(e *Entry[K, V]) {
	alloc.FreeWith(a.hooks, e)
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(t *Table[K, V]) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a
// Table[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}

type typeNameOption[K comparable, V any] string

func (op typeNameOption[K, V]) apply(t *Table[K, V]) {
	t.typeName = string(op)
}

// WithTypeName labels the table with its role in the interpreter (e.g.
// "variables", "commands"). The label is reported to instrumentation and
// logs only.
func WithTypeName[K comparable, V any](name string) option[K, V] {
	return typeNameOption[K, V](name)
}

type maxLoadOption[K comparable, V any] float64

func (op maxLoadOption[K, V]) apply(t *Table[K, V]) {
	t.maxLoad = float64(op)
}

// WithMaxLoadFactor sets the load factor at which the table grows: an
// insertion that would bring used to size*f or beyond resizes first. f must
// be in (0, 1]; the default is 1.
func WithMaxLoadFactor[K comparable, V any](f float64) option[K, V] {
	if !(f > 0 && f <= 1) {
		panic(fmt.Sprintf("symtab: max load factor %v outside (0, 1]", f))
	}
	return maxLoadOption[K, V](f)
}

type hooksOption[K comparable, V any] struct {
	hooks *trace.Hooks
}

func (op hooksOption[K, V]) apply(t *Table[K, V]) {
	t.hooks = op.hooks
}

// WithHooks overrides the instrumentation hooks the table reports to. By
// default a table uses trace.Current() as of its construction. The hooks
// receive the table's action and function events and, unless WithAllocator
// replaced the default allocator, its memory events. A nil hooks disables
// instrumentation for the table.
func WithHooks[K comparable, V any](hooks *trace.Hooks) option[K, V] {
	return hooksOption[K, V]{hooks}
}

type loggerOption[K comparable, V any] struct {
	logger *slog.Logger
}

func (op loggerOption[K, V]) apply(t *Table[K, V]) {
	t.logger = op.logger
}

// WithLogger sets the logger the table reports resizes to at debug level.
// By default nothing is logged.
func WithLogger[K comparable, V any](logger *slog.Logger) option[K, V] {
	return loggerOption[K, V]{logger}
}
