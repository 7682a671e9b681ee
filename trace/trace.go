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

// Package trace holds the process-wide instrumentation hooks consulted by the
// allocator and the symbol tables.
//
// Hooks are installed once, typically at process start, and are never
// consulted for control flow: every callback is an observer. Call sites read
// an immutable snapshot through Current and guard each event with both the
// Enabled constant and a check of the slot they are about to fire, so an
// empty slot costs a single nil check and building with the notrace tag
// removes the call sites entirely.
//
//	trace.Install(trace.Hooks{
//		OnAction: func(ev trace.ActionEvent) {
//			fmt.Println(ev.Action, ev.Desc)
//		},
//	})
package trace

import "sync/atomic"

// Hooks is the set of instrumentation callbacks. Any slot may be nil.
type Hooks struct {
	// OnFunction is invoked on function entry and exit.
	OnFunction func(ev FunctionEvent)
	// OnMemory is invoked on every tagged allocation, free and realloc.
	OnMemory func(ev MemoryEvent)
	// OnAction is invoked on semantic events such as table creation and
	// resizing. It must not mutate interpreter state.
	OnAction func(ev ActionEvent)
}

// FunctionKind distinguishes function entry from exit.
type FunctionKind uint8

const (
	FuncEnter FunctionKind = iota
	FuncExit
)

func (k FunctionKind) String() string {
	if k == FuncEnter {
		return "enter"
	}
	return "exit"
}

// FunctionEvent describes a function entry or exit. Depth is the nesting
// level of the function, 1 for the outermost traced call; the enter and exit
// events of one call carry the same depth.
type FunctionEvent struct {
	Kind  FunctionKind
	Name  string
	Depth int
}

// MemoryKind identifies the allocation primitive that produced a
// MemoryEvent.
type MemoryKind uint8

const (
	MemAlloc MemoryKind = iota
	MemFree
	MemRealloc
)

func (k MemoryKind) String() string {
	switch k {
	case MemAlloc:
		return "alloc"
	case MemFree:
		return "free"
	case MemRealloc:
		return "realloc"
	default:
		return "unknown"
	}
}

// MemoryEvent describes one allocation event. TypeName and Size are purely
// diagnostic. OldPtr is only set for MemRealloc.
type MemoryEvent struct {
	Kind     MemoryKind
	TypeName string
	Count    int
	Size     int
	Ptr      uintptr
	OldPtr   uintptr
}

// ActionEvent describes a semantic event. A and B are opaque references
// whose meaning depends on the Action (for table events A is the table).
type ActionEvent struct {
	Action Action
	A, B   any
	Desc   string
}

var (
	installed atomic.Pointer[Hooks]
	depth     atomic.Int64
	maxDepth  atomic.Int64
)

// Install publishes h as the process-wide hooks. It is meant to be called
// once at startup before any table is created; tables snapshot the hooks at
// construction. Installing a Hooks with every slot nil is equivalent to
// Reset.
func Install(h Hooks) {
	if h.OnFunction == nil && h.OnMemory == nil && h.OnAction == nil {
		Reset()
		return
	}
	installed.Store(&h)
}

// Reset removes any installed hooks and zeroes the depth counters.
func Reset() {
	installed.Store(nil)
	depth.Store(0)
	maxDepth.Store(0)
}

// Current returns the installed hooks, or nil if none are installed. The
// returned value must not be modified.
func Current() *Hooks {
	return installed.Load()
}

// Depth returns the current function nesting depth.
func Depth() int {
	return int(depth.Load())
}

// MaxDepth returns the deepest function nesting observed since the last
// Reset.
func MaxDepth() int {
	return int(maxDepth.Load())
}

// FunctionEnabled reports whether an OnFunction hook is present.
func (h *Hooks) FunctionEnabled() bool {
	return h != nil && h.OnFunction != nil
}

// MemoryEnabled reports whether an OnMemory hook is present.
func (h *Hooks) MemoryEnabled() bool {
	return h != nil && h.OnMemory != nil
}

// ActionEnabled reports whether an OnAction hook is present.
func (h *Hooks) ActionEnabled() bool {
	return h != nil && h.OnAction != nil
}

// Enter records entry into the named function.
func (h *Hooks) Enter(name string) {
	if !h.FunctionEnabled() {
		return
	}
	d := depth.Add(1)
	for {
		m := maxDepth.Load()
		if d <= m || maxDepth.CompareAndSwap(m, d) {
			break
		}
	}
	h.OnFunction(FunctionEvent{Kind: FuncEnter, Name: name, Depth: int(d)})
}

// Exit records exit from the named function.
func (h *Hooks) Exit(name string) {
	if !h.FunctionEnabled() {
		return
	}
	d := depth.Add(-1)
	h.OnFunction(FunctionEvent{Kind: FuncExit, Name: name, Depth: int(d + 1)})
}

// Memory fires the OnMemory hook.
func (h *Hooks) Memory(ev MemoryEvent) {
	if !h.MemoryEnabled() {
		return
	}
	h.OnMemory(ev)
}

// Action fires the OnAction hook. Callers that box arguments into a and b
// should check ActionEnabled first.
func (h *Hooks) Action(action Action, a, b any, desc string) {
	if !h.ActionEnabled() {
		return
	}
	h.OnAction(ActionEvent{Action: action, A: a, B: b, Desc: desc})
}
