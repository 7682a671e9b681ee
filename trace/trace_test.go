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

package trace

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstallReset(t *testing.T) {
	defer Reset()

	Reset()
	require.Nil(t, Current())

	var actions []Action
	Install(Hooks{OnAction: func(ev ActionEvent) {
		actions = append(actions, ev.Action)
	}})
	h := Current()
	require.NotNil(t, h)
	require.True(t, h.ActionEnabled())
	require.False(t, h.FunctionEnabled())
	require.False(t, h.MemoryEnabled())

	h.Action(GCBegin, nil, nil, "")
	h.Action(GCEnd, nil, nil, "")
	require.Equal(t, []Action{GCBegin, GCEnd}, actions)

	// An empty hook set is the same as no hooks.
	Install(Hooks{})
	require.Nil(t, Current())
}

func TestNilHooks(t *testing.T) {
	var h *Hooks
	require.False(t, h.FunctionEnabled())
	require.False(t, h.MemoryEnabled())
	require.False(t, h.ActionEnabled())

	// None of these may panic.
	h.Enter("f")
	h.Exit("f")
	h.Memory(MemoryEvent{})
	h.Action(TableCreate, 1, 2, "x")

	// Empty slots on a non-nil Hooks are no-ops too.
	h = &Hooks{}
	h.Enter("f")
	h.Exit("f")
	h.Memory(MemoryEvent{})
	h.Action(TableCreate, 1, 2, "x")
	require.Equal(t, 0, Depth())
}

func TestDepth(t *testing.T) {
	defer Reset()
	Reset()

	var events []FunctionEvent
	h := &Hooks{OnFunction: func(ev FunctionEvent) {
		events = append(events, ev)
	}}

	h.Enter("a")
	h.Enter("b")
	require.Equal(t, 2, Depth())
	h.Exit("b")
	h.Enter("c")
	h.Enter("d")
	h.Enter("e")
	require.Equal(t, 4, Depth())
	h.Exit("e")
	h.Exit("d")
	h.Exit("c")
	h.Exit("a")
	require.Equal(t, 0, Depth())
	require.Equal(t, 4, MaxDepth())

	require.Equal(t, FunctionEvent{Kind: FuncEnter, Name: "a", Depth: 1}, events[0])
	require.Equal(t, FunctionEvent{Kind: FuncEnter, Name: "b", Depth: 2}, events[1])
	require.Equal(t, FunctionEvent{Kind: FuncExit, Name: "b", Depth: 2}, events[2])
	require.Equal(t, FunctionEvent{Kind: FuncExit, Name: "a", Depth: 1}, events[len(events)-1])
}

func TestActionString(t *testing.T) {
	for a := Action(0); a < numActions; a++ {
		require.NotEmpty(t, a.String())
		require.NotEqual(t, "unknown", a.String())
	}
	require.Equal(t, "table-resize-begin", TableResizeBegin.String())
	require.Equal(t, "unknown", numActions.String())
	require.Equal(t, "realloc", MemRealloc.String())
	require.Equal(t, "exit", FuncExit.String())
}

func TestSlogHooks(t *testing.T) {
	defer Reset()
	Reset()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := SlogHooks(logger)

	h.Enter("outer")
	h.Enter("inner")
	h.Exit("inner")
	h.Exit("outer")
	h.Memory(MemoryEvent{Kind: MemRealloc, TypeName: "int", Count: 4, Size: 32, Ptr: 0x20, OldPtr: 0x10})
	h.Action(TableResizeEnd, "vars", 32, "variables")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	require.Contains(t, lines[0], `msg="enter outer"`)
	require.Contains(t, lines[1], `msg="  enter inner"`)
	require.Contains(t, lines[1], "depth=2")
	require.Contains(t, lines[4], "msg=realloc")
	require.Contains(t, lines[4], "type=int")
	require.Contains(t, lines[4], "old=16")
	require.Contains(t, lines[5], "msg=table-resize-end")
	require.Contains(t, lines[5], "desc=variables")
	require.Contains(t, lines[5], "b=32")
}

func TestSlogHooksDisabledLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := SlogHooks(logger)
	h.Action(TableCreate, nil, nil, "commands")
	h.Memory(MemoryEvent{})
	require.Empty(t, buf.String())
}
