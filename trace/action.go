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

// Action is the code carried by an ActionEvent.
type Action uint8

const (
	TableCreate Action = iota
	TableDelete
	TableResizeBegin
	TableResizeEnd
	TableStats
	EntryInsert
	EntryDelete
	EntryReplace
	CommandCreate
	CommandDelete
	ProcCreate
	ProcDelete
	CallFrameEnter
	CallFrameLeave
	GCBegin
	GCEnd
	ExprEvalBegin
	ExprEvalEnd
	numActions
)

var actionNames = [numActions]string{
	TableCreate:      "table-create",
	TableDelete:      "table-delete",
	TableResizeBegin: "table-resize-begin",
	TableResizeEnd:   "table-resize-end",
	TableStats:       "table-stats",
	EntryInsert:      "entry-insert",
	EntryDelete:      "entry-delete",
	EntryReplace:     "entry-replace",
	CommandCreate:    "command-create",
	CommandDelete:    "command-delete",
	ProcCreate:       "proc-create",
	ProcDelete:       "proc-delete",
	CallFrameEnter:   "callframe-enter",
	CallFrameLeave:   "callframe-leave",
	GCBegin:          "gc-begin",
	GCEnd:            "gc-end",
	ExprEvalBegin:    "expr-eval-begin",
	ExprEvalEnd:      "expr-eval-end",
}

func (a Action) String() string {
	if a < numActions {
		return actionNames[a]
	}
	return "unknown"
}
