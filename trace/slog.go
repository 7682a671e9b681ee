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
	"context"
	"log/slog"
	"strings"
)

// SlogHooks returns hooks that write every event to logger at debug level.
// Function events are indented by their depth. Values in ActionEvent.A and
// ActionEvent.B are logged with slog.Any, so types implementing
// slog.LogValuer control their own rendering.
func SlogHooks(logger *slog.Logger) Hooks {
	ctx := context.Background()
	return Hooks{
		OnFunction: func(ev FunctionEvent) {
			if !logger.Enabled(ctx, slog.LevelDebug) {
				return
			}
			indent := ""
			if ev.Depth > 1 {
				indent = strings.Repeat("  ", ev.Depth-1)
			}
			logger.LogAttrs(ctx, slog.LevelDebug, indent+ev.Kind.String()+" "+ev.Name,
				slog.Int("depth", ev.Depth))
		},
		OnMemory: func(ev MemoryEvent) {
			if !logger.Enabled(ctx, slog.LevelDebug) {
				return
			}
			attrs := []slog.Attr{
				slog.String("type", ev.TypeName),
				slog.Int("count", ev.Count),
				slog.Int("size", ev.Size),
				slog.Uint64("ptr", uint64(ev.Ptr)),
			}
			if ev.Kind == MemRealloc {
				attrs = append(attrs, slog.Uint64("old", uint64(ev.OldPtr)))
			}
			logger.LogAttrs(ctx, slog.LevelDebug, ev.Kind.String(), attrs...)
		},
		OnAction: func(ev ActionEvent) {
			if !logger.Enabled(ctx, slog.LevelDebug) {
				return
			}
			attrs := []slog.Attr{slog.String("desc", ev.Desc)}
			if ev.A != nil {
				attrs = append(attrs, slog.Any("a", ev.A))
			}
			if ev.B != nil {
				attrs = append(attrs, slog.Any("b", ev.B))
			}
			logger.LogAttrs(ctx, slog.LevelDebug, ev.Action.String(), attrs...)
		},
	}
}
