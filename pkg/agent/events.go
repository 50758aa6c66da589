// Copyright 2025 RO Agent Authors
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

package agent

// EventType identifies what an agent event carries.
type EventType string

const (
	// EventText is a streamed assistant text fragment.
	EventText EventType = "text"

	// EventToolStart announces a tool call before execution.
	EventToolStart EventType = "tool_start"

	// EventToolEnd carries a tool's (truncated) result.
	EventToolEnd EventType = "tool_end"

	// EventToolBlocked signals the user rejected a tool call.
	EventToolBlocked EventType = "tool_blocked"

	// EventTurnComplete ends a turn and carries cumulative usage.
	EventTurnComplete EventType = "turn_complete"

	// EventError carries a model error; the turn ends after it.
	EventError EventType = "error"

	// EventCancelled signals the turn stopped on a cancel request.
	EventCancelled EventType = "cancelled"

	// EventCompactStart and EventCompactEnd bracket auto-compaction.
	EventCompactStart EventType = "compact_start"
	EventCompactEnd   EventType = "compact_end"
)

// Usage is cumulative session token usage, reported on turn_complete.
type Usage struct {
	TotalInputTokens  int
	TotalOutputTokens int
}

// Event is emitted by the agent during a turn.
type Event struct {
	Type         EventType
	Content      string
	ToolName     string
	ToolArgs     map[string]any
	ToolResult   string
	ToolMetadata map[string]any
	Usage        *Usage
}
