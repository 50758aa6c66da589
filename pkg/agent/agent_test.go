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

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roagent/roagent/pkg/model"
	"github.com/roagent/roagent/pkg/session"
	"github.com/roagent/roagent/pkg/tool"
)

// scriptedClient replays canned chunk sequences, one per Stream call.
type scriptedClient struct {
	responses [][]*model.Chunk
	streamErr error
	calls     int
	summary   string

	// captured per call
	seenMessages [][]model.Message
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Stream(_ context.Context, messages []model.Message, _ []model.ToolDefinition) iter.Seq2[*model.Chunk, error] {
	c.seenMessages = append(c.seenMessages, messages)
	idx := c.calls
	c.calls++
	return func(yield func(*model.Chunk, error) bool) {
		if c.streamErr != nil {
			yield(nil, c.streamErr)
			return
		}
		if idx >= len(c.responses) {
			yield(nil, errors.New("no scripted response left"))
			return
		}
		for _, chunk := range c.responses[idx] {
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (c *scriptedClient) Complete(_ context.Context, _ []model.Message) (string, error) {
	if c.summary == "" {
		return "summary", nil
	}
	return c.summary, nil
}

var _ model.Client = (*scriptedClient)(nil)

// echoHandler returns its "text" argument.
type echoHandler struct {
	name             string
	requiresApproval bool
	executed         []map[string]any
	output           string
}

func (h *echoHandler) Name() string        { return h.name }
func (h *echoHandler) Description() string { return "echo" }
func (h *echoHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"text": map[string]any{"type": "string"},
	}, "text")
}
func (h *echoHandler) RequiresApproval() bool { return h.requiresApproval }
func (h *echoHandler) Execute(_ context.Context, args map[string]any) (*tool.Output, error) {
	h.executed = append(h.executed, args)
	if h.output != "" {
		return tool.Succeed(h.output), nil
	}
	text, _ := args["text"].(string)
	return tool.Succeed("echo: " + text), nil
}

func textChunks(parts ...string) []*model.Chunk {
	var chunks []*model.Chunk
	for _, p := range parts {
		chunks = append(chunks, &model.Chunk{Type: model.ChunkContent, Text: p})
	}
	return chunks
}

func toolCallChunk(id, name string, args map[string]any) *model.Chunk {
	return &model.Chunk{Type: model.ChunkToolCall, ToolCall: &model.ToolCall{ID: id, Name: name, Arguments: args}}
}

func usageChunk(in, out int) *model.Chunk {
	return &model.Chunk{Type: model.ChunkUsage, Usage: &model.Usage{PromptTokens: in, CompletionTokens: out}}
}

func newAgent(t *testing.T, client model.Client, cfg Config) (*Agent, *echoHandler) {
	t.Helper()
	registry := tool.NewRegistry()
	echo := &echoHandler{name: "echo"}
	require.NoError(t, registry.Register(echo))

	cfg.Session = session.New("system prompt", nil)
	cfg.Registry = registry
	cfg.Client = client
	return New(cfg), echo
}

func collect(a *Agent, input string) []Event {
	var events []Event
	for ev := range a.RunTurn(context.Background(), input) {
		events = append(events, ev)
	}
	return events
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestPlainTextTurn(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{
		append(textChunks("Hello", " there"), usageChunk(10, 5)),
	}}
	a, _ := newAgent(t, client, Config{})

	events := collect(a, "hi")
	assert.Equal(t, []EventType{EventText, EventText, EventTurnComplete}, eventTypes(events))
	assert.Equal(t, "Hello", events[0].Content)
	assert.Equal(t, 10, events[2].Usage.TotalInputTokens)
	assert.Equal(t, 5, events[2].Usage.TotalOutputTokens)

	// History: user + assistant.
	msgs := a.Session().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello there", msgs[1].Content)
}

func TestSystemPromptLeadsEveryCall(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{textChunks("ok")}}
	a, _ := newAgent(t, client, Config{})
	collect(a, "hi")

	require.Len(t, client.seenMessages, 1)
	first := client.seenMessages[0][0]
	assert.Equal(t, model.RoleSystem, first.Role)
	assert.Equal(t, "system prompt", first.Content)
}

func TestToolLoop(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{
		{toolCallChunk("call_1", "echo", map[string]any{"text": "ping"}), usageChunk(20, 8)},
		append(textChunks("done"), usageChunk(30, 4)),
	}}
	a, echo := newAgent(t, client, Config{})

	events := collect(a, "run the tool")
	assert.Equal(t, []EventType{EventToolStart, EventToolEnd, EventText, EventTurnComplete}, eventTypes(events))
	assert.Equal(t, "echo", events[0].ToolName)
	assert.Equal(t, "echo: ping", events[1].ToolResult)
	require.Len(t, echo.executed, 1)

	// Usage accumulates across both model calls.
	assert.Equal(t, 50, events[3].Usage.TotalInputTokens)
	assert.Equal(t, 12, events[3].Usage.TotalOutputTokens)

	// History: user, assistant(tool_calls), tool, assistant.
	msgs := a.Session().Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, model.RoleTool, msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)

	// Second model call saw the tool result.
	second := client.seenMessages[1]
	assert.Equal(t, model.RoleTool, second[len(second)-1].Role)
}

func TestParallelToolCallsPairedOneToOne(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{
		{
			toolCallChunk("call_1", "echo", map[string]any{"text": "a"}),
			toolCallChunk("call_2", "echo", map[string]any{"text": "b"}),
		},
		textChunks("done"),
	}}
	a, _ := newAgent(t, client, Config{})
	collect(a, "go")

	msgs := a.Session().Messages()
	// user, assistant(2 calls), tool, tool, assistant.
	require.Len(t, msgs, 5)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Equal(t, "call_2", msgs[3].ToolCallID)
}

func TestApprovalRejectionEndsTurn(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{
		{
			toolCallChunk("call_1", "echo", map[string]any{"text": "a"}),
			toolCallChunk("call_2", "echo", map[string]any{"text": "b"}),
		},
	}}
	a, echo := newAgent(t, client, Config{
		Approval: func(string, map[string]any) bool { return false },
	})
	echo.requiresApproval = true

	events := collect(a, "go")
	types := eventTypes(events)
	assert.Contains(t, types, EventToolBlocked)
	assert.Equal(t, EventTurnComplete, types[len(types)-1])
	assert.Empty(t, echo.executed)

	// Every call id still gets a result, with the exact messages.
	msgs := a.Session().Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Command rejected by user. Awaiting new instructions.", msgs[2].Content)
	assert.Equal(t, "Command skipped - user rejected previous command.", msgs[3].Content)

	// Only one model call happened.
	assert.Equal(t, 1, client.calls)
}

func TestApprovalGrantedExecutes(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{
		{toolCallChunk("call_1", "echo", map[string]any{"text": "a"})},
		textChunks("done"),
	}}
	var asked []string
	a, echo := newAgent(t, client, Config{
		Approval: func(name string, _ map[string]any) bool {
			asked = append(asked, name)
			return true
		},
	})
	echo.requiresApproval = true

	collect(a, "go")
	assert.Equal(t, []string{"echo"}, asked)
	require.Len(t, echo.executed, 1)
}

func TestNoApprovalCallbackRunsFreely(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{
		{toolCallChunk("call_1", "echo", map[string]any{"text": "a"})},
		textChunks("done"),
	}}
	a, echo := newAgent(t, client, Config{})
	echo.requiresApproval = true

	collect(a, "go")
	require.Len(t, echo.executed, 1)
}

func TestStreamErrorEndsTurn(t *testing.T) {
	client := &scriptedClient{streamErr: errors.New("upstream 500")}
	a, _ := newAgent(t, client, Config{})

	events := collect(a, "hi")
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Contains(t, events[0].Content, "upstream 500")
}

func TestExternalCancelCheck(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{textChunks("ok")}}
	cancelled := true
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&echoHandler{name: "echo"}))
	a := New(Config{
		Session:     session.New("sys", nil),
		Registry:    registry,
		Client:      client,
		CancelCheck: func() bool { return cancelled },
	})

	events := collect(a, "hi")
	require.Len(t, events, 1)
	assert.Equal(t, EventCancelled, events[0].Type)
	assert.Equal(t, "Cancelled before model call", events[0].Content)
	// No model call was made.
	assert.Equal(t, 0, client.calls)
}

func TestRequestCancelLatches(t *testing.T) {
	a, _ := newAgent(t, &scriptedClient{}, Config{})
	assert.False(t, a.IsCancelled())
	a.RequestCancel()
	assert.True(t, a.IsCancelled())
}

func TestToolOutputTruncation(t *testing.T) {
	big := strings.Repeat("x", MaxToolOutputChars+1000)
	client := &scriptedClient{responses: [][]*model.Chunk{
		{toolCallChunk("call_1", "echo", map[string]any{"text": "a"})},
		textChunks("done"),
	}}
	a, echo := newAgent(t, client, Config{})
	echo.output = big

	events := collect(a, "go")
	var toolEnd Event
	for _, ev := range events {
		if ev.Type == EventToolEnd {
			toolEnd = ev
		}
	}
	assert.Contains(t, toolEnd.ToolResult, "[... 1000 chars elided ...]")
	assert.Less(t, len(toolEnd.ToolResult), len(big))
}

func TestTruncateOutputHeadTail(t *testing.T) {
	content := strings.Repeat("a", 60) + strings.Repeat("b", 60)
	out := TruncateOutput(content, 100)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 50)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 50)))
	assert.Contains(t, out, "[... 20 chars elided ...]")

	// Short content passes through untouched.
	assert.Equal(t, "short", TruncateOutput("short", 100))
}

func TestAutoCompactionTriggers(t *testing.T) {
	client := &scriptedClient{
		responses: [][]*model.Chunk{textChunks("ok")},
		summary:   "earlier work summary",
	}
	a, _ := newAgent(t, client, Config{ContextLimit: 100})

	// Inflate history past 80 tokens (0.8 * 100).
	a.Session().AddUserMessage(strings.Repeat("x", 1000))

	events := collect(a, "next")
	types := eventTypes(events)
	assert.Equal(t, EventCompactStart, types[0])
	assert.Equal(t, EventCompactEnd, types[1])
	assert.Equal(t, "auto", events[0].Content)

	// History now starts with the summary message.
	first := a.Session().Messages()[0]
	assert.Contains(t, first.Content, "Another language model worked on this task")
	assert.Contains(t, first.Content, "earlier work summary")
}

func TestAutoCompactionDisabled(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{textChunks("ok")}}
	a, _ := newAgent(t, client, Config{ContextLimit: 100, DisableAutoCompact: true})
	a.Session().AddUserMessage(strings.Repeat("x", 1000))

	events := collect(a, "next")
	assert.NotContains(t, eventTypes(events), EventCompactStart)
}

func TestManualCompactPreservesRecentUserMessages(t *testing.T) {
	client := &scriptedClient{summary: "the summary"}
	a, _ := newAgent(t, client, Config{})

	for i := 1; i <= 5; i++ {
		a.Session().AddUserMessage(fmt.Sprintf("task %d", i))
		a.Session().AddAssistantMessage(strings.Repeat("progress ", 200))
	}

	result, err := a.Compact(context.Background(), "", "manual")
	require.NoError(t, err)
	assert.Equal(t, "the summary", result.Summary)
	assert.Equal(t, "manual", result.Trigger)
	assert.Less(t, result.TokensAfter, result.TokensBefore)

	msgs := a.Session().Messages()
	// Last 3 user messages plus the summary.
	require.Len(t, msgs, 4)
	assert.Equal(t, "task 3", msgs[0].Content)
	assert.Equal(t, "task 5", msgs[2].Content)
	assert.Contains(t, msgs[3].Content, "the summary")
}

func TestFormatHistoryForSummary(t *testing.T) {
	a, _ := newAgent(t, &scriptedClient{}, Config{})
	a.Session().AddUserMessage("find the bug")
	a.Session().AddAssistantToolCalls([]model.ToolCall{{ID: "c1", Name: "grep"}})
	a.Session().AddToolResults([]session.ToolResult{{ToolCallID: "c1", Content: strings.Repeat("r", 600)}})
	a.Session().AddAssistantMessage("found it")

	text := a.formatHistoryForSummary()
	assert.Contains(t, text, "User: find the bug")
	assert.Contains(t, text, "Assistant called tool: grep")
	assert.Contains(t, text, "Tool result: "+strings.Repeat("r", 500)+"...")
	assert.Contains(t, text, "Assistant: found it")
}

func TestUnknownToolFailsGracefully(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{
		{toolCallChunk("call_1", "nope", map[string]any{})},
		textChunks("recovered"),
	}}
	a, _ := newAgent(t, client, Config{})

	events := collect(a, "go")
	var toolEnd Event
	for _, ev := range events {
		if ev.Type == EventToolEnd {
			toolEnd = ev
		}
	}
	assert.Equal(t, "Unknown tool: nope", toolEnd.ToolResult)
	assert.Equal(t, EventTurnComplete, events[len(events)-1].Type)
}
