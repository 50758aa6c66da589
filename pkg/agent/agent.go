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

// Package agent implements the core conversation loop: stream a model
// response, execute requested tools, feed results back, repeat until
// the model answers in plain text.
package agent

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/roagent/roagent/pkg/model"
	"github.com/roagent/roagent/pkg/session"
	"github.com/roagent/roagent/pkg/tool"
)

// ApprovalFunc is consulted before executing a tool that requires
// approval. Returning false rejects the call and ends the turn.
type ApprovalFunc func(toolName string, args map[string]any) bool

// CancelCheck is polled between steps; returning true cancels the
// turn. Used for the file-based cancel signal.
type CancelCheck func() bool

// Agent orchestrates the conversation loop.
type Agent struct {
	session  *session.Session
	registry *tool.Registry
	client   model.Client

	approval     ApprovalFunc
	cancelCheck  CancelCheck
	contextLimit int
	autoCompact  bool

	cancelRequested atomic.Bool
}

// Config configures an Agent.
type Config struct {
	Session  *session.Session
	Registry *tool.Registry
	Client   model.Client

	// Approval is optional; when nil, tools run without asking.
	Approval ApprovalFunc

	// CancelCheck is optional; polled alongside RequestCancel.
	CancelCheck CancelCheck

	// ContextLimit in tokens. Zero means DefaultContextLimit.
	ContextLimit int

	// DisableAutoCompact turns off the context-threshold compaction.
	DisableAutoCompact bool
}

// New creates an agent.
func New(cfg Config) *Agent {
	limit := cfg.ContextLimit
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	return &Agent{
		session:      cfg.Session,
		registry:     cfg.Registry,
		client:       cfg.Client,
		approval:     cfg.Approval,
		cancelCheck:  cfg.CancelCheck,
		contextLimit: limit,
		autoCompact:  !cfg.DisableAutoCompact,
	}
}

// Session returns the agent's session.
func (a *Agent) Session() *session.Session {
	return a.session
}

// RequestCancel asks the current turn to stop at the next checkpoint.
// Safe to call from another goroutine.
func (a *Agent) RequestCancel() {
	a.cancelRequested.Store(true)
}

// IsCancelled reports whether cancellation was requested, either
// in-process or through the external cancel check. External signals
// latch so subsequent checks are cheap.
func (a *Agent) IsCancelled() bool {
	if a.cancelRequested.Load() {
		return true
	}
	if a.cancelCheck != nil && a.cancelCheck() {
		a.cancelRequested.Store(true)
		return true
	}
	return false
}

type pendingCall struct {
	id   string
	name string
	args map[string]any
}

// RunTurn runs one conversation turn, yielding events as they happen.
// A turn may involve several model calls when tools are invoked. The
// sequence always ends with turn_complete, error or cancelled.
func (a *Agent) RunTurn(ctx context.Context, userInput string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		a.cancelRequested.Store(false)

		if a.ShouldAutoCompact() {
			if !yield(Event{Type: EventCompactStart, Content: "auto"}) {
				return
			}
			result, err := a.Compact(ctx, "", "auto")
			if err != nil {
				yield(Event{Type: EventError, Content: err.Error()})
				return
			}
			if !yield(Event{
				Type:    EventCompactEnd,
				Content: fmt.Sprintf("Compacted: %d -> %d tokens", result.TokensBefore, result.TokensAfter),
			}) {
				return
			}
		}

		a.session.AddUserMessage(userInput)

		for {
			if a.IsCancelled() {
				yield(Event{Type: EventCancelled, Content: "Cancelled before model call"})
				return
			}

			messages := append(
				[]model.Message{{Role: model.RoleSystem, Content: a.session.SystemPrompt}},
				a.session.Messages()...,
			)

			var textContent string
			var toolCalls []model.ToolCall
			var pending []pendingCall
			streamFailed := false

			for chunk, err := range a.client.Stream(ctx, messages, a.registry.Definitions()) {
				if a.IsCancelled() {
					yield(Event{Type: EventCancelled, Content: "Cancelled during model response"})
					return
				}
				if err != nil {
					yield(Event{Type: EventError, Content: err.Error()})
					streamFailed = true
					break
				}

				switch chunk.Type {
				case model.ChunkContent:
					textContent += chunk.Text
					if !yield(Event{Type: EventText, Content: chunk.Text}) {
						return
					}
				case model.ChunkToolCall:
					tc := chunk.ToolCall
					if tc == nil {
						continue
					}
					if !yield(Event{Type: EventToolStart, ToolName: tc.Name, ToolArgs: tc.Arguments}) {
						return
					}
					toolCalls = append(toolCalls, *tc)
					pending = append(pending, pendingCall{id: tc.ID, name: tc.Name, args: tc.Arguments})
				case model.ChunkUsage:
					if chunk.Usage != nil {
						a.session.UpdateTokenUsage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
					}
				}
			}
			if streamFailed {
				return
			}

			if len(toolCalls) > 0 {
				a.session.AddAssistantToolCalls(toolCalls)
			} else if textContent != "" {
				a.session.AddAssistantMessage(textContent)
			}

			if len(pending) == 0 {
				yield(a.turnComplete())
				return
			}

			var results []session.ToolResult
			rejected := false
			for i, call := range pending {
				if a.IsCancelled() {
					yield(Event{Type: EventCancelled, Content: "Cancelled before tool execution"})
					return
				}

				if a.approval != nil && a.registry.RequiresApproval(call.name) {
					if !a.approval(call.name, call.args) {
						// The API requires a result for every call id.
						results = append(results, session.ToolResult{
							ToolCallID: call.id,
							Content:    "Command rejected by user. Awaiting new instructions.",
						})
						for _, remaining := range pending[i+1:] {
							results = append(results, session.ToolResult{
								ToolCallID: remaining.id,
								Content:    "Command skipped - user rejected previous command.",
							})
						}
						if !yield(Event{Type: EventToolBlocked, ToolName: call.name, ToolArgs: call.args}) {
							return
						}
						rejected = true
						break
					}
				}

				output := a.registry.Dispatch(ctx, call.name, call.args)
				truncated := TruncateOutput(output.Content, MaxToolOutputChars)
				results = append(results, session.ToolResult{ToolCallID: call.id, Content: truncated})
				if !yield(Event{
					Type:         EventToolEnd,
					ToolName:     call.name,
					ToolResult:   truncated,
					ToolMetadata: output.Metadata,
				}) {
					return
				}
			}

			a.session.AddToolResults(results)

			// A rejection ends the turn without going back to the model.
			if rejected {
				yield(a.turnComplete())
				return
			}
		}
	}
}

func (a *Agent) turnComplete() Event {
	return Event{
		Type: EventTurnComplete,
		Usage: &Usage{
			TotalInputTokens:  a.session.TotalInputTokens,
			TotalOutputTokens: a.session.TotalOutputTokens,
		},
	}
}
