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

// Package model defines the provider-neutral conversation types and the
// LLM client interface used by the agent loop.
package model

import (
	"context"
	"iter"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to invoke a tool. Arguments hold the
// parsed JSON arguments; malformed argument payloads parse to an empty
// map rather than failing the turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message is one entry in the conversation history.
//
// Assistant messages may carry ToolCalls; tool messages carry the
// ToolCallID they answer. Every tool call in an assistant message must
// be answered by exactly one tool message before the next model call.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// Usage is the provider-reported token accounting for one model call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// ChunkType discriminates streaming chunks.
type ChunkType string

const (
	// ChunkContent carries an incremental text delta.
	ChunkContent ChunkType = "content"
	// ChunkToolCall carries one fully assembled tool call.
	ChunkToolCall ChunkType = "tool_call"
	// ChunkUsage carries the final token accounting for the call.
	ChunkUsage ChunkType = "usage"
)

// Chunk is one unit of streamed model output.
type Chunk struct {
	Type     ChunkType
	Text     string
	ToolCall *ToolCall
	Usage    *Usage
}

// ToolDefinition describes a tool for function calling.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Client is a streaming chat-completion client.
type Client interface {
	// Name returns the model identifier requests are made with.
	Name() string

	// Stream sends the conversation and yields chunks as they arrive:
	// content deltas during generation, assembled tool calls when the
	// model finishes calling, and a usage chunk last when the provider
	// reports one. A yielded error terminates the stream.
	Stream(ctx context.Context, messages []Message, tools []ToolDefinition) iter.Seq2[*Chunk, error]

	// Complete sends the conversation without streaming and returns the
	// full assistant text. Used for summarization calls that need no
	// tool access.
	Complete(ctx context.Context, messages []Message) (string, error)
}
