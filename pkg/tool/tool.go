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

// Package tool defines the handler contract for tools the agent can
// invoke, and the registry that dispatches model tool calls to them.
//
// A Handler describes itself (name, description, JSON-schema
// parameters, approval requirement) and executes with a map of
// arguments. Handlers report domain failures as unsuccessful Outputs;
// returned errors and panics are contained by the Registry and
// converted to failed Outputs, so a misbehaving tool can never take
// down a turn.
package tool

import "context"

// Handler is a tool the model can call.
type Handler interface {
	// Name returns the unique tool name exposed to the model.
	Name() string

	// Description returns the tool description the model sees.
	Description() string

	// Parameters returns the JSON schema for the tool's arguments.
	Parameters() map[string]any

	// RequiresApproval indicates whether invocations of this tool need
	// human approval before execution. The approval policy may widen or
	// narrow this per invocation.
	RequiresApproval() bool

	// Execute runs the tool. Domain failures (file not found, blocked
	// command) are reported as Output with Success=false, not as errors.
	Execute(ctx context.Context, args map[string]any) (*Output, error)
}

// Output is the result of one tool execution.
type Output struct {
	// Content is the text returned to the model.
	Content string

	// Success is false when the tool ran but the operation failed.
	Success bool

	// Metadata carries structured details (exit codes, byte counts)
	// for observability; it is not sent to the model.
	Metadata map[string]any
}

// Succeed builds a successful Output.
func Succeed(content string) *Output {
	return &Output{Content: content, Success: true}
}

// Fail builds a failed Output.
func Fail(content string) *Output {
	return &Output{Content: content, Success: false}
}

// WithMetadata attaches metadata to an Output and returns it.
func (o *Output) WithMetadata(md map[string]any) *Output {
	o.Metadata = md
	return o
}
