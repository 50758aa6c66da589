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

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roagent/roagent/pkg/model"
)

// Registry holds the tools available to one agent and dispatches model
// tool calls to them. Dispatch never returns an error: unknown tools,
// handler errors, and handler panics all become failed Outputs.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. A later registration with the same name
// overrides the earlier one, keeping the original position.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := h.Name()
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.handlers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.handlers[name] = h
	return nil
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

// Definitions returns the tool definitions to advertise to the model,
// in registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		h := r.handlers[name]
		defs = append(defs, model.ToolDefinition{
			Name:        h.Name(),
			Description: h.Description(),
			Parameters:  h.Parameters(),
		})
	}
	return defs
}

// RequiresApproval reports whether the named tool is flagged for
// approval. Unknown tools require approval.
func (r *Registry) RequiresApproval(name string) bool {
	h, ok := r.Get(name)
	if !ok {
		return true
	}
	return h.RequiresApproval()
}

// Dispatch executes the named tool with the given arguments. Arguments
// are coerced against the tool's parameter schema first, so models that
// send "5" for an integer or "true" for a boolean still work.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (out *Output) {
	h, ok := r.Get(name)
	if !ok {
		return Fail(fmt.Sprintf("Unknown tool: %s", name))
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = Fail(failureMessage(name, fmt.Sprintf("panic: %v", rec), args))
		}
	}()

	coerced := CoerceArguments(h.Parameters(), args)
	result, err := h.Execute(ctx, coerced)
	if err != nil {
		return Fail(failureMessage(name, err.Error(), coerced))
	}
	if result == nil {
		return Fail(failureMessage(name, "handler returned no output", coerced))
	}
	return result
}

// failureMessage names the tool and echoes the arguments so the model
// can correct the call.
func failureMessage(name, reason string, args map[string]any) string {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		argsJSON = []byte("{}")
	}
	return fmt.Sprintf("Tool '%s' failed: %s\nArguments: %s", name, reason, argsJSON)
}
