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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	name     string
	schema   map[string]any
	approval bool
	execute  func(ctx context.Context, args map[string]any) (*Output, error)
}

func (h *fakeHandler) Name() string               { return h.name }
func (h *fakeHandler) Description() string        { return "fake tool" }
func (h *fakeHandler) Parameters() map[string]any { return h.schema }
func (h *fakeHandler) RequiresApproval() bool     { return h.approval }
func (h *fakeHandler) Execute(ctx context.Context, args map[string]any) (*Output, error) {
	return h.execute(ctx, args)
}

func echoHandler(name string) *fakeHandler {
	return &fakeHandler{
		name:   name,
		schema: ObjectSchema(map[string]any{"text": map[string]any{"type": "string"}}),
		execute: func(_ context.Context, args map[string]any) (*Output, error) {
			text, _ := args["text"].(string)
			return Succeed(text), nil
		},
	}
}

func TestRegisterOverridesDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoHandler("echo")))

	replacement := &fakeHandler{
		name:   "echo",
		schema: ObjectSchema(nil),
		execute: func(_ context.Context, _ map[string]any) (*Output, error) {
			return Succeed("replaced"), nil
		},
	}
	require.NoError(t, r.Register(replacement))

	h, ok := r.Get("echo")
	require.True(t, ok)
	assert.Same(t, replacement, h.(*fakeHandler))
	assert.Equal(t, []string{"echo"}, r.Names())
	assert.Len(t, r.Definitions(), 1)
}

func TestRequiresApprovalUnknownTool(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoHandler("echo")))
	assert.False(t, r.RequiresApproval("echo"))
	assert.True(t, r.RequiresApproval("missing"))
}

func TestDefinitionsPreserveRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoHandler("beta")))
	require.NoError(t, r.Register(echoHandler("alpha")))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "beta", defs[0].Name)
	assert.Equal(t, "alpha", defs[1].Name)
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	out := r.Dispatch(context.Background(), "missing", nil)
	assert.False(t, out.Success)
	assert.Equal(t, "Unknown tool: missing", out.Content)
}

func TestDispatchContainsHandlerErrors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeHandler{
		name:   "broken",
		schema: ObjectSchema(nil),
		execute: func(_ context.Context, _ map[string]any) (*Output, error) {
			return nil, errors.New("disk on fire")
		},
	}))

	out := r.Dispatch(context.Background(), "broken", map[string]any{"path": "/var/log"})
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "Tool 'broken' failed: disk on fire")
	assert.Contains(t, out.Content, `Arguments: {"path":"/var/log"}`)
}

func TestDispatchContainsPanics(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeHandler{
		name:   "panicky",
		schema: ObjectSchema(nil),
		execute: func(_ context.Context, _ map[string]any) (*Output, error) {
			panic("boom")
		},
	}))

	out := r.Dispatch(context.Background(), "panicky", nil)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "boom")
}

func TestDispatchCoercesArguments(t *testing.T) {
	var got map[string]any
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeHandler{
		name: "typed",
		schema: ObjectSchema(map[string]any{
			"count":   map[string]any{"type": "integer"},
			"enabled": map[string]any{"type": "boolean"},
			"ratio":   map[string]any{"type": "number"},
		}),
		execute: func(_ context.Context, args map[string]any) (*Output, error) {
			got = args
			return Succeed("ok"), nil
		},
	}))

	out := r.Dispatch(context.Background(), "typed", map[string]any{
		"count":   "42",
		"enabled": "Yes",
		"ratio":   "0.5",
	})
	require.True(t, out.Success)
	assert.Equal(t, 42, got["count"])
	assert.Equal(t, true, got["enabled"])
	assert.Equal(t, 0.5, got["ratio"])
}

func TestCoerceKeepsUnparseableValues(t *testing.T) {
	schema := ObjectSchema(map[string]any{
		"count": map[string]any{"type": "integer"},
	})
	out := CoerceArguments(schema, map[string]any{"count": "not-a-number"})
	assert.Equal(t, "not-a-number", out["count"])
}

func TestCoerceWholeFloatToInt(t *testing.T) {
	schema := ObjectSchema(map[string]any{
		"count": map[string]any{"type": "integer"},
	})
	out := CoerceArguments(schema, map[string]any{"count": float64(7)})
	assert.Equal(t, 7, out["count"])
}
