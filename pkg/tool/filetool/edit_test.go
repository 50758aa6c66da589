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

package filetool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestEditExactMatch(t *testing.T) {
	path := writeTemp(t, "alpha\nbeta\ngamma\n")
	h := NewEdit(false)

	out, err := h.Execute(context.Background(), map[string]any{
		"path": path, "old_string": "beta", "new_string": "delta",
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "exact match")

	data, _ := os.ReadFile(path)
	assert.Equal(t, "alpha\ndelta\ngamma\n", string(data))
}

func TestEditAmbiguousExactMatch(t *testing.T) {
	path := writeTemp(t, "x = 1\nx = 1\n")
	h := NewEdit(false)

	out, err := h.Execute(context.Background(), map[string]any{
		"path": path, "old_string": "x = 1", "new_string": "x = 2",
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "old_string appears 2 times (must be unique). Add more context.", out.Content)

	// File unchanged.
	data, _ := os.ReadFile(path)
	assert.Equal(t, "x = 1\nx = 1\n", string(data))
}

func TestEditWhitespaceNormalizedMatch(t *testing.T) {
	// Trailing spaces in the file that the model cannot see.
	path := writeTemp(t, "def f():   \n    return 1\n")
	h := NewEdit(false)

	out, err := h.Execute(context.Background(), map[string]any{
		"path":       path,
		"old_string": "def f():\n    return 1",
		"new_string": "def f():\n    return 2",
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "whitespace-normalized match")

	data, _ := os.ReadFile(path)
	assert.Equal(t, "def f():\n    return 2\n", string(data))
}

func TestEditIndentationFlexibleMatch(t *testing.T) {
	path := writeTemp(t, "if ok {\n        doThing()\n}\n")
	h := NewEdit(false)

	out, err := h.Execute(context.Background(), map[string]any{
		"path":       path,
		"old_string": "doThing()",
		"new_string": "doOther()",
	})
	require.NoError(t, err)
	require.True(t, out.Success)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "if ok {\n        doOther()\n}\n", string(data))
}

func TestEditReindentPreservesRelativeIndent(t *testing.T) {
	content := "    start()\n"
	path := writeTemp(t, content)
	h := NewEdit(false)

	out, err := h.Execute(context.Background(), map[string]any{
		"path":       path,
		"old_string": "start()",
		"new_string": "begin()\n    nested()",
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "indentation-flexible match")

	data, _ := os.ReadFile(path)
	assert.Equal(t, "    begin()\n        nested()\n", string(data))
}

func TestEditNotFound(t *testing.T) {
	path := writeTemp(t, "alpha\n")
	h := NewEdit(false)

	out, err := h.Execute(context.Background(), map[string]any{
		"path": path, "old_string": "omega", "new_string": "x",
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "old_string not found in file. Check for typos or add more context.", out.Content)
}

func TestEditMissingFile(t *testing.T) {
	h := NewEdit(false)
	out, err := h.Execute(context.Background(), map[string]any{
		"path": filepath.Join(t.TempDir(), "missing.txt"), "old_string": "a", "new_string": "b",
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "File not found")
}

func TestAmbiguousWhitespaceNormalizedMatch(t *testing.T) {
	content := "ab  \ncd\n\nab \ncd\n"
	_, msg, ok := applyEdit(content, "ab\ncd", "x")
	assert.False(t, ok)
	assert.Equal(t, "Found 2 whitespace-normalized matches (must be unique)", msg)
}
