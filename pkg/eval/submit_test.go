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

package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitHandlerCapture(t *testing.T) {
	var callback string
	h := NewSubmitHandler("commit_final_answer", func(answer string) {
		callback = answer
	})

	assert.Equal(t, "commit_final_answer", h.Name())
	assert.False(t, h.RequiresApproval())
	assert.Contains(t, h.Description(), "SQL queries")

	_, submitted := h.Answer()
	assert.False(t, submitted)

	out, err := h.Execute(context.Background(), map[string]any{"answer": "51"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Content, "Answer submitted: 51")
	assert.Equal(t, "51", out.Metadata["answer"])
	assert.Equal(t, "51", callback)

	answer, submitted := h.Answer()
	assert.True(t, submitted)
	assert.Equal(t, "51", answer)

	h.Reset()
	_, submitted = h.Answer()
	assert.False(t, submitted)
}

func TestSubmitHandlerEmptyAnswer(t *testing.T) {
	h := NewSubmitHandler("answer_action", nil)
	assert.Contains(t, h.Description(), "shell commands")

	out, err := h.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "No answer provided")
	assert.False(t, h.Submitted())
}

func TestFinishHandler(t *testing.T) {
	var called bool
	h := NewFinishHandler(func() { called = true })

	assert.Equal(t, "finish_action", h.Name())
	assert.False(t, h.Finished())

	out, err := h.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Content, "Task completed")
	assert.True(t, h.Finished())
	assert.True(t, called)

	h.Reset()
	assert.False(t, h.Finished())

	out, err = h.Execute(context.Background(), map[string]any{"message": "cron installed"})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "cron installed")
}

func newTestSQLiteHandler(t *testing.T) *SQLiteHandler {
	t.Helper()
	info := TableInfo{
		Columns: []Column{
			{Name: "player", Type: "TEXT"},
			{Name: "points", Type: "INT"},
		},
		Rows: [][]any{
			{"Ross", float64(51)},
			{"DeRozan", float64(42)},
		},
	}
	dbPath, err := CreateSQLiteFromTableInfo("nba_scores", info, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbPath })

	h := NewSQLiteHandler(dbPath)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestSQLiteHandlerSelect(t *testing.T) {
	h := newTestSQLiteHandler(t)

	out, err := h.Execute(context.Background(), map[string]any{
		"sql": "SELECT points FROM nba_scores WHERE player = 'Ross'",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Content, "51")
	assert.Equal(t, []string{"points"}, out.Metadata["columns"])
	assert.Equal(t, 1, out.Metadata["row_count"])
	assert.Equal(t, false, out.Metadata["truncated"])
}

func TestSQLiteHandlerMutation(t *testing.T) {
	h := newTestSQLiteHandler(t)

	out, err := h.Execute(context.Background(), map[string]any{
		"sql": "DELETE FROM nba_scores WHERE points < 50",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Content, "Rows affected: 1")

	out, err = h.Execute(context.Background(), map[string]any{
		"sql": "SELECT COUNT(*) FROM nba_scores",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "1")
}

func TestSQLiteHandlerErrors(t *testing.T) {
	h := newTestSQLiteHandler(t)

	out, err := h.Execute(context.Background(), map[string]any{"sql": "  "})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "No SQL query provided")

	out, err = h.Execute(context.Background(), map[string]any{"sql": "SELECT * FROM missing_table"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "SQL error")
}
