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
	"errors"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roagent/roagent/pkg/model"
)

// scriptedClient replays canned chunk sequences, one per Stream call.
type scriptedClient struct {
	responses [][]*model.Chunk
	streamErr error
	calls     int
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Stream(_ context.Context, _ []model.Message, _ []model.ToolDefinition) iter.Seq2[*model.Chunk, error] {
	idx := c.calls
	c.calls++
	return func(yield func(*model.Chunk, error) bool) {
		if c.streamErr != nil {
			yield(nil, c.streamErr)
			return
		}
		if idx >= len(c.responses) {
			yield(&model.Chunk{Type: model.ChunkContent, Text: "Nothing left to do."}, nil)
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
	return "summary", nil
}

var _ model.Client = (*scriptedClient)(nil)

func toolCall(id, name string, args map[string]any) *model.Chunk {
	return &model.Chunk{Type: model.ChunkToolCall, ToolCall: &model.ToolCall{ID: id, Name: name, Arguments: args}}
}

func text(s string) *model.Chunk {
	return &model.Chunk{Type: model.ChunkContent, Text: s}
}

func newTestRunner(client model.Client) *Runner {
	cfg := DefaultConfig()
	cfg.MaxTurns = 3
	r := NewRunner(cfg, "")
	r.ClientFactory = func() (model.Client, error) {
		return client, nil
	}
	return r
}

func selectTask() DBBenchTask {
	return DBBenchTask{
		Index:       0,
		Description: "How many points did Ross score?",
		TableName:   "nba_scores",
		TableInfo: TableInfo{
			Columns: []Column{
				{Name: "player", Type: "TEXT"},
				{Name: "points", Type: "INT"},
			},
			Rows: [][]any{
				{"Ross", float64(51)},
				{"DeRozan", float64(42)},
			},
		},
		ExpectedAnswer: []string{"51"},
		QueryType:      "SELECT",
	}
}

func TestRunDBBenchTaskSQLite(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{
		{toolCall("c1", "execute_sql", map[string]any{
			"sql": "SELECT points FROM nba_scores WHERE player = 'Ross'",
		})},
		{toolCall("c2", "commit_final_answer", map[string]any{"answer": "51"})},
		{text("Submitted.")},
	}}
	r := newTestRunner(client)

	task := selectTask()
	result, err := r.RunDBBenchTask(context.Background(), &task)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	require.IsType(t, &DBBenchResult{}, result.Result)
	db := result.Result.(*DBBenchResult)
	assert.True(t, db.IsCorrect)
	require.NotNil(t, db.Answer)
	assert.Equal(t, "51", *db.Answer)
	assert.Equal(t, []string{"51"}, db.GroundTruth)
	assert.NotEmpty(t, result.History)
	assert.True(t, result.Correct())
}

func TestRunDBBenchTaskWrongAnswer(t *testing.T) {
	client := &scriptedClient{responses: [][]*model.Chunk{
		{toolCall("c1", "commit_final_answer", map[string]any{"answer": "42"})},
		{text("Submitted.")},
	}}
	r := newTestRunner(client)

	task := selectTask()
	result, err := r.RunDBBenchTask(context.Background(), &task)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	db := result.Result.(*DBBenchResult)
	assert.False(t, db.IsCorrect)
	assert.False(t, result.Correct())
}

func TestRunDBBenchTaskTurnLimit(t *testing.T) {
	// The model never submits, so the turn limit classifies the task.
	client := &scriptedClient{}
	r := newTestRunner(client)

	task := selectTask()
	result, err := r.RunDBBenchTask(context.Background(), &task)
	require.NoError(t, err)

	assert.Equal(t, StatusTaskLimitReached, result.Status)
	db := result.Result.(*DBBenchResult)
	assert.Nil(t, db.Answer)
	assert.False(t, db.IsCorrect)
}

func TestRunDBBenchTaskContextLimit(t *testing.T) {
	client := &scriptedClient{streamErr: errors.New("maximum context length exceeded")}
	r := newTestRunner(client)

	task := selectTask()
	result, err := r.RunDBBenchTask(context.Background(), &task)
	require.NoError(t, err)

	assert.Equal(t, StatusContextLimit, result.Status)
}

func TestRunDBBenchTaskClientError(t *testing.T) {
	r := newTestRunner(nil)
	r.ClientFactory = func() (model.Client, error) {
		return nil, errors.New("no api key")
	}

	task := selectTask()
	result, err := r.RunDBBenchTask(context.Background(), &task)
	require.NoError(t, err)

	assert.Equal(t, StatusTaskError, result.Status)
	assert.Contains(t, result.Error, "no api key")
}

func TestSystemPromptSelection(t *testing.T) {
	r := NewRunner(DefaultConfig(), "")
	assert.Equal(t, OSSystemPrompt, r.systemPrompt("os"))
	assert.Equal(t, DBBenchSystemPrompt, r.systemPrompt("dbbench"))
}

func TestSystemPromptFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("custom prompt"), 0o644))

	cfg := DefaultConfig()
	cfg.SystemPromptFile = path
	r := NewRunner(cfg, "")
	assert.Equal(t, "custom prompt", r.systemPrompt("os"))
}

func TestTurnTimeout(t *testing.T) {
	cfg := DefaultConfig()
	r := NewRunner(cfg, "")
	assert.Equal(t, "2m0s", r.turnTimeout().String())

	cfg.ServiceTier = "flex"
	r = NewRunner(cfg, "")
	assert.Equal(t, "10m0s", r.turnTimeout().String())
}

func TestRunAllCollectsAndSaves(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parallel = 2
	r := NewRunner(cfg, "")

	dir := t.TempDir()
	var progressCalls int
	results, metrics, err := r.runAll(context.Background(), 3, dir,
		func(completed, total int) {
			progressCalls++
			assert.Equal(t, 3, total)
		},
		func(_ context.Context, i int) (TaskResult, error) {
			status := StatusCompleted
			if i == 1 {
				status = StatusTaskError
			}
			return TaskResult{
				Index:   i,
				Status:  status,
				History: []HistoryMessage{},
				Time:    NewTaskTime(),
				Result:  &OSResult{Result: i == 0},
			}, nil
		})
	require.NoError(t, err)

	require.Len(t, results, 3)
	for i, result := range results {
		assert.Equal(t, i, result.Index)
	}
	assert.Equal(t, 3, metrics.Total)
	assert.Equal(t, 1, metrics.Passed)
	assert.Equal(t, 3, progressCalls)

	loaded, err := LoadResults(filepath.Join(dir, "runs.jsonl"))
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
	assert.FileExists(t, filepath.Join(dir, "overall.json"))
}

func TestRunAllAbortsOnConsecutiveErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveErrors = 2
	r := NewRunner(cfg, "")

	results, _, err := r.runAll(context.Background(), 10, "", nil,
		func(_ context.Context, i int) (TaskResult, error) {
			return taskErrorResult(i, errors.New("boom")), nil
		})

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, 2, abort.ConsecutiveErrors)
	assert.Contains(t, abort.Message, "consecutive task errors")
	assert.Less(t, len(results), 10)
}
