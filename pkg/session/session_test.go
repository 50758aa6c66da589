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

package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roagent/roagent/pkg/model"
)

func TestHistoryOrdering(t *testing.T) {
	s := New("system", nil)
	s.AddUserMessage("hello")
	s.AddAssistantToolCalls([]model.ToolCall{{ID: "call_1", Name: "read"}})
	s.AddToolResults([]ToolResult{{ToolCallID: "call_1", Content: "file contents"}})
	s.AddAssistantMessage("done")

	msgs := s.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, model.RoleTool, msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Equal(t, model.RoleAssistant, msgs[3].Role)
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := New("system", nil)
	s.AddUserMessage("one")

	msgs := s.Messages()
	msgs[0].Content = "mutated"
	assert.Equal(t, "one", s.Messages()[0].Content)
}

func TestTokenUsageAccumulates(t *testing.T) {
	s := New("system", nil)
	s.UpdateTokenUsage(100, 20)
	s.UpdateTokenUsage(50, 10)
	assert.Equal(t, 150, s.TotalInputTokens)
	assert.Equal(t, 30, s.TotalOutputTokens)
}

func TestReplaceWithSummary(t *testing.T) {
	s := New("system", nil)
	s.AddUserMessage("first task")
	s.AddAssistantMessage("working")
	s.AddUserMessage("second task")

	s.ReplaceWithSummary("SUMMARY OF EARLIER WORK", []string{"first task", "second task"})

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.Equal(t, model.RoleUser, m.Role)
	}
	assert.Equal(t, "SUMMARY OF EARLIER WORK", msgs[2].Content)
}

func TestUserMessages(t *testing.T) {
	s := New("system", nil)
	s.AddUserMessage("a")
	s.AddAssistantMessage("x")
	s.AddUserMessage("b")

	assert.Equal(t, []string{"a", "b"}, s.UserMessages())
}

func TestEstimateTokensCharHeuristic(t *testing.T) {
	s := New(strings.Repeat("s", 40), nil)
	s.AddUserMessage(strings.Repeat("u", 40))
	// 80 chars / 4 = 20 tokens.
	assert.Equal(t, 20, s.EstimateTokens())
}

func TestEstimateTokensCountsToolCalls(t *testing.T) {
	s := New("", nil)
	base := s.EstimateTokens()
	s.AddAssistantToolCalls([]model.ToolCall{
		{ID: "call_1", Name: "bash", Arguments: map[string]any{"command": "ls -la /tmp"}},
	})
	assert.Greater(t, s.EstimateTokens(), base)
}

func TestClear(t *testing.T) {
	s := New("system", nil)
	s.AddUserMessage("a")
	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := NewConversationStore(t.TempDir())
	require.NoError(t, err)

	conv := Conversation{
		Model:        "gpt-4o",
		SystemPrompt: "system",
		History: []model.Message{
			{Role: model.RoleUser, Content: "investigate the outage"},
			{Role: model.RoleAssistant, Content: "looking"},
		},
		InputTokens:  120,
		OutputTokens: 30,
	}
	path, err := store.Save(conv, time.Now().Add(-time.Minute), "2025-01-02_03-04-05")
	require.NoError(t, err)
	assert.Contains(t, path, "2025-01-02_03-04-05.json")

	loaded, err := store.Load("2025-01-02_03-04-05")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "gpt-4o", loaded.Model)
	assert.Len(t, loaded.History, 2)
	assert.Equal(t, 120, loaded.InputTokens)
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewConversationStore(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.Load("nope")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStoreListGreatestIDFirst(t *testing.T) {
	store, err := NewConversationStore(t.TempDir())
	require.NoError(t, err)

	// The older id is written last, giving it the newer mtime. Ordering
	// must follow the id, not the file timestamp.
	for _, id := range []string{"2025-01-02_00-00-00", "2025-01-01_00-00-00"} {
		_, err := store.Save(Conversation{
			Model:   "gpt-4o",
			History: []model.Message{{Role: model.RoleUser, Content: "task for " + id}},
		}, time.Now(), id)
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	list, err := store.List(20)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2025-01-02_00-00-00", list[0].ID)
	assert.Equal(t, "task for 2025-01-02_00-00-00", list[0].FirstUserMessage)

	latest, err := store.LatestID()
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02_00-00-00", latest)
}

func TestDisplayPreviewTruncates(t *testing.T) {
	meta := ConversationMetadata{FirstUserMessage: strings.Repeat("x", 80)}
	assert.Equal(t, strings.Repeat("x", 60)+"...", meta.DisplayPreview())
}

func TestStoreSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConversationStore(dir)
	require.NoError(t, err)

	_, err = store.Save(Conversation{Model: "gpt-4o"}, time.Now(), "good")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "bad.json"), []byte("{not json"), 0644))

	list, err := store.List(20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].ID)
}
