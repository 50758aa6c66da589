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

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roagent/roagent/pkg/model"
)

func sseServer(t *testing.T, lines []string, capture *completionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n\n"))
		}
	}))
}

func collect(t *testing.T, c *Client, messages []model.Message, tools []model.ToolDefinition) []*model.Chunk {
	t.Helper()
	var chunks []*model.Chunk
	for chunk, err := range c.Stream(context.Background(), messages, tools) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestStreamContentDeltas(t *testing.T) {
	var captured completionRequest
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: {"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":2}}`,
		`data: [DONE]`,
	}, &captured)
	defer server.Close()

	client, err := New(Config{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)

	chunks := collect(t, client, []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
	require.Len(t, chunks, 3)
	assert.Equal(t, model.ChunkContent, chunks[0].Type)
	assert.Equal(t, "Hel", chunks[0].Text)
	assert.Equal(t, "lo", chunks[1].Text)
	assert.Equal(t, model.ChunkUsage, chunks[2].Type)
	assert.Equal(t, 10, chunks[2].Usage.PromptTokens)

	assert.True(t, captured.Stream)
	require.NotNil(t, captured.StreamOptions)
	assert.True(t, captured.StreamOptions.IncludeUsage)
}

func TestStreamAssemblesToolCallFragments(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"bash","arguments":"{\"comm"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"and\": \"ls\"}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	}, nil)
	defer server.Close()

	client, err := New(Config{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)

	chunks := collect(t, client, []model.Message{{Role: model.RoleUser, Content: "run ls"}}, nil)
	require.Len(t, chunks, 1)
	require.Equal(t, model.ChunkToolCall, chunks[0].Type)
	assert.Equal(t, "call_1", chunks[0].ToolCall.ID)
	assert.Equal(t, "bash", chunks[0].ToolCall.Name)
	assert.Equal(t, map[string]any{"command": "ls"}, chunks[0].ToolCall.Arguments)
}

func TestStreamMalformedArgumentsBecomeEmptyMap(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"bash","arguments":"{not json"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	}, nil)
	defer server.Close()

	client, err := New(Config{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)

	chunks := collect(t, client, []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, map[string]any{}, chunks[0].ToolCall.Arguments)
}

func TestStreamParallelToolCallsKeepIndexOrder(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"read","arguments":"{}"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"list","arguments":"{}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	}, nil)
	defer server.Close()

	client, err := New(Config{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)

	chunks := collect(t, client, []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)
	require.Len(t, chunks, 2)
	assert.Equal(t, "call_a", chunks[0].ToolCall.ID)
	assert.Equal(t, "call_b", chunks[1].ToolCall.ID)
}

func TestToolAndAssistantMessageConversion(t *testing.T) {
	var captured completionRequest
	server := sseServer(t, []string{`data: [DONE]`}, &captured)
	defer server.Close()

	client, err := New(Config{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)

	messages := []model.Message{
		{Role: model.RoleSystem, Content: "be brief"},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
			{ID: "call_1", Name: "bash", Arguments: map[string]any{"command": "ls"}},
		}},
		{Role: model.RoleTool, ToolCallID: "call_1", Content: "file.txt"},
	}
	collect(t, client, messages, nil)

	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "system", captured.Messages[0].Role)
	require.Len(t, captured.Messages[1].ToolCalls, 1)
	assert.Equal(t, "bash", captured.Messages[1].ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"command":"ls"}`, captured.Messages[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "call_1", captured.Messages[2].ToolCallID)
}

func TestCompleteReturnsMessageContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "summary text"}}},
		})
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), []model.Message{{Role: model.RoleUser, Content: "summarize"}})
	require.NoError(t, err)
	assert.Equal(t, "summary text", out)
}

func TestNonStreamingFallbackEmitsChunkSequence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": "checking",
					"tool_calls": []map[string]any{{
						"id": "call_1", "type": "function",
						"function": map[string]any{"name": "bash", "arguments": `{"command":"ls"}`},
					}},
				},
			}},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 3},
		})
	}))
	defer server.Close()

	// The fallback triggers on the endpoint host.
	client, err := New(Config{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)
	client.baseURL = server.URL
	chunks := collectFallback(t, client)

	require.Len(t, chunks, 3)
	assert.Equal(t, model.ChunkContent, chunks[0].Type)
	assert.Equal(t, model.ChunkToolCall, chunks[1].Type)
	assert.Equal(t, model.ChunkUsage, chunks[2].Type)
}

func collectFallback(t *testing.T, c *Client) []*model.Chunk {
	t.Helper()
	var chunks []*model.Chunk
	for chunk, err := range c.streamViaComplete(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestFallbackDetection(t *testing.T) {
	client, err := New(Config{APIKey: "k", BaseURL: "https://api.cerebras.ai/v1"})
	require.NoError(t, err)
	assert.True(t, client.needsNonStreamingFallback())

	client, err = New(Config{APIKey: "k", BaseURL: "https://api.openai.com/v1"})
	require.NoError(t, err)
	assert.False(t, client.needsNonStreamingFallback())
}
