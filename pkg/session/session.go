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

// Package session holds conversation state: message history, token
// accounting and saved-conversation storage.
package session

import (
	"encoding/json"

	"github.com/roagent/roagent/pkg/model"
)

// ToolResult pairs a tool call id with the output to append to
// history.
type ToolResult struct {
	ToolCallID string
	Content    string
}

// Session manages conversation state and history.
//
// History is stored in the provider's message format so it can be
// replayed to the model verbatim.
type Session struct {
	SystemPrompt      string
	TotalInputTokens  int
	TotalOutputTokens int

	history   []model.Message
	estimator Estimator
}

// New creates a session. A nil estimator falls back to the chars/4
// heuristic.
func New(systemPrompt string, estimator Estimator) *Session {
	if estimator == nil {
		estimator = CharEstimator{}
	}
	return &Session{SystemPrompt: systemPrompt, estimator: estimator}
}

// AddUserMessage appends a user message to history.
func (s *Session) AddUserMessage(content string) {
	s.history = append(s.history, model.Message{Role: model.RoleUser, Content: content})
}

// AddAssistantMessage appends an assistant text message.
func (s *Session) AddAssistantMessage(content string) {
	s.history = append(s.history, model.Message{Role: model.RoleAssistant, Content: content})
}

// AddAssistantToolCalls appends an assistant message carrying tool
// calls.
func (s *Session) AddAssistantToolCalls(calls []model.ToolCall) {
	s.history = append(s.history, model.Message{Role: model.RoleAssistant, ToolCalls: calls})
}

// AddToolResults appends one tool message per result.
func (s *Session) AddToolResults(results []ToolResult) {
	for _, r := range results {
		s.history = append(s.history, model.Message{
			Role:       model.RoleTool,
			ToolCallID: r.ToolCallID,
			Content:    r.Content,
		})
	}
}

// LoadHistory replaces the history and token totals, used when
// resuming a saved conversation. The session behaves as if it had
// accumulated the history itself.
func (s *Session) LoadHistory(history []model.Message, inputTokens, outputTokens int) {
	s.history = append([]model.Message(nil), history...)
	s.TotalInputTokens = inputTokens
	s.TotalOutputTokens = outputTokens
}

// UpdateTokenUsage adds provider-reported usage to the running totals.
func (s *Session) UpdateTokenUsage(inputTokens, outputTokens int) {
	s.TotalInputTokens += inputTokens
	s.TotalOutputTokens += outputTokens
}

// Messages returns a copy of the history in API order.
func (s *Session) Messages() []model.Message {
	out := make([]model.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of history messages.
func (s *Session) Len() int {
	return len(s.history)
}

// Clear drops the conversation history.
func (s *Session) Clear() {
	s.history = nil
}

// ReplaceWithSummary replaces history with recent user messages plus
// the compaction summary, appended as a user message.
func (s *Session) ReplaceWithSummary(summary string, recentUserMessages []string) {
	s.history = nil
	for _, msg := range recentUserMessages {
		s.history = append(s.history, model.Message{Role: model.RoleUser, Content: msg})
	}
	s.history = append(s.history, model.Message{Role: model.RoleUser, Content: summary})
}

// UserMessages extracts the content of every non-empty user message.
func (s *Session) UserMessages() []string {
	var out []string
	for _, m := range s.history {
		if m.Role == model.RoleUser && m.Content != "" {
			out = append(out, m.Content)
		}
	}
	return out
}

// EstimateTokens estimates the token footprint of the system prompt
// plus history.
func (s *Session) EstimateTokens() int {
	total := s.estimator.Count(s.SystemPrompt)
	for _, m := range s.history {
		if m.Content != "" {
			total += s.estimator.Count(m.Content)
		}
		if len(m.ToolCalls) > 0 {
			if raw, err := json.Marshal(m.ToolCalls); err == nil {
				total += s.estimator.Count(string(raw))
			}
		}
	}
	return total
}
