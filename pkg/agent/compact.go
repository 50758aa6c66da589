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

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/roagent/roagent/pkg/model"
)

// Max characters to store in history per tool result (roughly 5-8k
// tokens).
const MaxToolOutputChars = 20000

const (
	// DefaultContextLimit is the assumed context window in tokens.
	DefaultContextLimit = 100_000

	// autoCompactThreshold triggers compaction at this fraction of the
	// context limit.
	autoCompactThreshold = 0.8
)

const compactionSystemPrompt = `You are performing a CONTEXT CHECKPOINT COMPACTION. Create a handoff summary for another LLM that will resume the task.

Include:
- Current progress and key decisions made
- Important context, constraints, or user preferences discovered
- What remains to be done (clear next steps)
- Any critical data, file paths, or references needed to continue

Be concise, structured, and focused on helping the next LLM seamlessly continue the work.`

const summaryPrefix = `Another language model worked on this task and produced a summary of its progress. Use this to build on the work that has already been done and avoid duplicating effort. Here is the summary:

`

// TruncateOutput caps tool output with a head+tail strategy so error
// messages at the end of output survive.
func TruncateOutput(content string, maxChars int) string {
	if len(content) <= maxChars {
		return content
	}
	half := maxChars / 2
	elided := len(content) - maxChars
	return content[:half] + fmt.Sprintf("\n\n[... %d chars elided ...]\n\n", elided) + content[len(content)-half:]
}

// CompactResult reports a compaction operation.
type CompactResult struct {
	Summary      string
	TokensBefore int
	TokensAfter  int
	Trigger      string // "manual" or "auto"
}

// Compact summarizes the conversation history and replaces it with the
// summary plus the most recent user messages.
func (a *Agent) Compact(ctx context.Context, customInstructions, trigger string) (*CompactResult, error) {
	tokensBefore := a.session.EstimateTokens()

	system := compactionSystemPrompt
	if customInstructions != "" {
		system += "\n\nUser guidance: " + customInstructions
	}

	messages := []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: "Here is the conversation to summarize:\n\n" + a.formatHistoryForSummary()},
	}

	summary, err := a.client.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("compaction: %w", err)
	}

	// Preserve the last few user messages so the immediate task
	// survives verbatim.
	userMessages := a.session.UserMessages()
	var recent []string
	if len(userMessages) > 3 {
		recent = userMessages[len(userMessages)-3:]
	}
	a.session.ReplaceWithSummary(summaryPrefix+summary, recent)

	return &CompactResult{
		Summary:      summary,
		TokensBefore: tokensBefore,
		TokensAfter:  a.session.EstimateTokens(),
		Trigger:      trigger,
	}, nil
}

// formatHistoryForSummary renders history as plain text for the
// summarization prompt. Tool results are clipped to 500 chars.
func (a *Agent) formatHistoryForSummary() string {
	var parts []string
	for _, msg := range a.session.Messages() {
		switch msg.Role {
		case model.RoleUser:
			parts = append(parts, "User: "+msg.Content)
		case model.RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "Assistant: "+msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, "Assistant called tool: "+tc.Name)
			}
		case model.RoleTool:
			result := msg.Content
			if len(result) > 500 {
				result = result[:500] + "..."
			}
			parts = append(parts, "Tool result: "+result)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ShouldAutoCompact reports whether the history estimate crossed the
// compaction threshold.
func (a *Agent) ShouldAutoCompact() bool {
	if !a.autoCompact {
		return false
	}
	threshold := int(float64(a.contextLimit) * autoCompactThreshold)
	return a.session.EstimateTokens() > threshold
}
