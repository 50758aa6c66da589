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
	"fmt"
	"sync"

	"github.com/roagent/roagent/pkg/tool"
)

// SubmitHandler captures the agent's final answer. The tool name is
// "commit_final_answer" for database tasks and "answer_action" for OS
// tasks.
type SubmitHandler struct {
	toolName string
	onAnswer func(string)

	mu        sync.Mutex
	answer    string
	submitted bool
}

// NewSubmitHandler creates a submit tool under the given name.
// onAnswer may be nil.
func NewSubmitHandler(toolName string, onAnswer func(string)) *SubmitHandler {
	return &SubmitHandler{toolName: toolName, onAnswer: onAnswer}
}

func (h *SubmitHandler) Name() string {
	return h.toolName
}

func (h *SubmitHandler) Description() string {
	switch h.toolName {
	case "commit_final_answer":
		return "Submit your final answer to the database question. " +
			"Use this when you have determined the answer through SQL queries. " +
			"The answer should be the exact value(s) that answer the question."
	case "answer_action":
		return "Submit your answer to the task. " +
			"Use this when you have found the answer through shell commands. " +
			"The answer should be exact (e.g., a number, filename, or single word)."
	default:
		return "Submit your final answer to complete the task."
	}
}

func (h *SubmitHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"answer": map[string]any{
			"type":        "string",
			"description": "Your final answer to the question or task",
		},
	}, "answer")
}

func (h *SubmitHandler) RequiresApproval() bool {
	return false
}

// Answer returns the submitted answer and whether one was submitted.
func (h *SubmitHandler) Answer() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.answer, h.submitted
}

// Submitted reports whether an answer has been submitted.
func (h *SubmitHandler) Submitted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submitted
}

// Reset clears the captured answer for a new task.
func (h *SubmitHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.answer = ""
	h.submitted = false
}

func (h *SubmitHandler) Execute(_ context.Context, args map[string]any) (*tool.Output, error) {
	answer, _ := args["answer"].(string)
	if answer == "" {
		return tool.Fail("No answer provided. Please provide your answer."), nil
	}

	h.mu.Lock()
	h.answer = answer
	h.submitted = true
	h.mu.Unlock()

	if h.onAnswer != nil {
		h.onAnswer(answer)
	}
	return tool.Succeed(fmt.Sprintf("Answer submitted: %s", answer)).
		WithMetadata(map[string]any{"answer": answer}), nil
}

// FinishHandler lets the agent signal completion of tasks that perform
// an action rather than produce an answer.
type FinishHandler struct {
	onFinish func()

	mu       sync.Mutex
	finished bool
}

// NewFinishHandler creates the finish_action tool. onFinish may be
// nil.
func NewFinishHandler(onFinish func()) *FinishHandler {
	return &FinishHandler{onFinish: onFinish}
}

func (h *FinishHandler) Name() string {
	return "finish_action"
}

func (h *FinishHandler) Description() string {
	return "Indicate that you have completed the task. " +
		"Use this when the task involves performing an action rather than " +
		"finding a specific answer."
}

func (h *FinishHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"message": map[string]any{
			"type":        "string",
			"description": "Optional message describing what was done",
		},
	})
}

func (h *FinishHandler) RequiresApproval() bool {
	return false
}

// Finished reports whether the agent signalled completion.
func (h *FinishHandler) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Reset clears the state for a new task.
func (h *FinishHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = false
}

func (h *FinishHandler) Execute(_ context.Context, args map[string]any) (*tool.Output, error) {
	message, _ := args["message"].(string)
	if message == "" {
		message = "Task completed"
	}

	h.mu.Lock()
	h.finished = true
	h.mu.Unlock()

	if h.onFinish != nil {
		h.onFinish()
	}
	return tool.Succeed(fmt.Sprintf("Task marked as complete: %s", message)), nil
}

var (
	_ tool.Handler = (*SubmitHandler)(nil)
	_ tool.Handler = (*FinishHandler)(nil)
)
