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

// Package eval runs benchmark tasks through the agent and scores the
// answers. Two tracks are supported: database question answering
// (SQLite for reads, a MySQL container for mutations) and OS
// interaction inside Docker containers. Results are written
// incrementally in AgentBench-compatible files.
package eval

import (
	"time"
)

// TaskStatus classifies how a task run ended. The string values match
// the AgentBench output format.
type TaskStatus string

const (
	StatusCompleted        TaskStatus = "completed"
	StatusContextLimit     TaskStatus = "agent context limit"
	StatusValidationFailed TaskStatus = "agent validation failed"
	StatusInvalidAction    TaskStatus = "agent invalid action"
	StatusTaskLimitReached TaskStatus = "task limit reached"
	StatusTaskError        TaskStatus = "task error"
	StatusUnknown          TaskStatus = "unknown"
)

// AbortError stops a whole evaluation run, raised after repeated
// consecutive failures rather than a single bad task.
type AbortError struct {
	Message           string
	ConsecutiveErrors int
}

func (e *AbortError) Error() string {
	return e.Message
}

// Config controls an evaluation run.
type Config struct {
	// Model is the model name requests are made with.
	Model string

	// BaseURL overrides the API endpoint. Empty uses the provider
	// default.
	BaseURL string

	// APIKey authenticates model requests.
	APIKey string

	// MaxTurns caps the conversation turns per task.
	MaxTurns int

	// Parallel is the number of tasks run concurrently.
	Parallel int

	// OutputDir receives runs.jsonl, overall.json and summary.txt.
	OutputDir string

	// SystemPromptFile overrides the built-in system prompts.
	SystemPromptFile string

	// Verbose enables progress output.
	Verbose bool

	// MaxConsecutiveErrors aborts the run after this many task errors
	// in a row.
	MaxConsecutiveErrors int

	// ServiceTier is the provider service tier ("flex", "auto" or
	// empty). Flex requests may queue server-side, so turn timeouts
	// are extended.
	ServiceTier string
}

// DefaultConfig returns the standard evaluation settings.
func DefaultConfig() Config {
	return Config{
		Model:                "gpt-5-mini",
		MaxTurns:             20,
		Parallel:             1,
		MaxConsecutiveErrors: 5,
	}
}

// TaskTime records when a task finished, in both machine and human
// form.
type TaskTime struct {
	Timestamp int64  `json:"timestamp"`
	Str       string `json:"str"`
}

// NewTaskTime captures the current time.
func NewTaskTime() TaskTime {
	now := time.Now()
	return TaskTime{
		Timestamp: now.Unix(),
		Str:       now.Format("2006-01-02 15:04:05"),
	}
}

// DBBenchResult scores one database task.
type DBBenchResult struct {
	IsCorrect bool `json:"is_correct"`

	// Answer is the submitted answer; nil when the agent never
	// submitted one.
	Answer *string `json:"answer"`

	// GroundTruth is the expected answer list for SELECT tasks, or the
	// expected table hash for mutations.
	GroundTruth any `json:"ground_truth"`

	StdSQL string `json:"std_sql"`
	Type   string `json:"type"`
}

// OSResult scores one OS interaction task.
type OSResult struct {
	Result bool `json:"result"`
}

// HistoryMessage is one conversation entry in a task record.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TaskResult is the full record of one task run.
type TaskResult struct {
	Index   int              `json:"index"`
	Status  TaskStatus       `json:"status"`
	History []HistoryMessage `json:"history"`
	Time    TaskTime         `json:"time"`

	// Result is a *DBBenchResult or *OSResult depending on the track.
	Result any `json:"result,omitempty"`

	Error string `json:"error,omitempty"`
}

// Correct reports whether the task's result scored as correct.
func (r *TaskResult) Correct() bool {
	switch res := r.Result.(type) {
	case *DBBenchResult:
		return res.IsCorrect
	case *OSResult:
		return res.Result
	default:
		return false
	}
}

// Metrics aggregates results across a run. Not safe for concurrent
// use; the runner funnels results through a single collector.
type Metrics struct {
	Total  int
	Passed int
	Failed int

	Completed        int
	ContextLimit     int
	ValidationFailed int
	InvalidAction    int
	TaskLimitReached int
	TaskError        int
	Unknown          int

	HistoryLengths []int
}

// AddResult folds one task result into the totals.
func (m *Metrics) AddResult(result TaskResult, correct bool) {
	m.Total++
	if correct {
		m.Passed++
	} else {
		m.Failed++
	}

	switch result.Status {
	case StatusCompleted:
		m.Completed++
	case StatusContextLimit:
		m.ContextLimit++
	case StatusValidationFailed:
		m.ValidationFailed++
	case StatusInvalidAction:
		m.InvalidAction++
	case StatusTaskLimitReached:
		m.TaskLimitReached++
	case StatusTaskError:
		m.TaskError++
	default:
		m.Unknown++
	}

	m.HistoryLengths = append(m.HistoryLengths, len(result.History))
}

// Accuracy is the pass rate.
func (m *Metrics) Accuracy() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Passed) / float64(m.Total)
}

// AverageHistoryLength averages the conversation lengths.
func (m *Metrics) AverageHistoryLength() float64 {
	if len(m.HistoryLengths) == 0 {
		return 0
	}
	sum := 0
	for _, n := range m.HistoryLengths {
		sum += n
	}
	return float64(sum) / float64(len(m.HistoryLengths))
}

// MaxHistoryLength is the longest conversation seen.
func (m *Metrics) MaxHistoryLength() int {
	max := 0
	for _, n := range m.HistoryLengths {
		if n > max {
			max = n
		}
	}
	return max
}

// MinHistoryLength is the shortest conversation seen.
func (m *Metrics) MinHistoryLength() int {
	if len(m.HistoryLengths) == 0 {
		return 0
	}
	min := m.HistoryLengths[0]
	for _, n := range m.HistoryLengths[1:] {
		if n < min {
			min = n
		}
	}
	return min
}

// Summary renders the AgentBench-compatible overall document.
func (m *Metrics) Summary() map[string]any {
	frac := func(n int) float64 {
		if m.Total == 0 {
			return 0
		}
		return float64(n) / float64(m.Total)
	}
	return map[string]any{
		"total": m.Total,
		"validation": map[string]any{
			"completed":               frac(m.Completed),
			"agent context limit":     frac(m.ContextLimit),
			"agent validation failed": frac(m.ValidationFailed),
			"agent invalid action":    frac(m.InvalidAction),
			"task limit reached":      frac(m.TaskLimitReached),
			"task error":              frac(m.TaskError),
			"unknown":                 frac(m.Unknown),
			"average_history_length":  m.AverageHistoryLength(),
			"max_history_length":      m.MaxHistoryLength(),
			"min_history_length":      m.MinHistoryLength(),
		},
		"custom": map[string]any{
			"overall": map[string]any{
				"total": m.Total,
				"pass":  m.Passed,
				"wrong": m.Failed,
				"acc":   m.Accuracy(),
			},
		},
	}
}
