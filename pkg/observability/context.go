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

package observability

import (
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
)

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// TelemetryContext tracks one agent invocation. The hierarchy is
// session > turn > tool execution.
type TelemetryContext struct {
	TeamID    string
	ProjectID string

	SessionID string
	AgentID   string

	Environment string // production, staging, development
	Profile     string // capability profile name
	Model       string

	StartedAt time.Time
	EndedAt   time.Time
	Status    string

	TotalTurns        int
	TotalInputTokens  int
	TotalOutputTokens int
	TotalToolCalls    int

	CurrentTurnID    string
	CurrentTurnIndex int

	Metadata map[string]any
}

// NewTelemetryContext creates a session context for the given tenant.
func NewTelemetryContext(cfg Config, model, profile, agentID string) (*TelemetryContext, error) {
	if cfg.Tenant == nil {
		return nil, errors.New("observability config must have tenant information")
	}
	env := os.Getenv("RO_AGENT_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	return &TelemetryContext{
		TeamID:      cfg.Tenant.TeamID,
		ProjectID:   cfg.Tenant.ProjectID,
		SessionID:   uuid.NewString(),
		AgentID:     agentID,
		Environment: env,
		Profile:     profile,
		Model:       model,
		StartedAt:   time.Now().UTC(),
		Status:      StatusActive,
		Metadata:    map[string]any{},
	}, nil
}

// StartTurn allocates a turn id and bumps the counters.
func (c *TelemetryContext) StartTurn() string {
	c.CurrentTurnIndex++
	c.CurrentTurnID = uuid.NewString()
	c.TotalTurns++
	return c.CurrentTurnID
}

// EndTurn clears the current turn.
func (c *TelemetryContext) EndTurn() {
	c.CurrentTurnID = ""
}

// RecordTokens adds to the session token totals.
func (c *TelemetryContext) RecordTokens(inputTokens, outputTokens int) {
	c.TotalInputTokens += inputTokens
	c.TotalOutputTokens += outputTokens
}

// RecordToolCall bumps the tool call counter.
func (c *TelemetryContext) RecordToolCall() {
	c.TotalToolCalls++
}

// EndSession marks the session ended with the given status.
func (c *TelemetryContext) EndSession(status string) {
	c.EndedAt = time.Now().UTC()
	c.Status = status
}

// TurnContext tracks one user input / response cycle.
type TurnContext struct {
	TurnID       string
	SessionID    string
	TurnIndex    int
	StartedAt    time.Time
	EndedAt      time.Time
	InputTokens  int
	OutputTokens int
	ToolCalls    int
	UserInput    string
}

// End marks the turn ended.
func (t *TurnContext) End() {
	t.EndedAt = time.Now().UTC()
}

// ToolExecutionContext tracks one tool call.
type ToolExecutionContext struct {
	ExecutionID string
	TurnID      string
	ToolName    string
	Arguments   map[string]any
	Result      string
	Success     bool
	Error       string
	StartedAt   time.Time
	EndedAt     time.Time
	DurationMS  int64
}

// NewToolExecution starts tracking a tool call.
func NewToolExecution(turnID, toolName string, arguments map[string]any) *ToolExecutionContext {
	return &ToolExecutionContext{
		ExecutionID: uuid.NewString(),
		TurnID:      turnID,
		ToolName:    toolName,
		Arguments:   arguments,
		Success:     true,
		StartedAt:   time.Now().UTC(),
	}
}

// End marks the execution finished and computes its duration.
func (e *ToolExecutionContext) End(success bool, errMsg string) {
	e.EndedAt = time.Now().UTC()
	e.Success = success
	e.Error = errMsg
	e.DurationMS = e.EndedAt.Sub(e.StartedAt).Milliseconds()
}
