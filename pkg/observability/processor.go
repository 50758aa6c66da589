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
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/roagent/roagent/pkg/agent"
)

// Processor wraps agent event streams to capture telemetry. Events
// pass through unchanged; metrics and exporter records are produced as
// a side effect.
type Processor struct {
	config   Config
	context  *TelemetryContext
	exporter Exporter
	metrics  *Metrics

	currentTurn *TurnContext
	pendingTool *ToolExecutionContext
}

// NewProcessor creates a processor over the given exporter. A nil
// metrics disables instrument recording.
func NewProcessor(cfg Config, tc *TelemetryContext, exporter Exporter, metrics *Metrics) *Processor {
	return &Processor{config: cfg, context: tc, exporter: exporter, metrics: metrics}
}

// CreateProcessor resolves config, context and exporter in one step.
// Returns nil when observability is disabled or no tenant is set.
func CreateProcessor(ctx context.Context, cfg Config, model, profile string, metrics *Metrics) (*Processor, error) {
	if !cfg.Enabled || cfg.Tenant == nil {
		return nil, nil
	}
	tc, err := NewTelemetryContext(cfg, model, profile, "")
	if err != nil {
		return nil, err
	}
	exporter, err := NewExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewProcessor(cfg, tc, exporter, metrics), nil
}

// Context returns the telemetry context.
func (p *Processor) Context() *TelemetryContext {
	return p.context
}

// StartSession records the session start.
func (p *Processor) StartSession(ctx context.Context) error {
	return p.exporter.StartSession(ctx, p.context)
}

// EndSession records the session end and closes the exporter.
func (p *Processor) EndSession(ctx context.Context, status string) error {
	p.context.EndSession(status)
	if err := p.exporter.EndSession(ctx, p.context); err != nil {
		return err
	}
	return p.exporter.Close()
}

// WrapTurn wraps a turn's event stream. It creates a turn record,
// tracks tool_start/tool_end pairs, captures token usage from
// turn_complete and yields every event unchanged.
func (p *Processor) WrapTurn(ctx context.Context, events iter.Seq[agent.Event], userInput string) iter.Seq[agent.Event] {
	return func(yield func(agent.Event) bool) {
		turnID := p.context.StartTurn()
		p.currentTurn = &TurnContext{
			TurnID:    turnID,
			SessionID: p.context.SessionID,
			TurnIndex: p.context.CurrentTurnIndex,
			UserInput: userInput,
			StartedAt: time.Now().UTC(),
		}
		if err := p.exporter.StartTurn(ctx, p.currentTurn); err != nil {
			slog.Warn("Telemetry start_turn failed", "error", err)
		}
		defer p.endTurn(ctx)

		for event := range events {
			p.processEvent(ctx, event)
			if !yield(event) {
				return
			}
			switch event.Type {
			case agent.EventTurnComplete, agent.EventCancelled, agent.EventError:
				return
			}
		}
	}
}

func (p *Processor) endTurn(ctx context.Context) {
	if p.currentTurn == nil {
		return
	}
	p.currentTurn.End()
	if err := p.exporter.EndTurn(ctx, p.currentTurn); err != nil {
		slog.Warn("Telemetry end_turn failed", "error", err)
	}
	if p.metrics != nil && p.config.Capture.Metrics {
		p.metrics.RecordTurn(p.currentTurn.InputTokens, p.currentTurn.OutputTokens)
	}
	p.context.EndTurn()
	p.currentTurn = nil
}

func (p *Processor) processEvent(ctx context.Context, event agent.Event) {
	switch event.Type {
	case agent.EventToolStart:
		args := event.ToolArgs
		if !p.config.Capture.ToolArguments {
			args = nil
		}
		p.pendingTool = NewToolExecution(p.turnID(), event.ToolName, args)
		p.context.RecordToolCall()
		if p.currentTurn != nil {
			p.currentTurn.ToolCalls++
		}

	case agent.EventToolEnd:
		if p.pendingTool == nil {
			return
		}
		p.pendingTool.End(true, "")
		if p.config.Capture.ToolResults {
			p.pendingTool.Result = event.ToolResult
		}
		p.recordTool(ctx)

	case agent.EventToolBlocked:
		if p.pendingTool == nil {
			return
		}
		p.pendingTool.End(false, "Blocked by user")
		p.recordTool(ctx)

	case agent.EventTurnComplete:
		if event.Usage == nil || p.currentTurn == nil {
			return
		}
		// The event carries cumulative session totals; record the
		// per-turn delta.
		deltaInput := event.Usage.TotalInputTokens - p.context.TotalInputTokens
		deltaOutput := event.Usage.TotalOutputTokens - p.context.TotalOutputTokens
		p.currentTurn.InputTokens = deltaInput
		p.currentTurn.OutputTokens = deltaOutput
		p.context.RecordTokens(deltaInput, deltaOutput)

	case agent.EventError:
		if p.pendingTool == nil {
			return
		}
		p.pendingTool.End(false, event.Content)
		p.recordTool(ctx)
	}
}

func (p *Processor) recordTool(ctx context.Context) {
	if err := p.exporter.RecordToolExecution(ctx, p.pendingTool); err != nil {
		slog.Warn("Telemetry tool record failed", "tool", p.pendingTool.ToolName, "error", err)
	}
	if p.metrics != nil && p.config.Capture.Metrics {
		p.metrics.RecordToolExecution(
			p.pendingTool.ToolName,
			p.pendingTool.Success,
			float64(p.pendingTool.DurationMS)/1000,
		)
	}
	p.pendingTool = nil
}

func (p *Processor) turnID() string {
	if p.currentTurn != nil {
		return p.currentTurn.TurnID
	}
	return ""
}
