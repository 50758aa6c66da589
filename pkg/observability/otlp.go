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
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ro-agent"

// OTLPExporter ships sessions, turns and tool executions as spans to
// an OTLP collector. The session span is the root, turns nest under
// it, tool executions under their turn.
type OTLPExporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	capture  CaptureConfig

	mu          sync.Mutex
	sessionSpan trace.Span
	sessionCtx  context.Context
	turnSpans   map[string]trace.Span
	turnCtxs    map[string]context.Context
}

// NewOTLPExporter connects to the configured endpoint.
func NewOTLPExporter(ctx context.Context, cfg Config) (*OTLPExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Backend.Otlp.Endpoint),
	}
	if cfg.Backend.Otlp.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Backend.Otlp.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Backend.Otlp.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(tracerName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	return &OTLPExporter{
		provider:  provider,
		tracer:    provider.Tracer(tracerName),
		capture:   cfg.Capture,
		turnSpans: map[string]trace.Span{},
		turnCtxs:  map[string]context.Context{},
	}, nil
}

func (e *OTLPExporter) StartSession(ctx context.Context, tc *TelemetryContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	spanCtx, span := e.tracer.Start(ctx, "agent.session",
		trace.WithTimestamp(tc.StartedAt),
		trace.WithAttributes(
			attribute.String("session.id", tc.SessionID),
			attribute.String("tenant.team_id", tc.TeamID),
			attribute.String("tenant.project_id", tc.ProjectID),
			attribute.String("agent.model", tc.Model),
			attribute.String("agent.profile", tc.Profile),
			attribute.String("agent.environment", tc.Environment),
		),
	)
	e.sessionSpan = span
	e.sessionCtx = spanCtx
	return nil
}

func (e *OTLPExporter) EndSession(_ context.Context, tc *TelemetryContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionSpan == nil {
		return nil
	}
	e.sessionSpan.SetAttributes(
		attribute.Int("session.total_turns", tc.TotalTurns),
		attribute.Int("session.total_input_tokens", tc.TotalInputTokens),
		attribute.Int("session.total_output_tokens", tc.TotalOutputTokens),
		attribute.Int("session.total_tool_calls", tc.TotalToolCalls),
	)
	if tc.Status == StatusError {
		e.sessionSpan.SetStatus(codes.Error, "session ended with error")
	}
	e.sessionSpan.End(trace.WithTimestamp(tc.EndedAt))
	e.sessionSpan = nil
	e.sessionCtx = nil
	return nil
}

func (e *OTLPExporter) StartTurn(ctx context.Context, turn *TurnContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	parent := ctx
	if e.sessionCtx != nil {
		parent = e.sessionCtx
	}
	spanCtx, span := e.tracer.Start(parent, "agent.turn",
		trace.WithTimestamp(turn.StartedAt),
		trace.WithAttributes(
			attribute.String("turn.id", turn.TurnID),
			attribute.Int("turn.index", turn.TurnIndex),
		),
	)
	e.turnSpans[turn.TurnID] = span
	e.turnCtxs[turn.TurnID] = spanCtx
	return nil
}

func (e *OTLPExporter) EndTurn(_ context.Context, turn *TurnContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	span, ok := e.turnSpans[turn.TurnID]
	if !ok {
		return nil
	}
	span.SetAttributes(
		attribute.Int("turn.input_tokens", turn.InputTokens),
		attribute.Int("turn.output_tokens", turn.OutputTokens),
		attribute.Int("turn.tool_calls", turn.ToolCalls),
	)
	span.End(trace.WithTimestamp(turn.EndedAt))
	delete(e.turnSpans, turn.TurnID)
	delete(e.turnCtxs, turn.TurnID)
	return nil
}

func (e *OTLPExporter) RecordToolExecution(ctx context.Context, exec *ToolExecutionContext) error {
	e.mu.Lock()
	parent := ctx
	if turnCtx, ok := e.turnCtxs[exec.TurnID]; ok {
		parent = turnCtx
	}
	e.mu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("tool.name", exec.ToolName),
		attribute.Bool("tool.success", exec.Success),
		attribute.Int64("tool.duration_ms", exec.DurationMS),
	}
	if e.capture.ToolArguments && len(exec.Arguments) > 0 {
		if raw, err := json.Marshal(exec.Arguments); err == nil {
			attrs = append(attrs, attribute.String("tool.arguments", string(raw)))
		}
	}
	if e.capture.ToolResults && exec.Result != "" {
		attrs = append(attrs, attribute.String("tool.result", exec.Result))
	}

	_, span := e.tracer.Start(parent, "tool."+exec.ToolName,
		trace.WithTimestamp(exec.StartedAt),
		trace.WithAttributes(attrs...),
	)
	if !exec.Success {
		span.SetStatus(codes.Error, exec.Error)
	}
	span.End(trace.WithTimestamp(exec.EndedAt))
	return nil
}

func (e *OTLPExporter) Flush(ctx context.Context) error {
	return e.provider.ForceFlush(ctx)
}

func (e *OTLPExporter) Close() error {
	return e.provider.Shutdown(context.Background())
}

var _ Exporter = (*OTLPExporter)(nil)
