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

import "context"

// Exporter persists telemetry to a backend. Implementations handle
// session lifecycle, turn tracking and tool execution recording.
type Exporter interface {
	StartSession(ctx context.Context, tc *TelemetryContext) error
	EndSession(ctx context.Context, tc *TelemetryContext) error
	StartTurn(ctx context.Context, turn *TurnContext) error
	EndTurn(ctx context.Context, turn *TurnContext) error
	RecordToolExecution(ctx context.Context, execution *ToolExecutionContext) error
	Flush(ctx context.Context) error
	Close() error
}

// NoopExporter drops everything. Used when observability is disabled.
type NoopExporter struct{}

func (NoopExporter) StartSession(context.Context, *TelemetryContext) error { return nil }
func (NoopExporter) EndSession(context.Context, *TelemetryContext) error   { return nil }
func (NoopExporter) StartTurn(context.Context, *TurnContext) error         { return nil }
func (NoopExporter) EndTurn(context.Context, *TurnContext) error           { return nil }
func (NoopExporter) RecordToolExecution(context.Context, *ToolExecutionContext) error {
	return nil
}
func (NoopExporter) Flush(context.Context) error { return nil }
func (NoopExporter) Close() error                { return nil }

var _ Exporter = NoopExporter{}

// CompositeExporter fans out to several backends.
type CompositeExporter struct {
	exporters []Exporter
}

// NewCompositeExporter creates a composite over the given exporters.
func NewCompositeExporter(exporters ...Exporter) *CompositeExporter {
	return &CompositeExporter{exporters: exporters}
}

func (c *CompositeExporter) StartSession(ctx context.Context, tc *TelemetryContext) error {
	return c.each(func(e Exporter) error { return e.StartSession(ctx, tc) })
}

func (c *CompositeExporter) EndSession(ctx context.Context, tc *TelemetryContext) error {
	return c.each(func(e Exporter) error { return e.EndSession(ctx, tc) })
}

func (c *CompositeExporter) StartTurn(ctx context.Context, turn *TurnContext) error {
	return c.each(func(e Exporter) error { return e.StartTurn(ctx, turn) })
}

func (c *CompositeExporter) EndTurn(ctx context.Context, turn *TurnContext) error {
	return c.each(func(e Exporter) error { return e.EndTurn(ctx, turn) })
}

func (c *CompositeExporter) RecordToolExecution(ctx context.Context, execution *ToolExecutionContext) error {
	return c.each(func(e Exporter) error { return e.RecordToolExecution(ctx, execution) })
}

func (c *CompositeExporter) Flush(ctx context.Context) error {
	return c.each(func(e Exporter) error { return e.Flush(ctx) })
}

func (c *CompositeExporter) Close() error {
	return c.each(func(e Exporter) error { return e.Close() })
}

// each calls fn on every exporter, returning the first error after
// giving all of them a chance to record.
func (c *CompositeExporter) each(fn func(Exporter) error) error {
	var firstErr error
	for _, e := range c.exporters {
		if err := fn(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Exporter = (*CompositeExporter)(nil)

// NewExporter creates the exporter selected by config. Unknown backend
// types fall back to SQLite.
func NewExporter(ctx context.Context, cfg Config) (Exporter, error) {
	if !cfg.Enabled {
		return NoopExporter{}, nil
	}
	switch cfg.Backend.Type {
	case "otlp":
		return NewOTLPExporter(ctx, cfg)
	default:
		return NewSQLiteExporter(cfg)
	}
}
