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
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-level Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal     prometheus.Counter
	ToolExecutions *prometheus.CounterVec
	InputTokens    prometheus.Counter
	OutputTokens   prometheus.Counter
	ToolDuration   *prometheus.HistogramVec
}

// NewMetrics creates a registry with the agent instruments plus the
// standard Go collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		TurnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ro_agent_turns_total",
			Help: "Total conversation turns run.",
		}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ro_agent_tool_executions_total",
			Help: "Total tool executions by tool and outcome.",
		}, []string{"tool", "status"}),
		InputTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "ro_agent_input_tokens_total",
			Help: "Total input tokens sent to the model.",
		}),
		OutputTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "ro_agent_output_tokens_total",
			Help: "Total output tokens produced by the model.",
		}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ro_agent_tool_duration_seconds",
			Help:    "Tool execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}
}

// Registry returns the backing registry, for tests and custom
// collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr. Blocks until the listener fails.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}

// RecordTurn counts a completed turn and its token delta.
func (m *Metrics) RecordTurn(inputTokens, outputTokens int) {
	m.TurnsTotal.Inc()
	m.InputTokens.Add(float64(inputTokens))
	m.OutputTokens.Add(float64(outputTokens))
}

// RecordToolExecution counts one tool execution.
func (m *Metrics) RecordToolExecution(tool string, success bool, durationSeconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(durationSeconds)
}
