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

// Package observability captures telemetry for agent sessions: turns,
// tool executions and token usage, exported to SQLite or OTLP and
// surfaced as Prometheus metrics.
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTelemetryDB returns the SQLite telemetry path, honoring the
// RO_AGENT_TELEMETRY_DB override.
func DefaultTelemetryDB() string {
	if path := os.Getenv("RO_AGENT_TELEMETRY_DB"); path != "" {
		return expandHome(path)
	}
	return filepath.Join(configDir(), "telemetry.db")
}

// DefaultConfigFile returns the default observability config path.
func DefaultConfigFile() string {
	return filepath.Join(configDir(), "observability.yaml")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ro-agent")
	}
	return filepath.Join(home, ".config", "ro-agent")
}

// TenantConfig identifies who the telemetry belongs to.
type TenantConfig struct {
	TeamID    string `yaml:"team_id"`
	ProjectID string `yaml:"project_id"`
}

// SqliteBackendConfig configures the SQLite backend.
type SqliteBackendConfig struct {
	Path string `yaml:"path"`
}

// OtlpBackendConfig configures the OTLP backend.
type OtlpBackendConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`
}

// BackendConfig selects and configures the telemetry backend.
type BackendConfig struct {
	Type   string              `yaml:"type"` // "sqlite" or "otlp"
	Sqlite SqliteBackendConfig `yaml:"sqlite"`
	Otlp   OtlpBackendConfig   `yaml:"otlp"`
}

// CaptureConfig controls what gets recorded.
type CaptureConfig struct {
	Traces        bool `yaml:"traces"`
	Metrics       bool `yaml:"metrics"`
	ToolArguments bool `yaml:"tool_arguments"`
	// Tool results can be large so they stay off unless asked for.
	ToolResults bool `yaml:"tool_results"`
}

// Config is the main observability configuration.
type Config struct {
	Enabled bool          `yaml:"enabled"`
	Tenant  *TenantConfig `yaml:"tenant"`
	Backend BackendConfig `yaml:"backend"`
	Capture CaptureConfig `yaml:"capture"`
}

// DefaultConfig returns the enabled defaults: SQLite backend, traces
// and metrics on, tool results off.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Backend: BackendConfig{
			Type:   "sqlite",
			Sqlite: SqliteBackendConfig{Path: DefaultTelemetryDB()},
			Otlp:   OtlpBackendConfig{Endpoint: "http://localhost:4317", Insecure: true},
		},
		Capture: CaptureConfig{Traces: true, Metrics: true, ToolArguments: true},
	}
}

// fileConfig mirrors the YAML document. Pointers distinguish absent
// keys from explicit zero values so defaults survive partial files.
type fileConfig struct {
	Enabled *bool         `yaml:"enabled"`
	Tenant  *TenantConfig `yaml:"tenant"`
	Backend *struct {
		Type   *string              `yaml:"type"`
		Sqlite *SqliteBackendConfig `yaml:"sqlite"`
		Otlp   *struct {
			Endpoint *string           `yaml:"endpoint"`
			Insecure *bool             `yaml:"insecure"`
			Headers  map[string]string `yaml:"headers"`
		} `yaml:"otlp"`
	} `yaml:"backend"`
	Capture *struct {
		Traces        *bool `yaml:"traces"`
		Metrics       *bool `yaml:"metrics"`
		ToolArguments *bool `yaml:"tool_arguments"`
		ToolResults   *bool `yaml:"tool_results"`
	} `yaml:"capture"`
}

// FromYAML loads config from a YAML file. The document may nest
// everything under a top-level "observability" key or sit at the root.
func FromYAML(path string) (Config, error) {
	path = expandHome(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config file not found: %s", path)
		}
		return Config{}, err
	}

	var wrapper struct {
		Observability *fileConfig `yaml:"observability"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Config{}, fmt.Errorf("parse observability config: %w", err)
	}

	fc := wrapper.Observability
	if fc == nil {
		fc = &fileConfig{}
		if err := yaml.Unmarshal(data, fc); err != nil {
			return Config{}, fmt.Errorf("parse observability config: %w", err)
		}
	}
	return fc.apply(DefaultConfig()), nil
}

func (fc *fileConfig) apply(cfg Config) Config {
	if fc.Enabled != nil {
		cfg.Enabled = *fc.Enabled
	}
	if fc.Tenant != nil {
		cfg.Tenant = fc.Tenant
	}
	if fc.Backend != nil {
		if fc.Backend.Type != nil {
			cfg.Backend.Type = *fc.Backend.Type
		}
		if fc.Backend.Sqlite != nil && fc.Backend.Sqlite.Path != "" {
			cfg.Backend.Sqlite.Path = expandHome(fc.Backend.Sqlite.Path)
		}
		if fc.Backend.Otlp != nil {
			if fc.Backend.Otlp.Endpoint != nil {
				cfg.Backend.Otlp.Endpoint = *fc.Backend.Otlp.Endpoint
			}
			if fc.Backend.Otlp.Insecure != nil {
				cfg.Backend.Otlp.Insecure = *fc.Backend.Otlp.Insecure
			}
			if fc.Backend.Otlp.Headers != nil {
				cfg.Backend.Otlp.Headers = fc.Backend.Otlp.Headers
			}
		}
	}
	if fc.Capture != nil {
		if fc.Capture.Traces != nil {
			cfg.Capture.Traces = *fc.Capture.Traces
		}
		if fc.Capture.Metrics != nil {
			cfg.Capture.Metrics = *fc.Capture.Metrics
		}
		if fc.Capture.ToolArguments != nil {
			cfg.Capture.ToolArguments = *fc.Capture.ToolArguments
		}
		if fc.Capture.ToolResults != nil {
			cfg.Capture.ToolResults = *fc.Capture.ToolResults
		}
	}
	return cfg
}

// FromEnv builds config from CLI arguments falling back to
// RO_AGENT_TEAM_ID / RO_AGENT_PROJECT_ID. Without both tenant values
// observability stays disabled.
func FromEnv(teamID, projectID string) (Config, error) {
	if teamID == "" {
		teamID = os.Getenv("RO_AGENT_TEAM_ID")
	}
	if projectID == "" {
		projectID = os.Getenv("RO_AGENT_PROJECT_ID")
	}
	if teamID == "" || projectID == "" {
		return Config{Enabled: false}, nil
	}

	tenant := &TenantConfig{TeamID: teamID, ProjectID: projectID}

	path := os.Getenv("RO_AGENT_OBSERVABILITY_CONFIG")
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile()); err == nil {
			path = DefaultConfigFile()
		}
	}
	if path != "" {
		cfg, err := FromYAML(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Tenant = tenant
		return cfg, nil
	}

	cfg := DefaultConfig()
	cfg.Tenant = tenant
	return cfg, nil
}

// Load resolves config with precedence: explicit path, then CLI args,
// then environment, then defaults.
func Load(configPath, teamID, projectID string) (Config, error) {
	if configPath == "" {
		return FromEnv(teamID, projectID)
	}
	cfg, err := FromYAML(configPath)
	if err != nil {
		return Config{}, err
	}
	if teamID == "" {
		teamID = os.Getenv("RO_AGENT_TEAM_ID")
	}
	if projectID == "" {
		projectID = os.Getenv("RO_AGENT_PROJECT_ID")
	}
	if teamID != "" && projectID != "" {
		cfg.Tenant = &TenantConfig{TeamID: teamID, ProjectID: projectID}
	}
	return cfg, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
