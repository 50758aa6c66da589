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

// Package signal implements the file-based protocol that coordinates
// running agents across processes.
//
// Signal directory: ~/.config/ro-agent/signals (override with
// RO_AGENT_SIGNAL_DIR).
//
// Protocol:
//   - agent starts:  writes <session_id>.running (JSON: pid, model,
//     instruction preview, started_at)
//   - agent ends:    deletes its .running and .cancel files
//   - kill command:  writes <session_id>.cancel
//   - agent polls:   IsCancelled stats the .cancel file
package signal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// AgentInfo describes a running agent. It is the payload of the
// .running file.
type AgentInfo struct {
	SessionID          string `json:"session_id"`
	PID                int    `json:"pid"`
	Model              string `json:"model"`
	InstructionPreview string `json:"instruction_preview"`
	StartedAt          string `json:"started_at"` // RFC 3339
}

// Manager reads and writes signal files for agent lifecycle
// coordination.
type Manager struct {
	dir string
}

// DefaultDir resolves the signal directory from RO_AGENT_SIGNAL_DIR or
// the user config dir.
func DefaultDir() string {
	if dir := os.Getenv("RO_AGENT_SIGNAL_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ro-agent", "signals")
	}
	return filepath.Join(home, ".config", "ro-agent", "signals")
}

// NewManager creates a manager over dir, creating it if needed. An
// empty dir selects DefaultDir.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create signal dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the signal directory.
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) runningPath(sessionID string) string {
	return filepath.Join(m.dir, sessionID+".running")
}

func (m *Manager) cancelPath(sessionID string) string {
	return filepath.Join(m.dir, sessionID+".cancel")
}

// Register writes the .running file for this agent session.
func (m *Manager) Register(info AgentInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(m.runningPath(info.SessionID), data, 0o644)
}

// Deregister removes the .running and .cancel files for a session.
func (m *Manager) Deregister(sessionID string) {
	os.Remove(m.runningPath(sessionID))
	os.Remove(m.cancelPath(sessionID))
}

// IsCancelled reports whether a .cancel file exists. A single stat
// call, cheap enough to poll between agent steps.
func (m *Manager) IsCancelled(sessionID string) bool {
	_, err := os.Stat(m.cancelPath(sessionID))
	return err == nil
}

// Cancel writes a .cancel file for a running session. Returns false
// when no such session is registered.
func (m *Manager) Cancel(sessionID string) (bool, error) {
	if _, err := os.Stat(m.runningPath(sessionID)); err != nil {
		return false, nil
	}
	if err := os.WriteFile(m.cancelPath(sessionID), nil, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// CancelByPrefix cancels every session whose id starts with prefix and
// returns the cancelled ids.
func (m *Manager) CancelByPrefix(prefix string) ([]string, error) {
	var cancelled []string
	for _, info := range m.ListRunning() {
		if !strings.HasPrefix(info.SessionID, prefix) {
			continue
		}
		if err := os.WriteFile(m.cancelPath(info.SessionID), nil, 0o644); err != nil {
			return cancelled, err
		}
		cancelled = append(cancelled, info.SessionID)
	}
	return cancelled, nil
}

// CancelAll cancels every running session and returns the ids.
func (m *Manager) CancelAll() ([]string, error) {
	return m.CancelByPrefix("")
}

// ListRunning returns every registered agent, most recent first.
// Corrupt .running files are skipped.
func (m *Manager) ListRunning() []AgentInfo {
	matches, err := filepath.Glob(filepath.Join(m.dir, "*.running"))
	if err != nil {
		return nil
	}
	var agents []AgentInfo
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var info AgentInfo
		if err := json.Unmarshal(data, &info); err != nil || info.SessionID == "" {
			continue
		}
		agents = append(agents, info)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].StartedAt > agents[j].StartedAt
	})
	return agents
}

// CleanupStale removes .running files whose PID is no longer alive and
// returns the cleaned-up session ids.
func (m *Manager) CleanupStale() []string {
	var cleaned []string
	for _, info := range m.ListRunning() {
		if pidAlive(info.PID) {
			continue
		}
		m.Deregister(info.SessionID)
		cleaned = append(cleaned, info.SessionID)
	}
	return cleaned
}

// pidAlive probes a PID with signal 0. EPERM means the process exists
// but belongs to someone else.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
