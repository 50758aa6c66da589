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
	"strings"
	"time"

	"github.com/roagent/roagent/pkg/tool"
)

const (
	defaultShellTimeout = 120 * time.Second

	// maxShellOutput matches the benchmark's 800 character truncation.
	maxShellOutput = 800
)

// ShellHandler is the bash_action tool: it runs commands inside the
// task's Docker container.
type ShellHandler struct {
	container *Container
	timeout   time.Duration
}

// NewShellHandler creates a shell tool over the container. A zero
// timeout uses the default.
func NewShellHandler(container *Container, timeout time.Duration) *ShellHandler {
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	return &ShellHandler{container: container, timeout: timeout}
}

func (h *ShellHandler) Name() string {
	return "bash_action"
}

func (h *ShellHandler) Description() string {
	return "Execute a shell command in the Linux environment. " +
		"You can run any command to investigate the system, install packages, " +
		"manipulate files, or perform any shell operation needed to complete the task."
}

func (h *ShellHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"command": map[string]any{
			"type":        "string",
			"description": "The shell command to execute",
		},
	}, "command")
}

func (h *ShellHandler) RequiresApproval() bool {
	return false
}

func (h *ShellHandler) Execute(ctx context.Context, args map[string]any) (*tool.Output, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return tool.Fail("No command provided"), nil
	}

	exitCode, stdout, stderr, err := h.container.Execute(ctx, command, h.timeout)
	if err != nil {
		if strings.Contains(err.Error(), "timed out") {
			return tool.Fail(fmt.Sprintf("Command timed out after %d seconds", int(h.timeout.Seconds()))).
				WithMetadata(map[string]any{"timed_out": true}), nil
		}
		return tool.Fail(fmt.Sprintf("Error executing command in container: %s", err)), nil
	}

	var parts []string
	if stdout != "" {
		parts = append(parts, stdout)
	}
	if stderr != "" {
		parts = append(parts, "[stderr]\n"+stderr)
	}
	content := "(no output)"
	if len(parts) > 0 {
		content = strings.Join(parts, "\n")
	}

	if len(content) > maxShellOutput {
		content = content[:maxShellOutput-50] + "\n[truncated because the output is too long]"
	}

	out := tool.Succeed(content)
	out.Success = exitCode == 0
	return out.WithMetadata(map[string]any{
		"exit_code": exitCode,
		"command":   command,
	}), nil
}

var _ tool.Handler = (*ShellHandler)(nil)
