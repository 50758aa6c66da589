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

// Package shelltool provides the bash tool.
//
// In restricted mode commands are validated before execution: dangerous
// substrings are rejected first, then the base command (the first word
// of the first pipeline segment, after any VAR=value prefixes) must be
// on the read-only allowlist. Unrestricted mode executes anything and
// relies on the approval policy instead.
package shelltool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/roagent/roagent/pkg/tool"
)

const (
	restrictedTimeout   = 120 * time.Second
	unrestrictedTimeout = 300 * time.Second
)

// AllowedCommands is the restricted-mode allowlist: inspection and
// read-only utilities only.
var AllowedCommands = map[string]bool{
	"cat": true, "head": true, "tail": true, "less": true, "more": true,
	"grep": true, "rg": true, "ag": true, "ack": true,
	"find": true, "locate": true, "which": true, "whereis": true,
	"ls": true, "tree": true, "du": true, "df": true,
	"file": true, "stat": true, "wc": true,
	"md5": true, "sha256sum": true, "shasum": true,
	"awk": true, "sed": true, "cut": true, "sort": true, "uniq": true,
	"tr": true, "column": true, "fmt": true, "fold": true, "nl": true,
	"pr": true, "expand": true, "unexpand": true,
	"jq": true, "yq": true, "xmllint": true,
	"tar": true, "unzip": true, "zipinfo": true,
	"zcat": true, "zless": true, "zgrep": true, "gzip": true, "gunzip": true,
	"pwd": true, "whoami": true, "hostname": true, "uname": true,
	"env": true, "printenv": true, "date": true, "uptime": true,
	"ps": true, "top": true, "free": true,
	"ping": true, "curl": true, "wget": true,
	"dig": true, "nslookup": true, "host": true, "netstat": true, "ss": true,
	"git": true, "echo": true, "printf": true,
	"diff": true, "cmp": true, "comm": true,
	"hexdump": true, "xxd": true, "od": true, "strings": true,
}

// DangerousPatterns are substrings rejected in restricted mode before
// any allowlist check. Trailing spaces and tabs distinguish commands
// from substrings of harmless words ("form " would not match "rm ").
var DangerousPatterns = []string{
	">", ">>",
	"rm ", "rm\t", "rmdir",
	"mv ", "mv\t",
	"cp ", "cp\t",
	"chmod", "chown", "chgrp",
	"mkdir", "touch", "truncate", "shred",
	"dd ", "dd\t", "mkfs",
	"mount", "umount",
	"kill", "pkill", "killall",
	"reboot", "shutdown", "halt", "poweroff",
	"systemctl", "service",
	"apt", "yum", "dnf",
	"brew ", "pip ", "npm ", "yarn ", "cargo ",
	"sudo", "su ", "su\t", "doas",
}

// Handler executes shell commands through bash -c.
type Handler struct {
	restricted       bool
	workingDir       string
	timeout          time.Duration
	requiresApproval bool
}

// Config configures the bash tool.
type Config struct {
	// Restricted enables allowlist validation.
	Restricted bool

	// WorkingDir is the directory commands run in.
	WorkingDir string

	// Timeout overrides the mode default (120s restricted, 300s not).
	Timeout time.Duration

	// RequiresApproval overrides the default (true when unrestricted).
	RequiresApproval *bool
}

// New creates the bash tool.
func New(cfg Config) *Handler {
	timeout := cfg.Timeout
	if timeout == 0 {
		if cfg.Restricted {
			timeout = restrictedTimeout
		} else {
			timeout = unrestrictedTimeout
		}
	}
	requiresApproval := !cfg.Restricted
	if cfg.RequiresApproval != nil {
		requiresApproval = *cfg.RequiresApproval
	}
	return &Handler{
		restricted:       cfg.Restricted,
		workingDir:       cfg.WorkingDir,
		timeout:          timeout,
		requiresApproval: requiresApproval,
	}
}

func (h *Handler) Name() string {
	return "bash"
}

func (h *Handler) Description() string {
	if h.restricted {
		return "Execute a read-only shell command. Only inspection commands (cat, grep, ls, find, git, curl, ...) are allowed; commands that modify the filesystem are blocked."
	}
	return "Execute a shell command."
}

func (h *Handler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"command": map[string]any{
			"type":        "string",
			"description": "The shell command to execute",
		},
	}, "command")
}

func (h *Handler) RequiresApproval() bool {
	return h.requiresApproval
}

// ValidateCommand checks a command against the restricted-mode rules.
// Returns the reason the command is blocked, or "" when allowed.
func ValidateCommand(command string) string {
	for _, pattern := range DangerousPatterns {
		if strings.Contains(command, pattern) {
			return fmt.Sprintf("Command contains dangerous pattern: %s", pattern)
		}
	}

	base := extractBaseCommand(command)
	if base == "" {
		return "Command is empty"
	}
	if !AllowedCommands[base] {
		return fmt.Sprintf("Command '%s' is not in the allowlist", base)
	}
	return ""
}

// extractBaseCommand returns the executable name of the first pipeline
// segment, skipping VAR=value environment prefixes.
func extractBaseCommand(command string) string {
	segment := command
	for _, sep := range []string{"|", "&&", ";", "||"} {
		if idx := strings.Index(segment, sep); idx >= 0 {
			segment = segment[:idx]
		}
	}
	for _, field := range strings.Fields(segment) {
		if isEnvAssignment(field) {
			continue
		}
		return field
	}
	return ""
}

func isEnvAssignment(field string) bool {
	idx := strings.Index(field, "=")
	if idx <= 0 {
		return false
	}
	for _, r := range field[:idx] {
		if r != '_' && !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9') {
			return false
		}
	}
	return true
}

func (h *Handler) Execute(ctx context.Context, args map[string]any) (*tool.Output, error) {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return tool.Fail("Command is required"), nil
	}

	if h.restricted {
		if reason := ValidateCommand(command); reason != "" {
			return tool.Fail("Command blocked: " + reason).WithMetadata(map[string]any{
				"command": command,
			}), nil
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", command)
	if h.workingDir != "" {
		cmd.Dir = h.workingDir
	}
	// The command runs in its own process group and the whole group is
	// killed on timeout. Killing only bash would leave children alive
	// holding the output pipes, and Run would block until they exit.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// Unblocks Run at the deadline even if a descendant escaped the
	// group and still holds a pipe.
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		return tool.Fail(fmt.Sprintf("Command timed out after %d seconds", int(h.timeout.Seconds()))).
			WithMetadata(map[string]any{
				"command":   command,
				"timed_out": true,
			}), nil
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if runErr != nil && cmd.ProcessState == nil {
		// bash itself failed to start
		return tool.Fail(fmt.Sprintf("Failed to execute command: %s", runErr.Error())), nil
	}

	output := formatOutput(stdout.String(), stderr.String())
	result := &tool.Output{
		Content: output,
		Success: exitCode == 0,
		Metadata: map[string]any{
			"exit_code": exitCode,
			"command":   command,
		},
	}
	return result, nil
}

// formatOutput combines stdout and stderr the way the model sees them.
func formatOutput(stdout, stderr string) string {
	out := stdout
	if stderr != "" {
		if out != "" {
			out += "\n[stderr]\n" + stderr
		} else {
			out = "[stderr]\n" + stderr
		}
	}
	if out == "" {
		return "(no output)"
	}
	return out
}

// Ensure Handler implements tool.Handler.
var _ tool.Handler = (*Handler)(nil)
