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

package shelltool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommandAllowsReadOnly(t *testing.T) {
	for _, command := range []string{
		"ls -la",
		"cat file.txt",
		"grep -r pattern .",
		"git log --oneline",
		"find . -name '*.go'",
		"du -sh .",
	} {
		assert.Empty(t, ValidateCommand(command), command)
	}
}

func TestValidateCommandBlocksDangerousPatterns(t *testing.T) {
	cases := map[string]string{
		"rm -rf /tmp/x":         "rm ",
		"cat a > b":             ">",
		"sudo ls":               "sudo",
		"mkdir /tmp/new":        "mkdir",
		"ls; touch /tmp/x":      "touch",
		"echo hi | npm install": "npm ",
	}
	for command, pattern := range cases {
		reason := ValidateCommand(command)
		assert.Equal(t, "Command contains dangerous pattern: "+pattern, reason, command)
	}
}

func TestValidateCommandBlocksUnlistedCommands(t *testing.T) {
	reason := ValidateCommand("python script.py")
	assert.Equal(t, "Command 'python' is not in the allowlist", reason)
}

func TestValidateCommandChecksFirstPipelineSegment(t *testing.T) {
	// Only the base command of the first segment is checked.
	assert.Empty(t, ValidateCommand("cat f.txt | sort | uniq"))
	assert.Equal(t, "Command 'python' is not in the allowlist", ValidateCommand("python x.py | cat"))
}

func TestValidateCommandSkipsEnvAssignments(t *testing.T) {
	assert.Empty(t, ValidateCommand("LC_ALL=C sort data.txt"))
	assert.Equal(t, "Command 'perl' is not in the allowlist", ValidateCommand("FOO=bar perl x.pl"))
}

func TestExecuteCapturesOutput(t *testing.T) {
	h := New(Config{Restricted: true})
	out, err := h.Execute(context.Background(), map[string]any{"command": "echo hello"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "hello\n", out.Content)
	assert.Equal(t, 0, out.Metadata["exit_code"])
}

func TestExecuteCombinesStderr(t *testing.T) {
	h := New(Config{Restricted: true})
	out, err := h.Execute(context.Background(), map[string]any{"command": "echo out; echo err 1>&2"})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "out\n")
	assert.Contains(t, out.Content, "[stderr]\nerr")
}

func TestExecuteNoOutputPlaceholder(t *testing.T) {
	h := New(Config{Restricted: false})
	out, err := h.Execute(context.Background(), map[string]any{"command": "true"})
	require.NoError(t, err)
	assert.Equal(t, "(no output)", out.Content)
}

func TestExecuteReportsNonZeroExit(t *testing.T) {
	h := New(Config{Restricted: false})
	out, err := h.Execute(context.Background(), map[string]any{"command": "ls /definitely/not/here"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.NotEqual(t, 0, out.Metadata["exit_code"])
}

func TestExecuteBlockedCommandInRestrictedMode(t *testing.T) {
	h := New(Config{Restricted: true})
	out, err := h.Execute(context.Background(), map[string]any{"command": "rm -rf /"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "Command blocked:")
}

func TestExecuteTimeout(t *testing.T) {
	h := New(Config{Restricted: false, Timeout: 100 * time.Millisecond})
	out, err := h.Execute(context.Background(), map[string]any{"command": "sleep 5"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "timed out")
	assert.Equal(t, true, out.Metadata["timed_out"])
}

func TestExecuteTimeoutKillsProcessTree(t *testing.T) {
	// sleep is a child of the bash the tool spawns; it must not survive
	// the deadline and keep Execute blocked on the output pipe.
	h := New(Config{Restricted: false, Timeout: time.Second})
	start := time.Now()
	out, err := h.Execute(context.Background(), map[string]any{"command": "sleep 15; echo done"})
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Less(t, elapsed, 5*time.Second)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "timed out")
	assert.Equal(t, true, out.Metadata["timed_out"])
}

func TestExecuteTimeoutKillsBackgroundChildren(t *testing.T) {
	h := New(Config{Restricted: false, Timeout: 500 * time.Millisecond})
	start := time.Now()
	out, err := h.Execute(context.Background(), map[string]any{"command": "sleep 15 & wait"})
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Less(t, elapsed, 5*time.Second)
	assert.False(t, out.Success)
	assert.Equal(t, true, out.Metadata["timed_out"])
}

func TestExecuteWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	h := New(Config{Restricted: true, WorkingDir: dir})
	out, err := h.Execute(context.Background(), map[string]any{"command": "pwd"})
	require.NoError(t, err)
	assert.Contains(t, out.Content, dir)
}

func TestRequiresApprovalByMode(t *testing.T) {
	assert.False(t, New(Config{Restricted: true}).RequiresApproval())
	assert.True(t, New(Config{Restricted: false}).RequiresApproval())
}
