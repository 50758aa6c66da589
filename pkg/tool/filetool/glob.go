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

package filetool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/roagent/roagent/pkg/tool"
)

const (
	defaultMaxResults = 100
	searchTimeout     = 30 * time.Second
)

// GlobHandler finds files by name pattern using ripgrep.
type GlobHandler struct {
	rgPath string
}

// NewGlob creates the glob tool.
func NewGlob() *GlobHandler {
	rgPath, _ := exec.LookPath("rg")
	return &GlobHandler{rgPath: rgPath}
}

func (h *GlobHandler) Name() string {
	return "glob"
}

func (h *GlobHandler) Description() string {
	return "Find files by name or path pattern. Returns a list of matching file paths."
}

func (h *GlobHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"pattern": map[string]any{
			"type":        "string",
			"description": "Glob pattern to match file names (e.g., '*.py', '*.log', 'config.*', '**/*.yaml')",
		},
		"path": map[string]any{
			"type":        "string",
			"description": "Directory to search in (absolute path)",
		},
		"max_results": map[string]any{
			"type":        "integer",
			"description": fmt.Sprintf("Maximum files to return. Defaults to %d.", defaultMaxResults),
		},
	}, "pattern", "path")
}

func (h *GlobHandler) RequiresApproval() bool {
	return false
}

func (h *GlobHandler) Execute(ctx context.Context, args map[string]any) (*tool.Output, error) {
	if h.rgPath == "" {
		return tool.Fail("ripgrep (rg) is not installed. Install it with: brew install ripgrep (macOS) or apt install ripgrep (Linux)"), nil
	}

	pattern, _ := args["pattern"].(string)
	pathStr, _ := args["path"].(string)
	maxResults := intArg(args, "max_results", defaultMaxResults)

	if pattern == "" {
		return tool.Fail("No pattern provided"), nil
	}
	if pathStr == "" {
		return tool.Fail("No path provided"), nil
	}
	path := resolvePath(pathStr)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return tool.Fail(fmt.Sprintf("Directory not found: %s", path)), nil
	}
	if err == nil && !info.IsDir() {
		return tool.Fail(fmt.Sprintf("Not a directory: %s", path)), nil
	}

	cmdArgs := []string{"--files", "--glob", pattern}
	for _, g := range excludeGlobs {
		cmdArgs = append(cmdArgs, "--glob", g)
	}
	cmdArgs = append(cmdArgs, path)

	stdout, stderr, timedOut, exitCode := runSearch(ctx, h.rgPath, cmdArgs)
	if timedOut {
		return tool.Fail(fmt.Sprintf("Search timed out after %d seconds", int(searchTimeout.Seconds()))), nil
	}
	// rg --files exits 1 when nothing matched.
	if exitCode != 0 && exitCode != 1 {
		return tool.Fail(fmt.Sprintf("Find failed: %s", strings.TrimSpace(stderr))), nil
	}

	output := strings.TrimSpace(stdout)
	if output == "" {
		return tool.Succeed("No files found matching pattern").WithMetadata(map[string]any{"matches": 0}), nil
	}

	lines := strings.Split(output, "\n")
	totalFound := len(lines)
	truncated := totalFound > maxResults
	if truncated {
		lines = lines[:maxResults]
	}

	results := make([]string, 0, len(lines))
	for _, line := range lines {
		if rel, err := filepath.Rel(path, line); err == nil && !strings.HasPrefix(rel, "..") {
			results = append(results, rel)
		} else {
			results = append(results, line)
		}
	}

	result := strings.Join(results, "\n")
	if truncated {
		result += fmt.Sprintf("\n\n[Showing %d of %d files]", maxResults, totalFound)
	} else {
		result += fmt.Sprintf("\n\n[%d files found]", totalFound)
	}

	return tool.Succeed(result).WithMetadata(map[string]any{
		"matches": len(results),
		"total":   totalFound,
	}), nil
}

// runSearch executes a ripgrep invocation with the shared timeout.
func runSearch(ctx context.Context, rgPath string, args []string) (stdout, stderr string, timedOut bool, exitCode int) {
	execCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, rgPath, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if execCtx.Err() == context.DeadlineExceeded {
		return "", "", true, -1
	}
	exitCode = 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return outBuf.String(), err.Error(), false, -1
	}
	return outBuf.String(), errBuf.String(), false, exitCode
}

var _ tool.Handler = (*GlobHandler)(nil)
