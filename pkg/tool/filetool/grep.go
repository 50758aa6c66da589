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
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/roagent/roagent/pkg/tool"
)

const defaultMaxMatches = 100

// GrepHandler searches file contents using ripgrep.
type GrepHandler struct {
	rgPath string
}

// NewGrep creates the grep tool.
func NewGrep() *GrepHandler {
	rgPath, _ := exec.LookPath("rg")
	return &GrepHandler{rgPath: rgPath}
}

func (h *GrepHandler) Name() string {
	return "grep"
}

func (h *GrepHandler) Description() string {
	return "Search for a pattern in file contents. Returns matching lines with file paths and line numbers."
}

func (h *GrepHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"pattern": map[string]any{
			"type":        "string",
			"description": "Text or regex pattern to search for in file contents (e.g., 'ERROR', 'connection failed', 'error|warning')",
		},
		"path": map[string]any{
			"type":        "string",
			"description": "File or directory to search in (absolute path)",
		},
		"glob": map[string]any{
			"type":        "string",
			"description": "Glob pattern to filter which files to search (e.g., '*.py', '*.log', '*.yaml')",
		},
		"ignore_case": map[string]any{
			"type":        "boolean",
			"description": "Case-insensitive search. Defaults to false.",
		},
		"context_lines": map[string]any{
			"type":        "integer",
			"description": "Lines of context before and after each match. Defaults to 0.",
		},
		"max_matches": map[string]any{
			"type":        "integer",
			"description": fmt.Sprintf("Maximum total matches to return. Defaults to %d.", defaultMaxMatches),
		},
	}, "pattern", "path")
}

func (h *GrepHandler) RequiresApproval() bool {
	return false
}

func (h *GrepHandler) Execute(ctx context.Context, args map[string]any) (*tool.Output, error) {
	if h.rgPath == "" {
		return tool.Fail("ripgrep (rg) is not installed. Install it with: brew install ripgrep (macOS) or apt install ripgrep (Linux)"), nil
	}

	pattern, _ := args["pattern"].(string)
	pathStr, _ := args["path"].(string)
	globPattern, _ := args["glob"].(string)
	ignoreCase, _ := args["ignore_case"].(bool)
	contextLines := intArg(args, "context_lines", 0)
	maxMatches := intArg(args, "max_matches", defaultMaxMatches)

	if pattern == "" {
		return tool.Fail("No pattern provided"), nil
	}
	if pathStr == "" {
		return tool.Fail("No path provided"), nil
	}
	path := resolvePath(pathStr)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return tool.Fail(fmt.Sprintf("Path not found: %s", path)), nil
	}

	cmdArgs := []string{"--line-number", "--with-filename", "--no-heading", "--color=never"}
	if ignoreCase {
		cmdArgs = append(cmdArgs, "--ignore-case")
	}
	if contextLines > 0 {
		cmdArgs = append(cmdArgs, "--context", strconv.Itoa(contextLines))
	}
	if globPattern != "" && info != nil && info.IsDir() {
		cmdArgs = append(cmdArgs, "--glob", globPattern)
	}
	for _, g := range excludeGlobs {
		cmdArgs = append(cmdArgs, "--glob", g)
	}
	cmdArgs = append(cmdArgs, pattern, path)

	stdout, stderr, timedOut, exitCode := runSearch(ctx, h.rgPath, cmdArgs)
	if timedOut {
		return tool.Fail(fmt.Sprintf("Search timed out after %d seconds", int(searchTimeout.Seconds()))), nil
	}
	// rg exits 1 when nothing matched.
	if exitCode != 0 && exitCode != 1 {
		return tool.Fail(fmt.Sprintf("Search failed: %s", strings.TrimSpace(stderr))), nil
	}

	if strings.TrimSpace(stdout) == "" {
		return tool.Succeed("No matches found").WithMetadata(map[string]any{"matches": 0}), nil
	}

	lines := strings.Split(stdout, "\n")
	matchCount := 0
	truncated := false
	var resultLines []string

	for _, line := range lines {
		if line == "" {
			resultLines = append(resultLines, line)
			continue
		}
		if strings.Contains(line, ":") && !isContextLine(line) {
			matchCount++
			if matchCount > maxMatches {
				truncated = true
				break
			}
		}
		resultLines = append(resultLines, line)
	}

	result := strings.Join(resultLines, "\n")
	if truncated {
		result += fmt.Sprintf("\n\n[Showing %d of %d+ matches, truncated]", maxMatches, matchCount)
	} else {
		result += fmt.Sprintf("\n\n[%d matches]", matchCount)
	}

	shown := matchCount
	if shown > maxMatches {
		shown = maxMatches
	}
	return tool.Succeed(result).WithMetadata(map[string]any{
		"matches":   shown,
		"truncated": truncated,
	}), nil
}

// isContextLine distinguishes rg context lines (file-line-content) from
// match lines (file:line:content) by which separator follows the
// filename first.
func isContextLine(line string) bool {
	firstColon := strings.Index(line, ":")
	if firstColon == -1 {
		return true
	}
	rest := line[firstColon+1:]
	dashPos := strings.Index(rest, "-")
	colonPos := strings.Index(rest, ":")

	switch {
	case dashPos == -1 && colonPos == -1:
		return true
	case dashPos == -1:
		return false
	case colonPos == -1:
		return true
	default:
		return dashPos < colonPos
	}
}

var _ tool.Handler = (*GrepHandler)(nil)
