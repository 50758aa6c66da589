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
	"strings"

	"github.com/roagent/roagent/pkg/tool"
)

// EditHandler makes surgical edits using search-and-replace.
//
// The edit is atomic: if the search string isn't found (or isn't
// unique), the file is not modified and an error is returned. Matching
// strategies, in order:
//
//  1. Exact match
//  2. Whitespace-normalized match (trailing whitespace ignored)
//  3. Indentation-flexible match (leading whitespace normalized, new
//     content reindented to the matched block)
type EditHandler struct {
	requiresApproval bool
}

// NewEdit creates the edit tool. Approval defaults to off; the tool is
// only registered under full write access, where the sandbox is the
// safety boundary.
func NewEdit(requiresApproval bool) *EditHandler {
	return &EditHandler{requiresApproval: requiresApproval}
}

func (h *EditHandler) Name() string {
	return "edit"
}

func (h *EditHandler) Description() string {
	return "Make a surgical edit to a file by replacing a specific string with new content. The old_string must uniquely identify the location to edit. Include enough context (surrounding lines) to make the match unique. For multiple edits to the same file, call this tool multiple times."
}

func (h *EditHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path to the file to edit",
		},
		"old_string": map[string]any{
			"type":        "string",
			"description": "The exact string to find and replace. Must be unique in the file. Include surrounding lines for context if needed.",
		},
		"new_string": map[string]any{
			"type":        "string",
			"description": "The string to replace old_string with",
		},
	}, "path", "old_string", "new_string")
}

func (h *EditHandler) RequiresApproval() bool {
	return h.requiresApproval
}

func (h *EditHandler) Execute(_ context.Context, args map[string]any) (*tool.Output, error) {
	pathStr, _ := args["path"].(string)
	oldString, _ := args["old_string"].(string)
	newString, _ := args["new_string"].(string)

	if pathStr == "" {
		return tool.Fail("No path provided"), nil
	}
	if oldString == "" {
		return tool.Fail("No old_string provided"), nil
	}
	path := resolvePath(pathStr)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return tool.Fail(fmt.Sprintf("File not found: %s", path)), nil
	}
	if err == nil && info.IsDir() {
		return tool.Fail(fmt.Sprintf("Not a file: %s", path)), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return tool.Fail(fmt.Sprintf("Error reading file: %s", err)), nil
	}

	newContent, matchInfo, ok := applyEdit(string(raw), oldString, newString)
	if !ok {
		return tool.Fail(matchInfo), nil
	}

	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		return tool.Fail(fmt.Sprintf("Error writing file: %s", err)), nil
	}
	return tool.Succeed(fmt.Sprintf("Edited %s: %s", path, matchInfo)).
		WithMetadata(map[string]any{"path": path}), nil
}

// applyEdit applies the edit with fuzzy matching. On failure the
// returned string is the error message.
func applyEdit(content, oldString, newString string) (string, string, bool) {
	// Strategy 1: exact match.
	count := strings.Count(content, oldString)
	if count == 1 {
		return strings.Replace(content, oldString, newString, 1), "exact match", true
	}
	if count > 1 {
		return "", fmt.Sprintf("old_string appears %d times (must be unique). Add more context.", count), false
	}

	lines := strings.Split(content, "\n")
	oldLines := strings.Split(oldString, "\n")

	// Strategy 2: whitespace-normalized sliding window.
	matched, n := findWindows(lines, oldLines, normalizeWhitespace)
	if n == 1 {
		return strings.Replace(content, matched, newString, 1), "whitespace-normalized match", true
	}
	if n > 1 {
		return "", fmt.Sprintf("Found %d whitespace-normalized matches (must be unique)", n), false
	}

	// Strategy 3: indentation-flexible match; reindent the replacement
	// to the matched block.
	matched, n = findWindows(lines, oldLines, normalizeIndentation)
	if n == 1 {
		return strings.Replace(content, matched, reindent(newString, matched), 1), "indentation-flexible match", true
	}
	if n > 1 {
		return "", fmt.Sprintf("Found %d indentation-flexible matches (must be unique)", n), false
	}

	return "", "old_string not found in file. Check for typos or add more context.", false
}

// findWindows slides a window of len(oldLines) lines over the file and
// counts windows equal to oldString under the given normalization.
// Returns the first matched window verbatim.
func findWindows(lines, oldLines []string, normalize func(string) string) (string, int) {
	target := normalize(strings.Join(oldLines, "\n"))
	var first string
	count := 0
	for i := 0; i+len(oldLines) <= len(lines); i++ {
		window := strings.Join(lines[i:i+len(oldLines)], "\n")
		if normalize(window) == target {
			if count == 0 {
				first = window
			}
			count++
		}
	}
	return first, count
}

// normalizeWhitespace strips trailing whitespace from each line.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// normalizeIndentation strips leading whitespace from each line.
func normalizeIndentation(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimLeft(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// reindent applies the matched block's base indentation to newString
// while preserving the replacement's relative indentation.
func reindent(newString, matched string) string {
	matchedLines := strings.Split(matched, "\n")
	newLines := strings.Split(newString, "\n")
	if len(matchedLines) == 0 || len(newLines) == 0 {
		return newString
	}

	firstLine := matchedLines[0]
	baseIndent := firstLine[:len(firstLine)-len(strings.TrimLeft(firstLine, " \t"))]

	// The minimum indentation of non-empty replacement lines is the
	// base that relative indentation is measured from.
	minNewIndent := -1
	for _, line := range newLines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if minNewIndent < 0 || indent < minNewIndent {
			minNewIndent = indent
		}
	}
	if minNewIndent < 0 {
		minNewIndent = 0
	}

	result := make([]string, 0, len(newLines))
	for _, line := range newLines {
		if strings.TrimSpace(line) == "" {
			result = append(result, line)
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		relative := indent - minNewIndent
		result = append(result, baseIndent+strings.Repeat(" ", relative)+strings.TrimLeft(line, " \t"))
	}
	return strings.Join(result, "\n")
}

var _ tool.Handler = (*EditHandler)(nil)
