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
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roagent/roagent/pkg/tool"
)

const (
	// defaultMaxLines caps how much of a file one read returns.
	defaultMaxLines = 500
	// maxLineLength caps single-line payloads.
	maxLineLength = 500
)

// binaryExtensions are rejected up front; the model should use shell
// utilities (file, strings) or read_excel for these.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true, ".svg": true, ".tiff": true, ".tif": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".mkv": true, ".flac": true, ".ogg": true, ".webm": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
	".7z": true, ".rar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".o": true,
	".a": true, ".pyc": true, ".pyo": true, ".class": true, ".wasm": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true, ".eot": true,
	".bin": true, ".dat": true, ".db": true, ".sqlite": true, ".sqlite3": true,
}

// ReadHandler reads file contents with optional line ranges.
type ReadHandler struct{}

// NewRead creates the read tool.
func NewRead() *ReadHandler {
	return &ReadHandler{}
}

func (h *ReadHandler) Name() string {
	return "read"
}

func (h *ReadHandler) Description() string {
	return "Read the contents of a file. Use this to inspect source code, logs, config files, etc. Supports reading specific line ranges for large files."
}

func (h *ReadHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Absolute path to the file to read",
		},
		"start_line": map[string]any{
			"type":        "integer",
			"description": "First line to read (1-indexed, inclusive). Defaults to 1.",
		},
		"end_line": map[string]any{
			"type":        "integer",
			"description": fmt.Sprintf("Last line to read (1-indexed, inclusive). Defaults to start_line + %d.", defaultMaxLines),
		},
	}, "path")
}

func (h *ReadHandler) RequiresApproval() bool {
	return false
}

func (h *ReadHandler) Execute(_ context.Context, args map[string]any) (*tool.Output, error) {
	pathStr, _ := args["path"].(string)
	if pathStr == "" {
		return tool.Fail("No path provided"), nil
	}
	path := resolvePath(pathStr)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return tool.Fail(fmt.Sprintf("File not found: %s", path)), nil
	}
	if err != nil {
		return tool.Fail(fmt.Sprintf("Error reading file: %s", err)), nil
	}
	if info.IsDir() {
		return tool.Fail(fmt.Sprintf("Not a file: %s", path)), nil
	}

	suffix := strings.ToLower(filepath.Ext(path))
	if binaryExtensions[suffix] {
		return tool.Fail(fmt.Sprintf(
			"Cannot read binary file: %s (%s files are not text-readable). Use shell commands like 'file' or 'strings' for binary inspection.",
			path, suffix)), nil
	}

	startLine := intArg(args, "start_line", 1)
	if startLine < 1 {
		startLine = 1
	}
	endLine := intArg(args, "end_line", startLine+defaultMaxLines-1)

	file, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return tool.Fail(fmt.Sprintf("Permission denied: %s", path)), nil
		}
		return tool.Fail(fmt.Sprintf("Error reading file: %s", err)), nil
	}
	defer file.Close()

	var outputLines []string
	totalLines := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		totalLines++
		if totalLines < startLine {
			continue
		}
		if totalLines > endLine {
			// Keep counting for the footer.
			continue
		}
		formatted := strings.TrimRight(scanner.Text(), " \t\r\n")
		if len(formatted) > maxLineLength {
			formatted = formatted[:maxLineLength] + "..."
		}
		outputLines = append(outputLines, fmt.Sprintf("%6d  %s", totalLines, formatted))
	}
	if err := scanner.Err(); err != nil {
		return tool.Fail(fmt.Sprintf("Error reading file: %s", err)), nil
	}

	if totalLines < startLine {
		return tool.Fail(fmt.Sprintf("Start line %d exceeds file length (%d lines)", startLine, totalLines)), nil
	}

	endIdx := endLine
	if totalLines < endIdx {
		endIdx = totalLines
	}

	content := strings.Join(outputLines, "\n")
	if endIdx < totalLines {
		content += fmt.Sprintf("\n\n[Showing lines %d-%d of %d]", startLine, endIdx, totalLines)
	}

	return tool.Succeed(content).WithMetadata(map[string]any{
		"path":        path,
		"start_line":  startLine,
		"end_line":    endIdx,
		"total_lines": totalLines,
	}), nil
}

// intArg reads an integer argument, tolerating float64 from JSON.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

var _ tool.Handler = (*ReadHandler)(nil)
