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
	"path/filepath"
	"strings"

	"github.com/roagent/roagent/pkg/tool"
)

// sensitivePatterns are blocked in create-only mode.
var sensitivePatterns = []string{
	".bashrc", ".zshrc", ".profile", ".bash_profile",
	".ssh/", ".gnupg/", ".aws/", ".config/",
	"/etc/", "/usr/", "/bin/", "/sbin/",
}

// WriteHandler writes file contents.
//
// In create-only mode it refuses overwrites and sensitive paths, and
// requires approval; full mode relies on the sandbox instead.
type WriteHandler struct {
	createOnly       bool
	requiresApproval bool
}

// WriteConfig configures the write tool.
type WriteConfig struct {
	CreateOnly bool

	// RequiresApproval overrides the default (true for create-only).
	RequiresApproval *bool
}

// NewWrite creates the write tool.
func NewWrite(cfg WriteConfig) *WriteHandler {
	requiresApproval := cfg.CreateOnly
	if cfg.RequiresApproval != nil {
		requiresApproval = *cfg.RequiresApproval
	}
	return &WriteHandler{
		createOnly:       cfg.CreateOnly,
		requiresApproval: requiresApproval,
	}
}

func (h *WriteHandler) Name() string {
	return "write"
}

func (h *WriteHandler) Description() string {
	if h.createOnly {
		return "Write content to a new file. Use this when the user asks you to produce an output file such as a summary, report, script, or document. Cannot overwrite existing files."
	}
	return "Write content to a file. Creates the file if it doesn't exist, or overwrites it if it does. Creates parent directories as needed."
}

func (h *WriteHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Absolute path where the file should be written",
		},
		"content": map[string]any{
			"type":        "string",
			"description": "Content to write to the file",
		},
	}, "path", "content")
}

func (h *WriteHandler) RequiresApproval() bool {
	return h.requiresApproval
}

func (h *WriteHandler) Execute(_ context.Context, args map[string]any) (*tool.Output, error) {
	pathStr, _ := args["path"].(string)
	content, _ := args["content"].(string)

	if pathStr == "" {
		return tool.Fail("No path provided"), nil
	}
	if content == "" {
		return tool.Fail("No content provided"), nil
	}
	path := resolvePath(pathStr)

	existed := false
	if _, err := os.Stat(path); err == nil {
		existed = true
	}

	if h.createOnly {
		lower := strings.ToLower(path)
		for _, pattern := range sensitivePatterns {
			if strings.Contains(lower, pattern) {
				return tool.Fail(fmt.Sprintf("Cannot write to sensitive location: %s", path)), nil
			}
		}
		if existed {
			return tool.Fail(fmt.Sprintf("File already exists: %s. Use a different path or delete the existing file first.", path)), nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return tool.Fail(fmt.Sprintf("Error writing file: %s", err)), nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		if os.IsPermission(err) {
			return tool.Fail(fmt.Sprintf("Permission denied: %s", path)), nil
		}
		return tool.Fail(fmt.Sprintf("Error writing file: %s", err)), nil
	}

	size := len(content)
	lines := strings.Count(content, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		lines++
	}

	action := "Created"
	if !h.createOnly && existed {
		action = "Overwrote"
	}

	return tool.Succeed(fmt.Sprintf("%s %s (%d bytes, %d lines)", action, path, size, lines)).
		WithMetadata(map[string]any{
			"path":       path,
			"size_bytes": size,
			"lines":      lines,
			"overwrote":  existed && !h.createOnly,
		}), nil
}

var _ tool.Handler = (*WriteHandler)(nil)
