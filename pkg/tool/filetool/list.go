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
	"sort"
	"strings"

	"github.com/roagent/roagent/pkg/tool"
)

// defaultMaxEntries caps listing output.
const defaultMaxEntries = 200

// ListHandler lists directory contents, flat or as a tree.
type ListHandler struct{}

// NewList creates the list tool.
func NewList() *ListHandler {
	return &ListHandler{}
}

func (h *ListHandler) Name() string {
	return "list"
}

func (h *ListHandler) Description() string {
	return "List the contents of a single directory. Shows file names, sizes, and modification times."
}

func (h *ListHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Absolute path to the directory to list",
		},
		"show_hidden": map[string]any{
			"type":        "boolean",
			"description": "Include hidden files (starting with '.'). Defaults to false.",
		},
		"recursive": map[string]any{
			"type":        "boolean",
			"description": "List recursively (tree view). Defaults to false.",
		},
		"max_depth": map[string]any{
			"type":        "integer",
			"description": "Max depth for recursive listing. Defaults to 3.",
		},
	}, "path")
}

func (h *ListHandler) RequiresApproval() bool {
	return false
}

func (h *ListHandler) Execute(_ context.Context, args map[string]any) (*tool.Output, error) {
	pathStr, _ := args["path"].(string)
	showHidden, _ := args["show_hidden"].(bool)
	recursive, _ := args["recursive"].(bool)
	maxDepth := intArg(args, "max_depth", 3)

	if pathStr == "" {
		return tool.Fail("No path provided"), nil
	}
	path := resolvePath(pathStr)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return tool.Fail(fmt.Sprintf("Directory not found: %s", path)), nil
	}
	if err != nil {
		return tool.Fail(fmt.Sprintf("Error listing directory: %s", err)), nil
	}
	if !info.IsDir() {
		return tool.Fail(fmt.Sprintf("Not a directory: %s", path)), nil
	}

	var content string
	var itemCount int
	if recursive {
		var lines []string
		itemCount = listTree(path, showHidden, maxDepth, "", 0, &lines)
		content = strings.Join(lines, "\n")
		if content == "" {
			content = "(empty directory)"
		}
	} else {
		content, itemCount, err = listFlat(path, showHidden)
		if err != nil {
			if os.IsPermission(err) {
				return tool.Fail(fmt.Sprintf("Permission denied: %s", path)), nil
			}
			return tool.Fail(fmt.Sprintf("Error listing directory: %s", err)), nil
		}
	}

	return tool.Succeed(content).WithMetadata(map[string]any{
		"path":       path,
		"recursive":  recursive,
		"item_count": itemCount,
	}), nil
}

// sortEntries orders directories first, then names case-insensitively.
func sortEntries(entries []os.DirEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})
}

func listFlat(path string, showHidden bool) (string, int, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", 0, err
	}
	sortEntries(entries)

	var lines []string
	itemCount := 0
	for _, entry := range entries {
		if !showHidden && strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		itemCount++

		info, err := entry.Info()
		if err != nil {
			lines = append(lines, fmt.Sprintf("??????????  ?         ?                 %s", entry.Name()))
			continue
		}

		mode := info.Mode().String()
		mtime := info.ModTime().Format("2006-01-02 15:04")

		name := entry.Name()
		sizeStr := "-"
		switch {
		case entry.IsDir():
			name += "/"
		case info.Mode()&os.ModeSymlink != 0:
			if target, err := os.Readlink(filepath.Join(path, entry.Name())); err == nil {
				name += " -> " + target
			}
		default:
			sizeStr = formatSize(info.Size())
		}

		lines = append(lines, fmt.Sprintf("%s  %8s  %s  %s", mode, sizeStr, mtime, name))

		if len(lines) >= defaultMaxEntries {
			lines = append(lines, fmt.Sprintf("\n[Truncated at %d entries]", defaultMaxEntries))
			break
		}
	}

	if len(lines) == 0 {
		return "(empty directory)", 0, nil
	}
	return strings.Join(lines, "\n"), itemCount, nil
}

func listTree(path string, showHidden bool, maxDepth int, prefix string, depth int, lines *[]string) int {
	if depth > maxDepth {
		return 0
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		*lines = append(*lines, prefix+"[permission denied]")
		return 0
	}
	sortEntries(entries)

	if !showHidden {
		visible := entries[:0]
		for _, e := range entries {
			if !strings.HasPrefix(e.Name(), ".") {
				visible = append(visible, e)
			}
		}
		entries = visible
	}

	itemCount := 0
	for i, entry := range entries {
		isLast := i == len(entries)-1
		connector := "├── "
		childPrefix := prefix + "│   "
		if isLast {
			connector = "└── "
			childPrefix = prefix + "    "
		}
		itemCount++

		if entry.IsDir() {
			*lines = append(*lines, prefix+connector+entry.Name()+"/")
			if depth < maxDepth {
				itemCount += listTree(filepath.Join(path, entry.Name()), showHidden, maxDepth, childPrefix, depth+1, lines)
			}
		} else {
			sizeStr := "?"
			if info, err := entry.Info(); err == nil {
				sizeStr = formatSize(info.Size())
			}
			*lines = append(*lines, fmt.Sprintf("%s%s%s (%s)", prefix, connector, entry.Name(), sizeStr))
		}

		if len(*lines) >= defaultMaxEntries {
			*lines = append(*lines, prefix+"[... truncated]")
			break
		}
	}
	return itemCount
}

var _ tool.Handler = (*ListHandler)(nil)
