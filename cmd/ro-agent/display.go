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

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roagent/roagent/pkg/agent"
)

const (
	reset  = "\033[0m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

// display renders agent events to the terminal.
type display struct {
	previewLines int
}

func (d *display) handleEvent(event agent.Event) {
	switch event.Type {
	case agent.EventText:
		fmt.Print(event.Content)

	case agent.EventToolStart:
		fmt.Printf("\n%s%s%s\n", cyan, formatToolSignature(event.ToolName, event.ToolArgs), reset)

	case agent.EventToolEnd:
		summary := formatToolSummary(event.ToolName, event.ToolMetadata)
		if summary != "" {
			fmt.Printf("%s  → %s%s\n", dim, summary, reset)
		} else if preview := previewLines(event.ToolResult, d.previewLines); preview != "" {
			fmt.Printf("%s%s%s\n", dim, preview, reset)
		}

	case agent.EventToolBlocked:
		fmt.Printf("%s%s blocked: %s%s\n", red, event.ToolName, event.Content, reset)

	case agent.EventTurnComplete:
		fmt.Println()
		if event.Usage != nil {
			fmt.Printf("%s[%d in, %d out]%s\n", dim, event.Usage.TotalInputTokens, event.Usage.TotalOutputTokens, reset)
		}

	case agent.EventCompactStart:
		if event.Content == "auto" {
			fmt.Printf("\n%sContext limit approaching, auto-compacting...%s\n", yellow, reset)
		} else {
			fmt.Printf("\n%sCompacting conversation...%s\n", yellow, reset)
		}

	case agent.EventCompactEnd:
		fmt.Printf("%s%s%s\n", dim, event.Content, reset)

	case agent.EventError:
		fmt.Printf("\n%sError: %s%s\n", red, event.Content, reset)

	case agent.EventCancelled:
		fmt.Printf("\n%sCancelled%s\n", yellow, reset)
	}
}

// formatToolSignature renders a tool call like read(path='/var/log/syslog').
// Shell commands show the bare command since it is the whole story.
func formatToolSignature(name string, args map[string]any) string {
	if name == "bash" {
		if cmd, ok := args["command"].(string); ok {
			return fmt.Sprintf("%s(%s)", name, previewText(cmd, 120))
		}
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprintf("%v", args[k])
		parts = append(parts, fmt.Sprintf("%s=%s", k, quoteArg(v)))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

func quoteArg(v string) string {
	v = previewText(v, 60)
	return "'" + v + "'"
}

// formatToolSummary builds a one-line result summary from the tool's
// metadata. Returns "" when there is nothing useful to say.
func formatToolSummary(name string, meta map[string]any) string {
	if meta == nil {
		return ""
	}
	num := func(key string) (int, bool) {
		switch v := meta[key].(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case float64:
			return int(v), true
		}
		return 0, false
	}

	switch name {
	case "grep":
		if matches, ok := num("matches"); ok {
			s := fmt.Sprintf("%d matches", matches)
			if truncated, _ := meta["truncated"].(bool); truncated {
				s += " (truncated)"
			}
			return s
		}
	case "glob":
		if total, ok := num("total"); ok {
			matches, _ := num("matches")
			if matches < total {
				return fmt.Sprintf("%d of %d files", matches, total)
			}
			return fmt.Sprintf("%d files", total)
		}
	case "list":
		if count, ok := num("item_count"); ok {
			return fmt.Sprintf("%d items", count)
		}
	case "read":
		start, okStart := num("start_line")
		end, okEnd := num("end_line")
		total, okTotal := num("total_lines")
		if okStart && okEnd && okTotal {
			return fmt.Sprintf("lines %d-%d of %d", start, end, total)
		}
	case "write":
		if size, ok := num("size_bytes"); ok {
			lines, _ := num("lines")
			s := fmt.Sprintf("%d bytes, %d lines", size, lines)
			if overwrote, _ := meta["overwrote"].(bool); overwrote {
				s += " (overwrote)"
			}
			return s
		}
	case "edit":
		if path, ok := meta["path"].(string); ok {
			return "edited " + path
		}
	case "bash":
		if timedOut, _ := meta["timed_out"].(bool); timedOut {
			return "timed out"
		}
	case "read_excel":
		if sheets, ok := num("sheet_count"); ok {
			return fmt.Sprintf("%d sheets", sheets)
		}
		if rows, ok := num("rows"); ok {
			sheet, _ := meta["sheet"].(string)
			s := fmt.Sprintf("%d rows from %s", rows, sheet)
			if truncated, _ := meta["truncated"].(bool); truncated {
				s += " (truncated)"
			}
			return s
		}
	}

	if rows, ok := num("row_count"); ok {
		return fmt.Sprintf("%d rows", rows)
	}
	return ""
}

// previewLines returns up to n lines of s, indented, with an elision
// marker when more follow.
func previewLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	truncated := false
	if len(lines) > n {
		lines = lines[:n]
		truncated = true
	}
	for i, line := range lines {
		lines[i] = "  " + previewText(line, 200)
	}
	if truncated {
		lines = append(lines, "  ...")
	}
	return strings.Join(lines, "\n")
}
