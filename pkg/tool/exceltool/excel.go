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

// Package exceltool reads xlsx workbooks as text.
package exceltool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/roagent/roagent/pkg/tool"
)

const defaultMaxRows = 100

// Handler reads sheets and cell ranges from xlsx files.
type Handler struct{}

// New creates the read_excel tool.
func New() *Handler {
	return &Handler{}
}

func (h *Handler) Name() string {
	return "read_excel"
}

func (h *Handler) Description() string {
	return "Read data from an Excel (.xlsx) workbook. Omit 'sheet' to list the available sheets. Provide 'sheet' to read its rows, optionally limited to a cell range like 'A1:D20'."
}

func (h *Handler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path to the .xlsx file",
		},
		"sheet": map[string]any{
			"type":        "string",
			"description": "Sheet name to read. Omit to list sheets.",
		},
		"cell_range": map[string]any{
			"type":        "string",
			"description": "Cell range to read (e.g., 'A1:D20'). Defaults to the whole sheet.",
		},
		"max_rows": map[string]any{
			"type":        "integer",
			"description": fmt.Sprintf("Maximum rows to return. Defaults to %d.", defaultMaxRows),
		},
	}, "path")
}

func (h *Handler) RequiresApproval() bool {
	return false
}

func (h *Handler) Execute(_ context.Context, args map[string]any) (*tool.Output, error) {
	pathStr, _ := args["path"].(string)
	sheet, _ := args["sheet"].(string)
	cellRange, _ := args["cell_range"].(string)
	maxRows := intArg(args, "max_rows", defaultMaxRows)

	if pathStr == "" {
		return tool.Fail("No path provided"), nil
	}
	path := pathStr
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return tool.Fail(fmt.Sprintf("File not found: %s", path)), nil
	}

	wb, err := excelize.OpenFile(path)
	if err != nil {
		return tool.Fail(fmt.Sprintf("Error opening workbook: %s", err)), nil
	}
	defer wb.Close()

	if sheet == "" {
		return listSheets(wb), nil
	}
	return readSheet(wb, sheet, cellRange, maxRows)
}

func listSheets(wb *excelize.File) *tool.Output {
	sheets := wb.GetSheetList()
	lines := make([]string, 0, len(sheets)+1)
	lines = append(lines, "Sheets:")
	for _, name := range sheets {
		lines = append(lines, fmt.Sprintf("  %s", name))
	}
	return tool.Succeed(strings.Join(lines, "\n")).
		WithMetadata(map[string]any{"sheet_count": len(sheets)})
}

func readSheet(wb *excelize.File, sheet, cellRange string, maxRows int) (*tool.Output, error) {
	idx, err := wb.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return tool.Fail(fmt.Sprintf("Sheet not found: %s", sheet)), nil
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return tool.Fail(fmt.Sprintf("Error reading sheet: %s", err)), nil
	}

	startRow, startCol, endRow, endCol := 1, 1, len(rows), -1
	if cellRange != "" {
		startCol, startRow, endCol, endRow, err = parseRange(cellRange)
		if err != nil {
			return tool.Fail(fmt.Sprintf("Invalid cell range: %s", cellRange)), nil
		}
	}

	var lines []string
	truncated := false
	for i := startRow; i <= endRow && i <= len(rows); i++ {
		if len(lines) >= maxRows {
			truncated = true
			break
		}
		row := rows[i-1]
		first := startCol - 1
		last := len(row)
		if endCol > 0 && endCol < last {
			last = endCol
		}
		var cells []string
		if first < len(row) {
			cells = row[first:last]
		}
		lines = append(lines, strings.Join(cells, " | "))
	}

	if len(lines) == 0 {
		return tool.Succeed("(empty sheet)"), nil
	}

	content := strings.Join(lines, "\n")
	if truncated {
		content += fmt.Sprintf("\n\n[Showing %d of %d rows]", maxRows, endRow-startRow+1)
	}
	return tool.Succeed(content).WithMetadata(map[string]any{
		"sheet":     sheet,
		"rows":      len(lines),
		"truncated": truncated,
	}), nil
}

// parseRange resolves an A1:D20 range into 1-based column and row
// bounds.
func parseRange(cellRange string) (startCol, startRow, endCol, endRow int, err error) {
	parts := strings.SplitN(cellRange, ":", 2)
	if len(parts) != 2 {
		return 0, 0, 0, 0, fmt.Errorf("expected start:end, got %q", cellRange)
	}
	startCol, startRow, err = excelize.CellNameToCoordinates(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, 0, 0, err
	}
	endCol, endRow, err = excelize.CellNameToCoordinates(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return startCol, startRow, endCol, endRow, nil
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

var _ tool.Handler = (*Handler)(nil)
