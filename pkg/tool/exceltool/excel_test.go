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

package exceltool

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T) string {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()

	require.NoError(t, wb.SetSheetName("Sheet1", "Data"))
	rows := [][]any{
		{"name", "qty", "price"},
		{"apples", 3, 1.5},
		{"pears", 7, 2.25},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow("Data", cell, &row))
	}
	_, err := wb.NewSheet("Empty")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, wb.SaveAs(path))
	return path
}

func TestListSheets(t *testing.T) {
	path := writeWorkbook(t)
	h := New()

	out, err := h.Execute(context.Background(), map[string]any{"path": path})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "Sheets:")
	assert.Contains(t, out.Content, "Data")
	assert.Contains(t, out.Content, "Empty")
	assert.Equal(t, 2, out.Metadata["sheet_count"])
}

func TestReadSheet(t *testing.T) {
	path := writeWorkbook(t)
	h := New()

	out, err := h.Execute(context.Background(), map[string]any{"path": path, "sheet": "Data"})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "name | qty | price")
	assert.Contains(t, out.Content, "apples | 3 | 1.5")
	assert.Equal(t, 3, out.Metadata["rows"])
}

func TestReadCellRange(t *testing.T) {
	path := writeWorkbook(t)
	h := New()

	out, err := h.Execute(context.Background(), map[string]any{
		"path": path, "sheet": "Data", "cell_range": "A2:B3",
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "apples | 3")
	assert.NotContains(t, out.Content, "1.5")
	assert.NotContains(t, out.Content, "name")
}

func TestReadMaxRows(t *testing.T) {
	path := writeWorkbook(t)
	h := New()

	out, err := h.Execute(context.Background(), map[string]any{
		"path": path, "sheet": "Data", "max_rows": 1,
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "[Showing 1 of 3 rows]")
	assert.Equal(t, true, out.Metadata["truncated"])
}

func TestReadEmptySheet(t *testing.T) {
	path := writeWorkbook(t)
	h := New()

	out, err := h.Execute(context.Background(), map[string]any{"path": path, "sheet": "Empty"})
	require.NoError(t, err)
	assert.Equal(t, "(empty sheet)", out.Content)
}

func TestSheetNotFound(t *testing.T) {
	path := writeWorkbook(t)
	h := New()

	out, err := h.Execute(context.Background(), map[string]any{"path": path, "sheet": "Nope"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "Sheet not found: Nope", out.Content)
}

func TestInvalidRange(t *testing.T) {
	path := writeWorkbook(t)
	h := New()

	out, err := h.Execute(context.Background(), map[string]any{
		"path": path, "sheet": "Data", "cell_range": "bogus",
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "Invalid cell range")
}

func TestWorkbookNotFound(t *testing.T) {
	h := New()
	out, err := h.Execute(context.Background(), map[string]any{
		"path": filepath.Join(t.TempDir(), "missing.xlsx"),
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "File not found")
}
