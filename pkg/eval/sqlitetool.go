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

package eval

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/roagent/roagent/pkg/tool"
	"github.com/roagent/roagent/pkg/tool/dbtool"
)

// SQLiteHandler is the execute_sql tool for SELECT tasks. Unlike the
// regular read-only database tools, it allows INSERT, UPDATE and
// DELETE so the agent can work the task database freely.
type SQLiteHandler struct {
	dbPath   string
	rowLimit int

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteHandler creates a handler over the given database file.
func NewSQLiteHandler(dbPath string) *SQLiteHandler {
	return &SQLiteHandler{dbPath: dbPath, rowLimit: dbtool.DefaultRowLimit}
}

func (h *SQLiteHandler) Name() string {
	return "execute_sql"
}

func (h *SQLiteHandler) Description() string {
	return executeSQLDescription
}

func (h *SQLiteHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"sql": map[string]any{
			"type":        "string",
			"description": "The SQL query to execute",
		},
	}, "sql")
}

func (h *SQLiteHandler) RequiresApproval() bool {
	return false
}

// Close releases the connection.
func (h *SQLiteHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

func (h *SQLiteHandler) conn() (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db != nil {
		return h.db, nil
	}
	db, err := sql.Open("sqlite3", h.dbPath)
	if err != nil {
		return nil, err
	}
	h.db = db
	return db, nil
}

// returnsRows reports whether the statement produces a result set.
func returnsRows(sqlQuery string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sqlQuery))
	for _, prefix := range []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

func (h *SQLiteHandler) Execute(ctx context.Context, args map[string]any) (*tool.Output, error) {
	sqlQuery, _ := args["sql"].(string)
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return tool.Fail("No SQL query provided"), nil
	}

	db, err := h.conn()
	if err != nil {
		return tool.Fail(fmt.Sprintf("SQL error: %s", err)), nil
	}

	if returnsRows(sqlQuery) {
		columns, rows, err := h.query(ctx, db, sqlQuery)
		if err != nil {
			return tool.Fail(fmt.Sprintf("SQL error: %s", err)), nil
		}
		shown := len(rows)
		if shown > h.rowLimit {
			shown = h.rowLimit
		}
		return tool.Succeed(dbtool.FormatRows(columns, rows, h.rowLimit)).WithMetadata(map[string]any{
			"columns":   columns,
			"row_count": shown,
			"truncated": len(rows) > h.rowLimit,
		}), nil
	}

	result, err := db.ExecContext(ctx, sqlQuery)
	if err != nil {
		return tool.Fail(fmt.Sprintf("SQL error: %s", err)), nil
	}
	rowsAffected, _ := result.RowsAffected()
	return tool.Succeed(fmt.Sprintf("Query executed successfully. Rows affected: %d", rowsAffected)).
		WithMetadata(map[string]any{"rows_affected": rowsAffected}), nil
}

// query fetches up to rowLimit+1 rows so truncation is detectable.
func (h *SQLiteHandler) query(ctx context.Context, db *sql.DB, sqlQuery string) ([]string, [][]string, error) {
	rows, err := db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var result [][]string
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if len(result) > h.rowLimit {
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(columns))
		for i, val := range values {
			switch v := val.(type) {
			case nil:
				row[i] = "NULL"
			case []byte:
				row[i] = string(v)
			default:
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		result = append(result, row)
	}
	return columns, result, rows.Err()
}

var _ tool.Handler = (*SQLiteHandler)(nil)
