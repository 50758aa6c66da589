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

// Package dbtool provides read-only database tools built on database/sql.
//
// A single generic handler dispatches query, list_tables and describe
// operations; per-database dialects supply the driver, connection
// string and catalog SQL. Queries are screened for mutation keywords
// before execution, and sessions are opened read-only where the
// database supports it.
package dbtool

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/roagent/roagent/pkg/tool"
)

// DefaultRowLimit caps result rows unless the caller overrides it.
const DefaultRowLimit = 100

const maxColumnWidth = 50

// mutationRe matches SQL keywords that indicate write operations.
var mutationRe = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|MERGE|GRANT|REVOKE|EXEC|EXECUTE|CALL)\b`)

var (
	lineCommentRe  = regexp.MustCompile(`(?m)--.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// IsReadOnlySQL reports whether the statement is free of mutation
// keywords. Comments are stripped before scanning so a keyword inside
// a comment does not block the query.
func IsReadOnlySQL(query string) (bool, string) {
	cleaned := lineCommentRe.ReplaceAllString(query, "")
	cleaned = blockCommentRe.ReplaceAllString(cleaned, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if match := mutationRe.FindString(cleaned); match != "" {
		return false, fmt.Sprintf("Query contains mutation keyword: %s", match)
	}
	return true, ""
}

// FormatRows renders query results as an ASCII table.
func FormatRows(columns []string, rows [][]string, maxRows int) string {
	if len(rows) == 0 {
		return "(no rows returned)"
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}
	limit := len(rows)
	if limit > maxRows {
		limit = maxRows
	}
	for _, row := range rows[:limit] {
		for i, val := range row {
			if i < len(widths) && len(val) > widths[i] {
				widths[i] = len(val)
			}
		}
	}
	for i, w := range widths {
		if w > maxColumnWidth {
			widths[i] = maxColumnWidth
		}
	}

	cell := func(val string, w int) string {
		if len(val) > w {
			return val[:w]
		}
		return val + strings.Repeat(" ", w-len(val))
	}

	headerCells := make([]string, len(columns))
	sepCells := make([]string, len(columns))
	for i, col := range columns {
		headerCells[i] = cell(col, widths[i])
		sepCells[i] = strings.Repeat("-", widths[i])
	}
	lines := []string{
		strings.Join(headerCells, " | "),
		strings.Join(sepCells, "-+-"),
	}

	for _, row := range rows[:limit] {
		cells := make([]string, len(columns))
		for i := range columns {
			val := "NULL"
			if i < len(row) {
				val = row[i]
			}
			cells[i] = cell(val, widths[i])
		}
		lines = append(lines, strings.Join(cells, " | "))
	}

	if len(rows) > maxRows {
		lines = append(lines, fmt.Sprintf("... (%d more rows)", len(rows)-maxRows))
	}
	return strings.Join(lines, "\n")
}

// TableExtraInfo carries primary key and index details for describe
// output. Vertica reports projections through the Indexes field.
type TableExtraInfo struct {
	PrimaryKey []string
	Indexes    []string
}

// Dialect supplies the database-specific pieces of the generic handler:
// the driver connection and the catalog queries, each written with the
// driver's own placeholder syntax.
type Dialect interface {
	// Type identifies the database ("oracle", "sqlite", ...) and is
	// used as the tool name.
	Type() string

	// Description is shown to the model as the tool description.
	Description() string

	// Open establishes the connection. Called once, lazily.
	Open(ctx context.Context) (*sql.DB, error)

	// ListTablesQuery returns SQL and args for listing tables matching
	// a LIKE pattern, optionally scoped to a schema.
	ListTablesQuery(schema, pattern string) (string, []any)

	// DescribeQuery returns SQL and args for a table's columns as
	// (name, type, nullable) rows.
	DescribeQuery(table, schema string) (string, []any)

	// ExtraInfo fetches primary key and index details. Returning nil
	// omits the section.
	ExtraInfo(ctx context.Context, db *sql.DB, table, schema string) (*TableExtraInfo, error)
}

// Handler is the read-only database tool shared by every dialect.
type Handler struct {
	dialect          Dialect
	rowLimit         int
	requiresApproval bool

	mu sync.Mutex
	db *sql.DB
}

// Option configures a Handler.
type Option func(*Handler)

// WithRequiresApproval overrides the default approval requirement
// (true).
func WithRequiresApproval(v bool) Option {
	return func(h *Handler) {
		h.requiresApproval = v
	}
}

// New creates a database tool for the given dialect. rowLimit <= 0
// uses DefaultRowLimit.
func New(dialect Dialect, rowLimit int, opts ...Option) *Handler {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	h := &Handler{dialect: dialect, rowLimit: rowLimit, requiresApproval: true}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Name() string {
	return h.dialect.Type()
}

func (h *Handler) Description() string {
	return h.dialect.Description()
}

func (h *Handler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"operation": map[string]any{
			"type":        "string",
			"enum":        []string{"query", "list_tables", "describe"},
			"description": "Operation to perform",
		},
		"sql": map[string]any{
			"type":        "string",
			"description": "SQL query to execute (for 'query' operation)",
		},
		"table_pattern": map[string]any{
			"type":        "string",
			"description": "Table name pattern for filtering (for 'list_tables')",
		},
		"table_name": map[string]any{
			"type":        "string",
			"description": "Table name to describe (for 'describe')",
		},
		"schema": map[string]any{
			"type":        "string",
			"description": "Schema/owner name (optional)",
		},
		"row_limit": map[string]any{
			"type":        "integer",
			"description": fmt.Sprintf("Max rows to return (default: %d)", DefaultRowLimit),
		},
	}, "operation")
}

func (h *Handler) RequiresApproval() bool {
	return h.requiresApproval
}

// Close releases the underlying connection.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

func (h *Handler) conn(ctx context.Context) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db != nil {
		return h.db, nil
	}
	db, err := h.dialect.Open(ctx)
	if err != nil {
		return nil, err
	}
	h.db = db
	return db, nil
}

func (h *Handler) Execute(ctx context.Context, args map[string]any) (*tool.Output, error) {
	operation, _ := args["operation"].(string)
	rowLimit := intArg(args, "row_limit", h.rowLimit)

	var out *tool.Output
	var err error
	switch operation {
	case "query":
		out, err = h.handleQuery(ctx, args, rowLimit)
	case "list_tables":
		out, err = h.handleListTables(ctx, args, rowLimit)
	case "describe":
		out, err = h.handleDescribe(ctx, args)
	default:
		return tool.Fail(fmt.Sprintf("Unknown operation: %s. Use: query, list_tables, describe", operation)), nil
	}
	if err != nil {
		return tool.Fail(fmt.Sprintf("%s error: %s", titleCase(h.dialect.Type()), err)), nil
	}
	return out, nil
}

func (h *Handler) handleQuery(ctx context.Context, args map[string]any, rowLimit int) (*tool.Output, error) {
	query, _ := args["sql"].(string)
	if query == "" {
		return tool.Fail("No SQL query provided"), nil
	}

	if safe, reason := IsReadOnlySQL(query); !safe {
		return tool.Fail(fmt.Sprintf("Query blocked: %s", reason)), nil
	}

	db, err := h.conn(ctx)
	if err != nil {
		return nil, err
	}
	// Fetch one extra row to detect truncation.
	columns, rows, err := runQuery(ctx, db, query, nil, rowLimit+1)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return tool.Succeed("Query executed (no result set)"), nil
	}

	content := FormatRows(columns, rows, rowLimit)
	shown := len(rows)
	if shown > rowLimit {
		shown = rowLimit
	}
	return tool.Succeed(content).WithMetadata(map[string]any{
		"columns":   columns,
		"row_count": shown,
		"truncated": len(rows) > rowLimit,
	}), nil
}

func (h *Handler) handleListTables(ctx context.Context, args map[string]any, rowLimit int) (*tool.Output, error) {
	pattern, _ := args["table_pattern"].(string)
	if pattern == "" {
		pattern = "%"
	}
	schema, _ := args["schema"].(string)

	db, err := h.conn(ctx)
	if err != nil {
		return nil, err
	}
	query, queryArgs := h.dialect.ListTablesQuery(schema, pattern)
	columns, rows, err := runQuery(ctx, db, query, queryArgs, rowLimit+1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return tool.Succeed(fmt.Sprintf("No tables found matching pattern: %s", pattern)), nil
	}

	content := FormatRows(columns, rows, rowLimit)
	shown := len(rows)
	if shown > rowLimit {
		shown = rowLimit
	}
	return tool.Succeed(content).WithMetadata(map[string]any{"table_count": shown}), nil
}

func (h *Handler) handleDescribe(ctx context.Context, args map[string]any) (*tool.Output, error) {
	tableName, _ := args["table_name"].(string)
	if tableName == "" {
		return tool.Fail("No table_name provided"), nil
	}
	schema, _ := args["schema"].(string)

	db, err := h.conn(ctx)
	if err != nil {
		return nil, err
	}
	query, queryArgs := h.dialect.DescribeQuery(tableName, schema)
	_, rows, err := runQuery(ctx, db, query, queryArgs, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return tool.Fail(fmt.Sprintf("Table not found: %s", tableName)), nil
	}

	extra, err := h.dialect.ExtraInfo(ctx, db, tableName, schema)
	if err != nil {
		return nil, err
	}

	content := formatDescribe(tableName, rows, extra)
	return tool.Succeed(content).WithMetadata(map[string]any{
		"table_name":   strings.ToUpper(tableName),
		"column_count": len(rows),
	}), nil
}

// runQuery executes SQL and returns the column names plus up to
// maxRows rows with every value rendered as a string. NULL becomes
// "NULL". maxRows <= 0 means unlimited.
func runQuery(ctx context.Context, db *sql.DB, query string, args []any, maxRows int) ([]string, [][]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
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
		if maxRows > 0 && len(result) >= maxRows {
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(columns))
		for i, val := range values {
			row[i] = renderValue(val)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, result, nil
}

func renderValue(val any) string {
	switch v := val.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatDescribe renders (name, type, nullable) rows plus optional
// primary key and index info.
func formatDescribe(tableName string, rows [][]string, extra *TableExtraInfo) string {
	lines := []string{
		fmt.Sprintf("Table: %s", strings.ToUpper(tableName)),
		"",
		"Columns:",
		strings.Repeat("-", 80),
	}

	for _, row := range rows {
		name := ""
		dtype := "UNKNOWN"
		nullable := "Y"
		if len(row) > 0 {
			name = row[0]
		}
		if len(row) > 1 {
			dtype = row[1]
		}
		if len(row) > 2 {
			nullable = row[2]
		}

		nullStr := "NOT NULL"
		switch strings.ToUpper(nullable) {
		case "Y", "YES", "1", "TRUE", "NULL":
			nullStr = "NULL"
		}
		lines = append(lines, fmt.Sprintf("  %-30s %-20s %s", name, dtype, nullStr))
	}

	if extra != nil {
		if len(extra.PrimaryKey) > 0 {
			lines = append(lines, "", fmt.Sprintf("Primary Key: (%s)", strings.Join(extra.PrimaryKey, ", ")))
		}
		if len(extra.Indexes) > 0 {
			lines = append(lines, "", "Indexes:")
			for _, idx := range extra.Indexes {
				lines = append(lines, fmt.Sprintf("  %s", idx))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// queryStrings runs a single-column query and collects the values.
// Used by dialects for primary key and index lookups.
func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var val sql.NullString
		if err := rows.Scan(&val); err != nil {
			return nil, err
		}
		if val.Valid {
			result = append(result, val.String)
		}
	}
	return result, rows.Err()
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

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func envOr(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

var _ tool.Handler = (*Handler)(nil)
