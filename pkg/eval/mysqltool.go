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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roagent/roagent/pkg/tool"
	"github.com/roagent/roagent/pkg/tool/dbtool"
)

const executeSQLDescription = "Execute a SQL query against the database. " +
	"You can run SELECT queries to retrieve data, or INSERT/UPDATE/DELETE " +
	"to modify the database. Returns query results or confirmation of changes."

var rowsAffectedRe = regexp.MustCompile(`(\d+) rows? affected`)

// MySQLHandler is the execute_sql tool for mutation tasks. All SQL
// runs through docker exec inside the MySQL container; no port is
// exposed to the host.
type MySQLHandler struct {
	containerID string
	database    string
	password    string
	rowLimit    int
}

// NewMySQLHandler creates a handler bound to a container and database.
func NewMySQLHandler(containerID, database, password string) *MySQLHandler {
	return &MySQLHandler{
		containerID: containerID,
		database:    database,
		password:    password,
		rowLimit:    dbtool.DefaultRowLimit,
	}
}

func (h *MySQLHandler) Name() string {
	return "execute_sql"
}

func (h *MySQLHandler) Description() string {
	return executeSQLDescription
}

func (h *MySQLHandler) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"sql": map[string]any{
			"type":        "string",
			"description": "The SQL query to execute",
		},
	}, "sql")
}

func (h *MySQLHandler) RequiresApproval() bool {
	return false
}

func (h *MySQLHandler) Execute(ctx context.Context, args map[string]any) (*tool.Output, error) {
	sqlQuery, _ := args["sql"].(string)
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return tool.Fail("No SQL query provided"), nil
	}

	stdout, stderr, exitCode, err := h.execSQL(ctx, sqlQuery, "")
	if err != nil {
		return tool.Fail(fmt.Sprintf("SQL error: %s", err)), nil
	}

	// The mysql client always warns about passwords on the command
	// line; that is noise, not a query error.
	var stderrLines []string
	for _, line := range strings.Split(stderr, "\n") {
		if !strings.Contains(line, "Using a password on the command line") {
			stderrLines = append(stderrLines, line)
		}
	}
	stderrFiltered := strings.TrimSpace(strings.Join(stderrLines, "\n"))

	if exitCode != 0 {
		errMsg := firstNonEmpty(stderrFiltered, stdout, "Unknown error")
		return tool.Fail(fmt.Sprintf("SQL error: %s", errMsg)), nil
	}

	if strings.TrimSpace(stdout) != "" {
		columns, rows := parseMySQLOutput(stdout)
		if len(columns) > 0 {
			shown := len(rows)
			if shown > h.rowLimit {
				shown = h.rowLimit
			}
			return tool.Succeed(h.formatRows(columns, rows)).WithMetadata(map[string]any{
				"columns":   columns,
				"row_count": shown,
				"truncated": len(rows) > h.rowLimit,
			}), nil
		}
	}

	rowsAffected := 0
	if match := rowsAffectedRe.FindStringSubmatch(stdout + stderr); match != nil {
		fmt.Sscanf(match[1], "%d", &rowsAffected)
	}
	return tool.Succeed(fmt.Sprintf("Query executed successfully. Rows affected: %d", rowsAffected)).
		WithMetadata(map[string]any{"rows_affected": rowsAffected}), nil
}

func (h *MySQLHandler) execSQL(ctx context.Context, sqlQuery, database string) (string, string, int, error) {
	db := database
	if db == "" {
		db = h.database
	}
	stdout, stderr, exitCode, err := runCommand(ctx, 60*time.Second,
		"docker", "exec", h.containerID,
		"mysql", "-u", "root", "-p"+h.password, "-D", db, "-e", sqlQuery)
	if err != nil && exitCode < 0 {
		return stdout, stderr, exitCode, err
	}
	return stdout, stderr, exitCode, nil
}

// parseMySQLOutput splits the mysql client's tab-separated output into
// a header row and data rows.
func parseMySQLOutput(output string) ([]string, [][]string) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, nil
	}
	columns := strings.Split(lines[0], "\t")
	var rows [][]string
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) != "" {
			rows = append(rows, strings.Split(line, "\t"))
		}
	}
	return columns, rows
}

func (h *MySQLHandler) formatRows(columns []string, rows [][]string) string {
	if len(rows) == 0 {
		return "No results returned."
	}

	truncated := len(rows) > h.rowLimit
	display := rows
	if truncated {
		display = rows[:h.rowLimit]
	}

	header := strings.Join(columns, " | ")
	lines := []string{header, strings.Repeat("-", len(header))}
	for _, row := range display {
		lines = append(lines, strings.Join(row, " | "))
	}
	if truncated {
		lines = append(lines, fmt.Sprintf("... (%d more rows)", len(rows)-h.rowLimit))
	}
	return strings.Join(lines, "\n")
}

// InitTable creates the task table and loads its rows. Inserts are
// batched to stay under command line length limits.
func (h *MySQLHandler) InitTable(ctx context.Context, task *DBBenchTask) error {
	colDefs := make([]string, len(task.TableInfo.Columns))
	colNames := make([]string, len(task.TableInfo.Columns))
	for i, col := range task.TableInfo.Columns {
		colType := strings.ToUpper(col.Type)
		switch colType {
		case "STRING", "VARCHAR", "CHAR", "":
			colType = "TEXT"
		}
		colDefs[i] = fmt.Sprintf("`%s` %s", col.Name, colType)
		colNames[i] = fmt.Sprintf("`%s`", col.Name)
	}

	createSQL := fmt.Sprintf("CREATE TABLE `%s` (%s)", task.TableName, strings.Join(colDefs, ", "))
	if _, stderr, exitCode, err := h.execSQL(ctx, createSQL, ""); err != nil || exitCode != 0 {
		return fmt.Errorf("create table: %s", firstNonEmpty(stderr, "exit code nonzero"))
	}

	const batchSize = 100
	for start := 0; start < len(task.TableInfo.Rows); start += batchSize {
		end := start + batchSize
		if end > len(task.TableInfo.Rows) {
			end = len(task.TableInfo.Rows)
		}

		values := make([]string, 0, end-start)
		for _, row := range task.TableInfo.Rows[start:end] {
			escaped := make([]string, len(row))
			for i, val := range row {
				switch v := val.(type) {
				case nil:
					escaped[i] = "NULL"
				case float64:
					escaped[i] = renderScalar(v)
				case int, int64:
					escaped[i] = fmt.Sprintf("%v", v)
				default:
					s := strings.ReplaceAll(fmt.Sprintf("%v", v), `\`, `\\`)
					s = strings.ReplaceAll(s, "'", `\'`)
					escaped[i] = "'" + s + "'"
				}
			}
			values = append(values, "("+strings.Join(escaped, ", ")+")")
		}

		insertSQL := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES %s",
			task.TableName, strings.Join(colNames, ", "), strings.Join(values, ", "))
		if _, stderr, exitCode, err := h.execSQL(ctx, insertSQL, ""); err != nil || exitCode != 0 {
			return fmt.Errorf("insert rows: %s", firstNonEmpty(stderr, "exit code nonzero"))
		}
	}
	return nil
}

// CalculateTableHash computes the order-insensitive MD5 hash of the
// table state, matching the hash the dataset pre-computed for each
// mutation task.
func (h *MySQLHandler) CalculateTableHash(ctx context.Context, info TableInfo, tableName string) (string, bool) {
	columns := make([]string, len(info.Columns))
	for i, col := range info.Columns {
		columns[i] = fmt.Sprintf("`%s`", col.Name)
	}

	query := fmt.Sprintf(
		"SELECT MD5(GROUP_CONCAT(rowhash ORDER BY rowhash)) AS hash "+
			"FROM (SELECT SUBSTRING(MD5(CONCAT_WS(',', %s)), 1, 5) AS rowhash FROM `%s`) AS sub",
		strings.Join(columns, ", "), tableName)

	stdout, _, exitCode, err := h.execSQL(ctx, query, "")
	if err != nil || exitCode != 0 {
		return "", false
	}

	_, rows := parseMySQLOutput(stdout)
	if len(rows) > 0 && len(rows[0]) > 0 {
		return rows[0][0], true
	}
	return "", false
}

var _ tool.Handler = (*MySQLHandler)(nil)
