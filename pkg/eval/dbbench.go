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
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Column describes one table column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableInfo is the schema and data of a task's table.
type TableInfo struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// DBBenchTask is one database question-answering task.
type DBBenchTask struct {
	Index       int
	Description string
	TableInfo   TableInfo
	TableName   string

	// ExpectedAnswer is the label list from the dataset.
	ExpectedAnswer []string

	// QueryType is SELECT, INSERT, UPDATE or DELETE.
	QueryType string

	// GroundTruthSQL is the reference query, when the dataset has one.
	GroundTruthSQL string

	AddDescription string
	Source         string

	// AnswerMD5 is the pre-computed table hash for mutation tasks.
	// Empty for SELECT tasks.
	AnswerMD5 string
}

// Prompt builds the task prompt with table context and sample rows.
func (t *DBBenchTask) Prompt() string {
	colInfo := make([]string, len(t.TableInfo.Columns))
	for i, col := range t.TableInfo.Columns {
		colInfo[i] = fmt.Sprintf("%s (%s)", col.Name, col.Type)
	}

	sample := t.TableInfo.Rows
	if len(sample) > 3 {
		sample = sample[:3]
	}
	rowLines := make([]string, len(sample))
	for i, row := range sample {
		rowLines[i] = formatSampleRow(row)
	}

	return fmt.Sprintf(`%s

Table: %s
Columns: %s

Sample rows:
%s

%s

Use execute_sql to query the database. When you have the answer, use commit_final_answer to submit it.`,
		t.Description,
		t.TableName,
		strings.Join(colInfo, ", "),
		strings.Join(rowLines, "\n"),
		t.AddDescription,
	)
}

// NeedsMySQL reports whether the task requires the MySQL container:
// mutation queries scored against a pre-computed table hash.
func (t *DBBenchTask) NeedsMySQL() bool {
	switch t.QueryType {
	case "INSERT", "UPDATE", "DELETE":
		return t.AnswerMD5 != ""
	}
	return false
}

func formatSampleRow(row []any) string {
	parts := make([]string, len(row))
	for i, val := range row {
		switch v := val.(type) {
		case string:
			parts[i] = "'" + v + "'"
		case nil:
			parts[i] = "None"
		default:
			parts[i] = renderScalar(v)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// renderScalar stringifies a JSON-decoded value without the trailing
// zeros float64 formatting would add to integers.
func renderScalar(val any) string {
	switch v := val.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// InferQueryType determines the query type from the dataset's type
// list, falling back to the SQL prefix. Anything unrecognized is a
// SELECT.
func InferQueryType(sqlQuery string, types []string) string {
	if len(types) > 0 {
		switch t := strings.ToUpper(types[0]); t {
		case "INSERT", "UPDATE", "DELETE":
			return t
		}
	}

	upper := strings.ToUpper(strings.TrimSpace(sqlQuery))
	for _, t := range []string{"INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(upper, t) {
			return t
		}
	}
	return "SELECT"
}

type dbbenchLine struct {
	Description string `json:"description"`
	Table       struct {
		TableName string    `json:"table_name"`
		TableInfo TableInfo `json:"table_info"`
	} `json:"table"`
	SQL            json.RawMessage `json:"sql"`
	Type           []string        `json:"type"`
	Label          []any           `json:"label"`
	AddDescription string          `json:"add_description"`
	Source         string          `json:"source"`
	AnswerMD5      *string         `json:"answer_md5"`
}

// LoadDBBenchTasks reads tasks from a JSONL file, one task per line.
func LoadDBBenchTasks(path string) ([]DBBenchTask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tasks []DBBenchTask
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	idx := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var data dbbenchLine
		if err := json.Unmarshal([]byte(line), &data); err != nil {
			return nil, fmt.Errorf("parse line %d: %w", lineNo, err)
		}

		var sqlQuery string
		if len(data.SQL) > 0 {
			var sqlData struct {
				Query string `json:"query"`
			}
			// The sql field is not always an object; ignore other shapes.
			_ = json.Unmarshal(data.SQL, &sqlData)
			sqlQuery = sqlData.Query
		}

		label := make([]string, len(data.Label))
		for i, v := range data.Label {
			label[i] = renderScalar(v)
		}

		tableName := data.Table.TableName
		if tableName == "" {
			tableName = "data"
		}

		task := DBBenchTask{
			Index:          idx,
			Description:    data.Description,
			TableInfo:      data.Table.TableInfo,
			TableName:      tableName,
			ExpectedAnswer: label,
			QueryType:      InferQueryType(sqlQuery, data.Type),
			GroundTruthSQL: sqlQuery,
			AddDescription: data.AddDescription,
			Source:         data.Source,
		}
		if data.AnswerMD5 != nil {
			task.AnswerMD5 = *data.AnswerMD5
		}
		tasks = append(tasks, task)
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// sqliteColumnType maps dataset column types to SQLite storage types.
func sqliteColumnType(colType string) string {
	switch strings.ToUpper(colType) {
	case "STRING", "VARCHAR", "CHAR":
		return "TEXT"
	case "INT", "INTEGER", "BIGINT", "SMALLINT":
		return "INTEGER"
	case "FLOAT", "DOUBLE", "DECIMAL", "NUMERIC":
		return "REAL"
	case "":
		return "TEXT"
	default:
		return strings.ToUpper(colType)
	}
}

// CreateSQLiteFromTableInfo materializes a task's table as a SQLite
// database file. An empty dbPath creates a temp file; the caller
// removes it when done.
func CreateSQLiteFromTableInfo(tableName string, info TableInfo, dbPath string) (string, error) {
	if dbPath == "" {
		f, err := os.CreateTemp("", "dbbench-*.db")
		if err != nil {
			return "", err
		}
		dbPath = f.Name()
		f.Close()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	colDefs := make([]string, len(info.Columns))
	for i, col := range info.Columns {
		colDefs[i] = fmt.Sprintf("%q %s", col.Name, sqliteColumnType(col.Type))
	}
	createSQL := fmt.Sprintf("CREATE TABLE %q (%s)", tableName, strings.Join(colDefs, ", "))
	if _, err := db.Exec(createSQL); err != nil {
		return "", fmt.Errorf("create table: %w", err)
	}

	if len(info.Rows) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(info.Columns)), ", ")
		insertSQL := fmt.Sprintf("INSERT INTO %q VALUES (%s)", tableName, placeholders)

		tx, err := db.Begin()
		if err != nil {
			return "", err
		}
		stmt, err := tx.Prepare(insertSQL)
		if err != nil {
			tx.Rollback()
			return "", err
		}
		for _, row := range info.Rows {
			if _, err := stmt.Exec(row...); err != nil {
				stmt.Close()
				tx.Rollback()
				return "", fmt.Errorf("insert row: %w", err)
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return "", err
		}
	}

	return dbPath, nil
}
