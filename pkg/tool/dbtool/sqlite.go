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

package dbtool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteDialect queries a SQLite database file opened read-only.
type SqliteDialect struct {
	dbPath string
}

// NewSqlite creates the SQLite dialect. An empty path falls back to
// the SQLITE_DB environment variable.
func NewSqlite(dbPath string) *SqliteDialect {
	if dbPath == "" {
		dbPath = os.Getenv("SQLITE_DB")
	}
	return &SqliteDialect{dbPath: dbPath}
}

func (d *SqliteDialect) Type() string {
	return "sqlite"
}

func (d *SqliteDialect) Description() string {
	return fmt.Sprintf(
		"Query the SQLite database at %s. "+
			"Use 'list_tables' to see available tables, 'describe' for table schema, "+
			"'query' for SELECT queries. All operations are read-only.",
		d.dbPath,
	)
}

func (d *SqliteDialect) Open(_ context.Context) (*sql.DB, error) {
	if d.dbPath == "" {
		return nil, errors.New("no SQLite database configured. Set SQLITE_DB env var")
	}
	return sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", d.dbPath))
}

func (d *SqliteDialect) ListTablesQuery(_, pattern string) (string, []any) {
	// SQLite has a single schema per file; the schema arg is ignored.
	return `
		SELECT name AS table_name, type
		FROM sqlite_master
		WHERE type IN ('table', 'view')
		  AND name NOT LIKE 'sqlite_%'
		  AND name LIKE ?
		ORDER BY type, name
	`, []any{pattern}
}

func (d *SqliteDialect) DescribeQuery(table, _ string) (string, []any) {
	// pragma_table_info doesn't take bound parameters, so the table
	// name is quote-escaped into the literal.
	return fmt.Sprintf(`
		SELECT name, type,
		    CASE WHEN "notnull" = 1 THEN 'N' ELSE 'Y' END as nullable
		FROM pragma_table_info('%s')
		ORDER BY cid
	`, sqliteQuote(table)), nil
}

func (d *SqliteDialect) ExtraInfo(ctx context.Context, db *sql.DB, table, _ string) (*TableExtraInfo, error) {
	safe := sqliteQuote(table)

	pkCols, err := queryStrings(ctx, db, fmt.Sprintf(
		"SELECT name FROM pragma_table_info('%s') WHERE pk > 0 ORDER BY pk", safe))
	if err != nil {
		return nil, err
	}

	indexes, err := queryStrings(ctx, db, fmt.Sprintf(
		`SELECT name || ' (' || CASE WHEN "unique" THEN 'UNIQUE' ELSE 'NONUNIQUE' END || ')' FROM pragma_index_list('%s')`, safe))
	if err != nil {
		return nil, err
	}

	if len(pkCols) == 0 && len(indexes) == 0 {
		return nil, nil
	}
	return &TableExtraInfo{PrimaryKey: pkCols, Indexes: indexes}, nil
}

func sqliteQuote(name string) string {
	return strings.ReplaceAll(name, "'", "''")
}

var _ Dialect = (*SqliteDialect)(nil)
