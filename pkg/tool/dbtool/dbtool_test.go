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
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB creates a SQLite file with a small users table and returns
// a handler backed by it.
func newTestDB(t *testing.T) *Handler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE users (
		    id INTEGER PRIMARY KEY,
		    name TEXT NOT NULL,
		    email TEXT
		);
		CREATE INDEX idx_users_name ON users(name);
	`)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err = db.Exec("INSERT INTO users (id, name, email) VALUES (?, ?, ?)",
			i, fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@example.com", i))
		require.NoError(t, err)
	}
	_, err = db.Exec("INSERT INTO users (id, name) VALUES (6, 'noemail')")
	require.NoError(t, err)

	h := New(NewSqlite(path), 0)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestIsReadOnlySQL(t *testing.T) {
	safe, _ := IsReadOnlySQL("SELECT * FROM users")
	assert.True(t, safe)

	safe, reason := IsReadOnlySQL("DELETE FROM users WHERE id = 1")
	assert.False(t, safe)
	assert.Equal(t, "Query contains mutation keyword: DELETE", reason)

	// Keywords inside comments don't count.
	safe, _ = IsReadOnlySQL("SELECT 1 -- DROP TABLE users")
	assert.True(t, safe)
	safe, _ = IsReadOnlySQL("SELECT 1 /* DELETE everything */")
	assert.True(t, safe)

	// Substrings of identifiers don't count either.
	safe, _ = IsReadOnlySQL("SELECT created_at FROM events")
	assert.True(t, safe)
}

func TestFormatRows(t *testing.T) {
	content := FormatRows(
		[]string{"id", "name"},
		[][]string{{"1", "alice"}, {"2", "NULL"}},
		100,
	)
	assert.Contains(t, content, "id | name")
	assert.Contains(t, content, "---+-")
	assert.Contains(t, content, "1  | alice")
	assert.Contains(t, content, "2  | NULL")
}

func TestFormatRowsTruncation(t *testing.T) {
	rows := make([][]string, 10)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("%d", i)}
	}
	content := FormatRows([]string{"n"}, rows, 3)
	assert.Contains(t, content, "... (7 more rows)")
}

func TestFormatRowsEmpty(t *testing.T) {
	assert.Equal(t, "(no rows returned)", FormatRows([]string{"id"}, nil, 100))
}

func TestQueryReturnsRows(t *testing.T) {
	h := newTestDB(t)

	out, err := h.Execute(context.Background(), map[string]any{
		"operation": "query",
		"sql":       "SELECT id, name FROM users ORDER BY id",
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "user1")
	assert.Contains(t, out.Content, "user5")
	assert.Equal(t, 6, out.Metadata["row_count"])
	assert.Equal(t, false, out.Metadata["truncated"])
}

func TestQueryRendersNull(t *testing.T) {
	h := newTestDB(t)

	out, err := h.Execute(context.Background(), map[string]any{
		"operation": "query",
		"sql":       "SELECT name, email FROM users WHERE id = 6",
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "NULL")
}

func TestQueryRowLimit(t *testing.T) {
	h := newTestDB(t)

	out, err := h.Execute(context.Background(), map[string]any{
		"operation": "query",
		"sql":       "SELECT id FROM users ORDER BY id",
		"row_limit": 2,
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "... (1 more rows)")
	assert.Equal(t, 2, out.Metadata["row_count"])
	assert.Equal(t, true, out.Metadata["truncated"])
}

func TestQueryBlocksMutations(t *testing.T) {
	h := newTestDB(t)

	for _, stmt := range []string{
		"INSERT INTO users (id) VALUES (99)",
		"UPDATE users SET name = 'x'",
		"DROP TABLE users",
		"select 1; delete from users",
	} {
		out, err := h.Execute(context.Background(), map[string]any{
			"operation": "query",
			"sql":       stmt,
		})
		require.NoError(t, err)
		assert.False(t, out.Success, stmt)
		assert.Contains(t, out.Content, "Query blocked:", stmt)
	}
}

func TestQueryRequiresSQL(t *testing.T) {
	h := newTestDB(t)
	out, err := h.Execute(context.Background(), map[string]any{"operation": "query"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "No SQL query provided", out.Content)
}

func TestListTables(t *testing.T) {
	h := newTestDB(t)

	out, err := h.Execute(context.Background(), map[string]any{"operation": "list_tables"})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "users")
	assert.Equal(t, 1, out.Metadata["table_count"])
}

func TestListTablesNoMatch(t *testing.T) {
	h := newTestDB(t)

	out, err := h.Execute(context.Background(), map[string]any{
		"operation":     "list_tables",
		"table_pattern": "zzz%",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "No tables found matching pattern: zzz%", out.Content)
}

func TestDescribe(t *testing.T) {
	h := newTestDB(t)

	out, err := h.Execute(context.Background(), map[string]any{
		"operation":  "describe",
		"table_name": "users",
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Contains(t, out.Content, "Table: USERS")
	assert.Contains(t, out.Content, "name")
	assert.Contains(t, out.Content, "NOT NULL")
	assert.Contains(t, out.Content, "Primary Key: (id)")
	assert.Contains(t, out.Content, "idx_users_name")
	assert.Equal(t, 3, out.Metadata["column_count"])
}

func TestDescribeMissingTable(t *testing.T) {
	h := newTestDB(t)

	out, err := h.Execute(context.Background(), map[string]any{
		"operation":  "describe",
		"table_name": "missing",
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "Table not found: missing", out.Content)
}

func TestUnknownOperation(t *testing.T) {
	h := newTestDB(t)

	out, err := h.Execute(context.Background(), map[string]any{"operation": "export"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "Unknown operation: export. Use: query, list_tables, describe", out.Content)
}

func TestErrorsAreContained(t *testing.T) {
	h := newTestDB(t)

	out, err := h.Execute(context.Background(), map[string]any{
		"operation": "query",
		"sql":       "SELECT * FROM no_such_table",
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Content, "Sqlite error:")
}

func TestRequiresApproval(t *testing.T) {
	h := newTestDB(t)
	assert.True(t, h.RequiresApproval())
	assert.Equal(t, "sqlite", h.Name())
}

func TestOpenPinsSingleConnection(t *testing.T) {
	// Open is lazy for these drivers, so no server is needed.
	dialects := []Dialect{
		NewMysql(MysqlConfig{Host: "db.internal", Database: "metrics", User: "ro", Password: "x"}),
		NewPostgres(PostgresConfig{Host: "db.internal", Database: "metrics", User: "ro", Password: "x"}),
		NewVertica(VerticaConfig{Host: "db.internal", Database: "metrics", User: "ro", Password: "x"}),
	}
	for _, d := range dialects {
		db, err := d.Open(context.Background())
		require.NoError(t, err, d.Type())
		// Session-level read-only flags only hold if the pool never
		// swaps the connection out from under the handler.
		assert.Equal(t, 1, db.Stats().MaxOpenConnections, d.Type())
		db.Close()
	}
}

func TestDescriptionsReflectAccessMode(t *testing.T) {
	assert.Contains(t, NewVertica(VerticaConfig{Database: "metrics", ReadOnly: true}).Description(), "read-only access")
	assert.Contains(t, NewVertica(VerticaConfig{Database: "metrics"}).Description(), "full access")
	assert.Contains(t, NewMysql(MysqlConfig{Database: "metrics", ReadOnly: true}).Description(), "read-only access")
}
