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
	"os"
	"strconv"

	_ "github.com/vertica/vertica-sql-go"
)

const verticaSystemSchemas = "('v_catalog', 'v_monitor', 'v_internal')"

// VerticaConfig configures the Vertica dialect. Zero values fall back
// to the VERTICA_HOST, VERTICA_PORT, VERTICA_DATABASE, VERTICA_USER
// and VERTICA_PASSWORD environment variables.
type VerticaConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// ReadOnly makes the session read-only on top of keyword screening.
	ReadOnly bool
}

// VerticaDialect queries a Vertica database.
type VerticaDialect struct {
	cfg VerticaConfig
}

// NewVertica creates the Vertica dialect.
func NewVertica(cfg VerticaConfig) *VerticaDialect {
	cfg.Host = envOr(cfg.Host, envOr(os.Getenv("VERTICA_HOST"), "localhost"))
	if cfg.Port == 0 {
		cfg.Port = 5433
		if p, err := strconv.Atoi(os.Getenv("VERTICA_PORT")); err == nil {
			cfg.Port = p
		}
	}
	cfg.Database = envOr(cfg.Database, os.Getenv("VERTICA_DATABASE"))
	cfg.User = envOr(cfg.User, os.Getenv("VERTICA_USER"))
	cfg.Password = envOr(cfg.Password, os.Getenv("VERTICA_PASSWORD"))
	return &VerticaDialect{cfg: cfg}
}

func (d *VerticaDialect) Type() string {
	return "vertica"
}

func (d *VerticaDialect) Description() string {
	connInfo := fmt.Sprintf("%s:%d/%s", d.cfg.Host, d.cfg.Port, d.cfg.Database)
	mode := "full"
	if d.cfg.ReadOnly {
		mode = "read-only"
	}
	return fmt.Sprintf(
		"Query the Vertica database at %s. "+
			"Use 'list_tables' to see available tables, 'describe' for table schema, "+
			"'query' for SQL queries (%s access).",
		connInfo, mode,
	)
}

func (d *VerticaDialect) Open(ctx context.Context) (*sql.DB, error) {
	dsn := fmt.Sprintf("vertica://%s:%s@%s:%d/%s",
		d.cfg.User, d.cfg.Password, d.cfg.Host, d.cfg.Port, d.cfg.Database)
	db, err := sql.Open("vertica", dsn)
	if err != nil {
		return nil, err
	}
	// One pooled connection, held for the handler's lifetime. Session
	// flags set below would not survive onto fresh pool connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if d.cfg.ReadOnly {
		if _, err := db.ExecContext(ctx, "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY"); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (d *VerticaDialect) ListTablesQuery(schema, pattern string) (string, []any) {
	if schema != "" {
		return `
			SELECT table_schema, table_name,
			       CASE WHEN is_temp_table THEN 'TEMP' ELSE 'TABLE' END as table_type
			FROM v_catalog.tables
			WHERE table_schema = ?
			  AND table_name ILIKE ?
			ORDER BY table_schema, table_name
		`, []any{schema, pattern}
	}
	return `
		SELECT table_schema, table_name,
		       CASE WHEN is_temp_table THEN 'TEMP' ELSE 'TABLE' END as table_type
		FROM v_catalog.tables
		WHERE table_schema NOT IN ` + verticaSystemSchemas + `
		  AND table_name ILIKE ?
		ORDER BY table_schema, table_name
	`, []any{pattern}
}

func (d *VerticaDialect) DescribeQuery(table, schema string) (string, []any) {
	const typeExpr = `data_type || CASE
		    WHEN character_maximum_length IS NOT NULL
		        THEN '(' || character_maximum_length || ')'
		    WHEN numeric_precision IS NOT NULL
		        THEN '(' || numeric_precision ||
		            CASE WHEN numeric_scale IS NOT NULL
		                THEN ',' || numeric_scale ELSE '' END || ')'
		    ELSE ''
		END as data_type`

	if schema != "" {
		return fmt.Sprintf(`
			SELECT column_name, %s,
			       CASE WHEN is_nullable THEN 'Y' ELSE 'N' END as nullable
			FROM v_catalog.columns
			WHERE table_schema = ?
			  AND table_name = ?
			ORDER BY ordinal_position
		`, typeExpr), []any{schema, table}
	}
	return fmt.Sprintf(`
		SELECT column_name, %s,
		       CASE WHEN is_nullable THEN 'Y' ELSE 'N' END as nullable
		FROM v_catalog.columns
		WHERE table_schema NOT IN %s
		  AND table_name = ?
		ORDER BY ordinal_position
	`, typeExpr, verticaSystemSchemas), []any{table}
}

func (d *VerticaDialect) ExtraInfo(ctx context.Context, db *sql.DB, table, schema string) (*TableExtraInfo, error) {
	var pkCols, projections []string
	var err error

	if schema != "" {
		pkCols, err = queryStrings(ctx, db, `
			SELECT column_name
			FROM v_catalog.primary_keys
			WHERE table_schema = ?
			  AND table_name = ?
			ORDER BY ordinal_position
		`, schema, table)
	} else {
		pkCols, err = queryStrings(ctx, db, `
			SELECT column_name
			FROM v_catalog.primary_keys
			WHERE table_schema NOT IN `+verticaSystemSchemas+`
			  AND table_name = ?
			ORDER BY ordinal_position
		`, table)
	}
	if err != nil {
		return nil, err
	}

	// Projections stand in for indexes.
	if schema != "" {
		projections, err = queryStrings(ctx, db, `
			SELECT projection_name || ' (' ||
			       CASE WHEN is_super_projection THEN 'SUPER' ELSE 'STANDARD' END || ')'
			FROM v_catalog.projections
			WHERE anchor_table_schema = ?
			  AND anchor_table_name = ?
		`, schema, table)
	} else {
		projections, err = queryStrings(ctx, db, `
			SELECT projection_name || ' (' ||
			       CASE WHEN is_super_projection THEN 'SUPER' ELSE 'STANDARD' END || ')'
			FROM v_catalog.projections
			WHERE anchor_table_schema NOT IN `+verticaSystemSchemas+`
			  AND anchor_table_name = ?
		`, table)
	}
	if err != nil {
		return nil, err
	}

	if len(pkCols) == 0 && len(projections) == 0 {
		return nil, nil
	}
	return &TableExtraInfo{PrimaryKey: pkCols, Indexes: projections}, nil
}

var _ Dialect = (*VerticaDialect)(nil)
