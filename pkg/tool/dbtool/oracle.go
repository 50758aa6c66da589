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

	_ "github.com/sijms/go-ora/v2"
)

// OracleConfig configures the Oracle dialect. Zero values fall back to
// the ORACLE_DSN, ORACLE_USER and ORACLE_PASSWORD environment
// variables. DSN is host:port/service.
type OracleConfig struct {
	DSN      string
	User     string
	Password string
}

// OracleDialect queries an Oracle database.
type OracleDialect struct {
	cfg OracleConfig
}

// NewOracle creates the Oracle dialect.
func NewOracle(cfg OracleConfig) *OracleDialect {
	cfg.DSN = envOr(cfg.DSN, os.Getenv("ORACLE_DSN"))
	cfg.User = envOr(cfg.User, os.Getenv("ORACLE_USER"))
	cfg.Password = envOr(cfg.Password, os.Getenv("ORACLE_PASSWORD"))
	return &OracleDialect{cfg: cfg}
}

func (d *OracleDialect) Type() string {
	return "oracle"
}

func (d *OracleDialect) Description() string {
	connInfo := d.cfg.DSN
	if d.cfg.User != "" {
		connInfo = fmt.Sprintf("%s@%s", d.cfg.User, d.cfg.DSN)
	}
	return fmt.Sprintf(
		"Query the Oracle database at %s. "+
			"Use 'list_tables' to see available tables, 'describe' for table schema, "+
			"'query' for SELECT queries. All operations are read-only.",
		connInfo,
	)
}

func (d *OracleDialect) Open(_ context.Context) (*sql.DB, error) {
	if d.cfg.DSN == "" {
		return nil, errors.New("no Oracle database configured. Set ORACLE_DSN env var")
	}
	return sql.Open("oracle", fmt.Sprintf("oracle://%s:%s@%s", d.cfg.User, d.cfg.Password, d.cfg.DSN))
}

func (d *OracleDialect) ListTablesQuery(schema, pattern string) (string, []any) {
	if schema != "" {
		return `
			SELECT owner, table_name, num_rows, last_analyzed
			FROM all_tables
			WHERE owner = UPPER(:1)
			  AND table_name LIKE UPPER(:2)
			ORDER BY owner, table_name
		`, []any{schema, pattern}
	}
	return `
		SELECT table_name, num_rows, last_analyzed
		FROM user_tables
		WHERE table_name LIKE UPPER(:1)
		ORDER BY table_name
	`, []any{pattern}
}

func (d *OracleDialect) DescribeQuery(table, schema string) (string, []any) {
	const typeExpr = `data_type ||
		CASE
		    WHEN data_precision IS NOT NULL THEN '(' || data_precision ||
		        CASE WHEN data_scale IS NOT NULL THEN ',' || data_scale ELSE '' END || ')'
		    WHEN data_type IN ('VARCHAR2','CHAR','RAW') THEN '(' || data_length || ')'
		    ELSE ''
		END AS data_type`

	if schema != "" {
		return fmt.Sprintf(`
			SELECT column_name, %s, nullable
			FROM all_tab_columns
			WHERE owner = UPPER(:1)
			  AND table_name = UPPER(:2)
			ORDER BY column_id
		`, typeExpr), []any{schema, table}
	}
	return fmt.Sprintf(`
		SELECT column_name, %s, nullable
		FROM user_tab_columns
		WHERE table_name = UPPER(:1)
		ORDER BY column_id
	`, typeExpr), []any{table}
}

func (d *OracleDialect) ExtraInfo(ctx context.Context, db *sql.DB, table, schema string) (*TableExtraInfo, error) {
	var pkCols, indexes []string
	var err error

	if schema != "" {
		pkCols, err = queryStrings(ctx, db, `
			SELECT cols.column_name
			FROM all_constraints cons
			JOIN all_cons_columns cols
			    ON cons.constraint_name = cols.constraint_name
			    AND cons.owner = cols.owner
			WHERE cons.constraint_type = 'P'
			  AND cons.owner = UPPER(:1)
			  AND cons.table_name = UPPER(:2)
			ORDER BY cols.position
		`, schema, table)
	} else {
		pkCols, err = queryStrings(ctx, db, `
			SELECT cols.column_name
			FROM user_constraints cons
			JOIN user_cons_columns cols
			    ON cons.constraint_name = cols.constraint_name
			WHERE cons.constraint_type = 'P'
			  AND cons.table_name = UPPER(:1)
			ORDER BY cols.position
		`, table)
	}
	if err != nil {
		return nil, err
	}

	if schema != "" {
		indexes, err = queryStrings(ctx, db, `
			SELECT index_name || ' (' || uniqueness || ')'
			FROM all_indexes
			WHERE owner = UPPER(:1)
			  AND table_name = UPPER(:2)
		`, schema, table)
	} else {
		indexes, err = queryStrings(ctx, db, `
			SELECT index_name || ' (' || uniqueness || ')'
			FROM user_indexes
			WHERE table_name = UPPER(:1)
		`, table)
	}
	if err != nil {
		return nil, err
	}

	if len(pkCols) == 0 && len(indexes) == 0 {
		return nil, nil
	}
	return &TableExtraInfo{PrimaryKey: pkCols, Indexes: indexes}, nil
}

var _ Dialect = (*OracleDialect)(nil)
