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
	"strconv"

	_ "github.com/go-sql-driver/mysql"
)

// MysqlConfig configures the MySQL dialect. Zero values fall back to
// the MYSQL_HOST, MYSQL_PORT, MYSQL_DATABASE, MYSQL_USER and
// MYSQL_PASSWORD environment variables.
type MysqlConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// ReadOnly makes the session read-only on top of keyword screening.
	ReadOnly bool
}

// MysqlDialect queries a MySQL database over a read-only session.
type MysqlDialect struct {
	cfg MysqlConfig
}

// NewMysql creates the MySQL dialect.
func NewMysql(cfg MysqlConfig) *MysqlDialect {
	cfg.Host = envOr(cfg.Host, envOr(os.Getenv("MYSQL_HOST"), "localhost"))
	if cfg.Port == 0 {
		cfg.Port = 3306
		if p, err := strconv.Atoi(os.Getenv("MYSQL_PORT")); err == nil {
			cfg.Port = p
		}
	}
	cfg.Database = envOr(cfg.Database, os.Getenv("MYSQL_DATABASE"))
	cfg.User = envOr(cfg.User, os.Getenv("MYSQL_USER"))
	cfg.Password = envOr(cfg.Password, os.Getenv("MYSQL_PASSWORD"))
	return &MysqlDialect{cfg: cfg}
}

func (d *MysqlDialect) Type() string {
	return "mysql"
}

func (d *MysqlDialect) Description() string {
	dbInfo := "MySQL"
	if d.cfg.Database != "" {
		dbInfo = fmt.Sprintf("%s@%s", d.cfg.Database, d.cfg.Host)
	}
	mode := "full"
	if d.cfg.ReadOnly {
		mode = "read-only"
	}
	return fmt.Sprintf(
		"Query the MySQL database (%s). "+
			"Use 'list_tables' to see available tables, 'describe' for table schema, "+
			"'query' for SQL queries (%s access).",
		dbInfo, mode,
	)
}

func (d *MysqlDialect) Open(ctx context.Context) (*sql.DB, error) {
	if d.cfg.Database == "" {
		return nil, errors.New("no MySQL database configured. Set MYSQL_DATABASE env var")
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
		d.cfg.User, d.cfg.Password, d.cfg.Host, d.cfg.Port, d.cfg.Database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	// One pooled connection, held for the handler's lifetime. Session
	// flags set below would not survive onto fresh pool connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if d.cfg.ReadOnly {
		if _, err := db.ExecContext(ctx, "SET SESSION TRANSACTION READ ONLY"); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (d *MysqlDialect) ListTablesQuery(schema, pattern string) (string, []any) {
	if schema != "" {
		return `
			SELECT table_schema, table_name, table_type
			FROM information_schema.tables
			WHERE table_schema = ?
			  AND table_name LIKE ?
			ORDER BY table_schema, table_name
		`, []any{schema, pattern}
	}
	return `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_name LIKE ?
		ORDER BY table_schema, table_name
	`, []any{pattern}
}

func (d *MysqlDialect) DescribeQuery(table, schema string) (string, []any) {
	const typeExpr = `
		CASE
		    WHEN character_maximum_length IS NOT NULL
		        THEN CONCAT(data_type, '(', character_maximum_length, ')')
		    WHEN numeric_precision IS NOT NULL AND numeric_scale IS NOT NULL AND numeric_scale > 0
		        THEN CONCAT(data_type, '(', numeric_precision, ',', numeric_scale, ')')
		    WHEN numeric_precision IS NOT NULL
		        THEN CONCAT(data_type, '(', numeric_precision, ')')
		    ELSE data_type
		END as data_type`

	if schema != "" {
		return fmt.Sprintf(`
			SELECT column_name, %s, is_nullable
			FROM information_schema.columns
			WHERE table_schema = ?
			  AND table_name = ?
			ORDER BY ordinal_position
		`, typeExpr), []any{schema, table}
	}
	return fmt.Sprintf(`
		SELECT column_name, %s, is_nullable
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		ORDER BY ordinal_position
	`, typeExpr), []any{table}
}

func (d *MysqlDialect) ExtraInfo(ctx context.Context, db *sql.DB, table, schema string) (*TableExtraInfo, error) {
	if schema == "" {
		var current sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&current); err != nil {
			return nil, err
		}
		if !current.Valid || current.String == "" {
			return nil, nil
		}
		schema = current.String
	}

	pkCols, err := queryStrings(ctx, db, `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
		  AND table_name = ?
		  AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`, schema, table)
	if err != nil {
		return nil, err
	}

	indexes, err := queryStrings(ctx, db, `
		SELECT CONCAT(
		    index_name,
		    ' (',
		    CASE WHEN non_unique = 0 THEN 'UNIQUE' ELSE 'NONUNIQUE' END,
		    ')'
		)
		FROM information_schema.statistics
		WHERE table_schema = ?
		  AND table_name = ?
		GROUP BY index_name, non_unique
		ORDER BY index_name
	`, schema, table)
	if err != nil {
		return nil, err
	}

	if len(pkCols) == 0 && len(indexes) == 0 {
		return nil, nil
	}
	return &TableExtraInfo{PrimaryKey: pkCols, Indexes: indexes}, nil
}

var _ Dialect = (*MysqlDialect)(nil)
