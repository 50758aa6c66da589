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

	_ "github.com/lib/pq"
)

const pgSystemSchemas = "('pg_catalog', 'information_schema', 'pg_toast')"

// PostgresConfig configures the PostgreSQL dialect. Zero values fall
// back to the POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DATABASE,
// POSTGRES_USER and POSTGRES_PASSWORD environment variables.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// ReadOnly sets default_transaction_read_only on the session.
	ReadOnly bool
}

// PostgresDialect queries a PostgreSQL database.
type PostgresDialect struct {
	cfg PostgresConfig
}

// NewPostgres creates the PostgreSQL dialect.
func NewPostgres(cfg PostgresConfig) *PostgresDialect {
	cfg.Host = envOr(cfg.Host, envOr(os.Getenv("POSTGRES_HOST"), "localhost"))
	if cfg.Port == 0 {
		cfg.Port = 5432
		if p, err := strconv.Atoi(os.Getenv("POSTGRES_PORT")); err == nil {
			cfg.Port = p
		}
	}
	cfg.Database = envOr(cfg.Database, os.Getenv("POSTGRES_DATABASE"))
	cfg.User = envOr(cfg.User, os.Getenv("POSTGRES_USER"))
	cfg.Password = envOr(cfg.Password, os.Getenv("POSTGRES_PASSWORD"))
	return &PostgresDialect{cfg: cfg}
}

func (d *PostgresDialect) Type() string {
	return "postgres"
}

func (d *PostgresDialect) Description() string {
	dbInfo := "PostgreSQL"
	if d.cfg.Database != "" {
		dbInfo = fmt.Sprintf("%s@%s", d.cfg.Database, d.cfg.Host)
	}
	mode := "full"
	if d.cfg.ReadOnly {
		mode = "read-only"
	}
	return fmt.Sprintf(
		"Query the PostgreSQL database (%s). "+
			"Use 'list_tables' to see available tables, 'describe' for table schema, "+
			"'query' for SQL queries (%s access).",
		dbInfo, mode,
	)
}

func (d *PostgresDialect) Open(ctx context.Context) (*sql.DB, error) {
	if d.cfg.Database == "" {
		return nil, errors.New("no PostgreSQL database configured. Set POSTGRES_DATABASE env var")
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		d.cfg.Host, d.cfg.Port, d.cfg.Database, d.cfg.User, d.cfg.Password)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// One pooled connection, held for the handler's lifetime. Session
	// flags set below would not survive onto fresh pool connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if d.cfg.ReadOnly {
		if _, err := db.ExecContext(ctx, "SET default_transaction_read_only = ON"); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (d *PostgresDialect) ListTablesQuery(schema, pattern string) (string, []any) {
	if schema != "" {
		return `
			SELECT table_schema, table_name, table_type
			FROM information_schema.tables
			WHERE table_schema = $1
			  AND table_name LIKE $2
			ORDER BY table_schema, table_name
		`, []any{schema, pattern}
	}
	return `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ` + pgSystemSchemas + `
		  AND table_name LIKE $1
		ORDER BY table_schema, table_name
	`, []any{pattern}
}

func (d *PostgresDialect) DescribeQuery(table, schema string) (string, []any) {
	const typeExpr = `
		CASE
		    WHEN character_maximum_length IS NOT NULL
		        THEN data_type || '(' || character_maximum_length || ')'
		    WHEN numeric_precision IS NOT NULL AND numeric_scale IS NOT NULL
		        THEN data_type || '(' || numeric_precision || ',' || numeric_scale || ')'
		    WHEN numeric_precision IS NOT NULL
		        THEN data_type || '(' || numeric_precision || ')'
		    ELSE data_type
		END as data_type`

	if schema != "" {
		return fmt.Sprintf(`
			SELECT column_name, %s, is_nullable
			FROM information_schema.columns
			WHERE table_schema = $1
			  AND table_name = $2
			ORDER BY ordinal_position
		`, typeExpr), []any{schema, table}
	}
	return fmt.Sprintf(`
		SELECT column_name, %s, is_nullable
		FROM information_schema.columns
		WHERE table_schema NOT IN %s
		  AND table_name = $1
		ORDER BY ordinal_position
	`, typeExpr, pgSystemSchemas), []any{table}
}

func (d *PostgresDialect) ExtraInfo(ctx context.Context, db *sql.DB, table, schema string) (*TableExtraInfo, error) {
	var pkCols, indexes []string
	var err error

	if schema != "" {
		pkCols, err = queryStrings(ctx, db, `
			SELECT a.attname
			FROM pg_index i
			JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
			JOIN pg_class c ON c.oid = i.indrelid
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE i.indisprimary
			  AND n.nspname = $1
			  AND c.relname = $2
			ORDER BY array_position(i.indkey, a.attnum)
		`, schema, table)
	} else {
		pkCols, err = queryStrings(ctx, db, `
			SELECT a.attname
			FROM pg_index i
			JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
			JOIN pg_class c ON c.oid = i.indrelid
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE i.indisprimary
			  AND n.nspname NOT IN `+pgSystemSchemas+`
			  AND c.relname = $1
			ORDER BY array_position(i.indkey, a.attnum)
		`, table)
	}
	if err != nil {
		return nil, err
	}

	if schema != "" {
		indexes, err = queryStrings(ctx, db, `
			SELECT indexname || ' (' ||
			    CASE WHEN indexdef LIKE '%UNIQUE%' THEN 'UNIQUE' ELSE 'NONUNIQUE' END
			    || ')'
			FROM pg_indexes
			WHERE schemaname = $1 AND tablename = $2
		`, schema, table)
	} else {
		indexes, err = queryStrings(ctx, db, `
			SELECT indexname || ' (' ||
			    CASE WHEN indexdef LIKE '%UNIQUE%' THEN 'UNIQUE' ELSE 'NONUNIQUE' END
			    || ')'
			FROM pg_indexes
			WHERE schemaname NOT IN `+pgSystemSchemas+`
			  AND tablename = $1
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

var _ Dialect = (*PostgresDialect)(nil)
