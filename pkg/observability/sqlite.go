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

package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- One row per agent invocation.
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    team_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    agent_id TEXT,
    environment TEXT,
    profile TEXT,
    model TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP,
    status TEXT DEFAULT 'active',
    total_input_tokens INTEGER DEFAULT 0,
    total_output_tokens INTEGER DEFAULT 0,
    total_tool_calls INTEGER DEFAULT 0,
    metadata JSON
);

-- One row per user input/response cycle.
CREATE TABLE IF NOT EXISTS turns (
    turn_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(session_id),
    turn_index INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    user_input TEXT
);

-- One row per tool call.
CREATE TABLE IF NOT EXISTS tool_executions (
    execution_id TEXT PRIMARY KEY,
    turn_id TEXT NOT NULL REFERENCES turns(turn_id),
    tool_name TEXT NOT NULL,
    arguments JSON,
    result TEXT,
    success BOOLEAN DEFAULT TRUE,
    error TEXT,
    duration_ms INTEGER DEFAULT 0,
    started_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_team_project ON sessions(team_id, project_id);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_turns_session_id ON turns(session_id);
CREATE INDEX IF NOT EXISTS idx_tool_executions_turn_id ON tool_executions(turn_id);
CREATE INDEX IF NOT EXISTS idx_tool_executions_tool_name ON tool_executions(tool_name);
`

// SessionSummary is one row of a session listing.
type SessionSummary struct {
	SessionID         string
	TeamID            string
	ProjectID         string
	Model             string
	StartedAt         time.Time
	EndedAt           time.Time
	Status            string
	TotalInputTokens  int
	TotalOutputTokens int
	TotalToolCalls    int
	TurnCount         int
}

// ToolStats aggregates executions per tool.
type ToolStats struct {
	ToolName        string
	TotalCalls      int
	SuccessCount    int
	FailureCount    int
	AvgDurationMS   float64
	TotalDurationMS int64
}

// CostSummary aggregates token usage per tenant.
type CostSummary struct {
	TeamID            string
	ProjectID         string
	TotalSessions     int
	TotalInputTokens  int
	TotalOutputTokens int
	TotalToolCalls    int
}

// TelemetryStorage is the SQLite store behind the default exporter.
type TelemetryStorage struct {
	db *sql.DB
}

// NewTelemetryStorage opens (and migrates) the telemetry database,
// creating parent directories as needed.
func NewTelemetryStorage(dbPath string) (*TelemetryStorage, error) {
	dbPath = expandHome(dbPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	s := &TelemetryStorage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *TelemetryStorage) initSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("init telemetry schema: %w", err)
	}
	var current sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&current); err != nil {
		return err
	}
	if int(current.Int64) < schemaVersion {
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *TelemetryStorage) Close() error {
	return s.db.Close()
}

func timestampOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// CreateSession inserts a new session record.
func (s *TelemetryStorage) CreateSession(ctx context.Context, tc *TelemetryContext) error {
	metadata, err := json.Marshal(tc.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, team_id, project_id, agent_id, environment,
			profile, model, started_at, status, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tc.SessionID, tc.TeamID, tc.ProjectID, nullable(tc.AgentID), tc.Environment,
		tc.Profile, tc.Model, tc.StartedAt.Format(time.RFC3339Nano), tc.Status, string(metadata),
	)
	return err
}

// UpdateSession writes the session's current totals and status.
func (s *TelemetryStorage) UpdateSession(ctx context.Context, tc *TelemetryContext) error {
	metadata, err := json.Marshal(tc.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET
			ended_at = ?,
			status = ?,
			total_input_tokens = ?,
			total_output_tokens = ?,
			total_tool_calls = ?,
			metadata = ?
		WHERE session_id = ?`,
		timestampOrNil(tc.EndedAt), tc.Status,
		tc.TotalInputTokens, tc.TotalOutputTokens, tc.TotalToolCalls,
		string(metadata), tc.SessionID,
	)
	return err
}

// CreateTurn inserts a new turn record.
func (s *TelemetryStorage) CreateTurn(ctx context.Context, turn *TurnContext) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (
			turn_id, session_id, turn_index, started_at, user_input
		) VALUES (?, ?, ?, ?, ?)`,
		turn.TurnID, turn.SessionID, turn.TurnIndex,
		turn.StartedAt.Format(time.RFC3339Nano), turn.UserInput,
	)
	return err
}

// EndTurn writes the turn's final token counts.
func (s *TelemetryStorage) EndTurn(ctx context.Context, turn *TurnContext) error {
	ended := turn.EndedAt
	if ended.IsZero() {
		ended = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE turns SET
			ended_at = ?,
			input_tokens = ?,
			output_tokens = ?
		WHERE turn_id = ?`,
		ended.Format(time.RFC3339Nano), turn.InputTokens, turn.OutputTokens, turn.TurnID,
	)
	return err
}

// RecordToolExecution inserts a completed tool execution.
func (s *TelemetryStorage) RecordToolExecution(ctx context.Context, e *ToolExecutionContext) error {
	arguments, err := json.Marshal(e.Arguments)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_executions (
			execution_id, turn_id, tool_name, arguments, result,
			success, error, duration_ms, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ExecutionID, e.TurnID, e.ToolName, string(arguments), nullable(e.Result),
		e.Success, nullable(e.Error), e.DurationMS, e.StartedAt.Format(time.RFC3339Nano),
	)
	return err
}

// ListSessions returns sessions newest-first with optional tenant and
// status filters.
func (s *TelemetryStorage) ListSessions(ctx context.Context, teamID, projectID, status string, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT
			s.session_id, s.team_id, s.project_id, s.model,
			s.started_at, s.ended_at, s.status,
			s.total_input_tokens, s.total_output_tokens, s.total_tool_calls,
			COUNT(t.turn_id) AS turn_count
		FROM sessions s
		LEFT JOIN turns t ON s.session_id = t.session_id
		WHERE 1=1`
	var args []any
	if teamID != "" {
		query += " AND s.team_id = ?"
		args = append(args, teamID)
	}
	if projectID != "" {
		query += " AND s.project_id = ?"
		args = append(args, projectID)
	}
	if status != "" {
		query += " AND s.status = ?"
		args = append(args, status)
	}
	query += " GROUP BY s.session_id ORDER BY s.started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var started string
		var ended sql.NullString
		if err := rows.Scan(
			&sum.SessionID, &sum.TeamID, &sum.ProjectID, &sum.Model,
			&started, &ended, &sum.Status,
			&sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalToolCalls,
			&sum.TurnCount,
		); err != nil {
			return nil, err
		}
		sum.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if ended.Valid {
			sum.EndedAt, _ = time.Parse(time.RFC3339Nano, ended.String)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetToolStats aggregates tool usage across all recorded executions
// for the optional tenant filter.
func (s *TelemetryStorage) GetToolStats(ctx context.Context, teamID, projectID string) ([]ToolStats, error) {
	query := `
		SELECT
			te.tool_name,
			COUNT(*) AS total_calls,
			SUM(CASE WHEN te.success THEN 1 ELSE 0 END) AS success_count,
			SUM(CASE WHEN NOT te.success THEN 1 ELSE 0 END) AS failure_count,
			AVG(te.duration_ms) AS avg_duration_ms,
			SUM(te.duration_ms) AS total_duration_ms
		FROM tool_executions te
		JOIN turns t ON te.turn_id = t.turn_id
		JOIN sessions s ON t.session_id = s.session_id
		WHERE 1=1`
	var args []any
	if teamID != "" {
		query += " AND s.team_id = ?"
		args = append(args, teamID)
	}
	if projectID != "" {
		query += " AND s.project_id = ?"
		args = append(args, projectID)
	}
	query += " GROUP BY te.tool_name ORDER BY total_calls DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToolStats
	for rows.Next() {
		var st ToolStats
		var avg sql.NullFloat64
		var total sql.NullInt64
		if err := rows.Scan(&st.ToolName, &st.TotalCalls, &st.SuccessCount, &st.FailureCount, &avg, &total); err != nil {
			return nil, err
		}
		st.AvgDurationMS = avg.Float64
		st.TotalDurationMS = total.Int64
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetCostSummary aggregates token usage grouped by tenant.
func (s *TelemetryStorage) GetCostSummary(ctx context.Context, teamID, projectID string) ([]CostSummary, error) {
	query := `
		SELECT
			team_id, project_id,
			COUNT(*) AS total_sessions,
			COALESCE(SUM(total_input_tokens), 0),
			COALESCE(SUM(total_output_tokens), 0),
			COALESCE(SUM(total_tool_calls), 0)
		FROM sessions
		WHERE 1=1`
	var args []any
	if teamID != "" {
		query += " AND team_id = ?"
		args = append(args, teamID)
	}
	if projectID != "" {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " GROUP BY team_id, project_id ORDER BY total_input_tokens + total_output_tokens DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CostSummary
	for rows.Next() {
		var cs CostSummary
		if err := rows.Scan(&cs.TeamID, &cs.ProjectID, &cs.TotalSessions,
			&cs.TotalInputTokens, &cs.TotalOutputTokens, &cs.TotalToolCalls); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SQLiteExporter persists telemetry locally. This is the default
// backend; data can be queried later via TelemetryStorage.
type SQLiteExporter struct {
	storage *TelemetryStorage
}

// NewSQLiteExporter opens the exporter over the configured database
// path.
func NewSQLiteExporter(cfg Config) (*SQLiteExporter, error) {
	path := cfg.Backend.Sqlite.Path
	if path == "" {
		path = DefaultTelemetryDB()
	}
	storage, err := NewTelemetryStorage(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteExporter{storage: storage}, nil
}

// Storage exposes the underlying store for queries.
func (e *SQLiteExporter) Storage() *TelemetryStorage {
	return e.storage
}

func (e *SQLiteExporter) StartSession(ctx context.Context, tc *TelemetryContext) error {
	return e.storage.CreateSession(ctx, tc)
}

func (e *SQLiteExporter) EndSession(ctx context.Context, tc *TelemetryContext) error {
	return e.storage.UpdateSession(ctx, tc)
}

func (e *SQLiteExporter) StartTurn(ctx context.Context, turn *TurnContext) error {
	return e.storage.CreateTurn(ctx, turn)
}

func (e *SQLiteExporter) EndTurn(ctx context.Context, turn *TurnContext) error {
	return e.storage.EndTurn(ctx, turn)
}

func (e *SQLiteExporter) RecordToolExecution(ctx context.Context, execution *ToolExecutionContext) error {
	return e.storage.RecordToolExecution(ctx, execution)
}

func (e *SQLiteExporter) Flush(context.Context) error {
	return nil
}

func (e *SQLiteExporter) Close() error {
	return e.storage.Close()
}

var _ Exporter = (*SQLiteExporter)(nil)
