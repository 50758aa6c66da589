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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"
	"github.com/roagent/roagent/pkg/agent"
	"github.com/roagent/roagent/pkg/model"
	"github.com/roagent/roagent/pkg/model/openai"
	"github.com/roagent/roagent/pkg/session"
	"github.com/roagent/roagent/pkg/tool"
)

// DBBenchSystemPrompt is the system prompt for database tasks.
const DBBenchSystemPrompt = `You will answer questions by querying a database with SQL.

Tools:
- ` + "`execute_sql`" + `: Run a SQL query (one statement at a time)
- ` + "`commit_final_answer`" + `: Submit your final answer

Answer format:
- Return the value exactly as it appears in the query result
- Submit only the specific value(s) requested, not entire rows
- If the question asks for a single item, return one answer
- Preserve any units or formatting present in the data
- No results: submit "none"
- Modifications (INSERT/UPDATE/DELETE): submit "done" after completing
`

// OSSystemPrompt is the system prompt for OS interaction tasks.
const OSSystemPrompt = `You will complete tasks in a Linux environment by executing shell commands.

Tools:
- ` + "`bash_action`" + `: Execute a shell command (no interactive input)
- ` + "`answer_action`" + `: Submit your answer
- ` + "`finish_action`" + `: Signal task completion (when no answer is needed)

Answer format:
- Be exact and precise: a number, filename, or single value
- Do not answer with full sentences
- Output may be truncated; adjust your approach if needed
`

// continuePrompt nudges the agent forward on subsequent turns.
const continuePrompt = "Continue working on the task."

// maxConsecutiveTimeouts aborts the run when the API stops responding.
const maxConsecutiveTimeouts = 3

// ProgressFunc is called after each completed task.
type ProgressFunc func(completed, total int)

// Runner orchestrates evaluation tasks through the agent.
type Runner struct {
	config     Config
	scriptsDir string

	osEvaluator *OSEvaluator

	// ClientFactory builds the model client per task. Overridable in
	// tests; the default builds an OpenAI-compatible client from the
	// config.
	ClientFactory func() (model.Client, error)

	mysqlMu sync.Mutex
	mysql   *MySQLContainer
}

// NewRunner creates a runner. scriptsDir points at the OS benchmark
// check scripts; empty falls back to builtin checks.
func NewRunner(cfg Config, scriptsDir string) *Runner {
	r := &Runner{
		config:      cfg,
		scriptsDir:  scriptsDir,
		osEvaluator: NewOSEvaluator(scriptsDir),
	}
	r.ClientFactory = func() (model.Client, error) {
		return openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			ServiceTier: cfg.ServiceTier,
		})
	}
	return r
}

// ensureMySQL starts the shared MySQL container on first use.
func (r *Runner) ensureMySQL(ctx context.Context) (*MySQLContainer, error) {
	r.mysqlMu.Lock()
	defer r.mysqlMu.Unlock()
	if r.mysql == nil {
		m := NewMySQLContainer()
		if err := m.Start(ctx); err != nil {
			return nil, err
		}
		r.mysql = m
	}
	return r.mysql, nil
}

// Cleanup removes the shared MySQL container if one was started.
func (r *Runner) Cleanup(ctx context.Context) {
	r.mysqlMu.Lock()
	defer r.mysqlMu.Unlock()
	if r.mysql != nil {
		r.mysql.Cleanup(ctx)
		r.mysql = nil
	}
}

func (r *Runner) systemPrompt(taskType string) string {
	if r.config.SystemPromptFile != "" {
		if content, err := os.ReadFile(r.config.SystemPromptFile); err == nil {
			return string(content)
		}
	}
	if taskType == "os" {
		return OSSystemPrompt
	}
	return DBBenchSystemPrompt
}

func (r *Runner) turnTimeout() time.Duration {
	if r.config.ServiceTier == "flex" {
		return 600 * time.Second
	}
	return 120 * time.Second
}

func (r *Runner) newAgent(systemPrompt string, registry *tool.Registry) (*agent.Agent, *session.Session, error) {
	client, err := r.ClientFactory()
	if err != nil {
		return nil, nil, err
	}
	sess := session.New(systemPrompt, nil)
	ag := agent.New(agent.Config{
		Session:  sess,
		Registry: registry,
		Client:   client,
		// Compaction would rewrite the history mid-task and skew the
		// evaluation, so it stays off.
		DisableAutoCompact: true,
	})
	return ag, sess, nil
}

// runTurnLoop drives the agent until done reports true, the turn limit
// is hit, or an error classifies the task. Returns an AbortError after
// repeated consecutive turn timeouts.
func (r *Runner) runTurnLoop(ctx context.Context, ag *agent.Agent, taskIndex int, prompt string, done func() bool) (TaskStatus, error) {
	status := StatusCompleted
	timeout := r.turnTimeout()
	consecutiveTimeouts := 0
	turns := 0

	for turn := 0; turn < r.config.MaxTurns; turn++ {
		turns++
		if done() {
			break
		}

		input := prompt
		if turn > 0 {
			input = continuePrompt
		}

		turnCtx, cancel := context.WithTimeout(ctx, timeout)
		var errContent string
		for event := range ag.RunTurn(turnCtx, input) {
			if event.Type == agent.EventError {
				fmt.Fprintf(os.Stderr, "[Task %d] API Error: %s\n", taskIndex, event.Content)
				errContent = event.Content
			}
		}
		timedOut := turnCtx.Err() == context.DeadlineExceeded
		cancel()

		if timedOut {
			consecutiveTimeouts++
			fmt.Fprintf(os.Stderr, "[Task %d] Turn %d timed out (%d/%d)\n",
				taskIndex, turn, consecutiveTimeouts, maxConsecutiveTimeouts)
			if consecutiveTimeouts >= maxConsecutiveTimeouts {
				return status, &AbortError{
					Message:           "Aborting: 3 consecutive turn timeouts. API may be unresponsive.",
					ConsecutiveErrors: consecutiveTimeouts,
				}
			}
			continue
		}
		consecutiveTimeouts = 0

		if errContent != "" && strings.Contains(strings.ToLower(errContent), "context") {
			status = StatusContextLimit
			break
		}

		if done() {
			break
		}
	}

	if turns >= r.config.MaxTurns && !done() && status == StatusCompleted {
		status = StatusTaskLimitReached
	}
	return status, nil
}

func historyFromSession(sess *session.Session) []HistoryMessage {
	messages := sess.Messages()
	history := make([]HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		history = append(history, HistoryMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return history
}

func taskErrorResult(index int, err error) TaskResult {
	return TaskResult{
		Index:   index,
		Status:  StatusTaskError,
		History: []HistoryMessage{},
		Time:    NewTaskTime(),
		Error:   err.Error(),
	}
}

// RunDBBenchTask runs one database task. Mutation tasks with a
// pre-computed hash route to MySQL; everything else runs on SQLite.
// The returned error is non-nil only for run-level aborts.
func (r *Runner) RunDBBenchTask(ctx context.Context, task *DBBenchTask) (TaskResult, error) {
	if task.NeedsMySQL() {
		return r.runDBBenchMySQL(ctx, task)
	}
	return r.runDBBenchSQLite(ctx, task)
}

func (r *Runner) runDBBenchSQLite(ctx context.Context, task *DBBenchTask) (TaskResult, error) {
	dbPath, err := CreateSQLiteFromTableInfo(task.TableName, task.TableInfo, "")
	if err != nil {
		return taskErrorResult(task.Index, err), nil
	}
	defer os.Remove(dbPath)

	handler := NewSQLiteHandler(dbPath)
	defer handler.Close()

	registry := tool.NewRegistry()
	submit := NewSubmitHandler("commit_final_answer", nil)
	if err := registry.Register(handler); err != nil {
		return taskErrorResult(task.Index, err), nil
	}
	if err := registry.Register(submit); err != nil {
		return taskErrorResult(task.Index, err), nil
	}

	ag, sess, err := r.newAgent(r.systemPrompt("dbbench"), registry)
	if err != nil {
		return taskErrorResult(task.Index, err), nil
	}

	status, abortErr := r.runTurnLoop(ctx, ag, task.Index, task.Prompt(), submit.Submitted)
	if abortErr != nil {
		return TaskResult{}, abortErr
	}

	result := DBBenchResult{
		GroundTruth: task.ExpectedAnswer,
		StdSQL:      task.GroundTruthSQL,
		Type:        task.QueryType,
	}
	if answer, ok := submit.Answer(); ok {
		result.Answer = &answer
		result.IsCorrect = CompareResults(answer, task.ExpectedAnswer, task.QueryType)
	}

	return TaskResult{
		Index:   task.Index,
		Status:  status,
		History: historyFromSession(sess),
		Time:    NewTaskTime(),
		Result:  &result,
	}, nil
}

func (r *Runner) runDBBenchMySQL(ctx context.Context, task *DBBenchTask) (TaskResult, error) {
	mysql, err := r.ensureMySQL(ctx)
	if err != nil {
		return taskErrorResult(task.Index, err), nil
	}

	dbName := fmt.Sprintf("eval_%d_%s", task.Index, uuid.NewString()[:6])
	if err := mysql.CreateDatabase(ctx, dbName); err != nil {
		return taskErrorResult(task.Index, err), nil
	}
	defer mysql.DropDatabase(context.WithoutCancel(ctx), dbName)

	handler := NewMySQLHandler(mysql.ID(), dbName, mysql.Password())
	if err := handler.InitTable(ctx, task); err != nil {
		return taskErrorResult(task.Index, err), nil
	}

	registry := tool.NewRegistry()
	submit := NewSubmitHandler("commit_final_answer", nil)
	if err := registry.Register(handler); err != nil {
		return taskErrorResult(task.Index, err), nil
	}
	if err := registry.Register(submit); err != nil {
		return taskErrorResult(task.Index, err), nil
	}

	ag, sess, err := r.newAgent(r.systemPrompt("dbbench"), registry)
	if err != nil {
		return taskErrorResult(task.Index, err), nil
	}

	status, abortErr := r.runTurnLoop(ctx, ag, task.Index, task.Prompt(), submit.Submitted)
	if abortErr != nil {
		return TaskResult{}, abortErr
	}

	// Mutations are scored by table state, not by the submitted text.
	tableHash, _ := handler.CalculateTableHash(ctx, task.TableInfo, task.TableName)

	result := DBBenchResult{
		IsCorrect:   CompareHash(tableHash, task.AnswerMD5),
		GroundTruth: task.AnswerMD5,
		StdSQL:      task.GroundTruthSQL,
		Type:        task.QueryType,
	}
	if answer, ok := submit.Answer(); ok {
		result.Answer = &answer
	}

	return TaskResult{
		Index:   task.Index,
		Status:  status,
		History: historyFromSession(sess),
		Time:    NewTaskTime(),
		Result:  &result,
	}, nil
}

// RunOSTask runs one OS interaction task in a fresh container.
func (r *Runner) RunOSTask(ctx context.Context, task *OSTask) (TaskResult, error) {
	container := NewContainer(task.Image)
	if err := container.Start(ctx); err != nil {
		return taskErrorResult(task.Index, err), nil
	}
	defer container.Cleanup(context.WithoutCancel(ctx))

	if task.InitCode != "" {
		if err := container.RunInit(ctx, task.InitCode); err != nil {
			return taskErrorResult(task.Index, err), nil
		}
	}
	if task.InitFile != "" {
		initPath := task.InitFile
		if task.ScriptsDir != "" {
			initPath = filepath.Join(task.ScriptsDir, task.InitFile)
		}
		if err := container.RunInitFile(ctx, initPath); err != nil {
			return taskErrorResult(task.Index, err), nil
		}
	}
	if task.StartScript != "" {
		if err := container.RunBackground(ctx, task.StartScript); err != nil {
			return taskErrorResult(task.Index, err), nil
		}
	}

	registry := tool.NewRegistry()
	shell := NewShellHandler(container, 0)
	answer := NewSubmitHandler("answer_action", nil)
	finish := NewFinishHandler(nil)
	for _, h := range []tool.Handler{shell, answer, finish} {
		if err := registry.Register(h); err != nil {
			return taskErrorResult(task.Index, err), nil
		}
	}

	ag, sess, err := r.newAgent(r.systemPrompt("os"), registry)
	if err != nil {
		return taskErrorResult(task.Index, err), nil
	}

	done := func() bool {
		return answer.Submitted() || finish.Finished()
	}
	status, abortErr := r.runTurnLoop(ctx, ag, task.Index, task.Prompt(), done)
	if abortErr != nil {
		return TaskResult{}, abortErr
	}

	submitted, answered := answer.Answer()
	isCorrect := r.osEvaluator.Evaluate(ctx, submitted, answered, task.Evaluation, container, task.ScriptsDir)

	return TaskResult{
		Index:   task.Index,
		Status:  status,
		History: historyFromSession(sess),
		Time:    NewTaskTime(),
		Result:  &OSResult{Result: isCorrect},
	}, nil
}

// RunDBBenchTasks runs tasks with the configured parallelism, saving
// results incrementally under outputDir.
func (r *Runner) RunDBBenchTasks(ctx context.Context, tasks []DBBenchTask, outputDir string, progress ProgressFunc) ([]TaskResult, *Metrics, error) {
	defer r.Cleanup(context.WithoutCancel(ctx))
	return r.runAll(ctx, len(tasks), outputDir, progress, func(ctx context.Context, i int) (TaskResult, error) {
		return r.RunDBBenchTask(ctx, &tasks[i])
	})
}

// RunOSTasks runs OS tasks with the configured parallelism, saving
// results incrementally under outputDir.
func (r *Runner) RunOSTasks(ctx context.Context, tasks []OSTask, outputDir string, progress ProgressFunc) ([]TaskResult, *Metrics, error) {
	return r.runAll(ctx, len(tasks), outputDir, progress, func(ctx context.Context, i int) (TaskResult, error) {
		return r.RunOSTask(ctx, &tasks[i])
	})
}

// runAll fans tasks out to workers and funnels results through one
// collector, which owns metrics, incremental saving and the
// consecutive-error abort.
func (r *Runner) runAll(ctx context.Context, total int, outputDir string, progress ProgressFunc, run func(ctx context.Context, i int) (TaskResult, error)) ([]TaskResult, *Metrics, error) {
	metrics := &Metrics{}
	var results []TaskResult

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, runCtx := errgroup.WithContext(runCtx)
	parallel := r.config.Parallel
	if parallel < 1 {
		parallel = 1
	}
	g.SetLimit(parallel)

	resultCh := make(chan TaskResult)
	var collectErr error
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		consecutiveErrors := 0
		for result := range resultCh {
			results = append(results, result)

			if outputDir != "" {
				if err := AppendResult(result, outputDir); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to save result %d: %s\n", result.Index, err)
				}
			}

			metrics.AddResult(result, result.Correct())
			if outputDir != "" {
				if err := UpdateOverall(metrics, outputDir); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to update overall metrics: %s\n", err)
				}
			}

			if result.Status == StatusTaskError {
				consecutiveErrors++
				if consecutiveErrors >= r.config.MaxConsecutiveErrors && collectErr == nil {
					collectErr = &AbortError{
						Message: fmt.Sprintf("Aborting: %d consecutive task errors. Last error: %s",
							consecutiveErrors, result.Error),
						ConsecutiveErrors: consecutiveErrors,
					}
					cancel()
				}
			} else {
				consecutiveErrors = 0
			}

			if progress != nil {
				progress(len(results), total)
			}
		}
	}()

	for i := 0; i < total; i++ {
		i := i
		g.Go(func() error {
			if runCtx.Err() != nil {
				return runCtx.Err()
			}
			result, err := run(runCtx, i)
			if err != nil {
				return err
			}
			select {
			case resultCh <- result:
				return nil
			case <-runCtx.Done():
				return runCtx.Err()
			}
		})
	}

	err := g.Wait()
	close(resultCh)
	<-collectorDone

	sort.Slice(results, func(i, j int) bool {
		return results[i].Index < results[j].Index
	})

	if collectErr != nil {
		return results, metrics, collectErr
	}
	if err != nil && err != context.Canceled {
		return results, metrics, err
	}
	return results, metrics, nil
}
