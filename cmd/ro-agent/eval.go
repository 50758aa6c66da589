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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	gosignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/roagent/roagent/pkg/eval"
)

// EvalCmd runs benchmark evaluations.
type EvalCmd struct {
	Dbbench EvalDBBenchCmd `cmd:"" help:"Run DBBench database question-answering tasks."`
	Os      EvalOSCmd      `cmd:"" name:"os" help:"Run OS interaction tasks in Docker containers."`
}

// evalFlags are shared by both evaluation tracks.
type evalFlags struct {
	Model        string `short:"m" env:"OPENAI_MODEL" default:"gpt-5-mini" help:"Model to evaluate."`
	BaseURL      string `name:"base-url" env:"OPENAI_BASE_URL" help:"API base URL."`
	Parallel     int    `short:"p" default:"1" help:"Tasks run concurrently."`
	Output       string `short:"o" type:"path" help:"Base output directory (default results/<model>-<track>)."`
	Resume       string `short:"r" type:"path" help:"Resume a previous run (path to its run directory)."`
	SystemPrompt string `name:"system-prompt" type:"path" help:"File overriding the built-in system prompt."`
	Limit        int    `short:"n" help:"Run at most this many tasks (0 = all)."`
	Offset       int    `help:"Skip this many tasks."`
	Verbose      bool   `short:"v" help:"Print per-task progress."`
	ServiceTier  string `name:"service-tier" help:"Provider service tier (flex or auto)."`
}

func (f *evalFlags) config(maxTurns int) eval.Config {
	cfg := eval.DefaultConfig()
	cfg.Model = f.Model
	cfg.BaseURL = f.BaseURL
	cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.MaxTurns = maxTurns
	cfg.Parallel = f.Parallel
	cfg.SystemPromptFile = f.SystemPrompt
	cfg.Verbose = f.Verbose
	cfg.ServiceTier = f.ServiceTier
	return cfg
}

// resolveRunDir picks the run directory: a fresh timestamped dir under
// the output base, or an existing one when resuming. For resumes it
// also returns the task indices already completed.
func (f *evalFlags) resolveRunDir(track string) (runDir string, completed map[int]bool, resuming bool, err error) {
	if f.Resume != "" {
		info, err := os.Stat(f.Resume)
		if err != nil || !info.IsDir() {
			return "", nil, false, fmt.Errorf("run directory not found: %s", f.Resume)
		}
		completed, err := eval.CompletedIndices(f.Resume)
		if err != nil {
			return "", nil, false, err
		}
		return f.Resume, completed, true, nil
	}

	base := f.Output
	if base == "" {
		base = filepath.Join("results", strings.ReplaceAll(f.Model, "/", "-")+"-"+track)
	}
	runDir, err = eval.CreateRunDir(base)
	if err != nil {
		return "", nil, false, err
	}
	return runDir, map[int]bool{}, false, nil
}

func (f *evalFlags) saveConfig(runDir, track, dataPath string, maxTurns, taskCount int) {
	config := map[string]any{
		"track":        track,
		"data":         dataPath,
		"model":        f.Model,
		"base_url":     f.BaseURL,
		"max_turns":    maxTurns,
		"parallel":     f.Parallel,
		"limit":        f.Limit,
		"offset":       f.Offset,
		"service_tier": f.ServiceTier,
		"task_count":   taskCount,
	}
	if err := eval.SaveRunConfig(config, runDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save run config: %v\n", err)
	}
}

func evalContext() (context.Context, context.CancelFunc) {
	return gosignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func progressPrinter(verbose bool) eval.ProgressFunc {
	return func(completed, total int) {
		if verbose {
			fmt.Printf("[%d/%d] tasks done\n", completed, total)
		} else {
			fmt.Printf("\r[%d/%d]", completed, total)
			if completed == total {
				fmt.Println()
			}
		}
	}
}

// finishRun prints the summary or reports an aborted run. Resumed runs
// recompute metrics from the full runs.jsonl so earlier sessions count.
func finishRun(runDir string, resuming bool, metrics *eval.Metrics, runErr error) error {
	var abort *eval.AbortError
	if errors.As(runErr, &abort) {
		fmt.Printf("\nEvaluation aborted: %s\n", abort.Message)
		fmt.Printf("Partial results saved to: %s\n", runDir)
		return runErr
	}
	if runErr != nil {
		return runErr
	}

	if resuming {
		rebuilt, err := eval.RebuildMetrics(runDir)
		if err != nil {
			return err
		}
		metrics = rebuilt
		if err := eval.UpdateOverall(metrics, runDir); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println(eval.FormatSummary(metrics))
	fmt.Printf("Results saved to: %s\n", runDir)
	return nil
}

// EvalDBBenchCmd runs the DBBench track.
type EvalDBBenchCmd struct {
	DataFile string `arg:"" type:"existingfile" help:"DBBench JSONL task file."`

	evalFlags
	MaxTurns   int  `name:"max-turns" default:"20" help:"Turn cap per task."`
	SelectOnly bool `name:"select-only" help:"Run only SELECT tasks (no MySQL container needed)."`
}

func (c *EvalDBBenchCmd) Run() error {
	tasks, err := eval.LoadDBBenchTasks(c.DataFile)
	if err != nil {
		return err
	}
	if c.SelectOnly {
		var filtered []eval.DBBenchTask
		for _, task := range tasks {
			if task.QueryType == "SELECT" {
				filtered = append(filtered, task)
			}
		}
		tasks = filtered
	}
	tasks = sliceTasks(tasks, c.Offset, c.Limit)

	runDir, completed, resuming, err := c.resolveRunDir("dbbench")
	if err != nil {
		return err
	}
	if resuming {
		var remaining []eval.DBBenchTask
		for _, task := range tasks {
			if !completed[task.Index] {
				remaining = append(remaining, task)
			}
		}
		fmt.Printf("Resuming %s: %d of %d tasks remaining\n", runDir, len(remaining), len(tasks))
		tasks = remaining
	} else {
		c.saveConfig(runDir, "dbbench", c.DataFile, c.MaxTurns, len(tasks))
		fmt.Printf("Running %d DBBench tasks with %s\n", len(tasks), c.Model)
	}

	ctx, stop := evalContext()
	defer stop()

	runner := eval.NewRunner(c.config(c.MaxTurns), "")
	defer runner.Cleanup(context.WithoutCancel(ctx))

	_, metrics, runErr := runner.RunDBBenchTasks(ctx, tasks, runDir, progressPrinter(c.Verbose))
	return finishRun(runDir, resuming, metrics, runErr)
}

// EvalOSCmd runs the OS interaction track.
type EvalOSCmd struct {
	DataPath string `arg:"" type:"path" help:"Benchmark directory, or a single task JSON file with --scripts."`

	evalFlags
	MaxTurns int    `name:"max-turns" default:"8" help:"Turn cap per task."`
	Scripts  string `short:"s" type:"existingdir" help:"Check-script directory for single-file mode."`
}

func (c *EvalOSCmd) Run() error {
	var tasks []eval.OSTask
	var err error
	info, statErr := os.Stat(c.DataPath)
	if statErr != nil {
		return fmt.Errorf("data path not found: %s", c.DataPath)
	}
	scriptsDir := c.Scripts
	if info.IsDir() {
		tasks, err = eval.LoadOSBenchmark(c.DataPath)
	} else {
		tasks, err = eval.LoadOSTasks(c.DataPath, scriptsDir, 0)
	}
	if err != nil {
		return err
	}
	tasks = sliceTasks(tasks, c.Offset, c.Limit)

	runDir, completed, resuming, err := c.resolveRunDir("os")
	if err != nil {
		return err
	}
	if resuming {
		var remaining []eval.OSTask
		for _, task := range tasks {
			if !completed[task.Index] {
				remaining = append(remaining, task)
			}
		}
		fmt.Printf("Resuming %s: %d of %d tasks remaining\n", runDir, len(remaining), len(tasks))
		tasks = remaining
	} else {
		c.saveConfig(runDir, "os", c.DataPath, c.MaxTurns, len(tasks))
		fmt.Printf("Running %d OS tasks with %s\n", len(tasks), c.Model)
	}

	ctx, stop := evalContext()
	defer stop()

	runner := eval.NewRunner(c.config(c.MaxTurns), scriptsDir)
	defer runner.Cleanup(context.WithoutCancel(ctx))

	_, metrics, runErr := runner.RunOSTasks(ctx, tasks, runDir, progressPrinter(c.Verbose))
	return finishRun(runDir, resuming, metrics, runErr)
}

// sliceTasks applies --offset and --limit.
func sliceTasks[T any](tasks []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(tasks) {
			return nil
		}
		tasks = tasks[offset:]
	}
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks
}
