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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteResults writes the run in AgentBench format: runs.jsonl with
// one task per line, overall.json with aggregate metrics, and a
// human-readable summary.txt. prefix, when set, prefixes each
// filename.
func WriteResults(results []TaskResult, metrics *Metrics, outputDir, prefix string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	runsPath := filepath.Join(outputDir, prefix+"runs.jsonl")
	f, err := os.Create(runsPath)
	if err != nil {
		return err
	}
	for _, result := range results {
		line, err := json.Marshal(result)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}

	overall, err := json.MarshalIndent(metrics.Summary(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outputDir, prefix+"overall.json"), overall, 0o644); err != nil {
		return err
	}

	summary := FormatSummary(metrics) + "\n"
	return os.WriteFile(filepath.Join(outputDir, prefix+"summary.txt"), []byte(summary), 0o644)
}

// AppendResult appends one task to runs.jsonl so partial runs survive
// a crash.
func AppendResult(result TaskResult, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	line, err := json.Marshal(result)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(outputDir, "runs.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// UpdateOverall rewrites overall.json with the current totals.
func UpdateOverall(metrics *Metrics, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	overall, err := json.MarshalIndent(metrics.Summary(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "overall.json"), overall, 0o644)
}

// FormatSummary renders metrics for display.
func FormatSummary(metrics *Metrics) string {
	rule := strings.Repeat("=", 50)
	lines := []string{
		rule,
		"Evaluation Results",
		rule,
		fmt.Sprintf("Total tasks:     %d", metrics.Total),
		fmt.Sprintf("Passed:          %d", metrics.Passed),
		fmt.Sprintf("Failed:          %d", metrics.Failed),
		fmt.Sprintf("Accuracy:        %.2f%%", metrics.Accuracy()*100),
		"",
		"Status Breakdown:",
		fmt.Sprintf("  Completed:           %d", metrics.Completed),
		fmt.Sprintf("  Context limit:       %d", metrics.ContextLimit),
		fmt.Sprintf("  Validation failed:   %d", metrics.ValidationFailed),
		fmt.Sprintf("  Invalid action:      %d", metrics.InvalidAction),
		fmt.Sprintf("  Turn limit reached:  %d", metrics.TaskLimitReached),
		fmt.Sprintf("  Task error:          %d", metrics.TaskError),
		"",
		"History Length:",
		fmt.Sprintf("  Average: %.1f", metrics.AverageHistoryLength()),
		fmt.Sprintf("  Min:     %d", metrics.MinHistoryLength()),
		fmt.Sprintf("  Max:     %d", metrics.MaxHistoryLength()),
		rule,
	}
	return strings.Join(lines, "\n")
}

// CreateRunDir creates a timestamped run directory under baseDir and
// points the "latest" symlink at it.
func CreateRunDir(baseDir string) (string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", err
	}
	name := "run-" + time.Now().Format("20060102-150405")
	runDir := filepath.Join(baseDir, name)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(name, latest); err != nil {
		// Symlinks are a convenience; the run directory is what matters.
		return runDir, nil
	}
	return runDir, nil
}

// SaveRunConfig records the run parameters for reproducibility.
func SaveRunConfig(config map[string]any, outputDir string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "config.json"), data, 0o644)
}

// CompletedIndices reads the task indices already present in a run
// directory's runs.jsonl. A missing file means nothing is completed.
func CompletedIndices(outputDir string) (map[int]bool, error) {
	records, err := LoadResults(filepath.Join(outputDir, "runs.jsonl"))
	if os.IsNotExist(err) {
		return map[int]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	indices := make(map[int]bool, len(records))
	for _, record := range records {
		if idx, ok := record["index"].(float64); ok {
			indices[int(idx)] = true
		}
	}
	return indices, nil
}

// RebuildMetrics recomputes aggregate metrics from every line of a run
// directory's runs.jsonl, used when resuming so the totals cover prior
// sessions too.
func RebuildMetrics(outputDir string) (*Metrics, error) {
	records, err := LoadResults(filepath.Join(outputDir, "runs.jsonl"))
	if err != nil {
		return nil, err
	}

	metrics := &Metrics{}
	for _, record := range records {
		status, _ := record["status"].(string)
		historyLen := 0
		if history, ok := record["history"].([]any); ok {
			historyLen = len(history)
		}

		correct := false
		if result, ok := record["result"].(map[string]any); ok {
			if v, ok := result["is_correct"].(bool); ok {
				correct = v
			} else if v, ok := result["result"].(bool); ok {
				correct = v
			}
		}

		metrics.AddResult(TaskResult{
			Status:  TaskStatus(status),
			History: make([]HistoryMessage, historyLen),
		}, correct)
	}
	return metrics, nil
}

// LoadResults reads a runs.jsonl file back into generic records.
func LoadResults(runsPath string) ([]map[string]any, error) {
	f, err := os.Open(runsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var results []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, err
		}
		results = append(results, record)
	}
	return results, scanner.Err()
}
