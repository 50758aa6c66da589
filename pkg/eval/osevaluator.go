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
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// OSEvaluator scores OS interaction answers. Match mode compares
// strings directly; check mode chains scripts the way the benchmark
// does: params start as [answer], each script runs with the params as
// arguments and must exit zero, and its stdout is appended for the
// next script.
type OSEvaluator struct {
	scriptsDir string
}

// NewOSEvaluator creates an evaluator. scriptsDir is the default check
// script location; tasks may override it per call.
func NewOSEvaluator(scriptsDir string) *OSEvaluator {
	return &OSEvaluator{scriptsDir: scriptsDir}
}

// Evaluate scores an answer. answered is false when the agent never
// submitted one, which always fails.
func (e *OSEvaluator) Evaluate(ctx context.Context, answer string, answered bool, cfg EvaluationConfig, container *Container, scriptsDir string) bool {
	if !answered {
		return false
	}
	if scriptsDir == "" {
		scriptsDir = e.scriptsDir
	}

	switch cfg.EvalType {
	case "match":
		return e.evaluateMatch(answer, cfg)
	case "check":
		return e.evaluateCheck(ctx, answer, cfg, container, scriptsDir)
	default:
		return false
	}
}

func (e *OSEvaluator) evaluateMatch(answer string, cfg EvaluationConfig) bool {
	if cfg.MatchStrip {
		answer = strings.TrimSpace(answer)
	}

	if cfg.MatchRegex != "" {
		re, err := regexp.Compile(cfg.MatchRegex)
		if err != nil {
			return false
		}
		return re.MatchString(answer)
	}

	if cfg.MatchAnswer != nil {
		expected := *cfg.MatchAnswer
		if cfg.MatchStrip {
			expected = strings.TrimSpace(expected)
		}
		return answer == expected
	}
	return false
}

func (e *OSEvaluator) evaluateCheck(ctx context.Context, answer string, cfg EvaluationConfig, container *Container, scriptsDir string) bool {
	if len(cfg.CheckScripts) == 0 {
		return false
	}

	params := []string{answer}

	for _, script := range cfg.CheckScripts {
		if script.File == "" {
			// Null entry: the example script produces the expected value.
			if cfg.ExampleScript != nil && container != nil {
				stdout, ok := e.runExampleScript(ctx, cfg.ExampleScript, container)
				if !ok {
					return false
				}
				params = append(params, stdout)
			}
			continue
		}

		success, stdout := e.runCheckScript(ctx, params, script.File, container, scriptsDir)
		if !success {
			return false
		}
		params = append(params, stdout)
	}
	return true
}

func (e *OSEvaluator) runExampleScript(ctx context.Context, example map[string]any, container *Container) (string, bool) {
	if code, ok := example["code"].(string); ok {
		exitCode, stdout, _, err := container.Execute(ctx, code, 30*time.Second)
		if err == nil && exitCode == 0 {
			return strings.TrimSpace(stdout), true
		}
		return "", false
	}
	if file, ok := example["file"].(string); ok {
		exitCode, stdout, _, err := container.Execute(ctx, "python3 "+file, 30*time.Second)
		if err == nil && exitCode == 0 {
			return strings.TrimSpace(stdout), true
		}
	}
	return "", false
}

// runCheckScript runs one script of the chain. Scripts present under
// scriptsDir run inside the container; otherwise a builtin fallback
// handles the benchmark's common comparison scripts.
func (e *OSEvaluator) runCheckScript(ctx context.Context, params []string, scriptPath string, container *Container, scriptsDir string) (bool, string) {
	if scriptsDir != "" {
		local := filepath.Join(scriptsDir, scriptPath)
		if _, err := os.Stat(local); err == nil && container != nil {
			return e.runCheckInContainer(ctx, params, local, container)
		}
	}

	answer := params[0]
	expected := ""
	if len(params) >= 2 {
		expected = params[1]
	}
	return runBuiltinCheck(answer, expected, filepath.Base(scriptPath)), ""
}

// runCheckInContainer copies the script in via base64 to avoid quoting
// issues and executes it with the chained params as arguments.
func (e *OSEvaluator) runCheckInContainer(ctx context.Context, params []string, scriptPath string, container *Container) (bool, string) {
	content, err := os.ReadFile(scriptPath)
	if err != nil {
		return false, ""
	}

	quoted := make([]string, len(params))
	for i, p := range params {
		quoted[i] = shellQuote(p)
	}
	paramsEscaped := strings.Join(quoted, " ")
	encoded := base64.StdEncoding.EncodeToString(content)

	var cmd string
	switch strings.ToLower(filepath.Ext(scriptPath)) {
	case ".sh":
		// Some shell scripts take no arguments at all.
		if strings.Contains(string(content), "$1") || strings.Contains(string(content), "$2") {
			cmd = fmt.Sprintf("echo %s | base64 -d > /tmp/check.sh && chmod +x /tmp/check.sh && /tmp/check.sh %s", encoded, paramsEscaped)
		} else {
			cmd = fmt.Sprintf("echo %s | base64 -d > /tmp/check.sh && chmod +x /tmp/check.sh && /tmp/check.sh", encoded)
		}
	case ".py":
		cmd = fmt.Sprintf("echo %s | base64 -d > /tmp/check.py && python3 /tmp/check.py %s", encoded, paramsEscaped)
	default:
		return false, ""
	}

	exitCode, stdout, _, err := container.Execute(ctx, cmd, 60*time.Second)
	if err != nil {
		return false, ""
	}
	return exitCode == 0, strings.TrimSpace(stdout)
}

// runBuiltinCheck reimplements the benchmark's common comparison
// scripts for when the script files are not available locally.
func runBuiltinCheck(answer, expected, scriptName string) bool {
	answer = normalizeCheckString(answer)
	expected = normalizeCheckString(expected)

	switch scriptName {
	case "integer-match.py":
		a, errA := strconv.Atoi(answer)
		b, errB := strconv.Atoi(expected)
		return errA == nil && errB == nil && a == b
	case "string-match.py":
		return answer == expected
	case "containing.py":
		return strings.Contains(answer, expected)
	case "in.py":
		return strings.Contains(expected, answer)
	case "size-match.py":
		return sizeMatch(answer, expected)
	default:
		return answer == expected
	}
}

func normalizeCheckString(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// sizeUnits maps size suffixes to byte multipliers.
var sizeUnits = []struct {
	suffix     string
	multiplier int64
}{
	// Longest suffixes first so "KB" wins over "B".
	{"Byte", 1},
	{"KB", 1024},
	{"MB", 1024 * 1024},
	{"GB", 1024 * 1024 * 1024},
	{"TB", 1024 * 1024 * 1024 * 1024},
	{"PB", 1024 * 1024 * 1024 * 1024 * 1024},
	{"K", 1024},
	{"M", 1024 * 1024},
	{"G", 1024 * 1024 * 1024},
	{"T", 1024 * 1024 * 1024 * 1024},
	{"P", 1024 * 1024 * 1024 * 1024 * 1024},
	{"B", 1},
}

func parseSize(s string) int64 {
	s = strings.TrimSpace(s)
	for _, unit := range sizeUnits {
		if strings.HasSuffix(s, unit.suffix) {
			n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(s, unit.suffix)), 10, 64)
			if err != nil {
				return -1
			}
			return n * unit.multiplier
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func sizeMatch(answer, expected string) bool {
	return parseSize(answer) == parseSize(expected)
}

// shellQuote wraps a value in single quotes, escaping embedded quotes
// the POSIX way.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
