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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// CheckScript names one evaluation script. An empty File means "run
// the example script to produce the expected value" (the benchmark's
// null entry).
type CheckScript struct {
	File string
	Args []string
}

// EvaluationConfig describes how an OS task's answer is scored.
type EvaluationConfig struct {
	// EvalType is "match" or "check".
	EvalType string

	// Match settings: exact answer, regex, and whether to strip
	// whitespace first.
	MatchAnswer *string
	MatchRegex  string
	MatchStrip  bool

	// Check settings: the script chain and an optional example script
	// that produces the expected value.
	CheckScripts  []CheckScript
	ExampleScript map[string]any
}

// OSTask is one OS interaction task.
type OSTask struct {
	Index       int
	Description string

	// Image is "default", "packages", "ubuntu" or a full image name.
	Image string

	InitCode    string
	InitFile    string
	StartScript string

	Evaluation EvaluationConfig
	Labels     []string

	// ScriptsDir holds the check scripts for this task's source file.
	ScriptsDir string
	SourceFile string
}

// Prompt builds the task prompt.
func (t *OSTask) Prompt() string {
	return fmt.Sprintf(`%s

Use bash_action to execute shell commands. When you have found the answer, use answer_action to submit it.`, t.Description)
}

type osTaskLine struct {
	Description string          `json:"description"`
	Create      json.RawMessage `json:"create"`
	Start       string          `json:"start"`
	Evaluation  map[string]any  `json:"evaluation"`
	Labels      []string        `json:"labels"`
}

type osCreateConfig struct {
	Local  string          `json:"local"`
	Docker string          `json:"docker"`
	Init   json.RawMessage `json:"init"`
}

// LoadOSTasks reads tasks from one JSON file. The file holds either a
// task list or an object wrapping one under "tasks" or "data".
// startIndex offsets task numbering when combining files.
func LoadOSTasks(dataPath, scriptsDir string, startIndex int) ([]OSTask, error) {
	raw, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, err
	}

	var taskLines []osTaskLine
	if err := json.Unmarshal(raw, &taskLines); err != nil {
		// Object forms: {"tasks": [...]}, {"data": [...]} or a single
		// task document.
		var wrapper struct {
			Tasks []osTaskLine `json:"tasks"`
			Data  []osTaskLine `json:"data"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("parse %s: %w", dataPath, err)
		}
		switch {
		case wrapper.Tasks != nil:
			taskLines = wrapper.Tasks
		case wrapper.Data != nil:
			taskLines = wrapper.Data
		default:
			var single osTaskLine
			if err := json.Unmarshal(raw, &single); err != nil {
				return nil, fmt.Errorf("parse %s: %w", dataPath, err)
			}
			taskLines = []osTaskLine{single}
		}
	}

	tasks := make([]OSTask, 0, len(taskLines))
	for idx, line := range taskLines {
		task := OSTask{
			Index:       startIndex + idx,
			Description: line.Description,
			Image:       "default",
			StartScript: line.Start,
			Evaluation:  ParseEvaluationConfig(line.Evaluation),
			Labels:      line.Labels,
			ScriptsDir:  scriptsDir,
			SourceFile:  dataPath,
		}

		// Malformed create fields (lists, nulls) fall back to defaults.
		var create osCreateConfig
		if len(line.Create) > 0 {
			_ = json.Unmarshal(line.Create, &create)
		}
		switch {
		case create.Local != "":
			task.Image = create.Local
		case create.Docker != "":
			task.Image = create.Docker
		}

		if len(create.Init) > 0 {
			var initObj struct {
				Code string `json:"code"`
				File string `json:"file"`
			}
			if err := json.Unmarshal(create.Init, &initObj); err == nil {
				task.InitCode = initObj.Code
				task.InitFile = initObj.File
			} else {
				var initStr string
				if json.Unmarshal(create.Init, &initStr) == nil {
					task.InitCode = initStr
				}
			}
		}

		tasks = append(tasks, task)
	}
	return tasks, nil
}

// LoadOSBenchmark loads the full benchmark from its standard layout:
// data/1..7 with task JSON files, scripts/1..7 with check scripts.
func LoadOSBenchmark(basePath string) ([]OSTask, error) {
	dataDir := filepath.Join(basePath, "data")
	scriptsBase := filepath.Join(basePath, "scripts")

	if _, err := os.Stat(dataDir); err != nil {
		return nil, fmt.Errorf("data directory not found: %s", dataDir)
	}

	var allTasks []OSTask
	taskIndex := 0
	for n := 1; n <= 7; n++ {
		subdir := filepath.Join(dataDir, strconv.Itoa(n))
		if _, err := os.Stat(subdir); err != nil {
			continue
		}

		scriptsDir := filepath.Join(scriptsBase, strconv.Itoa(n))
		if _, err := os.Stat(scriptsDir); err != nil {
			scriptsDir = ""
		}

		files, err := filepath.Glob(filepath.Join(subdir, "*.json"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)

		for _, file := range files {
			tasks, err := LoadOSTasks(file, scriptsDir, taskIndex)
			if err != nil {
				return nil, err
			}
			allTasks = append(allTasks, tasks...)
			taskIndex += len(tasks)
		}
	}
	return allTasks, nil
}

// ParseEvaluationConfig interprets a task's evaluation block, which
// the benchmark data expresses in several shapes.
func ParseEvaluationConfig(evalData map[string]any) EvaluationConfig {
	if len(evalData) == 0 {
		return EvaluationConfig{EvalType: "match", MatchStrip: true}
	}

	if matchData, ok := evalData["match"]; ok {
		switch m := matchData.(type) {
		case string:
			return EvaluationConfig{
				EvalType:    "match",
				MatchAnswer: &m,
				MatchStrip:  true,
			}
		case map[string]any:
			cfg := EvaluationConfig{EvalType: "match", MatchStrip: true}
			if answer, ok := m["answer"].(string); ok {
				cfg.MatchAnswer = &answer
			}
			if regex, ok := m["regex"].(string); ok {
				cfg.MatchRegex = regex
			}
			if strip, ok := m["strip"].(bool); ok {
				cfg.MatchStrip = strip
			}
			return cfg
		}
		return EvaluationConfig{EvalType: "match", MatchStrip: true}
	}

	if checkData, ok := evalData["check"]; ok {
		cfg := EvaluationConfig{EvalType: "check", MatchStrip: true}

		switch c := checkData.(type) {
		case map[string]any:
			cfg.CheckScripts = append(cfg.CheckScripts, parseCheckScript(c))
		case []any:
			for _, item := range c {
				switch entry := item.(type) {
				case nil:
					// A null entry triggers the example script.
					cfg.CheckScripts = append(cfg.CheckScripts, CheckScript{})
				case map[string]any:
					cfg.CheckScripts = append(cfg.CheckScripts, parseCheckScript(entry))
				case string:
					cfg.CheckScripts = append(cfg.CheckScripts, CheckScript{File: entry})
				}
			}
		}

		switch example := evalData["example"].(type) {
		case map[string]any:
			cfg.ExampleScript = example
		case string:
			cfg.ExampleScript = map[string]any{"code": example}
		}
		return cfg
	}

	return EvaluationConfig{EvalType: "match", MatchStrip: true}
}

func parseCheckScript(data map[string]any) CheckScript {
	script := CheckScript{}
	if file, ok := data["file"].(string); ok {
		script.File = file
	}
	if args, ok := data["args"].([]any); ok {
		for _, arg := range args {
			if s, ok := arg.(string); ok {
				script.Args = append(script.Args, s)
			}
		}
	}
	return script
}
