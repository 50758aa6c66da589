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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOSTasksList(t *testing.T) {
	data := `[
		{
			"description": "How many files are in /etc?",
			"create": {"local": "default", "init": {"code": "touch /etc/x"}},
			"evaluation": {"match": "42"},
			"labels": ["files"]
		},
		{
			"description": "Start the service.",
			"create": {"docker": "ubuntu"},
			"start": "service cron start",
			"evaluation": {"check": [null, {"file": "integer-match.py"}], "example": "ls /etc | wc -l"}
		}
	]`
	path := filepath.Join(t.TempDir(), "dev.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	tasks, err := LoadOSTasks(path, "/scripts/1", 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	first := tasks[0]
	assert.Equal(t, 10, first.Index)
	assert.Equal(t, "default", first.Image)
	assert.Equal(t, "touch /etc/x", first.InitCode)
	assert.Equal(t, []string{"files"}, first.Labels)
	assert.Equal(t, "match", first.Evaluation.EvalType)
	require.NotNil(t, first.Evaluation.MatchAnswer)
	assert.Equal(t, "42", *first.Evaluation.MatchAnswer)
	assert.True(t, first.Evaluation.MatchStrip)
	assert.Equal(t, "/scripts/1", first.ScriptsDir)

	second := tasks[1]
	assert.Equal(t, 11, second.Index)
	assert.Equal(t, "ubuntu", second.Image)
	assert.Equal(t, "service cron start", second.StartScript)
	assert.Equal(t, "check", second.Evaluation.EvalType)
	require.Len(t, second.Evaluation.CheckScripts, 2)
	assert.Empty(t, second.Evaluation.CheckScripts[0].File)
	assert.Equal(t, "integer-match.py", second.Evaluation.CheckScripts[1].File)
	assert.Equal(t, map[string]any{"code": "ls /etc | wc -l"}, second.Evaluation.ExampleScript)
}

func TestLoadOSTasksWrappedAndMalformed(t *testing.T) {
	data := `{"tasks": [{"description": "q", "create": [1, 2], "evaluation": null}]}`
	path := filepath.Join(t.TempDir(), "dev.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	tasks, err := LoadOSTasks(path, "", 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	// Malformed create falls back to the default image.
	assert.Equal(t, "default", tasks[0].Image)
	assert.Equal(t, "match", tasks[0].Evaluation.EvalType)
}

func TestLoadOSTasksInitAsString(t *testing.T) {
	data := `[{"description": "q", "create": {"local": "packages", "init": "apt-get install -y jq"}}]`
	path := filepath.Join(t.TempDir(), "dev.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	tasks, err := LoadOSTasks(path, "", 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "packages", tasks[0].Image)
	assert.Equal(t, "apt-get install -y jq", tasks[0].InitCode)
}

func TestParseEvaluationConfigVariants(t *testing.T) {
	cfg := ParseEvaluationConfig(nil)
	assert.Equal(t, "match", cfg.EvalType)
	assert.True(t, cfg.MatchStrip)

	cfg = ParseEvaluationConfig(map[string]any{
		"match": map[string]any{"regex": `^\d+$`, "strip": false},
	})
	assert.Equal(t, `^\d+$`, cfg.MatchRegex)
	assert.False(t, cfg.MatchStrip)

	cfg = ParseEvaluationConfig(map[string]any{
		"check": map[string]any{"file": "check.sh", "args": []any{"a", "b"}},
	})
	assert.Equal(t, "check", cfg.EvalType)
	require.Len(t, cfg.CheckScripts, 1)
	assert.Equal(t, "check.sh", cfg.CheckScripts[0].File)
	assert.Equal(t, []string{"a", "b"}, cfg.CheckScripts[0].Args)

	cfg = ParseEvaluationConfig(map[string]any{
		"check":   []any{"size-match.py"},
		"example": map[string]any{"code": "du -sh /var"},
	})
	require.Len(t, cfg.CheckScripts, 1)
	assert.Equal(t, "size-match.py", cfg.CheckScripts[0].File)
	assert.Equal(t, "du -sh /var", cfg.ExampleScript["code"])
}

func TestLoadOSBenchmark(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "data", "1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "data", "3"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "scripts", "1"), 0o755))

	task1 := `[{"description": "first"}, {"description": "second"}]`
	task3 := `[{"description": "third"}]`
	require.NoError(t, os.WriteFile(filepath.Join(base, "data", "1", "a.json"), []byte(task1), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "data", "3", "b.json"), []byte(task3), 0o644))

	tasks, err := LoadOSBenchmark(base)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	assert.Equal(t, 0, tasks[0].Index)
	assert.Equal(t, 1, tasks[1].Index)
	assert.Equal(t, 2, tasks[2].Index)
	assert.Equal(t, filepath.Join(base, "scripts", "1"), tasks[0].ScriptsDir)
	// No scripts directory for group 3.
	assert.Empty(t, tasks[2].ScriptsDir)
}

func TestLoadOSBenchmarkMissingData(t *testing.T) {
	_, err := LoadOSBenchmark(t.TempDir())
	assert.ErrorContains(t, err, "data directory not found")
}

func TestOSTaskPrompt(t *testing.T) {
	task := OSTask{Description: "Count the files in /tmp."}
	prompt := task.Prompt()
	assert.Contains(t, prompt, "Count the files in /tmp.")
	assert.Contains(t, prompt, "use answer_action to submit it")
}
