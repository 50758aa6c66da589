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

// Package prompt loads markdown prompt files with YAML frontmatter and
// renders them with user-supplied variables.
//
// A prompt file looks like:
//
//	---
//	description: Review a pull request
//	variables:
//	  repo:
//	    required: true
//	  focus: correctness
//	initial_prompt: "Review {{.repo}} focusing on {{.focus}}."
//	---
//	You are a code reviewer for {{.repo}}.
package prompt

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Variable declares a value a prompt expects.
type Variable struct {
	Name     string
	Required bool
	Default  string
	// HasDefault distinguishes an empty default from no default.
	HasDefault bool
}

// Prompt is a parsed prompt file.
type Prompt struct {
	Description   string
	Variables     []Variable
	SystemPrompt  string
	InitialPrompt string
}

type frontmatter struct {
	Description   string         `yaml:"description"`
	Variables     map[string]any `yaml:"variables"`
	InitialPrompt string         `yaml:"initial_prompt"`
}

// ParseFrontmatter splits markdown content into its YAML frontmatter
// and body. Content without a leading "---" is all body. An unclosed
// frontmatter block is also treated as body.
func ParseFrontmatter(content string) (map[string]any, string, error) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "---") {
		return nil, content, nil
	}

	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, content, nil
	}

	var meta map[string]any
	raw := strings.Join(lines[1:end], "\n")
	if err := yaml.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, "", fmt.Errorf("invalid YAML frontmatter: %w", err)
	}
	body := strings.TrimSpace(strings.Join(lines[end+1:], "\n"))
	return meta, body, nil
}

// Load reads and parses a prompt file.
func Load(path string) (*Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("prompt file not found: %s", path)
		}
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	return Parse(string(data), path)
}

// Parse parses prompt file content. The path is only used in error
// messages.
func Parse(content, path string) (*Prompt, error) {
	metaRaw, body, err := ParseFrontmatter(content)
	if err != nil {
		return nil, err
	}
	if body == "" {
		return nil, fmt.Errorf("prompt file has no content (system prompt): %s", path)
	}

	var meta frontmatter
	if metaRaw != nil {
		raw, err := yaml.Marshal(metaRaw)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("invalid frontmatter: %w", err)
		}
	}

	p := &Prompt{
		Description:   meta.Description,
		SystemPrompt:  body,
		InitialPrompt: meta.InitialPrompt,
	}
	for name, cfg := range meta.Variables {
		p.Variables = append(p.Variables, parseVariable(name, cfg))
	}
	return p, nil
}

// parseVariable accepts the long form ({required, default}) and the
// short form (name: default_value).
func parseVariable(name string, cfg any) Variable {
	v := Variable{Name: name}
	switch c := cfg.(type) {
	case map[string]any:
		if req, ok := c["required"].(bool); ok {
			v.Required = req
		}
		if def, ok := c["default"]; ok && def != nil {
			v.Default = fmt.Sprintf("%v", def)
			v.HasDefault = true
		}
	case nil:
	default:
		v.Default = fmt.Sprintf("%v", c)
		v.HasDefault = true
	}
	return v
}

// Render resolves variables against the prompt's declarations and
// returns the rendered system and initial prompts. Declared variables
// take their default when absent; missing required variables are an
// error. Extra variables pass through so prompt files do not have to
// declare everything they use.
func (p *Prompt) Render(variables map[string]string) (systemPrompt, initialPrompt string, err error) {
	vars := make(map[string]string, len(variables))
	for _, v := range p.Variables {
		if val, ok := variables[v.Name]; ok {
			vars[v.Name] = val
		} else if v.HasDefault {
			vars[v.Name] = v.Default
		} else if v.Required {
			return "", "", fmt.Errorf("missing required variable: %s", v.Name)
		}
	}
	for k, val := range variables {
		if _, ok := vars[k]; !ok {
			vars[k] = val
		}
	}

	systemPrompt, err = renderTemplate("system", p.SystemPrompt, vars)
	if err != nil {
		return "", "", err
	}
	if p.InitialPrompt != "" {
		initialPrompt, err = renderTemplate("initial", p.InitialPrompt, vars)
		if err != nil {
			return "", "", err
		}
	}
	return systemPrompt, initialPrompt, nil
}

func renderTemplate(name, text string, vars map[string]string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("template syntax error: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("missing variable: %w", err)
	}
	return sb.String(), nil
}

// ParseVar splits a "key=value" flag argument.
func ParseVar(s string) (key, value string, err error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", fmt.Errorf("invalid variable format (expected key=value): %s", s)
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return "", "", fmt.Errorf("empty variable name in: %s", s)
	}
	return key, value, nil
}

// ParseVars folds a list of "key=value" arguments into a map. Later
// duplicates win.
func ParseVars(list []string) (map[string]string, error) {
	out := make(map[string]string, len(list))
	for _, s := range list {
		key, value, err := ParseVar(s)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// LoadVarsFile reads a YAML file of variable values, stringifying
// scalar values.
func LoadVarsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vars file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse vars file: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprintf("%v", v)
	}
	return out, nil
}
