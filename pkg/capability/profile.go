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

// Package capability defines the tool capability toggle system: modes
// for shell, file writing and database access, bundled into profiles
// that the factory turns into tool registries.
package capability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ShellMode controls shell execution.
type ShellMode string

const (
	// ShellRestricted allows only allowlisted commands; dangerous
	// patterns are blocked.
	ShellRestricted ShellMode = "restricted"

	// ShellUnrestricted allows any command; the container or sandbox
	// is the security boundary.
	ShellUnrestricted ShellMode = "unrestricted"
)

// FileWriteMode controls file writing.
type FileWriteMode string

const (
	// WriteOff disables file writing entirely.
	WriteOff FileWriteMode = "off"

	// WriteCreateOnly allows creating new files but not overwriting.
	WriteCreateOnly FileWriteMode = "create-only"

	// WriteFull allows create, overwrite and edit.
	WriteFull FileWriteMode = "full"
)

// DatabaseMode controls database access.
type DatabaseMode string

const (
	// DatabaseReadonly blocks mutation statements.
	DatabaseReadonly DatabaseMode = "readonly"

	// DatabaseMutations allows full database access.
	DatabaseMutations DatabaseMode = "mutations"
)

// ApprovalMode controls when tool executions need user approval.
type ApprovalMode string

const (
	// ApproveAll requires approval for every tool.
	ApproveAll ApprovalMode = "all"

	// ApproveDangerous requires approval for the default dangerous
	// tool set.
	ApproveDangerous ApprovalMode = "dangerous"

	// ApproveGranular uses the profile's per-tool list.
	ApproveGranular ApprovalMode = "granular"

	// ApproveNone never requires approval (sandboxed environments).
	ApproveNone ApprovalMode = "none"
)

// DefaultDangerousTools require approval in dangerous mode.
var DefaultDangerousTools = map[string]bool{
	"bash": true, "write": true, "edit": true,
	"oracle": true, "mysql": true, "sqlite": true, "vertica": true, "postgres": true,
}

// DefaultDangerousPatterns always require approval regardless of mode.
var DefaultDangerousPatterns = []string{
	"rm -rf",
	"rm -r",
	"DROP TABLE",
	"DROP DATABASE",
	"TRUNCATE",
	"DELETE FROM",
	"> /dev/",
	":(){ :|:& };:", // fork bomb
	"mkfs",
	"dd if=",
}

// Profile bundles all capability settings into a single object that
// can be loaded from YAML or constructed from a preset.
type Profile struct {
	Name        string
	Description string

	Shell     ShellMode
	FileWrite FileWriteMode
	Database  DatabaseMode

	Approval              ApprovalMode
	ApprovalRequiredTools map[string]bool
	DangerousPatterns     []string

	ShellTimeout    int // seconds
	ShellWorkingDir string
}

// Readonly is the default research profile: restricted shell, no file
// writing.
func Readonly() *Profile {
	return &Profile{
		Name:                  "readonly",
		Description:           "Read-only research profile with restricted shell",
		Shell:                 ShellRestricted,
		FileWrite:             WriteOff,
		Database:              DatabaseReadonly,
		Approval:              ApproveDangerous,
		ApprovalRequiredTools: DefaultDangerousTools,
		DangerousPatterns:     DefaultDangerousPatterns,
		ShellTimeout:          120,
	}
}

// Developer allows full file editing and an unrestricted shell; DB
// tools still need approval.
func Developer() *Profile {
	return &Profile{
		Name:                  "developer",
		Description:           "Development profile with file editing",
		Shell:                 ShellUnrestricted,
		FileWrite:             WriteFull,
		Database:              DatabaseReadonly,
		Approval:              ApproveGranular,
		ApprovalRequiredTools: map[string]bool{"oracle": true, "mysql": true},
		DangerousPatterns:     DefaultDangerousPatterns,
		ShellTimeout:          300,
	}
}

// Eval is for sandboxed containers: no restrictions, no approvals.
func Eval(workingDir string) *Profile {
	if workingDir == "" {
		workingDir = "/app"
	}
	return &Profile{
		Name:                  "eval",
		Description:           "Evaluation profile for sandboxed environments",
		Shell:                 ShellUnrestricted,
		FileWrite:             WriteFull,
		Database:              DatabaseMutations,
		Approval:              ApproveNone,
		ApprovalRequiredTools: DefaultDangerousTools,
		DangerousPatterns:     DefaultDangerousPatterns,
		ShellTimeout:          300,
		ShellWorkingDir:       workingDir,
	}
}

// profileDoc is the YAML shape. Mode fields accept either a bare
// string or a {mode: ...} mapping.
type profileDoc struct {
	Profile     string `mapstructure:"profile"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`

	Shell     any `mapstructure:"shell"`
	FileWrite any `mapstructure:"file_write"`
	Database  any `mapstructure:"database"`
	Approval  any `mapstructure:"approval"`

	ShellTimeout    int    `mapstructure:"shell_timeout"`
	ShellWorkingDir string `mapstructure:"shell_working_dir"`
}

// FromYAML loads a profile from a YAML file.
func FromYAML(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return FromMap(data)
}

// FromMap builds a profile from parsed YAML.
func FromMap(data map[string]any) (*Profile, error) {
	var doc profileDoc
	if err := mapstructure.Decode(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}

	p := &Profile{
		Name:                  doc.Profile,
		Description:           doc.Description,
		ApprovalRequiredTools: DefaultDangerousTools,
		DangerousPatterns:     DefaultDangerousPatterns,
		ShellTimeout:          doc.ShellTimeout,
		ShellWorkingDir:       doc.ShellWorkingDir,
	}
	if p.Name == "" {
		p.Name = doc.Name
	}
	if p.Name == "" {
		p.Name = "custom"
	}
	if p.ShellTimeout == 0 {
		p.ShellTimeout = 120
	}

	shellMode, err := modeValue(doc.Shell, "restricted")
	if err != nil {
		return nil, err
	}
	p.Shell = ShellMode(shellMode)

	writeMode, err := modeValue(doc.FileWrite, "off")
	if err != nil {
		return nil, err
	}
	p.FileWrite = FileWriteMode(writeMode)

	dbMode, err := modeValue(doc.Database, "readonly")
	if err != nil {
		return nil, err
	}
	p.Database = DatabaseMode(dbMode)

	approvalMode, err := modeValue(doc.Approval, "dangerous")
	if err != nil {
		return nil, err
	}
	p.Approval = ApprovalMode(approvalMode)

	if m, ok := doc.Approval.(map[string]any); ok {
		if tools, ok := m["required_tools"].([]any); ok {
			p.ApprovalRequiredTools = make(map[string]bool, len(tools))
			for _, t := range tools {
				if name, ok := t.(string); ok {
					p.ApprovalRequiredTools[name] = true
				}
			}
		}
		if patterns, ok := m["dangerous_patterns"].([]any); ok {
			p.DangerousPatterns = nil
			for _, pat := range patterns {
				if s, ok := pat.(string); ok {
					p.DangerousPatterns = append(p.DangerousPatterns, s)
				}
			}
		}
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// modeValue extracts a mode string from either a bare value or a
// {mode: ...} mapping. YAML 1.1 parses a bare `off` as boolean false,
// so that is mapped back.
func modeValue(v any, fallback string) (string, error) {
	switch val := v.(type) {
	case nil:
		return fallback, nil
	case string:
		if val == "" {
			return fallback, nil
		}
		return val, nil
	case bool:
		if !val {
			return "off", nil
		}
		return "", fmt.Errorf("invalid mode value: true")
	case map[string]any:
		mode, ok := val["mode"]
		if !ok {
			return fallback, nil
		}
		return modeValue(mode, fallback)
	default:
		return "", fmt.Errorf("invalid mode value: %v", v)
	}
}

func (p *Profile) validate() error {
	switch p.Shell {
	case ShellRestricted, ShellUnrestricted:
	default:
		return fmt.Errorf("invalid shell mode: %s", p.Shell)
	}
	switch p.FileWrite {
	case WriteOff, WriteCreateOnly, WriteFull:
	default:
		return fmt.Errorf("invalid file_write mode: %s", p.FileWrite)
	}
	switch p.Database {
	case DatabaseReadonly, DatabaseMutations:
	default:
		return fmt.Errorf("invalid database mode: %s", p.Database)
	}
	switch p.Approval {
	case ApproveAll, ApproveDangerous, ApproveGranular, ApproveNone:
	default:
		return fmt.Errorf("invalid approval mode: %s", p.Approval)
	}
	return nil
}

// RequiresToolApproval reports whether the named tool needs approval
// under this profile.
func (p *Profile) RequiresToolApproval(toolName string) bool {
	switch p.Approval {
	case ApproveNone:
		return false
	case ApproveAll:
		return true
	case ApproveDangerous:
		return DefaultDangerousTools[toolName]
	default: // granular
		return p.ApprovalRequiredTools[toolName]
	}
}

// Load resolves a profile by preset name, file path, or by name in the
// default profile directories.
func Load(nameOrPath string) (*Profile, error) {
	switch nameOrPath {
	case "readonly":
		return Readonly(), nil
	case "developer":
		return Developer(), nil
	case "eval":
		return Eval(""), nil
	}

	if _, err := os.Stat(nameOrPath); err == nil {
		return FromYAML(nameOrPath)
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".config", "ro-agent", "profiles", nameOrPath+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			return FromYAML(candidate)
		}
	}

	return nil, fmt.Errorf(
		"unknown profile: %s. Use 'readonly', 'developer', 'eval', or provide a path to a YAML file",
		nameOrPath,
	)
}

// IsPatternDangerous reports whether text contains any dangerous
// pattern (case-insensitive literal match).
func (p *Profile) IsPatternDangerous(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range p.DangerousPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
