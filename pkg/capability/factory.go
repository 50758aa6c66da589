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

package capability

import (
	"os"
	"time"

	"github.com/roagent/roagent/pkg/tool"
	"github.com/roagent/roagent/pkg/tool/dbtool"
	"github.com/roagent/roagent/pkg/tool/exceltool"
	"github.com/roagent/roagent/pkg/tool/filetool"
	"github.com/roagent/roagent/pkg/tool/shelltool"
)

// Factory builds tool registries from capability profiles.
type Factory struct {
	profile *Profile
}

// NewFactory creates a factory for the profile.
func NewFactory(profile *Profile) *Factory {
	return &Factory{profile: profile}
}

// CreateRegistry builds a registry with tools enabled per the profile.
// env defaults to the process environment; it selects which database
// handlers get registered. workingDir defaults to the current
// directory.
func (f *Factory) CreateRegistry(workingDir string, env map[string]string) (*tool.Registry, error) {
	registry := tool.NewRegistry()
	if env == nil {
		env = environMap()
	}
	if workingDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workingDir = wd
		}
	}
	if f.profile.ShellWorkingDir != "" {
		workingDir = f.profile.ShellWorkingDir
	}

	if err := f.registerCoreTools(registry); err != nil {
		return nil, err
	}
	if err := f.registerBashTool(registry, workingDir); err != nil {
		return nil, err
	}
	if err := f.registerWriteTools(registry); err != nil {
		return nil, err
	}
	if err := f.registerDatabaseTools(registry, env); err != nil {
		return nil, err
	}
	return registry, nil
}

func (f *Factory) registerCoreTools(registry *tool.Registry) error {
	handlers := []tool.Handler{
		filetool.NewRead(),
		filetool.NewGlob(),
		filetool.NewGrep(),
		filetool.NewList(),
		exceltool.New(),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return err
		}
	}
	return nil
}

func (f *Factory) registerBashTool(registry *tool.Registry, workingDir string) error {
	approval := f.profile.RequiresToolApproval("bash")
	return registry.Register(shelltool.New(shelltool.Config{
		Restricted:       f.profile.Shell == ShellRestricted,
		WorkingDir:       workingDir,
		Timeout:          time.Duration(f.profile.ShellTimeout) * time.Second,
		RequiresApproval: &approval,
	}))
}

func (f *Factory) registerWriteTools(registry *tool.Registry) error {
	if f.profile.FileWrite == WriteOff {
		return nil
	}

	writeApproval := f.profile.RequiresToolApproval("write")
	err := registry.Register(filetool.NewWrite(filetool.WriteConfig{
		CreateOnly:       f.profile.FileWrite == WriteCreateOnly,
		RequiresApproval: &writeApproval,
	}))
	if err != nil {
		return err
	}

	// Edit only exists in full mode.
	if f.profile.FileWrite == WriteFull {
		return registry.Register(filetool.NewEdit(f.profile.RequiresToolApproval("edit")))
	}
	return nil
}

func (f *Factory) registerDatabaseTools(registry *tool.Registry, env map[string]string) error {
	readonly := f.profile.Database == DatabaseReadonly

	dialects := []struct {
		envKey  string
		dialect dbtool.Dialect
	}{
		{"ORACLE_DSN", dbtool.NewOracle(dbtool.OracleConfig{DSN: env["ORACLE_DSN"], User: env["ORACLE_USER"], Password: env["ORACLE_PASSWORD"]})},
		{"SQLITE_DB", dbtool.NewSqlite(env["SQLITE_DB"])},
		{"VERTICA_HOST", dbtool.NewVertica(dbtool.VerticaConfig{Host: env["VERTICA_HOST"], Database: env["VERTICA_DATABASE"], User: env["VERTICA_USER"], Password: env["VERTICA_PASSWORD"], ReadOnly: readonly})},
		{"MYSQL_HOST", dbtool.NewMysql(dbtool.MysqlConfig{Host: env["MYSQL_HOST"], Database: env["MYSQL_DATABASE"], User: env["MYSQL_USER"], Password: env["MYSQL_PASSWORD"], ReadOnly: readonly})},
		{"POSTGRES_HOST", dbtool.NewPostgres(dbtool.PostgresConfig{Host: env["POSTGRES_HOST"], Database: env["POSTGRES_DATABASE"], User: env["POSTGRES_USER"], Password: env["POSTGRES_PASSWORD"], ReadOnly: readonly})},
	}

	for _, d := range dialects {
		if env[d.envKey] == "" {
			continue
		}
		handler := dbtool.New(d.dialect, 0,
			dbtool.WithRequiresApproval(f.profile.RequiresToolApproval(d.dialect.Type())))
		if err := registry.Register(handler); err != nil {
			return err
		}
	}
	return nil
}

func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}
