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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

// imageMap maps short image names to the AgentBench OS images.
var imageMap = map[string]string{
	"default":  "local-os/default",
	"packages": "local-os/packages",
	"ubuntu":   "local-os/ubuntu",
}

// Container manages one Docker container for OS interaction tasks.
// Commands run through docker exec; nothing is exposed to the host.
type Container struct {
	image string
	id    string
	name  string
}

// NewContainer creates a manager for the given image. Short names
// ("default", "packages", "ubuntu") resolve to the benchmark images;
// anything else is used verbatim.
func NewContainer(image string) *Container {
	if full, ok := imageMap[image]; ok {
		image = full
	}
	return &Container{image: image}
}

// ID returns the running container id, empty before Start.
func (c *Container) ID() string {
	return c.id
}

// Start launches the container with an idle bash so exec sessions have
// a live target.
func (c *Container) Start(ctx context.Context) error {
	if c.id != "" {
		return nil
	}
	c.name = "ro-eval-" + uuid.NewString()[:8]

	out, errOut, _, err := runCommand(ctx, 60*time.Second,
		"docker", "run", "-d", "--name", c.name, "-it", "--rm", c.image, "/bin/bash")
	if err != nil {
		return fmt.Errorf("start container: %s", firstNonEmpty(errOut, err.Error()))
	}
	c.id = strings.TrimSpace(out)
	return nil
}

// Execute runs a shell command in the container and returns the exit
// code with stdout and stderr. A zero timeout uses two minutes.
func (c *Container) Execute(ctx context.Context, command string, timeout time.Duration) (int, string, string, error) {
	if c.id == "" {
		return 0, "", "", errors.New("container not started")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	stdout, stderr, exitCode, err := runCommand(ctx, timeout,
		"docker", "exec", c.id, "/bin/bash", "-c", command)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, "", "", fmt.Errorf("command timed out after %s", timeout)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return 0, "", "", err
		}
	}
	return exitCode, stdout, stderr, nil
}

// RunInit executes initialization code, failing on a non-zero exit.
func (c *Container) RunInit(ctx context.Context, code string) error {
	if code == "" {
		return nil
	}
	exitCode, _, stderr, err := c.Execute(ctx, code, 60*time.Second)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("init script failed: %s", stderr)
	}
	return nil
}

// RunInitFile reads a script from the host and runs its content in the
// container.
func (c *Container) RunInitFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("init script file not found: %s", path)
	}
	return c.RunInit(ctx, string(content))
}

// RunBackground starts a script as a detached background process and
// gives it a moment to come up.
func (c *Container) RunBackground(ctx context.Context, script string) error {
	if script == "" {
		return nil
	}
	if !strings.HasSuffix(strings.TrimSpace(script), "&") {
		script += " &"
	}
	if _, _, _, err := c.Execute(ctx, fmt.Sprintf("nohup %s > /dev/null 2>&1", script), 10*time.Second); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return nil
}

// Cleanup stops the container; the --rm flag removes it.
func (c *Container) Cleanup(ctx context.Context) {
	if c.id == "" {
		return
	}
	_, _, _, _ = runCommand(ctx, 30*time.Second, "docker", "stop", c.id)
	c.id = ""
	c.name = ""
}

// MySQL container settings tuned for ephemeral eval workloads.
const (
	mysqlImage    = "mysql:8"
	mysqlPassword = "evalpass"
	mysqlPort     = 3306
)

// MySQLContainer manages a MySQL 8 container used to score mutation
// tasks. Storage is tmpfs-backed so each run starts clean and fast.
type MySQLContainer struct {
	id   string
	name string
	host string
}

// NewMySQLContainer creates an unstarted manager.
func NewMySQLContainer() *MySQLContainer {
	return &MySQLContainer{}
}

// ID returns the running container id, empty before Start.
func (m *MySQLContainer) ID() string {
	return m.id
}

// Password returns the root password.
func (m *MySQLContainer) Password() string {
	return mysqlPassword
}

// Start launches MySQL and blocks until it accepts authenticated
// queries.
func (m *MySQLContainer) Start(ctx context.Context) error {
	if m.id != "" {
		return nil
	}
	m.name = "ro-eval-mysql-" + uuid.NewString()[:8]

	out, errOut, _, err := runCommand(ctx, 60*time.Second,
		"docker", "run", "-d", "--name", m.name,
		"-e", "MYSQL_ROOT_PASSWORD="+mysqlPassword,
		"--tmpfs", "/var/lib/mysql:rw,uid=999,gid=999",
		mysqlImage,
		"--max_connections=200",
		"--innodb_flush_log_at_trx_commit=0",
		"--skip-name-resolve",
	)
	if err != nil {
		return fmt.Errorf("start MySQL container: %s", firstNonEmpty(errOut, err.Error()))
	}
	m.id = strings.TrimSpace(out)

	host, err := m.containerIP(ctx)
	if err != nil {
		return err
	}
	m.host = host

	return m.waitHealthy(ctx, 60*time.Second)
}

func (m *MySQLContainer) containerIP(ctx context.Context) (string, error) {
	out, _, _, err := runCommand(ctx, 10*time.Second,
		"docker", "inspect", "-f", "{{.NetworkSettings.IPAddress}}", m.id)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (m *MySQLContainer) waitHealthy(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_, _, exitCode, err := runCommand(ctx, 10*time.Second,
			"docker", "exec", m.id,
			"mysql", "-u", "root", "-p"+mysqlPassword, "-e", "SELECT 1")
		if err == nil && exitCode == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("MySQL not ready after %s", timeout)
}

// CreateDatabase creates a fresh database for one task.
func (m *MySQLContainer) CreateDatabase(ctx context.Context, name string) error {
	if m.id == "" {
		return errors.New("container not started")
	}
	_, errOut, exitCode, err := runCommand(ctx, 30*time.Second,
		"docker", "exec", m.id,
		"mysql", "-u", "root", "-p"+mysqlPassword,
		"-e", fmt.Sprintf("CREATE DATABASE `%s`;", name))
	if err != nil || exitCode != 0 {
		return fmt.Errorf("create database: %s", firstNonEmpty(errOut, "exit code nonzero"))
	}
	return nil
}

// DropDatabase removes a task database, ignoring failures.
func (m *MySQLContainer) DropDatabase(ctx context.Context, name string) {
	if m.id == "" {
		return
	}
	_, _, _, _ = runCommand(ctx, 30*time.Second,
		"docker", "exec", m.id,
		"mysql", "-u", "root", "-p"+mysqlPassword,
		"-e", fmt.Sprintf("DROP DATABASE IF EXISTS `%s`;", name))
}

// Cleanup force-removes the container.
func (m *MySQLContainer) Cleanup(ctx context.Context) {
	if m.id == "" {
		return
	}
	_, _, _, _ = runCommand(ctx, 30*time.Second, "docker", "rm", "-f", m.id)
	m.id = ""
	m.name = ""
	m.host = ""
}

// runCommand executes a host command with a timeout, returning stdout,
// stderr and the exit code.
func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) (string, string, int, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return stdout.String(), stderr.String(), -1, context.DeadlineExceeded
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return stdout.String(), stderr.String(), -1, err
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
