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
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	gosignal "os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/roagent/roagent/pkg/agent"
	"github.com/roagent/roagent/pkg/capability"
	"github.com/roagent/roagent/pkg/model/openai"
	"github.com/roagent/roagent/pkg/observability"
	"github.com/roagent/roagent/pkg/prompt"
	"github.com/roagent/roagent/pkg/session"
	"github.com/roagent/roagent/pkg/signal"
)

const defaultModel = "gpt-5-nano"

const defaultSystemPrompt = `You are a research assistant that helps inspect logs, files, and databases.
You have access to tools for investigating issues.
Be thorough in your investigation and provide clear summaries of what you find.

## Environment
- Platform: %s
- Home directory: %s
- Working directory: %s

When users reference paths with ~, expand them to the home directory.
Always use absolute paths in tool calls.`

// RunCmd runs the agent on a single prompt or starts a REPL.
type RunCmd struct {
	Instruction string `arg:"" optional:"" help:"Prompt to run (omit for an interactive session)."`

	Model      string   `short:"m" env:"OPENAI_MODEL" default:"gpt-5-nano" help:"Model to use."`
	BaseURL    string   `name:"base-url" env:"OPENAI_BASE_URL" help:"API base URL for OpenAI-compatible endpoints."`
	System     string   `short:"s" help:"Raw system prompt."`
	PromptFile string   `name:"prompt" short:"p" type:"path" help:"Markdown prompt file with YAML frontmatter."`
	Var        []string `help:"Prompt variable (key=value, repeatable)."`
	VarsFile   string   `name:"vars-file" type:"path" help:"YAML file with prompt variables."`
	Output     string   `short:"o" type:"path" help:"Write the final assistant text to a file (refuses to overwrite)."`
	WorkingDir string   `name:"working-dir" short:"w" type:"path" help:"Working directory for shell commands."`

	AutoApprove  bool   `name:"auto-approve" short:"y" help:"Auto-approve all tool calls."`
	Resume       string `short:"r" help:"Resume a saved conversation by id, or 'latest'."`
	List         bool   `short:"l" help:"List saved conversations and exit."`
	PreviewLines int    `name:"preview-lines" env:"RO_AGENT_PREVIEW_LINES" default:"5" help:"Result lines shown per tool call."`

	Profile       string `env:"RO_AGENT_PROFILE" default:"readonly" help:"Capability profile: readonly, developer, eval, or a YAML path."`
	ShellMode     string `name:"shell-mode" help:"Override the profile's shell mode (restricted or unrestricted)."`
	FileWriteMode string `name:"file-write-mode" help:"Override the profile's file write mode (off, create-only, full)."`

	MetricsAddr         string `name:"metrics-addr" help:"Serve Prometheus metrics on this address (e.g. :9095)."`
	ObservabilityConfig string `name:"observability-config" type:"path" help:"Observability config YAML."`
	TeamID              string `name:"team-id" help:"Telemetry team id (defaults to RO_AGENT_TEAM_ID)."`
	ProjectID           string `name:"project-id" help:"Telemetry project id (defaults to RO_AGENT_PROJECT_ID)."`
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ro-agent")
	}
	return filepath.Join(home, ".config", "ro-agent")
}

func (c *RunCmd) Run(cli *CLI) error {
	store, err := session.NewConversationStore(configDir())
	if err != nil {
		return err
	}
	if c.List {
		return listConversations(store)
	}

	workingDir := c.WorkingDir
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	} else if abs, err := filepath.Abs(workingDir); err == nil {
		workingDir = abs
	}

	if c.Output != "" {
		if _, err := os.Stat(c.Output); err == nil {
			return fmt.Errorf("output file already exists: %s", c.Output)
		}
	}

	systemPrompt, initialPrompt, err := c.buildPrompts(workingDir)
	if err != nil {
		return err
	}

	profile, err := c.loadProfile()
	if err != nil {
		return err
	}
	registry, err := capability.NewFactory(profile).CreateRegistry(workingDir, nil)
	if err != nil {
		return err
	}

	sess := session.New(systemPrompt, nil)
	modelName := c.Model
	conversationID := ""
	if c.Resume != "" {
		conv, err := c.loadConversation(store)
		if err != nil {
			return err
		}
		sess = session.New(conv.SystemPrompt, nil)
		sess.LoadHistory(conv.History, conv.InputTokens, conv.OutputTokens)
		conversationID = conv.ID
		// The saved model wins unless the flag was set to something
		// other than the default.
		if conv.Model != "" && c.Model == defaultModel {
			modelName = conv.Model
		}
		fmt.Printf("Resumed conversation %s (%d messages)\n", conv.ID, len(conv.History))
	}

	client, err := openai.New(openai.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   modelName,
		BaseURL: c.BaseURL,
	})
	if err != nil {
		return err
	}

	ctx, stop := gosignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runPrompt := c.Instruction
	if runPrompt == "" {
		runPrompt = initialPrompt
	}

	manager, err := signal.NewManager("")
	if err != nil {
		return err
	}
	sessionID := uuid.NewString()[:8]
	info := signal.AgentInfo{
		SessionID:          sessionID,
		PID:                os.Getpid(),
		Model:              modelName,
		InstructionPreview: previewText(runPrompt, 80),
		StartedAt:          time.Now().UTC().Format(time.RFC3339),
	}
	if err := manager.Register(info); err != nil {
		slog.Warn("Failed to register agent signal file", "error", err)
	}
	defer manager.Deregister(sessionID)

	watcher, err := signal.NewCancelWatcher(manager, sessionID)
	if err == nil {
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("Signal watcher failed to start", "error", err)
		}
		defer watcher.Stop()
	}
	cancelCheck := func() bool {
		if watcher != nil && watcher.Cancelled() {
			return true
		}
		return manager.IsCancelled(sessionID)
	}

	obsCfg, err := observability.Load(c.ObservabilityConfig, c.TeamID, c.ProjectID)
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()
	if c.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(c.MetricsAddr); err != nil {
				slog.Error("Metrics server failed", "addr", c.MetricsAddr, "error", err)
			}
		}()
	}
	processor, err := observability.CreateProcessor(ctx, obsCfg, modelName, profile.Name, metrics)
	if err != nil {
		return err
	}
	if processor != nil {
		if err := processor.StartSession(ctx); err != nil {
			slog.Warn("Telemetry session start failed", "error", err)
		}
		defer func() {
			if err := processor.EndSession(context.WithoutCancel(ctx), "completed"); err != nil {
				slog.Warn("Telemetry session end failed", "error", err)
			}
		}()
	}

	stdin := bufio.NewReader(os.Stdin)
	approval := &approvalPrompt{reader: stdin, auto: c.AutoApprove}

	ag := agent.New(agent.Config{
		Session:     sess,
		Registry:    registry,
		Client:      client,
		Approval:    approval.check,
		CancelCheck: cancelCheck,
	})

	started := time.Now()
	ui := &display{previewLines: c.PreviewLines}
	app := &appState{
		agent:     ag,
		processor: processor,
		ui:        ui,
	}

	if runPrompt != "" {
		err = app.runSingle(ctx, runPrompt, c.Output)
	} else {
		err = runInteractive(ctx, app, approval, stdin, modelName)
	}

	if sess.Len() > 0 {
		path, saveErr := store.Save(session.Conversation{
			Model:        modelName,
			SystemPrompt: sess.SystemPrompt,
			History:      sess.Messages(),
			InputTokens:  sess.TotalInputTokens,
			OutputTokens: sess.TotalOutputTokens,
		}, started, conversationID)
		if saveErr != nil {
			slog.Warn("Failed to save conversation", "error", saveErr)
		} else {
			fmt.Printf("%sConversation saved: %s%s\n", dim, path, reset)
		}
	}
	return err
}

// buildPrompts resolves the system prompt and an optional initial
// prompt. Precedence: prompt file, then --system, then the built-in
// default.
func (c *RunCmd) buildPrompts(workingDir string) (systemPrompt, initialPrompt string, err error) {
	if c.PromptFile != "" {
		p, err := prompt.Load(c.PromptFile)
		if err != nil {
			return "", "", err
		}
		vars := map[string]string{}
		if c.VarsFile != "" {
			fileVars, err := prompt.LoadVarsFile(c.VarsFile)
			if err != nil {
				return "", "", err
			}
			for k, v := range fileVars {
				vars[k] = v
			}
		}
		flagVars, err := prompt.ParseVars(c.Var)
		if err != nil {
			return "", "", err
		}
		for k, v := range flagVars {
			vars[k] = v
		}
		return p.Render(vars)
	}

	if c.System != "" {
		return c.System, "", nil
	}

	home, _ := os.UserHomeDir()
	return fmt.Sprintf(defaultSystemPrompt, runtime.GOOS, home, workingDir), "", nil
}

func (c *RunCmd) loadProfile() (*capability.Profile, error) {
	profile, err := capability.Load(c.Profile)
	if err != nil {
		return nil, err
	}
	if c.ShellMode != "" {
		switch mode := capability.ShellMode(c.ShellMode); mode {
		case capability.ShellRestricted, capability.ShellUnrestricted:
			profile.Shell = mode
		default:
			return nil, fmt.Errorf("invalid shell mode: %s", c.ShellMode)
		}
	}
	if c.FileWriteMode != "" {
		switch mode := capability.FileWriteMode(c.FileWriteMode); mode {
		case capability.WriteOff, capability.WriteCreateOnly, capability.WriteFull:
			profile.FileWrite = mode
		default:
			return nil, fmt.Errorf("invalid file write mode: %s", c.FileWriteMode)
		}
	}
	return profile, nil
}

func (c *RunCmd) loadConversation(store *session.ConversationStore) (*session.Conversation, error) {
	id := c.Resume
	if id == "latest" {
		latest, err := store.LatestID()
		if err != nil {
			return nil, err
		}
		if latest == "" {
			return nil, fmt.Errorf("no saved conversations to resume")
		}
		id = latest
	}
	conv, err := store.Load(id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	return conv, nil
}

func listConversations(store *session.ConversationStore) error {
	list, err := store.List(20)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No saved conversations.")
		return nil
	}
	for _, meta := range list {
		fmt.Printf("%s  %-14s  %3d msgs  %6d in / %6d out  %s\n",
			meta.ID, meta.Model, meta.MessageCount,
			meta.InputTokens, meta.OutputTokens, meta.DisplayPreview())
	}
	return nil
}

// appState bundles what a turn needs; the REPL and single-shot paths
// share it.
type appState struct {
	agent     *agent.Agent
	processor *observability.Processor
	ui        *display
}

// runTurn drives one turn, printing events, and returns the collected
// assistant text.
func (a *appState) runTurn(ctx context.Context, input string) string {
	events := a.agent.RunTurn(ctx, input)
	if a.processor != nil {
		events = a.processor.WrapTurn(ctx, events, input)
	}

	var text strings.Builder
	for event := range events {
		a.ui.handleEvent(event)
		if event.Type == agent.EventText {
			text.WriteString(event.Content)
		}
	}
	return text.String()
}

// runSingle runs one prompt; with outputPath set, the final assistant
// text is written there.
func (a *appState) runSingle(ctx context.Context, input, outputPath string) error {
	text := a.runTurn(ctx, input)
	if outputPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Printf("\n%sOutput written to: %s%s\n", green, outputPath, reset)
	return nil
}

// approvalPrompt asks the user before dangerous tool calls. Approval
// defaults to yes on an empty line.
type approvalPrompt struct {
	reader *bufio.Reader
	auto   bool
}

func (p *approvalPrompt) enableAuto() {
	p.auto = true
	fmt.Printf("%sAuto-approve enabled for this session%s\n", green, reset)
}

func (p *approvalPrompt) check(toolName string, args map[string]any) bool {
	if p.auto {
		return true
	}
	fmt.Printf("%sApprove? [Y/n]:%s ", yellow, reset)
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return false
	}
	resp := strings.ToLower(strings.TrimSpace(line))
	return resp != "n" && resp != "no"
}

func previewText(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
