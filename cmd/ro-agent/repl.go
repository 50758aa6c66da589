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
	"io"
	"strings"
)

const replHelp = `Commands:
  /approve              Auto-approve tool calls for the rest of the session
  /compact [guidance]   Summarize the conversation to free context
  /clear                Clear the screen
  /help                 Show this help
  exit, quit            Leave the session`

// runInteractive drives the REPL until exit, quit, EOF or ctx
// cancellation.
func runInteractive(ctx context.Context, app *appState, approval *approvalPrompt, stdin *bufio.Reader, modelName string) error {
	fmt.Printf("ro-agent interactive session (%s). Type /help for commands.\n", modelName)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Printf("\n%s>%s ", green, reset)
		line, err := stdin.ReadString('\n')
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}
		if strings.HasPrefix(input, "/") {
			if handleCommand(ctx, app, approval, input) {
				return nil
			}
			continue
		}

		app.runTurn(ctx, input)
	}
}

// handleCommand runs a slash command. Returns true when the REPL
// should exit.
func handleCommand(ctx context.Context, app *appState, approval *approvalPrompt, input string) bool {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/approve":
		approval.enableAuto()

	case "/compact":
		fmt.Printf("\n%sCompacting conversation...%s\n", yellow, reset)
		result, err := app.agent.Compact(ctx, rest, "manual")
		if err != nil {
			fmt.Printf("%sCompaction failed: %v%s\n", red, err, reset)
			break
		}
		fmt.Printf("%sCompacted: ~%d tokens down to ~%d. Details from before the summary may be imprecise.%s\n",
			dim, result.TokensBefore, result.TokensAfter, reset)

	case "/clear":
		fmt.Print("\033[2J\033[H")

	case "/help":
		fmt.Println(replHelp)

	default:
		fmt.Printf("Unknown command: %s (try /help)\n", cmd)
	}
	return false
}
