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
	"fmt"

	"github.com/roagent/roagent/pkg/signal"
)

// KillCmd cancels running agents by writing their cancel files.
type KillCmd struct {
	ID  string `arg:"" optional:"" help:"Session id or unique prefix to cancel."`
	All bool   `help:"Cancel every running agent."`
}

func (c *KillCmd) Run() error {
	manager, err := signal.NewManager("")
	if err != nil {
		return err
	}
	manager.CleanupStale()

	switch {
	case c.All:
		cancelled, err := manager.CancelAll()
		if err != nil {
			return err
		}
		if len(cancelled) == 0 {
			fmt.Println("No running agents.")
			return nil
		}
		for _, id := range cancelled {
			fmt.Printf("Cancelled %s\n", id)
		}
		return nil

	case c.ID == "":
		return fmt.Errorf("session id required (or --all)")

	default:
		ok, err := manager.Cancel(c.ID)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("Cancelled %s\n", c.ID)
			return nil
		}
		cancelled, err := manager.CancelByPrefix(c.ID)
		if err != nil {
			return err
		}
		if len(cancelled) == 0 {
			return fmt.Errorf("no running agent matches %q", c.ID)
		}
		for _, id := range cancelled {
			fmt.Printf("Cancelled %s\n", id)
		}
		return nil
	}
}

// ListCmd shows agents registered in the signal directory.
type ListCmd struct{}

func (c *ListCmd) Run() error {
	manager, err := signal.NewManager("")
	if err != nil {
		return err
	}
	manager.CleanupStale()

	running := manager.ListRunning()
	if len(running) == 0 {
		fmt.Println("No running agents.")
		return nil
	}
	fmt.Printf("%-10s %-8s %-16s %-20s %s\n", "SESSION", "PID", "MODEL", "STARTED", "INSTRUCTION")
	for _, info := range running {
		fmt.Printf("%-10s %-8d %-16s %-20s %s\n",
			info.SessionID, info.PID, info.Model, info.StartedAt, info.InstructionPreview)
	}
	return nil
}
