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

package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roagent/roagent/pkg/model"
)

// Conversation is a complete saved conversation.
type Conversation struct {
	ID           string          `json:"id"`
	Model        string          `json:"model"`
	SystemPrompt string          `json:"system_prompt"`
	History      []model.Message `json:"history"`
	Started      string          `json:"started"`
	Ended        string          `json:"ended"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
}

// ConversationMetadata summarizes a saved conversation for listing.
type ConversationMetadata struct {
	ID               string
	Model            string
	Started          string
	Ended            string
	MessageCount     int
	InputTokens      int
	OutputTokens     int
	FirstUserMessage string
}

// DisplayPreview returns a short preview of the first user message.
func (m ConversationMetadata) DisplayPreview() string {
	const previewLen = 60
	if len(m.FirstUserMessage) > previewLen {
		return m.FirstUserMessage[:previewLen] + "..."
	}
	return m.FirstUserMessage
}

// ConversationStore saves and loads conversations as JSON snapshots
// under <baseDir>/conversations, named by timestamp id.
type ConversationStore struct {
	dir string
}

// NewConversationStore creates the store directory if needed.
func NewConversationStore(baseDir string) (*ConversationStore, error) {
	dir := filepath.Join(baseDir, "conversations")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating conversations dir: %w", err)
	}
	return &ConversationStore{dir: dir}, nil
}

// Dir returns the conversations directory.
func (s *ConversationStore) Dir() string {
	return s.dir
}

func generateID(now time.Time) string {
	return now.Format("2006-01-02_15-04-05")
}

// Save writes a conversation snapshot and returns the file path. An
// empty conversationID generates a timestamp id.
func (s *ConversationStore) Save(conv Conversation, started time.Time, conversationID string) (string, error) {
	if conversationID == "" {
		conversationID = generateID(time.Now())
	}
	conv.ID = conversationID
	conv.Started = started.Format(time.RFC3339)
	conv.Ended = time.Now().Format(time.RFC3339)

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, conversationID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a conversation by id. Returns nil when it doesn't exist.
func (s *ConversationStore) Load(conversationID string) (*Conversation, error) {
	path := filepath.Join(s.dir, conversationID+".json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("parsing conversation %s: %w", conversationID, err)
	}
	return &conv, nil
}

// List returns recent conversations, newest first. Unparseable files
// are skipped.
func (s *ConversationStore) List(limit int) ([]ConversationMetadata, error) {
	entries, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}

	// Ids are zero-padded timestamps, so lexicographic order is
	// chronological. File mtimes are not trusted; a touched or copied
	// snapshot must not change which conversation is latest.
	sort.Sort(sort.Reverse(sort.StringSlice(entries)))
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	var results []ConversationMetadata
	for _, path := range entries {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var conv Conversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			continue
		}

		firstUser := ""
		for _, m := range conv.History {
			if m.Role == model.RoleUser && m.Content != "" {
				firstUser = m.Content
				break
			}
		}

		modelName := conv.Model
		if modelName == "" {
			modelName = "unknown"
		}
		results = append(results, ConversationMetadata{
			ID:               conv.ID,
			Model:            modelName,
			Started:          conv.Started,
			Ended:            conv.Ended,
			MessageCount:     len(conv.History),
			InputTokens:      conv.InputTokens,
			OutputTokens:     conv.OutputTokens,
			FirstUserMessage: firstUser,
		})
	}
	return results, nil
}

// LatestID returns the id of the most recent conversation, or "".
func (s *ConversationStore) LatestID() (string, error) {
	list, err := s.List(1)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", nil
	}
	return list[0].ID, nil
}
