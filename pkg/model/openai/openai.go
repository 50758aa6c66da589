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

// Package openai implements model.Client against any OpenAI-compatible
// chat-completions endpoint.
//
// Streaming uses SSE. Tool-call fragments are accumulated by choice
// index and emitted as complete tool calls when the provider reports a
// finish reason. Providers that stream unreliably (Cerebras) get a
// non-streaming fallback that emits the same chunk sequence.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/roagent/roagent/pkg/httpclient"
	"github.com/roagent/roagent/pkg/model"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"
	defaultTimeout = 60 * time.Second

	// flexTimeout applies under the "flex" service tier, where requests
	// may queue server-side for minutes before the first byte.
	flexTimeout = 900 * time.Second
)

// Config configures the client.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	Temperature *float64
	ServiceTier string
}

// Option configures the client.
type Option func(*Config)

// WithModel sets the model name.
func WithModel(name string) Option {
	return func(c *Config) { c.Model = name }
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(c *Config) { c.Temperature = &temp }
}

// WithServiceTier sets the provider service tier.
func WithServiceTier(tier string) Option {
	return func(c *Config) { c.ServiceTier = tier }
}

// Client talks to an OpenAI-compatible chat-completions API.
type Client struct {
	httpClient  *httpclient.Client
	apiKey      string
	baseURL     string
	modelName   string
	temperature *float64
	serviceTier string
}

// New creates a client. An API key is required.
func New(cfg Config, opts ...Option) (*Client, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
		if cfg.ServiceTier == "flex" {
			timeout = flexTimeout
		}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 8
	}

	return &Client{
		httpClient: httpclient.New(
			httpclient.WithTimeout(timeout),
			httpclient.WithMaxRetries(maxRetries),
		),
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		modelName:   modelName,
		temperature: cfg.Temperature,
		serviceTier: cfg.ServiceTier,
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string {
	return c.modelName
}

// Stream implements model.Client.
func (c *Client) Stream(ctx context.Context, messages []model.Message, tools []model.ToolDefinition) iter.Seq2[*model.Chunk, error] {
	if c.needsNonStreamingFallback() {
		return c.streamViaComplete(ctx, messages, tools)
	}
	return c.stream(ctx, messages, tools)
}

// Complete implements model.Client. Used for summarization; no tools.
func (c *Client) Complete(ctx context.Context, messages []model.Message) (string, error) {
	resp, err := c.complete(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// needsNonStreamingFallback reports whether the configured endpoint is
// known to deliver broken tool-call streams.
func (c *Client) needsNonStreamingFallback() bool {
	return strings.Contains(strings.ToLower(c.baseURL), "cerebras")
}

func (c *Client) stream(ctx context.Context, messages []model.Message, tools []model.ToolDefinition) iter.Seq2[*model.Chunk, error] {
	return func(yield func(*model.Chunk, error) bool) {
		req := c.buildRequest(messages, tools, true)
		resp, err := c.send(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		assembler := newToolCallAssembler()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			data := line[6:]
			if bytes.Equal(data, []byte("[DONE]")) {
				break
			}

			var chunk streamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				slog.Debug("skipping malformed stream chunk", "error", err)
				continue
			}

			// The usage chunk arrives last with an empty choices array.
			if chunk.Usage != nil && len(chunk.Choices) == 0 {
				if !yield(&model.Chunk{
					Type:  model.ChunkUsage,
					Usage: &model.Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens},
				}, nil) {
					return
				}
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				if !yield(&model.Chunk{Type: model.ChunkContent, Text: choice.Delta.Content}, nil) {
					return
				}
			}
			for _, fragment := range choice.Delta.ToolCalls {
				assembler.add(fragment)
			}
			if choice.FinishReason != "" {
				for _, tc := range assembler.finalize() {
					call := tc
					if !yield(&model.Chunk{Type: model.ChunkToolCall, ToolCall: &call}, nil) {
						return
					}
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("stream read error: %w", err))
		}
	}
}

// streamViaComplete emits the chunk sequence of a streaming call from a
// single non-streaming response.
func (c *Client) streamViaComplete(ctx context.Context, messages []model.Message, tools []model.ToolDefinition) iter.Seq2[*model.Chunk, error] {
	return func(yield func(*model.Chunk, error) bool) {
		resp, err := c.complete(ctx, messages, tools)
		if err != nil {
			yield(nil, err)
			return
		}
		if len(resp.Choices) == 0 {
			yield(nil, fmt.Errorf("no choices in response"))
			return
		}

		msg := resp.Choices[0].Message
		if msg.Content != "" {
			if !yield(&model.Chunk{Type: model.ChunkContent, Text: msg.Content}, nil) {
				return
			}
		}
		for _, tc := range msg.ToolCalls {
			call := model.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: parseArguments(tc.Function.Arguments),
			}
			if !yield(&model.Chunk{Type: model.ChunkToolCall, ToolCall: &call}, nil) {
				return
			}
		}
		if resp.Usage != nil {
			yield(&model.Chunk{
				Type:  model.ChunkUsage,
				Usage: &model.Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens},
			}, nil)
		}
	}
}

func (c *Client) complete(ctx context.Context, messages []model.Message, tools []model.ToolDefinition) (*completionResponse, error) {
	req := c.buildRequest(messages, tools, false)
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) send(ctx context.Context, req *completionRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if bodyBytes, _ := io.ReadAll(resp.Body); len(bodyBytes) > 0 {
				return nil, fmt.Errorf("request failed: %w - response: %s", err, string(bodyBytes))
			}
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}

func (c *Client) buildRequest(messages []model.Message, tools []model.ToolDefinition, stream bool) *completionRequest {
	req := &completionRequest{
		Model:       c.modelName,
		Messages:    convertMessages(messages),
		Stream:      stream,
		Temperature: c.temperature,
		ServiceTier: c.serviceTier,
	}
	if stream {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return req
}

func convertMessages(messages []model.Message) []apiMessage {
	out := make([]apiMessage, 0, len(messages))
	for _, m := range messages {
		am := apiMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			am.ToolCalls = append(am.ToolCalls, apiToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: apiCallFunction{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, am)
	}
	return out
}

// parseArguments parses a tool-call arguments payload. Malformed JSON
// yields an empty map; the tool handler reports the missing arguments.
func parseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		slog.Debug("tool call arguments were not valid JSON", "raw_len", len(raw))
		return map[string]any{}
	}
	return args
}

// toolCallAssembler accumulates streamed tool-call fragments keyed by
// choice index until a finish reason arrives.
type toolCallAssembler struct {
	partials map[int]*partialToolCall
}

type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{partials: make(map[int]*partialToolCall)}
}

func (a *toolCallAssembler) add(fragment deltaToolCall) {
	p, ok := a.partials[fragment.Index]
	if !ok {
		p = &partialToolCall{}
		a.partials[fragment.Index] = p
	}
	if fragment.ID != "" {
		p.id = fragment.ID
	}
	if fragment.Function.Name != "" {
		p.name = fragment.Function.Name
	}
	p.args.WriteString(fragment.Function.Arguments)
}

// finalize returns the assembled calls in index order and resets the
// assembler.
func (a *toolCallAssembler) finalize() []model.ToolCall {
	if len(a.partials) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.partials))
	for i := range a.partials {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]model.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		p := a.partials[i]
		calls = append(calls, model.ToolCall{
			ID:        p.id,
			Name:      p.name,
			Arguments: parseArguments(p.args.String()),
		})
	}
	a.partials = make(map[int]*partialToolCall)
	return calls
}

// API types.

type completionRequest struct {
	Model         string         `json:"model"`
	Messages      []apiMessage   `json:"messages"`
	Tools         []apiTool      `json:"tools,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	ServiceTier   string         `json:"service_tier,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function apiCallFunction `json:"function"`
}

type apiCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type apiTool struct {
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content   string        `json:"content"`
			ToolCalls []apiToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *apiUsage `json:"usage"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []deltaToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *apiUsage `json:"usage"`
}

type deltaToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Ensure Client implements model.Client.
var _ model.Client = (*Client)(nil)
