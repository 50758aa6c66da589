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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func strptr(s string) *string {
	return &s
}

func TestEvaluateMatchExact(t *testing.T) {
	e := NewOSEvaluator("")
	cfg := EvaluationConfig{EvalType: "match", MatchAnswer: strptr("42"), MatchStrip: true}

	assert.True(t, e.Evaluate(context.Background(), "42", true, cfg, nil, ""))
	assert.True(t, e.Evaluate(context.Background(), "  42\n", true, cfg, nil, ""))
	assert.False(t, e.Evaluate(context.Background(), "43", true, cfg, nil, ""))
}

func TestEvaluateMatchNoStrip(t *testing.T) {
	e := NewOSEvaluator("")
	cfg := EvaluationConfig{EvalType: "match", MatchAnswer: strptr("42"), MatchStrip: false}

	assert.False(t, e.Evaluate(context.Background(), " 42", true, cfg, nil, ""))
}

func TestEvaluateMatchRegex(t *testing.T) {
	e := NewOSEvaluator("")
	cfg := EvaluationConfig{EvalType: "match", MatchRegex: `^\d+$`, MatchStrip: true}

	assert.True(t, e.Evaluate(context.Background(), "123", true, cfg, nil, ""))
	assert.False(t, e.Evaluate(context.Background(), "abc", true, cfg, nil, ""))
}

func TestEvaluateNoAnswerFails(t *testing.T) {
	e := NewOSEvaluator("")
	cfg := EvaluationConfig{EvalType: "match", MatchAnswer: strptr("42"), MatchStrip: true}

	assert.False(t, e.Evaluate(context.Background(), "", false, cfg, nil, ""))
}

func TestEvaluateUnknownTypeFails(t *testing.T) {
	e := NewOSEvaluator("")
	assert.False(t, e.Evaluate(context.Background(), "x", true, EvaluationConfig{EvalType: "mystery"}, nil, ""))
}

func TestBuiltinChecks(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		expected string
		script   string
		want     bool
	}{
		{"integer equal", "42", "42", "integer-match.py", true},
		{"integer with whitespace", " 42\n", "42", "integer-match.py", true},
		{"integer unequal", "42", "43", "integer-match.py", false},
		{"integer non-numeric", "abc", "42", "integer-match.py", false},
		{"string equal", "hello", "hello", "string-match.py", true},
		{"string crlf normalized", "hello\r\n", "hello", "string-match.py", true},
		{"containing", "the answer is 42", "42", "containing.py", true},
		{"containing missing", "nothing here", "42", "containing.py", false},
		{"in", "42", "41 42 43", "in.py", true},
		{"in missing", "44", "41 42 43", "in.py", false},
		{"unknown script defaults to string match", "x", "x", "other.py", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runBuiltinCheck(tt.answer, tt.expected, tt.script))
		})
	}
}

func TestSizeMatch(t *testing.T) {
	tests := []struct {
		answer   string
		expected string
		want     bool
	}{
		{"1024", "1K", true},
		{"1K", "1KB", true},
		{"2M", "2097152", true},
		{"1G", "1024MB", true},
		{"1T", "1024GB", true},
		{"5B", "5", true},
		{"512Byte", "512", true},
		{"1K", "1025", false},
		{"junk", "1K", false},
	}

	for _, tt := range tests {
		t.Run(tt.answer+"_"+tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.want, sizeMatch(tt.answer, tt.expected))
		})
	}
}

func TestParseSize(t *testing.T) {
	assert.Equal(t, int64(1024), parseSize("1K"))
	assert.Equal(t, int64(1024), parseSize("1KB"))
	assert.Equal(t, int64(5), parseSize("5"))
	assert.Equal(t, int64(-1), parseSize("oops"))
	// Longest suffix wins: "10MB" is megabytes, not "10M" + stray B.
	assert.Equal(t, int64(10*1024*1024), parseSize("10MB"))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'abc'", shellQuote("abc"))
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
