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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareResultsSingleValue(t *testing.T) {
	tests := []struct {
		name        string
		answer      string
		groundTruth []string
		want        bool
	}{
		{"exact string", "Toronto Raptors", []string{"Toronto Raptors"}, true},
		{"string mismatch", "Toronto", []string{"Toronto Raptors"}, false},
		{"float within tolerance", "3.14", []string{"3.149"}, true},
		{"float outside tolerance", "3.14", []string{"3.16"}, false},
		{"integer as float", "42", []string{"42.0"}, true},
		{"percentage stripped", "85%", []string{"85"}, true},
		{"thousand separators removed", "1,234,567", []string{"1234567"}, true},
		{"quotes stripped", "'Boston'", []string{"Boston"}, true},
		{"null-like maps to zero", "none", []string{"0"}, true},
		{"empty maps to zero", "", []string{"null"}, true},
		{"nan maps to zero", "NaN", []string{"0"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareResults(tt.answer, tt.groundTruth, "SELECT"))
		})
	}
}

func TestCompareResultsMySQLFormat(t *testing.T) {
	assert.True(t, CompareResults("[(42,)]", []string{"42"}, "SELECT"))
	assert.True(t, CompareResults("[('Boston',)]", []string{"Boston"}, "SELECT"))
	assert.True(t, CompareResults("[(1,), (2,), (3,)]", []string{"1", "2", "3"}, "SELECT"))
}

func TestCompareResultsBracketedList(t *testing.T) {
	assert.True(t, CompareResults("[1, 2, 3]", []string{"1", "2", "3"}, "SELECT"))
	assert.True(t, CompareResults("['a', 'b']", []string{"a", "b"}, "SELECT"))
	// Order does not matter for non-numeric multi-value answers.
	assert.True(t, CompareResults("['b', 'a']", []string{"a", "b"}, "SELECT"))
}

func TestCompareResultsMultipleFloats(t *testing.T) {
	// Each answer must claim a distinct expected value within tolerance.
	assert.True(t, CompareResults("[1.001, 2.002]", []string{"1.0", "2.0"}, "SELECT"))
	assert.True(t, CompareResults("[2.0, 1.0]", []string{"1.0", "2.0"}, "SELECT"))
	assert.False(t, CompareResults("[1.0, 1.0]", []string{"1.0", "2.0"}, "SELECT"))
	assert.False(t, CompareResults("[1.0]", []string{"1.0", "2.0"}, "SELECT"))
}

func TestCompareResultsMutationExact(t *testing.T) {
	assert.True(t, CompareResults("done", []string{"done"}, "INSERT"))
	// Mutations require exact ordered equality, no tolerance.
	assert.False(t, CompareResults("3.141", []string{"3.149"}, "UPDATE"))
	assert.False(t, CompareResults("[1, 2]", []string{"2", "1"}, "DELETE"))
}

func TestCompareHash(t *testing.T) {
	hash := "fa81a61f9a648475594128fa51bfa80d"

	assert.True(t, CompareHash(hash, "[('fa81a61f9a648475594128fa51bfa80d',)]"))
	assert.True(t, CompareHash(hash, hash))
	assert.True(t, CompareHash(hash, "FA81A61F9A648475594128FA51BFA80D"))
	assert.False(t, CompareHash(hash, "[('0000000000000000000000000000000d',)]"))
	assert.False(t, CompareHash("", "[('abc',)]"))
	assert.False(t, CompareHash(hash, ""))
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "85", normalizeValue("85%"))
	assert.Equal(t, "1234567", normalizeValue("1,234,567"))
	assert.Equal(t, "0", normalizeValue("None"))
	assert.Equal(t, "0", normalizeValue("undefined"))
	assert.Equal(t, "0", normalizeValue("-Infinity"))
	assert.Equal(t, "0", normalizeValue(""))
	assert.Equal(t, "hello", normalizeValue("  hello  "))
}

func TestParseMySQLTuples(t *testing.T) {
	values, ok := parseMySQLTuples("[('a',), ('b',)]")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, values)

	values, ok = parseMySQLTuples("[(42,)]")
	assert.True(t, ok)
	assert.Equal(t, []string{"42"}, values)

	// Commas inside quoted values stay intact.
	values, ok = parseMySQLTuples("[('a, b',)]")
	assert.True(t, ok)
	assert.Equal(t, []string{"a, b"}, values)

	_, ok = parseMySQLTuples("plain text")
	assert.False(t, ok)

	_, ok = parseMySQLTuples("[1, 2, 3]")
	assert.False(t, ok)
}

func TestCleanAnswerEmpty(t *testing.T) {
	assert.Equal(t, []string{"0"}, cleanAnswer(""))
	assert.Equal(t, []string{"0"}, cleanAnswerList(nil))
}
