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
	"math"
	"strconv"
	"strings"
)

// floatTolerance is the allowed difference for numeric answers.
const floatTolerance = 0.01

// CompareResults scores a submitted answer against the expected
// answer list. Mutation queries require an exact match of the cleaned
// values; SELECT answers get numeric tolerance, percentage and
// thousand-separator normalization, and order-insensitive matching for
// multi-value answers.
func CompareResults(answer string, groundTruth []string, queryType string) bool {
	processed := cleanAnswer(answer)
	expected := cleanAnswerList(groundTruth)

	switch queryType {
	case "INSERT", "UPDATE", "DELETE":
		return stringSlicesEqual(processed, expected)
	}

	if len(processed) == 1 && len(expected) == 1 {
		ansVal, gtVal := processed[0], expected[0]
		if ansVal == "0" && gtVal == "0" {
			return true
		}
		if isFloat(ansVal) && isFloat(gtVal) {
			return floatEqual(ansVal, gtVal)
		}
		return ansVal == gtVal
	}

	if allFloats(processed) && allFloats(expected) {
		if len(processed) != len(expected) {
			return false
		}
		// Greedy matching: every answer must claim a distinct expected
		// value within tolerance.
		matched := make([]bool, len(expected))
		for _, ans := range processed {
			found := false
			for i, gt := range expected {
				if !matched[i] && floatEqual(ans, gt) {
					matched[i] = true
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}

	return stringSetsEqual(processed, expected)
}

// CompareHash scores a mutation task by comparing the calculated table
// hash to the dataset's answer_md5, which arrives in MySQL result
// format like "[('fa81a61f…',)]".
func CompareHash(calculated, expected string) bool {
	if calculated == "" || expected == "" {
		return false
	}

	cleaned := strings.TrimSpace(expected)
	if strings.HasPrefix(cleaned, "[") && strings.HasSuffix(cleaned, ")]") {
		if values, ok := parseMySQLTuples(cleaned); ok && len(values) == 1 {
			cleaned = values[0]
		} else {
			cleaned = strings.Trim(cleaned, "[]() '\",")
		}
	}
	cleaned = strings.Trim(cleaned, "[]() '\",")

	return strings.EqualFold(calculated, cleaned)
}

// cleanAnswer normalizes a raw answer string into a list of comparable
// values. An empty answer normalizes to ["0"].
func cleanAnswer(answer string) []string {
	if values, ok := parseMySQLTuples(answer); ok {
		result := make([]string, len(values))
		for i, v := range values {
			result[i] = normalizeValue(v)
		}
		return result
	}

	answer = strings.TrimSpace(answer)
	if strings.HasPrefix(answer, "[") && strings.HasSuffix(answer, "]") {
		return parseBracketedList(answer)
	}
	return []string{normalizeValue(stripQuotes(answer))}
}

func cleanAnswerList(values []string) []string {
	result := make([]string, len(values))
	for i, v := range values {
		result[i] = normalizeValue(stripQuotes(strings.TrimSpace(v)))
	}
	if len(result) == 0 {
		return []string{"0"}
	}
	return result
}

// parseMySQLTuples extracts values from the MySQL client result format
// "[(v1,), (v2,)]". Only single-element tuples contribute values.
func parseMySQLTuples(s string) ([]string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, false
	}

	inner := strings.TrimSpace(s[1 : len(s)-1])
	if !strings.HasPrefix(inner, "(") {
		return nil, false
	}

	var values []string
	pos := 0
	for pos < len(inner) {
		for pos < len(inner) && (inner[pos] == ',' || inner[pos] == ' ') {
			pos++
		}
		if pos >= len(inner) {
			break
		}
		if inner[pos] != '(' {
			return nil, false
		}
		end := findTupleEnd(inner, pos)
		if end < 0 {
			return nil, false
		}
		fields := splitTopLevel(inner[pos+1 : end])
		if len(fields) == 1 {
			values = append(values, stripQuotes(strings.TrimSpace(fields[0])))
		}
		pos = end + 1
	}
	return values, true
}

// findTupleEnd locates the closing paren for the tuple opening at
// start, skipping quoted sections.
func findTupleEnd(s string, start int) int {
	inQuote := byte(0)
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
		case c == ')':
			return i
		}
	}
	return -1
}

// splitTopLevel splits on commas outside quotes and drops trailing
// empties, so "(v,)" yields one field.
func splitTopLevel(s string) []string {
	var fields []string
	var current strings.Builder
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			current.WriteByte(c)
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
			current.WriteByte(c)
		case c == ',':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		fields = append(fields, current.String())
	}
	return fields
}

// parseBracketedList splits a "[a, b, c]" answer on commas outside
// quotes.
func parseBracketedList(s string) []string {
	inner := s[1 : len(s)-1]
	var items []string
	var current strings.Builder
	inQuotes := false
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case c == '\'' || c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			if current.Len() > 0 {
				items = append(items, normalizeValue(stripQuotes(strings.TrimSpace(current.String()))))
				current.Reset()
			}
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		items = append(items, normalizeValue(stripQuotes(strings.TrimSpace(current.String()))))
	}
	return items
}

// normalizeValue strips percentage signs and thousand separators and
// maps null-like values to "0".
func normalizeValue(value string) string {
	value = strings.TrimSpace(value)

	if strings.HasSuffix(value, "%") {
		value = strings.TrimSpace(strings.TrimSuffix(value, "%"))
	}

	if strings.Contains(value, ",") &&
		!strings.HasPrefix(value, "[") &&
		!strings.HasSuffix(value, "]") {
		value = strings.ReplaceAll(value, ",", "")
	}

	switch strings.ToLower(value) {
	case "none", "null", "undefined", "nan", "inf", "infinity", "-inf", "-infinity", "":
		return "0"
	}
	return value
}

func stripQuotes(s string) string {
	return strings.Trim(s, "'\"")
}

func isFloat(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func allFloats(values []string) bool {
	for _, v := range values {
		if !isFloat(v) {
			return false
		}
	}
	return true
}

func floatEqual(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return false
	}
	return math.Abs(fa-fb) <= floatTolerance
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringSetsEqual(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, v := range b {
		setB[v] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for v := range setA {
		if _, ok := setB[v]; !ok {
			return false
		}
	}
	return true
}
