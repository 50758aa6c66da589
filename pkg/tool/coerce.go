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

package tool

import (
	"math"
	"strconv"
	"strings"
)

// CoerceArguments repairs common model mistakes in tool-call arguments
// by coercing values toward the declared schema types. Values that
// cannot be coerced are kept as-is; the handler surfaces the real error.
func CoerceArguments(schema map[string]any, args map[string]any) map[string]any {
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(args) == 0 {
		return args
	}

	out := make(map[string]any, len(args))
	for key, value := range args {
		prop, ok := props[key].(map[string]any)
		if !ok {
			out[key] = value
			continue
		}
		declared, _ := prop["type"].(string)
		out[key] = coerceValue(declared, value)
	}
	return out
}

func coerceValue(declared string, value any) any {
	switch declared {
	case "boolean":
		if s, ok := value.(string); ok {
			switch strings.ToLower(s) {
			case "true", "1", "yes":
				return true
			case "false", "0", "no":
				return false
			}
		}
	case "integer":
		switch v := value.(type) {
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		case float64:
			if v == math.Trunc(v) {
				return int(v)
			}
		}
	case "number":
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f
			}
		}
	}
	return value
}
