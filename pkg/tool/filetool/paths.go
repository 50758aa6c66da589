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

// Package filetool provides the read, list, glob, grep, write, and edit
// tools. glob and grep shell out to ripgrep; everything else uses the
// filesystem directly.
package filetool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolvePath expands a leading ~ and makes the path absolute.
func resolvePath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// formatSize renders a byte count in human-readable form.
func formatSize(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%dB", size)
	}
	value := float64(size)
	for _, unit := range []string{"KB", "MB", "GB"} {
		value /= 1024
		if value < 1024 {
			return fmt.Sprintf("%.1f%s", value, unit)
		}
	}
	return fmt.Sprintf("%.1fTB", value/1024)
}

// excludeGlobs skips common non-content directories in rg searches.
var excludeGlobs = []string{
	"!.git/",
	"!node_modules/",
	"!__pycache__/",
	"!.venv/",
	"!venv/",
}
