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

package capability

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ApprovalPolicy decides when a tool invocation needs user approval:
// profile-level per-tool rules plus dangerous-pattern scanning over
// the arguments. Patterns prefixed with "regex:" are compiled
// case-insensitive; the rest match as case-insensitive literals.
type ApprovalPolicy struct {
	profile *Profile

	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// NewApprovalPolicy creates a policy for the profile.
func NewApprovalPolicy(profile *Profile) *ApprovalPolicy {
	return &ApprovalPolicy{
		profile: profile,
		cache:   make(map[string]*regexp.Regexp),
	}
}

// RequiresApproval checks a tool invocation. The returned reason is
// empty when no approval is needed.
func (p *ApprovalPolicy) RequiresApproval(toolName string, arguments map[string]any) (bool, string) {
	if p.profile.RequiresToolApproval(toolName) {
		return true, fmt.Sprintf("Tool '%s' requires approval", toolName)
	}

	// Dangerous argument patterns escalate even tools that are
	// otherwise approval-free.
	if len(arguments) > 0 {
		if pattern := p.checkDangerousPatterns(arguments); pattern != "" {
			return true, fmt.Sprintf("Command contains dangerous pattern: %s", pattern)
		}
	}
	return false, ""
}

func (p *ApprovalPolicy) checkDangerousPatterns(arguments map[string]any) string {
	var parts []string
	for _, v := range arguments {
		if v == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	text := strings.Join(parts, " ")

	for _, pattern := range p.profile.DangerousPatterns {
		if p.matchesPattern(pattern, text) {
			return pattern
		}
	}
	return ""
}

func (p *ApprovalPolicy) matchesPattern(pattern, text string) bool {
	if rest, ok := strings.CutPrefix(pattern, "regex:"); ok {
		re := p.compiled(rest)
		if re == nil {
			// Invalid regex falls back to a literal match.
			return strings.Contains(strings.ToLower(text), strings.ToLower(rest))
		}
		return re.MatchString(text)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(pattern))
}

func (p *ApprovalPolicy) compiled(pattern string) *regexp.Regexp {
	p.mu.Lock()
	defer p.mu.Unlock()
	if re, ok := p.cache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		p.cache[pattern] = nil
		return nil
	}
	p.cache[pattern] = re
	return re
}
