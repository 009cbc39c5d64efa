// Copyright (c) 2026 John Earle
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

// Package extract pulls single field values out of free-text message bodies
// using ordered pattern rules. The first rule that yields a non-empty value
// wins; a rule that matches but captures nothing does not stop the search.
package extract

import (
	"regexp"
	"strings"
)

// Transform turns the submatches of a rule (index 0 is the whole match)
// into a field value.
type Transform func(groups []string) string

// Rule is one extraction attempt.
type Rule struct {
	Pattern   *regexp.Regexp
	Transform Transform
}

// Rules compiles patterns into rules with the default transform.
// It panics on an invalid pattern; rule tables are built at init.
func Rules(patterns ...string) []Rule {
	rules := make([]Rule, 0, len(patterns))
	for _, p := range patterns {
		rules = append(rules, Rule{Pattern: regexp.MustCompile(p)})
	}
	return rules
}

// With returns a rule using the given transform.
func With(pattern string, transform Transform) Rule {
	return Rule{Pattern: regexp.MustCompile(pattern), Transform: transform}
}

// JoinGroups joins every non-empty capture group with sep. Used for
// templates that split a value across several captures (first/last name).
func JoinGroups(sep string) Transform {
	return func(groups []string) string {
		var parts []string
		for _, g := range groups[1:] {
			if g = strings.TrimSpace(g); g != "" {
				parts = append(parts, g)
			}
		}
		return strings.Join(parts, sep)
	}
}

// firstGroup is the default transform: capture group 1, or the whole match
// for patterns without groups.
func firstGroup(groups []string) string {
	if len(groups) > 1 {
		return groups[1]
	}
	return groups[0]
}

// Extract runs rules against text in order and returns the first non-empty,
// trimmed result. It returns "" when no rule produces a value.
func Extract(text string, rules []Rule) string {
	for _, r := range rules {
		if r.Pattern == nil {
			continue
		}
		groups := r.Pattern.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		transform := r.Transform
		if transform == nil {
			transform = firstGroup
		}
		if v := strings.TrimSpace(transform(groups)); v != "" {
			return v
		}
	}
	return ""
}

// TryInOrder evaluates candidates lazily and returns the first non-empty,
// trimmed value.
func TryInOrder(candidates ...func() string) string {
	for _, c := range candidates {
		if v := strings.TrimSpace(c()); v != "" {
			return v
		}
	}
	return ""
}
