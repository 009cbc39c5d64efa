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

package extract

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[\d\s().\-]{7,}$`)
	digitRe = regexp.MustCompile(`\d`)
)

// Lines splits text into trimmed lines, dropping empty ones.
func Lines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// LinesAfter returns the non-empty lines following the first line that
// contains anchor (case-insensitive). It returns nil when the anchor is absent.
func LinesAfter(text, anchor string) []string {
	lines := Lines(text)
	anchor = strings.ToLower(anchor)
	for i, l := range lines {
		if strings.Contains(strings.ToLower(l), anchor) {
			return lines[i+1:]
		}
	}
	return nil
}

// LooksLikeEmail reports whether s is a single bare address.
func LooksLikeEmail(s string) bool {
	return emailRe.MatchString(strings.TrimSpace(s))
}

// LooksLikePhone reports whether s is a phone number with at least seven digits.
func LooksLikePhone(s string) bool {
	s = strings.TrimSpace(s)
	return phoneRe.MatchString(s) && len(digitRe.FindAllString(s, -1)) >= 7
}

// FirstTokens keeps the first n whitespace-delimited tokens of s.
func FirstTokens(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
