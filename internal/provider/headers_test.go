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

package provider

import "testing"

func TestHeaderAddress(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]any
		key     string
		want    string
	}{
		{"nil headers", nil, "reply-to", ""},
		{"missing key", map[string]any{"from": "a@b.com"}, "reply-to", ""},
		{"bare string", map[string]any{"reply-to": "a@b.com"}, "reply-to", "a@b.com"},
		{"display string", map[string]any{"reply-to": `"Ann Bee" <ann@bee.com>`}, "reply-to", "ann@bee.com"},
		{"case-insensitive key", map[string]any{"Reply-To": "ann@bee.com"}, "reply-to", "ann@bee.com"},
		{"string slice", map[string]any{"reply-to": []string{"x@y.com", "z@y.com"}}, "reply-to", "x@y.com"},
		{
			"object value",
			map[string]any{"reply-to": map[string]any{
				"value": []any{map[string]any{"address": "lsj9148@gmail.com", "name": "Linda Johnson"}},
			}},
			"reply-to", "lsj9148@gmail.com",
		},
		{
			"object text fallback",
			map[string]any{"reply-to": map[string]any{"text": "Linda Johnson <lsj9148@gmail.com>"}},
			"reply-to", "lsj9148@gmail.com",
		},
		{"unsupported type", map[string]any{"reply-to": 42}, "reply-to", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HeaderAddress(tt.headers, tt.key); got != tt.want {
				t.Errorf("HeaderAddress = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddressOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a@b.com", "a@b.com"},
		{"Ann <ann@bee.com>", "ann@bee.com"},
		{`"Bee, Ann" <ann@bee.com>`, "ann@bee.com"},
		{"no address here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := AddressOf(tt.in); got != tt.want {
			t.Errorf("AddressOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
