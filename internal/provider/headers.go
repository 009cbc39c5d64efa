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

import (
	"regexp"
	"strings"
)

var (
	bracketAddrRe = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)
	bareAddrRe    = regexp.MustCompile(`[^\s<>"',;()]+@[^\s<>"',;()]+`)
)

// HeaderAddress returns the first address of a header in the mail parser's
// JSON shape. The value may be a raw string ("Name <a@b.c>" or "a@b.c") or
// an object of the form {"value": [{"address": "a@b.c", "name": "..."}]}.
// Lookup is case-insensitive on the key.
func HeaderAddress(headers map[string]any, key string) string {
	v, ok := lookupHeader(headers, key)
	if !ok {
		return ""
	}

	switch h := v.(type) {
	case string:
		return AddressOf(h)
	case []string:
		if len(h) > 0 {
			return AddressOf(h[0])
		}
	case map[string]any:
		if list, ok := h["value"].([]any); ok && len(list) > 0 {
			if first, ok := list[0].(map[string]any); ok {
				if addr, ok := first["address"].(string); ok && addr != "" {
					return strings.TrimSpace(addr)
				}
			}
		}
		if text, ok := h["text"].(string); ok {
			return AddressOf(text)
		}
	}
	return ""
}

func lookupHeader(headers map[string]any, key string) (any, bool) {
	if headers == nil {
		return nil, false
	}
	if v, ok := headers[key]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// AddressOf pulls the address out of a display-form string.
func AddressOf(s string) string {
	if m := bracketAddrRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return bareAddrRe.FindString(s)
}
