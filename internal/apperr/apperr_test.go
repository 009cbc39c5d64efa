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

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("track request: %w", LoopDetected(3, "abc"))

	if got := CodeOf(err); got != CodeLoopDetected {
		t.Errorf("CodeOf = %q, want %q", got, CodeLoopDetected)
	}
	if got := StatusOf(err); got != http.StatusTooManyRequests {
		t.Errorf("StatusOf = %d, want %d", got, http.StatusTooManyRequests)
	}
	if !IsLoopDetected(err) {
		t.Error("IsLoopDetected = false, want true")
	}
}

func TestStatusOf_PlainError(t *testing.T) {
	if got := StatusOf(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("StatusOf = %d, want 500", got)
	}
	if got := CodeOf(errors.New("boom")); got != "" {
		t.Errorf("CodeOf = %q, want empty", got)
	}
}

func TestIsNoRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no retry", NoRetry("bad tenant"), true},
		{"missing field", MissingField("MISSING_PARTY_ID", "party id is required"), true},
		{"validation", ValidationFailed("INVALID_PAYLOAD", "payload must be an object"), true},
		{"loop", LoopDetected(3, "x"), false},
		{"plain", errors.New("db down"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNoRetry(tt.err); got != tt.want {
				t.Errorf("IsNoRetry = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_MessageAndDetails(t *testing.T) {
	e := LoopDetected(4, "deadbeef").WithDetail("payload", "{}")

	if e.Details["count"] != 4 {
		t.Errorf("count = %v, want 4", e.Details["count"])
	}
	if e.Details["payload"] != "{}" {
		t.Errorf("payload = %v, want {}", e.Details["payload"])
	}
	if e.Error() != "[LOOP_DETECTED] request loop detected" {
		t.Errorf("Error() = %q", e.Error())
	}
}
