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

package loopguard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(g *Guard, gotBody *string) http.Handler {
	r := chi.NewRouter()
	r.Route("/public/parties/{partyID}", func(r chi.Router) {
		r.Use(Middleware(g))
		r.Get("/messages", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Post("/messages", func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			*gotBody = string(b)
			w.WriteHeader(http.StatusCreated)
		})
	})
	return r
}

func postMessage(h http.Handler, body, session string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/public/parties/p-1/messages", strings.NewReader(body))
	req.Header.Set(HeaderSessionID, session)
	req.Header.Set(HeaderDocumentVersion, "dv-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_LoopRejected(t *testing.T) {
	store := &memStore{}
	var gotBody string
	h := newTestRouter(New(store, Config{}), &gotBody)
	body := `{"text":"are you there?","source":"bot"}`

	for i := 0; i < 3; i++ {
		if rec := postMessage(h, body, "s-1"); rec.Code != http.StatusCreated {
			t.Fatalf("call %d: status = %d, want 201", i+1, rec.Code)
		}
	}
	if gotBody != body {
		t.Errorf("handler body = %q, want original body restored", gotBody)
	}

	rec := postMessage(h, body, "s-1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th call status = %d, want 429", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["code"] != "LOOP_DETECTED" {
		t.Errorf("code = %v, want LOOP_DETECTED", resp["code"])
	}

	// Key order does not change the checksum.
	reordered := `{"source":"bot","text":"are you there?"}`
	if rec := postMessage(h, reordered, "s-1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("reordered body status = %d, want 429", rec.Code)
	}

	if rec := postMessage(h, body, "s-2"); rec.Code != http.StatusCreated {
		t.Errorf("other session status = %d, want 201", rec.Code)
	}
}

func TestMiddleware_ValidationErrors(t *testing.T) {
	var gotBody string
	h := newTestRouter(New(&memStore{}, Config{}), &gotBody)

	tests := []struct {
		name    string
		body    string
		session string
	}{
		{"missing session header", `{"text":"hi"}`, ""},
		{"empty body", ``, "s-1"},
		{"array body", `["hi"]`, "s-1"},
		{"invalid json", `{"text":`, "s-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postMessage(h, tt.body, tt.session)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestMiddleware_SkipsReads(t *testing.T) {
	store := &memStore{}
	var gotBody string
	h := newTestRouter(New(store, Config{}), &gotBody)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/public/parties/p-1/messages", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET status = %d, want 200", rec.Code)
		}
	}
	if store.len() != 0 {
		t.Errorf("rows = %d, want 0 for read-only requests", store.len())
	}
}
