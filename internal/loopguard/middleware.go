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
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leasehub/ingestion/internal/apperr"
)

// Request headers read by the middleware.
const (
	HeaderSessionID       = "X-Session-Id"
	HeaderDocumentVersion = "X-Document-Version"
)

// maxBodyBytes caps the payload read for checksumming.
const maxBodyBytes = 1 << 20

// Middleware tracks every mutating request routed under a {partyID}
// parameter. Loops get 429, invalid input 400. The body is restored for the
// next handler.
func Middleware(g *Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				slog.Error("failed to read request body", "error", err)
				writeError(w, apperr.ValidationFailed(TokenInvalidPayload, "unreadable body"))
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			var payload any
			if len(bytes.TrimSpace(body)) > 0 {
				if err := json.Unmarshal(body, &payload); err != nil {
					writeError(w, apperr.ValidationFailed(TokenInvalidPayload, "body is not valid JSON"))
					return
				}
			}

			_, err = g.Track(r.Context(), TrackRequest{
				PartyID:         chi.URLParam(r, "partyID"),
				DocumentVersion: r.Header.Get(HeaderDocumentVersion),
				SessionID:       r.Header.Get(HeaderSessionID),
				URLPath:         r.URL.Path,
				Payload:         payload,
			})
			if err != nil {
				writeError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		slog.Error("request tracking failed", "error", err)
	}
	apperr.Write(w, err)
}
