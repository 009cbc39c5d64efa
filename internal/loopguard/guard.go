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

// Package loopguard bounds how many times an identical public API request
// may be processed within a time window. Each mutating request is tracked by
// the checksum of its payload; the count-then-insert runs in one
// serializable transaction so concurrent duplicates cannot both slip in.
package loopguard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leasehub/ingestion/internal/apperr"
	"github.com/leasehub/ingestion/internal/hashutil"
	"github.com/leasehub/ingestion/internal/models"
)

const (
	// DefaultWindow is how far back identical requests are counted.
	DefaultWindow = 15 * time.Minute

	// DefaultLimit is how many identical requests are allowed per window.
	DefaultLimit = 3
)

// Validation tokens.
const (
	TokenMissingSessionID       = "MISSING_SESSION_ID"
	TokenMissingPartyID         = "MISSING_PARTY_ID"
	TokenMissingDocumentVersion = "MISSING_DOCUMENT_VERSION"
	TokenMissingURLPath         = "MISSING_URL_PATH"
	TokenMissingPayload         = "MISSING_PAYLOAD"
	TokenInvalidPayload         = "INVALID_PAYLOAD"
)

// Key identifies a logically identical request.
type Key struct {
	PartyID   string
	Checksum  string
	URLPath   string
	SessionID string
}

// Tx is the view of the tracking table inside one transaction.
type Tx interface {
	CountSince(ctx context.Context, key Key, since time.Time) (int, error)
	Insert(ctx context.Context, rec *models.RequestTrackingRecord) error
}

// Store runs fn inside a serializable transaction, committing when fn
// returns nil and rolling back otherwise.
type Store interface {
	WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Config holds the window and limit.
type Config struct {
	Window time.Duration
	Limit  int
}

// TrackRequest is one mutating public API request.
type TrackRequest struct {
	PartyID         string
	DocumentVersion string
	SessionID       string
	URLPath         string
	Payload         any
}

// Guard tracks requests and rejects loops.
type Guard struct {
	store  Store
	window time.Duration
	limit  int
	now    func() time.Time
}

// New creates a guard. Zero config values take the defaults.
func New(store Store, cfg Config) *Guard {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Guard{
		store:  store,
		window: cfg.Window,
		limit:  cfg.Limit,
		now:    time.Now,
	}
}

// Track records req, or rejects it with a LOOP_DETECTED error when the
// same tuple was already seen limit times within the window. Validation
// happens before the transaction opens.
func (g *Guard) Track(ctx context.Context, req TrackRequest) (*models.RequestTrackingRecord, error) {
	payload, err := validate(req)
	if err != nil {
		return nil, err
	}

	key := Key{
		PartyID:   req.PartyID,
		Checksum:  hashutil.StringHash(payload),
		URLPath:   req.URLPath,
		SessionID: req.SessionID,
	}

	var rec *models.RequestTrackingRecord
	err = g.store.WithSerializableTx(ctx, func(ctx context.Context, tx Tx) error {
		now := g.now().UTC()

		count, err := tx.CountSince(ctx, key, now.Add(-g.window))
		if err != nil {
			return fmt.Errorf("count tracked requests: %w", err)
		}
		if count >= g.limit {
			slog.ErrorContext(ctx, "request loop detected",
				"party_id", key.PartyID,
				"session_id", key.SessionID,
				"url_path", key.URLPath,
				"document_version", req.DocumentVersion,
				"checksum", key.Checksum,
				"count", count,
				"payload", payload,
			)
			return apperr.LoopDetected(count, key.Checksum).
				WithDetail("payload", payload).
				WithDetail("partyId", key.PartyID)
		}

		r := &models.RequestTrackingRecord{
			ID:              uuid.NewString(),
			PartyID:         key.PartyID,
			DocumentVersion: req.DocumentVersion,
			SessionID:       key.SessionID,
			Payload:         payload,
			Checksum:        key.Checksum,
			URLPath:         key.URLPath,
			CreatedAt:       now,
		}
		if err := tx.Insert(ctx, r); err != nil {
			return fmt.Errorf("insert tracked request: %w", err)
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// validate checks the required fields and returns the serialized payload.
func validate(req TrackRequest) (string, error) {
	switch {
	case strings.TrimSpace(req.SessionID) == "":
		return "", apperr.MissingField(TokenMissingSessionID, "session id is required")
	case strings.TrimSpace(req.PartyID) == "":
		return "", apperr.MissingField(TokenMissingPartyID, "party id is required")
	case strings.TrimSpace(req.DocumentVersion) == "":
		return "", apperr.MissingField(TokenMissingDocumentVersion, "document version is required")
	case strings.TrimSpace(req.URLPath) == "":
		return "", apperr.MissingField(TokenMissingURLPath, "url path is required")
	case req.Payload == nil:
		return "", apperr.MissingField(TokenMissingPayload, "payload is required")
	}

	payload, err := hashutil.Serialize(req.Payload)
	if err != nil {
		e := apperr.ValidationFailed(TokenInvalidPayload, "payload is not serializable")
		e.Err = err
		return "", e
	}
	if !strings.HasPrefix(payload, "{") {
		return "", apperr.ValidationFailed(TokenInvalidPayload, "payload must be an object")
	}
	return payload, nil
}
