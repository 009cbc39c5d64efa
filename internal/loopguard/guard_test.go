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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leasehub/ingestion/internal/apperr"
	"github.com/leasehub/ingestion/internal/models"
)

// memStore serializes transactions with a mutex and buffers inserts until
// commit.
type memStore struct {
	mu      sync.Mutex
	rows    []models.RequestTrackingRecord
	countFn func() error
}

type memTx struct {
	s       *memStore
	pending []models.RequestTrackingRecord
}

func (s *memStore) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.rows = append(s.rows, tx.pending...)
	return nil
}

func (t *memTx) CountSince(_ context.Context, key Key, since time.Time) (int, error) {
	if t.s.countFn != nil {
		if err := t.s.countFn(); err != nil {
			return 0, err
		}
	}
	n := 0
	for _, r := range t.s.rows {
		if r.PartyID == key.PartyID && r.Checksum == key.Checksum &&
			r.URLPath == key.URLPath && r.SessionID == key.SessionID &&
			r.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) Insert(_ context.Context, r *models.RequestTrackingRecord) error {
	t.pending = append(t.pending, *r)
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func baseRequest() TrackRequest {
	return TrackRequest{
		PartyID:         "party-1",
		DocumentVersion: "v1",
		SessionID:       "session-1",
		URLPath:         "/public/parties/party-1/messages",
		Payload:         map[string]any{"text": "hello", "source": "chat"},
	}
}

func TestTrack_FourthIdenticalRejected(t *testing.T) {
	store := &memStore{}
	g := New(store, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec, err := g.Track(ctx, baseRequest())
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
		if rec.Checksum == "" || rec.Payload != `{"source":"chat","text":"hello"}` {
			t.Errorf("call %d: record = %+v", i+1, rec)
		}
	}

	_, err := g.Track(ctx, baseRequest())
	if !apperr.IsLoopDetected(err) {
		t.Fatalf("4th call err = %v, want LOOP_DETECTED", err)
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatal("error is not *apperr.Error")
	}
	if ae.Details["count"] != 3 {
		t.Errorf("details.count = %v, want 3", ae.Details["count"])
	}
	if ae.Details["checksum"] == "" {
		t.Error("details.checksum is empty")
	}
	if apperr.StatusOf(err) != 429 {
		t.Errorf("status = %d, want 429", apperr.StatusOf(err))
	}
	if store.len() != 3 {
		t.Errorf("rows = %d, want 3 (rejected call must not insert)", store.len())
	}
}

func TestTrack_DifferentTupleAllowed(t *testing.T) {
	g := New(&memStore{}, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := g.Track(ctx, baseRequest()); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}

	variants := map[string]func(r *TrackRequest){
		"session":  func(r *TrackRequest) { r.SessionID = "session-2" },
		"party":    func(r *TrackRequest) { r.PartyID = "party-2" },
		"url path": func(r *TrackRequest) { r.URLPath = "/public/parties/party-1/other" },
		"payload":  func(r *TrackRequest) { r.Payload = map[string]any{"text": "hello!"} },
	}
	for name, mutate := range variants {
		req := baseRequest()
		mutate(&req)
		if _, err := g.Track(ctx, req); err != nil {
			t.Errorf("%s changed: err = %v, want nil", name, err)
		}
	}

	// Document version is not part of the tuple.
	req := baseRequest()
	req.DocumentVersion = "v2"
	if _, err := g.Track(ctx, req); !apperr.IsLoopDetected(err) {
		t.Errorf("document version changed: err = %v, want LOOP_DETECTED", err)
	}
}

func TestTrack_WindowExpiry(t *testing.T) {
	g := New(&memStore{}, Config{Window: time.Minute, Limit: 2})
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := g.Track(ctx, baseRequest()); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if _, err := g.Track(ctx, baseRequest()); !apperr.IsLoopDetected(err) {
		t.Fatalf("3rd call err = %v, want LOOP_DETECTED with limit 2", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := g.Track(ctx, baseRequest()); err != nil {
		t.Errorf("after window: err = %v, want nil", err)
	}
}

func TestTrack_ConcurrentIdenticalRequests(t *testing.T) {
	store := &memStore{}
	g := New(store, Config{})
	ctx := context.Background()

	const callers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Track(ctx, baseRequest())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case apperr.IsLoopDetected(err):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != DefaultLimit || rejected != callers-DefaultLimit {
		t.Errorf("accepted=%d rejected=%d, want %d and %d", accepted, rejected, DefaultLimit, callers-DefaultLimit)
	}
	if store.len() != DefaultLimit {
		t.Errorf("rows = %d, want %d", store.len(), DefaultLimit)
	}
}

func TestTrack_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *TrackRequest)
		token  string
	}{
		{"missing session", func(r *TrackRequest) { r.SessionID = "" }, TokenMissingSessionID},
		{"blank session", func(r *TrackRequest) { r.SessionID = "  " }, TokenMissingSessionID},
		{"missing party", func(r *TrackRequest) { r.PartyID = "" }, TokenMissingPartyID},
		{"missing document version", func(r *TrackRequest) { r.DocumentVersion = "" }, TokenMissingDocumentVersion},
		{"missing url path", func(r *TrackRequest) { r.URLPath = "" }, TokenMissingURLPath},
		{"missing payload", func(r *TrackRequest) { r.Payload = nil }, TokenMissingPayload},
		{"array payload", func(r *TrackRequest) { r.Payload = []any{"a"} }, TokenInvalidPayload},
		{"string payload", func(r *TrackRequest) { r.Payload = "text" }, TokenInvalidPayload},
		{"unserializable payload", func(r *TrackRequest) { r.Payload = map[string]any{"c": make(chan int)} }, TokenInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{countFn: func() error {
				t.Error("store touched before validation passed")
				return nil
			}}
			req := baseRequest()
			tt.mutate(&req)

			_, err := New(store, Config{}).Track(context.Background(), req)
			var ae *apperr.Error
			if !errors.As(err, &ae) {
				t.Fatalf("err = %v, want *apperr.Error", err)
			}
			if ae.Details["token"] != tt.token {
				t.Errorf("token = %v, want %q", ae.Details["token"], tt.token)
			}
			if apperr.StatusOf(err) != 400 {
				t.Errorf("status = %d, want 400", apperr.StatusOf(err))
			}
		})
	}
}

func TestTrack_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	store := &memStore{countFn: func() error { return boom }}

	_, err := New(store, Config{}).Track(context.Background(), baseRequest())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
