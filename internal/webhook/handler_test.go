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

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leasehub/ingestion/internal/apperr"
	"github.com/leasehub/ingestion/internal/config"
	"github.com/leasehub/ingestion/internal/ingest"
	"github.com/leasehub/ingestion/internal/loopguard"
	"github.com/leasehub/ingestion/internal/models"
)

// --- Mocks ---

type mockPublisher struct {
	mu   sync.Mutex
	jobs []*models.Job
	err  error
}

func (m *mockPublisher) PublishJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	job.ID = "job-1"
	m.jobs = append(m.jobs, job)
	return nil
}

type mockDedup struct {
	mu        sync.Mutex
	seen      map[string]bool
	forgotten []string
}

func (m *mockDedup) IsNew(_ context.Context, tenantID string, channel models.MessageType, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	key := tenantID + ":" + string(channel) + ":" + messageID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockDedup) Forget(_ context.Context, tenantID string, channel models.MessageType, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + ":" + string(channel) + ":" + messageID
	delete(m.seen, key)
	m.forgotten = append(m.forgotten, messageID)
	return nil
}

type mockIngester struct {
	mu   sync.Mutex
	reqs []ingest.Request
	err  error
}

func (m *mockIngester) Ingest(_ context.Context, req ingest.Request) (*ingest.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return &ingest.Result{
		Communication: &models.Communication{ID: "comm-1", Parties: []string{req.PartyID}},
		PartyID:       req.PartyID,
	}, nil
}

// guardStore is an in-memory loop guard store.
type guardStore struct {
	mu   sync.Mutex
	rows []models.RequestTrackingRecord
}

type guardTx struct {
	s       *guardStore
	pending []models.RequestTrackingRecord
}

func (s *guardStore) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx loopguard.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &guardTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.rows = append(s.rows, tx.pending...)
	return nil
}

func (t *guardTx) CountSince(_ context.Context, key loopguard.Key, since time.Time) (int, error) {
	n := 0
	for _, r := range t.s.rows {
		if r.PartyID == key.PartyID && r.Checksum == key.Checksum &&
			r.URLPath == key.URLPath && r.SessionID == key.SessionID &&
			!r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *guardTx) Insert(_ context.Context, r *models.RequestTrackingRecord) error {
	t.pending = append(t.pending, *r)
	return nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// --- Helpers ---

type harness struct {
	pub    *mockPublisher
	dedup  *mockDedup
	ing    *mockIngester
	server *httptest.Server
}

func newHarness(t *testing.T, health map[string]Pinger) *harness {
	t.Helper()
	h := &harness{
		pub:   &mockPublisher{},
		dedup: &mockDedup{},
		ing:   &mockIngester{},
	}
	handler := NewHandler(HandlerConfig{
		Tenants:   []config.TenantConfig{{ID: "t1", Alias: "acme"}},
		Publisher: h.pub,
		Dedup:     h.dedup,
		Ingester:  h.ing,
		Guard:     loopguard.New(&guardStore{}, loopguard.Config{Window: time.Minute, Limit: 2}),
		Health:    health,
	})
	h.server = httptest.NewServer(handler.Routes())
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) post(t *testing.T, path, contentType, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const rawEmail = "From: Jane <jane@gmail.com>\r\n" +
	"To: leasing@acme.leasehub.io\r\n" +
	"Subject: Tour\r\n" +
	"Message-Id: <m1@gmail.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Can I tour Saturday?\r\n"

// --- Tests ---

func TestServeEmail_QueuesAndDeduplicates(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.post(t, "/inbound/t1/email", "message/rfc822", rawEmail, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["jobId"] != "job-1" {
		t.Errorf("body = %v", body)
	}

	resp = h.post(t, "/inbound/t1/email", "message/rfc822", rawEmail, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("duplicate status = %d, want 202", resp.StatusCode)
	}

	if len(h.pub.jobs) != 1 {
		t.Fatalf("published %d jobs, want 1", len(h.pub.jobs))
	}
	job := h.pub.jobs[0]
	if job.Channel != models.MessageTypeEmail || job.TenantID != "t1" || string(job.Payload) != rawEmail {
		t.Errorf("job = %+v", job)
	}
}

func TestServeEmail_JSON(t *testing.T) {
	h := newHarness(t, nil)
	payload := `{"messageId":"<a@b.com>","subject":"Hi","text":"Hello","from_email":"jane@gmail.com","emails":["leasing@acme.leasehub.io"]}`

	resp := h.post(t, "/inbound/t1/email", "application/json", payload, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(h.pub.jobs) != 1 {
		t.Fatalf("published %d jobs, want 1", len(h.pub.jobs))
	}
}

func TestServeEmail_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"unknown tenant", "/inbound/nope/email", "message/rfc822", rawEmail, http.StatusNotFound},
		{"empty body", "/inbound/t1/email", "message/rfc822", "  ", http.StatusBadRequest},
		{"bad json", "/inbound/t1/email", "application/json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			resp := h.post(t, tt.path, tt.contentType, tt.body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if len(h.pub.jobs) != 0 {
				t.Errorf("published %d jobs, want 0", len(h.pub.jobs))
			}
		})
	}
}

func TestServeSMS_FormIsConvertedToJSON(t *testing.T) {
	h := newHarness(t, nil)
	form := url.Values{
		"MessageUUID": {"sms-1"},
		"From":        {"14155550100"},
		"To":          {"14155550000"},
		"Type":        {"mms"},
		"Body":        {"pic"},
		"MediaUrl0":   {"https://media.example/1.png"},
	}

	resp := h.post(t, "/inbound/t1/sms", "application/x-www-form-urlencoded", form.Encode(), nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(h.pub.jobs) != 1 {
		t.Fatalf("published %d jobs, want 1", len(h.pub.jobs))
	}

	var fields map[string]string
	if err := json.Unmarshal(h.pub.jobs[0].Payload, &fields); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if fields["MediaUrl0"] != "https://media.example/1.png" || fields["MessageUUID"] != "sms-1" {
		t.Errorf("fields = %v", fields)
	}
}

func TestServeSMS_MissingFrom(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.post(t, "/inbound/t1/sms", "application/json", `{"MessageUUID":"sms-1","Text":"hi"}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServeCall_RedialsAreNotDeduplicated(t *testing.T) {
	h := newHarness(t, nil)

	first := `{"CallUUID":"call-1","From":"14155550100","To":"14155550000"}`
	redial := `{"CallUUID":"call-1","From":"14155550100","To":"14155550000","redialAttemptNo":1}`

	for _, body := range []string{first, redial, first} {
		resp := h.post(t, "/inbound/t1/call", "application/json", body, nil)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", resp.StatusCode)
		}
	}
	if len(h.pub.jobs) != 2 {
		t.Errorf("published %d jobs, want 2", len(h.pub.jobs))
	}
}

func TestEnqueue_PublishFailureForgetsMessage(t *testing.T) {
	h := newHarness(t, nil)
	h.pub.err = errors.New("redis down")

	resp := h.post(t, "/inbound/t1/call", "application/json", `{"CallUUID":"call-9","From":"14155550100"}`, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if len(h.dedup.forgotten) != 1 || h.dedup.forgotten[0] != "call-9" {
		t.Errorf("forgotten = %v", h.dedup.forgotten)
	}

	// The retry must go through once the queue recovers.
	h.pub.err = nil
	resp = h.post(t, "/inbound/t1/call", "application/json", `{"CallUUID":"call-9","From":"14155550100"}`, nil)
	if resp.StatusCode != http.StatusAccepted || len(h.pub.jobs) != 1 {
		t.Errorf("status = %d, jobs = %d", resp.StatusCode, len(h.pub.jobs))
	}
}

func webHeaders(session string) map[string]string {
	return map[string]string{
		HeaderTenantID:                  "t1",
		loopguard.HeaderSessionID:       session,
		loopguard.HeaderDocumentVersion: "v1",
	}
}

func TestServeWebMessage(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.post(t, "/public/parties/p9/messages", "application/json",
		`{"source":"chatbot","text":"hello"}`, webHeaders("s1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var comm models.Communication
	if err := json.NewDecoder(resp.Body).Decode(&comm); err != nil {
		t.Fatal(err)
	}
	if comm.ID != "comm-1" {
		t.Errorf("communication = %+v", comm)
	}

	if len(h.ing.reqs) != 1 {
		t.Fatalf("ingested %d, want 1", len(h.ing.reqs))
	}
	req := h.ing.reqs[0]
	if req.Channel != models.MessageTypeWeb || req.PartyID != "p9" || req.TenantID != "t1" || req.Web.Text != "hello" {
		t.Errorf("request = %+v", req)
	}
}

func TestServeWebMessage_LoopDetected(t *testing.T) {
	h := newHarness(t, nil)
	body := `{"source":"chatbot","text":"are you there?"}`

	for i := 0; i < 2; i++ {
		resp := h.post(t, "/public/parties/p9/messages", "application/json", body, webHeaders("s1"))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want 201", i, resp.StatusCode)
		}
	}

	resp := h.post(t, "/public/parties/p9/messages", "application/json", body, webHeaders("s1"))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if len(h.ing.reqs) != 2 {
		t.Errorf("ingested %d, want 2", len(h.ing.reqs))
	}

	// A different session is a different conversation.
	resp = h.post(t, "/public/parties/p9/messages", "application/json", body, webHeaders("s2"))
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("other session status = %d, want 201", resp.StatusCode)
	}
}

func TestServeWebMessage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		body       string
		ingestErr  error
		wantStatus int
	}{
		{"missing tenant", map[string]string{loopguard.HeaderSessionID: "s1", loopguard.HeaderDocumentVersion: "v1"}, `{"text":"hi"}`, nil, http.StatusBadRequest},
		{"unknown tenant", map[string]string{HeaderTenantID: "nope", loopguard.HeaderSessionID: "s1", loopguard.HeaderDocumentVersion: "v1"}, `{"text":"hi"}`, nil, http.StatusNotFound},
		{"missing session", map[string]string{HeaderTenantID: "t1", loopguard.HeaderDocumentVersion: "v1"}, `{"text":"hi"}`, nil, http.StatusBadRequest},
		{"empty text", webHeaders("s1"), `{"text":"  "}`, nil, http.StatusBadRequest},
		{"ingest rejects", webHeaders("s1"), `{"text":"hi"}`, apperr.NoRetry("party not found"), http.StatusUnprocessableEntity},
		{"ingest fails", webHeaders("s1"), `{"text":"hi"}`, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.ing.err = tt.ingestErr
			resp := h.post(t, "/public/parties/p9/messages", "application/json", tt.body, tt.headers)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestServeHealth(t *testing.T) {
	tests := []struct {
		name       string
		health     map[string]Pinger
		wantStatus int
	}{
		{"no dependencies", nil, http.StatusOK},
		{"all healthy", map[string]Pinger{"postgres": pinger{}, "redis": pinger{}}, http.StatusOK},
		{"redis down", map[string]Pinger{"postgres": pinger{}, "redis": pinger{err: errors.New("refused")}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.health)
			resp, err := http.Get(h.server.URL + "/health")
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestServe_SignalsReadyAndShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ready, err := Serve(ctx, 0, http.NotFoundHandler())
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never became ready")
	}
	cancel()
}
