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

// Package webhook is the HTTP ingress. Mail gateway and telephony
// callbacks are deduplicated and queued for the workers. Public API
// messages pass the loop guard and are ingested synchronously.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leasehub/ingestion/internal/apperr"
	"github.com/leasehub/ingestion/internal/config"
	"github.com/leasehub/ingestion/internal/ingest"
	"github.com/leasehub/ingestion/internal/loopguard"
	"github.com/leasehub/ingestion/internal/mailparse"
	"github.com/leasehub/ingestion/internal/models"
)

// HeaderTenantID names the tenant on public API requests.
const HeaderTenantID = "X-Tenant-Id"

// maxBodyBytes caps inbound payloads. Raw MIME with attachments is the
// largest thing we accept.
const maxBodyBytes = 32 << 20

// JobPublisher enqueues inbound jobs.
type JobPublisher interface {
	PublishJob(ctx context.Context, job *models.Job) error
}

// Deduper remembers which message ids were already accepted.
type Deduper interface {
	IsNew(ctx context.Context, tenantID string, channel models.MessageType, messageID string) (bool, error)
	Forget(ctx context.Context, tenantID string, channel models.MessageType, messageID string) error
}

// Ingester processes a request synchronously.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig holds the dependencies for creating a Handler.
type HandlerConfig struct {
	Tenants   []config.TenantConfig
	Publisher JobPublisher
	Dedup     Deduper
	Ingester  Ingester
	Guard     *loopguard.Guard
	Health    map[string]Pinger
}

// Handler serves the inbound and public endpoints.
type Handler struct {
	tenants   map[string]config.TenantConfig
	publisher JobPublisher
	dedup     Deduper
	ingester  Ingester
	guard     *loopguard.Guard
	health    map[string]Pinger
}

// NewHandler creates the HTTP handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		tenants:   make(map[string]config.TenantConfig, len(cfg.Tenants)),
		publisher: cfg.Publisher,
		dedup:     cfg.Dedup,
		ingester:  cfg.Ingester,
		guard:     cfg.Guard,
		health:    cfg.Health,
	}
	for _, t := range cfg.Tenants {
		h.tenants[t.ID] = t
	}
	return h
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.ServeHealth)

	r.Route("/inbound/{tenantID}", func(r chi.Router) {
		r.Post("/email", h.ServeEmail)
		r.Post("/sms", h.ServeSMS)
		r.Post("/call", h.ServeCall)
	})

	r.Route("/public/parties/{partyID}", func(r chi.Router) {
		r.Use(loopguard.Middleware(h.guard))
		r.Post("/messages", h.ServeWebMessage)
	})

	return r
}

// ServeEmail accepts an email from the mail gateway, either as the
// gateway's JSON form or as raw RFC 822 (message/rfc822).
func (h *Handler) ServeEmail(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var (
		msg *models.InboundMessage
		err error
	)
	if isJSON(r) {
		msg, err = mailparse.FromJSON(body)
	} else {
		msg, err = mailparse.ParseMIME(bytes.NewReader(body))
	}
	if err != nil {
		slog.Warn("rejecting unparseable email", "tenant", tenant.Alias, "error", err)
		apperr.Write(w, apperr.ValidationFailed("INVALID_PAYLOAD", "email could not be parsed"))
		return
	}

	h.enqueue(w, r, tenant, models.MessageTypeEmail, msg.MessageID, body)
}

// ServeSMS accepts an SMS/MMS callback. Form posts are converted to JSON so
// every MediaUrl<n> field survives.
func (h *Handler) ServeSMS(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var payload []byte
	if isJSON(r) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		payload = body
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			apperr.Write(w, apperr.ValidationFailed("INVALID_PAYLOAD", "form could not be parsed"))
			return
		}
		fields := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
		payload, _ = json.Marshal(fields)
	}

	var sms models.SMSMessage
	if err := json.Unmarshal(payload, &sms); err != nil {
		apperr.Write(w, apperr.ValidationFailed("INVALID_PAYLOAD", "sms is not valid JSON"))
		return
	}
	if sms.From == "" {
		apperr.Write(w, apperr.MissingField("MISSING_FROM", "From is required"))
		return
	}

	h.enqueue(w, r, tenant, models.MessageTypeSMS, sms.MessageUUID, payload)
}

// ServeCall accepts a call event.
func (h *Handler) ServeCall(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var call models.CallMessage
	if err := json.Unmarshal(body, &call); err != nil {
		apperr.Write(w, apperr.ValidationFailed("INVALID_PAYLOAD", "call is not valid JSON"))
		return
	}
	if call.From == "" {
		apperr.Write(w, apperr.MissingField("MISSING_FROM", "From is required"))
		return
	}

	// Redials reuse the call id, so they must not be deduplicated away.
	id := call.CallUUID
	if call.RedialAttemptNo > 0 {
		id = fmt.Sprintf("%s#%d", id, call.RedialAttemptNo)
	}
	h.enqueue(w, r, tenant, models.MessageTypeCall, id, body)
}

// ServeWebMessage ingests a message posted to a party through the public
// API. The loop guard has already accepted the request.
func (h *Handler) ServeWebMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get(HeaderTenantID)
	if tenantID == "" {
		apperr.Write(w, apperr.MissingField("MISSING_TENANT_ID", HeaderTenantID+" header is required"))
		return
	}
	if _, ok := h.tenants[tenantID]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tenant"})
		return
	}

	var web models.WebMessage
	if err := json.NewDecoder(r.Body).Decode(&web); err != nil {
		apperr.Write(w, apperr.ValidationFailed("INVALID_PAYLOAD", "message is not valid JSON"))
		return
	}
	if strings.TrimSpace(web.Text) == "" {
		apperr.Write(w, apperr.MissingField("MISSING_TEXT", "text is required"))
		return
	}

	res, err := h.ingester.Ingest(r.Context(), ingest.Request{
		TenantID: tenantID,
		Channel:  models.MessageTypeWeb,
		Web:      &web,
		PartyID:  chi.URLParam(r, "partyID"),
	})
	if err != nil {
		slog.Error("web message ingestion failed", "party_id", chi.URLParam(r, "partyID"), "error", err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.Communication)
}

// ServeHealth pings every dependency.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, p := range h.health {
		if err := p.Ping(ctx); err != nil {
			slog.Warn("health check failed", "dependency", name, "error", err)
			http.Error(w, name+" unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// enqueue deduplicates and queues an inbound payload, answering 202. A
// duplicate is acknowledged without queueing.
func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, tenant config.TenantConfig, channel models.MessageType, messageID string, payload []byte) {
	ctx := r.Context()

	isNew, err := h.dedup.IsNew(ctx, tenant.ID, channel, messageID)
	if err != nil {
		slog.Warn("dedup check failed, proceeding", "error", err)
		isNew = true
	}
	if !isNew {
		slog.Debug("skipping duplicate message", "tenant", tenant.Alias, "message_id", messageID)
		writeJSON(w, http.StatusAccepted, map[string]any{"duplicate": true})
		return
	}

	job := &models.Job{
		Channel:  channel,
		TenantID: tenant.ID,
		Payload:  payload,
	}
	if err := h.publisher.PublishJob(ctx, job); err != nil {
		slog.Error("publish failed",
			"tenant", tenant.Alias,
			"channel", string(channel),
			"message_id", messageID,
			"error", err,
		)
		if err := h.dedup.Forget(ctx, tenant.ID, channel, messageID); err != nil {
			slog.Warn("dedup forget failed", "message_id", messageID, "error", err)
		}
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	slog.Info("inbound message queued",
		"tenant", tenant.Alias,
		"channel", string(channel),
		"message_id", messageID,
		"job_id", job.ID,
	)
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": job.ID})
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (config.TenantConfig, bool) {
	t, ok := h.tenants[chi.URLParam(r, "tenantID")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tenant"})
	}
	return t, ok
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("failed to read request body", "error", err)
		http.Error(w, "request body too large or unreadable", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		apperr.Write(w, apperr.MissingField("MISSING_PAYLOAD", "request body is empty"))
		return nil, false
	}
	return body, true
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve starts the HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("http server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return ready, nil
}
