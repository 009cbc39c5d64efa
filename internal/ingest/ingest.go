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

// Package ingest turns one inbound email, SMS, call or web message into
// exactly one persisted communication.
//
// Each message runs through the same stages: gate (own domain, blocklist,
// ILS classification), resolve the lead, persist the communication and
// record party events inside one transaction, then notify.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leasehub/ingestion/internal/apperr"
	"github.com/leasehub/ingestion/internal/config"
	"github.com/leasehub/ingestion/internal/models"
	"github.com/leasehub/ingestion/internal/provider"
	"github.com/leasehub/ingestion/internal/store"
)

// DefaultDuplicateWindow is how recent an existing communication with the
// same message id must be for a redelivery to count as already processed.
const DefaultDuplicateWindow = 10 * time.Minute

// notificationEvent is the event name broadcast to clients after a
// communication is saved.
const notificationEvent = "communicationUpdate"

// LeadResolver creates or finds the lead behind a contact.
type LeadResolver interface {
	CreateOrResolveLead(ctx context.Context, person models.PersonData, lctx models.LeadContext) (*models.LeadResult, error)
	GetParty(ctx context.Context, partyID string) (*models.LeadResult, error)
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error
}

// Notifier broadcasts saved communications to downstream consumers.
type Notifier interface {
	PublishEvent(ctx context.Context, n models.Notification) error
}

// Attachments normalizes inline images and stores files.
type Attachments interface {
	ProcessInlineImages(ctx context.Context, messageID, html string, attachments []models.Attachment) (string, []models.Attachment)
	ValidateAndStore(ctx context.Context, tenantID string, attachments []models.Attachment) ([]models.StoredFile, error)
}

// Classifier selects the ILS provider for an email.
type Classifier interface {
	SelectProvider(msg *models.InboundMessage) provider.Provider
	IsOnILSDomain(msg *models.InboundMessage) bool
}

// Config controls gating and duplicate handling.
type Config struct {
	Tenants              []config.TenantConfig
	Blocklist            []string
	AnonymousILSPatterns []string
	DuplicateWindow      time.Duration
}

// Deps are the collaborators an Orchestrator calls.
type Deps struct {
	Tx          TxRunner
	Leads       LeadResolver
	Attachments Attachments
	Notifier    Notifier
	Classifier  Classifier
}

// Request is one inbound event. Exactly one of Email, SMS, Call or Web is
// set, matching Channel.
type Request struct {
	TenantID string
	Channel  models.MessageType

	Email *models.InboundMessage
	SMS   *models.SMSMessage
	Call  *models.CallMessage
	Web   *models.WebMessage

	// PartyID scopes a web message.
	PartyID string
}

// Result describes what Ingest did with a request.
type Result struct {
	Communication *models.Communication
	PartyID       string
	PersonID      string
	IsLeadCreated bool
	IsSpam        bool
	Duplicate     bool
}

// Orchestrator dispatches inbound events to their channel handler.
type Orchestrator struct {
	deps            Deps
	tenants         map[string]config.TenantConfig
	blocklist       []string
	anonymous       []*regexp.Regexp
	duplicateWindow time.Duration
	now             func() time.Time
}

// New creates an orchestrator. Anonymous ILS patterns are compiled
// case-insensitively.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Tx == nil || deps.Leads == nil || deps.Attachments == nil || deps.Classifier == nil {
		return nil, errors.New("ingest: transaction runner, lead resolver, attachments and classifier are required")
	}

	o := &Orchestrator{
		deps:            deps,
		tenants:         make(map[string]config.TenantConfig, len(cfg.Tenants)),
		duplicateWindow: cfg.DuplicateWindow,
		now:             time.Now,
	}
	if o.duplicateWindow <= 0 {
		o.duplicateWindow = DefaultDuplicateWindow
	}
	for _, t := range cfg.Tenants {
		o.tenants[t.ID] = t
	}
	for _, b := range cfg.Blocklist {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			o.blocklist = append(o.blocklist, b)
		}
	}
	for _, p := range cfg.AnonymousILSPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile anonymous ILS pattern %q: %w", p, err)
		}
		o.anonymous = append(o.anonymous, re)
	}
	return o, nil
}

// Ingest processes one inbound event.
//
// Non-retryable failures (unknown tenant, own-domain sender, unparseable
// ILS email) are returned as apperr NoRetry errors. Spam is saved and
// reported with IsSpam.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (*Result, error) {
	tenant, ok := o.tenants[req.TenantID]
	if !ok {
		return nil, apperr.NoRetry(fmt.Sprintf("unknown tenant %q", req.TenantID))
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	sender := senderOf(req)
	if req.Channel == models.MessageTypeEmail && tenant.EmailDomain != "" && onDomain(sender, tenant.EmailDomain) {
		return nil, apperr.NoRetry(fmt.Sprintf("message received from within tenant domain: %s", sender))
	}

	if o.isBlocked(sender) {
		return o.saveSpam(ctx, req, sender)
	}

	var cls classification
	if req.Channel == models.MessageTypeEmail {
		var err error
		if cls, err = o.classify(ctx, req.Email); err != nil {
			return nil, err
		}
	}

	var res *Result
	err := o.deps.Tx.InTx(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		switch req.Channel {
		case models.MessageTypeEmail:
			res, err = o.processEmail(ctx, repo, tenant, req.Email, cls)
		case models.MessageTypeSMS:
			res, err = o.processSMS(ctx, repo, tenant, req.SMS)
		case models.MessageTypeCall:
			res, err = o.processCall(ctx, repo, tenant, req.Call)
		case models.MessageTypeWeb:
			res, err = o.processWeb(ctx, repo, tenant, req.PartyID, req.Web)
		default:
			err = apperr.NoRetry(fmt.Sprintf("channel %q is not supported", req.Channel))
		}
		if err != nil {
			return err
		}

		comm := res.Communication
		if len(comm.Persons) == 0 && len(comm.Parties) == 0 {
			return fmt.Errorf("communication %s has neither persons nor parties", comm.ID)
		}

		o.notify(ctx, tenant.ID, comm)

		return o.saveEvent(ctx, repo, tenant.ID, res.PartyID, models.EventCommunicationReceived, map[string]any{
			"communicationId": comm.ID,
			"isLeadCreated":   res.IsLeadCreated,
		})
	})
	if errors.Is(err, store.ErrDuplicateMessage) {
		return o.duplicate(ctx, tenant.ID, messageIDOf(req))
	}
	if err != nil {
		slog.Error("ingestion aborted",
			"tenant", tenant.Alias,
			"channel", string(req.Channel),
			"message_id", messageIDOf(req),
			"error", err,
		)
		return nil, fmt.Errorf("ingest %s: %w", strings.ToLower(string(req.Channel)), err)
	}

	slog.Info("communication ingested",
		"tenant", tenant.Alias,
		"channel", string(req.Channel),
		"communication_id", res.Communication.ID,
		"party_id", res.PartyID,
		"lead_created", res.IsLeadCreated,
	)
	return res, nil
}

func validate(req Request) error {
	missing := func(name string) error {
		return apperr.MissingField("MISSING_PAYLOAD", fmt.Sprintf("%s payload is required", name))
	}
	switch req.Channel {
	case models.MessageTypeEmail:
		if req.Email == nil {
			return missing("email")
		}
	case models.MessageTypeSMS:
		if req.SMS == nil {
			return missing("sms")
		}
	case models.MessageTypeCall:
		if req.Call == nil {
			return missing("call")
		}
	case models.MessageTypeWeb:
		if req.Web == nil {
			return missing("web")
		}
		if strings.TrimSpace(req.PartyID) == "" {
			return apperr.MissingField("MISSING_PARTY_ID", "party id is required")
		}
	}
	return nil
}

// notify publishes the saved communication. Failures are logged only.
func (o *Orchestrator) notify(ctx context.Context, tenantID string, comm *models.Communication) {
	if o.deps.Notifier == nil {
		return
	}
	n := models.Notification{
		ID:              uuid.NewString(),
		Event:           notificationEvent,
		TenantID:        tenantID,
		PartyIDs:        comm.Parties,
		CommunicationID: comm.ID,
		Payload: map[string]any{
			"type":     string(comm.Type),
			"threadId": comm.ThreadID,
		},
		PublishedAt: o.now().UTC(),
	}
	if err := o.deps.Notifier.PublishEvent(ctx, n); err != nil {
		slog.Warn("unable to notify clients", "communication_id", comm.ID, "error", err)
	}
}

func (o *Orchestrator) saveEvent(ctx context.Context, repo store.Repository, tenantID, partyID, event string, metadata map[string]any) error {
	if partyID == "" {
		return nil
	}
	err := repo.InsertPartyEvent(ctx, &models.PartyEvent{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		PartyID:   partyID,
		Event:     event,
		Metadata:  metadata,
		CreatedAt: o.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save %s event: %w", event, err)
	}
	return nil
}

// duplicate resolves a message id conflict. A communication saved within
// the duplicate window means an earlier delivery already succeeded.
func (o *Orchestrator) duplicate(ctx context.Context, tenantID, messageID string) (*Result, error) {
	var existing *models.Communication
	err := o.deps.Tx.InTx(ctx, func(ctx context.Context, repo store.Repository) error {
		var err error
		existing, err = repo.FindByMessageID(ctx, tenantID, messageID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load existing communication: %w", err)
	}
	if existing == nil || o.now().Sub(existing.CreatedAt) >= o.duplicateWindow {
		return nil, apperr.NoRetry(fmt.Sprintf("message %s was already processed", messageID))
	}

	slog.Info("message already processed", "message_id", messageID, "communication_id", existing.ID)
	res := &Result{Communication: existing, Duplicate: true}
	if len(existing.Parties) > 0 {
		res.PartyID = existing.Parties[0]
	}
	if len(existing.Persons) > 0 {
		res.PersonID = existing.Persons[0]
	}
	return res, nil
}

func (o *Orchestrator) saveSpam(ctx context.Context, req Request, sender string) (*Result, error) {
	spam := &models.SpamCommunication{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		Type:      req.Channel,
		From:      sender,
		Message:   spamMessage(req),
		CreatedAt: o.now().UTC(),
	}
	err := o.deps.Tx.InTx(ctx, func(ctx context.Context, repo store.Repository) error {
		return repo.InsertSpam(ctx, spam)
	})
	if err != nil {
		return nil, fmt.Errorf("save spam: %w", err)
	}
	slog.Info("blocked sender", "channel", string(req.Channel), "from", sender)
	return &Result{IsSpam: true}, nil
}

func spamMessage(req Request) models.Message {
	switch req.Channel {
	case models.MessageTypeEmail:
		return models.Message{Subject: req.Email.Subject, Text: req.Email.Text, MessageID: req.Email.MessageID}
	case models.MessageTypeSMS:
		_, text := unwrapSMS(req.SMS)
		return models.Message{Text: text, MessageID: req.SMS.MessageUUID}
	case models.MessageTypeCall:
		return models.Message{MessageID: req.Call.CallUUID}
	case models.MessageTypeWeb:
		return models.Message{Source: req.Web.Source, Text: req.Web.Text}
	}
	return models.Message{}
}

func senderOf(req Request) string {
	switch req.Channel {
	case models.MessageTypeEmail:
		return models.NormalizeEmail(req.Email.From)
	case models.MessageTypeSMS:
		from, _ := unwrapSMS(req.SMS)
		return from
	case models.MessageTypeCall:
		return req.Call.From
	}
	return ""
}

func messageIDOf(req Request) string {
	switch {
	case req.Email != nil:
		return req.Email.MessageID
	case req.SMS != nil:
		return req.SMS.MessageUUID
	case req.Call != nil:
		return req.Call.CallUUID
	}
	return ""
}

// isBlocked matches sender against the blocklist. Entries starting with
// "@" block a whole domain. Entries without "@" are compared as phone
// numbers.
func (o *Orchestrator) isBlocked(sender string) bool {
	if sender == "" {
		return false
	}
	s := strings.ToLower(sender)
	for _, b := range o.blocklist {
		switch {
		case strings.HasPrefix(b, "@"):
			if strings.HasSuffix(s, b) {
				return true
			}
		case strings.Contains(b, "@"):
			if s == b {
				return true
			}
		default:
			if p := NormalizePhone(b); p != "" && p == NormalizePhone(s) {
				return true
			}
		}
	}
	return false
}

func (o *Orchestrator) isAnonymousILS(address string) bool {
	for _, re := range o.anonymous {
		if re.MatchString(address) {
			return true
		}
	}
	return false
}

func onDomain(address, domain string) bool {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return false
	}
	host := strings.ToLower(address[at+1:])
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
