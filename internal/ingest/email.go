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

package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leasehub/ingestion/internal/apperr"
	"github.com/leasehub/ingestion/internal/config"
	"github.com/leasehub/ingestion/internal/models"
	"github.com/leasehub/ingestion/internal/qualification"
	"github.com/leasehub/ingestion/internal/store"
)

// classification is the ILS verdict for an email.
type classification struct {
	provider string
	lead     *models.ParsedLeadInformation
}

func (c classification) category() string {
	if c.lead != nil {
		return models.CategoryILS
	}
	return models.CategoryUserCommunication
}

// classify parses emails from known listing services. Replies are never
// reclassified. An ILS email nothing could be extracted from is rejected
// unless it came through an anonymous relay.
func (o *Orchestrator) classify(ctx context.Context, msg *models.InboundMessage) (classification, error) {
	if msg.InReplyTo != "" || !o.deps.Classifier.IsOnILSDomain(msg) {
		return classification{}, nil
	}

	var (
		name   string
		lead   models.ParsedLeadInformation
		parsed bool
	)
	if p := o.deps.Classifier.SelectProvider(msg); p != nil {
		name = p.Name()
		lead = p.ParseEmailInformation(msg)
		parsed = lead.IsSuccessfullyParsed()
	}
	if parsed {
		slog.DebugContext(ctx, "ILS email parsed", "provider", name, "message_id", msg.MessageID)
		return classification{provider: name, lead: &lead}, nil
	}

	if o.isAnonymousILS(msg.From) || o.isAnonymousILS(msg.SenderEmail) {
		slog.InfoContext(ctx, "anonymous ILS email, treating as user communication",
			"provider", name, "message_id", msg.MessageID)
		return classification{provider: name}, nil
	}

	slog.ErrorContext(ctx, "no lead information in ILS email",
		"provider", name, "message_id", msg.MessageID, "from", msg.From)
	return classification{}, apperr.NoRetry(fmt.Sprintf("message received from an ILS provider and no information could be extracted (provider %q)", name))
}

// emailPerson builds the person data from the parsed lead, or from the
// sender when the email is not an ILS lead.
func emailPerson(ctx context.Context, msg *models.InboundMessage, cls classification) models.PersonData {
	if cls.lead == nil {
		p := models.PersonData{FullName: msg.FromName}
		if msg.From != "" {
			p.Emails = []string{models.NormalizeEmail(msg.From)}
		}
		return p
	}

	lead := cls.lead
	var p models.PersonData
	if lead.FromName != models.FullNameIgnored {
		p.FullName = lead.FromName
	}
	email := lead.ContactInfo.Email
	if email == "" {
		email = lead.From
	}
	if email != "" && email != models.EmailIgnored {
		p.Emails = []string{models.NormalizeEmail(email)}
	}
	if phone := NormalizePhone(lead.ContactInfo.Phone); phone != "" {
		p.Phones = []string{phone}
	}
	if raw := lead.AdditionalFields.QualificationQuestions; len(raw) > 0 {
		if q := qualification.Map(ctx, raw); !q.IsEmpty() {
			p.Qualification = &q
		}
	}
	return p
}

func (o *Orchestrator) processEmail(ctx context.Context, repo store.Repository, tenant config.TenantConfig, msg *models.InboundMessage, cls classification) (*Result, error) {
	person := emailPerson(ctx, msg, cls)

	html, inline := o.deps.Attachments.ProcessInlineImages(ctx, msg.MessageID, msg.HTML, msg.Attachments)

	all := make([]models.Attachment, 0, len(msg.Attachments)+len(inline))
	all = append(all, msg.Attachments...)
	all = append(all, inline...)

	var files []models.StoredFile
	if len(all) > 0 {
		var err error
		if files, err = o.deps.Attachments.ValidateAndStore(ctx, tenant.ID, all); err != nil {
			return nil, fmt.Errorf("store attachments: %w", err)
		}
	}

	lead, err := o.deps.Leads.CreateOrResolveLead(ctx, person, models.LeadContext{
		TenantID:  tenant.ID,
		Channel:   models.MessageTypeEmail,
		MessageID: msg.MessageID,
		Provider:  cls.provider,
		ProgramID: tenant.ProgramID,
		Teams:     tenant.Teams,
		To:        msg.To,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve lead: %w", err)
	}

	threadID, err := o.emailThread(ctx, repo, tenant.ID, msg.InReplyTo)
	if err != nil {
		return nil, err
	}

	raw := rawMessage(msg.Raw, msg)
	raw["html"] = html

	comm := o.entry(tenant, models.MessageTypeEmail, threadID, lead, true)
	comm.Category = cls.category()
	comm.MessageID = msg.MessageID
	comm.Message = models.Message{
		Subject:    msg.Subject,
		Text:       msg.Text,
		From:       msg.From,
		FromName:   msg.FromName,
		To:         msg.To,
		MessageID:  msg.MessageID,
		Files:      files,
		RawMessage: raw,
	}
	if err := repo.InsertCommunication(ctx, comm); err != nil {
		return nil, err
	}

	res := result(comm, lead)
	err = o.saveEvent(ctx, repo, tenant.ID, res.PartyID, models.EventCommunicationCompleted, map[string]any{
		"communicationId": comm.ID,
		"isLeadCreated":   res.IsLeadCreated,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// emailThread continues the thread of the message being replied to, or
// starts a new one.
func (o *Orchestrator) emailThread(ctx context.Context, repo store.Repository, tenantID, inReplyTo string) (string, error) {
	if inReplyTo == "" {
		return uuid.NewString(), nil
	}
	prev, err := repo.FindByMessageID(ctx, tenantID, inReplyTo)
	if err != nil {
		return "", fmt.Errorf("find replied-to communication: %w", err)
	}
	if prev == nil {
		return uuid.NewString(), nil
	}
	return prev.ThreadID, nil
}
