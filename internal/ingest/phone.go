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
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/leasehub/ingestion/internal/config"
	"github.com/leasehub/ingestion/internal/models"
	"github.com/leasehub/ingestion/internal/store"
)

var forwardedSMS = regexp.MustCompile(`FWD\+(\d+):(.*)`)

// unwrapSMS returns the originating number and text. A forwarded
// "FWD+<number>:<text>" envelope takes precedence over the carrier fields.
func unwrapSMS(sms *models.SMSMessage) (from, text string) {
	if m := forwardedSMS.FindStringSubmatch(sms.Text); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}
	if isPlainSMS(sms) {
		return sms.From, sms.Text
	}
	return sms.From, sms.Body
}

func isPlainSMS(sms *models.SMSMessage) bool {
	return sms.Type == "" || strings.EqualFold(sms.Type, "sms")
}

// mmsMedia collects MediaUrl<n> / MediaContentType<n> pairs in index order.
func mmsMedia(sms *models.SMSMessage) []models.MediaRef {
	if isPlainSMS(sms) || len(sms.Raw) == 0 {
		return nil
	}
	var idx []int
	for k := range sms.Raw {
		if n, ok := strings.CutPrefix(k, "MediaUrl"); ok {
			if i, err := strconv.Atoi(n); err == nil {
				idx = append(idx, i)
			}
		}
	}
	sort.Ints(idx)

	media := make([]models.MediaRef, 0, len(idx))
	for _, i := range idx {
		u, _ := sms.Raw["MediaUrl"+strconv.Itoa(i)].(string)
		if u == "" {
			continue
		}
		ct, _ := sms.Raw["MediaContentType"+strconv.Itoa(i)].(string)
		media = append(media, models.MediaRef{URL: u, ContentType: ct})
	}
	return media
}

func phonePerson(from string) models.PersonData {
	var p models.PersonData
	if phone := NormalizePhone(from); phone != "" {
		p.Phones = []string{phone}
	}
	return p
}

func (o *Orchestrator) processSMS(ctx context.Context, repo store.Repository, tenant config.TenantConfig, sms *models.SMSMessage) (*Result, error) {
	from, text := unwrapSMS(sms)

	lead, err := o.deps.Leads.CreateOrResolveLead(ctx, phonePerson(from), models.LeadContext{
		TenantID:  tenant.ID,
		Channel:   models.MessageTypeSMS,
		MessageID: sms.MessageUUID,
		ProgramID: tenant.ProgramID,
		Teams:     tenant.Teams,
		To:        []string{sms.To},
	})
	if err != nil {
		return nil, fmt.Errorf("resolve lead: %w", err)
	}

	personIDs := personsOf(lead)
	comm := o.entry(tenant, models.MessageTypeSMS, ThreadID(models.MessageTypeSMS, personIDs), lead, true)
	comm.MessageID = sms.MessageUUID
	comm.Message = models.Message{
		Text:       text,
		From:       NormalizePhone(from),
		To:         []string{sms.To},
		MessageID:  sms.MessageUUID,
		Media:      mmsMedia(sms),
		RawMessage: rawMessage(sms.Raw, sms),
	}
	if err := repo.InsertCommunication(ctx, comm); err != nil {
		return nil, err
	}

	res := result(comm, lead)
	err = o.saveEvent(ctx, repo, tenant.ID, res.PartyID, models.EventCommunicationCompleted, map[string]any{
		"communicationId": comm.ID,
		"isLeadCreated":   res.IsLeadCreated,
		"personIds":       personIDs,
		"teamIds":         lead.TeamIDs,
		"programId":       tenant.ProgramID,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// processCall saves a call. A carrier redial of a call already on record
// updates the thread's last communication instead of adding a new one.
// The completion event for calls is written at hangup, not here.
func (o *Orchestrator) processCall(ctx context.Context, repo store.Repository, tenant config.TenantConfig, call *models.CallMessage) (*Result, error) {
	lead, err := o.deps.Leads.CreateOrResolveLead(ctx, phonePerson(call.From), models.LeadContext{
		TenantID:  tenant.ID,
		Channel:   models.MessageTypeCall,
		MessageID: call.CallUUID,
		ProgramID: tenant.ProgramID,
		Teams:     tenant.Teams,
		To:        []string{call.To},
	})
	if err != nil {
		return nil, fmt.Errorf("resolve lead: %w", err)
	}

	threadID, err := o.callThread(ctx, repo, call, personsOf(lead))
	if err != nil {
		return nil, err
	}

	if call.RedialAttemptNo > 0 && call.TransferredFromCommID == "" && call.InReplyTo == "" {
		last, err := repo.LastCommunicationInThread(ctx, threadID)
		if err != nil {
			return nil, fmt.Errorf("load last communication in thread: %w", err)
		}
		if last != nil {
			msg := last.Message
			if msg.RawMessage == nil {
				msg.RawMessage = map[string]any{}
			}
			msg.RawMessage["redialAttemptNo"] = call.RedialAttemptNo
			if err := repo.UpdateCommunicationMessage(ctx, last.ID, msg); err != nil {
				return nil, err
			}
			last.Message = msg
			last.UpdatedAt = o.now().UTC()
			slog.InfoContext(ctx, "redial attempt, updated existing communication",
				"communication_id", last.ID, "redial_attempt", call.RedialAttemptNo)
			return result(last, lead), nil
		}
	}

	comm := o.entry(tenant, models.MessageTypeCall, threadID, lead, !call.Answered)
	comm.MessageID = call.CallUUID
	comm.Message = models.Message{
		From:       NormalizePhone(call.From),
		To:         []string{call.To},
		MessageID:  call.CallUUID,
		RawMessage: rawMessage(call.Raw, call),
	}
	if err := repo.InsertCommunication(ctx, comm); err != nil {
		return nil, err
	}
	return result(comm, lead), nil
}

// callThread joins the thread of the communication the call was
// transferred from. Otherwise calls thread by the persons involved.
func (o *Orchestrator) callThread(ctx context.Context, repo store.Repository, call *models.CallMessage, personIDs []string) (string, error) {
	if call.TransferredFromCommID != "" {
		prev, err := repo.FindByID(ctx, call.TransferredFromCommID)
		if err != nil {
			return "", fmt.Errorf("find transferred-from communication: %w", err)
		}
		if prev != nil {
			return prev.ThreadID, nil
		}
	}
	return ThreadID(models.MessageTypeCall, personIDs), nil
}
