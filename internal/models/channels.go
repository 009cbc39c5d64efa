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

package models

import "time"

// SMSMessage is an inbound SMS/MMS as delivered by the telephony provider.
// Keys follow the provider's webhook form (From, To, Text, Type, MessageUUID).
type SMSMessage struct {
	MessageUUID string         `json:"MessageUUID"`
	From        string         `json:"From"`
	To          string         `json:"To"`
	Text        string         `json:"Text,omitempty"`
	Body        string         `json:"Body,omitempty"`
	Type        string         `json:"Type,omitempty"`
	Raw         map[string]any `json:"-"`
}

// CallMessage is an inbound call event.
type CallMessage struct {
	CallUUID        string         `json:"CallUUID"`
	From            string         `json:"From"`
	To              string         `json:"To"`
	Answered        bool           `json:"answered"`
	Duration        int            `json:"duration,omitempty"`
	RedialAttemptNo int            `json:"redialAttemptNo,omitempty"`

	// Set when the call was transferred from, or placed in reply to, an
	// existing communication.
	TransferredFromCommID string `json:"transferredFromCommId,omitempty"`
	InReplyTo             string `json:"inReplyTo,omitempty"`
	Raw             map[string]any `json:"-"`
}

// WebMessage is a party-scoped message submitted through the public API.
type WebMessage struct {
	Source         string         `json:"source"`
	Text           string         `json:"text"`
	RawMessageData map[string]any `json:"rawMessageData,omitempty"`
}

// Job is a queued inbound event waiting for a worker.
type Job struct {
	ID         string      `json:"id"`
	Channel    MessageType `json:"channel"`
	TenantID   string      `json:"tenant_id"`
	Payload    []byte      `json:"payload"`
	Retries    int         `json:"retries"`
	ReceivedAt time.Time   `json:"received_at"`
}

// Notification is a party event broadcast to downstream consumers after a
// communication is persisted.
type Notification struct {
	ID              string         `json:"id"`
	Event           string         `json:"event"`
	TenantID        string         `json:"tenant_id"`
	PartyIDs        []string       `json:"party_ids"`
	CommunicationID string         `json:"communication_id,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	PublishedAt     time.Time      `json:"published_at"`
}

// PersonData is the normalized identity handed to the lead service.
type PersonData struct {
	FullName      string         `json:"fullName,omitempty"`
	Emails        []string       `json:"emails,omitempty"`
	Phones        []string       `json:"phones,omitempty"`
	Qualification *Qualification `json:"qualificationQuestions,omitempty"`
}

// LeadContext carries routing information for lead resolution.
type LeadContext struct {
	TenantID  string      `json:"tenantId"`
	Channel   MessageType `json:"channel"`
	MessageID string      `json:"messageId,omitempty"`
	Provider  string      `json:"provider,omitempty"`
	ProgramID string      `json:"programId,omitempty"`
	Teams     []string    `json:"teams,omitempty"`
	To        []string    `json:"to,omitempty"`
	PartyID   string      `json:"partyId,omitempty"`
}

// LeadResult is the lead service's answer.
type LeadResult struct {
	LeadID        string   `json:"leadId,omitempty"`
	PartyIDs      []string `json:"partyIds"`
	PersonID      string   `json:"personId"`
	PersonIDs     []string `json:"personIds,omitempty"`
	TeamIDs       []string `json:"teamIds,omitempty"`
	IsLeadCreated bool     `json:"isLeadCreated"`
}
