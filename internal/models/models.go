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

// Package models defines the data structures shared across the ingestion service.
package models

import (
	"strings"
	"time"
)

// Sentinels used when a lead email or name could not be recovered.
const (
	EmailIgnored    = "ignore-email@reva.tech"
	FullNameIgnored = "ignoreFullName reva"
)

// MessageType is the channel a communication arrived on.
type MessageType string

const (
	MessageTypeEmail MessageType = "Email"
	MessageTypeSMS   MessageType = "Sms"
	MessageTypeCall  MessageType = "Call"
	MessageTypeWeb   MessageType = "Web"
)

// Direction of a communication relative to the leasing organization.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Communication categories.
const (
	CategoryUserCommunication = "User communication"
	CategoryILS               = "ILS"
)

// Party event names.
const (
	EventCommunicationCompleted = "CommunicationCompleted"
	EventCommunicationReceived  = "CommunicationReceived"
)

// Attachment is a binary file carried by an inbound message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content,omitempty"`
}

// InboundMessage is a raw inbound email as delivered by the mail gateway.
//
// From and FromName are resolved once (reply-to first, then envelope) and
// are what providers match and fall back on.
type InboundMessage struct {
	MessageID   string         `json:"messageId"`
	InReplyTo   string         `json:"inReplyTo,omitempty"`
	Subject     string         `json:"subject"`
	Text        string         `json:"text"`
	HTML        string         `json:"html,omitempty"`
	SenderEmail string         `json:"from_email"`
	SenderName  string         `json:"from_name,omitempty"`
	ReplyTo     string         `json:"replyTo,omitempty"`
	Headers     map[string]any `json:"headers,omitempty"`
	To          []string       `json:"emails"`
	Cc          []string       `json:"cc,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`

	From     string `json:"from,omitempty"`
	FromName string `json:"fromName,omitempty"`

	// Raw is the payload as received, persisted as the communication's rawMessage.
	Raw map[string]any `json:"-"`
}

// ContactInfo holds the contact details recovered from a lead body.
type ContactInfo struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// AdditionalFields carries optional extracted data beyond identity.
type AdditionalFields struct {
	QualificationQuestions map[string]string `json:"qualificationQuestions,omitempty"`
}

// ParsedLeadInformation is the normalized output of a provider.
type ParsedLeadInformation struct {
	From             string           `json:"from"`
	FromName         string           `json:"fromName"`
	ContactInfo      ContactInfo      `json:"contactInfo"`
	AdditionalFields AdditionalFields `json:"additionalFields"`
}

// IsSuccessfullyParsed reports whether any identity field was recovered.
func (p ParsedLeadInformation) IsSuccessfullyParsed() bool {
	return (p.From != "" && p.From != EmailIgnored) ||
		p.ContactInfo.Phone != "" ||
		(p.FromName != "" && p.FromName != FullNameIgnored)
}

// Qualification is the mapped survey result.
type Qualification struct {
	NumBedrooms  []string `json:"numBedrooms,omitempty"`
	MoveInTime   string   `json:"moveInTime,omitempty"`
	GroupProfile string   `json:"groupProfile,omitempty"`
}

// IsEmpty reports whether no question produced a match.
func (q Qualification) IsEmpty() bool {
	return len(q.NumBedrooms) == 0 && q.MoveInTime == "" && q.GroupProfile == ""
}

// StoredFile references an attachment written to storage.
type StoredFile struct {
	OriginalName string `json:"originalName"`
	Path         string `json:"path"`
}

// MediaRef is an MMS media item referenced by URL.
type MediaRef struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// Message is the channel payload persisted with a communication.
type Message struct {
	Text      string       `json:"text,omitempty"`
	Subject   string       `json:"subject,omitempty"`
	From      string       `json:"from,omitempty"`
	FromName  string       `json:"fromName,omitempty"`
	To        []string     `json:"to,omitempty"`
	MessageID string       `json:"messageId,omitempty"`
	Files     []StoredFile `json:"files,omitempty"`
	Media     []MediaRef   `json:"media,omitempty"`

	// Web messages.
	Source         string         `json:"source,omitempty"`
	RawMessageData map[string]any `json:"rawMessageData,omitempty"`

	// Email, SMS and call messages.
	RawMessage map[string]any `json:"rawMessage,omitempty"`
}

// Communication is a persisted inbound event.
type Communication struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenantId,omitempty"`
	Type      MessageType `json:"type"`
	Direction Direction   `json:"direction"`
	ThreadID  string      `json:"threadId"`
	Persons   []string    `json:"persons"`
	Parties   []string    `json:"parties"`
	Teams     []string    `json:"teams"`
	Message   Message     `json:"message"`
	Category  string      `json:"category"`
	Unread    bool        `json:"unread"`
	MessageID string      `json:"messageId,omitempty"`
	ProgramID string      `json:"programId,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RequestTrackingRecord is one tracked public API request.
type RequestTrackingRecord struct {
	ID              string    `json:"id"`
	PartyID         string    `json:"partyId"`
	DocumentVersion string    `json:"documentVersion"`
	SessionID       string    `json:"sessionId"`
	Payload         string    `json:"payload"`
	Checksum        string    `json:"checksum"`
	URLPath         string    `json:"urlPath"`
	CreatedAt       time.Time `json:"created_at"`
}

// PartyEvent is a party-scoped domain event saved with the communication.
type PartyEvent struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId,omitempty"`
	PartyID   string         `json:"partyId"`
	Event     string         `json:"event"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// SpamCommunication is an inbound event dropped by the blocklist.
type SpamCommunication struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenantId,omitempty"`
	Type      MessageType `json:"type"`
	From      string      `json:"from"`
	Message   Message     `json:"message"`
	CreatedAt time.Time   `json:"created_at"`
}

// NormalizeEmail lowercases and trims an address for comparisons.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
