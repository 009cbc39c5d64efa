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

// Package mailparse converts inbound mail, either raw RFC 822 or the mail
// gateway's JSON shape, into models.InboundMessage.
package mailparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/leasehub/ingestion/internal/models"
	"github.com/leasehub/ingestion/internal/provider"
)

var (
	namedAddrRe = regexp.MustCompile(`(.*)<(.+@.+)>`)
	bareAddrRe  = regexp.MustCompile(`(.+@.+)`)
)

// maxPartBytes caps how much of a single MIME part is read.
const maxPartBytes = 25 << 20

// ParseMIME reads a raw RFC 822 message.
func ParseMIME(r io.Reader) (*models.InboundMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("read mail header: %w", err)
	}
	defer mr.Close()

	msg := &models.InboundMessage{Headers: make(map[string]any)}
	h := mr.Header

	fields := h.Fields()
	for fields.Next() {
		key := strings.ToLower(fields.Key())
		if _, seen := msg.Headers[key]; seen {
			continue
		}
		v, err := fields.Text()
		if err != nil {
			v = fields.Value()
		}
		msg.Headers[key] = v
	}

	msg.MessageID, _ = h.MessageID()
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		msg.InReplyTo = ids[0]
	}
	msg.Subject, _ = h.Subject()

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.SenderEmail = from[0].Address
		msg.SenderName = from[0].Name
	}
	msg.ReplyTo, _ = h.Text("Reply-To")
	msg.To = addresses(h, "To")
	msg.Cc = addresses(h, "Cc")

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				slog.Warn("unknown charset in mail part", "message_id", msg.MessageID, "error", err)
				continue
			}
			return nil, fmt.Errorf("read mail part: %w", err)
		}

		body, err := io.ReadAll(io.LimitReader(p.Body, maxPartBytes))
		if err != nil {
			return nil, fmt.Errorf("read mail part body: %w", err)
		}

		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			switch {
			case strings.HasPrefix(ct, "text/plain") && msg.Text == "":
				msg.Text = string(body)
			case strings.HasPrefix(ct, "text/html") && msg.HTML == "":
				msg.HTML = string(body)
			case strings.HasPrefix(ct, "image/"):
				// Inline images referenced by cid: are kept as attachments.
				name, _ := ph.Text("Content-Id")
				msg.Attachments = append(msg.Attachments, models.Attachment{
					Filename:    inlineName(name, ct),
					ContentType: ct,
					Content:     body,
				})
			}
		case *mail.AttachmentHeader:
			ct, _, _ := ph.ContentType()
			filename, _ := ph.Filename()
			msg.Attachments = append(msg.Attachments, models.Attachment{
				Filename:    filename,
				ContentType: ct,
				Content:     body,
			})
		}
	}

	ResolveSender(msg)
	msg.Raw = rawOf(msg)
	return msg, nil
}

// FromJSON decodes the mail gateway's JSON payload.
func FromJSON(data []byte) (*models.InboundMessage, error) {
	var msg models.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode mail payload: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode mail payload: %w", err)
	}
	if msg.ReplyTo == "" {
		if v, ok := lookup(msg.Headers, "reply-to").(string); ok {
			msg.ReplyTo = v
		}
	}

	ResolveSender(&msg)
	msg.Raw = raw
	return &msg, nil
}

// ParseReplyTo splits a reply-to header into display name and address.
// Quotes around the name are dropped. Both are empty when no address is
// present.
func ParseReplyTo(s string) (name, address string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if m := namedAddrRe.FindStringSubmatch(s); m != nil {
		name = strings.TrimSpace(strings.ReplaceAll(m[1], `"`, ""))
		return name, strings.TrimSpace(m[2])
	}
	if m := bareAddrRe.FindStringSubmatch(s); m != nil {
		return "", strings.Trim(strings.TrimSpace(m[1]), `"`)
	}
	return "", ""
}

// ResolveSender sets From and FromName: the reply-to address and name when
// present, else the envelope sender.
func ResolveSender(msg *models.InboundMessage) {
	replyName, replyAddr := ParseReplyTo(msg.ReplyTo)
	if replyAddr == "" {
		replyAddr = provider.HeaderAddress(msg.Headers, "reply-to")
	}

	msg.From = firstNonEmpty(replyAddr, msg.SenderEmail)
	msg.FromName = firstNonEmpty(replyName, msg.SenderName)
}

func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

func inlineName(contentID, contentType string) string {
	id := strings.Trim(strings.TrimSpace(contentID), "<>")
	if id == "" {
		id = "inline"
	}
	ext := strings.TrimPrefix(contentType, "image/")
	if strings.HasSuffix(id, "."+ext) {
		return id
	}
	return id + "." + ext
}

// rawOf is the JSON shape persisted as rawMessage for MIME input. Attachment
// bytes are stored separately and left out.
func rawOf(msg *models.InboundMessage) map[string]any {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	return map[string]any{
		"messageId":   msg.MessageID,
		"inReplyTo":   msg.InReplyTo,
		"subject":     msg.Subject,
		"text":        msg.Text,
		"html":        msg.HTML,
		"from_email":  msg.SenderEmail,
		"from_name":   msg.SenderName,
		"replyTo":     msg.ReplyTo,
		"emails":      msg.To,
		"cc":          msg.Cc,
		"headers":     msg.Headers,
		"attachments": names,
	}
}

func lookup(m map[string]any, key string) any {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
