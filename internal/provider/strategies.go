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

package provider

import (
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/leasehub/ingestion/internal/extract"
	"github.com/leasehub/ingestion/internal/models"
)

var (
	emailInValueRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	digitsRe       = regexp.MustCompile(`\d`)
)

// labeled builds a rule matching "Label: value" at the start of a line for
// any of the given labels.
func labeled(transform extract.Transform, labels ...string) extract.Rule {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = regexp.QuoteMeta(l)
	}
	return extract.With(`(?mi)^[ \t]*(?:`+strings.Join(quoted, "|")+`)[ \t]*:[ \t]*([^\n]*)`, transform)
}

// emailValue keeps only the address inside a captured value.
func emailValue(groups []string) string {
	return emailInValueRe.FindString(groups[len(groups)-1])
}

// phoneValue keeps a captured value only if it carries a plausible number.
func phoneValue(groups []string) string {
	v := strings.TrimSpace(groups[len(groups)-1])
	if len(digitsRe.FindAllString(v, -1)) < 7 {
		return ""
	}
	return v
}

// nameValue drops values that are obviously not names.
func nameValue(groups []string) string {
	v := strings.TrimSpace(groups[len(groups)-1])
	if strings.EqualFold(v, "n/a") || strings.Contains(v, "@") {
		return ""
	}
	return v
}

// bodyText is the text parsed by text-based rules. Vendors that only send
// HTML are rendered to text first.
func bodyText(msg *models.InboundMessage) string {
	if strings.TrimSpace(msg.Text) != "" || msg.HTML == "" {
		return msg.Text
	}
	return htmlText(msg.HTML)
}

func extractFields(s SearchExpressions, text string) fields {
	return fields{
		Email: extract.Extract(text, s.SenderEmail),
		Phone: extract.Extract(text, s.SenderPhone),
		Name:  extract.Extract(text, s.SenderName),
	}
}

// fromText runs the policy's rules against the plain-text body.
func fromText(p *Policy, msg *models.InboundMessage) fields {
	return extractFields(p.Search, bodyText(msg))
}

// fromHTMLCell runs the policy's rules against one positional cell of the
// HTML body, falling back to the plain text when the cell is not there.
func fromHTMLCell(sel cascadia.Selector) source {
	return func(p *Policy, msg *models.InboundMessage) fields {
		if frag := htmlFragment(msg.HTML, sel); frag != "" {
			return extractFields(p.Search, frag)
		}
		return extractFields(p.Search, bodyText(msg))
	}
}

// fromAnchoredLines reads unlabeled fields at fixed offsets after an anchor
// line: first name, an optional last name, email, phone. The last-name line
// is treated as absent when it looks like an email or a phone number.
// Without the anchor the labeled rules are used.
func fromAnchoredLines(anchor string) source {
	return func(p *Policy, msg *models.InboundMessage) fields {
		text := bodyText(msg)
		lines := extract.LinesAfter(text, anchor)
		if len(lines) == 0 {
			return extractFields(p.Search, text)
		}

		var f fields
		name := lines[0]
		offset := 1
		if len(lines) > 1 && !extract.LooksLikeEmail(lines[1]) && !extract.LooksLikePhone(lines[1]) {
			name += " " + lines[1]
			offset = 2
		}
		f.Name = strings.TrimSpace(name)

		if offset < len(lines) && extract.LooksLikeEmail(lines[offset]) {
			f.Email = lines[offset]
		}
		if offset+1 < len(lines) && extract.LooksLikePhone(lines[offset+1]) {
			f.Phone = lines[offset+1]
		}
		return f
	}
}

// senderSource reads a relay address a vendor puts outside the body.
type senderSource func(msg *models.InboundMessage) string

// envelopeSender reads the envelope from_email.
func envelopeSender(msg *models.InboundMessage) string {
	return msg.SenderEmail
}

// replyToSender reads the reply-to header, which may be a string or an object.
func replyToSender(msg *models.InboundMessage) string {
	if a := HeaderAddress(msg.Headers, "reply-to"); a != "" {
		return a
	}
	return AddressOf(msg.ReplyTo)
}

// anonymizedSender replaces the email with the first address found by
// sources. The vendor hides the lead's real address, so the relay address
// is what replies must go to.
func anonymizedSender(sources ...senderSource) step {
	return func(msg *models.InboundMessage, f fields) fields {
		for _, s := range sources {
			if a := strings.TrimSpace(s(msg)); a != "" {
				f.Email = a
				return f
			}
		}
		return f
	}
}

// envelopeFallback uses the resolved sender when the body had no address.
func envelopeFallback(msg *models.InboundMessage, f fields) fields {
	if f.Email == "" {
		f.Email = strings.TrimSpace(msg.From)
	}
	return f
}

// truncateName keeps the first n tokens of the name.
func truncateName(n int) step {
	return func(_ *models.InboundMessage, f fields) fields {
		f.Name = extract.FirstTokens(f.Name, n)
		return f
	}
}

// captureAnswers extracts raw survey answers keyed by question.
func captureAnswers(questions map[string][]extract.Rule) step {
	return func(msg *models.InboundMessage, f fields) fields {
		text := bodyText(msg)
		for key, rules := range questions {
			if v := extract.Extract(text, rules); v != "" {
				if f.Qualification == nil {
					f.Qualification = make(map[string]string)
				}
				f.Qualification[key] = v
			}
		}
		return f
	}
}
