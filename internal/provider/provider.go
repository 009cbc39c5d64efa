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

// Package provider recognizes which listing-service template produced an
// inbound email and extracts the lead's identity from it.
//
// Each vendor is a read-only Policy (sender patterns plus extraction rules)
// combined with a source that reads fields from the message and a list of
// steps that adjust them. Nothing is mutated after init, so providers are
// safe to share across workers.
package provider

import (
	"regexp"

	"github.com/leasehub/ingestion/internal/extract"
	"github.com/leasehub/ingestion/internal/models"
)

// Provider is one listing-service email template.
type Provider interface {
	// Name identifies the vendor in logs and results.
	Name() string

	// Policy returns the vendor's routing and extraction configuration.
	Policy() Policy

	// ShouldProcessEmailBody reports whether this provider claims the message.
	ShouldProcessEmailBody(msg *models.InboundMessage) bool

	// BelongsToILSDomain reports whether the sender is one of this vendor's
	// domains, regardless of whether the body will be parsed.
	BelongsToILSDomain(msg *models.InboundMessage) bool

	// ParseEmailInformation extracts the lead. It never fails; missing
	// values come back as sentinels or empty strings.
	ParseEmailInformation(msg *models.InboundMessage) models.ParsedLeadInformation
}

// SearchExpressions are the ordered rule sets for each lead field.
type SearchExpressions struct {
	SenderEmail []extract.Rule
	SenderPhone []extract.Rule
	SenderName  []extract.Rule
}

// Policy is the immutable configuration of a vendor.
type Policy struct {
	Name              string
	EmailsToProcess   []*regexp.Regexp
	ILSSenderPatterns []*regexp.Regexp
	Search            SearchExpressions
}

// fields is the working set a source produces and steps refine.
type fields struct {
	Email         string
	Phone         string
	Name          string
	Qualification map[string]string
}

// lead converts fields into the output record, substituting sentinels.
func (f fields) lead() models.ParsedLeadInformation {
	p := models.ParsedLeadInformation{
		From:     f.Email,
		FromName: f.Name,
		ContactInfo: models.ContactInfo{
			Phone: f.Phone,
			Email: f.Email,
		},
	}
	if p.From == "" {
		p.From = models.EmailIgnored
	}
	if p.FromName == "" {
		p.FromName = models.FullNameIgnored
	}
	if len(f.Qualification) > 0 {
		p.AdditionalFields.QualificationQuestions = f.Qualification
	}
	return p
}

// source reads the initial fields for a vendor.
type source func(p *Policy, msg *models.InboundMessage) fields

// step adjusts fields after the source ran.
type step func(msg *models.InboundMessage, f fields) fields

// vendor is the concrete Provider built from a policy and its strategies.
type vendor struct {
	policy Policy
	source source
	steps  []step
}

func (v *vendor) Name() string { return v.policy.Name }

// Policy returns the vendor's configuration.
func (v *vendor) Policy() Policy { return v.policy }

func (v *vendor) ShouldProcessEmailBody(msg *models.InboundMessage) bool {
	return matchesAny(v.policy.EmailsToProcess, senderCandidates(msg))
}

func (v *vendor) BelongsToILSDomain(msg *models.InboundMessage) bool {
	return matchesAny(v.policy.ILSSenderPatterns, senderCandidates(msg))
}

func (v *vendor) ParseEmailInformation(msg *models.InboundMessage) models.ParsedLeadInformation {
	if msg == nil {
		return fields{}.lead()
	}
	src := v.source
	if src == nil {
		src = fromText
	}
	f := src(&v.policy, msg)
	for _, s := range v.steps {
		f = s(msg, f)
	}
	return f.lead()
}

// senderCandidates lists every address the message claims to be from:
// the resolved sender, the From header and the envelope sender.
func senderCandidates(msg *models.InboundMessage) []string {
	if msg == nil {
		return nil
	}
	var out []string
	for _, a := range []string{msg.From, HeaderAddress(msg.Headers, "from"), msg.SenderEmail} {
		if a = models.NormalizeEmail(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, addresses []string) bool {
	for _, a := range addresses {
		for _, p := range patterns {
			if p.MatchString(a) {
				return true
			}
		}
	}
	return false
}

// patterns compiles sender patterns. It panics on an invalid pattern.
func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// domain builds a case-insensitive pattern matching addresses at d or any subdomain of it.
func domain(d string) string {
	return `(?i)@(?:[^@\s]+\.)?` + regexp.QuoteMeta(d) + `$`
}
