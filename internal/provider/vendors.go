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
	"github.com/leasehub/ingestion/internal/extract"
	"github.com/leasehub/ingestion/internal/qualification"
)

// Vendor names.
const (
	NameApartments      = "apartments.com"
	NameApartmentSearch = "apartmentsearch.com"
	NameApartmentGuide  = "apartmentguide.com"
	NameRent            = "rent.com"
	NameForRent         = "forrent.com"
	NameAbodo           = "abodo"
	NameContactUs       = "contactus"
	NameCLXMedia        = "clxmedia.com"
	NameYelp            = "yelp"
	NameRespage         = "respage"
	NameZendesk         = "zendesk.com"
	NameZillow          = "zillow"
	NameZumper          = "zumper.com"
	NameZapier          = "zapiermail"
	NameFoundationHomes = "foundationhomes"
	NameRentBits        = "rentbits"
	NameRoom8           = "room8.io"
	NameCozy            = "cozy"
	NamePadMapper       = "padmapper"
)

func rules(r ...extract.Rule) []extract.Rule { return r }

// labeledSearch is the common "Name: / Email: / Phone:" template family.
func labeledSearch(names, emails, phones []string) SearchExpressions {
	return SearchExpressions{
		SenderName:  rules(labeled(nameValue, names...)),
		SenderEmail: rules(labeled(emailValue, emails...)),
		SenderPhone: rules(labeled(phoneValue, phones...)),
	}
}

var firstLastName = extract.With(
	`(?mi)^[ \t]*First Name[ \t]*:[ \t]*([^\n]*)\n[ \t]*Last Name[ \t]*:[ \t]*([^\n]*)`,
	extract.JoinGroups(" "),
)

func newApartments() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameApartments,
			EmailsToProcess:   patterns(domain("apartments.com"), domain("apartmentlist.com")),
			ILSSenderPatterns: patterns(`(?i)apartments\.com`, `(?i)apartmentlist\.com`),
			Search: SearchExpressions{
				SenderName:  rules(labeled(nameValue, "Name", "Lead Name"), firstLastName),
				SenderEmail: rules(labeled(emailValue, "Email", "Email Address"), labeled(emailValue, "Reply to")),
				SenderPhone: rules(labeled(phoneValue, "Phone", "Phone Number")),
			},
		},
	}
}

func newApartmentSearch() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameApartmentSearch,
			EmailsToProcess:   patterns(domain("apartmentsearch.com")),
			ILSSenderPatterns: patterns(`(?i)apartmentsearch\.com`),
			Search: labeledSearch(
				[]string{"Contact Name", "Name"},
				[]string{"Contact Email", "Email"},
				[]string{"Contact Phone", "Phone"},
			),
		},
	}
}

func newApartmentGuide() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameApartmentGuide,
			EmailsToProcess:   patterns(domain("apartmentguide.com")),
			ILSSenderPatterns: patterns(`(?i)apartmentguide\.com`, `(?i)rentpath\.com`),
			Search: labeledSearch(
				[]string{"Renter Name", "Name"},
				[]string{"Renter Email", "Email"},
				[]string{"Renter Phone", "Phone"},
			),
		},
		steps: []step{envelopeFallback},
	}
}

func newRent() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameRent,
			EmailsToProcess:   patterns(domain("rent.com")),
			ILSSenderPatterns: patterns(`(?i)@(?:[^@\s]+\.)?rent\.com$`),
			Search: labeledSearch(
				[]string{"Name"},
				[]string{"E-mail", "Email"},
				[]string{"Phone", "Phone Number"},
			),
		},
		steps: []step{envelopeFallback},
	}
}

func newForRent() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameForRent,
			EmailsToProcess:   patterns(domain("forrent.com")),
			ILSSenderPatterns: patterns(`(?i)forrent\.com`),
			Search: labeledSearch(
				[]string{"Prospect Name", "Name"},
				[]string{"Prospect Email", "Email"},
				[]string{"Prospect Phone", "Phone"},
			),
		},
		source: fromHTMLCell(forRentSelector),
	}
}

func newAbodo() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameAbodo,
			EmailsToProcess:   patterns(domain("abodo.com"), domain("abodoapts.com")),
			ILSSenderPatterns: patterns(`(?i)abodo(?:apts)?\.com`),
			Search:            labeledSearch([]string{"Name"}, []string{"Email"}, []string{"Phone"}),
		},
		steps: []step{envelopeFallback},
	}
}

func newContactUs() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameContactUs,
			EmailsToProcess:   patterns(`(?i)^(?:contactus|contact-us|contactform)@`),
			ILSSenderPatterns: patterns(`(?i)^(?:contactus|contact-us|contactform)@`),
			Search: labeledSearch(
				[]string{"Name", "Full Name"},
				[]string{"Email", "E-mail"},
				[]string{"Phone", "Phone Number"},
			),
		},
		steps: []step{captureAnswers(map[string][]extract.Rule{
			qualification.KeyNumBedrooms:  rules(labeled(nil, "Bedrooms", "Number of bedrooms")),
			qualification.KeyMoveInDate:   rules(labeled(nil, "When do you plan to move in?", "Move-in date", "Move in date")),
			qualification.KeyGroupProfile: rules(labeled(nil, "Group profile", "Type of group")),
		})},
	}
}

func newCLXMedia() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameCLXMedia,
			EmailsToProcess:   patterns(domain("clxmedia.com")),
			ILSSenderPatterns: patterns(`(?i)clxmedia\.com`),
			Search: labeledSearch(
				[]string{"Lead Name", "Name"},
				[]string{"Lead Email", "Email"},
				[]string{"Lead Phone", "Phone"},
			),
		},
	}
}

func newYelp() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameYelp,
			EmailsToProcess:   patterns(domain("yelp.com")),
			ILSSenderPatterns: patterns(`(?i)yelp\.com`),
			Search: SearchExpressions{
				SenderName: rules(
					extract.With(`(?m)^[ \t]*(\S[^\n]*?)[ \t]+sent you a (?:new )?message`, nil),
					labeled(nameValue, "Name"),
				),
			},
		},
		steps: []step{anonymizedSender(envelopeSender, replyToSender)},
	}
}

func newRespage() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameRespage,
			EmailsToProcess:   patterns(domain("respage.com")),
			ILSSenderPatterns: patterns(`(?i)respage\.com`),
			Search:            labeledSearch([]string{"Name"}, []string{"Email"}, []string{"Phone"}),
		},
	}
}

func newZendesk() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameZendesk,
			EmailsToProcess:   patterns(domain("zendesk.com")),
			ILSSenderPatterns: patterns(`(?i)zendesk\.com`),
			Search: SearchExpressions{
				SenderName: rules(
					extract.With(`(?mi)^[ \t]*Requester[ \t]*:[ \t]*([^<\n]+?)[ \t]*<`, nil),
					labeled(nameValue, "Name"),
				),
				SenderEmail: rules(
					extract.With(`(?mi)^[ \t]*Requester[ \t]*:[^<\n]*<([^>\s]+@[^>\s]+)>`, nil),
					labeled(emailValue, "Email"),
				),
				SenderPhone: rules(labeled(phoneValue, "Phone")),
			},
		},
	}
}

func newZillow() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameZillow,
			EmailsToProcess:   patterns(domain("zillow.com"), domain("hotpads.com"), domain("trulia.com")),
			ILSSenderPatterns: patterns(`(?i)(?:zillow|hotpads|trulia)\.com`),
			Search: SearchExpressions{
				SenderName: rules(
					extract.With(`(?m)^[ \t]*(\S[^\n]*?)[ \t]+(?:says|wrote)[ \t]*:`, nil),
					labeled(nameValue, "Name"),
				),
				SenderPhone: rules(
					labeled(phoneValue, "Phone"),
					extract.With(`(?m)^[ \t]*(\(?\d{3}\)?[ .\-]?\d{3}[ .\-]\d{4})[ \t]*$`, nil),
				),
			},
		},
		steps: []step{anonymizedSender(replyToSender)},
	}
}

func newZumper() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameZumper,
			EmailsToProcess:   patterns(domain("zumper.com")),
			ILSSenderPatterns: patterns(`(?i)zumper\.com`, `(?i)zlead\.co`),
			Search:            labeledSearch([]string{"Name"}, []string{"Email"}, []string{"Phone"}),
		},
		source: fromHTMLCell(zumperSelector),
		steps:  []step{anonymizedSender(replyToSender)},
	}
}

func newZapier() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameZapier,
			EmailsToProcess:   patterns(domain("zapiermail.com")),
			ILSSenderPatterns: patterns(`(?i)zapiermail\.com`),
			Search: labeledSearch(
				[]string{"Full Name", "Name"},
				[]string{"Email"},
				[]string{"Phone Number", "Phone"},
			),
		},
		source: fromAnchoredLines("facebook ad:"),
	}
}

func newFoundationHomes() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameFoundationHomes,
			EmailsToProcess:   patterns(domain("foundationhomes.com")),
			ILSSenderPatterns: patterns(`(?i)foundationhomes\.com`),
			Search:            labeledSearch([]string{"Name", "Applicant Name"}, []string{"Email"}, []string{"Phone"}),
		},
		steps: []step{truncateName(2)},
	}
}

func newRentBits() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameRentBits,
			EmailsToProcess:   patterns(domain("rentbits.io"), domain("rentbits.com")),
			ILSSenderPatterns: patterns(`(?i)rentbits\.(?:io|com)`),
			Search:            labeledSearch([]string{"Renter", "Name"}, []string{"Email"}, []string{"Phone"}),
		},
		source: fromHTMLCell(rentBitsSelector),
	}
}

func newRoom8() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameRoom8,
			EmailsToProcess:   patterns(domain("room8.io")),
			ILSSenderPatterns: patterns(`(?i)room8\.io`),
			Search: SearchExpressions{
				SenderName: rules(
					extract.With(`(?mi)^[ \t]*From[ \t]*:[ \t]*([^(\n]+?)[ \t]*\(`, nil),
					labeled(nameValue, "Name"),
				),
				SenderEmail: rules(
					extract.With(`(?mi)^[ \t]*From[ \t]*:[^(\n]*\(([^)\s]+@[^)\s]+)\)`, nil),
					labeled(emailValue, "Email"),
				),
				SenderPhone: rules(labeled(phoneValue, "Phone")),
			},
		},
	}
}

func newCozy() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NameCozy,
			EmailsToProcess:   patterns(domain("cozy.co")),
			ILSSenderPatterns: patterns(`(?i)cozy\.co`),
			Search: labeledSearch(
				[]string{"Applicant", "Name"},
				[]string{"Applicant Email", "Email"},
				[]string{"Applicant Phone", "Phone"},
			),
		},
	}
}

func newPadMapper() *vendor {
	return &vendor{
		policy: Policy{
			Name:              NamePadMapper,
			EmailsToProcess:   patterns(domain("padmapper.com")),
			ILSSenderPatterns: patterns(`(?i)padmapper\.com`),
			Search:            labeledSearch([]string{"Name"}, []string{"Email"}, []string{"Phone"}),
		},
	}
}

// builtins returns the vendors in registration order. Order is the
// tie-break when sender patterns overlap.
func builtins() []Provider {
	return []Provider{
		newApartments(),
		newApartmentSearch(),
		newApartmentGuide(),
		newRent(),
		newForRent(),
		newAbodo(),
		newContactUs(),
		newCLXMedia(),
		newYelp(),
		newRespage(),
		newZendesk(),
		newZillow(),
		newZumper(),
		newZapier(),
		newFoundationHomes(),
		newRentBits(),
		newRoom8(),
		newCozy(),
		newPadMapper(),
	}
}
