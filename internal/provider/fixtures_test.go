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

import "github.com/leasehub/ingestion/internal/models"

// fixture is a vendor email with the lead it must produce.
type fixture struct {
	name         string
	msg          *models.InboundMessage
	wantProvider string
	wantFrom     string
	wantName     string
	wantPhone    string
}

const forRentHTML = `<html><body>
<table><tr><td>ForRent.com</td></tr></table>
<table>
<tr><td>New lead</td><td>for Sunset Villas</td></tr>
<tr><td>Date</td><td>2024-01-01</td></tr>
<tr><td>Prospect</td><td>Prospect Name: Mikayla Lazaro<br>Prospect Email: mikayla.lazaro@gmail.com<br>Prospect Phone: 16509918351</td></tr>
</table>
</body></html>`

const zumperHTML = `<html><body><table>
<tr><td>Zumper</td></tr>
<tr><td>
<table><tr><td>You have a new lead</td></tr></table>
<table><tr><td>Name: Griffin Bouchard</td></tr><tr><td>Phone: (415) 555-0142</td></tr></table>
</td></tr>
</table></body></html>`

const rentBitsHTML = `<html><body><table>
<tr><td>RentBits</td></tr>
<tr><td>A renter is interested</td></tr>
<tr><td>Listing: 12 Oak St</td></tr>
<tr><td>Renter: Miranda<br>Email: miranda.k@outlook.com<br>Phone: 312-555-0110</td></tr>
</table></body></html>`

func vendorMsg(sender, text string) *models.InboundMessage {
	return &models.InboundMessage{
		SenderEmail: sender,
		From:        sender,
		Text:        text,
	}
}

func fixtures() []fixture {
	return []fixture{
		{
			name: "apartments.com",
			msg: vendorMsg("lead@apartments.com",
				"New Lead from Apartments.com\nName: Echo Berkeley\nEmail: echo.berkeley99@gmail.com\nPhone: (510) 944-4224\nMessage: Is the unit available?"),
			wantProvider: NameApartments,
			wantFrom:     "echo.berkeley99@gmail.com",
			wantName:     "Echo Berkeley",
			wantPhone:    "(510) 944-4224",
		},
		{
			name: "apartmentlist legacy first/last",
			msg: vendorMsg("notifications@mail.apartmentlist.com",
				"First Name: Echo\nLast Name: Berkeley\nReply to: echo.berkeley99@gmail.com\nPhone Number: (510) 944-4224"),
			wantProvider: NameApartments,
			wantFrom:     "echo.berkeley99@gmail.com",
			wantName:     "Echo Berkeley",
			wantPhone:    "(510) 944-4224",
		},
		{
			name: "apartmentsearch.com",
			msg: vendorMsg("leads@apartmentsearch.com",
				"Contact Name: Fedelmid Durga\nContact Email: fedelmiddurga@gmail.com\nContact Phone: 6506918351\n"),
			wantProvider: NameApartmentSearch,
			wantFrom:     "fedelmiddurga@gmail.com",
			wantName:     "Fedelmid Durga",
			wantPhone:    "6506918351",
		},
		{
			name: "apartmentguide.com",
			msg: vendorMsg("leads@apartmentguide.com",
				"Renter Name: Harold Finch\nRenter Email: harold.finch@gmail.com\nRenter Phone: 212-555-0199"),
			wantProvider: NameApartmentGuide,
			wantFrom:     "harold.finch@gmail.com",
			wantName:     "Harold Finch",
			wantPhone:    "212-555-0199",
		},
		{
			name: "rent.com",
			msg: vendorMsg("leads@rent.com",
				"Name: Uffo Hogpen\nE-mail: uffo.hogpen@gmail.com\nPhone: (650) 555-0177"),
			wantProvider: NameRent,
			wantFrom:     "uffo.hogpen@gmail.com",
			wantName:     "Uffo Hogpen",
			wantPhone:    "(650) 555-0177",
		},
		{
			name: "forrent.com html",
			msg: &models.InboundMessage{
				SenderEmail: "leads@forrent.com",
				From:        "leads@forrent.com",
				Text:        "Prospect Name: =?utf-8?garbled",
				HTML:        forRentHTML,
			},
			wantProvider: NameForRent,
			wantFrom:     "mikayla.lazaro@gmail.com",
			wantName:     "Mikayla Lazaro",
			wantPhone:    "16509918351",
		},
		{
			name: "abodo",
			msg: vendorMsg("leads@abodoapts.com",
				"Name: Tess Ocean\nEmail: tess.ocean@gmail.com\nPhone: 702-555-0101"),
			wantProvider: NameAbodo,
			wantFrom:     "tess.ocean@gmail.com",
			wantName:     "Tess Ocean",
			wantPhone:    "702-555-0101",
		},
		{
			name: "contactus",
			msg: vendorMsg("contactus@parkmerced.com",
				"Name: Patrick Gonzales\nemail:patrick.gonzales@gmail.com\nPhone: (510) 862-3038\nBedrooms: 2 bedrooms\nWhen do you plan to move in?: Next 2 months\nGroup profile: Corporate\nMessage: Looking for a furnished unit."),
			wantProvider: NameContactUs,
			wantFrom:     "patrick.gonzales@gmail.com",
			wantName:     "Patrick Gonzales",
			wantPhone:    "(510) 862-3038",
		},
		{
			name: "contactus without survey",
			msg: vendorMsg("contactus@parkmerced.com",
				"Name: Lois Lane\nEmail: lois.reports@gmail.com\nMessage: Do you allow cats?"),
			wantProvider: NameContactUs,
			wantFrom:     "lois.reports@gmail.com",
			wantName:     "Lois Lane",
		},
		{
			name: "clxmedia.com",
			msg: vendorMsg("leads@clxmedia.com",
				"Lead Name: Sam Carter\nLead Email: sam.carter@gmail.com\nLead Phone: 303-555-0123"),
			wantProvider: NameCLXMedia,
			wantFrom:     "sam.carter@gmail.com",
			wantName:     "Sam Carter",
			wantPhone:    "303-555-0123",
		},
		{
			name: "yelp anonymized",
			msg: vendorMsg("reply+8f2ab3c1@messaging.yelp.com",
				"Jessamine Tunnelly sent you a message\n\nHi, is parking included?"),
			wantProvider: NameYelp,
			wantFrom:     "reply+8f2ab3c1@messaging.yelp.com",
			wantName:     "Jessamine Tunnelly",
		},
		{
			name: "respage",
			msg: vendorMsg("leads@respage.com",
				"Name: Noel\nEmail: noelh@respage.com\nMessage: Tour request"),
			wantProvider: NameRespage,
			wantFrom:     "noelh@respage.com",
			wantName:     "Noel",
		},
		{
			name: "zendesk.com",
			msg: vendorMsg("support@leasing.zendesk.com",
				"Requester: William Roche <william.roche@fema.dhs.gov>\nPhone: 202-578-6165\nSubject: Relocation housing"),
			wantProvider: NameZendesk,
			wantFrom:     "william.roche@fema.dhs.gov",
			wantName:     "William Roche",
			wantPhone:    "202-578-6165",
		},
		{
			name: "zillow reply-to string",
			msg: &models.InboundMessage{
				SenderEmail: "rentalclientservices@zillow.com",
				From:        "fedelmiddurga@gmail.com",
				ReplyTo:     "\"Fedelmid Durga\" <fedelmiddurga@gmail.com>",
				Text:        "Fedelmid Durga says:\nI'd like to schedule a viewing.\n650.691.8351",
			},
			wantProvider: NameZillow,
			wantFrom:     "fedelmiddurga@gmail.com",
			wantName:     "Fedelmid Durga",
			wantPhone:    "650.691.8351",
		},
		{
			name: "zillow reply-to object",
			msg: &models.InboundMessage{
				SenderEmail: "rentalclientservices@zillow.com",
				From:        "rentalclientservices@zillow.com",
				Headers: map[string]any{
					"reply-to": map[string]any{
						"value": []any{map[string]any{"address": "lsj9148@gmail.com", "name": "Linda Johnson"}},
						"text":  "Linda Johnson <lsj9148@gmail.com>",
					},
				},
				Text: "Linda Johnson says:\nPlease call me.\nPhone: 970.924.0423",
			},
			wantProvider: NameZillow,
			wantFrom:     "lsj9148@gmail.com",
			wantName:     "Linda Johnson",
			wantPhone:    "970.924.0423",
		},
		{
			name: "zumper.com html and reply-to",
			msg: &models.InboundMessage{
				SenderEmail: "leads@zumper.com",
				From:        "fnjkx7d3vdwr8pqx6231zwch8b@zlead.co",
				ReplyTo:     "fnjkx7d3vdwr8pqx6231zwch8b@zlead.co",
				HTML:        zumperHTML,
			},
			wantProvider: NameZumper,
			wantFrom:     "fnjkx7d3vdwr8pqx6231zwch8b@zlead.co",
			wantName:     "Griffin Bouchard",
			wantPhone:    "(415) 555-0142",
		},
		{
			name: "zapiermail with last name line",
			msg: vendorMsg("noreply@zapiermail.com",
				"You have a new lead from facebook ad:\nJim\nAaker\njim.aaker@gmail.com\n(415) 555-0199\n"),
			wantProvider: NameZapier,
			wantFrom:     "jim.aaker@gmail.com",
			wantName:     "Jim Aaker",
			wantPhone:    "(415) 555-0199",
		},
		{
			name: "zapiermail without last name line",
			msg: vendorMsg("noreply@zapiermail.com",
				"New lead from Facebook Ad:\n\nKim Fleckenstein\nkim.fleck@yahoo.com\n+14155550123\n"),
			wantProvider: NameZapier,
			wantFrom:     "kim.fleck@yahoo.com",
			wantName:     "Kim Fleckenstein",
			wantPhone:    "+14155550123",
		},
		{
			name: "foundationhomes",
			msg: vendorMsg("web@foundationhomes.com",
				"Name: Kate Roberts Michael Roberts\nEmail: kate.roberts@gmail.com\nPhone: 619-555-0144"),
			wantProvider: NameFoundationHomes,
			wantFrom:     "kate.roberts@gmail.com",
			wantName:     "Kate Roberts",
			wantPhone:    "619-555-0144",
		},
		{
			name: "rentbits html",
			msg: &models.InboundMessage{
				SenderEmail: "leads@rentbits.io",
				From:        "leads@rentbits.io",
				HTML:        rentBitsHTML,
			},
			wantProvider: NameRentBits,
			wantFrom:     "miranda.k@outlook.com",
			wantName:     "Miranda",
			wantPhone:    "312-555-0110",
		},
		{
			name: "room8.io",
			msg: vendorMsg("hello@room8.io",
				"From: Rae Dogg (montep92@gmail.com)\nPhone: 415-555-0166\nHey! Is the room still open?"),
			wantProvider: NameRoom8,
			wantFrom:     "montep92@gmail.com",
			wantName:     "Rae Dogg",
			wantPhone:    "415-555-0166",
		},
		{
			name: "cozy",
			msg: vendorMsg("notifications@cozy.co",
				"Applicant: John Miller\nApplicant Email: john.miller@gmail.com\nApplicant Phone: 14156045334"),
			wantProvider: NameCozy,
			wantFrom:     "john.miller@gmail.com",
			wantName:     "John Miller",
			wantPhone:    "14156045334",
		},
		{
			name: "padmapper",
			msg: vendorMsg("leads@padmapper.com",
				"Name: Ada Wong\nEmail: ada.wong@gmail.com\nPhone: 617-555-0100"),
			wantProvider: NamePadMapper,
			wantFrom:     "ada.wong@gmail.com",
			wantName:     "Ada Wong",
			wantPhone:    "617-555-0100",
		},
	}
}
