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
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Positional selectors for vendors whose plain-text part is unreliable.
// Each points at the table cell holding the lead details in that vendor's
// notification layout. Bump the version when a vendor changes its template
// and keep the fixture test for the old one until it stops arriving.
const (
	ForRentSelectorV1  = "body > table:nth-of-type(2) > tbody > tr:nth-of-type(3) > td:nth-of-type(2)"
	ZumperSelectorV1   = "body > table > tbody > tr:nth-of-type(2) > td > table:nth-of-type(2)"
	RentBitsSelectorV1 = "body > table:nth-of-type(1) > tbody > tr:nth-of-type(4) > td:nth-of-type(1)"
)

var (
	forRentSelector  = cascadia.MustCompile(ForRentSelectorV1)
	zumperSelector   = cascadia.MustCompile(ZumperSelectorV1)
	rentBitsSelector = cascadia.MustCompile(RentBitsSelectorV1)
)

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Tr: true, atom.Table: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
}

// htmlFragment returns the text of the first node matching sel, with line
// structure kept. It returns "" when the document does not have that shape.
func htmlFragment(doc string, sel cascadia.Selector) string {
	if strings.TrimSpace(doc) == "" {
		return ""
	}
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	s := d.FindMatcher(sel).First()
	if s.Length() == 0 {
		return ""
	}
	var b strings.Builder
	for _, n := range s.Nodes {
		renderText(&b, n)
	}
	return strings.TrimSpace(b.String())
}

// htmlText renders a whole document as text.
func htmlText(doc string) string {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, n := range d.Find("body").Nodes {
		renderText(&b, n)
	}
	return strings.TrimSpace(b.String())
}

// renderText writes the text under n. Line breaks and block elements become
// newlines and table cells are tab separated, so labeled rules still anchor
// on line starts.
func renderText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Head:
			return
		case atom.Br:
			b.WriteString("\n")
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(b, c)
	}
	if n.Type == html.ElementNode && (n.DataAtom == atom.Td || n.DataAtom == atom.Th) {
		b.WriteString("\t")
	}
	if block {
		b.WriteString("\n")
	}
}
