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

// Package qualification maps free-text survey answers found in lead emails
// onto the fixed qualification enumerations.
package qualification

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/leasehub/ingestion/internal/models"
)

// Raw question keys produced by providers.
const (
	KeyNumBedrooms  = "numBedrooms"
	KeyMoveInDate   = "moveInDate"
	KeyGroupProfile = "groupProfile"
)

// option is one enumeration value and the labels that select it.
type option struct {
	key    string
	labels []string
}

var bedroomOptions = []option{
	{"STUDIO", []string{"studio", "studio apartment"}},
	{"ONE_BED", []string{"1 bed", "1 beds", "1 bedroom", "one bed", "one bedroom", "1br", "1 br"}},
	{"TWO_BEDS", []string{"2 beds", "2 bedrooms", "two beds", "two bedrooms", "2br", "2 br"}},
	{"THREE_BEDS", []string{"3 beds", "3 bedrooms", "three beds", "three bedrooms", "3br", "3 br"}},
	{"FOUR_PLUS_BEDS", []string{"4+ beds", "4+ bedrooms", "4 beds", "4 bedrooms", "4 or more bedrooms", "four plus bedrooms", "4+"}},
}

var moveInOptions = []option{
	{"NEXT_4_WEEKS", []string{"next 4 weeks", "within 4 weeks", "less than 4 weeks", "asap"}},
	{"NEXT_2_MONTHS", []string{"next 2 months", "next two months", "1-2 months", "within 2 months"}},
	{"NEXT_4_MONTHS", []string{"next 4 months", "next four months", "2-4 months", "within 4 months"}},
	{"BEYOND_4_MONTHS", []string{"beyond 4 months", "more than 4 months", "4+ months"}},
	{"I_DONT_KNOW", []string{"i don't know", "i dont know", "not sure", "unknown"}},
}

var groupProfileOptions = []option{
	{"FAIR_MARKET", []string{"fair market", "individual", "roommates"}},
	{"STUDENTS", []string{"student", "students"}},
	{"CORPORATE", []string{"corporate", "corporate housing"}},
	{"EMPLOYEE", []string{"employee"}},
	{"SECTION8", []string{"section 8", "section8", "housing voucher"}},
	{"GOOD_SAMARITAN", []string{"good samaritan"}},
	{"NOT_YET_DETERMINED", []string{"not yet determined", "undecided"}},
}

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	separatorRe = regexp.MustCompile(`\s*(?:,|;|/|\band\b|\bor\b)\s*`)
)

// Map converts raw answers into a Qualification. Unknown keys are ignored
// and unmatched values are dropped with a warning.
func Map(ctx context.Context, raw map[string]string) models.Qualification {
	var q models.Qualification

	if v, ok := raw[KeyNumBedrooms]; ok {
		seen := make(map[string]bool)
		parts := []string{v}
		if match(bedroomOptions, v) == "" {
			parts = separatorRe.Split(v, -1)
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			key := match(bedroomOptions, part)
			if key == "" {
				slog.WarnContext(ctx, "unmatched qualification answer",
					"question", KeyNumBedrooms,
					"value", part,
				)
				continue
			}
			if !seen[key] {
				seen[key] = true
				q.NumBedrooms = append(q.NumBedrooms, key)
			}
		}
	}

	if v, ok := raw[KeyMoveInDate]; ok {
		q.MoveInTime = single(ctx, KeyMoveInDate, moveInOptions, v)
	}

	if v, ok := raw[KeyGroupProfile]; ok {
		q.GroupProfile = single(ctx, KeyGroupProfile, groupProfileOptions, v)
	}

	return q
}

func single(ctx context.Context, question string, options []option, value string) string {
	if key := match(options, value); key != "" {
		return key
	}
	slog.WarnContext(ctx, "unmatched qualification answer",
		"question", question,
		"value", value,
	)
	return ""
}

// match returns the first option whose key or label equals value.
func match(options []option, value string) string {
	v := normalize(value)
	if v == "" {
		return ""
	}
	for _, o := range options {
		if v == strings.ToLower(o.key) || v == strings.ToLower(strings.ReplaceAll(o.key, "_", " ")) {
			return o.key
		}
		for _, l := range o.labels {
			if v == l {
				return o.key
			}
		}
	}
	return ""
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".!")
	s = strings.ReplaceAll(s, "’", "'")
	return spaceRe.ReplaceAllString(s, " ")
}
