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
	"crypto/sha256"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/leasehub/ingestion/internal/config"
	"github.com/leasehub/ingestion/internal/models"
)

// entry stamps the fields every inbound communication shares.
func (o *Orchestrator) entry(tenant config.TenantConfig, typ models.MessageType, threadID string, lead *models.LeadResult, unread bool) *models.Communication {
	now := o.now().UTC()
	return &models.Communication{
		ID:        uuid.NewString(),
		TenantID:  tenant.ID,
		Type:      typ,
		Direction: models.DirectionIn,
		ThreadID:  threadID,
		Persons:   personsOf(lead),
		Parties:   lead.PartyIDs,
		Teams:     mergeTeams(lead.TeamIDs, tenant.Teams),
		Category:  models.CategoryUserCommunication,
		Unread:    unread,
		ProgramID: tenant.ProgramID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func result(comm *models.Communication, lead *models.LeadResult) *Result {
	res := &Result{
		Communication: comm,
		PersonID:      lead.PersonID,
		IsLeadCreated: lead.IsLeadCreated,
	}
	if len(lead.PartyIDs) > 0 {
		res.PartyID = lead.PartyIDs[0]
	}
	return res
}

func personsOf(lead *models.LeadResult) []string {
	if len(lead.PersonIDs) > 0 {
		return lead.PersonIDs
	}
	if lead.PersonID != "" {
		return []string{lead.PersonID}
	}
	return nil
}

func mergeTeams(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, t := range l {
			if t != "" && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// ThreadID derives a stable thread id from the channel and the set of
// persons in the conversation. Order and duplicates in personIDs do not
// matter.
func ThreadID(channel models.MessageType, personIDs []string) string {
	ids := make([]string, 0, len(personIDs))
	seen := make(map[string]bool, len(personIDs))
	for _, id := range personIDs {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	key := string(channel) + ":" + strings.Join(ids, ",")
	return uuid.NewHash(sha256.New(), uuid.Nil, []byte(key), 8).String()
}

// NormalizePhone reduces a North American number to "1" followed by ten
// digits. Other numbers keep their digits. Input without digits yields "".
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 {
		return "1" + digits
	}
	return digits
}

// rawMessage returns the payload as received, falling back to the JSON
// form of the decoded message. The result is a copy.
func rawMessage(raw map[string]any, decoded any) map[string]any {
	out := make(map[string]any, len(raw))
	if len(raw) == 0 {
		data, err := json.Marshal(decoded)
		if err == nil {
			_ = json.Unmarshal(data, &out)
		}
		return out
	}
	for k, v := range raw {
		out[k] = v
	}
	return out
}
