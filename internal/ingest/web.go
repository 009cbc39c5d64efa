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
	"context"
	"fmt"

	"github.com/leasehub/ingestion/internal/apperr"
	"github.com/leasehub/ingestion/internal/config"
	"github.com/leasehub/ingestion/internal/models"
	"github.com/leasehub/ingestion/internal/store"
)

// processWeb saves a message posted to an existing party through the
// public API. Web messages share one thread per party.
func (o *Orchestrator) processWeb(ctx context.Context, repo store.Repository, tenant config.TenantConfig, partyID string, web *models.WebMessage) (*Result, error) {
	party, err := o.deps.Leads.GetParty(ctx, partyID)
	if err != nil {
		return nil, fmt.Errorf("load party: %w", err)
	}
	if party == nil {
		return nil, apperr.NoRetry(fmt.Sprintf("party %s not found", partyID))
	}

	comm := o.entry(tenant, models.MessageTypeWeb, ThreadID(models.MessageTypeWeb, []string{partyID}), party, true)
	comm.Parties = []string{partyID}
	comm.Message = models.Message{
		Source:         web.Source,
		Text:           web.Text,
		RawMessageData: web.RawMessageData,
	}
	if err := repo.InsertCommunication(ctx, comm); err != nil {
		return nil, err
	}

	res := result(comm, party)
	res.PartyID = partyID
	return res, nil
}
