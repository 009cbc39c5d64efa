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

package worker

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/leasehub/ingestion/internal/ingest"
	"github.com/leasehub/ingestion/internal/mailparse"
	"github.com/leasehub/ingestion/internal/models"
)

// webPayload is the queued form of a public API message.
type webPayload struct {
	PartyID string            `json:"partyId"`
	Message models.WebMessage `json:"message"`
}

// DecodeJob turns a queued job into an ingestion request. Email payloads
// are either the gateway's JSON form or a raw RFC 822 message.
func DecodeJob(job *models.Job) (ingest.Request, error) {
	req := ingest.Request{TenantID: job.TenantID, Channel: job.Channel}
	payload := bytes.TrimSpace(job.Payload)
	if len(payload) == 0 {
		return req, fmt.Errorf("job %s has an empty payload", job.ID)
	}

	switch job.Channel {
	case models.MessageTypeEmail:
		var (
			msg *models.InboundMessage
			err error
		)
		if payload[0] == '{' {
			msg, err = mailparse.FromJSON(payload)
		} else {
			msg, err = mailparse.ParseMIME(bytes.NewReader(payload))
		}
		if err != nil {
			return req, fmt.Errorf("decode email: %w", err)
		}
		req.Email = msg

	case models.MessageTypeSMS:
		var sms models.SMSMessage
		raw, err := decodeWithRaw(payload, &sms)
		if err != nil {
			return req, fmt.Errorf("decode sms: %w", err)
		}
		sms.Raw = raw
		req.SMS = &sms

	case models.MessageTypeCall:
		var call models.CallMessage
		raw, err := decodeWithRaw(payload, &call)
		if err != nil {
			return req, fmt.Errorf("decode call: %w", err)
		}
		call.Raw = raw
		req.Call = &call

	case models.MessageTypeWeb:
		var web webPayload
		if err := json.Unmarshal(payload, &web); err != nil {
			return req, fmt.Errorf("decode web message: %w", err)
		}
		req.PartyID = web.PartyID
		req.Web = &web.Message

	default:
		return req, fmt.Errorf("unknown channel %q", job.Channel)
	}
	return req, nil
}

// decodeWithRaw decodes payload into v and also returns it as a generic map
// so fields the struct does not name are kept.
func decodeWithRaw(payload []byte, v any) (map[string]any, error) {
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
