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

// Package leads is the HTTP client for the lead/party service, which owns
// party and person records and decides whether an inbound contact is a new
// lead.
package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/leasehub/ingestion/internal/apperr"
	"github.com/leasehub/ingestion/internal/config"
	"github.com/leasehub/ingestion/internal/models"
)

// Client calls the lead service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
}

// NewClient creates a lead service client using httpClient.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	cbSettings := gobreaker.Settings{
		Name:        "lead-service",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		// Rejections of our input say nothing about the service's health.
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.IsNoRetry(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// NewFromConfig builds a client authenticated with OAuth2 client
// credentials. Without a token URL the client is unauthenticated.
func NewFromConfig(ctx context.Context, cfg config.LeadServiceConfig) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.TokenURL != "" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		httpClient = creds.Client(ctx)
		httpClient.Timeout = cfg.Timeout
	}
	return NewClient(httpClient, cfg.URL)
}

type resolveRequest struct {
	PersonData models.PersonData  `json:"personData"`
	Context    models.LeadContext `json:"context"`
}

// CreateOrResolveLead creates a lead for person, or attaches to the party
// that already owns the contact.
func (c *Client) CreateOrResolveLead(ctx context.Context, person models.PersonData, lctx models.LeadContext) (*models.LeadResult, error) {
	body, err := json.Marshal(resolveRequest{PersonData: person, Context: lctx})
	if err != nil {
		return nil, fmt.Errorf("marshal lead request: %w", err)
	}

	u := fmt.Sprintf("%s/tenants/%s/leads", c.baseURL, url.PathEscape(lctx.TenantID))
	var result models.LeadResult
	found, err := c.do(ctx, http.MethodPost, u, body, &result)
	if err != nil {
		return nil, fmt.Errorf("resolve lead: %w", err)
	}
	if !found {
		return nil, apperr.NoRetry(fmt.Sprintf("tenant %s unknown to lead service", lctx.TenantID))
	}
	if len(result.PartyIDs) == 0 {
		return nil, fmt.Errorf("resolve lead: lead service returned no parties")
	}
	return &result, nil
}

// GetParty returns the members of a party. It returns nil, nil when the
// party does not exist.
func (c *Client) GetParty(ctx context.Context, partyID string) (*models.LeadResult, error) {
	u := fmt.Sprintf("%s/parties/%s", c.baseURL, url.PathEscape(partyID))
	var result models.LeadResult
	found, err := c.do(ctx, http.MethodGet, u, nil, &result)
	if err != nil {
		return nil, fmt.Errorf("get party: %w", err)
	}
	if !found {
		slog.Warn("party not found", "party_id", partyID)
		return nil, nil
	}
	if len(result.PartyIDs) == 0 {
		result.PartyIDs = []string{partyID}
	}
	return &result, nil
}

// do sends a request through the circuit breaker and decodes a 2xx body
// into out. found is false on 404. Other 4xx answers are non-retryable.
func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) (found bool, err error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return false, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return false, fmt.Errorf("call lead service: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return false, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return false, fmt.Errorf("lead service returned HTTP %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return false, apperr.NoRetry(fmt.Sprintf("lead service rejected request: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode lead service response: %w", err)
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}
