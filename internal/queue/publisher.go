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

// Package queue moves inbound jobs through Redis lists and broadcasts party
// events over Redis pub/sub. Webhooks enqueue with LPUSH and workers take
// jobs with BRPOP, so jobs are consumed in arrival order.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leasehub/ingestion/internal/models"
)

// Publisher pushes jobs onto the inbound queue and events onto the bus.
type Publisher struct {
	rdb           *redis.Client
	queueName     string
	eventsChannel string
}

// NewPublisher creates a new Redis publisher targeting the specified queue
// and events channel.
func NewPublisher(rdb *redis.Client, queueName, eventsChannel string) *Publisher {
	return &Publisher{
		rdb:           rdb,
		queueName:     queueName,
		eventsChannel: eventsChannel,
	}
}

// envelope wraps a job for Redis transport.
type envelope struct {
	Body            string         `json:"body"`
	ContentEncoding string         `json:"content-encoding"`
	ContentType     string         `json:"content-type"`
	Headers         map[string]any `json:"headers"`
}

// encodeJob serialises a job into its transport envelope.
func encodeJob(job *models.Job) (string, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	msg := envelope{
		Body:            string(body),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: map[string]any{
			"id":      job.ID,
			"channel": string(job.Channel),
			"retries": job.Retries,
		},
	}
	out, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(out), nil
}

// decodeJob reverses encodeJob.
func decodeJob(raw string) (*models.Job, error) {
	var msg envelope
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// PublishJob enqueues an inbound job. ID and ReceivedAt are filled in when
// empty.
func (p *Publisher) PublishJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.ReceivedAt.IsZero() {
		job.ReceivedAt = time.Now().UTC()
	}

	msg, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := p.rdb.LPush(ctx, p.queueName, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published inbound job",
		"job_id", job.ID,
		"channel", job.Channel,
		"tenant_id", job.TenantID,
		"queue", p.queueName,
	)
	return nil
}

// PublishEvent broadcasts a party event. Subscribers that are not
// listening miss it; durable bookkeeping lives in the party_events table.
func (p *Publisher) PublishEvent(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.PublishedAt.IsZero() {
		n.PublishedAt = time.Now().UTC()
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	receivers, err := p.rdb.Publish(ctx, p.eventsChannel, body).Result()
	if err != nil {
		return fmt.Errorf("redis PUBLISH: %w", err)
	}

	slog.Debug("published party event",
		"event", n.Event,
		"communication_id", n.CommunicationID,
		"receivers", receivers,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
