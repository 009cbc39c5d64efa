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

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leasehub/ingestion/internal/models"
)

// Consumer takes jobs off the inbound queue.
type Consumer struct {
	rdb            *redis.Client
	queueName      string
	deadLetterName string
	pollTimeout    time.Duration
}

// NewConsumer creates a consumer for queueName. Failed jobs go to
// deadLetterName.
func NewConsumer(rdb *redis.Client, queueName, deadLetterName string) *Consumer {
	return &Consumer{
		rdb:            rdb,
		queueName:      queueName,
		deadLetterName: deadLetterName,
		pollTimeout:    5 * time.Second,
	}
}

// Next blocks until a job is available, the poll timeout passes or ctx is
// done. It returns nil, nil on timeout so callers can check for shutdown.
func (c *Consumer) Next(ctx context.Context) (*models.Job, error) {
	res, err := c.rdb.BRPop(ctx, c.pollTimeout, c.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis BRPOP: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("redis BRPOP: unexpected reply length %d", len(res))
	}

	job, err := decodeJob(res[1])
	if err != nil {
		slog.Error("dropping undecodable job", "queue", c.queueName, "error", err)
		if dlErr := c.rdb.LPush(ctx, c.deadLetterName, res[1]).Err(); dlErr != nil {
			slog.Error("failed to dead-letter undecodable job", "error", dlErr)
		}
		return nil, nil
	}
	return job, nil
}

// Requeue puts a failed job back with its retry count incremented.
func (c *Consumer) Requeue(ctx context.Context, job *models.Job) error {
	job.Retries++
	msg, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := c.rdb.LPush(ctx, c.queueName, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH requeue: %w", err)
	}
	return nil
}

// deadLetter is the record kept for a job that will not be retried.
type deadLetter struct {
	Job      *models.Job `json:"job"`
	Error    string      `json:"error"`
	FailedAt time.Time   `json:"failed_at"`
}

// DeadLetter parks a job with the reason it failed.
func (c *Consumer) DeadLetter(ctx context.Context, job *models.Job, reason error) error {
	rec := deadLetter{Job: job, FailedAt: time.Now().UTC()}
	if reason != nil {
		rec.Error = reason.Error()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := c.rdb.LPush(ctx, c.deadLetterName, body).Err(); err != nil {
		return fmt.Errorf("redis LPUSH dead letter: %w", err)
	}
	slog.Warn("job dead-lettered",
		"job_id", job.ID,
		"channel", job.Channel,
		"retries", job.Retries,
		"error", rec.Error,
	)
	return nil
}

// ReplayDeadLetters moves up to max dead-lettered jobs back onto the inbound
// queue with their retry count reset. Entries that are not dead-letter
// records are left in place. It returns how many jobs were replayed.
func (c *Consumer) ReplayDeadLetters(ctx context.Context, max int) (int, error) {
	replayed := 0
	for replayed < max {
		raw, err := c.rdb.RPop(ctx, c.deadLetterName).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return replayed, fmt.Errorf("redis RPOP dead letter: %w", err)
		}

		job, err := replayable(raw)
		if err != nil {
			slog.Warn("keeping unreplayable dead letter", "error", err)
			if err := c.rdb.LPush(ctx, c.deadLetterName, raw).Err(); err != nil {
				return replayed, fmt.Errorf("redis LPUSH dead letter: %w", err)
			}
			break
		}

		msg, err := encodeJob(job)
		if err != nil {
			return replayed, err
		}
		if err := c.rdb.LPush(ctx, c.queueName, msg).Err(); err != nil {
			return replayed, fmt.Errorf("redis LPUSH replay: %w", err)
		}
		slog.Info("replayed dead-lettered job", "job_id", job.ID, "channel", job.Channel)
		replayed++
	}
	return replayed, nil
}

// replayable extracts the job from a dead-letter record and resets it.
func replayable(raw string) (*models.Job, error) {
	var rec deadLetter
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal dead letter: %w", err)
	}
	if rec.Job == nil {
		return nil, errors.New("dead letter has no job")
	}
	rec.Job.Retries = 0
	return rec.Job, nil
}

// Ping checks the Redis connection.
func (c *Consumer) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
