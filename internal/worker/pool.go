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

// Package worker runs the goroutines that pull inbound jobs off the queue
// and hand them to the orchestrator.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/leasehub/ingestion/internal/apperr"
	"github.com/leasehub/ingestion/internal/ingest"
	"github.com/leasehub/ingestion/internal/models"
)

// errorBackoff is how long a worker waits after the queue itself fails.
const errorBackoff = time.Second

// Source is the job queue.
type Source interface {
	Next(ctx context.Context) (*models.Job, error)
	Requeue(ctx context.Context, job *models.Job) error
	DeadLetter(ctx context.Context, job *models.Job, reason error) error
}

// Ingester processes one decoded request.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// PoolConfig holds the dependencies for creating a Pool.
type PoolConfig struct {
	Source     Source
	Ingester   Ingester
	Workers    int
	MaxRetries int
}

// Pool is a fixed set of workers sharing one queue.
type Pool struct {
	source     Source
	ingester   Ingester
	workers    int
	maxRetries int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool. At least one worker runs.
func NewPool(cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		source:     cfg.Source,
		ingester:   cfg.Ingester,
		workers:    workers,
		maxRetries: cfg.MaxRetries,
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is
// called.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	slog.Info("worker pool started", "workers", p.workers)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("queue read failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}

		p.Handle(ctx, job)
	}
}

// Handle decodes and ingests one job. Failures that can succeed later are
// requeued until the retry budget is spent. Everything else goes to the
// dead-letter list.
func (p *Pool) Handle(ctx context.Context, job *models.Job) {
	req, err := DecodeJob(job)
	if err != nil {
		slog.Error("undecodable job", "job_id", job.ID, "channel", string(job.Channel), "error", err)
		p.deadLetter(ctx, job, err)
		return
	}

	res, err := p.ingester.Ingest(ctx, req)
	if err == nil {
		if res != nil && res.Communication != nil {
			slog.Debug("job processed", "job_id", job.ID, "communication_id", res.Communication.ID)
		}
		return
	}

	if !retryable(err) {
		slog.Error("job rejected", "job_id", job.ID, "channel", string(job.Channel), "error", err)
		p.deadLetter(ctx, job, err)
		return
	}
	if job.Retries >= p.maxRetries {
		slog.Error("job retries exhausted", "job_id", job.ID, "retries", job.Retries, "error", err)
		p.deadLetter(ctx, job, err)
		return
	}

	slog.Warn("job failed, requeueing", "job_id", job.ID, "retries", job.Retries, "error", err)
	if rqErr := p.source.Requeue(ctx, job); rqErr != nil {
		slog.Error("requeue failed, dead-lettering", "job_id", job.ID, "error", rqErr)
		p.deadLetter(ctx, job, fmt.Errorf("requeue: %w (after %w)", rqErr, err))
	}
}

func (p *Pool) deadLetter(ctx context.Context, job *models.Job, reason error) {
	if err := p.source.DeadLetter(ctx, job, reason); err != nil {
		slog.Error("dead-letter failed", "job_id", job.ID, "error", err)
	}
}

// retryable reports whether a redelivery could succeed. Client-side
// failures (validation, no-retry) never will.
func retryable(err error) bool {
	if apperr.IsNoRetry(err) {
		return false
	}
	return apperr.StatusOf(err) >= http.StatusInternalServerError
}
