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

// LeaseHub inbound ingestion service.
//
// Entry point for the ingestion service. It:
//  1. Loads multi-tenant configuration from config.yaml
//  2. Connects to PostgreSQL and Redis
//  3. Builds the ILS provider registry, attachment pipeline and lead client
//  4. Starts the worker pool draining the inbound job queue
//  5. Serves the inbound, public API and health endpoints
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/leasehub/ingestion/internal/attachment"
	"github.com/leasehub/ingestion/internal/config"
	"github.com/leasehub/ingestion/internal/dedup"
	"github.com/leasehub/ingestion/internal/ingest"
	"github.com/leasehub/ingestion/internal/leads"
	"github.com/leasehub/ingestion/internal/loopguard"
	"github.com/leasehub/ingestion/internal/provider"
	"github.com/leasehub/ingestion/internal/queue"
	"github.com/leasehub/ingestion/internal/store"
	"github.com/leasehub/ingestion/internal/webhook"
	"github.com/leasehub/ingestion/internal/worker"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting LeaseHub ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tenants", len(cfg.Tenants),
		"workers", cfg.Workers,
		"duplicate_window", cfg.DuplicateEmailWindow,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.JobsQueue, cfg.EventsChannel)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	consumer := queue.NewConsumer(rdb, cfg.JobsQueue, cfg.DeadLetterQueue)
	filter := dedup.NewFilter(rdb, cfg.DedupTTL)

	// --- Stores (Postgres) ---
	commStore, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise communication store", "error", err)
		os.Exit(1)
	}

	guardStore, err := loopguard.NewPGStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise request tracking store", "error", err)
		os.Exit(1)
	}
	guard := loopguard.New(guardStore, loopguard.Config{
		Window: cfg.LoopGuard.Window,
		Limit:  cfg.LoopGuard.Limit,
	})

	// --- Ingestion ---
	pipeline := attachment.NewPipeline(
		attachment.NewFileStorage(cfg.Attachments.StorageRoot),
		attachment.Options{
			Extensions:      cfg.Attachments.Extensions,
			ContentTypes:    cfg.Attachments.ContentTypes,
			InlineImageSize: cfg.Attachments.InlineImageSize,
		},
	)

	registry := provider.Default()
	slog.Info("ILS providers registered", "providers", registry.Names())

	orchestrator, err := ingest.New(ingest.Config{
		Tenants:              cfg.Tenants,
		Blocklist:            cfg.Blocklist,
		AnonymousILSPatterns: cfg.AnonymousILSPatterns,
		DuplicateWindow:      cfg.DuplicateEmailWindow,
	}, ingest.Deps{
		Tx:          commStore,
		Leads:       leads.NewFromConfig(ctx, cfg.LeadService),
		Attachments: pipeline,
		Notifier:    publisher,
		Classifier:  registry,
	})
	if err != nil {
		slog.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	// --- Worker Pool ---
	pool := worker.NewPool(worker.PoolConfig{
		Source:     consumer,
		Ingester:   orchestrator,
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
	})
	pool.Start(ctx)

	// --- HTTP Server ---
	handler := webhook.NewHandler(webhook.HandlerConfig{
		Tenants:   cfg.Tenants,
		Publisher: publisher,
		Dedup:     filter,
		Ingester:  orchestrator,
		Guard:     guard,
		Health: map[string]webhook.Pinger{
			"postgres": commStore,
			"redis":    publisher,
		},
	})
	ready, err := webhook.Serve(ctx, cfg.Port, handler.Routes())
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("ingestion service ready", "port", cfg.Port)

	// --- Graceful Shutdown ---
	<-ctx.Done()
	slog.Info("received shutdown signal")

	pool.Stop()
	slog.Info("ingestion service stopped")
}
