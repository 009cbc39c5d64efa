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

// Package store provides the Postgres-backed persistence for inbound
// communications, party events and dropped spam.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leasehub/ingestion/internal/models"
)

// ErrDuplicateMessage is returned by InsertCommunication when the tenant
// already has a communication with the same message id.
var ErrDuplicateMessage = errors.New("duplicate message id")

// Repository is the set of writes and reads one ingestion performs inside
// its transaction.
type Repository interface {
	InsertCommunication(ctx context.Context, c *models.Communication) error
	FindByMessageID(ctx context.Context, tenantID, messageID string) (*models.Communication, error)
	FindByID(ctx context.Context, id string) (*models.Communication, error)
	LastCommunicationInThread(ctx context.Context, threadID string) (*models.Communication, error)
	UpdateCommunicationMessage(ctx context.Context, id string, msg models.Message) error
	InsertPartyEvent(ctx context.Context, e *models.PartyEvent) error
	InsertSpam(ctx context.Context, s *models.SpamCommunication) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the pool and hands out transactional repositories.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store backed by the given Postgres pool.
// It ensures the tables exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure communication schema: %w", err)
	}
	slog.Info("communication store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS communications (
			id          TEXT PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			type        TEXT NOT NULL,
			direction   TEXT NOT NULL,
			thread_id   TEXT NOT NULL,
			persons     TEXT[] DEFAULT '{}',
			parties     TEXT[] DEFAULT '{}',
			teams       TEXT[] DEFAULT '{}',
			message     JSONB NOT NULL DEFAULT '{}',
			category    TEXT NOT NULL,
			unread      BOOLEAN DEFAULT TRUE,
			message_id  TEXT DEFAULT '',
			program_id  TEXT DEFAULT '',
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_comms_message_id
			ON communications(tenant_id, message_id) WHERE message_id <> '';
		CREATE INDEX IF NOT EXISTS idx_comms_thread ON communications(thread_id, created_at);

		CREATE TABLE IF NOT EXISTS party_events (
			id          TEXT PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			party_id    TEXT NOT NULL,
			event       TEXT NOT NULL,
			metadata    JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_party_events_party ON party_events(party_id, created_at);

		CREATE TABLE IF NOT EXISTS spam_communications (
			id           TEXT PRIMARY KEY,
			tenant_id    TEXT NOT NULL,
			type         TEXT NOT NULL,
			from_address TEXT NOT NULL,
			message      JSONB NOT NULL DEFAULT '{}',
			created_at   TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// InTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Warn("rollback failed", "error", err)
		}
	}()

	if err := fn(ctx, &repo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Repo returns a non-transactional repository over the pool.
func (s *Store) Repo() Repository {
	return &repo{q: s.pool}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type repo struct {
	q querier
}

const communicationColumns = `
	id, tenant_id, type, direction, thread_id, persons, parties, teams,
	message, category, unread, message_id, program_id, created_at, updated_at`

// InsertCommunication inserts c. Timestamps default to now.
func (r *repo) InsertCommunication(ctx context.Context, c *models.Communication) error {
	msg, err := json.Marshal(c.Message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO communications (`+communicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tenant_id, message_id) WHERE message_id <> '' DO NOTHING
	`, c.ID, c.TenantID, string(c.Type), string(c.Direction), c.ThreadID,
		nonNil(c.Persons), nonNil(c.Parties), nonNil(c.Teams),
		msg, c.Category, c.Unread, c.MessageID, c.ProgramID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert communication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateMessage
	}
	return nil
}

// FindByMessageID returns the tenant's communication with messageID, or
// nil when there is none.
func (r *repo) FindByMessageID(ctx context.Context, tenantID, messageID string) (*models.Communication, error) {
	if messageID == "" {
		return nil, nil
	}
	row := r.q.QueryRow(ctx, `
		SELECT `+communicationColumns+`
		FROM communications
		WHERE tenant_id = $1 AND message_id = $2
	`, tenantID, messageID)
	return scanCommunication(row)
}

// FindByID returns the communication with id, or nil.
func (r *repo) FindByID(ctx context.Context, id string) (*models.Communication, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+communicationColumns+`
		FROM communications
		WHERE id = $1
	`, id)
	return scanCommunication(row)
}

// LastCommunicationInThread returns the newest communication in a thread.
func (r *repo) LastCommunicationInThread(ctx context.Context, threadID string) (*models.Communication, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+communicationColumns+`
		FROM communications
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, threadID)
	return scanCommunication(row)
}

// UpdateCommunicationMessage replaces a communication's message payload.
func (r *repo) UpdateCommunicationMessage(ctx context.Context, id string, msg models.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		UPDATE communications
		SET message = $1, unread = TRUE, updated_at = NOW()
		WHERE id = $2
	`, raw, id)
	if err != nil {
		return fmt.Errorf("update communication: %w", err)
	}
	return nil
}

// InsertPartyEvent saves a party event.
func (r *repo) InsertPartyEvent(ctx context.Context, e *models.PartyEvent) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO party_events (id, tenant_id, party_id, event, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.TenantID, e.PartyID, e.Event, meta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert party event: %w", err)
	}
	return nil
}

// InsertSpam saves a blocked inbound message.
func (r *repo) InsertSpam(ctx context.Context, s *models.SpamCommunication) error {
	msg, err := json.Marshal(s.Message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO spam_communications (id, tenant_id, type, from_address, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.TenantID, string(s.Type), s.From, msg, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert spam: %w", err)
	}
	return nil
}

// scanCommunication scans a single row into a Communication.
func scanCommunication(row pgx.Row) (*models.Communication, error) {
	var (
		c        models.Communication
		typ, dir string
		raw      []byte
	)
	err := row.Scan(
		&c.ID, &c.TenantID, &typ, &dir, &c.ThreadID, &c.Persons, &c.Parties, &c.Teams,
		&raw, &c.Category, &c.Unread, &c.MessageID, &c.ProgramID, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Type = models.MessageType(typ)
	c.Direction = models.Direction(dir)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Message); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
	}
	return &c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
