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

package loopguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leasehub/ingestion/internal/models"
)

const (
	// serializationFailure is the SQLSTATE Postgres returns when a
	// serializable transaction must be retried.
	serializationFailure = "40001"

	maxTxAttempts = 5
)

// PGStore keeps request tracking rows in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates the store and ensures the request_tracking table exists.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	s := &PGStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure request tracking schema: %w", err)
	}
	slog.Info("request tracking store initialised")
	return s, nil
}

func (s *PGStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS request_tracking (
			id               UUID PRIMARY KEY,
			party_id         TEXT NOT NULL,
			document_version TEXT NOT NULL,
			session_id       TEXT NOT NULL,
			payload          TEXT NOT NULL,
			checksum         TEXT NOT NULL,
			url_path         TEXT NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_request_tracking_tuple
			ON request_tracking(party_id, checksum, url_path, session_id, created_at);
	`)
	return err
}

// WithSerializableTx runs fn in a SERIALIZABLE transaction. Serialization
// failures are retried a bounded number of times.
func (s *PGStore) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
		slog.WarnContext(ctx, "serialization failure, retrying transaction", "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("serializable transaction failed after %d attempts: %w", maxTxAttempts, err)
}

func (s *PGStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) CountSince(ctx context.Context, key Key, since time.Time) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM request_tracking
		WHERE party_id = $1 AND checksum = $2 AND url_path = $3 AND session_id = $4
		  AND created_at > $5
	`, key.PartyID, key.Checksum, key.URLPath, key.SessionID, since).Scan(&n)
	return n, err
}

func (t pgTx) Insert(ctx context.Context, r *models.RequestTrackingRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO request_tracking
			(id, party_id, document_version, session_id, payload, checksum, url_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.PartyID, r.DocumentVersion, r.SessionID, r.Payload, r.Checksum, r.URLPath, r.CreatedAt)
	return err
}
