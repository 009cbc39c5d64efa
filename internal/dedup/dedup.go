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

// Package dedup drops inbound events the gateway or carrier delivered more
// than once, using a Redis key with TTL per channel and message id.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leasehub/ingestion/internal/models"
)

const (
	// DefaultTTL is how long we remember a seen message id.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "ingest:seen:"
)

// Filter tracks which inbound message ids have already been accepted.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis. A non-positive ttl
// takes DefaultTTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		rdb: rdb,
		ttl: ttl,
	}
}

// Key builds the Redis key for a tenant, channel and message id.
func Key(tenantID string, channel models.MessageType, messageID string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, tenantID, strings.ToLower(string(channel)), strings.TrimSpace(messageID))
}

// IsNew returns true if the message has NOT been seen before.
// If true, the message is marked as seen atomically (SETNX). Messages
// without an id are always new.
func (f *Filter) IsNew(ctx context.Context, tenantID string, channel models.MessageType, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return true, nil
	}

	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := f.rdb.SetNX(ctx, Key(tenantID, channel, messageID), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}

// Forget removes the mark so a message can be accepted again, used when
// enqueueing fails after the mark was set.
func (f *Filter) Forget(ctx context.Context, tenantID string, channel models.MessageType, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return nil
	}
	if err := f.rdb.Del(ctx, Key(tenantID, channel, messageID)).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
