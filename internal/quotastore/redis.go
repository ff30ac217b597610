// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package quotastore shares credential quota snapshots between datacat
// processes through Redis. Each credential is one hash keyed by its
// fingerprint; the hash expires an hour after the quota window resets.
package quotastore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sirseerhq/datacat/internal/tokenpool"
)

const (
	fieldRemaining = "remaining"
	fieldResetAt   = "reset_at"
	fieldUpdatedAt = "updated_at"

	// DefaultKeyPrefix namespaces the hashes.
	DefaultKeyPrefix = "datacat:quota"

	retainAfterReset = time.Hour
)

// RedisStore implements tokenpool.Store.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	logger zerolog.Logger
}

var _ tokenpool.Store = (*RedisStore)(nil)

// NewRedisStore creates a store using an existing client.
func NewRedisStore(client *redis.Client, prefix string, logger zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		redis:  client,
		prefix: strings.TrimSuffix(prefix, ":"),
		logger: logger,
	}
}

// Connect dials Redis and verifies the connection with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) key(fingerprint string) string {
	return s.prefix + ":" + fingerprint
}

// Load returns the stored snapshot for a credential. ok is false when the
// store has nothing for it.
func (s *RedisStore) Load(ctx context.Context, fingerprint string) (tokenpool.State, bool, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(fingerprint)).Result()
	if err != nil {
		return tokenpool.State{}, false, fmt.Errorf("load quota snapshot: %w", err)
	}
	if len(fields) == 0 {
		return tokenpool.State{}, false, nil
	}

	st, err := parseState(fields)
	if err != nil {
		return tokenpool.State{}, false, fmt.Errorf("parse quota snapshot %s: %w", fingerprint, err)
	}
	s.logger.Debug().Str("credential", fingerprint).Int("remaining", st.Remaining).Msg("loaded quota snapshot")
	return st, true, nil
}

// Save writes the snapshot and refreshes its expiry in one round trip.
func (s *RedisStore) Save(ctx context.Context, fingerprint string, st tokenpool.State) error {
	key := s.key(fingerprint)

	pipe := s.redis.Pipeline()
	pipe.HSet(ctx, key, formatState(st))
	if !st.ResetAt.IsZero() {
		pipe.ExpireAt(ctx, key, st.ResetAt.Add(retainAfterReset))
	} else {
		pipe.Expire(ctx, key, retainAfterReset)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quota snapshot in redis: %w", err)
	}
	return nil
}

func formatState(st tokenpool.State) map[string]any {
	var reset int64
	if !st.ResetAt.IsZero() {
		reset = st.ResetAt.Unix()
	}
	return map[string]any{
		fieldRemaining: st.Remaining,
		fieldResetAt:   reset,
		fieldUpdatedAt: st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseState(fields map[string]string) (tokenpool.State, error) {
	st := tokenpool.State{Remaining: tokenpool.UnknownRemaining}

	remaining, err := strconv.Atoi(fields[fieldRemaining])
	if err != nil {
		return st, fmt.Errorf("remaining: %w", err)
	}
	st.Remaining = remaining

	if v := fields[fieldResetAt]; v != "" && v != "0" {
		unix, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return st, fmt.Errorf("reset_at: %w", err)
		}
		st.ResetAt = time.Unix(unix, 0)
	}

	if v := fields[fieldUpdatedAt]; v != "" {
		updated, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return st, fmt.Errorf("updated_at: %w", err)
		}
		st.UpdatedAt = updated
	}
	return st, nil
}
