package redis

// Package redis provides a Redis-backed key/value store for persisted sessions.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dark4shadow/soft-animal-platform/internal/ports"
)

var _ ports.KeyValueStore = (*KVStore)(nil)

// KVStore stores session values as plain Redis strings under "<scope>:<key>".
// Values never expire on their own; the session store owns their lifetime.
type KVStore struct {
	client redis.UniversalClient
	prefix string
}

// NewKVStore creates a Redis KV store for the given origin scope.
func NewKVStore(client redis.UniversalClient, scope string) *KVStore {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "soft-animal"
	}
	return &KVStore{
		client: client,
		prefix: scope + ":",
	}
}

func (s *KVStore) key(k string) string { return s.prefix + k }

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

// SetAll writes every entry inside MULTI/EXEC so readers never see a partial pair.
func (s *KVStore) SetAll(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *KVStore) DeleteAll(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.key(k))
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
