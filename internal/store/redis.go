package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"balloon-service/internal/client"
	"balloon-service/internal/util"
)

const scanBatchSize = 500

// RedisStore maps a namespace onto a Redis key prefix.
type RedisStore struct {
	client *client.RedisClient
	prefix string
}

func NewRedisStore(c *client.RedisClient, prefix string) *RedisStore {
	return &RedisStore{client: c, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		util.Error("Redis get failed", util.String("key", s.prefix+key), util.ErrorField(err))
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0); err != nil {
		util.Error("Redis set failed", util.String("key", s.prefix+key), util.ErrorField(err))
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// List scans the prefix. SCAN can repeat keys across pages, so results are
// de-duplicated.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	raw, err := s.client.ScanAll(ctx, escapeGlob(s.prefix)+"*", scanBatchSize)
	if err != nil {
		util.Error("Redis scan failed", util.String("prefix", s.prefix), util.ErrorField(err))
		return nil, fmt.Errorf("redis scan %s: %w", s.prefix, err)
	}

	seen := make(map[string]struct{}, len(raw))
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.TrimPrefix(k, s.prefix)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
