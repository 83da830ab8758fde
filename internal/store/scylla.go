package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gocql/gocql"

	"balloon-service/internal/client"
	"balloon-service/internal/util"
)

// ScyllaStore keeps one partition per namespace in the key-value table.
type ScyllaStore struct {
	client    *client.ScyllaClient
	namespace string
}

func NewScyllaStore(c *client.ScyllaClient, namespace string) *ScyllaStore {
	return &ScyllaStore{client: c, namespace: namespace}
}

func (s *ScyllaStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	stmt := fmt.Sprintf(`SELECT value FROM %s WHERE namespace = ? AND key = ?`, s.client.Table())
	err := s.client.Query(ctx, stmt, s.namespace, key).Scan(&value)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		util.Error("Scylla get failed",
			util.String("namespace", s.namespace),
			util.String("key", key),
			util.ErrorField(err))
		return "", fmt.Errorf("scylla get %s: %w", key, err)
	}
	return value, nil
}

func (s *ScyllaStore) Put(ctx context.Context, key, value string) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (namespace, key, value) VALUES (?, ?, ?)`, s.client.Table())
	if err := s.client.Query(ctx, stmt, s.namespace, key, value).Exec(); err != nil {
		util.Error("Scylla put failed",
			util.String("namespace", s.namespace),
			util.String("key", key),
			util.ErrorField(err))
		return fmt.Errorf("scylla put %s: %w", key, err)
	}
	return nil
}

func (s *ScyllaStore) List(ctx context.Context) ([]string, error) {
	stmt := fmt.Sprintf(`SELECT key FROM %s WHERE namespace = ?`, s.client.Table())
	iter := s.client.Query(ctx, stmt, s.namespace).Iter()

	var (
		keys []string
		key  string
	)
	for iter.Scan(&key) {
		keys = append(keys, key)
	}
	if err := iter.Close(); err != nil {
		util.Error("Scylla list failed", util.String("namespace", s.namespace), util.ErrorField(err))
		return nil, fmt.Errorf("scylla list %s: %w", s.namespace, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *ScyllaStore) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}
