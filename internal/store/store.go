// Package store holds the key-value backends the repositories persist JSON
// records into. A backend instance covers one namespace; keys passed in and
// returned by List are namespace-relative.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: key not found")

// Store is the get/put/list contract. Writes to a single key are last-write-wins;
// there is no compare-and-swap.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	// List returns every key in the namespace, sorted.
	List(ctx context.Context) ([]string, error)
}

// HealthChecker is implemented by backends that can probe their connection.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Ping runs the backend's health check when it has one.
func Ping(ctx context.Context, s Store) error {
	if hc, ok := s.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
