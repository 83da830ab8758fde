package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"balloon-service/internal/models"
	"balloon-service/internal/store"
	"balloon-service/internal/util"
)

// UserStatisticsRepository persists one JSON record per user name.
type UserStatisticsRepository struct {
	store store.Store
}

func NewUserStatisticsRepository(s store.Store) *UserStatisticsRepository {
	return &UserStatisticsRepository{store: s}
}

// Get returns store.ErrNotFound (wrapped) for an unknown user and
// ErrCorruptRecord for an undecodable one.
func (r *UserStatisticsRepository) Get(ctx context.Context, userName string) (*models.UserStatistics, error) {
	raw, err := r.store.Get(ctx, userName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read user statistics: %w", err)
	}

	stats, err := decodeUserStatistics(raw)
	if err != nil {
		util.Error("Failed to parse stored user statistics",
			util.String("user", userName),
			util.ErrorField(err))
		return nil, err
	}
	return stats, nil
}

func (r *UserStatisticsRepository) Put(ctx context.Context, stats *models.UserStatistics) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode user statistics: %w", err)
	}
	if err := r.store.Put(ctx, stats.UserName, string(data)); err != nil {
		util.Error("Failed to write user statistics",
			util.String("user", stats.UserName),
			util.ErrorField(err))
		return fmt.Errorf("failed to write user statistics: %w", err)
	}
	return nil
}

// ListUserNames returns every stored user name in key order.
func (r *UserStatisticsRepository) ListUserNames(ctx context.Context) ([]string, error) {
	keys, err := r.store.List(ctx)
	if err != nil {
		util.Error("Failed to list user statistics", util.ErrorField(err))
		return nil, fmt.Errorf("failed to list user statistics: %w", err)
	}
	return keys, nil
}

func decodeUserStatistics(raw string) (*models.UserStatistics, error) {
	var stats models.UserStatistics
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if stats.UserName == "" {
		return nil, fmt.Errorf("%w: missing userName", ErrCorruptRecord)
	}
	if stats.Hits < 0 || stats.Misses < 0 || stats.Total < 0 {
		return nil, fmt.Errorf("%w: negative counter", ErrCorruptRecord)
	}
	if stats.ViolationFactor < models.MinViolationFactor {
		return nil, fmt.Errorf("%w: violationFactor %v", ErrCorruptRecord, stats.ViolationFactor)
	}
	return &stats, nil
}
