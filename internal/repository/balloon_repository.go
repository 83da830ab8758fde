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

// BalloonRepository reads and writes the singleton balloon state.
type BalloonRepository struct {
	store store.Store
}

func NewBalloonRepository(s store.Store) *BalloonRepository {
	return &BalloonRepository{store: s}
}

// Get returns the stored state, or the default state when nothing is stored.
// An undecodable value is reported as ErrCorruptRecord.
func (r *BalloonRepository) Get(ctx context.Context) (models.Balloon, error) {
	raw, err := r.store.Get(ctx, models.BalloonStatusKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.DefaultBalloon(), nil
		}
		return models.Balloon{}, fmt.Errorf("failed to read balloon state: %w", err)
	}

	b, err := decodeBalloon(raw)
	if err != nil {
		util.Error("Failed to parse stored balloon state",
			util.String("raw", raw),
			util.ErrorField(err))
		return models.Balloon{}, err
	}
	return b, nil
}

func (r *BalloonRepository) Put(ctx context.Context, b models.Balloon) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode balloon state: %w", err)
	}
	if err := r.store.Put(ctx, models.BalloonStatusKey, string(data)); err != nil {
		util.Error("Failed to write balloon state",
			util.Int("fill_status", b.FillStatus),
			util.ErrorField(err))
		return fmt.Errorf("failed to write balloon state: %w", err)
	}
	return nil
}

// decodeBalloon requires a fillStatus within the valid range.
func decodeBalloon(raw string) (models.Balloon, error) {
	var v struct {
		FillStatus *int `json:"fillStatus"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return models.Balloon{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if v.FillStatus == nil {
		return models.Balloon{}, fmt.Errorf("%w: missing fillStatus", ErrCorruptRecord)
	}
	if *v.FillStatus < models.MinFillStatus || *v.FillStatus > models.MaxFillStatus {
		return models.Balloon{}, fmt.Errorf("%w: fillStatus %d out of range", ErrCorruptRecord, *v.FillStatus)
	}
	return models.Balloon{FillStatus: *v.FillStatus}, nil
}
