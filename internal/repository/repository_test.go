package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"balloon-service/internal/models"
	"balloon-service/internal/store"
)

func TestBalloonRepository_DefaultWhenAbsent(t *testing.T) {
	r := NewBalloonRepository(store.NewMemoryStore(1))

	b, err := r.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultBalloon(), b)
}

func TestBalloonRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(1)
	r := NewBalloonRepository(s)

	require.NoError(t, r.Put(ctx, models.Balloon{FillStatus: 7}))

	raw, err := s.Get(ctx, models.BalloonStatusKey)
	require.NoError(t, err)
	assert.Equal(t, `{"fillStatus":7}`, raw)

	b, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, b.FillStatus)
}

func TestBalloonRepository_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{"},
		{"missing field", `{"other":1}`},
		{"out of range", `{"fillStatus":101}`},
		{"negative", `{"fillStatus":-1}`},
		{"wrong type", `{"fillStatus":"3"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := store.NewMemoryStore(1)
			require.NoError(t, s.Put(ctx, models.BalloonStatusKey, tt.raw))

			_, err := NewBalloonRepository(s).Get(ctx)
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}

func TestUserStatisticsRepository_NotFound(t *testing.T) {
	r := NewUserStatisticsRepository(store.NewMemoryStore(1))

	_, err := r.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserStatisticsRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewUserStatisticsRepository(store.NewMemoryStore(2))

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	in := models.NewUserStatistics("alice")
	in.RecordHit(now)
	require.NoError(t, r.Put(ctx, in))
	require.NoError(t, r.Put(ctx, models.NewUserStatistics("bob")))

	out, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Hits)
	assert.Equal(t, int64(1), out.Total)
	assert.True(t, now.Equal(out.LastHit))
	assert.True(t, models.Epoch.Equal(out.LastMiss))
	assert.Equal(t, 1.0, out.ViolationFactor)

	names, err := r.ListUserNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestUserStatisticsRepository_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"userName":`},
		{"wrong type", `{"userName":"alice","hits":"many"}`},
		{"missing userName", `{"hits":1,"violationFactor":1}`},
		{"negative counter", `{"userName":"alice","misses":-1,"violationFactor":1}`},
		{"zero factor", `{"userName":"alice","violationFactor":0}`},
		{"factor below floor", `{"userName":"alice","violationFactor":0.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := store.NewMemoryStore(1)
			require.NoError(t, s.Put(ctx, "alice", tt.raw))

			_, err := NewUserStatisticsRepository(s).Get(ctx, "alice")
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}

func TestUserStatisticsRepository_FactorAtFloorIsValid(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(1)
	require.NoError(t, s.Put(ctx, "alice", `{"userName":"alice","violationFactor":1}`))

	stats, err := NewUserStatisticsRepository(s).Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.MinViolationFactor, stats.ViolationFactor)
}
