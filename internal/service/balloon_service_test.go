package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"balloon-service/internal/etag"
	"balloon-service/internal/models"
	"balloon-service/internal/ratelimit"
	"balloon-service/internal/repository"
	"balloon-service/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.AttemptEvent
	err    error
}

func (s *recordingSink) Emit(_ context.Context, ev models.AttemptEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) outcomes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Outcome
	}
	return out
}

type fixture struct {
	balloonStore *store.MemoryStore
	statsStore   *store.MemoryStore
	statsRepo    *repository.UserStatisticsRepository
	clock        *testClock
	sink         *recordingSink
	svc          *BalloonService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		balloonStore: store.NewMemoryStore(1),
		statsStore:   store.NewMemoryStore(4),
		clock:        &testClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)},
		sink:         &recordingSink{},
	}
	f.statsRepo = repository.NewUserStatisticsRepository(f.statsStore)
	f.svc = NewBalloonService(
		repository.NewBalloonRepository(f.balloonStore),
		f.statsRepo,
		ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		f.sink,
		f.clock.Now,
	)
	return f
}

func (f *fixture) stats(t *testing.T, user string) *models.UserStatistics {
	t.Helper()
	s, err := f.statsRepo.Get(context.Background(), user)
	require.NoError(t, err)
	return s
}

func mustTag(t *testing.T, fill int) string {
	t.Helper()
	tag, err := etag.Strong(models.Balloon{FillStatus: fill})
	require.NoError(t, err)
	return tag
}

func TestGetBalloon_DefaultState(t *testing.T) {
	f := newFixture(t)

	st, err := f.svc.GetBalloon(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Balloon.FillStatus)
	assert.Equal(t, mustTag(t, 0), st.ETag)
}

func TestGetBalloon_CorruptStateFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.balloonStore.Put(context.Background(), models.BalloonStatusKey, "garbage"))

	_, err := f.svc.GetBalloon(context.Background())
	assert.ErrorIs(t, err, repository.ErrCorruptRecord)
}

func TestUpdateBalloon_FirstUpdateAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 0), FillStatus: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Balloon.FillStatus)
	assert.Equal(t, mustTag(t, 1), st.ETag)

	alice := f.stats(t, "alice")
	assert.Equal(t, int64(1), alice.Hits)
	assert.Equal(t, int64(0), alice.Misses)
	assert.Equal(t, int64(1), alice.Total)
	assert.Equal(t, 1.0, alice.ViolationFactor)
	assert.True(t, f.clock.Now().Equal(alice.LastHit))
	assert.True(t, models.Epoch.Equal(alice.LastMiss))

	assert.Equal(t, []string{models.OutcomeHit}, f.sink.outcomes())
}

func TestUpdateBalloon_ImmediateRetryIsRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 0), FillStatus: 1})
	require.NoError(t, err)

	_, err = f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 1), FillStatus: 2})
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1250*time.Millisecond, rle.RetryAfter)
	assert.Equal(t, 2, rle.RetryAfterSeconds())

	st, err := f.svc.GetBalloon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Balloon.FillStatus)

	alice := f.stats(t, "alice")
	assert.Equal(t, int64(1), alice.Hits)
	assert.Equal(t, int64(1), alice.Misses)
	assert.Equal(t, int64(2), alice.Total)
	assert.InDelta(t, 1.01, alice.ViolationFactor, 1e-9)

	assert.Equal(t, []string{models.OutcomeHit, models.OutcomeRateLimited}, f.sink.outcomes())
	assert.Equal(t, int64(1250), f.sink.events[1].RetryAfterMs)
}

func TestUpdateBalloon_OtherUsersAreNotThrottled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 0), FillStatus: 1})
	require.NoError(t, err)

	st, err := f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "bob", IfMatch: mustTag(t, 1), FillStatus: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Balloon.FillStatus)
}

func TestUpdateBalloon_StaleETag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 0), FillStatus: 1})
	require.NoError(t, err)
	f.clock.Advance(2 * time.Second)

	_, err = f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 0), FillStatus: 2})
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	alice := f.stats(t, "alice")
	assert.Equal(t, int64(1), alice.Misses)
	assert.True(t, f.clock.Now().Equal(alice.LastMiss))
	assert.True(t, f.clock.Now().Equal(alice.LastChangeRequestDate))

	st, err := f.svc.GetBalloon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Balloon.FillStatus)
}

func TestUpdateBalloon_WrongNextValue(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateBalloon(context.Background(), UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 0), FillStatus: 5})
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Expected)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NotErrorIs(t, err, ErrBalloonFull)

	alice := f.stats(t, "alice")
	assert.Equal(t, int64(1), alice.Misses)
	assert.Equal(t, []string{models.OutcomeInvalidTransition}, f.sink.outcomes())
}

func TestUpdateBalloon_Full(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.balloonStore.Put(ctx, models.BalloonStatusKey, `{"fillStatus":100}`))

	_, err := f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 100), FillStatus: 101})
	assert.ErrorIs(t, err, ErrBalloonFull)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, int64(1), f.stats(t, "alice").Misses)
}

func TestUpdateBalloon_CorruptBalloonFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.balloonStore.Put(ctx, models.BalloonStatusKey, "{not json"))

	st, err := f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 0), FillStatus: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Balloon.FillStatus)
}

func TestUpdateBalloon_CorruptStatisticsFailsWithoutWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.statsStore.Put(ctx, "alice", "{broken"))

	_, err := f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 0), FillStatus: 1})
	assert.ErrorIs(t, err, repository.ErrCorruptRecord)

	raw, err := f.statsStore.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "{broken", raw)

	_, err = f.balloonStore.Get(ctx, models.BalloonStatusKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.sink.outcomes())
}

func TestUpdateBalloon_EmptyUserIsUnauthorized(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateBalloon(context.Background(), UpdateRequest{IfMatch: mustTag(t, 0), FillStatus: 1})
	assert.ErrorIs(t, err, ErrUnauthorized)

	keys, err := f.statsStore.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestUpdateBalloon_AuditFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("sink down")

	st, err := f.svc.UpdateBalloon(context.Background(), UpdateRequest{UserName: "alice", IfMatch: mustTag(t, 0), FillStatus: 1, RequestID: "req-9"})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Balloon.FillStatus)
	require.Len(t, f.sink.events, 1)
	assert.Equal(t, "req-9", f.sink.events[0].RequestID)
	assert.Equal(t, int32(1), f.sink.events[0].FillStatus)
}

func TestUpdateBalloon_SequenceWithPacing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		st, err := f.svc.UpdateBalloon(ctx, UpdateRequest{UserName: "alice", IfMatch: mustTag(t, i-1), FillStatus: i})
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, i, st.Balloon.FillStatus)
		f.clock.Advance(1250 * time.Millisecond)
	}

	alice := f.stats(t, "alice")
	assert.Equal(t, int64(5), alice.Hits)
	assert.Equal(t, int64(0), alice.Misses)
	assert.Equal(t, 1.0, alice.ViolationFactor)
}
