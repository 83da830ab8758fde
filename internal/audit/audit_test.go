package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"balloon-service/internal/models"
)

type fakeProducer struct {
	mu      sync.Mutex
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
	err     error
	closed  bool
}

func (p *fakeProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return p.err
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

type fakeInserter struct {
	mu      sync.Mutex
	execs   []string
	queries []string
	rows    []interface{}
	err     error
}

func (f *fakeInserter) Exec(_ context.Context, query string, _ ...interface{}) error {
	f.execs = append(f.execs, query)
	return f.err
}

func (f *fakeInserter) InsertStructs(_ context.Context, query string, rows ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.rows = append(f.rows, rows...)
	return f.err
}

func (f *fakeInserter) Close() error { return nil }

var at = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func TestNewEvent(t *testing.T) {
	ev := NewEvent(at, "alice", models.OutcomeHit)

	_, err := uuid.Parse(ev.EventID)
	require.NoError(t, err)
	assert.Equal(t, "alice", ev.UserName)
	assert.Equal(t, models.OutcomeHit, ev.Outcome)
	assert.NotEqual(t, ev.EventID, NewEvent(at, "alice", models.OutcomeHit).EventID)
}

func TestKafkaSink_Emit(t *testing.T) {
	p := &fakeProducer{}
	s := NewKafkaSink(p, "balloon.attempts")

	ev := NewEvent(at, "alice", models.OutcomeRateLimited)
	ev.RetryAfterMs = 1250
	ev.RequestID = "req-1"
	require.NoError(t, s.Emit(context.Background(), ev))

	assert.Equal(t, "balloon.attempts", p.topic)
	assert.Equal(t, "alice", string(p.key))
	assert.Equal(t, "rate_limited", p.headers["outcome"])
	assert.Equal(t, "req-1", p.headers["request_id"])

	var decoded models.AttemptEvent
	require.NoError(t, json.Unmarshal(p.value, &decoded))
	assert.Equal(t, ev.EventID, decoded.EventID)
	assert.Equal(t, int64(1250), decoded.RetryAfterMs)

	require.NoError(t, s.Close())
	assert.True(t, p.closed)
}

func TestKafkaSink_WrapsProducerError(t *testing.T) {
	boom := errors.New("broker down")
	s := NewKafkaSink(&fakeProducer{err: boom}, "t")

	err := s.Emit(context.Background(), NewEvent(at, "bob", models.OutcomeHit))
	assert.ErrorIs(t, err, boom)
}

func TestClickHouseSink(t *testing.T) {
	f := &fakeInserter{}
	s := NewClickHouseSink(f, "balloon_attempts")

	require.NoError(t, s.EnsureTable(context.Background()))
	require.Len(t, f.execs, 1)
	assert.Contains(t, f.execs[0], "CREATE TABLE IF NOT EXISTS balloon_attempts")

	ev := NewEvent(at, "alice", models.OutcomePreconditionFailed)
	require.NoError(t, s.Emit(context.Background(), ev))
	require.Len(t, f.rows, 1)
	assert.True(t, strings.HasPrefix(f.queries[0], "INSERT INTO balloon_attempts"))

	row, ok := f.rows[0].(*models.AttemptEvent)
	require.True(t, ok)
	assert.Equal(t, ev.EventID, row.EventID)
}

func TestMultiSink(t *testing.T) {
	p := &fakeProducer{}
	f := &fakeInserter{}
	s := NewMultiSink(NewKafkaSink(p, "t"), NewClickHouseSink(f, "tbl"))

	require.NoError(t, s.Emit(context.Background(), NewEvent(at, "alice", models.OutcomeHit)))
	assert.Equal(t, "alice", string(p.key))
	assert.Len(t, f.rows, 1)

	boom := errors.New("insert failed")
	f.err = boom
	assert.ErrorIs(t, s.Emit(context.Background(), NewEvent(at, "alice", models.OutcomeHit)), boom)
}

func TestNewMultiSink_Degenerate(t *testing.T) {
	assert.Equal(t, NopSink(), NewMultiSink())

	k := NewKafkaSink(&fakeProducer{}, "t")
	assert.Same(t, k, NewMultiSink(k))
}
