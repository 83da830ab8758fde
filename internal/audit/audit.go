// Package audit publishes one event per processed balloon update attempt to
// the configured sinks (Kafka topic, ClickHouse table).
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"balloon-service/internal/models"
)

// Sink receives attempt events.
type Sink interface {
	Emit(ctx context.Context, ev models.AttemptEvent) error
	Close() error
}

// NewEvent stamps an event with a fresh id.
func NewEvent(at time.Time, userName, outcome string) models.AttemptEvent {
	return models.AttemptEvent{
		EventID:   uuid.NewString(),
		EventTime: at,
		UserName:  userName,
		Outcome:   outcome,
	}
}

type nopSink struct{}

func (nopSink) Emit(context.Context, models.AttemptEvent) error { return nil }
func (nopSink) Close() error                                    { return nil }

// NopSink discards every event.
func NopSink() Sink { return nopSink{} }

// MultiSink fans an event out to several sinks concurrently.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns NopSink for zero sinks and the sink itself for one.
func NewMultiSink(sinks ...Sink) Sink {
	switch len(sinks) {
	case 0:
		return NopSink()
	case 1:
		return sinks[0]
	}
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(ctx context.Context, ev models.AttemptEvent) error {
	var g errgroup.Group
	for _, s := range m.sinks {
		s := s
		g.Go(func() error {
			return s.Emit(ctx, ev)
		})
	}
	return g.Wait()
}

func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
