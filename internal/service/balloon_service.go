package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"balloon-service/internal/audit"
	"balloon-service/internal/etag"
	"balloon-service/internal/models"
	"balloon-service/internal/ratelimit"
	"balloon-service/internal/repository"
	"balloon-service/internal/store"
	"balloon-service/internal/util"
)

const auditTimeout = 2 * time.Second

// BalloonState is a balloon value together with its ETag.
type BalloonState struct {
	Balloon models.Balloon
	ETag    string
}

// UpdateRequest is an already validated PUT /balloon call.
type UpdateRequest struct {
	UserName   string
	IfMatch    string
	FillStatus int
	RequestID  string
}

// BalloonService owns the balloon update flow: pacing, optimistic
// concurrency and the single-step transition rule.
type BalloonService struct {
	balloons *repository.BalloonRepository
	stats    *repository.UserStatisticsRepository
	limiter  *ratelimit.Limiter
	sink     audit.Sink
	now      func() time.Time
}

func NewBalloonService(
	balloons *repository.BalloonRepository,
	stats *repository.UserStatisticsRepository,
	limiter *ratelimit.Limiter,
	sink audit.Sink,
	now func() time.Time,
) *BalloonService {
	if sink == nil {
		sink = audit.NopSink()
	}
	if now == nil {
		now = time.Now
	}
	return &BalloonService{
		balloons: balloons,
		stats:    stats,
		limiter:  limiter,
		sink:     sink,
		now:      now,
	}
}

func (s *BalloonService) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// GetBalloon returns the current state. A corrupt stored state is an error
// here, unlike in UpdateBalloon.
func (s *BalloonService) GetBalloon(ctx context.Context) (*BalloonState, error) {
	b, err := s.balloons.Get(ctx)
	if err != nil {
		return nil, err
	}
	tag, err := etag.Strong(b)
	if err != nil {
		return nil, fmt.Errorf("failed to compute balloon etag: %w", err)
	}
	return &BalloonState{Balloon: b, ETag: tag}, nil
}

// UpdateBalloon applies one increment attempt. Every attempt by an
// identified user is counted in that user's statistics, rejected ones
// included. The balloon is written before the statistics record.
func (s *BalloonService) UpdateBalloon(ctx context.Context, req UpdateRequest) (*BalloonState, error) {
	if req.UserName == "" {
		return nil, ErrUnauthorized
	}
	now := s.clock()

	stats, err := s.stats.Get(ctx, req.UserName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		stats = models.NewUserStatistics(req.UserName)
	case err != nil:
		return nil, fmt.Errorf("failed to load statistics for %s: %w", req.UserName, err)
	}

	ev := audit.NewEvent(now, req.UserName, models.OutcomeHit)
	ev.RequestedStatus = int32(req.FillStatus)
	ev.RequestID = req.RequestID

	decision := s.limiter.Evaluate(stats, now)
	if !decision.Allowed {
		ev.Outcome = models.OutcomeRateLimited
		ev.RetryAfterMs = decision.RetryAfter.Milliseconds()
		util.Info("Balloon update rate limited",
			util.String("user", req.UserName),
			util.Float64("violation_factor", stats.ViolationFactor),
			util.Duration("retry_after", decision.RetryAfter))
		if err := s.recordMiss(ctx, stats, now, ev); err != nil {
			return nil, err
		}
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter}
	}

	current, err := s.balloons.Get(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrCorruptRecord) {
			return nil, err
		}
		util.Error("Stored balloon state is corrupt, using default state", util.ErrorField(err))
		current = models.DefaultBalloon()
	}
	ev.FillStatus = int32(current.FillStatus)

	currentTag, err := etag.Strong(current)
	if err != nil {
		return nil, fmt.Errorf("failed to compute balloon etag: %w", err)
	}

	var rejection error
	switch {
	case req.IfMatch != currentTag:
		ev.Outcome = models.OutcomePreconditionFailed
		rejection = ErrPreconditionFailed
	case current.IsFull():
		ev.Outcome = models.OutcomeBalloonFull
		rejection = ErrBalloonFull
	case req.FillStatus != current.Next():
		ev.Outcome = models.OutcomeInvalidTransition
		rejection = &TransitionError{Expected: current.Next()}
	}
	if rejection != nil {
		util.Debug("Balloon update rejected",
			util.String("user", req.UserName),
			util.String("outcome", ev.Outcome),
			util.Int("fill_status", current.FillStatus),
			util.Int("requested", req.FillStatus))
		if err := s.recordMiss(ctx, stats, now, ev); err != nil {
			return nil, err
		}
		return nil, rejection
	}

	next := models.Balloon{FillStatus: req.FillStatus}
	if err := s.balloons.Put(ctx, next); err != nil {
		return nil, err
	}

	stats.RecordHit(now)
	if err := s.stats.Put(ctx, stats); err != nil {
		return nil, err
	}

	ev.FillStatus = int32(next.FillStatus)
	ev.ViolationFactor = stats.ViolationFactor
	s.emit(ctx, ev)

	tag, err := etag.Strong(next)
	if err != nil {
		return nil, fmt.Errorf("failed to compute balloon etag: %w", err)
	}
	util.Info("Balloon updated",
		util.String("user", req.UserName),
		util.Int("fill_status", next.FillStatus))
	return &BalloonState{Balloon: next, ETag: tag}, nil
}

func (s *BalloonService) recordMiss(ctx context.Context, stats *models.UserStatistics, now time.Time, ev models.AttemptEvent) error {
	stats.RecordMiss(now)
	if err := s.stats.Put(ctx, stats); err != nil {
		return err
	}
	ev.ViolationFactor = stats.ViolationFactor
	s.emit(ctx, ev)
	return nil
}

// emit publishes ev without letting a sink failure reach the caller.
func (s *BalloonService) emit(ctx context.Context, ev models.AttemptEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	if err := s.sink.Emit(ctx, ev); err != nil {
		util.Warn("Failed to publish audit event",
			util.String("event_id", ev.EventID),
			util.String("user", ev.UserName),
			util.ErrorField(err))
	}
}

// Close releases the audit sinks.
func (s *BalloonService) Close() error {
	return s.sink.Close()
}
