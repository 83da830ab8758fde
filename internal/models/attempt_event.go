package models

import "time"

// Outcome of a single balloon update attempt.
const (
	OutcomeHit                = "hit"
	OutcomeRateLimited        = "rate_limited"
	OutcomePreconditionFailed = "precondition_failed"
	OutcomeBalloonFull        = "balloon_full"
	OutcomeInvalidTransition  = "invalid_transition"
)

// AttemptEvent is the audit trail entry emitted once per processed attempt.
type AttemptEvent struct {
	EventID         string    `json:"event_id" ch:"event_id"`
	EventTime       time.Time `json:"event_time" ch:"event_time"`
	UserName        string    `json:"user_name" ch:"user_name"`
	Outcome         string    `json:"outcome" ch:"outcome"`
	RequestedStatus int32     `json:"requested_status" ch:"requested_status"`
	FillStatus      int32     `json:"fill_status" ch:"fill_status"`
	ViolationFactor float64   `json:"violation_factor" ch:"violation_factor"`
	RetryAfterMs    int64     `json:"retry_after_ms,omitempty" ch:"retry_after_ms"`
	RequestID       string    `json:"request_id,omitempty" ch:"request_id"`
}
