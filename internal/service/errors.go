package service

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrPreconditionFailed     = errors.New("etag does not match")
	ErrInvalidTransition      = errors.New("invalid fill status transition")
	ErrBalloonFull            = fmt.Errorf("%w: balloon is already full", ErrInvalidTransition)
	ErrRateLimited            = errors.New("rate limit exceeded")
	ErrUserStatisticsNotFound = errors.New("user statistics not found")
	ErrInvalidInput           = errors.New("invalid input")
)

// RateLimitError carries the wait before the user may try again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfterSeconds rounds up to whole seconds.
func (e *RateLimitError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// TransitionError reports the only fill status that would have been accepted.
type TransitionError struct {
	Expected int
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: next fillStatus must be %d", ErrInvalidTransition, e.Expected)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
