// Package ratelimit holds the adaptive per-user limiter that paces balloon
// updates, plus an optional per-client token bucket for ingress traffic.
//
// The adaptive limiter is stateless: its state lives in the user's
// statistics record, which the caller reads before and persists after
// Evaluate. A user must leave BaseInterval*ViolationFactor between attempts
// (clamped to [BaseInterval, MaxEffectiveInterval]). Every attempt made too
// early raises the factor by FactorIncrement; every admitted attempt resets
// it to MinViolationFactor; long idle periods decay it by FactorDecrement per
// whole idle interval.
package ratelimit

import (
	"math"
	"time"

	"balloon-service/internal/models"
)

// Config parameterizes the adaptive limiter.
type Config struct {
	RatePerMinute        float64
	FactorIncrement      float64
	FactorDecrement      float64
	MinViolationFactor   float64
	MaxEffectiveInterval time.Duration
}

// DefaultConfig allows 48 updates per minute.
func DefaultConfig() Config {
	return Config{
		RatePerMinute:        48,
		FactorIncrement:      0.01,
		FactorDecrement:      0.01,
		MinViolationFactor:   1.0,
		MaxEffectiveInterval: 60 * time.Second,
	}
}

// baseIntervalMs is 60000/RatePerMinute.
func (c Config) baseIntervalMs() float64 {
	return 60000 / c.RatePerMinute
}

// BaseInterval is the spacing required from a user with no penalty.
func (c Config) BaseInterval() time.Duration {
	return time.Duration(c.baseIntervalMs() * float64(time.Millisecond))
}

// Decision is the outcome of a single Evaluate call.
type Decision struct {
	Allowed           bool
	EffectiveInterval time.Duration
	// RetryAfter is the remaining wait when the attempt is throttled.
	RetryAfter time.Duration
}

// Limiter applies Config to user statistics records.
type Limiter struct {
	cfg Config
}

func NewLimiter(cfg Config) *Limiter {
	return &Limiter{cfg: cfg}
}

// Evaluate decides whether the attempt made at now by the owner of stats is
// admitted and updates stats.ViolationFactor accordingly. It does not count
// the attempt; the caller records the hit or miss.
func (l *Limiter) Evaluate(stats *models.UserStatistics, now time.Time) Decision {
	base := l.cfg.baseIntervalMs()
	nowMs := float64(now.UnixMilli())
	lastMs := float64(stats.LastChangeRequestDate.UnixMilli())
	prior := stats.HasPriorAttempt()

	if prior {
		l.decay(stats, nowMs-lastMs)
	}

	effective := base * stats.ViolationFactor
	effective = math.Min(float64(l.cfg.MaxEffectiveInterval.Milliseconds()), effective)
	effective = math.Max(base, effective)

	nextAllowedMs := lastMs + effective
	d := Decision{EffectiveInterval: msToDuration(effective)}

	if prior && nowMs < nextAllowedMs {
		stats.ViolationFactor += l.cfg.FactorIncrement
		d.RetryAfter = msToDuration(nextAllowedMs - nowMs)
		return d
	}

	stats.ViolationFactor = l.cfg.MinViolationFactor
	d.Allowed = true
	return d
}

// decay forgives one FactorDecrement per whole base interval of idle time
// beyond the first mandatory one.
func (l *Limiter) decay(stats *models.UserStatistics, elapsedMs float64) {
	base := l.cfg.baseIntervalMs()
	if elapsedMs <= base {
		return
	}
	intervals := math.Floor((elapsedMs - base) / base)
	if intervals <= 0 {
		return
	}
	stats.ViolationFactor = math.Max(l.cfg.MinViolationFactor, stats.ViolationFactor-intervals*l.cfg.FactorDecrement)
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
