package models

import "time"

// Epoch is the zero timestamp stored for "never happened".
var Epoch = time.Unix(0, 0).UTC()

// MinViolationFactor is the floor of UserStatistics.ViolationFactor.
const MinViolationFactor = 1.0

// UserStatistics is the per-user audit and throttle record, keyed by UserName.
type UserStatistics struct {
	UserName              string    `json:"userName"`
	Hits                  int64     `json:"hits"`
	Misses                int64     `json:"misses"`
	Total                 int64     `json:"total"`
	LastHit               time.Time `json:"lastHit"`
	LastMiss              time.Time `json:"lastMiss"`
	ViolationFactor       float64   `json:"violationFactor"`
	LastChangeRequestDate time.Time `json:"lastChangeRequestDate"`
}

// NewUserStatistics builds the record for a user that has never made an
// attempt. The caller decides when to use it (store reported not found).
func NewUserStatistics(userName string) *UserStatistics {
	return &UserStatistics{
		UserName:              userName,
		LastHit:               Epoch,
		LastMiss:              Epoch,
		ViolationFactor:       MinViolationFactor,
		LastChangeRequestDate: Epoch,
	}
}

// HasPriorAttempt reports whether an attempt was ever recorded.
func (s *UserStatistics) HasPriorAttempt() bool {
	return s.LastChangeRequestDate.UnixMilli() > 0
}

// RecordHit counts an accepted update made at t.
func (s *UserStatistics) RecordHit(t time.Time) {
	s.Hits++
	s.Total++
	s.LastHit = t
	s.LastChangeRequestDate = t
}

// RecordMiss counts a rejected attempt made at t.
func (s *UserStatistics) RecordMiss(t time.Time) {
	s.Misses++
	s.Total++
	s.LastMiss = t
	s.LastChangeRequestDate = t
}
