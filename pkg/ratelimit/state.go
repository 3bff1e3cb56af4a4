// Package ratelimit tracks the CRM API request quota and gates requests.
// It reads the X-RateLimit-Remaining and X-RateLimit-Reset headers so the
// client backs off before the API starts answering 429.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "crm:rate_limit:remaining"
	RedisKeyLimit          = "crm:rate_limit:limit"
	RedisKeyResetTimestamp = "crm:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "crm:rate_limit:last_update"
)

// Response headers carrying the quota.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks requests when remaining falls below this value.
	ThresholdCritical = 2

	// ThresholdWarning throttles requests when remaining falls below this value.
	ThresholdWarning = 10

	// ThresholdHealthy marks the quota as healthy at or above this value.
	ThresholdHealthy = 25
)

// RateLimitState is the last observed request quota.
type RateLimitState struct {
	// Remaining requests in the current window (X-RateLimit-Remaining).
	Remaining int `json:"remaining"`

	// Limit is the window size, 0 when the API does not send it.
	Limit int `json:"limit"`

	// ResetAt is when the window resets, derived from X-RateLimit-Reset seconds.
	ResetAt time.Time `json:"reset_at"`

	LastUpdate time.Time `json:"last_update"`
	IsHealthy  bool      `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked until reset.
// A window that has already reset never blocks.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock() && s.TimeUntilReset() > 0
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}

func defaultState() *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		Remaining:  100,
		ResetAt:    now,
		LastUpdate: now,
		IsHealthy:  true,
	}
}
