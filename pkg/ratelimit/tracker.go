package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultThrottleDelay is the pause applied per request in the warning band.
const DefaultThrottleDelay = 500 * time.Millisecond

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_rate_limit_remaining",
		Help: "Requests remaining in the current CRM API rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the quota is exhausted",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the quota is low",
	})
)

// Tracker monitors the CRM API quota and gates requests.
// With a Redis client the state is shared between processes; without one it
// is kept in memory.
type Tracker struct {
	redis    *redis.Client
	logger   zerolog.Logger
	throttle time.Duration

	mu    sync.Mutex
	local *RateLimitState
}

// NewTracker creates a new rate limit tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:    redisClient,
		logger:   logger,
		throttle: DefaultThrottleDelay,
	}
}

// SetThrottleDelay changes the warning-band pause. Zero disables throttling.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttle = d
}

// GetState returns the current quota, or a healthy default when nothing has
// been observed yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.local == nil {
			return defaultState(), nil
		}
		s := *t.local
		return &s, nil
	}

	values, err := t.redis.MGet(ctx, RedisKeyRemaining, RedisKeyLimit, RedisKeyResetTimestamp, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if values[0] == nil {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return defaultState(), nil
	}

	state := &RateLimitState{}
	if state.Remaining, err = intValue(values[0]); err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}
	if values[1] != nil {
		if state.Limit, err = intValue(values[1]); err != nil {
			return nil, fmt.Errorf("parse limit: %w", err)
		}
	}
	if values[2] != nil {
		reset, err := intValue(values[2])
		if err != nil {
			return nil, fmt.Errorf("parse reset timestamp: %w", err)
		}
		state.ResetAt = time.Unix(int64(reset), 0)
	}
	if s, ok := values[3].(string); ok && s != "" {
		if err := json.Unmarshal([]byte(s), &state.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}
	state.UpdateHealth()

	return state, nil
}

// UpdateFromHeaders parses the quota headers and stores the new state.
// Responses without X-RateLimit-Remaining are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	limit := 0
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	now := time.Now()
	state := &RateLimitState{
		Remaining:  remain,
		Limit:      limit,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()

	if err := t.store(ctx, state); err != nil {
		return err
	}

	rateLimitRemaining.Set(float64(remain))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("CRM API quota exhausted - requests will be blocked until reset")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("CRM API quota low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("CRM API quota updated")
	}

	return nil
}

func (t *Tracker) store(ctx context.Context, state *RateLimitState) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local = state
		t.mu.Unlock()
		return nil
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Keys outlive the window only briefly; a stale quota must not block forever.
	ttl := state.TimeUntilReset() + time.Minute

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, ttl)
	pipe.Set(ctx, RedisKeyLimit, state.Limit, ttl)
	pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// ShouldAllowRequest reports whether a request may be sent now.
// It returns false with the time until reset when the quota is exhausted,
// and sleeps for the throttle delay when the quota is low.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		wait := state.TimeUntilReset()
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("CRM API quota exhausted - blocking request")
		rateLimitBlocksTotal.Inc()
		return false, wait, nil
	}

	if state.NeedsThrottling() && t.throttle > 0 {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("CRM API quota low - throttling request")
		rateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttle)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return false, 0, ctx.Err()
		}
	}

	return true, 0, nil
}

func intValue(v any) (int, error) {
	s, ok := v.(string)
	if !ok {
		return 0, errors.New("unexpected value type")
	}
	return strconv.Atoi(s)
}
