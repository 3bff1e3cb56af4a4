// Package client provides the CRM API HTTP client with rate limiting,
// response caching, retries and error classification.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/crm-admin-client/pkg/cache"
	"github.com/Sternrassler/crm-admin-client/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HeaderRequestID correlates client logs with server logs.
const HeaderRequestID = "X-Request-Id"

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4 << 10

// TokenSource supplies the bearer token for each request.
// An empty token sends the request unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// Client is the CRM API client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the CRM API, e.g. "https://crm.example.com/api".
	BaseURL string

	// Redis enables the shared response cache and rate limit state.
	// Optional: without it responses are not cached and the quota is tracked in memory.
	Redis *redis.Client

	UserAgent string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Retry (GET only)
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// ThrottleDelay is the pause applied per request while the quota is low.
	ThrottleDelay time.Duration

	// Tokens supplies the bearer token. Optional.
	Tokens TokenSource
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string, redis *redis.Client) Config {
	retry := DefaultRetryConfig()
	return Config{
		BaseURL:        baseURL,
		Redis:          redis,
		UserAgent:      "crm-admin-client/1.0",
		Timeout:        15 * time.Second,
		MaxRetries:     retry.MaxAttempts - 1,
		InitialBackoff: retry.InitialBackoff,
		MaxBackoff:     retry.MaxBackoff,
		ThrottleDelay:  ratelimit.DefaultThrottleDelay,
	}
}

// New creates a new CRM API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base_url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.InitialBackoff <= 0 || cfg.MaxBackoff < cfg.InitialBackoff {
		return nil, fmt.Errorf("backoff must satisfy 0 < initial (%s) <= max (%s)", cfg.InitialBackoff, cfg.MaxBackoff)
	}

	logger := log.With().Str("component", "crm-client").Logger()

	rateLimiter := ratelimit.NewTracker(cfg.Redis, logger)
	rateLimiter.SetThrottleDelay(cfg.ThrottleDelay)

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     base,
		rateLimiter: rateLimiter,
		cache:       cacheManager,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do performs an HTTP request with rate limiting, caching, retries and
// error classification. Any status >= 400 is returned as *APIError with
// the body closed. GET requests are cached and retried; other methods are
// sent exactly once.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(strings.TrimPrefix(req.URL.Path, c.baseURL.Path))

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set(HeaderRequestID, requestID)
	}
	logger := c.logger.With().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", requestID).
		Logger()

	// Step 1: Check Rate Limit
	allowed, wait, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Rate limit check failed, sending anyway")
	} else if !allowed {
		logger.Warn().Dur("retry_after", wait).Msg("Request blocked by rate limiter")
		requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, &APIError{
			StatusCode: http.StatusTooManyRequests,
			ErrorClass: ErrorClassRateLimit,
			Message:    "request quota exhausted",
			RequestID:  requestID,
			RetryAfter: wait,
		}
	}

	// Step 2: Authenticate
	token := ""
	if c.config.Tokens != nil {
		if token, err = c.config.Tokens.Token(ctx); err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	// Step 3: Check Cache and make the request conditional
	cacheable := req.Method == http.MethodGet && c.cache != nil
	cacheKey := cache.CacheKey{
		Endpoint:    req.URL.Path,
		QueryParams: req.URL.Query(),
		Scope:       cache.ScopeFor(token),
	}

	var cachedEntry *cache.CacheEntry
	if cacheable {
		cachedEntry, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get error")
		}
		if cachedEntry != nil && cache.ShouldMakeConditionalRequest(cachedEntry) {
			cache.AddConditionalHeaders(req, cachedEntry)
			cache.ConditionalRequestsSent.Inc()
			logger.Debug().Str("etag", cachedEntry.ETag).Msg("Making conditional request")
		}
	}

	// Step 4: Execute with retry
	retry := c.retryConfig()
	if req.Method != http.MethodGet {
		retry.MaxAttempts = 1
	}

	logger.Debug().Msg("Executing CRM API request")

	var resp *http.Response
	retryErr := retryWithBackoff(ctx, retry, func() (ErrorClass, error) {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			logger.Warn().Err(reqErr).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return ErrorClassNetwork, &APIError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				RequestID:  requestID,
				Err:        reqErr,
			}
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		if resp.StatusCode < 400 {
			return "", nil
		}

		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		apiErr := readAPIError(resp, errClass, requestID)
		resp = nil

		logger.Warn().
			Int("status", apiErr.StatusCode).
			Str("error_class", string(errClass)).
			Str("message", apiErr.Message).
			Msg("CRM API request error")
		return errClass, apiErr
	})
	if retryErr != nil {
		return nil, retryErr
	}

	// Step 5: Serve 304 from cache
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		logger.Debug().Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()
		resp.Body.Close()

		if err := c.cache.UpdateTTL(ctx, cacheKey, cache.RefreshedExpiry(resp)); err != nil {
			logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	// Step 6: Update Cache on success
	if cacheable && cache.IsCacheable(resp) {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			resp.Body.Close()
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassNetwork,
				Message:    "read response body",
				RequestID:  requestID,
				Err:        err,
			}
		}
		if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				logger.Debug().Dur("ttl", entry.TTL()).Msg("Cached response")
			}
		}
	}

	return resp, nil
}

func (c *Client) retryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = c.config.MaxRetries + 1
	cfg.InitialBackoff = c.config.InitialBackoff
	cfg.MaxBackoff = c.config.MaxBackoff
	return cfg
}

// readAPIError drains and closes an error response.
func readAPIError(resp *http.Response, class ErrorClass, requestID string) *APIError {
	defer resp.Body.Close()

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		Message:    resp.Status,
		RequestID:  requestID,
	}

	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.Error != "":
			apiErr.Message = payload.Error
		}
	}
	return apiErr
}

// endpointLabel keeps metric cardinality bounded: "/leads/42" becomes "/leads".
func endpointLabel(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}

// InvalidateCache drops every cached response under endpoint, a path
// relative to the base URL. It is a no-op without Redis.
func (c *Client) InvalidateCache(ctx context.Context, endpoint string) {
	if c.cache == nil {
		return
	}
	full := strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(endpoint, "/")
	n, err := c.cache.InvalidateEndpoint(ctx, full)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache invalidation failed")
		return
	}
	c.logger.Debug().Str("endpoint", endpoint).Int("removed", n).Msg("Cache invalidated")
}

// ForgetSession drops every cached response fetched with token.
// It is a no-op without Redis.
func (c *Client) ForgetSession(ctx context.Context, token string) {
	if c.cache == nil || token == "" {
		return
	}
	n, err := c.cache.InvalidateScope(ctx, cache.ScopeFor(token))
	if err != nil {
		c.logger.Warn().Err(err).Msg("Session cache purge failed")
		return
	}
	c.logger.Debug().Int("removed", n).Msg("Session cache purged")
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil without Redis.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// RateLimiter returns the quota tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
