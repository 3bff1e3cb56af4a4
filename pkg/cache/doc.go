// Package cache provides a Redis-backed response cache for the CRM API
// with ETag revalidation.
//
// List pages are cached per endpoint, query string and session scope, so two
// users never share an entry:
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "/leads",
//		QueryParams: url.Values{"page": []string{"2"}, "status": []string{"NEW"}},
//		Scope:       cache.ScopeFor(token),
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the API
//	}
//
// # Freshness
//
// TTL comes from Cache-Control max-age, then Expires, then DefaultTTL.
// Responses marked no-store are never cached. Entries carrying an ETag or
// Last-Modified are revalidated with a conditional request:
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Invalidation
//
// Creating, updating or deleting a record invalidates every cached page of
// its collection, across scopes:
//
//	manager.InvalidateEndpoint(ctx, "/leads")
//
// # Metrics
//
//   - crm_cache_hits_total{layer="redis"}
//   - crm_cache_misses_total
//   - crm_cache_size_bytes{layer="redis"}
//   - crm_cache_not_modified_total
//   - crm_cache_conditional_requests_total
//   - crm_cache_errors_total{operation}
//   - crm_cache_invalidations_total
package cache
