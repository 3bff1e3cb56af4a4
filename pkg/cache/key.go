package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix is the Redis namespace for cached responses.
const KeyPrefix = "crm:cache"

// CacheKey identifies a cached API response.
type CacheKey struct {
	// Endpoint is the API path (e.g. "/leads").
	Endpoint string

	// QueryParams are the query parameters (e.g. page, pageSize, status).
	QueryParams url.Values

	// Scope separates sessions; see ScopeFor. Empty for anonymous requests.
	Scope string
}

// String generates a deterministic cache key string.
// Format: crm:cache:endpoint:query1=val1:query2=val2:scope=ab12cd34
//
// Example:
//
//	crm:cache:leads:page=2:pageSize=20:status=NEW:scope=9f86d081884c7d65
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if endpoint := normalizeEndpoint(k.Endpoint); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, key+"="+strings.Join(values, ","))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}

// EndpointPatterns returns the SCAN patterns matching every cached response
// of endpoint and its sub-resources.
func EndpointPatterns(endpoint string) []string {
	base := KeyPrefix + ":" + normalizeEndpoint(endpoint)
	return []string{base, base + ":*", base + "/*"}
}

// ScopePattern returns the SCAN pattern matching every cached response of scope.
func ScopePattern(scope string) string {
	return KeyPrefix + ":*:scope=" + scope
}

// ScopeFor derives a cache scope from a bearer token without storing the token.
func ScopeFor(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

func normalizeEndpoint(endpoint string) string {
	return strings.Trim(endpoint, "/")
}
