package cache

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips when none is
// running. tests/integration covers the same paths against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func freshEntry(data string) *CacheEntry {
	return &CacheEntry{
		Data:       []byte(data),
		ETag:       `"v1"`,
		Expires:    time.Now().Add(5 * time.Minute),
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		CachedAt:   time.Now(),
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := CacheKey{
		Endpoint:    "/leads",
		QueryParams: url.Values{"page": []string{"1"}, "pageSize": []string{"20"}},
		Scope:       ScopeFor("token-a"),
	}
	entry := freshEntry(`{"items":[],"totalCount":0,"page":1}`)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data = %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.ETag != entry.ETag {
		t.Errorf("ETag = %s, want %s", retrieved.ETag, entry.ETag)
	}

	other := key
	other.Scope = ScopeFor("token-b")
	if _, err := manager.Get(ctx, other); err != ErrCacheMiss {
		t.Errorf("Get with another scope error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	manager := NewManager(setupTestRedis(t))

	_, err := manager.Get(context.Background(), CacheKey{Endpoint: "/sellers"})
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Set_ExpiredEntryIsSkipped(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := CacheKey{Endpoint: "/leads"}

	entry := freshEntry(`{}`)
	entry.Expires = time.Now().Add(-time.Hour)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_UpdateTTL(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := CacheKey{Endpoint: "/appointments"}

	if err := manager.Set(ctx, key, freshEntry(`{}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	newExpires := time.Now().Add(10 * time.Minute)
	if err := manager.UpdateTTL(ctx, key, newExpires); err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after UpdateTTL failed: %v", err)
	}
	if diff := retrieved.Expires.Sub(newExpires); diff < -time.Second || diff > time.Second {
		t.Errorf("Expires = %v, want %v", retrieved.Expires, newExpires)
	}
}

func TestManager_InvalidateEndpoint(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	keys := []CacheKey{
		{Endpoint: "/leads", QueryParams: url.Values{"page": []string{"1"}}, Scope: "a"},
		{Endpoint: "/leads", QueryParams: url.Values{"page": []string{"2"}}, Scope: "b"},
		{Endpoint: "/leads/7"},
	}
	for _, k := range keys {
		if err := manager.Set(ctx, k, freshEntry(`{}`)); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}
	survivor := CacheKey{Endpoint: "/leadsources", QueryParams: url.Values{"page": []string{"1"}}}
	if err := manager.Set(ctx, survivor, freshEntry(`{}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	removed, err := manager.InvalidateEndpoint(ctx, "/leads")
	if err != nil {
		t.Fatalf("InvalidateEndpoint failed: %v", err)
	}
	if removed != len(keys) {
		t.Errorf("removed = %d, want %d", removed, len(keys))
	}
	for _, k := range keys {
		if _, err := manager.Get(ctx, k); err != ErrCacheMiss {
			t.Errorf("Get(%s) after invalidation error = %v, want ErrCacheMiss", k, err)
		}
	}
	if _, err := manager.Get(ctx, survivor); err != nil {
		t.Errorf("unrelated endpoint was invalidated: %v", err)
	}
}

func TestManager_InvalidateScope(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	mine := []CacheKey{
		{Endpoint: "/leads", Scope: "ana"},
		{Endpoint: "/sellers", QueryParams: url.Values{"active": []string{"true"}}, Scope: "ana"},
	}
	others := []CacheKey{
		{Endpoint: "/leads", Scope: "bruno"},
		{Endpoint: "/leads"},
	}
	for _, k := range append(append([]CacheKey{}, mine...), others...) {
		if err := manager.Set(ctx, k, freshEntry(`{}`)); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}

	removed, err := manager.InvalidateScope(ctx, "ana")
	if err != nil {
		t.Fatalf("InvalidateScope failed: %v", err)
	}
	if removed != len(mine) {
		t.Errorf("removed = %d, want %d", removed, len(mine))
	}
	for _, k := range mine {
		if _, err := manager.Get(ctx, k); err != ErrCacheMiss {
			t.Errorf("Get(%s) error = %v, want ErrCacheMiss", k, err)
		}
	}
	for _, k := range others {
		if _, err := manager.Get(ctx, k); err != nil {
			t.Errorf("Get(%s) error = %v, other scopes must survive", k, err)
		}
	}

	if n, err := manager.InvalidateScope(ctx, ""); err != nil || n != 0 {
		t.Errorf("InvalidateScope(\"\") = %d, %v, want 0, nil", n, err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t))

	if err := manager.Set(context.Background(), CacheKey{Endpoint: "/leads"}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}
