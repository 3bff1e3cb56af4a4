//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/crm-admin-client/internal/testutil"
	"github.com/Sternrassler/crm-admin-client/pkg/auth"
	"github.com/Sternrassler/crm-admin-client/pkg/client"
	"github.com/Sternrassler/crm-admin-client/pkg/crm"
	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
	"github.com/Sternrassler/crm-admin-client/pkg/pagination"
	"github.com/Sternrassler/crm-admin-client/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// TestListRevalidation tests the flow Rate Limit → Cache → API → Cache Update
// followed by a 304 served from Redis.
func TestListRevalidation(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockCRM()
	defer mock.Close()
	mock.SetCacheMaxAge(60)
	seedLeads(mock, 30)

	leads := crm.Leads(newClient(t, mock.URL(), redisClient, nil))
	ctx := context.Background()
	q := listctl.Query{Page: 2, PageSize: 10}

	first, err := leads.List(ctx, q)
	if err != nil {
		t.Fatalf("First list failed: %v", err)
	}

	second, err := leads.List(ctx, q)
	if err != nil {
		t.Fatalf("Second list failed: %v", err)
	}

	if mock.RequestCount("GET /leads") != 2 {
		t.Errorf("API requests = %d, want 2", mock.RequestCount("GET /leads"))
	}
	if mock.ConditionalCount() != 1 {
		t.Errorf("Conditional requests = %d, want 1", mock.ConditionalCount())
	}
	if len(second.Items) != len(first.Items) || second.Items[0].ID != first.Items[0].ID {
		t.Errorf("revalidated page differs: %v vs %v", second.Items, first.Items)
	}
}

// TestMutationInvalidatesCache tests that a create drops cached pages so the
// next list is unconditional and sees the new record.
func TestMutationInvalidatesCache(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockCRM()
	defer mock.Close()
	mock.SetCacheMaxAge(60)
	seedLeads(mock, 5)

	leads := crm.Leads(newClient(t, mock.URL(), redisClient, nil))
	ctx := context.Background()
	q := listctl.Query{Page: 1, PageSize: 20}

	if _, err := leads.List(ctx, q); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if _, err := leads.Create(ctx, crm.Lead{Name: "Dora", Status: crm.LeadNew}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	page, err := leads.List(ctx, q)
	if err != nil {
		t.Fatalf("List after create failed: %v", err)
	}
	if page.TotalCount != 6 {
		t.Errorf("TotalCount = %d, want 6", page.TotalCount)
	}
	if mock.ConditionalCount() != 0 {
		t.Errorf("Conditional requests = %d, want 0 after invalidation", mock.ConditionalCount())
	}
}

// TestSessionInRedis tests login, token use and logout with the session in Redis.
func TestSessionInRedis(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockCRM()
	defer mock.Close()
	mock.RequireAuth(true)
	mock.SetTokenTTL(10 * time.Minute)
	mock.AddUser(testutil.MockUser{ID: "u1", Email: "ana@crm.local", Name: "Ana", Password: "s3cret"})
	seedLeads(mock, 3)

	store := auth.NewRedisStore(redisClient, "integration")
	authenticator, err := auth.New(auth.Config{
		Backend: auth.NewHTTPBackend(newClient(t, mock.URL(), nil, nil)),
		Store:   store,
	})
	if err != nil {
		t.Fatalf("auth.New() error = %v", err)
	}

	ctx := context.Background()
	if _, err := authenticator.Login(ctx, "ana@crm.local", "s3cret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	ttl, err := redisClient.TTL(ctx, auth.RedisKeyPrefix+"integration").Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 9*time.Minute || ttl > 10*time.Minute {
		t.Errorf("session key TTL = %v, want about 10m", ttl)
	}

	leads := crm.Leads(newClient(t, mock.URL(), redisClient, authenticator))
	page, err := leads.List(ctx, listctl.Query{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("Authenticated list failed: %v", err)
	}
	if page.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", page.TotalCount)
	}

	if err := authenticator.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("Load after logout error = %v, want ErrNoSession", err)
	}

	_, err = leads.List(ctx, listctl.Query{Page: 1, PageSize: 20})
	if !client.IsUnauthorized(err) {
		t.Errorf("List after logout error = %v, want 401", err)
	}
}

// TestSharedRateLimit tests that a quota seen by one client blocks another
// client sharing the same Redis.
func TestSharedRateLimit(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockCRM()
	defer mock.Close()
	mock.SetRateLimit(100, 1, 30)

	first := crm.Sellers(newClient(t, mock.URL(), redisClient, nil))
	second := crm.Sellers(newClient(t, mock.URL(), redisClient, nil))
	ctx := context.Background()

	if _, err := first.List(ctx, listctl.Query{Page: 1, PageSize: 20}); err != nil {
		t.Fatalf("First list failed: %v", err)
	}

	_, err := second.List(ctx, listctl.Query{Page: 1, PageSize: 20})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *client.APIError", err)
	}
	if apiErr.ErrorClass != client.ErrorClassRateLimit {
		t.Errorf("ErrorClass = %s, want %s", apiErr.ErrorClass, client.ErrorClassRateLimit)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", apiErr.StatusCode)
	}
	if mock.RequestCount("GET /sellers") != 1 {
		t.Errorf("API requests = %d, want 1 (second blocked locally)", mock.RequestCount("GET /sellers"))
	}

	state, err := ratelimit.NewTracker(redisClient, zerolog.Nop()).GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Remaining != 1 || state.Limit != 100 {
		t.Errorf("state = %+v, want remaining 1 of 100", state)
	}

	ttl, err := redisClient.TTL(ctx, ratelimit.RedisKeyRemaining).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 {
		t.Errorf("TTL = %v, rate limit keys should expire", ttl)
	}
}

// TestControllerDiscardsStaleResponse tests that a slow response arriving
// after a newer one never replaces the newer page.
func TestControllerDiscardsStaleResponse(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockCRM()
	defer mock.Close()
	seedLeads(mock, 40)

	slowSeen := make(chan struct{})
	var once sync.Once
	mock.SetDelay(func(r *http.Request) time.Duration {
		if r.URL.Query().Get("search") == "slow" {
			once.Do(func() { close(slowSeen) })
			return 300 * time.Millisecond
		}
		return 0
	})

	ctrl, err := crm.Leads(newClient(t, mock.URL(), redisClient, nil)).Controller(listctl.Config{})
	if err != nil {
		t.Fatalf("Controller failed: %v", err)
	}
	defer ctrl.Close()

	ctx := context.Background()
	ctrl.Load(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Fetch(ctx, listctl.Query{Page: 1, PageSize: 20, SearchTerm: "slow"})
	}()

	<-slowSeen
	ctrl.Fetch(ctx, listctl.Query{
		Page:     1,
		PageSize: 20,
		Filters:  map[string]string{crm.FilterStatus: string(crm.LeadQualified)},
	})
	<-done

	state := ctrl.State()
	if state.Err != nil {
		t.Fatalf("state error = %+v", state.Err)
	}
	if state.TotalCount != 10 {
		t.Errorf("TotalCount = %d, want 10 (qualified leads)", state.TotalCount)
	}
	if state.LastAppliedQuery.SearchTerm != "" {
		t.Errorf("applied search = %q, stale query applied", state.LastAppliedQuery.SearchTerm)
	}
	if state.Loading {
		t.Error("Loading should be false once the latest fetch resolved")
	}
}

// TestExportAllPages tests the batch fetcher over the cached client.
func TestExportAllPages(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockCRM()
	defer mock.Close()
	mock.SetCacheMaxAge(60)
	seedLeads(mock, 250)

	leads := crm.Leads(newClient(t, mock.URL(), redisClient, nil))
	fetcher := pagination.NewBatchFetcher[crm.Lead](leads, pagination.Config{MaxConcurrency: 3, PageSize: 50})

	items, err := fetcher.FetchAll(context.Background(), listctl.Query{})
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(items) != 250 {
		t.Fatalf("len(items) = %d, want 250", len(items))
	}
	for i, l := range items {
		if l.ID != int64(i+1) {
			t.Fatalf("items[%d].ID = %d, want %d", i, l.ID, i+1)
		}
	}
	if mock.RequestCount("GET /leads") != 5 {
		t.Errorf("API requests = %d, want 5 (each page once)", mock.RequestCount("GET /leads"))
	}
}
