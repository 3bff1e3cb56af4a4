//go:build integration

// Package integration runs the client stack against the mock CRM API and a
// real Redis started with testcontainers.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/crm-admin-client/internal/testutil"
	"github.com/Sternrassler/crm-admin-client/pkg/client"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(ctx)
	})

	return redisClient
}

func newClient(t *testing.T, baseURL string, redisClient *redis.Client, tokens client.TokenSource) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig(baseURL, redisClient)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.ThrottleDelay = 0
	cfg.Tokens = tokens

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func seedLeads(mock *testutil.MockCRM, n int) {
	for i := 1; i <= n; i++ {
		status := "NEW"
		if i%4 == 0 {
			status = "QUALIFIED"
		}
		mock.Seed("leads", testutil.Record{
			"name":     fmt.Sprintf("Lead %03d", i),
			"status":   status,
			"sellerId": i%3 + 1,
		})
	}
}
