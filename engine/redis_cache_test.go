//go:build integration

package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port()), func() { container.Terminate(ctx) }
}

func TestRedisRulesetCache(t *testing.T) {
	url, cleanup := setupTestRedis(t)
	defer cleanup()

	client, err := ConnectRedis(context.Background(), url)
	if err != nil {
		t.Fatalf("ConnectRedis() failed: %v", err)
	}
	defer client.Close()

	cache := NewRedisRulesetCache(client, "rulecheck:acme:rulesets", CacheConfig{TTL: time.Second})
	if cache.IsValid() || cache.Get() != nil {
		t.Fatal("new cache should be empty")
	}

	cache.Set([]*RulesetRecord{{ID: "a", Name: "A", Definition: titleRuleset, Active: true}})
	got := cache.Get()
	if len(got) != 1 || got[0].Definition != titleRuleset {
		t.Fatalf("Get() = %v, want the cached ruleset", got)
	}

	cache.Invalidate()
	if cache.IsValid() {
		t.Error("Invalidate() should remove the key")
	}

	cache.Set(nil)
	if got := cache.Get(); got == nil {
		t.Error("an empty cached list should not read as a miss")
	}

	time.Sleep(1500 * time.Millisecond)
	if cache.IsValid() {
		t.Error("cached list should expire after its TTL")
	}
}

func TestRedisRulesetCacheSharedAcrossEngines(t *testing.T) {
	url, cleanup := setupTestRedis(t)
	defer cleanup()

	client, err := ConnectRedis(context.Background(), url)
	if err != nil {
		t.Fatalf("ConnectRedis() failed: %v", err)
	}
	defer client.Close()

	store := NewInMemoryRulesetStore()
	first, _ := NewEngine(store, WithCache(NewRedisRulesetCache(client, "shared", DefaultCacheConfig())))
	if err := first.AddRuleset(&RulesetRecord{ID: "title", Definition: titleRuleset, Active: true}); err != nil {
		t.Fatalf("AddRuleset() failed: %v", err)
	}

	second, err := NewEngine(store, WithCache(NewRedisRulesetCache(client, "shared", DefaultCacheConfig())))
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	results, err := second.EvaluateAll(mustDoc(t, `<r><activity><title/></activity></r>`))
	if err != nil {
		t.Fatalf("EvaluateAll() failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("EvaluateAll() returned %d results, want 1", len(results))
	}
}

func TestConnectRedisUnreachable(t *testing.T) {
	if _, err := ConnectRedis(context.Background(), "redis://127.0.0.1:1/0"); err == nil {
		t.Error("ConnectRedis() should fail for an unreachable server")
	}
}
