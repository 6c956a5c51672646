// Package testinfra provides test infrastructure backed by a real Redis.
// Tests that use it are skipped when Redis is not reachable.
package testinfra

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"chflow"
	"chflow/action"
	"chflow/store"
	redisfence "chflow/store/redis"
)

// DefaultConfig returns default test configuration
func DefaultConfig() TestConfig {
	return TestConfig{
		RedisAddr:     getEnvOrDefault("CHFLOW_TEST_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnvOrDefault("CHFLOW_TEST_REDIS_PASSWORD", ""),
		RedisDB:       0,
		FenceTTL:      time.Minute,
		PropertyRuns:  100,
	}
}

// TestConfig holds test configuration
type TestConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	FenceTTL      time.Duration
	PropertyRuns  int
}

// TestInfrastructure wires a store to Redis-held fences.
type TestInfrastructure struct {
	Redis  *redis.Client
	Fences *redisfence.RedisFenceState
	Bus    *action.MemoryBus
	Store  *store.Store
	Config TestConfig
	testID string
}

// NewTestInfrastructure connects to Redis and builds a store whose fences
// live under a prefix unique to this test.
func NewTestInfrastructure(t *testing.T) *TestInfrastructure {
	t.Helper()

	cfg := DefaultConfig()
	testID := fmt.Sprintf("test-%d", time.Now().UnixNano())

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Skipping test: Redis ping failed: %v", err)
	}

	return newInfrastructure(t, client, cfg, testID)
}

func newInfrastructure(t *testing.T, client *redis.Client, cfg TestConfig, testID string) *TestInfrastructure {
	t.Helper()

	fences := redisfence.NewRedisFenceState(client,
		redisfence.WithPrefix(testPrefix(testID)),
		redisfence.WithTTL(cfg.FenceTTL),
	)
	bus := action.NewMemoryBus()
	st := store.New(store.WithFenceState(fences))
	if err := st.Attach(bus); err != nil {
		t.Fatalf("attach store: %v", err)
	}

	return &TestInfrastructure{
		Redis:  client,
		Fences: fences,
		Bus:    bus,
		Store:  st,
		Config: cfg,
		testID: testID,
	}
}

// Replica returns a second store sharing this infrastructure's fences, as a
// second process pointed at the same Redis would.
func (ti *TestInfrastructure) Replica(t *testing.T) *TestInfrastructure {
	t.Helper()
	return newInfrastructure(t, ti.Redis, ti.Config, ti.testID)
}

// TestID returns the unique test identifier
func (ti *TestInfrastructure) TestID() string {
	return ti.testID
}

// Dispatch sends a through the bus.
func (ti *TestInfrastructure) Dispatch(t *testing.T, a action.Action) {
	t.Helper()
	if err := ti.Bus.Dispatch(context.Background(), a); err != nil {
		t.Fatalf("dispatch %s: %v", a.Type, err)
	}
}

// Current reads the Redis fence of cat.
func (ti *TestInfrastructure) Current(t *testing.T, cat chflow.Category) (chflow.FenceKey, bool) {
	t.Helper()
	key, ok, err := ti.Fences.Current(context.Background(), cat)
	if err != nil {
		t.Fatalf("read fence %s: %v", cat, err)
	}
	return key, ok
}

// Cleanup removes this test's fences from Redis.
func (ti *TestInfrastructure) Cleanup(t *testing.T) {
	t.Helper()
	if err := ti.Fences.Reset(context.Background()); err != nil {
		t.Logf("Warning: failed to cleanup fences: %v", err)
	}
}

// Close closes the Redis connection
func (ti *TestInfrastructure) Close() {
	if ti.Redis != nil {
		ti.Redis.Close()
	}
}

func testPrefix(testID string) string {
	return "chflow:fence:" + testID + ":"
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SkipIfNoInfrastructure skips the test if Redis is not available
func SkipIfNoInfrastructure(t *testing.T) {
	t.Helper()
	cfg := DefaultConfig()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping test: Redis not available: %v", err)
	}
}
