package health

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

// TestRedisChecker_Unreachable tests that an unreachable server is reported.
func TestRedisChecker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:9999", // nothing listens here
	})
	defer client.Close()

	if err := NewRedisChecker(client).HealthCheck(context.Background()); err == nil {
		t.Error("expected an error for an unreachable Redis")
	}
}

// TestRedisChecker_ContextCancellation tests that a cancelled context fails the check.
func TestRedisChecker_ContextCancellation(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewRedisChecker(client).HealthCheck(ctx); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}

// TestRedisChecker_NotConfigured tests a checker without a client.
func TestRedisChecker_NotConfigured(t *testing.T) {
	if err := NewRedisChecker(nil).HealthCheck(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
