// Package redis provides a FenceState shared by every consumer connected to
// the same Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chflow"
	"chflow/store"
)

// Ensure RedisFenceState implements store.FenceState
var _ store.FenceState = (*RedisFenceState)(nil)

// RedisFenceState keeps one string key per category.
type RedisFenceState struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// Option is a functional option for configuring RedisFenceState
type Option func(*RedisFenceState)

// WithPrefix sets the key prefix for fences
func WithPrefix(prefix string) Option {
	return func(f *RedisFenceState) {
		f.prefix = prefix
	}
}

// WithTTL expires idle fences. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(f *RedisFenceState) {
		f.ttl = ttl
	}
}

// NewRedisFenceState creates a Redis-backed fence state
func NewRedisFenceState(client redis.Cmdable, opts ...Option) *RedisFenceState {
	f := &RedisFenceState{
		client: client,
		prefix: "chflow:fence:",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Begin overwrites the fence of cat
func (f *RedisFenceState) Begin(ctx context.Context, cat chflow.Category, key chflow.FenceKey) error {
	if err := f.client.Set(ctx, f.key(cat), string(key), f.ttl).Err(); err != nil {
		return fmt.Errorf("set fence %s: %w", cat, err)
	}
	return nil
}

// Current reads the fence of cat
func (f *RedisFenceState) Current(ctx context.Context, cat chflow.Category) (chflow.FenceKey, bool, error) {
	val, err := f.client.Get(ctx, f.key(cat)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get fence %s: %w", cat, err)
	}
	return chflow.FenceKey(val), true, nil
}

// Reset removes the fences of every category
func (f *RedisFenceState) Reset(ctx context.Context) error {
	keys := make([]string, 0, len(chflow.Categories))
	for _, cat := range chflow.Categories {
		keys = append(keys, f.key(cat))
	}
	return f.client.Del(ctx, keys...).Err()
}

func (f *RedisFenceState) key(cat chflow.Category) string {
	return f.prefix + string(cat)
}
