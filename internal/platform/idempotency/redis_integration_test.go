//go:build integration

package idempotency

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreLifecycle(t *testing.T) {
	addr := os.Getenv("STOREFRONT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STOREFRONT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	store := NewRedisStore(client)
	key := "it-" + time.Now().Format("150405.000000")
	defer store.Release(ctx, key)

	res, err := store.Reserve(ctx, key, "fp", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateNew, res.State)

	res, err = store.Reserve(ctx, key, "fp", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatePending, res.State)

	_, err = store.Reserve(ctx, key, "other", time.Minute)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)

	require.NoError(t, store.Complete(ctx, key, "fp", Response{Status: 201, Body: []byte(`{"ok":true}`)}, time.Minute))
	res, err = store.Reserve(ctx, key, "fp", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 201, res.Response.Status)
}
