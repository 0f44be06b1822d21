package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

func TestRateCounterIncrementOpensWindowOnce(t *testing.T) {
	store := newFakeStore()
	svc := &RateCounterService{store: store}
	ctx := context.Background()

	count, err := svc.Increment(ctx, "rpm:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	ttl, err := store.TTL(ctx, shared.KeyPrefixRateCounter+"rpm:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	// Later increments must not move the window boundary.
	store.advance(30 * time.Second)
	count, err = svc.Increment(ctx, "rpm:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ttl, err = store.TTL(ctx, shared.KeyPrefixRateCounter+"rpm:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ttl)
}

func TestRateCounterWindowResets(t *testing.T) {
	store := newFakeStore()
	svc := &RateCounterService{store: store}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Increment(ctx, "rpm:1.2.3.4", time.Minute)
		require.NoError(t, err)
	}

	store.advance(time.Minute + time.Second)

	count, err := svc.Increment(ctx, "rpm:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "lapsed window starts a fresh count")
}

func TestRateCounterAllow(t *testing.T) {
	store := newFakeStore()
	svc := &RateCounterService{store: store}
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		info, err := svc.Allow(ctx, "rpm:5.6.7.8", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, info.Allowed)
		assert.Equal(t, int64(i), info.Count)
	}

	info, err := svc.Allow(ctx, "rpm:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, int64(4), info.Count)
	assert.Equal(t, int64(0), info.Remaining)
	require.NotNil(t, info.ResetTime)
}

func TestRateCounterFailsOpen(t *testing.T) {
	svc := &RateCounterService{store: downStore{}}

	info, err := svc.Allow(context.Background(), "rpm:1.1.1.1", 10, time.Minute)
	assert.Error(t, err)
	assert.True(t, info.Allowed, "store failure must not block traffic")
}

func TestRateCounterIndependentKeys(t *testing.T) {
	store := newFakeStore()
	svc := &RateCounterService{store: store}
	ctx := context.Background()

	_, err := svc.Increment(ctx, "rpm:1.1.1.1", time.Minute)
	require.NoError(t, err)

	count, err := svc.Increment(ctx, "rpm:2.2.2.2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRateCounterReset(t *testing.T) {
	store := newFakeStore()
	svc := &RateCounterService{store: store}
	ctx := context.Background()

	_, err := svc.Increment(ctx, "rpm:1.1.1.1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, "rpm:1.1.1.1"))

	count, err := svc.Increment(ctx, "rpm:1.1.1.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
