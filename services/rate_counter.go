package services

import (
	"context"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

// RateCounterService implements fixed-window counters on the shared store.
// Known trade-off of fixed windows: a client can burst up to ~2x the limit
// across a window boundary. Accepted for the O(1) cost per request; do not
// "fix" this here, a sliding window is a different design.
type RateCounterService struct {
	appContext.DefaultService

	store StateStore
}

const RATE_COUNTER_SVC = "rate_counter_svc"

func (svc RateCounterService) Id() string {
	return RATE_COUNTER_SVC
}

func (svc *RateCounterService) Start() error {
	svc.store = svc.Service(REDIS_SVC).(*RedisService)
	return nil
}

// Increment bumps the counter for key inside the current window and returns
// the post-increment count. The TTL is set only when the increment opens the
// window; later increments leave it alone so the window boundary stays fixed.
func (svc *RateCounterService) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	storeKey := shared.KeyPrefixRateCounter + key

	count, err := svc.store.Incr(ctx, storeKey)
	if err != nil {
		return 0, err
	}

	if count == 1 {
		if err := svc.store.Expire(ctx, storeKey, window); err != nil {
			// Counter exists without TTL now; the sweeper reaps such keys.
			log.WithError(err).WithField("key", key).Warn("Failed to set rate window expiry")
		}
	}

	return count, nil
}

// Allow wraps Increment and compares against limit. Store failures fail
// open: the caller gets allowed=true and a logged warning.
func (svc *RateCounterService) Allow(ctx context.Context, key string, limit int, window time.Duration) (dto.RateLimitInfo, error) {
	count, err := svc.Increment(ctx, key, window)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Rate counter unavailable, failing open")
		return dto.RateLimitInfo{Allowed: true, Remaining: -1}, err
	}

	info := dto.RateLimitInfo{
		Allowed: count <= int64(limit),
		Count:   count,
	}
	if remaining := int64(limit) - count; remaining > 0 {
		info.Remaining = remaining
	}

	if ttl, err := svc.store.TTL(ctx, shared.KeyPrefixRateCounter+key); err == nil && ttl > 0 {
		reset := time.Now().Add(ttl)
		info.ResetTime = &reset
	}

	return info, nil
}

// Reset clears the counter for key. Admin/test helper, never on the hot path.
func (svc *RateCounterService) Reset(ctx context.Context, key string) error {
	return svc.store.Del(ctx, shared.KeyPrefixRateCounter+key)
}
