package services

import (
	"context"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

// BruteForceService tracks failed authentication per client IP.
//
// State machine per IP:
//
//	Clean -> Warned (1..max-1 failures) -> Locked (>= max failures)
//	Locked -> Clean on success or lockout expiry
//
// Lockouts gate authentication-class endpoints only. Every operation fails
// open when the store is unavailable: enforcement degrades, the
// application keeps serving.
type BruteForceService struct {
	appContext.DefaultService

	cfg    *SecurityConfig
	store  StateStore
	events EventAppender
}

const BRUTE_FORCE_SVC = "brute_force_svc"

func (svc BruteForceService) Id() string {
	return BRUTE_FORCE_SVC
}

func (svc *BruteForceService) Configure(ctx *appContext.Context) error {
	svc.cfg = ctx.Service(SECURITY_CONFIG_SVC).(*SecurityConfigService).Config()
	return svc.DefaultService.Configure(ctx)
}

func (svc *BruteForceService) Start() error {
	svc.store = svc.Service(REDIS_SVC).(*RedisService)
	svc.events = svc.Service(SECURITY_EVENT_SVC).(*SecurityEventService)
	return nil
}

// RecordFailure counts one failed authentication. The failure window is
// rolling: each failure refreshes the counter TTL. Reaching the configured
// maximum creates the lockout record. Setting a lockout twice is harmless,
// so the read-then-write race between gateway instances needs no lock.
func (svc *BruteForceService) RecordFailure(ctx context.Context, ip string) {
	failKey := shared.KeyPrefixFailedAttempts + ip

	count, err := svc.store.Incr(ctx, failKey)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed-attempt counter unavailable")
		storeFailuresTotal.WithLabelValues("bruteforce").Inc()
		return
	}

	if err := svc.store.Expire(ctx, failKey, svc.cfg.FailedAttemptWindow); err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed to refresh attempt window")
	}

	// Last-attempt marker lives slightly longer than the 24h cutoff the
	// sweeper applies to endlessly-refreshed counters.
	now := time.Now().UTC()
	if err := svc.store.Set(ctx, shared.KeyPrefixLastAttempt+ip, strconv.FormatInt(now.Unix(), 10), 25*time.Hour); err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed to record last attempt time")
	}

	if count < int64(svc.cfg.MaxFailedAttempts) {
		return
	}

	if err := svc.store.Set(ctx, shared.KeyPrefixLockout+ip, strconv.FormatInt(now.Unix(), 10), svc.cfg.LockoutDuration); err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed to write lockout record")
		return
	}

	svc.events.Append(dto.SecurityEvent{
		Type:     shared.EventLockout,
		Severity: shared.SeverityHigh,
		Payload: map[string]interface{}{
			"ip":              ip,
			"failed_attempts": count,
			"lockout_seconds": int(svc.cfg.LockoutDuration.Seconds()),
		},
	})

	log.WithField("ip", ip).WithField("failures", count).Warn("IP locked out after repeated auth failures")
}

// RecordSuccess transitions the IP back to Clean.
func (svc *BruteForceService) RecordSuccess(ctx context.Context, ip string) {
	err := svc.store.Del(ctx,
		shared.KeyPrefixFailedAttempts+ip,
		shared.KeyPrefixLastAttempt+ip,
		shared.KeyPrefixLockout+ip,
	)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed to clear brute force state")
	}
}

// IsLocked reports an active lockout. Only consulted for
// authentication-class endpoints.
func (svc *BruteForceService) IsLocked(ctx context.Context, ip string) bool {
	exists, err := svc.store.Exists(ctx, shared.KeyPrefixLockout+ip)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Lockout check unavailable, failing open")
		storeFailuresTotal.WithLabelValues("bruteforce").Inc()
		return false
	}
	return exists
}

// LockoutRemaining returns the remaining lockout TTL, zero when not locked.
func (svc *BruteForceService) LockoutRemaining(ctx context.Context, ip string) time.Duration {
	ttl, err := svc.store.TTL(ctx, shared.KeyPrefixLockout+ip)
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

// FailureCount is a read-only view for the threat scorer.
func (svc *BruteForceService) FailureCount(ctx context.Context, ip string) int {
	raw, err := svc.store.Get(ctx, shared.KeyPrefixFailedAttempts+ip)
	if err != nil || raw == "" {
		return 0
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return count
}
