package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/model"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

// SweeperService runs the two periodic maintenance tasks outside the
// request path: a health check over recent high-severity events and a
// defensive cleanup of lapsed store entries. Both are idempotent and safe
// to run concurrently from several gateway instances. Lifecycle is owned by
// the process bootstrap through Start/Shutdown; nothing here runs as an
// import side effect.
type SweeperService struct {
	appContext.DefaultService

	cfg     *SecurityConfig
	store   StateStore
	events  *SecurityEventService
	db      *gorm.DB
	archive *MinIOService

	closed chan struct{}
}

const SWEEPER_SVC = "sweeper_svc"

func (svc SweeperService) Id() string {
	return SWEEPER_SVC
}

func (svc *SweeperService) Configure(ctx *appContext.Context) error {
	svc.cfg = ctx.Service(SECURITY_CONFIG_SVC).(*SecurityConfigService).Config()
	return svc.DefaultService.Configure(ctx)
}

func (svc *SweeperService) Start() error {
	svc.store = svc.Service(REDIS_SVC).(*RedisService)
	svc.events = svc.Service(SECURITY_EVENT_SVC).(*SecurityEventService)
	svc.db = svc.Service(POSTGRES_SVC).(*PostgresService).Db()
	svc.archive = svc.Service(MINIO_SVC).(*MinIOService)
	svc.closed = make(chan struct{})

	go svc.healthLoop()
	go svc.cleanupLoop()

	log.WithField("health_interval", svc.cfg.SweeperHealthInterval).
		WithField("cleanup_interval", svc.cfg.SweeperCleanupInterval).
		Info("Background sweeper started")
	return nil
}

func (svc *SweeperService) Shutdown() {
	if svc.closed != nil {
		close(svc.closed)
	}
}

func (svc *SweeperService) healthLoop() {
	ticker := time.NewTicker(svc.cfg.SweeperHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			svc.RunHealthCheck(context.Background())
		case <-svc.closed:
			return
		}
	}
}

func (svc *SweeperService) cleanupLoop() {
	ticker := time.NewTicker(svc.cfg.SweeperCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			svc.RunCleanup(context.Background())
		case <-svc.closed:
			return
		}
	}
}

// RunHealthCheck aggregates recent CRITICAL/HIGH event counts and raises an
// operator-facing log line when they cross the alert threshold. This is a
// system log, deliberately not a SecurityEvent: the sweeper must not feed
// the metric it samples.
func (svc *SweeperService) RunHealthCheck(ctx context.Context) {
	since := time.Now().Add(-svc.cfg.SweeperHealthInterval)
	count, err := svc.events.CountSince(ctx, since, []string{shared.SeverityCritical, shared.SeverityHigh})
	if err != nil {
		log.WithError(err).Warn("Sweeper health check could not count recent events")
		return
	}

	if count > svc.cfg.HealthAlertThreshold {
		log.WithField("high_severity_events", count).
			WithField("window", svc.cfg.SweeperHealthInterval).
			Error("Elevated security event volume")
	} else {
		log.WithField("high_severity_events", count).Debug("Sweeper health check passed")
	}
}

// RunCleanup purges lapsed entries from every TTL-bounded namespace, drops
// failed-attempt records whose last attempt is older than 24 hours even if
// refreshes kept them alive, and archives aged audit rows.
func (svc *SweeperService) RunCleanup(ctx context.Context) {
	removed := 0
	for _, prefix := range []string{
		shared.KeyPrefixRateCounter,
		shared.KeyPrefixFailedAttempts,
		shared.KeyPrefixLockout,
		shared.KeyPrefixBlacklist,
		shared.KeyPrefixTempBlock,
		shared.KeyPrefixGeoRecord,
	} {
		removed += svc.sweepNamespace(ctx, prefix)
	}

	removed += svc.sweepStaleFailures(ctx)
	svc.updateBlockGauges(ctx)

	if svc.db != nil && svc.archive != nil {
		if err := svc.archiveAuditRows(ctx); err != nil {
			log.WithError(err).Warn("Audit archive pass failed")
		}
	}

	log.WithField("removed", removed).Info("Sweeper cleanup completed")
}

// sweepNamespace deletes keys whose TTL already lapsed, plus keys that lost
// their TTL entirely: every namespace swept here is TTL-bounded by
// contract, so a key without expiry is a leak.
func (svc *SweeperService) sweepNamespace(ctx context.Context, prefix string) int {
	keys, err := svc.store.Keys(ctx, prefix+"*")
	if err != nil {
		log.WithError(err).WithField("namespace", prefix).Warn("Sweeper could not enumerate namespace")
		return 0
	}

	removed := 0
	for _, key := range keys {
		ttl, err := svc.store.TTL(ctx, key)
		if err != nil {
			continue
		}
		// Negative TTL: no expiry set (-1) or already gone (-2). Either
		// way the entry has no business surviving this sweep.
		if ttl < 0 {
			if err := svc.store.Del(ctx, key); err == nil {
				removed++
			}
		}
	}
	return removed
}

// sweepStaleFailures enforces the 24h hard cutoff on failed-attempt
// records regardless of TTL refreshes.
func (svc *SweeperService) sweepStaleFailures(ctx context.Context) int {
	keys, err := svc.store.Keys(ctx, shared.KeyPrefixLastAttempt+"*")
	if err != nil {
		log.WithError(err).Warn("Sweeper could not enumerate last-attempt markers")
		return 0
	}

	cutoff := time.Now().Add(-24 * time.Hour).Unix()
	removed := 0
	for _, key := range keys {
		raw, err := svc.store.Get(ctx, key)
		if err != nil || raw == "" {
			continue
		}
		lastSeen, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || lastSeen >= cutoff {
			continue
		}

		ip := key[len(shared.KeyPrefixLastAttempt):]
		if err := svc.store.Del(ctx, key, shared.KeyPrefixFailedAttempts+ip); err == nil {
			removed++
		}
	}
	return removed
}

func (svc *SweeperService) updateBlockGauges(ctx context.Context) {
	if keys, err := svc.store.Keys(ctx, shared.KeyPrefixBlacklist+"*"); err == nil {
		SetActiveBlocks("blacklist", len(keys))
	}
	if keys, err := svc.store.Keys(ctx, shared.KeyPrefixTempBlock+"*"); err == nil {
		SetActiveBlocks("tempblock", len(keys))
	}
}

// archiveAuditRows exports audit events past the retention window to object
// storage as one JSON object per pass, then prunes the exported rows.
func (svc *SweeperService) archiveAuditRows(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -svc.cfg.AuditRetentionDays)

	var rows []model.SecurityEvent
	if err := svc.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Limit(10000).
		Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	data, err := sonic.Marshal(rows)
	if err != nil {
		return err
	}

	objectName := fmt.Sprintf("audit/security-events-%s-%d.json", time.Now().UTC().Format("2006-01-02"), time.Now().UnixNano())
	if err := svc.archive.UploadArchive(ctx, objectName, data); err != nil {
		return err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	if err := svc.db.WithContext(ctx).Delete(&model.SecurityEvent{}, "id IN ?", ids).Error; err != nil {
		return err
	}

	log.WithField("archived", len(rows)).WithField("object", objectName).Info("Audit events archived")
	return nil
}
