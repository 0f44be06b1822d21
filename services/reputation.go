package services

import (
	"context"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

type blacklistEntry struct {
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// IPReputationService owns the blacklist and temporary-block namespaces.
// Both checks are single-key lookups because they run on every request
// before any scoring work. Blacklist entries are longer-lived, reason-tagged
// bans; temporary blocks are short-lived auto-containment and live in their
// own namespace so the two lifecycles stay independent.
type IPReputationService struct {
	appContext.DefaultService

	cfg    *SecurityConfig
	store  StateStore
	events EventAppender
}

const IP_REPUTATION_SVC = "ip_reputation_svc"

func (svc IPReputationService) Id() string {
	return IP_REPUTATION_SVC
}

func (svc *IPReputationService) Configure(ctx *appContext.Context) error {
	svc.cfg = ctx.Service(SECURITY_CONFIG_SVC).(*SecurityConfigService).Config()
	return svc.DefaultService.Configure(ctx)
}

func (svc *IPReputationService) Start() error {
	svc.store = svc.Service(REDIS_SVC).(*RedisService)
	svc.events = svc.Service(SECURITY_EVENT_SVC).(*SecurityEventService)
	return nil
}

// Blacklist writes a reason-tagged ban for ip. A zero duration means the
// configured default.
func (svc *IPReputationService) Blacklist(ctx context.Context, ip, reason string, duration time.Duration) error {
	if duration <= 0 {
		duration = svc.cfg.BlacklistDuration
	}

	entry := blacklistEntry{Reason: reason, CreatedAt: time.Now().UTC()}
	if err := svc.store.Set(ctx, shared.KeyPrefixBlacklist+ip, entry, duration); err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed to write blacklist entry")
		return err
	}

	svc.events.Append(dto.SecurityEvent{
		Type:     shared.EventBlacklistAdded,
		Severity: shared.SeverityCritical,
		Payload: map[string]interface{}{
			"ip":               ip,
			"reason":           reason,
			"duration_seconds": int(duration.Seconds()),
		},
	})

	log.WithField("ip", ip).WithField("reason", reason).Warn("IP blacklisted")
	return nil
}

// IsBlacklisted is TTL-bounded: expiry of the entry is the release.
// Store failures fail open.
func (svc *IPReputationService) IsBlacklisted(ctx context.Context, ip string) bool {
	exists, err := svc.store.Exists(ctx, shared.KeyPrefixBlacklist+ip)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Blacklist check unavailable, failing open")
		storeFailuresTotal.WithLabelValues("blacklist").Inc()
		return false
	}
	return exists
}

// Unblacklist is the manual moderation release.
func (svc *IPReputationService) Unblacklist(ctx context.Context, ip string) error {
	if err := svc.store.Del(ctx, shared.KeyPrefixBlacklist+ip); err != nil {
		return err
	}

	svc.events.Append(dto.SecurityEvent{
		Type:     shared.EventBlacklistRemoved,
		Severity: shared.SeverityLow,
		Payload:  map[string]interface{}{"ip": ip},
	})
	return nil
}

// TemporaryBlock is the gate's auto-containment action after a single
// high-scoring request.
func (svc *IPReputationService) TemporaryBlock(ctx context.Context, ip string, duration time.Duration) error {
	if duration <= 0 {
		duration = svc.cfg.TempBlockDuration
	}

	entry := blacklistEntry{Reason: "auto-containment", CreatedAt: time.Now().UTC()}
	if err := svc.store.Set(ctx, shared.KeyPrefixTempBlock+ip, entry, duration); err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Failed to write temporary block")
		return err
	}

	svc.events.Append(dto.SecurityEvent{
		Type:     shared.EventTempBlock,
		Severity: shared.SeverityHigh,
		Payload: map[string]interface{}{
			"ip":               ip,
			"duration_seconds": int(duration.Seconds()),
		},
	})

	log.WithField("ip", ip).WithField("duration", duration).Warn("IP temporarily blocked")
	return nil
}

func (svc *IPReputationService) IsTempBlocked(ctx context.Context, ip string) bool {
	exists, err := svc.store.Exists(ctx, shared.KeyPrefixTempBlock+ip)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Temp block check unavailable, failing open")
		storeFailuresTotal.WithLabelValues("tempblock").Inc()
		return false
	}
	return exists
}

// ActiveBlacklist enumerates current blacklist entries for the admin API.
// Uses Keys, so it never runs on the request path.
func (svc *IPReputationService) ActiveBlacklist(ctx context.Context) ([]dto.BlacklistedIP, error) {
	keys, err := svc.store.Keys(ctx, shared.KeyPrefixBlacklist+"*")
	if err != nil {
		return nil, err
	}

	out := make([]dto.BlacklistedIP, 0, len(keys))
	for _, key := range keys {
		raw, err := svc.store.Get(ctx, key)
		if err != nil || raw == "" {
			continue
		}

		var entry blacklistEntry
		if err := sonic.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}

		item := dto.BlacklistedIP{
			IP:        strings.TrimPrefix(key, shared.KeyPrefixBlacklist),
			Reason:    entry.Reason,
			CreatedAt: entry.CreatedAt,
		}
		if ttl, err := svc.store.TTL(ctx, key); err == nil && ttl > 0 {
			item.ExpiresIn = int(ttl.Seconds())
		}
		out = append(out, item)
	}

	return out, nil
}
