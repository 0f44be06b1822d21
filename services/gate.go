package services

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

// maxInspectedBody bounds how much request body the detectors see. Larger
// payloads are truncated, not rejected.
const maxInspectedBody = 16 * 1024

// GateService is the single entry point of the threat-detection layer:
// every inbound request flows through Check before any business handler
// runs. It orchestrates the reputation store, the brute force guard and the
// threat scorer, and is the only component that performs the final
// allow/reject side effect. It never mutates business data.
type GateService struct {
	appContext.DefaultService

	cfg        *SecurityConfig
	reputation *IPReputationService
	bruteForce *BruteForceService
	scorer     *ThreatScoreService
	events     EventAppender
}

const GATE_SVC = "gate_svc"

func (svc GateService) Id() string {
	return GATE_SVC
}

func (svc *GateService) Configure(ctx *appContext.Context) error {
	svc.cfg = ctx.Service(SECURITY_CONFIG_SVC).(*SecurityConfigService).Config()
	return svc.DefaultService.Configure(ctx)
}

func (svc *GateService) Start() error {
	svc.reputation = svc.Service(IP_REPUTATION_SVC).(*IPReputationService)
	svc.bruteForce = svc.Service(BRUTE_FORCE_SVC).(*BruteForceService)
	svc.scorer = svc.Service(THREAT_SCORE_SVC).(*ThreatScoreService)
	svc.events = svc.Service(SECURITY_EVENT_SVC).(*SecurityEventService)
	return nil
}

// NewGateService builds a gate outside the service container.
func NewGateService(cfg *SecurityConfig, reputation *IPReputationService, bruteForce *BruteForceService, scorer *ThreatScoreService, events EventAppender) *GateService {
	return &GateService{
		cfg:        cfg,
		reputation: reputation,
		bruteForce: bruteForce,
		scorer:     scorer,
		events:     events,
	}
}

// Handler adapts the gate to fiber. authEndpoint marks routes of the
// authentication class, the only ones a lockout applies to; the gate itself
// knows nothing about specific business routes.
func (svc *GateService) Handler(authEndpoint bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fp := svc.fingerprint(c, authEndpoint)

		decision := svc.Check(c.UserContext(), fp)

		switch decision.Outcome {
		case dto.OutcomeReject:
			if decision.RetryAfterSeconds > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(decision.RetryAfterSeconds))
			}
			return shared.ResponseJSON(c, decision.StatusHint, decision.Message, nil)

		case dto.OutcomeAdvisory:
			c.Set("X-Threat-Score", strconv.Itoa(decision.Score))
			return c.Next()

		default:
			return c.Next()
		}
	}
}

// Check runs the decision pipeline in its fixed order: blacklist, lockout
// (auth-class only), scoring, thresholds. Every store access is bounded by
// the defensive timeout and fails open; a reject is returned as data, never
// as an error.
func (svc *GateService) Check(ctx context.Context, fp dto.RequestFingerprint) dto.GateDecision {
	started := time.Now()
	decision := svc.check(ctx, fp)
	RecordDecision(string(decision.Outcome), decision.Score, time.Since(started))
	return decision
}

func (svc *GateService) check(ctx context.Context, fp dto.RequestFingerprint) dto.GateDecision {
	// 1. Blacklist and temporary-block short-circuit. No scoring work and
	// no scoring side effects happen for a banned IP.
	checkCtx, cancel := svc.storeCtx(ctx)
	blocked := svc.reputation.IsBlacklisted(checkCtx, fp.IP)
	cancel()

	if !blocked {
		checkCtx, cancel = svc.storeCtx(ctx)
		blocked = svc.reputation.IsTempBlocked(checkCtx, fp.IP)
		cancel()
	}

	if blocked {
		svc.events.Append(dto.SecurityEvent{
			Type:     shared.EventBlacklistHit,
			Severity: shared.SeverityCritical,
			Payload: map[string]interface{}{
				"ip":     fp.IP,
				"path":   fp.Path,
				"method": fp.Method,
			},
		})
		return dto.GateDecision{
			Outcome:    dto.OutcomeReject,
			StatusHint: http.StatusForbidden,
			Message:    "Access denied",
		}
	}

	// 2. Lockout check, authentication-class endpoints only.
	if fp.AuthEndpoint {
		checkCtx, cancel = svc.storeCtx(ctx)
		locked := svc.bruteForce.IsLocked(checkCtx, fp.IP)
		cancel()

		if locked {
			checkCtx, cancel = svc.storeCtx(ctx)
			remaining := svc.bruteForce.LockoutRemaining(checkCtx, fp.IP)
			cancel()

			svc.events.Append(dto.SecurityEvent{
				Type:     shared.EventLockoutHit,
				Severity: shared.SeverityMedium,
				Payload:  map[string]interface{}{"ip": fp.IP, "path": fp.Path},
			})
			return dto.GateDecision{
				Outcome:           dto.OutcomeReject,
				StatusHint:        http.StatusTooManyRequests,
				Message:           "Too many failed attempts. Please try again later.",
				RetryAfterSeconds: int(remaining.Seconds()) + 1,
			}
		}
	}

	// 3. Composite threat score.
	assessment := svc.scorer.Evaluate(ctx, fp)

	// 4. Reject threshold: contain, alert, reject.
	if assessment.Score >= svc.cfg.ThreatScoreThreshold {
		// The containment write must land even if the client hangs up
		// mid-check.
		blockCtx, blockCancel := context.WithTimeout(context.WithoutCancel(ctx), svc.cfg.StoreTimeout)
		if err := svc.reputation.TemporaryBlock(blockCtx, fp.IP, svc.cfg.TempBlockDuration); err != nil {
			log.WithError(err).WithField("ip", fp.IP).Warn("Auto-containment write failed")
		}
		blockCancel()

		svc.events.Append(dto.SecurityEvent{
			Type:     shared.EventHighThreatScore,
			Severity: shared.SeverityCritical,
			Payload: map[string]interface{}{
				"ip":            fp.IP,
				"path":          fp.Path,
				"score":         assessment.Score,
				"contributions": assessment.Contributions,
			},
		})

		log.WithField("ip", fp.IP).
			WithField("score", assessment.Score).
			WithField("path", fp.Path).
			Error("High threat score, request rejected and IP contained")

		return dto.GateDecision{
			Outcome:       dto.OutcomeReject,
			StatusHint:    http.StatusForbidden,
			Message:       "Request blocked",
			Score:         assessment.Score,
			Contributions: assessment.Contributions,
		}
	}

	// 5. Advisory band: allow, but record and expose the score.
	if assessment.Score > svc.cfg.AdvisoryScoreThreshold {
		svc.events.Append(dto.SecurityEvent{
			Type:     shared.EventSuspiciousScore,
			Severity: shared.SeverityMedium,
			Payload: map[string]interface{}{
				"ip":            fp.IP,
				"path":          fp.Path,
				"score":         assessment.Score,
				"contributions": assessment.Contributions,
			},
		})
		return dto.GateDecision{
			Outcome:       dto.OutcomeAdvisory,
			Score:         assessment.Score,
			Contributions: assessment.Contributions,
		}
	}

	// 6. Clean.
	return dto.GateDecision{
		Outcome:       dto.OutcomeAllow,
		Score:         assessment.Score,
		Contributions: assessment.Contributions,
	}
}

func (svc *GateService) storeCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, svc.cfg.StoreTimeout)
}

func (svc *GateService) fingerprint(c *fiber.Ctx, authEndpoint bool) dto.RequestFingerprint {
	body := c.Body()
	if len(body) > maxInspectedBody {
		body = body[:maxInspectedBody]
	}

	return dto.RequestFingerprint{
		IP:           getClientIP(c),
		ClientID:     c.Get(fiber.HeaderUserAgent),
		Method:       c.Method(),
		Path:         c.Path(),
		Query:        string(c.Request().URI().QueryString()),
		Body:         string(body),
		AuthEndpoint: authEndpoint,
		Timestamp:    time.Now().UTC(),
	}
}

// getClientIP resolves the originating client address, honoring the proxy
// headers the load balancer sets.
func getClientIP(c *fiber.Ctx) string {
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	realIP := c.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	cfIP := c.Get("CF-Connecting-IP")
	if cfIP != "" {
		return cfIP
	}

	ip, _, err := net.SplitHostPort(c.Context().RemoteAddr().String())
	if err != nil {
		return c.Context().RemoteAddr().String()
	}

	return ip
}
