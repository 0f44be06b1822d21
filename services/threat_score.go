package services

import (
	"context"

	appContext "github.com/alphabatem/common/context"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

const maxThreatScore = 200

type geoScorer interface {
	Score(ctx context.Context, ip string) int
}

type failureCounter interface {
	FailureCount(ctx context.Context, ip string) int
}

// ThreatScoreService aggregates the independent abuse signals into one
// bounded score. Evaluate performs no writes of its own; the only side
// effects are those the sub-components already make (the rate counter
// increment, the geo record overwrite). Scores are never persisted; they
// are recomputed per request from current state.
type ThreatScoreService struct {
	appContext.DefaultService

	cfg       *SecurityConfig
	detectors []PatternDetector
	rate      *RateCounterService
	geo       geoScorer
	failures  failureCounter
}

const THREAT_SCORE_SVC = "threat_score_svc"

func (svc ThreatScoreService) Id() string {
	return THREAT_SCORE_SVC
}

func (svc *ThreatScoreService) Configure(ctx *appContext.Context) error {
	svc.cfg = ctx.Service(SECURITY_CONFIG_SVC).(*SecurityConfigService).Config()
	svc.detectors = DefaultPatternDetectors()
	return svc.DefaultService.Configure(ctx)
}

func (svc *ThreatScoreService) Start() error {
	svc.rate = svc.Service(RATE_COUNTER_SVC).(*RateCounterService)
	svc.geo = svc.Service(GEO_ANOMALY_SVC).(*GeoAnomalyService)
	svc.failures = svc.Service(BRUTE_FORCE_SVC).(*BruteForceService)
	return nil
}

// NewThreatScoreService builds a scorer outside the service container.
func NewThreatScoreService(cfg *SecurityConfig, detectors []PatternDetector, rate *RateCounterService, geo geoScorer, failures failureCounter) *ThreatScoreService {
	return &ThreatScoreService{
		cfg:       cfg,
		detectors: detectors,
		rate:      rate,
		geo:       geo,
		failures:  failures,
	}
}

// Evaluate computes the composite threat score for one request. The result
// is clamped to [0, maxThreatScore] and is monotone in each signal. Each
// store-touching signal runs under its own defensive timeout, so a hung
// store costs at most StoreTimeout per signal and the signal drops out.
func (svc *ThreatScoreService) Evaluate(ctx context.Context, fp dto.RequestFingerprint) dto.ThreatAssessment {
	var contributions []dto.ScoreContribution
	score := 0

	text := CanonicalRequestText(fp)
	for _, det := range svc.detectors {
		if det.Match(text) {
			score += det.Weight
			contributions = append(contributions, dto.ScoreContribution{Signal: det.Name, Points: det.Weight})
		}
	}

	if SuspiciousClient(fp.ClientID) {
		score += svc.cfg.SuspiciousClientWeight
		contributions = append(contributions, dto.ScoreContribution{
			Signal: shared.SignalSuspiciousClient,
			Points: svc.cfg.SuspiciousClientWeight,
		})
	}

	// Requests-per-window overflow contributes to the score regardless of
	// whether any rate limiter rejects the request.
	if svc.rate != nil {
		rateCtx, cancel := svc.storeCtx(ctx)
		info, err := svc.rate.Allow(rateCtx, "rpm:"+fp.IP, svc.cfg.RateLimitMax, svc.cfg.RateWindow)
		cancel()
		if err == nil && !info.Allowed {
			score += svc.cfg.RateOverflowWeight
			contributions = append(contributions, dto.ScoreContribution{
				Signal: shared.SignalRateOverflow,
				Points: svc.cfg.RateOverflowWeight,
			})
		}
	}

	if svc.geo != nil {
		if geoPoints := svc.geo.Score(ctx, fp.IP); geoPoints > 0 {
			score += geoPoints
			contributions = append(contributions, dto.ScoreContribution{
				Signal: shared.SignalGeoAnomaly,
				Points: geoPoints,
			})
		}
	}

	if svc.failures != nil {
		failCtx, cancel := svc.storeCtx(ctx)
		failures := svc.failures.FailureCount(failCtx, fp.IP)
		cancel()
		if failures > 3 {
			penalty := 10 * (failures - 3)
			score += penalty
			contributions = append(contributions, dto.ScoreContribution{
				Signal: shared.SignalFailedAttempts,
				Points: penalty,
			})
		}
	}

	if score > maxThreatScore {
		score = maxThreatScore
	}
	if score < 0 {
		score = 0
	}

	return dto.ThreatAssessment{Score: score, Contributions: contributions}
}

func (svc *ThreatScoreService) storeCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, svc.cfg.StoreTimeout)
}
