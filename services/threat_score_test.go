package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

func newScorer(cfg *SecurityConfig, store StateStore, geo geoScorer) *ThreatScoreService {
	rate := &RateCounterService{store: store}
	failures := &BruteForceService{cfg: cfg, store: store, events: &memoryEvents{}}
	return NewThreatScoreService(cfg, DefaultPatternDetectors(), rate, geo, failures)
}

func browserRequest(ip, path string) dto.RequestFingerprint {
	return dto.RequestFingerprint{
		IP:       ip,
		ClientID: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
		Method:   "GET",
		Path:     path,
	}
}

func TestCleanRequestScoresZero(t *testing.T) {
	svc := newScorer(testConfig(), newFakeStore(), stubGeoScorer{})

	assessment := svc.Evaluate(context.Background(), browserRequest("1.2.3.4", "/api/v1/teams"))
	assert.Equal(t, 0, assessment.Score)
	assert.Empty(t, assessment.Contributions)
}

func TestPatternContributions(t *testing.T) {
	svc := newScorer(testConfig(), newFakeStore(), stubGeoScorer{})

	fp := browserRequest("1.2.3.4", "/search")
	fp.Query = "q=1 UNION SELECT password FROM users"

	assessment := svc.Evaluate(context.Background(), fp)
	assert.Equal(t, 30, assessment.Score)
	require.Len(t, assessment.Contributions, 1)
	assert.Equal(t, shared.SignalSQLInjection, assessment.Contributions[0].Signal)
	assert.Equal(t, 30, assessment.Contributions[0].Points)
}

func TestSuspiciousClientContribution(t *testing.T) {
	cfg := testConfig()
	svc := newScorer(cfg, newFakeStore(), stubGeoScorer{})

	fp := browserRequest("1.2.3.4", "/api/v1/teams")
	fp.ClientID = "sqlmap/1.7"

	assessment := svc.Evaluate(context.Background(), fp)
	assert.Equal(t, cfg.SuspiciousClientWeight, assessment.Score)

	// A missing client identifier carries the same weight.
	fp.ClientID = ""
	assessment = svc.Evaluate(context.Background(), fp)
	assert.Equal(t, cfg.SuspiciousClientWeight, assessment.Score)
}

func TestRateOverflowContribution(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMax = 3
	store := newFakeStore()
	svc := newScorer(cfg, store, stubGeoScorer{})
	ctx := context.Background()

	fp := browserRequest("1.2.3.4", "/api/v1/teams")
	for i := 0; i < 3; i++ {
		assessment := svc.Evaluate(ctx, fp)
		assert.Equal(t, 0, assessment.Score)
	}

	assessment := svc.Evaluate(ctx, fp)
	assert.Equal(t, cfg.RateOverflowWeight, assessment.Score)
	require.Len(t, assessment.Contributions, 1)
	assert.Equal(t, shared.SignalRateOverflow, assessment.Contributions[0].Signal)
}

func TestGeoContribution(t *testing.T) {
	cfg := testConfig()
	svc := newScorer(cfg, newFakeStore(), stubGeoScorer{points: cfg.GeoAnomalyWeight})

	assessment := svc.Evaluate(context.Background(), browserRequest("1.2.3.4", "/api/v1/teams"))
	assert.Equal(t, cfg.GeoAnomalyWeight, assessment.Score)
}

func TestFailedAttemptPenalty(t *testing.T) {
	cfg := testConfig()
	store := newFakeStore()
	svc := newScorer(cfg, store, stubGeoScorer{})
	ctx := context.Background()

	failures := &BruteForceService{cfg: cfg, store: store, events: &memoryEvents{}}

	// Three failures: no penalty yet.
	for i := 0; i < 3; i++ {
		failures.RecordFailure(ctx, "1.2.3.4")
	}
	assessment := svc.Evaluate(ctx, browserRequest("1.2.3.4", "/api/v1/teams"))
	assert.Equal(t, 0, assessment.Score)

	// Two more: penalty is 10 per failure above three.
	failures.RecordFailure(ctx, "1.2.3.4")
	failures.RecordFailure(ctx, "1.2.3.4")
	assessment = svc.Evaluate(ctx, browserRequest("1.2.3.4", "/api/v1/teams"))
	assert.Equal(t, 20, assessment.Score)
}

func TestScoreIsClamped(t *testing.T) {
	cfg := testConfig()
	store := newFakeStore()
	svc := newScorer(cfg, store, stubGeoScorer{points: cfg.GeoAnomalyWeight})
	ctx := context.Background()

	failures := &BruteForceService{cfg: cfg, store: store, events: &memoryEvents{}}
	for i := 0; i < 15; i++ {
		failures.RecordFailure(ctx, "1.2.3.4")
	}

	fp := dto.RequestFingerprint{
		IP:       "1.2.3.4",
		ClientID: "sqlmap/1.7",
		Path:     "/files",
		Query:    "name=../../etc/passwd",
		Body:     `{"q":"1 UNION SELECT password FROM users; DROP TABLE users","html":"<script>alert(1)</script>"}`,
	}

	assessment := svc.Evaluate(ctx, fp)
	assert.Equal(t, maxThreatScore, assessment.Score)
}

func TestEvaluateBoundedWhenStoreHangs(t *testing.T) {
	svc := newScorer(testConfig(), slowStore{delay: 2 * time.Second}, stubGeoScorer{})

	started := time.Now()
	assessment := svc.Evaluate(context.Background(), browserRequest("1.2.3.4", "/api/v1/teams"))
	elapsed := time.Since(started)

	assert.Equal(t, 0, assessment.Score, "stalled signals drop out of the score")
	assert.Less(t, elapsed, time.Second,
		"each store-touching signal runs under its own timeout")
}

func TestEvaluateIsMonotone(t *testing.T) {
	svc := newScorer(testConfig(), newFakeStore(), stubGeoScorer{})
	ctx := context.Background()

	fp := browserRequest("1.2.3.4", "/search")
	base := svc.Evaluate(ctx, fp).Score

	fp.Query = "q=<script>alert(1)</script>"
	withScript := svc.Evaluate(ctx, fp).Score
	assert.Greater(t, withScript, base)

	fp.Body = "name=../../etc/passwd"
	withTraversal := svc.Evaluate(ctx, fp).Score
	assert.Greater(t, withTraversal, withScript)
}
