package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
)

// SecurityConfigService loads and validates the security configuration once
// at startup. Every other security service pulls its *SecurityConfig from
// here, so the whole layer shares a single injected configuration object.
type SecurityConfigService struct {
	appContext.DefaultService

	cfg *SecurityConfig
}

const SECURITY_CONFIG_SVC = "security_config_svc"

func (svc SecurityConfigService) Id() string {
	return SECURITY_CONFIG_SVC
}

func (svc *SecurityConfigService) Configure(ctx *appContext.Context) error {
	svc.cfg = LoadSecurityConfig()
	if err := svc.cfg.Validate(); err != nil {
		return err
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *SecurityConfigService) Start() error {
	return nil
}

func (svc *SecurityConfigService) Config() *SecurityConfig {
	return svc.cfg
}

// SecurityConfig carries every tunable of the threat-detection layer. It is
// built once at startup and injected into the services that need it, so
// tests can substitute their own values and two configurations can coexist
// in-process.
type SecurityConfig struct {
	// Brute force
	MaxFailedAttempts   int
	LockoutDuration     time.Duration
	FailedAttemptWindow time.Duration

	// Rate limiting (fixed window)
	RateLimitMax int
	RateWindow   time.Duration

	// Threat scoring
	ThreatScoreThreshold   int
	AdvisoryScoreThreshold int
	SuspiciousClientWeight int
	RateOverflowWeight     int
	ProxyOriginWeight      int

	// Geo anomaly
	GeoAnomalyDistanceKm float64
	GeoAnomalyWindow     time.Duration
	GeoAnomalyWeight     int

	// Reputation
	BlacklistDuration time.Duration
	TempBlockDuration time.Duration

	// Event log
	EventLogCapacity   int
	AuditRetentionDays int

	// Sweeper
	SweeperHealthInterval  time.Duration
	SweeperCleanupInterval time.Duration
	HealthAlertThreshold   int64

	// Defensive timeout applied to every store call on the request path.
	StoreTimeout time.Duration
}

func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		MaxFailedAttempts:      5,
		LockoutDuration:        15 * time.Minute,
		FailedAttemptWindow:    time.Hour,
		RateLimitMax:           100,
		RateWindow:             time.Minute,
		ThreatScoreThreshold:   100,
		AdvisoryScoreThreshold: 50,
		SuspiciousClientWeight: 40,
		RateOverflowWeight:     25,
		ProxyOriginWeight:      15,
		GeoAnomalyDistanceKm:   1000,
		GeoAnomalyWindow:       time.Hour,
		GeoAnomalyWeight:       25,
		BlacklistDuration:      24 * time.Hour,
		TempBlockDuration:      5 * time.Minute,
		EventLogCapacity:       1000,
		AuditRetentionDays:     30,
		SweeperHealthInterval:  5 * time.Minute,
		SweeperCleanupInterval: time.Hour,
		HealthAlertThreshold:   25,
		StoreTimeout:           50 * time.Millisecond,
	}
}

// LoadSecurityConfig reads overrides from the environment on top of the
// documented defaults.
func LoadSecurityConfig() *SecurityConfig {
	cfg := DefaultSecurityConfig()

	cfg.MaxFailedAttempts = envInt("MAX_FAILED_ATTEMPTS", cfg.MaxFailedAttempts)
	cfg.LockoutDuration = envSeconds("LOCKOUT_DURATION_SECONDS", cfg.LockoutDuration)
	cfg.FailedAttemptWindow = envSeconds("FAILED_ATTEMPT_WINDOW_SECONDS", cfg.FailedAttemptWindow)
	cfg.RateLimitMax = envInt("RATE_LIMIT_MAX", cfg.RateLimitMax)
	cfg.RateWindow = envSeconds("RATE_WINDOW_SECONDS", cfg.RateWindow)
	cfg.ThreatScoreThreshold = envInt("THREAT_SCORE_THRESHOLD", cfg.ThreatScoreThreshold)
	cfg.AdvisoryScoreThreshold = envInt("ADVISORY_SCORE_THRESHOLD", cfg.AdvisoryScoreThreshold)
	cfg.GeoAnomalyDistanceKm = envFloat("GEO_ANOMALY_DISTANCE_KM", cfg.GeoAnomalyDistanceKm)
	cfg.GeoAnomalyWindow = envSeconds("GEO_ANOMALY_WINDOW_SECONDS", cfg.GeoAnomalyWindow)
	cfg.BlacklistDuration = envSeconds("BLACKLIST_DURATION_SECONDS", cfg.BlacklistDuration)
	cfg.TempBlockDuration = envSeconds("TEMP_BLOCK_DURATION_SECONDS", cfg.TempBlockDuration)
	cfg.EventLogCapacity = envInt("EVENT_LOG_CAPACITY", cfg.EventLogCapacity)
	cfg.AuditRetentionDays = envInt("AUDIT_RETENTION_DAYS", cfg.AuditRetentionDays)
	cfg.SweeperHealthInterval = envSeconds("SWEEPER_HEALTH_INTERVAL_SECONDS", cfg.SweeperHealthInterval)
	cfg.SweeperCleanupInterval = envSeconds("SWEEPER_CLEANUP_INTERVAL_SECONDS", cfg.SweeperCleanupInterval)
	cfg.HealthAlertThreshold = int64(envInt("HEALTH_ALERT_THRESHOLD", int(cfg.HealthAlertThreshold)))
	cfg.StoreTimeout = envMillis("STORE_TIMEOUT_MS", cfg.StoreTimeout)

	return cfg
}

// Validate returns a configuration error. Called once at startup; a failure
// here is fatal, configuration problems never surface at request time.
func (cfg *SecurityConfig) Validate() error {
	if cfg.MaxFailedAttempts < 1 {
		return fmt.Errorf("security config: MAX_FAILED_ATTEMPTS must be >= 1, got %d", cfg.MaxFailedAttempts)
	}
	if cfg.RateLimitMax < 1 {
		return fmt.Errorf("security config: RATE_LIMIT_MAX must be >= 1, got %d", cfg.RateLimitMax)
	}
	if cfg.RateWindow <= 0 {
		return fmt.Errorf("security config: RATE_WINDOW_SECONDS must be positive")
	}
	if cfg.AdvisoryScoreThreshold >= cfg.ThreatScoreThreshold {
		return fmt.Errorf("security config: advisory threshold %d must be below reject threshold %d",
			cfg.AdvisoryScoreThreshold, cfg.ThreatScoreThreshold)
	}
	if cfg.EventLogCapacity < 1 {
		return fmt.Errorf("security config: EVENT_LOG_CAPACITY must be >= 1, got %d", cfg.EventLogCapacity)
	}
	if cfg.StoreTimeout <= 0 {
		return fmt.Errorf("security config: STORE_TIMEOUT_MS must be positive")
	}
	return nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func envMillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
