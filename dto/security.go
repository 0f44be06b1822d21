package dto

import "time"

// RequestFingerprint is the normalized view of one inbound request that the
// gate evaluates. It is ephemeral: only derived signals ever reach the store.
type RequestFingerprint struct {
	IP           string    `json:"ip"`
	ClientID     string    `json:"client_id"` // User-Agent or explicit device identifier
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Query        string    `json:"query"`
	Body         string    `json:"body"`
	AuthEndpoint bool      `json:"auth_endpoint"`
	Timestamp    time.Time `json:"timestamp"`
}

type GateOutcome string

const (
	OutcomeAllow    GateOutcome = "allow"
	OutcomeAdvisory GateOutcome = "allow_with_advisory"
	OutcomeReject   GateOutcome = "reject"
)

// GateDecision is the structured result of the gate pipeline. A reject is a
// policy outcome carried as data, never as a Go error.
type GateDecision struct {
	Outcome           GateOutcome         `json:"outcome"`
	StatusHint        int                 `json:"status_hint,omitempty"`
	Message           string              `json:"message,omitempty"`
	RetryAfterSeconds int                 `json:"retry_after_seconds,omitempty"`
	Score             int                 `json:"score"`
	Contributions     []ScoreContribution `json:"contributions,omitempty"`
}

func (d GateDecision) Rejected() bool {
	return d.Outcome == OutcomeReject
}

type ScoreContribution struct {
	Signal string `json:"signal"`
	Points int    `json:"points"`
}

type ThreatAssessment struct {
	Score         int                 `json:"score"`
	Contributions []ScoreContribution `json:"contributions"`
}

type RateLimitInfo struct {
	Allowed   bool       `json:"allowed"`
	Count     int64      `json:"count"`
	Remaining int64      `json:"remaining"`
	ResetTime *time.Time `json:"reset_time,omitempty"`
}

// SecurityEvent is immutable once appended.
type SecurityEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type GeoRecord struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"observed_at"`
}

// ==================== ADMIN REQUEST DTOs ====================

type BlacklistRequest struct {
	IP              string `json:"ip" validate:"required,ip"`
	Reason          string `json:"reason" validate:"required,min=3,max=255"`
	DurationSeconds int    `json:"duration_seconds,omitempty" validate:"omitempty,min=60,max=2592000"`
}

func (r BlacklistRequest) Validate() error {
	return GetValidator().Struct(r)
}

type RecentEventsRequest struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=1000"`
}

func (r RecentEventsRequest) Validate() error {
	return GetValidator().Struct(r)
}

type SecurityStats struct {
	ActiveBlacklist  []BlacklistedIP `json:"active_blacklist"`
	RecentEvents     int             `json:"recent_events"`
	CriticalLastHour int64           `json:"critical_last_hour"`
	Timestamp        time.Time       `json:"timestamp"`
}

type BlacklistedIP struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresIn int       `json:"expires_in_seconds"`
}
