package shared

const (
	UserID = "user_id"

	// Redis key namespaces. Each stateful security component owns exactly
	// one prefix so a future split onto separate backing stores stays a
	// config change, not a behavior change.
	KeyPrefixRateCounter    = "sec:rate:"
	KeyPrefixFailedAttempts = "sec:fail:"
	KeyPrefixLastAttempt    = "sec:faillast:"
	KeyPrefixLockout        = "sec:lock:"
	KeyPrefixBlacklist      = "sec:blacklist:"
	KeyPrefixTempBlock      = "sec:tempblock:"
	KeyPrefixGeoRecord      = "sec:geo:"
	KeyPrefixGeoCache       = "geolocation:"

	// SecurityEvent severities
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"

	// SecurityEvent types
	EventBlacklistHit     = "blacklist_hit"
	EventBlacklistAdded   = "blacklist_added"
	EventBlacklistRemoved = "blacklist_removed"
	EventTempBlock        = "temporary_block"
	EventLockout          = "brute_force_lockout"
	EventLockoutHit       = "lockout_rejected"
	EventGeoAnomaly       = "geo_anomaly"
	EventHighThreatScore  = "high_threat_score"
	EventSuspiciousScore  = "suspicious_threat_score"

	// Threat score signal names
	SignalSQLInjection     = "sql_injection"
	SignalScriptInjection  = "script_injection"
	SignalPathTraversal    = "path_traversal"
	SignalShellMeta        = "shell_metacharacters"
	SignalSuspiciousClient = "suspicious_client"
	SignalRateOverflow     = "rate_overflow"
	SignalGeoAnomaly       = "geo_anomaly"
	SignalProxyOrigin      = "proxy_origin"
	SignalFailedAttempts   = "failed_attempts"
)
