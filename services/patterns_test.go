package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

func detectorByName(t *testing.T, name string) PatternDetector {
	t.Helper()
	for _, det := range DefaultPatternDetectors() {
		if det.Name == name {
			return det
		}
	}
	t.Fatalf("no detector named %s", name)
	return PatternDetector{}
}

func TestSQLInjectionDetector(t *testing.T) {
	det := detectorByName(t, shared.SignalSQLInjection)

	hostile := []string{
		"/search?q=1 UNION SELECT password FROM users",
		"/items?id=1; DROP TABLE matches",
		"/login\nusername=' OR '1'='1",
		"/report?id=1 or 1=1",
		"/api?q=sleep(5)",
	}
	for _, text := range hostile {
		assert.True(t, det.Match(text), "should match: %s", text)
	}

	benign := []string{
		"/api/v1/teams/42/players",
		"/search?q=premier+league+table",
		"/matches?from=2026-01-01&to=2026-02-01",
		"",
	}
	for _, text := range benign {
		assert.False(t, det.Match(text), "should not match: %s", text)
	}
}

func TestScriptInjectionDetector(t *testing.T) {
	det := detectorByName(t, shared.SignalScriptInjection)

	assert.True(t, det.Match(`/profile?bio=<script>alert(1)</script>`))
	assert.True(t, det.Match(`/comment?text=<img src=x onerror=alert(1)>`))
	assert.True(t, det.Match(`/redirect?url=javascript:alert(1)`))
	assert.False(t, det.Match(`/articles?title=The description of our script`))
	assert.False(t, det.Match(`/players?name=john`))
}

func TestPathTraversalDetector(t *testing.T) {
	det := detectorByName(t, shared.SignalPathTraversal)

	assert.True(t, det.Match(`/files?name=../../etc/passwd`))
	assert.True(t, det.Match(`/files?name=%2e%2e%2fconfig`))
	assert.True(t, det.Match(`/download?path=/etc/passwd`))
	assert.False(t, det.Match(`/files?name=report.pdf`))
}

func TestShellMetaDetector(t *testing.T) {
	det := detectorByName(t, shared.SignalShellMeta)

	assert.True(t, det.Match(`/ping?host=8.8.8.8; cat /etc/passwd`))
	assert.True(t, det.Match(`/ping?host=$(whoami)`))
	assert.True(t, det.Match("/ping?host=`id`"))
	assert.False(t, det.Match(`/teams?name=semi;colon`))
}

func TestSuspiciousClient(t *testing.T) {
	assert.True(t, SuspiciousClient(""), "empty identifier is suspicious")
	assert.True(t, SuspiciousClient("   "), "blank identifier is suspicious")
	assert.True(t, SuspiciousClient("sqlmap/1.7#stable"))
	assert.True(t, SuspiciousClient("Mozilla/5.0 zgrab/0.x"))
	assert.True(t, SuspiciousClient("python-requests/2.31.0"))

	assert.False(t, SuspiciousClient("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"))
	assert.False(t, SuspiciousClient("TeamPlaymate-iOS/3.2.1"))
}

func TestCanonicalRequestText(t *testing.T) {
	fp := dto.RequestFingerprint{
		Path:  "/api/v1/login",
		Query: "next=/home",
		Body:  `{"username":"x"}`,
	}
	assert.Equal(t, "/api/v1/login?next=/home\n{\"username\":\"x\"}", CanonicalRequestText(fp))

	assert.Equal(t, "/health", CanonicalRequestText(dto.RequestFingerprint{Path: "/health"}))
}
