package services

import (
	"regexp"
	"strings"

	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/dto"
	"github.com/Michael-ctrl-eng/teamplaymate-16-sub005/shared"
)

// PatternDetector is a pure predicate over canonicalized request text. The
// detector table is built per scorer instance, not as package globals, so
// tests can swap in their own set.
type PatternDetector struct {
	Name   string
	Weight int
	re     *regexp.Regexp
}

// Match never panics; an empty or malformed input simply does not match.
func (d PatternDetector) Match(text string) bool {
	if text == "" {
		return false
	}
	return d.re.MatchString(text)
}

// DefaultPatternDetectors returns the standard detector table: SQL
// injection token sequences, script/event-handler injection markers, path
// traversal, and shell metacharacter sequences.
func DefaultPatternDetectors() []PatternDetector {
	return []PatternDetector{
		{
			Name:   shared.SignalSQLInjection,
			Weight: 30,
			re: regexp.MustCompile(`(?i)(\bunion\b.*\bselect\b|\bselect\b.+\bfrom\b|\binsert\b\s+\binto\b|\bdrop\b\s+\btable\b|\bdelete\b\s+\bfrom\b|\bupdate\b.+\bset\b|\bor\b\s+\d+\s*=\s*\d+|'\s*or\s*'|--\s|;\s*(drop|delete|insert|update|alter)\b|\bsleep\s*\(|\bbenchmark\s*\()`),
		},
		{
			Name:   shared.SignalScriptInjection,
			Weight: 25,
			re:     regexp.MustCompile(`(?i)(<script[\s>]|</script>|javascript:|\bon(error|load|click|mouseover|focus)\s*=|<iframe[\s>]|document\.(cookie|write)|\beval\s*\()`),
		},
		{
			Name:   shared.SignalPathTraversal,
			Weight: 25,
			re:     regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f|/etc/passwd|/proc/self)`),
		},
		{
			Name:   shared.SignalShellMeta,
			Weight: 20,
			re:     regexp.MustCompile("(;\\s*(cat|ls|rm|wget|curl|sh|bash|nc)\\b|\\|\\s*(cat|ls|rm|wget|curl|sh|bash|nc)\\b|`[^`]+`|\\$\\((?:[^)]+)\\)|&&\\s*(cat|rm|wget|curl)\\b)"),
		},
	}
}

// suspiciousClientPattern matches client identifiers of common scanners and
// attack tooling.
var suspiciousClientPattern = regexp.MustCompile(`(?i)(sqlmap|nikto|nessus|masscan|nmap|metasploit|hydra|gobuster|dirbuster|wpscan|acunetix|burp|zgrab|python-requests/|libwww-perl)`)

// SuspiciousClient reports whether the client identifier looks like attack
// tooling. Empty identifiers are suspicious on their own: browsers and real
// SDKs always send one.
func SuspiciousClient(clientID string) bool {
	trimmed := strings.TrimSpace(clientID)
	if trimmed == "" {
		return true
	}
	return suspiciousClientPattern.MatchString(trimmed)
}

// CanonicalRequestText flattens the parts of a request the detectors
// inspect: path, serialized query and body, newline separated.
func CanonicalRequestText(fp dto.RequestFingerprint) string {
	var b strings.Builder
	b.Grow(len(fp.Path) + len(fp.Query) + len(fp.Body) + 2)
	b.WriteString(fp.Path)
	if fp.Query != "" {
		b.WriteString("?")
		b.WriteString(fp.Query)
	}
	if fp.Body != "" {
		b.WriteString("\n")
		b.WriteString(fp.Body)
	}
	return b.String()
}
