package util

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens). Keep it broad: tokens show up
	// in logs via downstream libraries and HTTP error messages.
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|x-api-key|gemini[_-]?api[_-]?key|exa[_-]?api[_-]?key|password|signing[_-]?secret)\b\s*[:=]\s*[^\s"']+`)

	// Slack bot/user/app tokens.
	slackTokenRe = regexp.MustCompile(`\bxox[abposr]-[A-Za-z0-9-]+`)
)

// RedactSecrets removes obvious secret-bearing substrings from error/log strings.
//
// This is intentionally conservative: it should be safe to call on any message,
// including user-provided inputs and upstream error strings.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = slackTokenRe.ReplaceAllString(out, "xox?-<redacted>")
	return strings.TrimSpace(out)
}

// Truncate returns at most max runes of s, appending "..." when it cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
