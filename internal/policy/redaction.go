// Package policy masks sensitive values before they reach logs.
package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern   = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._\-]+`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Cards before phones, or card numbers match the phone pattern.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactSecrets masks every occurrence of the given secrets and any bearer
// token. Blank secrets are ignored.
func RedactSecrets(input string, secrets ...string) string {
	out := bearerPattern.ReplaceAllString(input, "Bearer [REDACTED]")
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = strings.ReplaceAll(out, s, "[REDACTED_SECRET]")
	}
	return out
}

// ForLog applies both secret and PII masking to a log fragment.
func ForLog(input string, secrets ...string) string {
	out, _ := RedactPII(RedactSecrets(input, secrets...))
	return out
}
