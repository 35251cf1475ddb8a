// Package redact masks caller PII in logs and archives.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
	cardRe  = regexp.MustCompile(`\b(?:\d[ \-]?){13,19}\b`)
)

// SetEnabled toggles PII redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts card numbers, emails and phone numbers when enabled.
// Transcripts spell numbers with spaces, so card detection runs first.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := cardRe.ReplaceAllString(in, "[REDACTED_CARD]")
	out = emailRe.ReplaceAllString(out, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Phone masks all but the last four digits of a caller number when enabled.
func Phone(number string) string {
	if !enabled.Load() {
		return number
	}
	digits := 0
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	keep := 4
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			if digits > keep {
				b.WriteRune('*')
			} else {
				b.WriteRune(r)
			}
			digits--
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
