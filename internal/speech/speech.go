// Package speech prepares text for a speech-synthesis channel.
//
// Currency amounts are rewritten to a bare numeral followed by "dollars" so
// that no currency symbol or written denomination reaches the synthesiser.
package speech

import (
	"regexp"
	"strings"
)

var (
	// prefixedRe matches "S$1,500", "SGD 200", "SGD$200.50" and "$80",
	// optionally followed by a redundant denomination word.
	prefixedRe = regexp.MustCompile(`(?i)(?:\bSGD\s*\$?|\bS\$|\$)\s?(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?(?:\s*(?:SGD\b|dollars?\b))?`)

	// suffixedRe matches "200 SGD" and "1,200SGD".
	suffixedRe = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?\s*SGD\b`)

	// strayRe catches markers with no amount attached.
	strayRe = regexp.MustCompile(`(?i)\bS\$|\bSGD\b`)

	spacesRe = regexp.MustCompile(` {2,}`)
)

// NormalizeCurrency rewrites every currency amount in text to "<n> dollars",
// stripping thousands separators and a zero fraction. Markers left without an
// amount are removed.
func NormalizeCurrency(text string) string {
	out := prefixedRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := prefixedRe.FindStringSubmatch(m)
		return spoken(sub[1], sub[2])
	})
	out = suffixedRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := suffixedRe.FindStringSubmatch(m)
		return spoken(sub[1], sub[2])
	})
	out = strayRe.ReplaceAllString(out, "")
	return strings.TrimSpace(spacesRe.ReplaceAllString(out, " "))
}

// HasCurrencyMarker reports whether text still carries a currency symbol or
// denomination code.
func HasCurrencyMarker(text string) bool {
	return strings.Contains(text, "$") || strayRe.MatchString(text)
}

func spoken(whole, frac string) string {
	n := strings.ReplaceAll(whole, ",", "")
	if strings.Trim(frac, ".0") != "" {
		n += frac
	}
	if n == "1" {
		return n + " dollar"
	}
	return n + " dollars"
}
