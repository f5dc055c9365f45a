// Package phonetic repairs misheard product words in speech transcripts using
// Double Metaphone phonetic codes combined with Jaro-Winkler similarity.
//
// A transcript token is replaced by a vocabulary term only when both agree:
// the two words must share at least one Double Metaphone code and their
// Jaro-Winkler similarity must reach the phonetic threshold (default 0.90).
// Tokens shorter than the minimum length (default 6) are never touched, which
// keeps ordinary short words such as "good" or "yes" out of reach.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.90
	defaultMinLength         = 6
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score a phonetically
// matched term must reach. Default: 0.90.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithMinLength sets the shortest token length considered for correction.
// Default: 6.
func WithMinLength(n int) Option {
	return func(m *Matcher) {
		m.minLength = n
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	minLength         int
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		minLength:         defaultMinLength,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the vocabulary term closest to word. When matched is false,
// corrected equals word and confidence is 0.
func (m *Matcher) Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool) {
	w := strings.ToLower(strings.TrimSpace(word))
	if len([]rune(w)) < m.minLength || len(vocabulary) == 0 {
		return word, 0, false
	}
	codes := codesFor(w)

	var best string
	var bestScore float64
	for _, term := range vocabulary {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if t == w {
			return term, 1, true
		}
		if !codesOverlap(codes, codesFor(t)) {
			continue
		}
		score := matchr.JaroWinkler(w, t, false)
		if score >= m.phoneticThreshold && score > bestScore {
			best, bestScore = term, score
		}
	}
	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// Correct rewrites every token of text that phonetically matches a
// vocabulary term and reports whether anything changed. The result is
// lower-cased and whitespace-normalised.
func (m *Matcher) Correct(text string, vocabulary []string) (string, bool) {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	changed := false
	for i, tok := range tokens {
		corrected, _, ok := m.Match(tok, vocabulary)
		if !ok {
			continue
		}
		corrected = strings.ToLower(corrected)
		if corrected != tok {
			tokens[i] = corrected
			changed = true
		}
	}
	return strings.Join(tokens, " "), changed
}

// codesFor returns the primary and secondary Double Metaphone codes of w.
func codesFor(w string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(w)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
