// Package phonetic matches misheard words against a list of known names
// using Double Metaphone encoding and Jaro-Winkler similarity.
//
// A name is a phonetic candidate when its Double Metaphone codes overlap with
// the word's codes; candidates are accepted above the phonetic threshold and
// ranked by Jaro-Winkler score. Without a phonetic candidate, a name is only
// accepted on pure string similarity above the stricter fuzzy threshold.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.85
	defaultFuzzyThreshold    = 0.92
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching name. Default: 0.85.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no name shares
// a phonetic code with the word. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the name most similar to word. When matched is false,
// corrected equals word and confidence is 0.
func (m *Matcher) Match(word string, names []string) (corrected string, confidence float64, matched bool) {
	w := strings.ToLower(strings.TrimSpace(word))
	if w == "" || len(names) == 0 {
		return word, 0, false
	}
	wordCodes := codes(w)

	var (
		best      string
		bestScore float64
		phonetic  bool
	)
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		score := matchr.JaroWinkler(w, n, false)
		if overlap(wordCodes, codes(n)) {
			if score >= m.phoneticThreshold && (!phonetic || score > bestScore) {
				best, bestScore, phonetic = name, score, true
			}
			continue
		}
		if !phonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = name, score
		}
	}

	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// codes returns the non-empty Double Metaphone codes of s.
func codes(s string) []string {
	p, alt := matchr.DoubleMetaphone(s)
	var out []string
	if p != "" {
		out = append(out, p)
	}
	if alt != "" && alt != p {
		out = append(out, alt)
	}
	return out
}

func overlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
