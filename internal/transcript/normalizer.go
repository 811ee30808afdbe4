// Package transcript repairs recognizer output before analysis.
//
// Speech recognizers routinely mangle proper names ("Marko" for "Marco"),
// which defeats the substring-based mention detector. A [Normalizer] rewrites
// words that sound like a roster first name to the canonical spelling.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/cockpit/internal/analysis"
	"github.com/MrWong99/cockpit/pkg/types"
)

// minWordRunes is the shortest word considered for repair. Shorter tokens are
// articles and prepositions that collide with short names.
const minWordRunes = 3

// PhoneticMatcher resolves a single word to a known name. Implementations
// must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match returns the best name for word. When matched is false, corrected
	// equals word and confidence is 0.
	Match(word string, names []string) (corrected string, confidence float64, matched bool)
}

// Correction records one substitution.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	matcher PhoneticMatcher
}

// NewNormalizer returns a Normalizer backed by m.
func NewNormalizer(m PhoneticMatcher) *Normalizer {
	return &Normalizer{matcher: m}
}

// Normalize rewrites words in text that sound like a roster first name.
// Names and words from the analysis lexicons are never rewritten.
// Punctuation around a word is preserved; runs of whitespace collapse to a
// single space when anything was rewritten.
func (n *Normalizer) Normalize(text string, roster []types.User) (string, []Correction) {
	names := firstNames(roster)
	if len(names) == 0 {
		return text, nil
	}

	tokens := strings.Fields(text)
	var corrections []Correction
	for i, tok := range tokens {
		start := strings.IndexFunc(tok, isWordRune)
		if start < 0 {
			continue
		}
		end := strings.LastIndexFunc(tok, isWordRune)
		_, size := utf8.DecodeRuneInString(tok[end:])
		core := tok[start : end+size]

		if utf8.RuneCountInString(core) < minWordRunes || isName(core, names) || analysis.IsLexiconWord(core) {
			continue
		}
		corrected, conf, ok := n.matcher.Match(core, names)
		if !ok || strings.EqualFold(corrected, core) {
			continue
		}
		tokens[i] = tok[:start] + corrected + tok[end+size:]
		corrections = append(corrections, Correction{Original: core, Corrected: corrected, Confidence: conf})
	}

	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(tokens, " "), corrections
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isName(word string, names []string) bool {
	for _, n := range names {
		if strings.EqualFold(word, n) {
			return true
		}
	}
	return false
}

// firstNames returns the distinct first tokens of the roster names with
// their original casing.
func firstNames(roster []types.User) []string {
	var out []string
	seen := make(map[string]bool)
	for _, u := range roster {
		fields := strings.Fields(u.Name)
		if len(fields) == 0 {
			continue
		}
		key := strings.ToLower(fields[0])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, fields[0])
	}
	return out
}
