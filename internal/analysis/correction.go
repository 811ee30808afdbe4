package analysis

import "strings"

// correctionPhrases are checked in order. Longer phrases that share a prefix
// with shorter ones ("aspetta aspetta", "no no") still classify correctly
// because any hit is enough for [IsCorrection].
var correctionPhrases = []string{
	"no aspetta",
	"no in realtà",
	"scusa",
	"volevo dire",
	"mi correggo",
	"no è",
	"anzi",
	"non è vero",
	"sbagliato",
	"correzione",
	"no no",
	"aspetta aspetta",
	"fermati",
	"no intendevo",
}

// IsCorrection reports whether text contains a retraction phrase.
func IsCorrection(text string) bool {
	return containsAny(strings.ToLower(text), correctionPhrases)
}

// StripCorrection removes the first correction phrase found in text (in
// lexicon order, matched case-insensitively) and trims surrounding
// whitespace and punctuation left behind by the removal. The rest of the text
// keeps its original casing.
func StripCorrection(text string) string {
	lower := strings.ToLower(text)
	for _, p := range correctionPhrases {
		i := strings.Index(lower, p)
		if i < 0 {
			continue
		}
		// Lowercasing can change byte lengths for a few scripts; only cut the
		// original when the offsets line up.
		if len(lower) == len(text) {
			return trimResidue(text[:i] + text[i+len(p):])
		}
		return trimResidue(lower[:i] + lower[i+len(p):])
	}
	return strings.TrimSpace(text)
}

func trimResidue(s string) string {
	return strings.Trim(s, " \t\r\n,.;:")
}
