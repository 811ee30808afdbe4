package analysis

import (
	"strings"
	"sync"
)

// kpiUnits are the unit words the KPI patterns key on.
var kpiUnits = []string{"giorni", "days", "progetti", "projects", "mila", "euro"}

var lexiconWords = sync.OnceValue(func() map[string]bool {
	words := make(map[string]bool)
	add := func(phrases ...string) {
		for _, p := range phrases {
			for _, w := range strings.Fields(p) {
				words[w] = true
			}
		}
	}
	add(correctionPhrases...)
	add(vagueMarkers...)
	add(decisionMarkers...)
	add(kpiUnits...)
	for _, c := range countries {
		add(c.synonyms...)
	}
	for _, c := range concepts {
		add(c.synonyms...)
	}
	return words
})

// IsLexiconWord reports whether word (case-insensitive) is part of any phrase
// the lexical analysis looks for. Rewriting such a word would change what
// [Analyze], [IsCorrection] and [MatchQuestion] see.
func IsLexiconWord(word string) bool {
	return lexiconWords()[strings.ToLower(word)]
}
