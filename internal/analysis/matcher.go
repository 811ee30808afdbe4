package analysis

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/cockpit/pkg/types"
)

// MatchThreshold is the normalised score a question must exceed to be
// accepted by [MatchQuestion].
const MatchThreshold = 0.3

// minWordRunes is the exclusive lower bound on word length considered by the
// matcher. Shorter tokens are articles and prepositions.
const minWordRunes = 3

// conceptBonus is added once per concept present in both texts.
const conceptBonus = 2

// concept is a domain term and the synonyms that signal it.
type concept struct {
	name     string
	synonyms []string
}

var concepts = []concept{
	{name: "lead", synonyms: []string{"lead", "prospect", "cliente", "contatto"}},
	{name: "tempo", synonyms: []string{"tempo", "giorni", "settimane", "mesi", "durata", "ttd"}},
	{name: "step", synonyms: []string{"step", "processo", "fase", "passaggio"}},
	{name: "tool", synonyms: []string{"tool", "strumento", "crm", "software"}},
	{name: "mercato", synonyms: []string{"mercato", "paese", "regione", "africa", "latam", "argentina"}},
	{name: "chi", synonyms: []string{"chi", "persona", "team", "responsabile"}},
}

// MatchQuestion returns the unanswered question that best matches text, or
// false when no candidate scores above [MatchThreshold].
//
// Answered questions are never candidates. When two candidates share the top
// score the one that comes first in questions wins; this follows backlog
// order and carries no priority meaning.
func MatchQuestion(text string, questions []types.Question) (types.Question, bool) {
	lowerText := strings.ToLower(text)
	textWords := significantWords(lowerText)

	var (
		best      types.Question
		bestScore float64
		found     bool
	)
	for _, q := range questions {
		if q.Answered {
			continue
		}
		score := Score(lowerText, textWords, q.Text)
		if score > bestScore && score > MatchThreshold {
			best, bestScore, found = q, score, true
		}
	}
	return best, found
}

// Score computes the normalised match score of questionText against a
// lowercased input text and its significant words.
func Score(lowerText string, textWords []string, questionText string) float64 {
	lowerQuestion := strings.ToLower(questionText)
	questionWords := significantWords(lowerQuestion)

	score := 0
	for _, qw := range questionWords {
		for _, tw := range textWords {
			if strings.Contains(tw, qw) || strings.Contains(qw, tw) {
				score++
				break
			}
		}
	}

	for _, c := range concepts {
		if containsAny(lowerQuestion, c.synonyms) && containsAny(lowerText, c.synonyms) {
			score += conceptBonus
		}
	}

	return float64(score) / float64(max(len(questionWords), 1))
}

// significantWords splits s on whitespace and keeps tokens longer than
// minWordRunes runes.
func significantWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) > minWordRunes {
			out = append(out, w)
		}
	}
	return out
}
