// Package analysis implements the deterministic text analysis used on every
// flushed transcript chunk:
//
//   - [Analyze] pulls KPI and budget figures, market mentions, decision
//     markers, and vague-language markers out of free text.
//   - [DetectMentions] finds roster members referenced by first name.
//   - [MatchQuestion] scores a chunk against the open discovery questions.
//   - [IsCorrection] and [StripCorrection] recognise retractions.
//
// Every function in this package is pure and safe for concurrent use. The
// lexicons are Italian with a handful of English synonyms because the calls
// being transcribed are held in Italian.
package analysis

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/MrWong99/cockpit/pkg/types"
)

// quoteRadius is the number of runes kept on either side of a match when an
// extraction carries an audit quote.
const quoteRadius = 20

// Analysis is the output of [Analyze].
type Analysis struct {
	Extractions   []types.Extraction
	Uncertainties []types.Uncertainty
	Suggestions   []types.Suggestion
}

// IsEmpty reports whether the analysis found nothing at all.
func (a Analysis) IsEmpty() bool {
	return len(a.Extractions) == 0 && len(a.Uncertainties) == 0 && len(a.Suggestions) == 0
}

// kpiPattern ties a regular expression to the extraction it produces. The
// first capture group is the numeric value, the optional second one the unit.
type kpiPattern struct {
	field      types.Field
	regex      *regexp.Regexp
	confidence types.Confidence
	category   types.Category
	withQuote  bool
	value      func(number, unit string) (string, bool)
}

// kpiPatterns is evaluated in order; the order of the resulting extractions
// follows this slice regardless of where the matches sit in the text.
var kpiPatterns = []kpiPattern{
	{
		field:      types.FieldTTDCurrent,
		regex:      regexp.MustCompile(`(?i)(\d+)\s*(giorni|days)`),
		confidence: types.ConfidenceHigh,
		category:   types.CategoryKPI,
		withQuote:  true,
		value:      plainNumber,
	},
	{
		field:      types.FieldTargetProjects,
		regex:      regexp.MustCompile(`(?i)(\d+)\s*(progetti|projects)`),
		confidence: types.ConfidenceMedium,
		category:   types.CategoryKPI,
		value:      plainNumber,
	},
	{
		field:      types.FieldConversionRate,
		regex:      regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`),
		confidence: types.ConfidenceHigh,
		category:   types.CategoryKPI,
		value:      decimalNumber,
	},
	{
		field:      types.FieldBudget,
		regex:      regexp.MustCompile(`(?i)(\d+)\s*(k|mila|euro|€)`),
		confidence: types.ConfidenceMedium,
		category:   types.CategoryEconomic,
		value:      budgetAmount,
	},
}

// country maps spoken synonyms to the canonical market name.
type country struct {
	name     string
	synonyms []string
}

var countries = []country{
	{name: "Brasile", synonyms: []string{"brasile", "brazil"}},
	{name: "Argentina", synonyms: []string{"argentina"}},
	{name: "Messico", synonyms: []string{"messico", "mexico"}},
	{name: "Nigeria", synonyms: []string{"nigeria"}},
	{name: "Africa", synonyms: []string{"africa"}},
	{name: "Malta", synonyms: []string{"malta"}},
	{name: "Sud Africa", synonyms: []string{"sud africa", "south africa"}},
}

var vagueMarkers = []string{
	"circa", "forse", "più o meno", "probabilmente", "penso", "credo", "dovrebbe",
}

var decisionMarkers = []string{
	"deciso", "abbiamo stabilito", "procediamo con", "andiamo con",
}

const (
	uncertaintyTopic    = "Dato approssimativo"
	uncertaintyQuestion = "Puoi darmi un numero più preciso?"
	decisionContent     = "✅ Possibile decisione rilevata - documentare"
)

// Analyze runs the fixed battery of lexical patterns over text.
//
// Each KPI field yields at most one extraction (the leftmost match). Every
// country entry, vague marker and decision marker found in the text yields
// its own record, in lexicon order. Analyze is pure: the same input always
// produces the same output.
func Analyze(text string) Analysis {
	var a Analysis

	for _, p := range kpiPatterns {
		loc := p.regex.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		number := text[loc[2]:loc[3]]
		var unit string
		if len(loc) >= 6 && loc[4] >= 0 {
			unit = text[loc[4]:loc[5]]
		}
		value, ok := p.value(number, unit)
		if !ok {
			continue
		}
		e := types.Extraction{
			Field:      p.field,
			Value:      value,
			Confidence: p.confidence,
			Category:   p.category,
		}
		if p.withQuote {
			e.Quote = quoteAround(text, loc[0], loc[1])
		}
		a.Extractions = append(a.Extractions, e)
	}

	lower := strings.ToLower(text)

	for _, c := range countries {
		if containsAny(lower, c.synonyms) {
			a.Suggestions = append(a.Suggestions, types.Suggestion{
				Type:     types.SuggestionMarket,
				Content:  "📍 Menzionato " + c.name + " - verificare requisiti regolatori",
				Priority: types.PriorityMedium,
			})
		}
	}

	for _, m := range vagueMarkers {
		if strings.Contains(lower, m) {
			a.Uncertainties = append(a.Uncertainties, types.Uncertainty{
				Topic:    uncertaintyTopic,
				Reason:   `Usato "` + m + `"`,
				Question: uncertaintyQuestion,
			})
		}
	}

	for _, m := range decisionMarkers {
		if strings.Contains(lower, m) {
			a.Suggestions = append(a.Suggestions, types.Suggestion{
				Type:     types.SuggestionDecision,
				Content:  decisionContent,
				Priority: types.PriorityHigh,
			})
		}
	}

	return a
}

func plainNumber(number, _ string) (string, bool) {
	return number, true
}

func decimalNumber(number, _ string) (string, bool) {
	return strings.Replace(number, ",", ".", 1), true
}

// budgetAmount scales thousands units. Values that do not fit in an int are
// dropped rather than wrapped.
func budgetAmount(number, unit string) (string, bool) {
	v, err := strconv.Atoi(number)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(unit) {
	case "k", "mila":
		if v > math.MaxInt/1000 {
			return "", false
		}
		v *= 1000
	}
	return strconv.Itoa(v), true
}

// quoteAround returns the match at text[start:end] padded with up to
// quoteRadius runes of context on each side.
func quoteAround(text string, start, end int) string {
	before := []rune(text[:start])
	after := []rune(text[end:])
	if len(before) > quoteRadius {
		before = before[len(before)-quoteRadius:]
	}
	if len(after) > quoteRadius {
		after = after[:quoteRadius]
	}
	return string(before) + text[start:end] + string(after)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
