package analysis_test

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/MrWong99/cockpit/internal/analysis"
	"github.com/MrWong99/cockpit/pkg/types"
)

func findExtraction(a analysis.Analysis, f types.Field) (types.Extraction, bool) {
	for _, e := range a.Extractions {
		if e.Field == f {
			return e, true
		}
	}
	return types.Extraction{}, false
}

func countSuggestions(a analysis.Analysis, typ types.SuggestionType) int {
	n := 0
	for _, s := range a.Suggestions {
		if s.Type == typ {
			n++
		}
	}
	return n
}

func TestAnalyze_TTDScenario(t *testing.T) {
	t.Parallel()

	text := "Il TTD attuale è di 45 giorni"
	a := analysis.Analyze(text)

	if len(a.Extractions) != 1 {
		t.Fatalf("Analyze(%q): got %d extractions, want 1: %+v", text, len(a.Extractions), a.Extractions)
	}
	e := a.Extractions[0]
	if e.Field != types.FieldTTDCurrent {
		t.Errorf("field = %q, want %q", e.Field, types.FieldTTDCurrent)
	}
	if e.Value != "45" {
		t.Errorf("value = %q, want %q", e.Value, "45")
	}
	if e.Confidence != types.ConfidenceHigh {
		t.Errorf("confidence = %q, want %q", e.Confidence, types.ConfidenceHigh)
	}
	if e.Category != types.CategoryKPI {
		t.Errorf("category = %q, want %q", e.Category, types.CategoryKPI)
	}
	if e.Quote != text {
		t.Errorf("quote = %q, want %q", e.Quote, text)
	}
}

func TestAnalyze_TTDAnyInteger(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 7, 30, 45, 120, 365} {
		text := fmt.Sprintf("ci vogliono %d giorni per chiudere", n)
		e, ok := findExtraction(analysis.Analyze(text), types.FieldTTDCurrent)
		if !ok {
			t.Fatalf("Analyze(%q): no ttd_current extraction", text)
		}
		if e.Value != strconv.Itoa(n) || e.Confidence != types.ConfidenceHigh {
			t.Errorf("Analyze(%q) = %+v, want value %d confidence high", text, e, n)
		}
	}
}

func TestAnalyze_QuoteIsBounded(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("à", 40) + "12 days" + strings.Repeat("è", 40)
	e, ok := findExtraction(analysis.Analyze(text), types.FieldTTDCurrent)
	if !ok {
		t.Fatal("expected ttd_current extraction")
	}
	want := strings.Repeat("à", 20) + "12 days" + strings.Repeat("è", 20)
	if e.Quote != want {
		t.Errorf("quote = %q, want %q", e.Quote, want)
	}
}

func TestAnalyze_ConversionRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{text: "la conversione è al 12,5%", want: "12.5"},
		{text: "converte il 7.25 % dei lead", want: "7.25"},
		{text: "siamo al 40%", want: "40"},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			e, ok := findExtraction(analysis.Analyze(tc.text), types.FieldConversionRate)
			if !ok {
				t.Fatalf("Analyze(%q): no conversion_rate extraction", tc.text)
			}
			if e.Value != tc.want {
				t.Errorf("value = %q, want %q", e.Value, tc.want)
			}
			if e.Confidence != types.ConfidenceHigh {
				t.Errorf("confidence = %q, want high", e.Confidence)
			}
		})
	}
}

func TestAnalyze_Budget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{text: "budget di 50k", want: "50000"},
		{text: "budget di 50K", want: "50000"},
		{text: "circa 30 mila", want: "30000"},
		{text: "spendiamo 200 euro al mese", want: "200"},
		{text: "costa 900€", want: "900"},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			a := analysis.Analyze(tc.text)
			e, ok := findExtraction(a, types.FieldBudget)
			if !ok {
				t.Fatalf("Analyze(%q): no budget extraction", tc.text)
			}
			if e.Value != tc.want {
				t.Errorf("value = %q, want %q", e.Value, tc.want)
			}
			if e.Confidence != types.ConfidenceMedium || e.Category != types.CategoryEconomic {
				t.Errorf("got %+v, want medium/economic", e)
			}
		})
	}
}

func TestAnalyze_BudgetThousandsProperty(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 5, 75, 1200} {
		for _, format := range []string{"%dk", "%d mila"} {
			text := fmt.Sprintf("budget "+format, n)
			e, ok := findExtraction(analysis.Analyze(text), types.FieldBudget)
			if !ok {
				t.Fatalf("Analyze(%q): no budget extraction", text)
			}
			if e.Value != strconv.Itoa(n*1000) {
				t.Errorf("Analyze(%q) budget = %q, want %d", text, e.Value, n*1000)
			}
		}
	}
}

func TestAnalyze_BudgetOverflowDropped(t *testing.T) {
	t.Parallel()

	a := analysis.Analyze("budget 99999999999999999999999k")
	if _, ok := findExtraction(a, types.FieldBudget); ok {
		t.Error("expected overflowing budget to be dropped")
	}
}

func TestAnalyze_ExtractionOrderFollowsPatterns(t *testing.T) {
	t.Parallel()

	a := analysis.Analyze("budget 10k, conversione 3%, 4 progetti, 60 giorni")
	var got []types.Field
	for _, e := range a.Extractions {
		got = append(got, e.Field)
	}
	want := []types.Field{
		types.FieldTTDCurrent,
		types.FieldTargetProjects,
		types.FieldConversionRate,
		types.FieldBudget,
	}
	if !slices.Equal(got, want) {
		t.Errorf("fields = %v, want %v", got, want)
	}
}

func TestAnalyze_FirstMatchPerField(t *testing.T) {
	t.Parallel()

	e, ok := findExtraction(analysis.Analyze("prima 10 giorni poi 20 giorni"), types.FieldTTDCurrent)
	if !ok || e.Value != "10" {
		t.Errorf("got %+v (ok=%v), want value 10", e, ok)
	}
}

func TestAnalyze_Markets(t *testing.T) {
	t.Parallel()

	a := analysis.Analyze("Stiamo espandendo in Brasile e Argentina")
	if got := countSuggestions(a, types.SuggestionMarket); got != 2 {
		t.Fatalf("market suggestions = %d, want 2: %+v", got, a.Suggestions)
	}
	if !strings.Contains(a.Suggestions[0].Content, "Brasile") {
		t.Errorf("first suggestion = %q, want Brasile", a.Suggestions[0].Content)
	}
	if !strings.Contains(a.Suggestions[1].Content, "Argentina") {
		t.Errorf("second suggestion = %q, want Argentina", a.Suggestions[1].Content)
	}
	for _, s := range a.Suggestions {
		if s.Priority != types.PriorityMedium {
			t.Errorf("priority = %q, want medium", s.Priority)
		}
	}
	if len(a.Extractions) != 0 || len(a.Uncertainties) != 0 {
		t.Errorf("unexpected extra output: %+v", a)
	}
}

func TestAnalyze_SynonymCountsOnce(t *testing.T) {
	t.Parallel()

	a := analysis.Analyze("Brazil, anzi Brasile")
	if got := countSuggestions(a, types.SuggestionMarket); got != 1 {
		t.Errorf("market suggestions = %d, want 1", got)
	}
}

func TestAnalyze_MixedChunk(t *testing.T) {
	t.Parallel()

	a := analysis.Analyze("Procediamo con 8 progetti in Malta, forse")

	if got := countSuggestions(a, types.SuggestionDecision); got != 1 {
		t.Errorf("decision suggestions = %d, want 1", got)
	}
	if got := countSuggestions(a, types.SuggestionMarket); got != 1 {
		t.Errorf("market suggestions = %d, want 1", got)
	}
	for _, s := range a.Suggestions {
		if s.Type == types.SuggestionDecision && s.Priority != types.PriorityHigh {
			t.Errorf("decision priority = %q, want high", s.Priority)
		}
		if s.Type == types.SuggestionMarket && !strings.Contains(s.Content, "Malta") {
			t.Errorf("market suggestion = %q, want Malta", s.Content)
		}
	}
	if len(a.Uncertainties) != 1 || !strings.Contains(a.Uncertainties[0].Reason, "forse") {
		t.Errorf("uncertainties = %+v, want one naming forse", a.Uncertainties)
	}
	if len(a.Extractions) != 1 {
		t.Fatalf("extractions = %+v, want 1", a.Extractions)
	}
	e := a.Extractions[0]
	if e.Field != types.FieldTargetProjects || e.Value != "8" || e.Confidence != types.ConfidenceMedium {
		t.Errorf("extraction = %+v, want target_projects 8 medium", e)
	}
}

func TestAnalyze_MultipleVagueMarkers(t *testing.T) {
	t.Parallel()

	a := analysis.Analyze("Penso circa venti, probabilmente")
	if len(a.Uncertainties) != 3 {
		t.Fatalf("uncertainties = %d, want 3: %+v", len(a.Uncertainties), a.Uncertainties)
	}
	want := []string{`Usato "circa"`, `Usato "probabilmente"`, `Usato "penso"`}
	for i, u := range a.Uncertainties {
		if u.Reason != want[i] {
			t.Errorf("uncertainty[%d].Reason = %q, want %q", i, u.Reason, want[i])
		}
	}
}

func TestAnalyze_EmptyAndNoise(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "ok grazie"} {
		if a := analysis.Analyze(text); !a.IsEmpty() {
			t.Errorf("Analyze(%q) = %+v, want empty", text, a)
		}
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	t.Parallel()

	text := "Abbiamo deciso: 30 giorni, 12,5% e 40k in Nigeria, credo"
	first := fmt.Sprintf("%+v", analysis.Analyze(text))
	for range 5 {
		if got := fmt.Sprintf("%+v", analysis.Analyze(text)); got != first {
			t.Fatalf("Analyze not deterministic:\n%s\n%s", first, got)
		}
	}
}
