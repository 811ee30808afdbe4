// Package extract implements the model-assisted extraction adapter.
//
// An [Extractor] asks a language model which open backlog question a
// transcript chunk answers, which team members it mentions and how confident
// the model is. Every failure mode (no provider, exhausted call budget,
// transport error, malformed reply) degrades to the deterministic lexical
// path in package analysis, so callers always receive a well-formed [Result].
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/MrWong99/cockpit/internal/analysis"
	"github.com/MrWong99/cockpit/internal/observe"
	"github.com/MrWong99/cockpit/pkg/provider/llm"
	"github.com/MrWong99/cockpit/pkg/types"
)

// Source records which path produced a [Result].
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Fallback reasons reported to metrics and logs.
const (
	reasonDisabled    = "disabled"
	reasonRateLimited = "rate_limited"
	reasonError       = "error"
	reasonMalformed   = "malformed"
)

// FallbackConfidence is the confidence assigned to a lexical match.
const FallbackConfidence = 0.5

const (
	defaultTimeout   = 10 * time.Second
	defaultMaxTokens = 500

	// Replies must be strict JSON.
	modelTemperature = 0.1
)

const systemPrompt = "Sei l'assistente di una discovery call. Rispondi solo con un oggetto JSON valido, senza testo aggiuntivo."

// ErrNoJSON is returned by [ParseResponse] when the reply holds no JSON object.
var ErrNoJSON = errors.New("extract: no JSON object in model reply")

// jsonObject captures everything between the first '{' and the last '}'.
var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// Result is the outcome of one extraction.
type Result struct {
	// MatchedQuestionID is the question the chunk answers, or "" for none.
	MatchedQuestionID string

	// ExtractedAnswer is the portion of the chunk to store as the answer.
	ExtractedAnswer string

	// MentionedUserIDs lists roster ids referenced by the chunk.
	MentionedUserIDs []string

	// Confidence is in [0, 1].
	Confidence float64

	// Reasoning is the model's short explanation. Empty on the fallback path.
	Reasoning string

	Source Source
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithProvider sets the model backend. Without one the extractor always uses
// the lexical fallback.
func WithProvider(p llm.Provider) Option {
	return func(e *Extractor) { e.provider = p }
}

// WithRateLimit caps model calls per minute. Chunks over budget use the
// fallback rather than waiting. Zero or negative disables the cap.
func WithRateLimit(perMinute int) Option {
	return func(e *Extractor) {
		if perMinute <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

// WithTimeout bounds a single model call.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) { e.timeout = d }
}

// WithMaxTokens sets the completion budget sent to the model.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) { e.maxTokens = n }
}

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// Extractor is safe for concurrent use.
type Extractor struct {
	provider  llm.Provider
	limiter   *rate.Limiter
	timeout   time.Duration
	maxTokens int
	metrics   *observe.Metrics
	enabled   atomic.Bool
}

// New creates an enabled Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		timeout:   defaultTimeout,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	e.enabled.Store(true)
	return e
}

// SetEnabled toggles model calls at runtime. A disabled extractor still
// produces fallback results.
func (e *Extractor) SetEnabled(on bool) { e.enabled.Store(on) }

// Enabled reports whether model calls are attempted.
func (e *Extractor) Enabled() bool { return e.enabled.Load() && e.provider != nil }

// Extract returns the best available extraction for text. It never fails.
func (e *Extractor) Extract(ctx context.Context, text string, questions []types.Question, roster []types.User) Result {
	ctx, span := observe.StartSpan(ctx, "extract.Extract")
	defer span.End()
	log := observe.Logger(ctx)

	if !e.Enabled() {
		return e.fallback(ctx, reasonDisabled, text, questions, roster)
	}
	if e.limiter != nil && !e.limiter.Allow() {
		log.Debug("extract: model call budget exhausted")
		return e.fallback(ctx, reasonRateLimited, text, questions, roster)
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.provider.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{llm.UserMessage(BuildPrompt(text, questions, roster))},
		MaxTokens:    e.provider.Capabilities().ClampMaxTokens(e.maxTokens),
		Temperature:  modelTemperature,
	})
	if err == nil && resp == nil {
		err = errors.New("extract: empty response")
	}
	if err != nil {
		e.metrics.RecordLLMCall(ctx, time.Since(start), "error")
		span.RecordError(err)
		log.Warn("extract: model call failed", "err", err)
		return e.fallback(ctx, reasonError, text, questions, roster)
	}
	e.metrics.RecordLLMCall(ctx, time.Since(start), "ok")

	res, err := ParseResponse(resp.Content, text, roster)
	if err != nil {
		log.Warn("extract: unusable model reply", "err", err)
		return e.fallback(ctx, reasonMalformed, text, questions, roster)
	}
	span.SetAttributes(
		attribute.String("question_id", res.MatchedQuestionID),
		attribute.Float64("confidence", res.Confidence),
	)
	return res
}

func (e *Extractor) fallback(ctx context.Context, reason, text string, questions []types.Question, roster []types.User) Result {
	e.metrics.RecordFallback(ctx, reason)
	return Fallback(text, questions, roster)
}

// Fallback runs the lexical matcher and mention detector.
func Fallback(text string, questions []types.Question, roster []types.User) Result {
	res := Result{
		ExtractedAnswer:  text,
		MentionedUserIDs: analysis.DetectMentions(text, roster),
		Source:           SourceFallback,
	}
	if q, ok := analysis.MatchQuestion(text, questions); ok {
		res.MatchedQuestionID = q.ID
		res.Confidence = FallbackConfidence
	}
	return res
}

// BuildPrompt renders the extraction prompt. Only unanswered questions and
// team-member names are listed.
func BuildPrompt(text string, questions []types.Question, roster []types.User) string {
	var qs strings.Builder
	n := 0
	for _, q := range questions {
		if q.Answered {
			continue
		}
		if n > 0 {
			qs.WriteByte('\n')
		}
		n++
		fmt.Fprintf(&qs, "%d. [ID:%s] %s", n, q.ID, q.Text)
	}

	var names []string
	for _, u := range roster {
		if u.Role == types.RoleTeamMember {
			names = append(names, u.Name)
		}
	}

	return `Analizza questo testo trascritto da una call di discovery e:
1. Identifica quale domanda sta rispondendo (se presente)
2. Estrai i nomi del team menzionati
3. Valuta la confidenza (0-1)

TESTO TRASCRITTO:
"` + text + `"

DOMANDE NON ANCORA RISPOSTE:
` + qs.String() + `

NOMI DEL TEAM DA RILEVARE:
` + strings.Join(names, ", ") + `

Rispondi SOLO in JSON:
{
  "matched_question_id": "ID della domanda o null",
  "extracted_answer": "la parte rilevante del testo come risposta",
  "mentioned_names": ["nome1", "nome2"],
  "confidence": 0.8,
  "reasoning": "breve spiegazione"
}`
}

type reply struct {
	MatchedQuestionID any      `json:"matched_question_id"`
	ExtractedAnswer   string   `json:"extracted_answer"`
	MentionedNames    []string `json:"mentioned_names"`
	Confidence        *float64 `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
}

// ParseResponse decodes the first JSON object found in content. An empty
// answer defaults to text; names are mapped to roster ids by case-insensitive
// containment and unknown names are dropped.
func ParseResponse(content, text string, roster []types.User) (Result, error) {
	raw := jsonObject.FindString(content)
	if raw == "" {
		return Result{}, ErrNoJSON
	}
	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Result{}, fmt.Errorf("extract: decode reply: %w", err)
	}

	res := Result{
		MatchedQuestionID: questionID(r.MatchedQuestionID),
		ExtractedAnswer:   r.ExtractedAnswer,
		MentionedUserIDs:  mapNames(r.MentionedNames, roster),
		Reasoning:         r.Reasoning,
		Source:            SourceModel,
	}
	if strings.TrimSpace(res.ExtractedAnswer) == "" {
		res.ExtractedAnswer = text
	}
	if r.Confidence != nil {
		res.Confidence = min(max(*r.Confidence, 0), 1)
	}
	return res, nil
}

func questionID(v any) string {
	switch id := v.(type) {
	case string:
		if id == "null" {
			return ""
		}
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return ""
}

func mapNames(names []string, roster []types.User) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, name := range names {
		needle := strings.ToLower(strings.TrimSpace(name))
		if needle == "" {
			continue
		}
		for _, u := range roster {
			if strings.Contains(strings.ToLower(u.Name), needle) {
				if !seen[u.ID] {
					seen[u.ID] = true
					ids = append(ids, u.ID)
				}
				break
			}
		}
	}
	return ids
}
