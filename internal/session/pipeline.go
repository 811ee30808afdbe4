package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/cockpit/internal/analysis"
	"github.com/MrWong99/cockpit/internal/backlog"
	"github.com/MrWong99/cockpit/internal/observe"
	"github.com/MrWong99/cockpit/pkg/types"
)

const (
	sttAuthor       = "STT"
	sttCorrectedTag = "STT - corretto"
	systemAuthor    = "Sistema"
	previewRunes    = 50
)

// Process runs one chunk through the ingestion pipeline synchronously and
// returns its outcome (one of the observe.Outcome* labels). It uses the
// active session's operator and record id when listening.
func (c *Controller) Process(ctx context.Context, text string) string {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	return c.process(ctx, s, text)
}

func (c *Controller) process(ctx context.Context, s *session, chunk string) string {
	text := strings.TrimSpace(chunk)
	if utf8.RuneCountInString(text) < c.cfg.MinChunkRunes {
		c.metrics.RecordChunk(ctx, observe.OutcomeDiscarded)
		return observe.OutcomeDiscarded
	}

	c.procMu.Lock()
	defer c.procMu.Unlock()

	start := time.Now()
	var (
		operator  types.User
		sessionID string
	)
	if s != nil {
		c.mu.Lock()
		operator, sessionID = s.operator, s.id
		c.mu.Unlock()
	}

	ctx, span := observe.StartSpan(observe.WithSessionID(ctx, sessionID), "session.Process")
	defer span.End()
	log := observe.Logger(ctx)

	roster, err := c.backlog.Roster(ctx)
	if err != nil {
		log.Warn("session: roster unavailable, mentions disabled", "err", err)
	}
	if c.normalizer != nil {
		if fixed, corrections := c.normalizer.Normalize(text, roster); len(corrections) > 0 {
			log.Debug("session: repaired names", "corrections", len(corrections))
			text = fixed
		}
	}

	a := analysis.Analyze(text)

	outcome, notice, handled := c.correct(ctx, text, roster, operator)
	if !handled {
		outcome, notice = c.autoAnswer(ctx, text, roster, operator)
	}

	c.persist(ctx, sessionID, operator, a.Extractions)

	c.mu.Lock()
	if s != nil {
		s.extractionCount += len(a.Extractions)
	}
	if s == nil || s == c.owner {
		if notice != nil {
			c.suggestions = prepend(c.suggestions, []types.Suggestion{*notice}, maxSuggestions)
		}
		c.extractions = prepend(c.extractions, a.Extractions, maxExtractions)
		c.extractionCount += len(a.Extractions)
		c.uncertainties = prepend(c.uncertainties, a.Uncertainties, maxUncertainties)
		c.suggestions = prepend(c.suggestions, a.Suggestions, maxSuggestions)
	}
	c.mu.Unlock()

	c.metrics.RecordChunk(ctx, outcome)
	c.metrics.RecordFlush(ctx, time.Since(start))
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("extractions", len(a.Extractions)),
	)
	log.Debug("session: chunk processed",
		"outcome", outcome,
		"extractions", len(a.Extractions),
		"uncertainties", len(a.Uncertainties),
		"suggestions", len(a.Suggestions),
	)
	return outcome
}

// correct overwrites the last answer when text retracts it inside the
// correction window. handled reports whether the chunk was consumed as a
// correction, even if nothing could be written.
func (c *Controller) correct(ctx context.Context, text string, roster []types.User, operator types.User) (outcome string, notice *types.Suggestion, handled bool) {
	if !analysis.IsCorrection(text) {
		return "", nil, false
	}
	now := c.now()
	q, ok := c.backlog.CorrectionTarget(now, c.cfg.CorrectionWindow)
	if !ok {
		return "", nil, false
	}

	log := observe.Logger(ctx)
	residue := analysis.StripCorrection(text)
	if residue == "" {
		log.Debug("session: correction without content", "question_id", q.ID)
		return observe.OutcomeNoMatch, nil, true
	}

	mentions := analysis.DetectMentions(residue, roster)
	_, err := c.backlog.Record(ctx, backlog.Mutation{
		QuestionID: q.ID,
		Entry: types.AnswerHistoryEntry{
			Answer:         residue,
			AnsweredBy:     tagged(operator.Name, sttAuthor),
			MentionedUsers: mentions,
			Source:         types.SourceSTTCorrection,
			CreatedAt:      now,
		},
		Patch: types.AnswerPatch{
			Answered:       true,
			Answer:         residue,
			AnsweredBy:     tagged(operator.Name, sttCorrectedTag),
			AnsweredAt:     now,
			MentionedUsers: mentions,
		},
	})
	if err != nil {
		log.Warn("session: correction not saved", "question_id", q.ID, "err", err)
		return observe.OutcomeNoMatch, nil, true
	}

	log.Info("session: answer corrected", "question_id", q.ID)
	return observe.OutcomeCorrection, &types.Suggestion{
		Type:     types.SuggestionCorrection,
		Content:  fmt.Sprintf("🔄 Risposta CORRETTA: \"%s...\"%s", preview(residue), namesSuffix("ora", mentions, roster)),
		Priority: types.PriorityHigh,
	}, true
}

// autoAnswer records text as the answer to the question the extractor picks.
func (c *Controller) autoAnswer(ctx context.Context, text string, roster []types.User, operator types.User) (string, *types.Suggestion) {
	log := observe.Logger(ctx)
	questions := c.backlog.Questions()

	res := c.extractor.Extract(ctx, text, questions, roster)
	if res.Confidence <= c.cfg.ConfidenceThreshold {
		return observe.OutcomeNoMatch, nil
	}

	var (
		target types.Question
		ok     bool
	)
	if res.MatchedQuestionID != "" {
		target, ok = openQuestion(questions, res.MatchedQuestionID)
	} else {
		target, ok = analysis.MatchQuestion(text, questions)
	}
	if !ok {
		log.Debug("session: no open question for extraction", "question_id", res.MatchedQuestionID)
		return observe.OutcomeNoMatch, nil
	}

	mentions := res.MentionedUserIDs
	if len(mentions) == 0 {
		mentions = analysis.DetectMentions(text, roster)
	}
	answer := res.ExtractedAnswer
	if answer == "" {
		answer = text
	}

	now := c.now()
	author := operator.Name
	if author == "" {
		author = sttAuthor
	}
	_, err := c.backlog.Record(ctx, backlog.Mutation{
		QuestionID: target.ID,
		Entry: types.AnswerHistoryEntry{
			Answer:         answer,
			AnsweredBy:     author,
			MentionedUsers: mentions,
			Source:         types.SourceSTT,
			CreatedAt:      now,
		},
		Patch: types.AnswerPatch{
			Answered:       true,
			Answer:         answer,
			AnsweredBy:     tagged(operator.Name, sttAuthor),
			AnsweredAt:     now,
			MentionedUsers: mentions,
		},
		Track: true,
	})
	if err != nil {
		log.Warn("session: auto-answer not saved", "question_id", target.ID, "err", err)
		return observe.OutcomeNoMatch, nil
	}

	log.Info("session: question auto-answered",
		"question_id", target.ID,
		"confidence", res.Confidence,
		"source", string(res.Source),
	)
	return observe.OutcomeAutoAnswer, &types.Suggestion{
		Type:     types.SuggestionAutoAnswer,
		Content:  fmt.Sprintf("✅ Risposta salvata per: \"%s...\"%s", preview(target.Text), namesSuffix("menzionati", mentions, roster)),
		Priority: types.PriorityHigh,
	}
}

// persist stores the chunk's extractions and pushes KPI fields to the
// project record. Failures are logged and counted.
func (c *Controller) persist(ctx context.Context, sessionID string, operator types.User, extractions []types.Extraction) {
	log := observe.Logger(ctx)
	for _, e := range extractions {
		c.metrics.RecordExtraction(ctx, string(e.Field))
		if sessionID != "" {
			if err := c.store.InsertExtraction(ctx, sessionID, e); err != nil {
				c.metrics.RecordStoreError(ctx, "insert_extraction")
				log.Warn("session: extraction not saved", "field", e.Field, "err", err)
			}
		}

		patch, ok := kpiPatch(e, operator)
		if !ok {
			continue
		}
		c.pushProject(ctx, operator, patch)
	}
}

// kpiPatch maps an extraction to a project update. Budget needs an operator
// allowed to edit the project.
func kpiPatch(e types.Extraction, operator types.User) (types.ProjectPatch, bool) {
	n, err := strconv.Atoi(e.Value)
	if err != nil {
		return types.ProjectPatch{}, false
	}
	var patch types.ProjectPatch
	switch e.Field {
	case types.FieldTTDCurrent:
		patch.TTDCurrent = &n
	case types.FieldTargetProjects:
		patch.TargetProjectsMonth = &n
	case types.FieldBudget:
		if !operator.CanEditProject() {
			return types.ProjectPatch{}, false
		}
		patch.BudgetTotal = &n
	default:
		return types.ProjectPatch{}, false
	}
	return patch, true
}

func (c *Controller) pushProject(ctx context.Context, operator types.User, patch types.ProjectPatch) {
	log := observe.Logger(ctx)
	prev, err := c.store.Project(ctx, c.cfg.ProjectID)
	if err != nil {
		c.metrics.RecordStoreError(ctx, "project")
		log.Warn("session: project not available", "err", err)
		return
	}
	next, err := c.store.UpdateProject(ctx, prev.ID, patch)
	if err != nil {
		c.metrics.RecordStoreError(ctx, "update_project")
		log.Warn("session: project not updated", "project_id", prev.ID, "err", err)
		return
	}

	madeBy := operator.Name
	if madeBy == "" {
		madeBy = systemAuthor
	}
	if _, err := c.store.InsertDecision(ctx, types.Decision{
		Type:          "project_update",
		Title:         "Aggiornamento progetto",
		Description:   "Modificati: " + strings.Join(patch.Fields(), ", "),
		Reasoning:     "Aggiornamento da discovery",
		MadeBy:        madeBy,
		PreviousState: &prev,
		NewState:      &next,
		CreatedAt:     c.now(),
	}); err != nil {
		c.metrics.RecordStoreError(ctx, "insert_decision")
		log.Warn("session: decision not logged", "project_id", prev.ID, "err", err)
	}
}

// openQuestion returns the unanswered question with id.
func openQuestion(questions []types.Question, id string) (types.Question, bool) {
	for _, q := range questions {
		if q.ID == id && !q.Answered {
			return q, true
		}
	}
	return types.Question{}, false
}

// tagged renders "name (tag)", or just tag for an anonymous operator.
func tagged(name, tag string) string {
	if name == "" {
		return tag
	}
	return name + " (" + tag + ")"
}

// preview returns the first previewRunes runes of s.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	return string([]rune(s)[:previewRunes])
}

func namesSuffix(label string, ids []string, roster []types.User) string {
	names := analysis.UserNames(ids, roster)
	if len(names) == 0 {
		return ""
	}
	return " (" + label + ": " + strings.Join(names, ", ") + ")"
}

// prepend puts items in front of list, keeping at most limit entries.
func prepend[T any](list, items []T, limit int) []T {
	if len(items) == 0 {
		return list
	}
	out := make([]T, 0, min(len(items)+len(list), limit))
	out = append(out, items...)
	out = append(out, list...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
