// Package types defines the shared domain types used across all cockpit packages.
//
// These types form the lingua franca between the analysis engine, the
// extraction adapter, the session controller, and the record store. Each
// package may define its own internal types, but anything that crosses a
// package boundary lives here to avoid circular imports.
package types

import "time"

// Utterance is a single finalised speech segment delivered by the external
// recognizer. It is never persisted directly; only derived artifacts are.
type Utterance struct {
	// Text is the recognised speech content.
	Text string `json:"text"`

	// Confidence is the recognizer confidence as a percentage in [0, 100].
	Confidence int `json:"confidence"`

	// At is the wall-clock time the utterance was received.
	At time.Time `json:"at"`
}

// Field names a structured fact that the feature extractor can pull from text.
type Field string

const (
	FieldTTDCurrent     Field = "ttd_current"
	FieldTargetProjects Field = "target_projects"
	FieldConversionRate Field = "conversion_rate"
	FieldBudget         Field = "budget"
)

// Confidence is a coarse confidence level attached to an [Extraction].
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Category groups extractions for reporting.
type Category string

const (
	CategoryKPI      Category = "kpi"
	CategoryEconomic Category = "economic"
)

// Extraction is a structured fact pulled from a transcript chunk by a fixed
// lexical pattern. At most one extraction per field is produced per chunk.
type Extraction struct {
	Field      Field      `json:"field"`
	Value      string     `json:"value"`
	Confidence Confidence `json:"confidence"`
	Category   Category   `json:"category"`

	// Quote holds the surrounding text for audit purposes. Only populated for
	// fields that carry context (currently ttd_current).
	Quote string `json:"quote,omitempty"`
}

// Uncertainty flags vague language in a chunk. Purely advisory.
type Uncertainty struct {
	Topic    string `json:"topic"`
	Reason   string `json:"reason"`
	Question string `json:"question"`
}

// SuggestionType classifies a [Suggestion].
type SuggestionType string

const (
	SuggestionMarket     SuggestionType = "market"
	SuggestionDecision   SuggestionType = "decision"
	SuggestionCorrection SuggestionType = "correction"
	SuggestionAutoAnswer SuggestionType = "auto_answer"
)

// Priority is shared by suggestions and questions.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Suggestion is an ephemeral notice surfaced to the session owner.
type Suggestion struct {
	Type     SuggestionType `json:"type"`
	Content  string         `json:"content"`
	Priority Priority       `json:"priority"`
}

// Question is a discovery backlog item.
//
// Invariant: Answered is true if and only if Answer is non-empty.
type Question struct {
	ID             string     `json:"id"`
	Category       string     `json:"category"`
	Text           string     `json:"text"`
	Priority       Priority   `json:"priority"`
	Answered       bool       `json:"answered"`
	Answer         string     `json:"answer,omitempty"`
	AnsweredBy     string     `json:"answered_by,omitempty"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty"`
	MentionedUsers []string   `json:"mentioned_users,omitempty"`
}

// AnswerSource records how an answer was produced.
type AnswerSource string

const (
	SourceManual        AnswerSource = "manual"
	SourceSTT           AnswerSource = "stt"
	SourceSTTCorrection AnswerSource = "stt_correction"
)

// IsValid reports whether s is a recognised answer source.
func (s AnswerSource) IsValid() bool {
	switch s {
	case SourceManual, SourceSTT, SourceSTTCorrection:
		return true
	}
	return false
}

// AnswerHistoryEntry is one row of the append-only answer log. An entry is
// written before every mutation of a question's answer.
type AnswerHistoryEntry struct {
	ID             string       `json:"id"`
	QuestionID     string       `json:"question_id"`
	Answer         string       `json:"answer"`
	AnsweredBy     string       `json:"answered_by"`
	MentionedUsers []string     `json:"mentioned_users,omitempty"`
	Source         AnswerSource `json:"source"`
	CreatedAt      time.Time    `json:"created_at"`
}

// AnswerPatch is the set of question fields written by an answer mutation.
// A patch with Answered=false resets the question to unanswered and clears
// every other answer field.
type AnswerPatch struct {
	Answered       bool
	Answer         string
	AnsweredBy     string
	AnsweredAt     time.Time
	MentionedUsers []string
}

// Role is a roster user's role.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleTeamMember Role = "team_member"
	RoleConsultant Role = "consultant"
)

// User is a roster entry. Read-only from the engine's perspective.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// CanEditProject reports whether u may push economic figures to the project
// record. Only owners can.
func (u User) CanEditProject() bool {
	return u.Role == RoleOwner
}

// Project holds the KPI record that extractions are pushed to.
type Project struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	TTDCurrent          *int   `json:"ttd_current,omitempty"`
	TargetProjectsMonth *int   `json:"target_projects_month,omitempty"`
	BudgetTotal         *int   `json:"budget_total,omitempty"`
}

// ProjectPatch carries the KPI fields to update. Nil fields are left untouched.
type ProjectPatch struct {
	TTDCurrent          *int
	TargetProjectsMonth *int
	BudgetTotal         *int
}

// Fields returns the column names touched by p, in a stable order.
func (p ProjectPatch) Fields() []string {
	var out []string
	if p.TTDCurrent != nil {
		out = append(out, "ttd_current")
	}
	if p.TargetProjectsMonth != nil {
		out = append(out, "target_projects_month")
	}
	if p.BudgetTotal != nil {
		out = append(out, "budget_total")
	}
	return out
}

// IsEmpty reports whether p touches no field.
func (p ProjectPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Apply returns a copy of pr with p applied.
func (p ProjectPatch) Apply(pr Project) Project {
	if p.TTDCurrent != nil {
		v := *p.TTDCurrent
		pr.TTDCurrent = &v
	}
	if p.TargetProjectsMonth != nil {
		v := *p.TargetProjectsMonth
		pr.TargetProjectsMonth = &v
	}
	if p.BudgetTotal != nil {
		v := *p.BudgetTotal
		pr.BudgetTotal = &v
	}
	return pr
}

// Decision is an audit record written alongside every project update.
type Decision struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Reasoning     string    `json:"reasoning"`
	MadeBy        string    `json:"made_by"`
	PreviousState *Project  `json:"previous_state,omitempty"`
	NewState      *Project  `json:"new_state,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionRecord describes an external listening-session row.
type SessionRecord struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	StartedBy string     `json:"started_by"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// SessionSummary is written when a listening session is closed.
type SessionSummary struct {
	EndedAt         time.Time
	TranscriptCount int
	ExtractionCount int
}
