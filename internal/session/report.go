package session

import (
	"slices"
	"time"

	"github.com/MrWong99/cockpit/pkg/types"
)

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	Listening bool   `json:"listening"`
	SessionID string `json:"session_id,omitempty"`

	// Transcripts holds the most recent final utterances, oldest first.
	Transcripts []types.Utterance `json:"transcripts"`

	// Extractions, Uncertainties and Suggestions are newest first.
	Extractions   []types.Extraction  `json:"extractions"`
	Uncertainties []types.Uncertainty `json:"uncertainties"`
	Suggestions   []types.Suggestion  `json:"suggestions"`

	TranscriptCount int `json:"transcript_count"`
	ExtractionCount int `json:"extraction_count"`
}

// Snapshot returns the current session logs. The logs survive Stop until the
// next Start.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Listening:       c.sess != nil,
		Transcripts:     slices.Clone(c.transcripts),
		Extractions:     slices.Clone(c.extractions),
		Uncertainties:   slices.Clone(c.uncertainties),
		Suggestions:     slices.Clone(c.suggestions),
		TranscriptCount: c.transcriptCount,
		ExtractionCount: c.extractionCount,
	}
	if c.sess != nil {
		snap.SessionID = c.sess.id
	}
	return snap
}

// ReportMetadata describes when a [Report] was produced.
type ReportMetadata struct {
	Date            time.Time `json:"date"`
	ExtractionCount int       `json:"extraction_count"`
}

// Report summarises a session for the call owner.
type Report struct {
	Metadata ReportMetadata `json:"metadata"`

	// DataUpdated groups the logged extractions by category.
	DataUpdated map[types.Category][]types.Extraction `json:"data_updated"`

	Uncertainties []types.Uncertainty `json:"uncertainties"`

	// Suggestions keeps only high-priority suggestions.
	Suggestions []types.Suggestion `json:"suggestions"`

	// OpenQuestions are the follow-up questions raised by uncertainties.
	OpenQuestions []string `json:"open_questions"`
}

// Report builds a summary from the current logs.
func (c *Controller) Report() Report {
	snap := c.Snapshot()

	r := Report{
		Metadata: ReportMetadata{
			Date:            c.now(),
			ExtractionCount: len(snap.Extractions),
		},
		DataUpdated:   make(map[types.Category][]types.Extraction),
		Uncertainties: snap.Uncertainties,
	}
	for _, e := range snap.Extractions {
		r.DataUpdated[e.Category] = append(r.DataUpdated[e.Category], e)
	}
	for _, s := range snap.Suggestions {
		if s.Priority == types.PriorityHigh {
			r.Suggestions = append(r.Suggestions, s)
		}
	}
	for _, u := range snap.Uncertainties {
		if u.Question != "" {
			r.OpenQuestions = append(r.OpenQuestions, u.Question)
		}
	}
	return r
}
