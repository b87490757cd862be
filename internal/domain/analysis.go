package domain

import "time"

// ModelAnalysis is the portion of an analysis produced by the model. It is
// parsed from raw model output and validated against the taxonomy before it
// becomes part of an AnalysisResult.
type ModelAnalysis struct {
	Category            string `json:"category"`
	CategoryExplanation string `json:"category_explanation,omitempty"`
	Summary             string `json:"summary"`
	Sentiment           string `json:"sentiment,omitempty"`
	SuggestedAction     string `json:"suggested_action,omitempty"`
	SuggestionLink      string `json:"suggestion_link,omitempty"`
}

// AnalysisResult is the per-event artifact. Identity fields come from the
// source event record; only the analysis fields come from the model.
type AnalysisResult struct {
	EventID    string            `json:"event_id"`
	Mode       Mode              `json:"mode"`
	RunID      string            `json:"run_id"`
	Route      Route             `json:"route"`
	Window     string            `json:"window"`
	Identity   map[string]string `json:"identity,omitempty"`
	AnalyzedAt time.Time         `json:"analyzed_at"`

	ModelAnalysis
}

// AggregateSummary is the single run-level synthesis artifact. It exists only
// when the run produced at least one analysis result.
type AggregateSummary struct {
	Summary string `json:"summary"`
	Plan    string `json:"plan"`
}
