package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sifthq/sift/internal/domain"
	"github.com/sifthq/sift/internal/prompts"
	"github.com/sifthq/sift/pkg/inference"
)

// Aggregator synthesizes the run-level summary and plan from the per-event
// results. Oversized inputs are condensed chunk by chunk before the final
// synthesis call.
type Aggregator struct {
	client        inference.Client
	artifacts     domain.ObjectStore
	model         string
	maxInputBytes int
	retry         RetryPolicy
}

type AggregatorDependencies struct {
	Client        inference.Client
	Artifacts     domain.ObjectStore
	Model         string
	MaxInputBytes int
	Retry         RetryPolicy
}

func NewAggregator(deps AggregatorDependencies) *Aggregator {
	return &Aggregator{
		client:        deps.Client,
		artifacts:     deps.Artifacts,
		model:         deps.Model,
		maxInputBytes: deps.MaxInputBytes,
		retry:         deps.Retry,
	}
}

// condenseRounds bounds how often the input may be re-condensed before the
// final synthesis proceeds with whatever is left.
const condenseRounds = 3

// Aggregate produces the single summary artifact. Any failure here fails the
// run; there is no partial aggregate.
func (a *Aggregator) Aggregate(ctx context.Context, rc domain.RunContext, partition string, results []domain.AnalysisResult) (domain.AggregateSummary, error) {
	if len(results) == 0 {
		return domain.AggregateSummary{}, fmt.Errorf("%w: no results to aggregate", domain.ErrNoSummary)
	}

	view, err := renderResults(results)
	if err != nil {
		return domain.AggregateSummary{}, err
	}

	for round := 0; len(view) > a.maxInputBytes && round < condenseRounds; round++ {
		log.Info().
			Int("round", round+1).
			Int("bytes", len(view)).
			Int("limit", a.maxInputBytes).
			Msg("Synthesis input over budget, condensing")

		view, err = a.condense(ctx, view)
		if err != nil {
			return domain.AggregateSummary{}, err
		}
	}

	system, user := prompts.Synthesis(view)

	raw, err := a.generate(ctx, "synthesize", system, user)
	if err != nil {
		return domain.AggregateSummary{}, fmt.Errorf("%w: %v", domain.ErrNoSummary, err)
	}

	summary, err := parseSummary(raw)
	if err != nil {
		return domain.AggregateSummary{}, fmt.Errorf("%w: %v", domain.ErrNoSummary, err)
	}

	data, err := json.MarshalIndent(summary, "", " ")
	if err != nil {
		return domain.AggregateSummary{}, fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := a.artifacts.Put(ctx, summaryKey(partition), data); err != nil {
		return domain.AggregateSummary{}, fmt.Errorf("failed to persist summary: %w", err)
	}

	return summary, nil
}

func (a *Aggregator) condense(ctx context.Context, view string) (string, error) {
	chunks := splitBySize(view, a.maxInputBytes)

	digests := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		system, user := prompts.Condense(chunk)

		digest, err := a.generate(ctx, fmt.Sprintf("condense chunk %d/%d", i+1, len(chunks)), system, user)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrNoSummary, err)
		}

		digests = append(digests, strings.TrimSpace(digest))
	}

	return strings.Join(digests, "\n"), nil
}

func (a *Aggregator) generate(ctx context.Context, op, system, user string) (string, error) {
	req := inference.GenerateRequest{
		Model:       a.model,
		System:      system,
		Prompt:      user,
		Temperature: prompts.SynthesisTemperature,
		TopP:        prompts.SynthesisTopP,
		MaxTokens:   prompts.SynthesisMaxTokens,
	}

	var resp *inference.GenerateResponse
	err := a.retry.Do(ctx, op, func(ctx context.Context) error {
		var genErr error
		resp, genErr = a.client.Generate(ctx, req)
		return genErr
	})
	if err != nil {
		return "", err
	}

	return resp.Content, nil
}

// renderResults flattens the analyses into one line per event for the
// synthesis prompt.
func renderResults(results []domain.AnalysisResult) (string, error) {
	var b strings.Builder

	for _, r := range results {
		line, err := json.Marshal(struct {
			EventID         string `json:"event_id"`
			Category        string `json:"category"`
			Summary         string `json:"summary"`
			Sentiment       string `json:"sentiment,omitempty"`
			SuggestedAction string `json:"suggested_action,omitempty"`
		}{
			EventID:         r.EventID,
			Category:        r.Category,
			Summary:         r.Summary,
			Sentiment:       r.Sentiment,
			SuggestedAction: r.SuggestedAction,
		})
		if err != nil {
			return "", fmt.Errorf("failed to render result %s: %w", r.EventID, err)
		}

		b.Write(line)
		b.WriteByte('\n')
	}

	return b.String(), nil
}

// splitBySize cuts the view into chunks no larger than limit, breaking only
// at line boundaries. A single oversized line becomes its own chunk.
func splitBySize(view string, limit int) []string {
	lines := strings.Split(view, "\n")

	var (
		chunks  []string
		current strings.Builder
	)

	for _, line := range lines {
		if line == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(line)+1 > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

func parseSummary(raw string) (domain.AggregateSummary, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.AggregateSummary{}, fmt.Errorf("no JSON object in synthesis output")
	}

	var summary domain.AggregateSummary
	if err := json.Unmarshal([]byte(raw[start:end+1]), &summary); err != nil {
		return domain.AggregateSummary{}, fmt.Errorf("failed to decode synthesis output: %w", err)
	}

	if summary.Summary == "" && summary.Plan == "" {
		return domain.AggregateSummary{}, fmt.Errorf("synthesis output carries neither summary nor plan")
	}

	return summary, nil
}
