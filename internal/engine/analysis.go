package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sifthq/sift/internal/domain"
)

// parseModelAnalysis extracts the analysis JSON from raw model output. Models
// occasionally wrap the object in code fences or prose, so everything outside
// the outermost braces is discarded.
func parseModelAnalysis(raw string) (domain.ModelAnalysis, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.ModelAnalysis{}, fmt.Errorf("no JSON object in model output")
	}

	var analysis domain.ModelAnalysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &analysis); err != nil {
		return domain.ModelAnalysis{}, fmt.Errorf("failed to decode model output: %w", err)
	}

	if analysis.Category == "" && analysis.Summary == "" {
		return domain.ModelAnalysis{}, fmt.Errorf("model output carries neither category nor summary")
	}

	return analysis, nil
}

// assembleResult combines the source event with the model analysis. Identity
// fields always come from the event record; the category is normalized onto
// the taxonomy.
func assembleResult(rc domain.RunContext, event domain.EventRecord, analysis domain.ModelAnalysis, tax domain.Taxonomy) domain.AnalysisResult {
	analysis.Category = tax.Normalize(analysis.Category)

	return domain.AnalysisResult{
		EventID:       event.ID(),
		Mode:          rc.Mode,
		RunID:         rc.RunID,
		Route:         rc.Route,
		Window:        rc.Window,
		Identity:      event.Identity(),
		AnalyzedAt:    time.Now().UTC(),
		ModelAnalysis: analysis,
	}
}

func marshalResult(result domain.AnalysisResult) ([]byte, error) {
	data, err := json.MarshalIndent(result, "", " ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis result %s: %w", result.EventID, err)
	}
	return data, nil
}
