// Package prompts builds the model inputs for classification and synthesis.
// Prompt text and tuning values are coupled, so both live here.
package prompts

import (
	"fmt"
	"strings"

	"github.com/sifthq/sift/internal/domain"
)

// Tuning for the per-event classification call.
const (
	ClassifyTemperature float32 = 0.5
	ClassifyTopP        float32 = 0.1
	ClassifyMaxTokens           = 10240
)

const classifyOutputFormat = `{
 "category": "<matching category label>",
 "category_explanation": "<why this category was picked>",
 "summary": "<summary of the event>",
 "sentiment": "<Positive|Negative|Neutral>",
 "suggested_action": "<how to fix the issue and prevent re-occurrence>",
 "suggestion_link": "<documentation link supporting the suggested action>"
}`

// Classification renders the system and user prompts for categorizing a
// single event against the taxonomy.
func Classification(tax domain.Taxonomy, event domain.EventRecord) (system string, user string) {
	var b strings.Builder

	b.WriteString("You are a technical account manager responsible for operational event streams.\n")
	b.WriteString("You are responsible for categorizing events into the following categories:\n")

	for i, c := range tax.Categories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Label)
	}

	for _, c := range tax.Categories {
		if c.Description != "" {
			fmt.Fprintf(&b, "Here is a description of the category %s: %s\n", c.Label, c.Description)
		}
		if len(c.Examples) > 0 {
			fmt.Fprintf(&b, "Here are some examples of the category %s:\n%s\n", c.Label, strings.Join(c.Examples, "\n"))
		}
	}

	b.WriteString("You will respond with the category that best matches the event.\n")
	b.WriteString("Return the category in the output field category.\n")
	b.WriteString("Explain why the category was picked in the output field category_explanation.\n")
	fmt.Fprintf(&b, "If the event does not match any of the above categories, return %s.\n", domain.OtherCategory)
	b.WriteString("Summarize the event in the output field summary.\n")
	b.WriteString("Return the sentiment of the reporter in the output field sentiment.\n")
	b.WriteString("Sentiment must be one of the following: Positive, Negative, Neutral.\n")
	b.WriteString("Return the suggested action in the output field suggested_action.\n")
	b.WriteString("The suggested action must tell the operator how to fix the issue and prevent it from re-occurrence.\n")
	b.WriteString("Return a documentation link that supports the suggested action in the output field suggestion_link.\n")
	b.WriteString("Output must be in the following format:\n")
	b.WriteString(classifyOutputFormat + "\n")
	b.WriteString("Output the above and nothing else.\n")
	b.WriteString("Output must be in JSON format.\n")

	user = fmt.Sprintf("Categorize this <event>%s</event>", event.Body())

	return b.String(), user
}
