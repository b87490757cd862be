package prompts

import "strings"

// Tuning for the run-level synthesis call.
const (
	SynthesisTemperature float32 = 0.3
	SynthesisTopP        float32 = 0.5
	SynthesisMaxTokens           = 131072
)

const synthesisOutputFormat = `{
 "summary": "<overall summary>",
 "plan": "<overall improvement plan>"
}`

// Synthesis renders the system and user prompts that turn per-event analysis
// summaries into the single run-level summary and plan.
func Synthesis(view string) (system string, user string) {
	var b strings.Builder

	b.WriteString("You are a technical account manager.\n")
	b.WriteString("By reviewing all operational events of your customer, you will understand the aggregate view of the customer.\n")
	b.WriteString("You are responsible to derive an overall sentiment and a plan to improve the customer's operational resilience.\n")
	b.WriteString("You will review the following event summaries:\n")
	b.WriteString(view + "\n")
	b.WriteString("Return the overall summary of the customer's experience as summary.\n")
	b.WriteString("Discuss the aggregate resilience themes in the summary.\n")
	b.WriteString("DO NOT DISCUSS INDIVIDUAL EVENTS IN THE SUMMARY.\n")
	b.WriteString("Return the overall plan to improve the customer's resilience as plan.\n")
	b.WriteString("Output must be in the following format:\n")
	b.WriteString(synthesisOutputFormat + "\n")
	b.WriteString("Output the summary and nothing else.\n")
	b.WriteString("Output must be in JSON format.\n")

	return b.String(), "Return the overall summary and plan for the customer."
}

// Condense renders the prompts used to shrink one oversized slice of event
// summaries before the final synthesis pass.
func Condense(chunk string) (system string, user string) {
	var b strings.Builder

	b.WriteString("You are a technical account manager reviewing a portion of your customer's operational events.\n")
	b.WriteString("You will condense the following event summaries into a shorter digest:\n")
	b.WriteString(chunk + "\n")
	b.WriteString("Preserve the themes, recurring problems and overall sentiment.\n")
	b.WriteString("Do not list individual events.\n")
	b.WriteString("Output plain text and nothing else.\n")

	return b.String(), "Condense the event summaries into a digest."
}
