package eval

// The four evaluation prompts are fixed templates; the transcript is
// substituted for %s. They are opaque strings sent verbatim to the
// completion endpoint, not something this package authors or tunes.
const (
	summaryPrompt = `Summarize the following customer conversation transcript in 3-4 sentences, ` +
		`focusing on the customer's intent and how well it was addressed. ` +
		`Respond as JSON: {"summary": "..."}.

Transcript:
%s`

	rubricPrompt = `Score the agent in the following transcript on each rubric dimension from 1 to 5: ` +
		`accuracy, empathy, clarity, resolution. ` +
		`Respond as JSON: {"accuracy": n, "empathy": n, "clarity": n, "resolution": n}.

Transcript:
%s`

	recommendationsPrompt = `List up to three concrete coaching recommendations for the agent in the ` +
		`following transcript. Respond as JSON: {"recommendations": ["...", "..."]}.

Transcript:
%s`

	suggestedReplyPrompt = `Write the single best next reply the agent could send in the following ` +
		`transcript. Respond as JSON: {"reply": "..."}.

Transcript:
%s`
)
