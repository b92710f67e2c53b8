package intent

import "strings"

// Interpretation exposes the intermediate results of the rule path.
type Interpretation struct {
	Branch   Branch   `json:"branch"`
	Entities Entities `json:"entities"`
	Response Response `json:"response"`
}

// Normalize prepares text for keyword matching.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Analyze runs extraction, classification and response building.
func Analyze(text string, prices PriceContext) Interpretation {
	normalized := Normalize(text)
	ents := Extract(text)
	branch := Classify(normalized, ents)
	return Interpretation{
		Branch:   branch,
		Entities: ents,
		Response: Build(branch, normalized, ents, prices.Normalized()),
	}
}

// Interpret is the rule-based path: a candidate response for text, not yet
// validated.
func Interpret(text string, prices PriceContext) Response {
	return Analyze(text, prices).Response
}
