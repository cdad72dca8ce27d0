package gemini

import (
	"encoding/json"
	"strings"

	"github.com/voxnote/voxnote-api/internal/analysis"
)

// parseWorkflowOutput interprets the model's response text. Models wrap
// JSON in markdown code fences often enough that stripping them is part of
// the contract, and a response that is not JSON at all still yields a
// usable result: the raw text becomes the summary and the structured
// fields stay empty. Missing sub-fields simply decode to zero values.
func parseWorkflowOutput(raw string) *analysis.Result {
	cleaned := stripCodeFences(raw)

	var result analysis.Result
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return &analysis.Result{Summary: strings.TrimSpace(raw)}
	}

	return &result
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, leaving other text untouched.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)

	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop a language tag like "json" on the opening fence line.
	if newline := strings.Index(trimmed, "\n"); newline >= 0 {
		firstLine := strings.TrimSpace(trimmed[:newline])
		if firstLine != "" && !strings.ContainsAny(firstLine, "{[") {
			trimmed = trimmed[newline+1:]
		}
	}

	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
