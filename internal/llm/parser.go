package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencePattern  = regexp.MustCompile("```(?:json)?\\s*\\n?|\\n?```")
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// cleanMarkdownWrapper strips ```json fences that models wrap around JSON.
func cleanMarkdownWrapper(content string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(content, ""))
}

// decodeJSON parses a model reply into v. When the reply has prose around
// the JSON, the outermost {...} block is tried.
func decodeJSON(content string, v any) error {
	cleaned := cleanMarkdownWrapper(content)
	if cleaned == "" {
		return newProviderError(KindMalformed, "empty response", nil)
	}

	err := json.Unmarshal([]byte(cleaned), v)
	if err == nil {
		return nil
	}

	if block := objectPattern.FindString(cleaned); block != "" && block != cleaned {
		if err2 := json.Unmarshal([]byte(block), v); err2 == nil {
			return nil
		}
	}

	snippet := cleaned
	if len(snippet) > 120 {
		snippet = snippet[:120]
	}
	return newProviderError(KindMalformed, "unparseable JSON: "+snippet, err)
}

// flexInt accepts 72, 72.5 or "72" for numeric fields.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	s = strings.TrimSuffix(s, "%")
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	var n float64
	if err := json.Unmarshal([]byte(s), &n); err != nil {
		return err
	}
	*f = flexInt(n + 0.5)
	return nil
}

func clampConfidence(n int) int {
	return max(0, min(100, n))
}
