package analyst

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vantagegraph/vantage/internal/domain"
)

// ExtractJSON decodes the model's reply into v. The model occasionally wraps
// its JSON in code fences or prose, so decoding falls through three
// strategies: the raw text, the text with fences stripped, and the substring
// from the first '{' to the last '}'.
func ExtractJSON(raw string, v any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("analyst: empty response: %w", domain.ErrMalformedResponse)
	}

	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	if stripped := stripFences(trimmed); stripped != trimmed {
		if err := json.Unmarshal([]byte(stripped), v); err == nil {
			return nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("analyst: no parsable JSON object in response: %w", domain.ErrMalformedResponse)
}

// stripFences removes a leading ```lang line and a trailing ``` line.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		// Drop the language tag on the opening fence line.
		first := strings.TrimSpace(s[:nl])
		if !strings.ContainsAny(first, "{}") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
