package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ahrav/go-hydra/internal/ports"
)

// decodeJSON extracts the first JSON object from an LLM response and
// decodes it into v. Malformed JSON (trailing commas, single quotes,
// truncated output) is repaired once before giving up.
func decodeJSON(response string, v any) error {
	raw := extractJSON(response)
	if raw == "" {
		raw = strings.TrimSpace(response)
	}
	if raw == "" {
		return fmt.Errorf("%w: empty response", ports.ErrInvalidResponse)
	}

	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fmt.Errorf("%w: unrepairable JSON: %v", ports.ErrInvalidResponse, err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err)
	}
	return nil
}

// extractJSON returns the JSON object embedded in response, looking in
// ```json fences, then plain fences, then the first balanced {...} span.
// It returns "" when no object is found.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	// First, try to extract from markdown code blocks
	if start := strings.Index(response, "```json"); start != -1 {
		start += 7 // Move past "```json"
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	// Also check for generic code blocks
	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		// Skip any language identifier
		if nl := strings.Index(response[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Find the matching closing brace, handling nested objects and strings
	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		if c == '\\' {
			escapeNext = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}

	// Unbalanced: hand the tail to the repairer.
	return response[start:]
}
