package plan

import (
	"encoding/json"
	"strings"

	"stockchat/internal/domain"
)

// Parse extracts the JSON object from interpreter text output (which may be
// wrapped in markdown fences or prose) and validates it.
func (v *Validator) Parse(text string) (*domain.ActionPlan, error) {
	body, ok := ExtractJSON(text)
	if !ok {
		return nil, malformed("no JSON object in interpreter response")
	}
	var raw any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, domain.NewError(domain.CodeMalformedPlan, "interpreter response is not valid JSON", err)
	}
	return v.Validate(raw)
}

// ExtractJSON returns the first balanced top-level JSON object in text.
func ExtractJSON(text string) (string, bool) {
	text = stripFences(strings.TrimSpace(text))
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// stripFences removes a surrounding ```json ... ``` block when present.
func stripFences(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	rest := s[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.Contains(rest[:nl], "{") {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
