package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject locates the first balanced JSON object in a response that
// may wrap it in prose or a code fence. Returns the raw object text.
func ExtractJSONObject(text string) (string, error) {
	// Prefer fenced blocks when present
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			fenced := strings.TrimSpace(rest[:end])
			if obj, err := firstBalancedObject(fenced); err == nil {
				return obj, nil
			}
		}
	}

	return firstBalancedObject(text)
}

// firstBalancedObject scans for the first '{' and returns the substring up to
// its matching '}' while honoring string literals and escapes.
func firstBalancedObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], nil
				}
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON object in response")
}

// ParseWithSchema parses an LLM text response into out, validating the raw
// value against schema. The first attempt expects clean JSON; on failure a
// relaxed pass extracts the embedded object from prose or code fences. A
// second failure is final.
func ParseWithSchema(text string, schema map[string]interface{}, out interface{}) error {
	trimmed := strings.TrimSpace(text)

	strictErr := parseAndValidate(trimmed, schema, out)
	if strictErr == nil {
		return nil
	}

	extracted, err := ExtractJSONObject(text)
	if err != nil {
		return fmt.Errorf("strict parse failed (%v) and no embedded JSON found: %w", strictErr, err)
	}
	if err := parseAndValidate(extracted, schema, out); err != nil {
		return fmt.Errorf("relaxed parse failed: %w", err)
	}

	return nil
}

func parseAndValidate(raw string, schema map[string]interface{}, out interface{}) error {
	var value map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return err
	}
	if schema != nil {
		if err := ValidateSchema(value, schema); err != nil {
			return err
		}
	}
	return json.Unmarshal([]byte(raw), out)
}
