package llm

import (
	"fmt"
	"math"
)

// Stage output schemas, expressed as data so callers and tests share one
// definition. Shapes follow JSON Schema's object/properties/required subset.
var (
	SentimentSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tickers": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"ticker", "mentions", "score"},
					"properties": map[string]interface{}{
						"ticker":     map[string]interface{}{"type": "string"},
						"mentions":   map[string]interface{}{"type": "integer"},
						"score":      map[string]interface{}{"type": "number"},
						"subreddits": map[string]interface{}{"type": "object"},
						"summary":    map[string]interface{}{"type": "string"},
					},
				},
			},
			"summary": map[string]interface{}{"type": "string"},
		},
		"required": []string{"tickers"},
	}

	ResearchSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"entries": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"ticker", "score"},
					"properties": map[string]interface{}{
						"ticker":       map[string]interface{}{"type": "string"},
						"score":        map[string]interface{}{"type": "number"},
						"pros":         map[string]interface{}{"type": "array"},
						"cons":         map[string]interface{}{"type": "array"},
						"catalyst":     map[string]interface{}{"type": "string"},
						"sector_peers": map[string]interface{}{"type": "array"},
					},
				},
			},
			"summary": map[string]interface{}{"type": "string"},
		},
		"required": []string{"entries"},
	}

	MarketSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"regime":       map[string]interface{}{"type": "string"},
			"summary":      map[string]interface{}{"type": "string"},
			"ticker_notes": map[string]interface{}{"type": "object"},
		},
		"required": []string{"summary"},
	}

	TraderSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"picks": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"ticker", "action", "allocation_pct"},
					"properties": map[string]interface{}{
						"ticker":         map[string]interface{}{"type": "string"},
						"action":         map[string]interface{}{"type": "string"},
						"allocation_pct": map[string]interface{}{"type": "number"},
						"reasoning":      map[string]interface{}{"type": "string"},
						"confidence":     map[string]interface{}{"type": "number"},
					},
				},
			},
			"summary": map[string]interface{}{"type": "string"},
		},
		"required": []string{"picks"},
	}

	RiskReviewSchema = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"picks":          map[string]interface{}{"type": "array"},
			"risk_notes":     map[string]interface{}{"type": "array"},
			"adjustments":    map[string]interface{}{"type": "object"},
			"vetoed_tickers": map[string]interface{}{"type": "array"},
			"summary":        map[string]interface{}{"type": "string"},
		},
		"required": []string{"picks"},
	}
)

// ValidateSchema checks a decoded JSON value against a schema expressed as
// data. Supported keywords: type, properties, required, items. Numeric types
// are relaxed: integers satisfy "number", and integral floats satisfy
// "integer", since LLM output does not distinguish the two.
func ValidateSchema(value interface{}, schema map[string]interface{}) error {
	return validateNode(value, schema, "$")
}

func validateNode(value interface{}, schema map[string]interface{}, path string) error {
	typeName, _ := schema["type"].(string)
	if typeName != "" {
		if err := checkType(value, typeName, path); err != nil {
			return err
		}
	}

	if obj, ok := value.(map[string]interface{}); ok {
		if required, ok := schema["required"].([]string); ok {
			for _, field := range required {
				if _, present := obj[field]; !present {
					return fmt.Errorf("%s: missing required field %q", path, field)
				}
			}
		}
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			for name, sub := range props {
				child, present := obj[name]
				if !present || child == nil {
					continue
				}
				subSchema, ok := sub.(map[string]interface{})
				if !ok {
					continue
				}
				if err := validateNode(child, subSchema, path+"."+name); err != nil {
					return err
				}
			}
		}
	}

	if arr, ok := value.([]interface{}); ok {
		if items, ok := schema["items"].(map[string]interface{}); ok {
			for i, elem := range arr {
				if err := validateNode(elem, items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func checkType(value interface{}, typeName, path string) error {
	switch typeName {
	case "object":
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("%s: expected object, got %T", path, value)
		}
	case "array":
		if _, ok := value.([]interface{}); !ok {
			return fmt.Errorf("%s: expected array, got %T", path, value)
		}
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s: expected string, got %T", path, value)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("%s: expected number, got %T", path, value)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok {
			return fmt.Errorf("%s: expected integer, got %T", path, value)
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("%s: expected integer, got %v", path, f)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean, got %T", path, value)
		}
	}
	return nil
}
