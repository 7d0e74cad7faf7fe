package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractJSONObject returns the first balanced {...} block in raw. Models
// sometimes wrap their verdict in prose or code fences; the scan is
// string-aware so braces inside JSON strings do not unbalance it.
func extractJSONObject(raw string) (string, bool) {
	offset := 0
	for {
		rel := strings.IndexByte(raw[offset:], '{')
		if rel < 0 {
			return "", false
		}
		start := offset + rel

		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(raw); i++ {
			ch := raw[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}

		// Block starting here never closes; try the next opening brace.
		offset = start + 1
	}
}

const classificationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["documentType", "confidence", "reasoning"],
  "properties": {
    "documentType": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  }
}`

var classificationSchema = jsonschema.MustCompileString("classification.json", classificationSchemaJSON)

func validateClassification(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal classification: %w", err)
	}
	if err := classificationSchema.Validate(v); err != nil {
		return fmt.Errorf("classification does not match schema: %w", err)
	}
	return nil
}
