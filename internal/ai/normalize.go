package ai

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// recommendationSchemaJSON checks structure only. Items may carry extra keys and may omit
// fields; scalar fields accept strings or numbers because models emit both.
const recommendationSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["loans"],
  "properties": {
    "loans": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "bank_name":      {"$ref": "#/definitions/scalar"},
          "loan_type":      {"$ref": "#/definitions/scalar"},
          "max_amount":     {"$ref": "#/definitions/scalar"},
          "repayment_time": {"$ref": "#/definitions/scalar"},
          "interest_rate":  {"$ref": "#/definitions/scalar"},
          "rating":         {"$ref": "#/definitions/scalar"},
          "reason":         {"$ref": "#/definitions/scalar"},
          "link":           {"$ref": "#/definitions/scalar"}
        }
      }
    }
  },
  "definitions": {
    "scalar": {"type": ["string", "number", "null"]}
  }
}`

var recommendationSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(recommendationSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile recommendation schema: %w", err)
	}
	return schema, nil
})

// Normalize turns raw model output into a recommendation set. Output that cannot be read
// is returned verbatim as an UnparsedResponse; Normalize never fails.
func Normalize(raw string) Result {
	result, _ := normalize(raw)
	return result
}

// normalize also reports why a response was degraded.
func normalize(raw string) (Result, error) {
	set, err := parseRecommendations(raw)
	if err != nil {
		return Result{Unparsed: &UnparsedResponse{RawResponse: raw, Note: UnparsedNote}}, err
	}
	return Result{Set: set}, nil
}

func parseRecommendations(raw string) (*RecommendationSet, error) {
	content := normalizeJSONBlock(raw)
	if content == "" {
		return nil, errors.New("empty response")
	}

	schema, err := recommendationSchema()
	if err != nil {
		return nil, err
	}
	validation, err := schema.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if !validation.Valid() {
		problems := make([]string, 0, len(validation.Errors()))
		for _, problem := range validation.Errors() {
			problems = append(problems, problem.String())
		}
		return nil, fmt.Errorf("response does not match schema: %s", strings.Join(problems, "; "))
	}

	var set RecommendationSet
	if err := json.Unmarshal([]byte(content), &set); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if set.Loans == nil {
		set.Loans = []RecommendationItem{}
	}
	if len(set.Loans) > MaxRecommendations {
		set.Loans = set.Loans[:MaxRecommendations]
	}
	return &set, nil
}

// normalizeJSONBlock trims whitespace and strips a surrounding code fence with its language
// tag. Text around the payload is left in place, so prose-wrapped JSON does not parse.
func normalizeJSONBlock(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.IndexRune(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		trimmed = strings.TrimSpace(trimmed)
		trimmed = strings.TrimSuffix(trimmed, "```")
	}
	return strings.TrimSpace(trimmed)
}
