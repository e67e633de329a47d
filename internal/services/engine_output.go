package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"alfredoptarigan/ats-analyzer/internal/models"
)

// The engine prints free-form progress lines around a single JSON object.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ParseEngineOutput recovers the result object embedded in raw engine output.
// It first tries the outermost brace span matched by a regular expression and
// then falls back to slicing between the first '{' and the last '}'.
func ParseEngineOutput(raw []byte) (*models.AnalysisResult, error) {
	var result models.AnalysisResult

	if span := jsonObjectPattern.Find(raw); span != nil {
		if err := json.Unmarshal(span, &result); err == nil {
			return &result, nil
		}
		result = models.AnalysisResult{}
	}

	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrMalformedOutput)
	}

	if err := json.Unmarshal(raw[start:end+1], &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	return &result, nil
}

// stripCodeFences removes markdown fences LLM responses often wrap JSON in.
func stripCodeFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	return strings.ReplaceAll(text, "```", "")
}
