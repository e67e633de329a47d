package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermGroupsUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want TermGroups
	}{
		{name: "flat list", raw: `["go", "sql"]`, want: TermGroups{DefaultTermCategory: {"go", "sql"}}},
		{name: "categorized", raw: `{"technical": ["go"], "soft": ["mentoring"]}`, want: TermGroups{"technical": {"go"}, "soft": {"mentoring"}}},
		{name: "empty list", raw: `[]`, want: nil},
		{name: "null", raw: `null`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got TermGroups
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	var bad TermGroups
	assert.Error(t, json.Unmarshal([]byte(`"go"`), &bad))
}

func TestMissingFallsBackToSkills(t *testing.T) {
	result := AnalysisResult{MissingSkills: TermGroups{"technical": {"docker"}}}
	assert.Equal(t, TermGroups{"technical": {"docker"}}, result.Missing())

	result.MissingKeywords = TermGroups{DefaultTermCategory: {"kafka"}}
	assert.Equal(t, TermGroups{DefaultTermCategory: {"kafka"}}, result.Missing())
}

func TestFailedResult(t *testing.T) {
	result := FailedResult("cv.pdf", assert.AnError)

	assert.False(t, result.Success)
	assert.Zero(t, result.Score)
	assert.Equal(t, "cv.pdf", result.Filename)
	assert.Equal(t, "cv.pdf", result.DisplayName)
	assert.Equal(t, assert.AnError.Error(), result.Error)

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 0, "semantic_similarity": 0, "keyword_match": 0, "filename": "cv.pdf", "display_name": "cv.pdf", "success": false, "error": "`+assert.AnError.Error()+`"}`, string(encoded))
}
