package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AnalysisResult is the normalized outcome of scoring one resume.
// Either Success is true and the score fields are populated, or Error is
// set and Score is zero.
type AnalysisResult struct {
	Score              float64            `json:"score"`
	MissingKeywords    TermGroups         `json:"missing_keywords,omitempty"`
	MissingSkills      TermGroups         `json:"missing_skills,omitempty"`
	Suggestions        []string           `json:"suggestions,omitempty"`
	SectionScores      map[string]float64 `json:"section_scores,omitempty"`
	SemanticSimilarity float64            `json:"semantic_similarity"`
	KeywordMatch       float64            `json:"keyword_match"`
	ReportPath         string             `json:"report_path,omitempty"`
	ReportURL          string             `json:"report_url,omitempty"`
	Filename           string             `json:"filename"`
	DisplayName        string             `json:"display_name,omitempty"`
	TempFilename       string             `json:"temp_filename,omitempty"`
	PageCount          int                `json:"page_count,omitempty"`
	Success            bool               `json:"success"`
	Error              string             `json:"error,omitempty"`
}

// FailedResult builds the entry recorded for a document whose analysis failed.
func FailedResult(filename string, err error) AnalysisResult {
	return AnalysisResult{
		Filename:    filename,
		DisplayName: filename,
		Score:       0,
		Success:     false,
		Error:       err.Error(),
	}
}

// Missing returns the missing keywords, falling back to missing skills for
// engines that only emit the older field.
func (r *AnalysisResult) Missing() TermGroups {
	if len(r.MissingKeywords) > 0 {
		return r.MissingKeywords
	}
	return r.MissingSkills
}

// DefaultTermCategory holds terms reported as a flat list.
const DefaultTermCategory = "general"

// TermGroups maps a category to its ordered list of terms. It accepts both
// the categorized object form and a flat JSON array.
type TermGroups map[string][]string

func (g *TermGroups) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*g = nil
		return nil
	}

	switch trimmed[0] {
	case '[':
		var terms []string
		if err := json.Unmarshal(trimmed, &terms); err != nil {
			return fmt.Errorf("decode term list: %w", err)
		}
		if len(terms) == 0 {
			*g = nil
			return nil
		}
		*g = TermGroups{DefaultTermCategory: terms}
		return nil
	case '{':
		var groups map[string][]string
		if err := json.Unmarshal(trimmed, &groups); err != nil {
			return fmt.Errorf("decode term groups: %w", err)
		}
		*g = groups
		return nil
	default:
		return fmt.Errorf("unexpected term groups value: %s", trimmed)
	}
}

type BatchResponse struct {
	Success    bool             `json:"success"`
	AnalysisID string           `json:"analysis_id,omitempty"`
	Results    []AnalysisResult `json:"results"`
}

type ScoreResponse struct {
	Score float64 `json:"score"`
}

type MissingResponse struct {
	MissingKeywords    TermGroups         `json:"missing_keywords"`
	Suggestions        []string           `json:"suggestions"`
	SectionScores      map[string]float64 `json:"section_scores"`
	SemanticSimilarity float64            `json:"semantic_similarity"`
	KeywordMatch       float64            `json:"keyword_match"`
}

type EnqueueResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type AnalysisResponse struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	DocumentCount int              `json:"document_count"`
	SuccessCount  int              `json:"success_count"`
	Results       []AnalysisResult `json:"results,omitempty"`
	ErrorMessage  *string          `json:"error_message,omitempty"`
}

type ReportListResponse struct {
	Reports []string `json:"reports"`
}
