package services

import (
	"context"

	"alfredoptarigan/ats-analyzer/internal/models"
)

// EngineRequest describes one resume to score against one job description.
type EngineRequest struct {
	DocumentPath     string
	JobDescription   string
	OriginalFilename string
}

// ScoringEngine scores a single resume. Implementations return the sentinel
// errors from errors.go so callers can tell faults apart with errors.Is.
type ScoringEngine interface {
	// Ready reports whether the engine can be invoked at all.
	Ready() error
	Invoke(ctx context.Context, req EngineRequest) (*models.AnalysisResult, error)
	Name() string
}
